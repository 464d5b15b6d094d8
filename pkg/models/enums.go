package models

// EntityKind identifies which catalog table an operation targets
type EntityKind string

const (
	EntityKindTrack  EntityKind = "track"
	EntityKindArtist EntityKind = "artist"
	EntityKindAlbum  EntityKind = "album"
	EntityKindCredit EntityKind = "credit"
)

// EntityStatus is the lifecycle state of a canonical entity.
// Losing records are never deleted; they are tombstoned and keep a
// merged_into back-reference so foreign references stay inspectable.
type EntityStatus string

const (
	EntityStatusActive     EntityStatus = "active"
	EntityStatusTombstoned EntityStatus = "tombstoned"
)

// AlbumType classifies an album
type AlbumType string

const (
	AlbumTypeSingle      AlbumType = "single"
	AlbumTypeEP          AlbumType = "ep"
	AlbumTypeMixtape     AlbumType = "mixtape"
	AlbumTypeCompilation AlbumType = "compilation"
	AlbumTypeLive        AlbumType = "live"
	AlbumTypeAlbum       AlbumType = "album"
)

// CreditType is the closed enumeration of attribution roles
type CreditType string

const (
	CreditTypeProducer          CreditType = "producer"
	CreditTypeCoProducer        CreditType = "co_producer"
	CreditTypeExecutiveProducer CreditType = "executive_producer"
	CreditTypeVocalProducer     CreditType = "vocal_producer"
	CreditTypeWriter            CreditType = "writer"
	CreditTypeComposer          CreditType = "composer"
	CreditTypeLyricist          CreditType = "lyricist"
	CreditTypePrimaryArtist     CreditType = "primary_artist"
	CreditTypeFeaturedArtist    CreditType = "featured_artist"
	CreditTypeVocalist          CreditType = "vocalist"
	CreditTypeBackgroundVocals  CreditType = "background_vocals"
	CreditTypeInstrumentalist   CreditType = "instrumentalist"
	CreditTypeEngineer          CreditType = "engineer"
	CreditTypeMixingEngineer    CreditType = "mixing_engineer"
	CreditTypeMasteringEngineer CreditType = "mastering_engineer"
	CreditTypeRecordingEngineer CreditType = "recording_engineer"
	CreditTypeSampleSource      CreditType = "sample_source"
	CreditTypeOther             CreditType = "other"
)

// CreditCategory groups credit types for reporting
type CreditCategory string

const (
	CreditCategoryProduction  CreditCategory = "production"
	CreditCategoryWriting     CreditCategory = "writing"
	CreditCategoryPerformance CreditCategory = "performance"
	CreditCategoryEngineering CreditCategory = "engineering"
	CreditCategoryOther       CreditCategory = "other"
)

// creditCategories is the fixed type -> category table. Every credit type
// maps to exactly one category.
var creditCategories = map[CreditType]CreditCategory{
	CreditTypeProducer:          CreditCategoryProduction,
	CreditTypeCoProducer:        CreditCategoryProduction,
	CreditTypeExecutiveProducer: CreditCategoryProduction,
	CreditTypeVocalProducer:     CreditCategoryProduction,
	CreditTypeWriter:            CreditCategoryWriting,
	CreditTypeComposer:          CreditCategoryWriting,
	CreditTypeLyricist:          CreditCategoryWriting,
	CreditTypePrimaryArtist:     CreditCategoryPerformance,
	CreditTypeFeaturedArtist:    CreditCategoryPerformance,
	CreditTypeVocalist:          CreditCategoryPerformance,
	CreditTypeBackgroundVocals:  CreditCategoryPerformance,
	CreditTypeInstrumentalist:   CreditCategoryPerformance,
	CreditTypeEngineer:          CreditCategoryEngineering,
	CreditTypeMixingEngineer:    CreditCategoryEngineering,
	CreditTypeMasteringEngineer: CreditCategoryEngineering,
	CreditTypeRecordingEngineer: CreditCategoryEngineering,
	CreditTypeSampleSource:      CreditCategoryOther,
	CreditTypeOther:             CreditCategoryOther,
}

// CreditCategoryFor returns the category for a credit type
func CreditCategoryFor(t CreditType) CreditCategory {
	if c, ok := creditCategories[t]; ok {
		return c
	}
	return CreditCategoryOther
}

// MatchType classifies why two entities are considered duplicates
type MatchType string

const (
	MatchTypeExact            MatchType = "exact"
	MatchTypeSimilarTitle     MatchType = "similar_title"
	MatchTypeRemixVariant     MatchType = "remix_variant"
	MatchTypeFeaturingVariant MatchType = "featuring_variant"
	MatchTypeCreditDuplicate  MatchType = "credit_duplicate"
	MatchTypeSimilarArtist    MatchType = "similar_artist"
)

// ConfidenceTier is the discretized band of a similarity score
type ConfidenceTier string

const (
	ConfidenceCertain   ConfidenceTier = "certain"
	ConfidenceHigh      ConfidenceTier = "high"
	ConfidenceMedium    ConfidenceTier = "medium"
	ConfidenceLow       ConfidenceTier = "low"
	ConfidenceUncertain ConfidenceTier = "uncertain"
)

// ConfidenceTierFor maps a score onto its tier. Fixed step function:
// >=0.95 certain, >=0.85 high, >=0.70 medium, >=0.50 low, else uncertain.
func ConfidenceTierFor(score float64) ConfidenceTier {
	switch {
	case score >= 0.95:
		return ConfidenceCertain
	case score >= 0.85:
		return ConfidenceHigh
	case score >= 0.70:
		return ConfidenceMedium
	case score >= 0.50:
		return ConfidenceLow
	default:
		return ConfidenceUncertain
	}
}

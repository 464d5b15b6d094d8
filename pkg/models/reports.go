package models

import "time"

// DuplicateReport summarizes the current candidate backlog
type DuplicateReport struct {
	TotalCandidates int                    `json:"total_candidates"`
	ByMatchType     map[MatchType]int      `json:"by_match_type"`
	ByConfidence    map[ConfidenceTier]int `json:"by_confidence"`
	ByStatus        map[string]int         `json:"by_status"`
	TopPending      []MatchCandidate       `json:"top_pending"`
	GeneratedAt     time.Time              `json:"generated_at"`
}

// AlbumCoverageReport summarizes how much of the catalog has album links
type AlbumCoverageReport struct {
	TotalTracks       int               `json:"total_tracks"`
	TracksWithAlbum   int               `json:"tracks_with_album"`
	OrphanTracks      int               `json:"orphan_tracks"`
	CoveragePercent   float64           `json:"coverage_percent"`
	AlbumsByType      map[AlbumType]int `json:"albums_by_type"`
	TotalAlbums       int               `json:"total_albums"`
	TombstonedAlbums  int               `json:"tombstoned_albums"`
	GeneratedAt       time.Time         `json:"generated_at"`
}

// CreditQualityReport summarizes credit completeness and confidence
type CreditQualityReport struct {
	TotalCredits        int                    `json:"total_credits"`
	TracksWithCredits   int                    `json:"tracks_with_credits"`
	AvgCreditsPerTrack  float64                `json:"avg_credits_per_track"`
	ByCategory          map[CreditCategory]int `json:"by_category"`
	BySource            map[string]int         `json:"by_source"`
	ConfidenceHistogram map[string]int         `json:"confidence_histogram"`
	GeneratedAt         time.Time              `json:"generated_at"`
}

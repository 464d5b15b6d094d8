// Package dedup finds duplicate catalog entities and records them as match
// candidates for the merge engine and the review queue
package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/chorus/pkg/matching"
	"github.com/Ramsey-B/chorus/pkg/models"
)

// Scope bounds one detection run. Detection is always scoped: either to a
// single artist's catalog or to an explicit id list. Unscoped runs are
// rejected so a full-catalog scan can never happen by accident.
type Scope struct {
	ArtistID  string   `json:"artist_id,omitempty"`
	EntityIDs []string `json:"entity_ids,omitempty"`
}

// Validate rejects empty scopes
func (s Scope) Validate() error {
	if s.ArtistID == "" && len(s.EntityIDs) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "detection scope requires an artist_id or entity_ids")
	}
	return nil
}

// Config holds detection thresholds
type Config struct {
	HighSimilarityThreshold float64
	FeaturingBaseThreshold  float64
	CreditNameThreshold     float64
	WorkerCount             int
}

type trackStore interface {
	ListByArtist(ctx context.Context, artistID string) ([]models.Track, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Track, error)
}

type artistStore interface {
	ListByIDs(ctx context.Context, ids []string) ([]models.Artist, error)
}

type albumStore interface {
	ListByArtist(ctx context.Context, artistID string) ([]models.Album, error)
}

type creditStore interface {
	ListByTrack(ctx context.Context, trackID string) ([]models.Credit, error)
}

type candidateStore interface {
	CreateBatch(ctx context.Context, candidates []*models.MatchCandidate) error
}

// Detector runs pairwise duplicate detection over a scoped snapshot.
// Detection never mutates catalog entities; its only write is the candidate
// batch upsert, which makes re-runs idempotent.
type Detector struct {
	tracks     trackStore
	artists    artistStore
	albums     albumStore
	credits    creditStore
	candidates candidateStore
	classifier *matching.VariantClassifier
	scorer     *matching.Scorer
	cfg        Config
	logger     ectologger.Logger
}

// NewDetector creates a detector
func NewDetector(tracks trackStore, artists artistStore, albums albumStore, credits creditStore, candidates candidateStore, classifier *matching.VariantClassifier, cfg Config, logger ectologger.Logger) *Detector {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 4
	}
	if classifier == nil {
		classifier = matching.NewVariantClassifier()
	}
	return &Detector{
		tracks:     tracks,
		artists:    artists,
		albums:     albums,
		credits:    credits,
		candidates: candidates,
		classifier: classifier,
		scorer:     matching.NewScorer(),
		cfg:        cfg,
		logger:     logger,
	}
}

// DetectTracks finds duplicate track pairs within a scope
func (d *Detector) DetectTracks(ctx context.Context, scope Scope) (*models.DetectionResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	var tracks []models.Track
	var err error
	if scope.ArtistID != "" {
		tracks, err = d.tracks.ListByArtist(ctx, scope.ArtistID)
	} else {
		tracks, err = d.tracks.ListByIDs(ctx, scope.EntityIDs)
	}
	if err != nil {
		return nil, err
	}

	result := &models.DetectionResult{}
	usable := tracks[:0:0]
	for _, t := range tracks {
		if t.NormalizedTitle == "" {
			result.Skipped = append(result.Skipped, models.SkippedItem{EntityID: t.ID, Reason: "empty normalized title"})
			continue
		}
		usable = append(usable, t)
	}
	sort.Slice(usable, func(i, j int) bool { return usable[i].ID < usable[j].ID })

	for i := 0; i < len(usable); i++ {
		for j := i + 1; j < len(usable); j++ {
			if candidate := d.classifyTrackPair(&usable[i], &usable[j]); candidate != nil {
				result.Candidates = append(result.Candidates, *candidate)
			}
		}
	}

	if err := d.persist(ctx, result.Candidates); err != nil {
		return nil, err
	}

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"artist_id":  scope.ArtistID,
		"tracks":     len(usable),
		"candidates": len(result.Candidates),
		"skipped":    len(result.Skipped),
	}).Info("Track detection complete")
	return result, nil
}

// DetectTracksForArtists fans track detection out over a bounded worker
// pool, one scope per artist. Workers share nothing but the store, so the
// combined result is the same as running the scopes sequentially.
func (d *Detector) DetectTracksForArtists(ctx context.Context, artistIDs []string) (*models.DetectionResult, error) {
	if len(artistIDs) == 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "detection scope requires at least one artist_id")
	}

	var mu sync.Mutex
	combined := &models.DetectionResult{}

	sem := make(chan struct{}, d.cfg.WorkerCount)
	var wg sync.WaitGroup
	for _, artistID := range artistIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(artistID string) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := d.DetectTracks(ctx, Scope{ArtistID: artistID})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				combined.Skipped = append(combined.Skipped, models.SkippedItem{EntityID: artistID, Reason: err.Error()})
				return
			}
			combined.Candidates = append(combined.Candidates, result.Candidates...)
			combined.Skipped = append(combined.Skipped, result.Skipped...)
		}(artistID)
	}
	wg.Wait()

	sort.Slice(combined.Candidates, func(i, j int) bool {
		a, b := combined.Candidates[i], combined.Candidates[j]
		if a.EntityAID != b.EntityAID {
			return a.EntityAID < b.EntityAID
		}
		return a.EntityBID < b.EntityBID
	})
	return combined, nil
}

// DetectArtists finds duplicate artists within an explicit id list
func (d *Detector) DetectArtists(ctx context.Context, scope Scope) (*models.DetectionResult, error) {
	if len(scope.EntityIDs) == 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "artist detection requires entity_ids")
	}

	artists, err := d.artists.ListByIDs(ctx, scope.EntityIDs)
	if err != nil {
		return nil, err
	}

	result := &models.DetectionResult{}
	usable := artists[:0:0]
	for _, a := range artists {
		if a.NormalizedName == "" {
			result.Skipped = append(result.Skipped, models.SkippedItem{EntityID: a.ID, Reason: "empty normalized name"})
			continue
		}
		usable = append(usable, a)
	}
	sort.Slice(usable, func(i, j int) bool { return usable[i].ID < usable[j].ID })

	for i := 0; i < len(usable); i++ {
		for j := i + 1; j < len(usable); j++ {
			if candidate := d.classifyArtistPair(&usable[i], &usable[j]); candidate != nil {
				result.Candidates = append(result.Candidates, *candidate)
			}
		}
	}

	if err := d.persist(ctx, result.Candidates); err != nil {
		return nil, err
	}
	return result, nil
}

// DetectAlbums finds duplicate albums within one artist's catalog
func (d *Detector) DetectAlbums(ctx context.Context, scope Scope) (*models.DetectionResult, error) {
	if scope.ArtistID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "album detection requires an artist_id")
	}

	albums, err := d.albums.ListByArtist(ctx, scope.ArtistID)
	if err != nil {
		return nil, err
	}

	result := &models.DetectionResult{}
	usable := albums[:0:0]
	for _, a := range albums {
		if a.NormalizedTitle == "" {
			result.Skipped = append(result.Skipped, models.SkippedItem{EntityID: a.ID, Reason: "empty normalized title"})
			continue
		}
		usable = append(usable, a)
	}
	sort.Slice(usable, func(i, j int) bool { return usable[i].ID < usable[j].ID })

	for i := 0; i < len(usable); i++ {
		for j := i + 1; j < len(usable); j++ {
			if candidate := d.classifyAlbumPair(&usable[i], &usable[j]); candidate != nil {
				result.Candidates = append(result.Candidates, *candidate)
			}
		}
	}

	if err := d.persist(ctx, result.Candidates); err != nil {
		return nil, err
	}
	return result, nil
}

// DetectCredits finds duplicate credit rows on one track
func (d *Detector) DetectCredits(ctx context.Context, trackID string) (*models.DetectionResult, error) {
	if trackID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "credit detection requires a track_id")
	}

	credits, err := d.credits.ListByTrack(ctx, trackID)
	if err != nil {
		return nil, err
	}

	result := &models.DetectionResult{}
	usable := credits[:0:0]
	for _, c := range credits {
		if c.NormalizedName == "" {
			result.Skipped = append(result.Skipped, models.SkippedItem{EntityID: c.ID, Reason: "empty normalized name"})
			continue
		}
		usable = append(usable, c)
	}
	sort.Slice(usable, func(i, j int) bool { return usable[i].ID < usable[j].ID })

	for i := 0; i < len(usable); i++ {
		for j := i + 1; j < len(usable); j++ {
			if candidate := d.classifyCreditPair(&usable[i], &usable[j]); candidate != nil {
				result.Candidates = append(result.Candidates, *candidate)
			}
		}
	}

	if err := d.persist(ctx, result.Candidates); err != nil {
		return nil, err
	}
	return result, nil
}

// classifyTrackPair applies the classification ladder in fixed priority
// order so a pair can never carry two types at once
func (d *Detector) classifyTrackPair(a, b *models.Track) *models.MatchCandidate {
	evidence := models.MatchEvidence{
		TitleA:      a.Title,
		TitleB:      b.Title,
		NormalizedA: a.NormalizedTitle,
		NormalizedB: b.NormalizedTitle,
	}

	if a.NormalizedTitle == b.NormalizedTitle {
		evidence.TitleSimilarity = 1.0
		return d.newCandidate(models.EntityKindTrack, a.ID, b.ID, models.MatchTypeExact, 1.0, evidence, "merge into canonical track")
	}

	if markers, ok := d.classifier.ExplainsAsVariant(a.Title, b.Title); ok {
		baseA, _ := d.classifier.StripVariantMarkers(a.Title)
		baseB, _ := d.classifier.StripVariantMarkers(b.Title)
		evidence.BaseTitleA = baseA
		evidence.BaseTitleB = baseB
		evidence.VariantMarkers = markers
		evidence.TitleSimilarity = d.scorer.TitleSimilarity(a.Title, b.Title)
		return d.newCandidate(models.EntityKindTrack, a.ID, b.ID, models.MatchTypeRemixVariant, 0.90, evidence, "keep both, link as variants")
	}

	if delta, ok := d.classifier.FeaturingDifference(a.Title, b.Title, a.FeaturingNames(), b.FeaturingNames(), d.cfg.FeaturingBaseThreshold); ok {
		evidence.BaseTitleA = delta.BaseA
		evidence.BaseTitleB = delta.BaseB
		evidence.FeaturingA = delta.FeaturingA
		evidence.FeaturingB = delta.FeaturingB
		evidence.TitleSimilarity = delta.BaseSimilarity
		return d.newCandidate(models.EntityKindTrack, a.ID, b.ID, models.MatchTypeFeaturingVariant, delta.BaseSimilarity, evidence, "review featuring difference")
	}

	if sim := d.scorer.NormalizedSimilarity(a.NormalizedTitle, b.NormalizedTitle); sim >= d.cfg.HighSimilarityThreshold {
		evidence.TitleSimilarity = sim
		return d.newCandidate(models.EntityKindTrack, a.ID, b.ID, models.MatchTypeSimilarTitle, sim, evidence, "review similar titles")
	}

	return nil
}

func (d *Detector) classifyArtistPair(a, b *models.Artist) *models.MatchCandidate {
	evidence := models.MatchEvidence{
		PersonA:     a.Name,
		PersonB:     b.Name,
		NormalizedA: a.NormalizedName,
		NormalizedB: b.NormalizedName,
	}

	if a.NormalizedName == b.NormalizedName {
		evidence.TitleSimilarity = 1.0
		return d.newCandidate(models.EntityKindArtist, a.ID, b.ID, models.MatchTypeExact, 1.0, evidence, "merge into canonical artist")
	}

	if sim := d.scorer.NormalizedSimilarity(a.NormalizedName, b.NormalizedName); sim >= d.cfg.HighSimilarityThreshold {
		evidence.TitleSimilarity = sim
		return d.newCandidate(models.EntityKindArtist, a.ID, b.ID, models.MatchTypeSimilarArtist, sim, evidence, "review artist match")
	}

	return nil
}

func (d *Detector) classifyAlbumPair(a, b *models.Album) *models.MatchCandidate {
	evidence := models.MatchEvidence{
		TitleA:      a.Title,
		TitleB:      b.Title,
		NormalizedA: a.NormalizedTitle,
		NormalizedB: b.NormalizedTitle,
	}

	if a.NormalizedTitle == b.NormalizedTitle {
		evidence.TitleSimilarity = 1.0
		return d.newCandidate(models.EntityKindAlbum, a.ID, b.ID, models.MatchTypeExact, 1.0, evidence, "merge into canonical album")
	}

	if markers, ok := d.classifier.ExplainsAsVariant(a.Title, b.Title); ok {
		evidence.VariantMarkers = markers
		evidence.TitleSimilarity = d.scorer.TitleSimilarity(a.Title, b.Title)
		return d.newCandidate(models.EntityKindAlbum, a.ID, b.ID, models.MatchTypeRemixVariant, 0.90, evidence, "review album edition")
	}

	if sim := d.scorer.NormalizedSimilarity(a.NormalizedTitle, b.NormalizedTitle); sim >= d.cfg.HighSimilarityThreshold {
		evidence.TitleSimilarity = sim
		return d.newCandidate(models.EntityKindAlbum, a.ID, b.ID, models.MatchTypeSimilarTitle, sim, evidence, "review similar album titles")
	}

	return nil
}

func (d *Detector) classifyCreditPair(a, b *models.Credit) *models.MatchCandidate {
	if a.CreditType != b.CreditType {
		return nil
	}

	evidence := models.MatchEvidence{
		CreditType:  string(a.CreditType),
		PersonA:     a.PersonName,
		PersonB:     b.PersonName,
		NormalizedA: a.NormalizedName,
		NormalizedB: b.NormalizedName,
	}

	if a.NormalizedName == b.NormalizedName {
		evidence.TitleSimilarity = 1.0
		return d.newCandidate(models.EntityKindCredit, a.ID, b.ID, models.MatchTypeCreditDuplicate, 1.0, evidence, "drop lower-confidence credit")
	}

	if sim := d.scorer.NormalizedSimilarity(a.NormalizedName, b.NormalizedName); sim >= d.cfg.CreditNameThreshold {
		evidence.TitleSimilarity = sim
		return d.newCandidate(models.EntityKindCredit, a.ID, b.ID, models.MatchTypeCreditDuplicate, sim, evidence, "review credit name variants")
	}

	return nil
}

func (d *Detector) newCandidate(kind models.EntityKind, aID, bID string, matchType models.MatchType, score float64, evidence models.MatchEvidence, action string) *models.MatchCandidate {
	raw, err := json.Marshal(evidence)
	if err != nil {
		raw = json.RawMessage(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}

	return &models.MatchCandidate{
		EntityKind:      kind,
		EntityAID:       aID,
		EntityBID:       bID,
		MatchType:       matchType,
		Score:           score,
		Confidence:      models.ConfidenceTierFor(score),
		Evidence:        raw,
		SuggestedAction: action,
		Status:          models.MatchCandidateStatusPending,
	}
}

func (d *Detector) persist(ctx context.Context, candidates []models.MatchCandidate) error {
	if len(candidates) == 0 {
		return nil
	}
	batch := make([]*models.MatchCandidate, len(candidates))
	for i := range candidates {
		batch[i] = &candidates[i]
	}
	return d.candidates.CreateBatch(ctx, batch)
}

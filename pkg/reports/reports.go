// Package reports builds read-only catalog health summaries
package reports

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/chorus/internal/repositories/matchcandidate"
	"github.com/Ramsey-B/chorus/internal/tracing"
	"github.com/Ramsey-B/chorus/pkg/models"
)

type candidateStore interface {
	Counts(ctx context.Context) ([]matchcandidate.CandidateCount, error)
	ListPending(ctx context.Context, kind models.EntityKind, limit int) ([]models.MatchCandidate, error)
}

type trackStore interface {
	CoverageCounts(ctx context.Context) (total int, withAlbum int, err error)
}

type albumStore interface {
	CountsByType(ctx context.Context) (map[models.AlbumType]int, int, error)
}

type creditStore interface {
	QualityStats(ctx context.Context) (total int, tracksWithCredits int, byCategory map[models.CreditCategory]int, bySource map[string]int, histogram map[string]int, err error)
}

// Generator produces catalog health reports. All reads, no writes.
type Generator struct {
	candidates candidateStore
	tracks     trackStore
	albums     albumStore
	credits    creditStore
	logger     ectologger.Logger
}

// NewGenerator creates a report generator
func NewGenerator(candidates candidateStore, tracks trackStore, albums albumStore, credits creditStore, logger ectologger.Logger) *Generator {
	return &Generator{
		candidates: candidates,
		tracks:     tracks,
		albums:     albums,
		credits:    credits,
		logger:     logger,
	}
}

// DuplicateReport summarizes the match candidate backlog
func (g *Generator) DuplicateReport(ctx context.Context) (*models.DuplicateReport, error) {
	ctx, span := tracing.StartSpan(ctx, "reports.Generator.DuplicateReport")
	defer span.End()

	counts, err := g.candidates.Counts(ctx)
	if err != nil {
		return nil, err
	}

	report := &models.DuplicateReport{
		ByMatchType:  make(map[models.MatchType]int),
		ByConfidence: make(map[models.ConfidenceTier]int),
		ByStatus:     make(map[string]int),
		GeneratedAt:  time.Now().UTC(),
	}
	for _, row := range counts {
		report.TotalCandidates += row.Count
		report.ByMatchType[row.MatchType] += row.Count
		report.ByConfidence[row.Confidence] += row.Count
		report.ByStatus[row.Status] += row.Count
	}

	pending, err := g.candidates.ListPending(ctx, "", 10)
	if err != nil {
		return nil, err
	}
	report.TopPending = pending

	return report, nil
}

// AlbumCoverageReport summarizes how much of the catalog has album links
func (g *Generator) AlbumCoverageReport(ctx context.Context) (*models.AlbumCoverageReport, error) {
	ctx, span := tracing.StartSpan(ctx, "reports.Generator.AlbumCoverageReport")
	defer span.End()

	total, withAlbum, err := g.tracks.CoverageCounts(ctx)
	if err != nil {
		return nil, err
	}

	byType, tombstoned, err := g.albums.CountsByType(ctx)
	if err != nil {
		return nil, err
	}

	report := &models.AlbumCoverageReport{
		TotalTracks:      total,
		TracksWithAlbum:  withAlbum,
		OrphanTracks:     total - withAlbum,
		AlbumsByType:     byType,
		TombstonedAlbums: tombstoned,
		GeneratedAt:      time.Now().UTC(),
	}
	for _, count := range byType {
		report.TotalAlbums += count
	}
	if total > 0 {
		report.CoveragePercent = 100 * float64(withAlbum) / float64(total)
	}

	return report, nil
}

// CreditQualityReport summarizes credit completeness and confidence
func (g *Generator) CreditQualityReport(ctx context.Context) (*models.CreditQualityReport, error) {
	ctx, span := tracing.StartSpan(ctx, "reports.Generator.CreditQualityReport")
	defer span.End()

	total, tracksWithCredits, byCategory, bySource, histogram, err := g.credits.QualityStats(ctx)
	if err != nil {
		return nil, err
	}

	report := &models.CreditQualityReport{
		TotalCredits:        total,
		TracksWithCredits:   tracksWithCredits,
		ByCategory:          byCategory,
		BySource:            bySource,
		ConfidenceHistogram: histogram,
		GeneratedAt:         time.Now().UTC(),
	}
	if tracksWithCredits > 0 {
		report.AvgCreditsPerTrack = float64(total) / float64(tracksWithCredits)
	}

	return report, nil
}

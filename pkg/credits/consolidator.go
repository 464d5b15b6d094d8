package credits

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/chorus/internal/tracing"
	"github.com/Ramsey-B/chorus/pkg/models"
	"github.com/Ramsey-B/chorus/pkg/normalizers"
)

const (
	defaultSourceRank   = 5
	hiddenProducerScore = 0.7
	corroborationBonus  = 0.1
	exactRoleBonus      = 0.05
	maxConfidence       = 1.0
	featuringSource     = "title_parse"
	featuringSeedScore  = 0.85
)

// Config holds consolidation tuning
type Config struct {
	MinCreditConfidence float64
	SourcePriorities    map[string]int
}

// ParseSourcePriorities decodes "source:rank" pairs from config. Malformed
// pairs are dropped.
func ParseSourcePriorities(pairs []string) map[string]int {
	priorities := make(map[string]int, len(pairs))
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		rank, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		priorities[strings.ToLower(strings.TrimSpace(parts[0]))] = rank
	}
	return priorities
}

type creditStore interface {
	ListByTrack(ctx context.Context, trackID string) ([]models.Credit, error)
	ReplaceForTrack(ctx context.Context, trackID string, credits []models.Credit) ([]models.Credit, error)
}

// Consolidator merges credit evidence from every source into one typed,
// deduplicated credit list per track
type Consolidator struct {
	credits creditStore
	cfg     Config
	logger  ectologger.Logger
}

// NewConsolidator creates a consolidator
func NewConsolidator(credits creditStore, cfg Config, logger ectologger.Logger) *Consolidator {
	if cfg.MinCreditConfidence <= 0 {
		cfg.MinCreditConfidence = 0.7
	}
	return &Consolidator{
		credits: credits,
		cfg:     cfg,
		logger:  logger,
	}
}

// ConsolidateCredits unions stored credits, new raw entries, and the track's
// featuring list, then collapses duplicates and rewrites the track's credits
func (c *Consolidator) ConsolidateCredits(ctx context.Context, track *models.Track, rawEntries []models.RawCreditEntry) (*models.ConsolidationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "credits.Consolidator.ConsolidateCredits")
	defer span.End()

	result := &models.ConsolidationResult{}

	stored, err := c.credits.ListByTrack(ctx, track.ID)
	if err != nil {
		return nil, err
	}

	working := make([]models.Credit, 0, len(stored)+len(rawEntries))
	working = append(working, stored...)
	working = append(working, c.fromRawEntries(track, rawEntries, result)...)
	working = append(working, c.fromFeaturing(track)...)
	working = append(working, c.hiddenProducers(track, working)...)

	consolidated := c.collapse(working)

	kept := consolidated[:0:0]
	for _, credit := range consolidated {
		if credit.Confidence < c.cfg.MinCreditConfidence {
			result.Skipped = append(result.Skipped, models.SkippedItem{
				EntityID: credit.PersonName,
				Reason:   "confidence below threshold",
			})
			continue
		}
		kept = append(kept, credit)
	}

	c.order(kept)

	saved, err := c.credits.ReplaceForTrack(ctx, track.ID, kept)
	if err != nil {
		return nil, err
	}
	result.Credits = saved

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"track_id": track.ID,
		"inputs":   len(working),
		"credits":  len(saved),
		"skipped":  len(result.Skipped),
	}).Info("Credit consolidation complete")
	return result, nil
}

func (c *Consolidator) fromRawEntries(track *models.Track, entries []models.RawCreditEntry, result *models.ConsolidationResult) []models.Credit {
	credits := make([]models.Credit, 0, len(entries))
	for _, entry := range entries {
		name := strings.TrimSpace(entry.PersonName)
		if name == "" {
			result.Skipped = append(result.Skipped, models.SkippedItem{Reason: "empty person name"})
			continue
		}
		normalized := normalizers.NormalizePersonName(name)
		if normalized == "" {
			result.Skipped = append(result.Skipped, models.SkippedItem{EntityID: name, Reason: "name normalizes to nothing"})
			continue
		}

		creditType, exact := ResolveRole(entry.RoleText)
		confidence := entry.Confidence
		if confidence <= 0 {
			confidence = c.seedConfidence(entry.Source, exact)
		}

		credit := models.Credit{
			TrackID:        track.ID,
			PersonName:     name,
			NormalizedName: normalized,
			CreditType:     creditType,
			CreditCategory: models.CreditCategoryFor(creditType),
			Source:         strings.ToLower(strings.TrimSpace(entry.Source)),
			Confidence:     confidence,
		}
		if entry.Detail != nil && *entry.Detail != "" {
			credit.Detail = entry.Detail
		}
		if entry.RoleText != "" {
			raw := entry.RoleText
			credit.RawText = &raw
		}
		credits = append(credits, credit)
	}
	return credits
}

// fromFeaturing turns the track's featuring list into featured-artist credits
func (c *Consolidator) fromFeaturing(track *models.Track) []models.Credit {
	names := track.FeaturingNames()
	credits := make([]models.Credit, 0, len(names))
	for _, name := range names {
		normalized := normalizers.NormalizePersonName(name)
		if normalized == "" {
			continue
		}
		credits = append(credits, models.Credit{
			TrackID:        track.ID,
			PersonName:     name,
			NormalizedName: normalized,
			CreditType:     models.CreditTypeFeaturedArtist,
			CreditCategory: models.CreditCategoryPerformance,
			Source:         featuringSource,
			Confidence:     featuringSeedScore,
		})
	}
	return credits
}

// hiddenProducers synthesizes secondary producer credits for people whose
// raw text mentions production work without an outright producer credit.
// Adjacent production roles like co-producer still qualify; their raw text
// often hides a full production credit.
func (c *Consolidator) hiddenProducers(track *models.Track, working []models.Credit) []models.Credit {
	var synthesized []models.Credit
	for _, credit := range working {
		if credit.CreditType == models.CreditTypeProducer {
			continue
		}
		if credit.RawText == nil || !HasProductionKeywords(*credit.RawText) {
			continue
		}
		synthesized = append(synthesized, models.Credit{
			TrackID:        track.ID,
			PersonName:     credit.PersonName,
			NormalizedName: credit.NormalizedName,
			CreditType:     models.CreditTypeProducer,
			CreditCategory: models.CreditCategoryProduction,
			Source:         credit.Source,
			Confidence:     hiddenProducerScore,
			RawText:        credit.RawText,
		})
	}
	return synthesized
}

// collapse groups by (normalized name, credit type), keeps the strongest
// member, and rewards corroboration across sources
func (c *Consolidator) collapse(working []models.Credit) []models.Credit {
	type groupKey struct {
		name       string
		creditType models.CreditType
	}

	groups := make(map[groupKey][]models.Credit)
	var keys []groupKey
	for _, credit := range working {
		key := groupKey{name: credit.NormalizedName, creditType: credit.CreditType}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], credit)
	}

	consolidated := make([]models.Credit, 0, len(keys))
	for _, key := range keys {
		group := groups[key]
		best := group[0]
		sources := map[string]struct{}{}
		for _, member := range group {
			sources[member.Source] = struct{}{}
			if member.Confidence > best.Confidence {
				best = member
			}
		}
		if len(sources) > 1 {
			best.Confidence += corroborationBonus
			if best.Confidence > maxConfidence {
				best.Confidence = maxConfidence
			}
		}
		consolidated = append(consolidated, best)
	}
	return consolidated
}

// order sorts by source trust first, confidence second, so the list reads
// best-evidence-first and re-runs are stable
func (c *Consolidator) order(credits []models.Credit) {
	sort.SliceStable(credits, func(i, j int) bool {
		a, b := credits[i], credits[j]
		if ra, rb := c.sourceRank(a.Source), c.sourceRank(b.Source); ra != rb {
			return ra < rb
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.NormalizedName != b.NormalizedName {
			return a.NormalizedName < b.NormalizedName
		}
		return a.CreditType < b.CreditType
	})
}

func (c *Consolidator) sourceRank(source string) int {
	if rank, ok := c.cfg.SourcePriorities[strings.ToLower(source)]; ok {
		return rank
	}
	return defaultSourceRank
}

// seedConfidence derives a starting confidence from how much we trust the
// source, with a bump when the role text was an exact pattern match
func (c *Consolidator) seedConfidence(source string, exact bool) float64 {
	rank := c.sourceRank(source)
	confidence := 0.95 - 0.05*float64(rank-1)
	if confidence < 0.5 {
		confidence = 0.5
	}
	if exact {
		confidence += exactRoleBonus
	}
	if confidence > maxConfidence {
		confidence = maxConfidence
	}
	return confidence
}

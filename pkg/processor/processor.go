// Package processor handles provider intake messages. It is the write path
// from the scrapers into the canonical catalog: artist and track upserts plus
// credit consolidation. Duplicate detection and merging run separately.
package processor

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/chorus/internal/tracing"
	"github.com/Ramsey-B/chorus/pkg/kafka"
	"github.com/Ramsey-B/chorus/pkg/models"
	"github.com/Ramsey-B/chorus/pkg/normalizers"
)

type artistStore interface {
	Upsert(ctx context.Context, req models.CreateArtistRequest) (*models.Artist, error)
}

type trackStore interface {
	GetByNormalizedTitle(ctx context.Context, artistID string, normalizedTitle string) (*models.Track, error)
	Create(ctx context.Context, req models.CreateTrackRequest) (*models.Track, error)
}

type creditConsolidator interface {
	ConsolidateCredits(ctx context.Context, track *models.Track, rawEntries []models.RawCreditEntry) (*models.ConsolidationResult, error)
}

type graphProjector interface {
	UpsertArtist(ctx context.Context, artist *models.Artist) error
	UpsertTrack(ctx context.Context, track *models.Track) error
}

// Processor handles intake message processing
type Processor struct {
	artists      artistStore
	tracks       trackStore
	consolidator creditConsolidator
	projector    graphProjector
	logger       ectologger.Logger
}

// NewProcessor creates a new intake processor
func NewProcessor(artists artistStore, tracks trackStore, consolidator creditConsolidator, logger ectologger.Logger) *Processor {
	return &Processor{
		artists:      artists,
		tracks:       tracks,
		consolidator: consolidator,
		logger:       logger,
	}
}

// WithGraph enables projection of intake writes into the graph. Projection is
// best effort; Postgres stays the source of truth and the graph can be
// rebuilt by replay.
func (p *Processor) WithGraph(projector graphProjector) *Processor {
	p.projector = projector
	return p
}

// HandleMessage processes one intake message. It satisfies
// kafka.MessageHandler; a returned error leaves the message uncommitted so
// it is redelivered. Every write here is an upsert, so retries converge.
func (p *Processor) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.HandleMessage")
	defer span.End()

	intake := msg.Track
	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"source": intake.Source,
		"artist": intake.ArtistName,
		"title":  intake.Title,
	})

	artist, err := p.artists.Upsert(ctx, models.CreateArtistRequest{
		Name:        intake.ArtistName,
		ExternalIDs: marshalExternalIDs(intake.ExternalIDs),
	})
	if err != nil {
		log.WithError(err).Error("Failed to upsert artist")
		return err
	}

	track, created, err := p.upsertTrack(ctx, artist, intake)
	if err != nil {
		log.WithError(err).Error("Failed to upsert track")
		return err
	}

	entries := p.sourcedEntries(intake)
	result, err := p.consolidator.ConsolidateCredits(ctx, track, entries)
	if err != nil {
		log.WithError(err).WithFields(map[string]any{"track_id": track.ID}).Error("Failed to consolidate credits")
		return err
	}

	if p.projector != nil {
		if err := p.projector.UpsertArtist(ctx, artist); err != nil {
			log.WithError(err).Warn("Failed to project artist into graph")
		}
		if err := p.projector.UpsertTrack(ctx, track); err != nil {
			log.WithError(err).Warn("Failed to project track into graph")
		}
	}

	log.WithFields(map[string]any{
		"track_id":      track.ID,
		"track_created": created,
		"credits":       len(result.Credits),
		"skipped":       len(result.Skipped),
	}).Info("Processed intake message")

	return nil
}

// upsertTrack finds the artist's track by normalized title or creates it.
// Featuring notation embedded in the title is lifted into the featuring set
// so "Song (feat. X)" and "Song" land on the same canonical track.
func (p *Processor) upsertTrack(ctx context.Context, artist *models.Artist, intake *kafka.TrackIntakeMessage) (*models.Track, bool, error) {
	baseTitle, parsedFeaturing := normalizers.ExtractFeaturing(intake.Title)

	existing, err := p.tracks.GetByNormalizedTitle(ctx, artist.ID, normalizers.NormalizeTitle(baseTitle))
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	track, err := p.tracks.Create(ctx, models.CreateTrackRequest{
		Title:           baseTitle,
		ArtistID:        artist.ID,
		RawAlbumTitle:   intake.RawAlbumTitle,
		DurationSeconds: intake.DurationSeconds,
		Tempo:           intake.Tempo,
		ReleaseDate:     intake.ReleaseDate,
		ExternalIDs:     marshalExternalIDs(intake.ExternalIDs),
		Featuring:       mergeFeaturing(artist.Name, intake.Featuring, parsedFeaturing),
	})
	if err != nil {
		return nil, false, err
	}
	return track, true, nil
}

// sourcedEntries stamps the message source onto entries that omit one
func (p *Processor) sourcedEntries(intake *kafka.TrackIntakeMessage) []models.RawCreditEntry {
	entries := make([]models.RawCreditEntry, len(intake.Credits))
	copy(entries, intake.Credits)
	for i := range entries {
		if entries[i].Source == "" {
			entries[i].Source = intake.Source
		}
	}
	return entries
}

// mergeFeaturing unions declared and title-parsed featuring names, dropping
// duplicates and the primary artist's own name
func mergeFeaturing(artistName string, declared, parsed []string) []string {
	seen := map[string]bool{normalizers.NormalizePersonName(artistName): true}
	var names []string
	for _, name := range append(append([]string{}, declared...), parsed...) {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := normalizers.NormalizePersonName(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
	}
	return names
}

func marshalExternalIDs(ids map[string]string) json.RawMessage {
	if len(ids) == 0 {
		return nil
	}
	data, _ := json.Marshal(ids)
	return data
}

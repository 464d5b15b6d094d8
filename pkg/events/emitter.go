// Package events handles event emission for catalog lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/chorus/internal/tracing"
	"github.com/Ramsey-B/chorus/pkg/kafka"
	"github.com/Ramsey-B/chorus/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes catalog lifecycle events to the output topic
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

func mergedEventType(kind models.EntityKind) EventType {
	switch kind {
	case models.EntityKindArtist:
		return EventTypeArtistMerged
	case models.EntityKindAlbum:
		return EventTypeAlbumMerged
	case models.EntityKindCredit:
		return EventTypeCreditMerged
	default:
		return EventTypeTrackMerged
	}
}

// EmitEntityMerged emits a merged event for one applied merge decision.
// Dry-run and non-applied decisions never reach the output topic.
func (e *Emitter) EmitEntityMerged(ctx context.Context, kind models.EntityKind, decision *models.MergeDecision) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEntityMerged")
	defer span.End()

	if decision.Outcome != models.MergeOutcomeApplied || decision.DryRun {
		return nil
	}

	event := EntityMergedEvent{
		BaseEvent:   NewBaseEvent(mergedEventType(kind)),
		EntityKind:  string(kind),
		CandidateID: decision.CandidateID,
		Reason:      decision.Reason,
	}
	if decision.WinnerID != nil {
		event.WinnerID = *decision.WinnerID
	}
	if decision.LoserID != nil {
		event.LoserID = *decision.LoserID
	}

	data, _ := json.Marshal(event)

	if err := e.producer.PublishCatalogEvent(ctx, &kafka.CatalogEvent{
		EventType:  string(event.EventType),
		EntityID:   event.WinnerID,
		EntityKind: string(kind),
		Data:       data,
	}); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit merged event")
		return err
	}

	return nil
}

// EmitAlbumCreated emits an album.created event for a newly materialized album
func (e *Emitter) EmitAlbumCreated(ctx context.Context, album *models.Album) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitAlbumCreated")
	defer span.End()

	event := AlbumCreatedEvent{
		BaseEvent:  NewBaseEvent(EventTypeAlbumCreated),
		AlbumID:    album.ID,
		ArtistID:   album.ArtistID,
		Title:      album.Title,
		AlbumType:  string(album.AlbumType),
		TrackCount: album.TrackCount,
	}
	if album.ReleaseDate != nil {
		event.ReleaseDate = *album.ReleaseDate
	}

	data, _ := json.Marshal(event)

	if err := e.producer.PublishCatalogEvent(ctx, &kafka.CatalogEvent{
		EventType:  string(EventTypeAlbumCreated),
		EntityID:   album.ID,
		EntityKind: string(models.EntityKindAlbum),
		Data:       data,
	}); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit album.created event")
		return err
	}

	return nil
}

// EmitMatchCandidates emits match.candidate events for a detection run
func (e *Emitter) EmitMatchCandidates(ctx context.Context, candidates []models.MatchCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMatchCandidates")
	defer span.End()

	if len(candidates) == 0 {
		return nil
	}

	batch := make([]*kafka.CatalogEvent, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		event := MatchCandidateEvent{
			BaseEvent:   NewBaseEvent(EventTypeMatchCandidate),
			CandidateID: c.ID,
			EntityKind:  string(c.EntityKind),
			EntityAID:   c.EntityAID,
			EntityBID:   c.EntityBID,
			MatchType:   string(c.MatchType),
			Score:       c.Score,
			Confidence:  string(c.Confidence),
			Status:      c.Status,
		}
		data, _ := json.Marshal(event)
		batch = append(batch, &kafka.CatalogEvent{
			EventType:  string(EventTypeMatchCandidate),
			EntityID:   c.ID,
			EntityKind: string(c.EntityKind),
			Data:       data,
		})
	}

	if err := e.producer.PublishCatalogEvents(ctx, batch); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit match.candidate events")
		return err
	}

	return nil
}

// EmitMatchResolved emits the matching resolution event for a reviewed candidate
func (e *Emitter) EmitMatchResolved(ctx context.Context, candidate *models.MatchCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMatchResolved")
	defer span.End()

	var eventType EventType
	switch candidate.Status {
	case models.MatchCandidateStatusApproved, models.MatchCandidateStatusAutoMerged:
		eventType = EventTypeMatchApproved
	case models.MatchCandidateStatusRejected:
		eventType = EventTypeMatchRejected
	case models.MatchCandidateStatusDeferred:
		eventType = EventTypeMatchDeferred
	default:
		return nil
	}

	event := MatchResolvedEvent{
		BaseEvent:   NewBaseEvent(eventType),
		CandidateID: candidate.ID,
		EntityKind:  string(candidate.EntityKind),
		Status:      candidate.Status,
	}
	if candidate.ResolvedBy != nil {
		event.ResolvedBy = *candidate.ResolvedBy
	}

	data, _ := json.Marshal(event)

	if err := e.producer.PublishCatalogEvent(ctx, &kafka.CatalogEvent{
		EventType:  string(eventType),
		EntityID:   candidate.ID,
		EntityKind: string(candidate.EntityKind),
		Data:       data,
	}); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit match resolution event")
		return err
	}

	return nil
}

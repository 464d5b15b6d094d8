package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of event
type EventType string

const (
	// Merge events, one per entity kind
	EventTypeTrackMerged  EventType = "track.merged"
	EventTypeArtistMerged EventType = "artist.merged"
	EventTypeAlbumMerged  EventType = "album.merged"
	EventTypeCreditMerged EventType = "credit.merged"

	// Album resolution events
	EventTypeAlbumCreated EventType = "album.created"

	// Match events
	EventTypeMatchCandidate EventType = "match.candidate"
	EventTypeMatchApproved  EventType = "match.approved"
	EventTypeMatchRejected  EventType = "match.rejected"
	EventTypeMatchDeferred  EventType = "match.deferred"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EntityMergedEvent is emitted when two catalog entities are merged
type EntityMergedEvent struct {
	BaseEvent
	EntityKind  string `json:"entity_kind"`
	WinnerID    string `json:"winner_id"`
	LoserID     string `json:"loser_id"`
	CandidateID string `json:"candidate_id"`
	Reason      string `json:"reason,omitempty"`
}

// AlbumCreatedEvent is emitted when album resolution materializes an album
type AlbumCreatedEvent struct {
	BaseEvent
	AlbumID     string `json:"album_id"`
	ArtistID    string `json:"artist_id"`
	Title       string `json:"title"`
	AlbumType   string `json:"album_type"`
	TrackCount  int    `json:"track_count"`
	ReleaseDate string `json:"release_date,omitempty"`
}

// MatchCandidateEvent is emitted when a potential duplicate is identified
type MatchCandidateEvent struct {
	BaseEvent
	CandidateID string  `json:"candidate_id"`
	EntityKind  string  `json:"entity_kind"`
	EntityAID   string  `json:"entity_a_id"`
	EntityBID   string  `json:"entity_b_id"`
	MatchType   string  `json:"match_type"`
	Score       float64 `json:"score"`
	Confidence  string  `json:"confidence"`
	Status      string  `json:"status"`
}

// MatchResolvedEvent is emitted when a reviewer resolves a candidate
type MatchResolvedEvent struct {
	BaseEvent
	CandidateID string `json:"candidate_id"`
	EntityKind  string `json:"entity_kind"`
	Status      string `json:"status"`
	ResolvedBy  string `json:"resolved_by,omitempty"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}

package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ramsey-B/chorus/pkg/models"
)

// MessageTypeTrack is the intake message type for one extracted track
const MessageTypeTrack = "catalog.track"

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string
	TraceState  string

	// Parsed content
	Track *TrackIntakeMessage
}

// TrackIntakeMessage is one extracted track as published by a provider
// scraper. Everything except artist name, title and source is optional;
// the processor normalizes and consolidates on the way in.
type TrackIntakeMessage struct {
	Type            string                  `json:"type"`
	Source          string                  `json:"source"`
	ArtistName      string                  `json:"artist_name"`
	Title           string                  `json:"title"`
	RawAlbumTitle   *string                 `json:"raw_album_title,omitempty"`
	DurationSeconds *int                    `json:"duration_seconds,omitempty"`
	Tempo           *float64                `json:"tempo,omitempty"`
	ReleaseDate     *string                 `json:"release_date,omitempty"`
	Featuring       []string                `json:"featuring,omitempty"`
	ExternalIDs     map[string]string       `json:"external_ids,omitempty"`
	Credits         []models.RawCreditEntry `json:"credits,omitempty"`
	ExtractedAt     time.Time               `json:"extracted_at,omitempty"`
}

// Validate rejects messages the processor cannot act on
func (t *TrackIntakeMessage) Validate() error {
	if t.Type != "" && t.Type != MessageTypeTrack {
		return fmt.Errorf("unsupported message type %q", t.Type)
	}
	if t.ArtistName == "" {
		return fmt.Errorf("missing artist_name")
	}
	if t.Title == "" {
		return fmt.Errorf("missing title")
	}
	if t.Source == "" {
		return fmt.Errorf("missing source")
	}
	return nil
}

// ParseTrack parses the message value as a track intake message
func (m *IncomingMessage) ParseTrack() error {
	var msg TrackIntakeMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	m.Track = &msg
	return nil
}

// GetSource returns the provider that produced this message
func (m *IncomingMessage) GetSource() string {
	if m.Track != nil && m.Track.Source != "" {
		return m.Track.Source
	}
	return m.Headers["source"]
}

// GetMessageType returns the message type from the payload or headers
func (m *IncomingMessage) GetMessageType() string {
	if m.Track != nil && m.Track.Type != "" {
		return m.Track.Type
	}
	return m.Headers["type"]
}

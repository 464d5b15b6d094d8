package models

import (
	"encoding/json"
	"time"
)

// Artist is the single surviving record for a real-world artist
type Artist struct {
	ID             string          `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	NormalizedName string          `json:"normalized_name" db:"normalized_name"`
	ExternalIDs    json.RawMessage `json:"external_ids,omitempty" db:"external_ids"`
	Status         EntityStatus    `json:"status" db:"status"`
	MergedInto     *string         `json:"merged_into,omitempty" db:"merged_into"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// ExternalIDCount reports how many provider ids the artist carries
func (a *Artist) ExternalIDCount() int {
	if len(a.ExternalIDs) == 0 {
		return 0
	}
	var ids map[string]string
	if err := json.Unmarshal(a.ExternalIDs, &ids); err != nil {
		return 0
	}
	return len(ids)
}

// Track is the canonical record for one recording.
// Invariants: at most one album reference; the featuring set never contains
// the track's own primary artist name.
type Track struct {
	ID              string          `json:"id" db:"id"`
	Title           string          `json:"title" db:"title"`
	NormalizedTitle string          `json:"normalized_title" db:"normalized_title"`
	ArtistID        string          `json:"artist_id" db:"artist_id"`
	AlbumID         *string         `json:"album_id,omitempty" db:"album_id"`
	RawAlbumTitle   *string         `json:"raw_album_title,omitempty" db:"raw_album_title"`
	DurationSeconds *int            `json:"duration_seconds,omitempty" db:"duration_seconds"`
	Tempo           *float64        `json:"tempo,omitempty" db:"tempo"`
	ReleaseDate     *string         `json:"release_date,omitempty" db:"release_date"`
	ExternalIDs     json.RawMessage `json:"external_ids,omitempty" db:"external_ids"`
	Featuring       json.RawMessage `json:"featuring,omitempty" db:"featuring"`
	Status          EntityStatus    `json:"status" db:"status"`
	MergedInto      *string         `json:"merged_into,omitempty" db:"merged_into"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// FeaturingNames decodes the featuring JSON array. Nil on empty/bad data.
func (t *Track) FeaturingNames() []string {
	if len(t.Featuring) == 0 {
		return nil
	}
	var names []string
	if err := json.Unmarshal(t.Featuring, &names); err != nil {
		return nil
	}
	return names
}

// ExternalIDCount reports how many provider ids the track carries
func (t *Track) ExternalIDCount() int {
	if len(t.ExternalIDs) == 0 {
		return 0
	}
	var ids map[string]string
	if err := json.Unmarshal(t.ExternalIDs, &ids); err != nil {
		return 0
	}
	return len(ids)
}

// Album groups tracks. (normalized_title, artist_id) is unique among
// non-tombstoned albums.
type Album struct {
	ID              string       `json:"id" db:"id"`
	Title           string       `json:"title" db:"title"`
	NormalizedTitle string       `json:"normalized_title" db:"normalized_title"`
	ArtistID        string       `json:"artist_id" db:"artist_id"`
	AlbumType       AlbumType    `json:"album_type" db:"album_type"`
	ReleaseDate     *string      `json:"release_date,omitempty" db:"release_date"`
	ReleaseYear     *int         `json:"release_year,omitempty" db:"release_year"`
	TrackCount      int          `json:"track_count" db:"track_count"`
	TotalDuration   int          `json:"total_duration" db:"total_duration"`
	Status          EntityStatus `json:"status" db:"status"`
	MergedInto      *string      `json:"merged_into,omitempty" db:"merged_into"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}

// Credit is one attribution row for a track. After consolidation no two
// credits on the same track share (normalized_name, credit_type).
type Credit struct {
	ID             string         `json:"id" db:"id"`
	TrackID        string         `json:"track_id" db:"track_id"`
	PersonName     string         `json:"person_name" db:"person_name"`
	NormalizedName string         `json:"normalized_name" db:"normalized_name"`
	CreditType     CreditType     `json:"credit_type" db:"credit_type"`
	CreditCategory CreditCategory `json:"credit_category" db:"credit_category"`
	Detail         *string        `json:"detail,omitempty" db:"detail"`
	Source         string         `json:"source" db:"source"`
	Confidence     float64        `json:"confidence" db:"confidence"`
	RawText        *string        `json:"raw_text,omitempty" db:"raw_text"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// RawCreditEntry is an unconsolidated credit as produced by one extraction
// pass of one provider.
type RawCreditEntry struct {
	PersonName string  `json:"person_name" validate:"required"`
	RoleText   string  `json:"role_text"`
	Source     string  `json:"source" validate:"required"`
	Detail     *string `json:"detail,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// CreateArtistRequest creates a canonical artist
type CreateArtistRequest struct {
	Name        string          `json:"name" validate:"required"`
	ExternalIDs json.RawMessage `json:"external_ids,omitempty"`
}

// CreateTrackRequest creates a canonical track
type CreateTrackRequest struct {
	Title           string          `json:"title" validate:"required"`
	ArtistID        string          `json:"artist_id" validate:"required"`
	RawAlbumTitle   *string         `json:"raw_album_title,omitempty"`
	DurationSeconds *int            `json:"duration_seconds,omitempty"`
	Tempo           *float64        `json:"tempo,omitempty"`
	ReleaseDate     *string         `json:"release_date,omitempty"`
	ExternalIDs     json.RawMessage `json:"external_ids,omitempty"`
	Featuring       []string        `json:"featuring,omitempty"`
}

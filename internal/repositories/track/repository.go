package track

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/chorus/internal/database"
	"github.com/Ramsey-B/chorus/internal/tracing"
	"github.com/Ramsey-B/chorus/pkg/models"
	"github.com/Ramsey-B/chorus/pkg/normalizers"
)

var columns = []string{
	"id", "title", "normalized_title", "artist_id", "album_id", "raw_album_title",
	"duration_seconds", "tempo", "release_date", "external_ids", "featuring",
	"status", "merged_into", "created_at", "updated_at",
}

// Repository handles canonical track persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new track repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database handle for transaction control
func (r *Repository) DB() database.DB {
	return r.db
}

// Create creates a new canonical track
func (r *Repository) Create(ctx context.Context, req models.CreateTrackRequest) (*models.Track, error) {
	ctx, span := tracing.StartSpan(ctx, "track.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	var featuring json.RawMessage
	if len(req.Featuring) > 0 {
		featuring, _ = json.Marshal(req.Featuring)
	}

	track := &models.Track{
		ID:              uuid.New().String(),
		Title:           req.Title,
		NormalizedTitle: normalizers.NormalizeTitle(req.Title),
		ArtistID:        req.ArtistID,
		RawAlbumTitle:   req.RawAlbumTitle,
		DurationSeconds: req.DurationSeconds,
		Tempo:           req.Tempo,
		ReleaseDate:     req.ReleaseDate,
		ExternalIDs:     req.ExternalIDs,
		Featuring:       featuring,
		Status:          models.EntityStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("tracks")
	sb.Cols(columns...)
	sb.Values(track.ID, track.Title, track.NormalizedTitle, track.ArtistID, track.AlbumID, track.RawAlbumTitle,
		track.DurationSeconds, track.Tempo, track.ReleaseDate, track.ExternalIDs, track.Featuring,
		track.Status, track.MergedInto, track.CreatedAt, track.UpdatedAt)

	query, args := sb.Build()
	if _, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"track_id": track.ID}).Error("Failed to create track")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create track")
	}

	return track, nil
}

// Get retrieves a track by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Track, error) {
	ctx, span := tracing.StartSpan(ctx, "track.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("tracks")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var track models.Track
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &track, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("track %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get track")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get track")
	}

	return &track, nil
}

// GetByNormalizedTitle looks up an active track by (artist, normalized
// title). Returns nil when nothing matches.
func (r *Repository) GetByNormalizedTitle(ctx context.Context, artistID string, normalizedTitle string) (*models.Track, error) {
	ctx, span := tracing.StartSpan(ctx, "track.Repository.GetByNormalizedTitle")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("tracks")
	sb.Where(
		sb.Equal("artist_id", artistID),
		sb.Equal("normalized_title", normalizedTitle),
		sb.Equal("status", models.EntityStatusActive),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var track models.Track
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &track, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get track by normalized title")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get track")
	}

	return &track, nil
}

// ListByArtist retrieves all active tracks owned by an artist, in stable
// id order so detection output is diff-able
func (r *Repository) ListByArtist(ctx context.Context, artistID string) ([]models.Track, error) {
	ctx, span := tracing.StartSpan(ctx, "track.Repository.ListByArtist")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("tracks")
	sb.Where(
		sb.Equal("artist_id", artistID),
		sb.Equal("status", models.EntityStatusActive),
	)
	sb.OrderBy("id")

	query, args := sb.Build()
	var tracks []models.Track
	if err := database.ExecutorFor(ctx, r.db).SelectContext(ctx, &tracks, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list tracks by artist")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list tracks")
	}

	return tracks, nil
}

// ListByIDs retrieves tracks by explicit id list
func (r *Repository) ListByIDs(ctx context.Context, ids []string) ([]models.Track, error) {
	ctx, span := tracing.StartSpan(ctx, "track.Repository.ListByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("tracks")
	sb.Where(sb.In("id", idsToAny(ids)...))
	sb.OrderBy("id")

	query, args := sb.Build()
	var tracks []models.Track
	if err := database.ExecutorFor(ctx, r.db).SelectContext(ctx, &tracks, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list tracks by ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list tracks")
	}

	return tracks, nil
}

// Tombstone marks a losing track and records the winner it merged into.
// External references keep pointing at the tombstone so downstream
// consumers can detect and resolve the merge explicitly.
func (r *Repository) Tombstone(ctx context.Context, id string, mergedInto string) error {
	ctx, span := tracing.StartSpan(ctx, "track.Repository.Tombstone")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("tracks")
	sb.Set(
		sb.Assign("status", models.EntityStatusTombstoned),
		sb.Assign("merged_into", mergedInto),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("status", models.EntityStatusActive),
	)

	query, args := sb.Build()
	result, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to tombstone track")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to tombstone track")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("active track %s not found", id))
	}

	return nil
}

// ReassignArtist re-parents all active tracks of one artist to another.
// Used by artist merges before the losing artist is tombstoned.
func (r *Repository) ReassignArtist(ctx context.Context, fromArtistID string, toArtistID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "track.Repository.ReassignArtist")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("tracks")
	sb.Set(
		sb.Assign("artist_id", toArtistID),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("artist_id", fromArtistID),
		sb.Equal("status", models.EntityStatusActive),
	)

	query, args := sb.Build()
	result, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to reassign tracks")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reassign tracks")
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// SetAlbumIfUnset points a track at an album only when it has no album
// reference yet, keeping album resolution idempotent
func (r *Repository) SetAlbumIfUnset(ctx context.Context, trackID string, albumID string) error {
	ctx, span := tracing.StartSpan(ctx, "track.Repository.SetAlbumIfUnset")
	defer span.End()

	query := `
		UPDATE tracks
		SET album_id = $1, updated_at = $2
		WHERE id = $3 AND album_id IS NULL
	`

	if _, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query, albumID, time.Now().UTC(), trackID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to set track album")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set track album")
	}

	return nil
}

// CoverageCounts returns total active tracks and how many carry an album
// reference, for the album coverage report
func (r *Repository) CoverageCounts(ctx context.Context) (total int, withAlbum int, err error) {
	ctx, span := tracing.StartSpan(ctx, "track.Repository.CoverageCounts")
	defer span.End()

	query := `
		SELECT COUNT(*) AS total, COUNT(album_id) AS with_album
		FROM tracks
		WHERE status = $1
	`

	var row struct {
		Total     int `db:"total"`
		WithAlbum int `db:"with_album"`
	}
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &row, query, models.EntityStatusActive); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count track coverage")
		return 0, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count tracks")
	}

	return row.Total, row.WithAlbum, nil
}

func idsToAny(ids []string) []any {
	result := make([]any, len(ids))
	for i, id := range ids {
		result[i] = id
	}
	return result
}

package album

import (
	"context"
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
)

var columns = []string{
	"id", "title", "normalized_title", "artist_id", "album_type", "release_date",
	"release_year", "track_count", "total_duration", "status", "merged_into",
	"created_at", "updated_at",
}

// Repository handles canonical album persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new album repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create persists a resolver-built album
func (r *Repository) Create(ctx context.Context, album *models.Album) (*models.Album, error) {
	ctx, span := tracing.StartSpan(ctx, "album.Repository.Create")
	defer span.End()

	if album.ID == "" {
		album.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	album.Status = models.EntityStatusActive
	album.CreatedAt = now
	album.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("albums")
	sb.Cols(columns...)
	sb.Values(album.ID, album.Title, album.NormalizedTitle, album.ArtistID, album.AlbumType, album.ReleaseDate,
		album.ReleaseYear, album.TrackCount, album.TotalDuration, album.Status, album.MergedInto,
		album.CreatedAt, album.UpdatedAt)

	query, args := sb.Build()
	if _, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"album_id": album.ID}).Error("Failed to create album")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create album")
	}

	return album, nil
}

// Get retrieves an album by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Album, error) {
	ctx, span := tracing.StartSpan(ctx, "album.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("albums")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var album models.Album
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &album, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("album %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get album")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get album")
	}

	return &album, nil
}

// GetByNormalizedTitle looks up an active album by (normalized title,
// artist). The resolver checks this before creating anything, which is
// what makes re-runs idempotent. Returns nil when nothing matches.
func (r *Repository) GetByNormalizedTitle(ctx context.Context, artistID string, normalizedTitle string) (*models.Album, error) {
	ctx, span := tracing.StartSpan(ctx, "album.Repository.GetByNormalizedTitle")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("albums")
	sb.Where(
		sb.Equal("artist_id", artistID),
		sb.Equal("normalized_title", normalizedTitle),
		sb.Equal("status", models.EntityStatusActive),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var album models.Album
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &album, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get album by normalized title")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get album")
	}

	return &album, nil
}

// ListByArtist retrieves all active albums for an artist
func (r *Repository) ListByArtist(ctx context.Context, artistID string) ([]models.Album, error) {
	ctx, span := tracing.StartSpan(ctx, "album.Repository.ListByArtist")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("albums")
	sb.Where(
		sb.Equal("artist_id", artistID),
		sb.Equal("status", models.EntityStatusActive),
	)
	sb.OrderBy("id")

	query, args := sb.Build()
	var albums []models.Album
	if err := database.ExecutorFor(ctx, r.db).SelectContext(ctx, &albums, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list albums by artist")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list albums")
	}

	return albums, nil
}

// UpdateAggregates refreshes derived album metadata after tracks join it
func (r *Repository) UpdateAggregates(ctx context.Context, id string, trackCount int, totalDuration int, releaseDate *string, releaseYear *int) error {
	ctx, span := tracing.StartSpan(ctx, "album.Repository.UpdateAggregates")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("albums")
	sb.Set(
		sb.Assign("track_count", trackCount),
		sb.Assign("total_duration", totalDuration),
		sb.Assign("release_date", releaseDate),
		sb.Assign("release_year", releaseYear),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update album aggregates")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update album")
	}

	return nil
}

// Tombstone marks a losing album and records the winner it merged into
func (r *Repository) Tombstone(ctx context.Context, id string, mergedInto string) error {
	ctx, span := tracing.StartSpan(ctx, "album.Repository.Tombstone")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("albums")
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
		r.logger.WithContext(ctx).WithError(err).Error("Failed to tombstone album")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to tombstone album")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("active album %s not found", id))
	}

	return nil
}

// CountsByType returns active album counts grouped by album type, plus the
// tombstoned count, for the coverage report
func (r *Repository) CountsByType(ctx context.Context) (map[models.AlbumType]int, int, error) {
	ctx, span := tracing.StartSpan(ctx, "album.Repository.CountsByType")
	defer span.End()

	query := `
		SELECT album_type, status, COUNT(*) AS count
		FROM albums
		GROUP BY album_type, status
	`

	var rows []struct {
		AlbumType models.AlbumType    `db:"album_type"`
		Status    models.EntityStatus `db:"status"`
		Count     int                 `db:"count"`
	}
	if err := database.ExecutorFor(ctx, r.db).SelectContext(ctx, &rows, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count albums by type")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count albums")
	}

	byType := make(map[models.AlbumType]int)
	tombstoned := 0
	for _, row := range rows {
		if row.Status == models.EntityStatusTombstoned {
			tombstoned += row.Count
			continue
		}
		byType[row.AlbumType] += row.Count
	}

	return byType, tombstoned, nil
}

package artist

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
	"github.com/Ramsey-B/chorus/pkg/normalizers"
)

var columns = []string{"id", "name", "normalized_name", "external_ids", "status", "merged_into", "created_at", "updated_at"}

// Repository handles canonical artist persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new artist repository
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

// Create creates a new canonical artist
func (r *Repository) Create(ctx context.Context, req models.CreateArtistRequest) (*models.Artist, error) {
	ctx, span := tracing.StartSpan(ctx, "artist.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	artist := &models.Artist{
		ID:             uuid.New().String(),
		Name:           req.Name,
		NormalizedName: normalizers.NormalizePersonName(req.Name),
		ExternalIDs:    req.ExternalIDs,
		Status:         models.EntityStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("artists")
	sb.Cols(columns...)
	sb.Values(artist.ID, artist.Name, artist.NormalizedName, artist.ExternalIDs, artist.Status, artist.MergedInto, artist.CreatedAt, artist.UpdatedAt)

	query, args := sb.Build()
	if _, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"artist_id": artist.ID}).Error("Failed to create artist")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create artist")
	}

	return artist, nil
}

// Get retrieves an artist by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Artist, error) {
	ctx, span := tracing.StartSpan(ctx, "artist.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("artists")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var artist models.Artist
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &artist, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("artist %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get artist")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get artist")
	}

	return &artist, nil
}

// GetByNormalizedName looks up an active artist by its normalized name.
// Returns nil when no active artist matches.
func (r *Repository) GetByNormalizedName(ctx context.Context, normalizedName string) (*models.Artist, error) {
	ctx, span := tracing.StartSpan(ctx, "artist.Repository.GetByNormalizedName")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("artists")
	sb.Where(
		sb.Equal("normalized_name", normalizedName),
		sb.Equal("status", models.EntityStatusActive),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var artist models.Artist
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &artist, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get artist by normalized name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get artist")
	}

	return &artist, nil
}

// Upsert returns the active artist with the same normalized name, creating
// it when absent. Keeps normalized names unique among active artists.
func (r *Repository) Upsert(ctx context.Context, req models.CreateArtistRequest) (*models.Artist, error) {
	ctx, span := tracing.StartSpan(ctx, "artist.Repository.Upsert")
	defer span.End()

	existing, err := r.GetByNormalizedName(ctx, normalizers.NormalizePersonName(req.Name))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	return r.Create(ctx, req)
}

// ListByIDs retrieves artists by explicit id list
func (r *Repository) ListByIDs(ctx context.Context, ids []string) ([]models.Artist, error) {
	ctx, span := tracing.StartSpan(ctx, "artist.Repository.ListByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("artists")
	sb.Where(sb.In("id", idsToAny(ids)...))
	sb.OrderBy("id")

	query, args := sb.Build()
	var artists []models.Artist
	if err := database.ExecutorFor(ctx, r.db).SelectContext(ctx, &artists, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list artists by ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list artists")
	}

	return artists, nil
}

// Tombstone marks a losing artist and records the winner it merged into
func (r *Repository) Tombstone(ctx context.Context, id string, mergedInto string) error {
	ctx, span := tracing.StartSpan(ctx, "artist.Repository.Tombstone")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("artists")
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
		r.logger.WithContext(ctx).WithError(err).Error("Failed to tombstone artist")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to tombstone artist")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("active artist %s not found", id))
	}

	return nil
}

func idsToAny(ids []string) []any {
	result := make([]any, len(ids))
	for i, id := range ids {
		result[i] = id
	}
	return result
}

package credit

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
	"id", "track_id", "person_name", "normalized_name", "credit_type", "credit_category",
	"detail", "source", "confidence", "raw_text", "created_at", "updated_at",
}

// Repository handles credit persistence. Credits have no external
// referents, so duplicates are hard-deleted rather than tombstoned.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new credit repository
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

// ListByTrack retrieves all credits for a track in stable order
func (r *Repository) ListByTrack(ctx context.Context, trackID string) ([]models.Credit, error) {
	ctx, span := tracing.StartSpan(ctx, "credit.Repository.ListByTrack")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("credits")
	sb.Where(sb.Equal("track_id", trackID))
	sb.OrderBy("id")

	query, args := sb.Build()
	var credits []models.Credit
	if err := database.ExecutorFor(ctx, r.db).SelectContext(ctx, &credits, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list credits by track")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list credits")
	}

	return credits, nil
}

// Get retrieves a credit by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Credit, error) {
	ctx, span := tracing.StartSpan(ctx, "credit.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("credits")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var credit models.Credit
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &credit, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("credit %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get credit")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get credit")
	}

	return &credit, nil
}

// ReplaceForTrack swaps a track's credit list for the consolidated one.
// Runs inside the caller's context transaction when one is open.
func (r *Repository) ReplaceForTrack(ctx context.Context, trackID string, credits []models.Credit) ([]models.Credit, error) {
	ctx, span := tracing.StartSpan(ctx, "credit.Repository.ReplaceForTrack")
	defer span.End()

	exec := database.ExecutorFor(ctx, r.db)

	if _, err := exec.ExecContext(ctx, "DELETE FROM credits WHERE track_id = $1", trackID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear track credits")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace credits")
	}

	if len(credits) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("credits")
	sb.Cols(columns...)
	for i := range credits {
		c := &credits[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.TrackID = trackID
		c.CreatedAt = now
		c.UpdatedAt = now
		sb.Values(c.ID, c.TrackID, c.PersonName, c.NormalizedName, c.CreditType, c.CreditCategory,
			c.Detail, c.Source, c.Confidence, c.RawText, c.CreatedAt, c.UpdatedAt)
	}

	query, args := sb.Build()
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"track_id": trackID}).Error("Failed to insert consolidated credits")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace credits")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"track_id": trackID, "count": len(credits)}).Debug("Replaced track credits")
	return credits, nil
}

// Delete hard-deletes a duplicate credit row
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "credit.Repository.Delete")
	defer span.End()

	result, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, "DELETE FROM credits WHERE id = $1", id)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete credit")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete credit")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("credit %s not found", id))
	}

	return nil
}

// CountByTrack returns how many credits a track carries, used by merge
// winner selection
func (r *Repository) CountByTrack(ctx context.Context, trackID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "credit.Repository.CountByTrack")
	defer span.End()

	var count int
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &count, "SELECT COUNT(*) FROM credits WHERE track_id = $1", trackID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count credits")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count credits")
	}

	return count, nil
}

// QualityStats aggregates credit counts for the quality report
func (r *Repository) QualityStats(ctx context.Context) (total int, tracksWithCredits int, byCategory map[models.CreditCategory]int, bySource map[string]int, histogram map[string]int, err error) {
	ctx, span := tracing.StartSpan(ctx, "credit.Repository.QualityStats")
	defer span.End()

	query := `
		SELECT credit_category, source,
			CASE
				WHEN confidence >= 0.9 THEN '0.9+'
				WHEN confidence >= 0.8 THEN '0.8-0.9'
				WHEN confidence >= 0.7 THEN '0.7-0.8'
				ELSE '<0.7'
			END AS bucket,
			COUNT(*) AS count
		FROM credits
		GROUP BY credit_category, source, bucket
	`

	var rows []struct {
		Category models.CreditCategory `db:"credit_category"`
		Source   string                `db:"source"`
		Bucket   string                `db:"bucket"`
		Count    int                   `db:"count"`
	}
	if err := database.ExecutorFor(ctx, r.db).SelectContext(ctx, &rows, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to aggregate credit stats")
		return 0, 0, nil, nil, nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to aggregate credits")
	}

	byCategory = make(map[models.CreditCategory]int)
	bySource = make(map[string]int)
	histogram = make(map[string]int)
	for _, row := range rows {
		total += row.Count
		byCategory[row.Category] += row.Count
		bySource[row.Source] += row.Count
		histogram[row.Bucket] += row.Count
	}

	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &tracksWithCredits, "SELECT COUNT(DISTINCT track_id) FROM credits"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count tracks with credits")
		return 0, 0, nil, nil, nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to aggregate credits")
	}

	return total, tracksWithCredits, byCategory, bySource, histogram, nil
}

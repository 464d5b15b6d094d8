package matchcandidate

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
	"id", "entity_kind", "entity_a_id", "entity_b_id", "match_type", "score",
	"confidence", "evidence", "suggested_action", "status",
	"created_at", "updated_at", "resolved_at", "resolved_by",
}

// Repository handles match candidate persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match candidate repository
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

// Create creates a new match candidate
func (r *Repository) Create(ctx context.Context, candidate *models.MatchCandidate) (*models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.Create")
	defer span.End()

	if candidate.ID == "" {
		candidate.ID = uuid.New().String()
	}
	candidate.CreatedAt = time.Now().UTC()
	candidate.UpdatedAt = candidate.CreatedAt
	if candidate.Status == "" {
		candidate.Status = models.MatchCandidateStatusPending
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("match_candidates")
	sb.Cols(columns[:12]...)
	sb.Values(candidate.ID, candidate.EntityKind, candidate.EntityAID, candidate.EntityBID, candidate.MatchType, candidate.Score,
		candidate.Confidence, candidate.Evidence, candidate.SuggestedAction, candidate.Status,
		candidate.CreatedAt, candidate.UpdatedAt)

	query, args := sb.Build()
	if _, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": candidate.ID}).Error("Failed to create match candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create match candidate")
	}

	return candidate, nil
}

// CreateBatch upserts candidates from a detection run. Pairs already known
// keep their identity; the fresh score and evidence win so a resolved
// candidate is never reopened but an unresolved one stays current.
func (r *Repository) CreateBatch(ctx context.Context, candidates []*models.MatchCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.CreateBatch")
	defer span.End()

	if len(candidates) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("match_candidates")
	sb.Cols(columns[:12]...)

	for _, c := range candidates {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.CreatedAt = now
		c.UpdatedAt = now
		if c.Status == "" {
			c.Status = models.MatchCandidateStatusPending
		}
		sb.Values(c.ID, c.EntityKind, c.EntityAID, c.EntityBID, c.MatchType, c.Score,
			c.Confidence, c.Evidence, c.SuggestedAction, c.Status, c.CreatedAt, c.UpdatedAt)
	}

	query, args := sb.Build()
	query += ` ON CONFLICT (entity_kind, entity_a_id, entity_b_id) DO UPDATE
		SET match_type = EXCLUDED.match_type,
			score = EXCLUDED.score,
			confidence = EXCLUDED.confidence,
			evidence = EXCLUDED.evidence,
			suggested_action = EXCLUDED.suggested_action,
			updated_at = EXCLUDED.updated_at
		WHERE match_candidates.status = 'pending'`

	if _, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create match candidates batch")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create match candidates")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(candidates)}).Debug("Created match candidates batch")
	return nil
}

// Get retrieves a match candidate by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("match_candidates")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var candidate models.MatchCandidate
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &candidate, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("match candidate %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match candidate")
	}

	return &candidate, nil
}

// GetByEntityPair gets an existing candidate between two entities regardless
// of pair order. Returns nil when none exists.
func (r *Repository) GetByEntityPair(ctx context.Context, kind models.EntityKind, entityA, entityB string) (*models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.GetByEntityPair")
	defer span.End()

	query := `
		SELECT id, entity_kind, entity_a_id, entity_b_id, match_type, score, confidence, evidence, suggested_action, status, created_at, updated_at, resolved_at, resolved_by
		FROM match_candidates
		WHERE entity_kind = $1
		AND ((entity_a_id = $2 AND entity_b_id = $3) OR (entity_a_id = $3 AND entity_b_id = $2))
		LIMIT 1
	`

	var candidate models.MatchCandidate
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &candidate, query, kind, entityA, entityB); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match candidate by entity pair")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match candidate")
	}

	return &candidate, nil
}

// ListPending retrieves pending match candidates for review, best first
func (r *Repository) ListPending(ctx context.Context, kind models.EntityKind, limit int) ([]models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.ListPending")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("match_candidates")
	where := []string{sb.Equal("status", models.MatchCandidateStatusPending)}
	if kind != "" {
		where = append(where, sb.Equal("entity_kind", kind))
	}
	sb.Where(where...)
	sb.OrderBy("score DESC", "created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var candidates []models.MatchCandidate
	if err := database.ExecutorFor(ctx, r.db).SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pending match candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pending match candidates")
	}

	return candidates, nil
}

// ListByEntity retrieves match candidates involving a specific entity
func (r *Repository) ListByEntity(ctx context.Context, entityID string, status string) ([]models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.ListByEntity")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("match_candidates")

	where := []string{
		sb.Or(sb.Equal("entity_a_id", entityID), sb.Equal("entity_b_id", entityID)),
	}
	if status != "" {
		where = append(where, sb.Equal("status", status))
	}
	sb.Where(where...)
	sb.OrderBy("score DESC", "created_at DESC")

	query, args := sb.Build()
	var candidates []models.MatchCandidate
	if err := database.ExecutorFor(ctx, r.db).SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list match candidates by entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list match candidates")
	}

	return candidates, nil
}

// UpdateStatusByID resolves a match candidate by ID
func (r *Repository) UpdateStatusByID(ctx context.Context, id string, status string, resolvedBy *string) error {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.UpdateStatusByID")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("match_candidates")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("resolved_at", now),
		sb.Assign("resolved_by", resolvedBy),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update match candidate status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update match candidate status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("match candidate %s not found", id))
	}

	return nil
}

// MarkAutoMerged marks candidates the merge engine resolved without review
func (r *Repository) MarkAutoMerged(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.MarkAutoMerged")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("match_candidates")
	sb.Set(
		sb.Assign("status", models.MatchCandidateStatusAutoMerged),
		sb.Assign("resolved_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.In("id", idsToAny(ids)...))

	query, args := sb.Build()
	if _, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark candidates as auto-merged")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark candidates as auto-merged")
	}

	return nil
}

// RejectOpenForEntity rejects unresolved candidates that still reference a
// tombstoned entity so they cannot resurrect it through a later merge
func (r *Repository) RejectOpenForEntity(ctx context.Context, entityID string, reason string) error {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.RejectOpenForEntity")
	defer span.End()

	now := time.Now().UTC()
	query := `
		UPDATE match_candidates
		SET status = $1, resolved_at = $2, resolved_by = $3, updated_at = $2
		WHERE status = $4
		AND (entity_a_id = $5 OR entity_b_id = $5)
	`

	if _, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		models.MatchCandidateStatusRejected, now, reason, models.MatchCandidateStatusPending, entityID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to reject open candidates for entity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reject match candidates")
	}

	return nil
}

// CandidateCount is one aggregation bucket for the duplicate report
type CandidateCount struct {
	MatchType  models.MatchType      `db:"match_type"`
	Confidence models.ConfidenceTier `db:"confidence"`
	Status     string                `db:"status"`
	Count      int                   `db:"count"`
}

// Counts aggregates candidates by match type, confidence tier, and status
func (r *Repository) Counts(ctx context.Context) ([]CandidateCount, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.Counts")
	defer span.End()

	query := `
		SELECT match_type, confidence, status, COUNT(*) AS count
		FROM match_candidates
		GROUP BY match_type, confidence, status
	`

	var rows []CandidateCount
	if err := database.ExecutorFor(ctx, r.db).SelectContext(ctx, &rows, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count match candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count match candidates")
	}

	return rows, nil
}

func idsToAny(ids []string) []any {
	result := make([]any, len(ids))
	for i, id := range ids {
		result[i] = id
	}
	return result
}

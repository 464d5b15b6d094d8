package mergedecision

import (
	"context"
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

var columns = []string{"id", "candidate_id", "outcome", "winner_id", "loser_id", "dry_run", "reason", "decided_at"}

// Repository persists the merge engine's audit trail
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge decision repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create records one merge decision
func (r *Repository) Create(ctx context.Context, decision *models.MergeDecision) (*models.MergeDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "mergedecision.Repository.Create")
	defer span.End()

	if decision.ID == "" {
		decision.ID = uuid.New().String()
	}
	if decision.DecidedAt.IsZero() {
		decision.DecidedAt = time.Now().UTC()
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("merge_decisions")
	sb.Cols(columns...)
	sb.Values(decision.ID, decision.CandidateID, decision.Outcome, decision.WinnerID, decision.LoserID, decision.DryRun, decision.Reason, decision.DecidedAt)

	query, args := sb.Build()
	if _, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": decision.CandidateID}).Error("Failed to create merge decision")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge decision")
	}

	return decision, nil
}

// ListByCandidate retrieves the decision history for one candidate
func (r *Repository) ListByCandidate(ctx context.Context, candidateID string) ([]models.MergeDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "mergedecision.Repository.ListByCandidate")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_decisions")
	sb.Where(sb.Equal("candidate_id", candidateID))
	sb.OrderBy("decided_at DESC")

	query, args := sb.Build()
	var decisions []models.MergeDecision
	if err := database.ExecutorFor(ctx, r.db).SelectContext(ctx, &decisions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge decisions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge decisions")
	}

	return decisions, nil
}

// ListRecent retrieves the latest decisions across all candidates
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]models.MergeDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "mergedecision.Repository.ListRecent")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_decisions")
	sb.OrderBy("decided_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var decisions []models.MergeDecision
	if err := database.ExecutorFor(ctx, r.db).SelectContext(ctx, &decisions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list recent merge decisions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge decisions")
	}

	return decisions, nil
}

// OutcomeCounts aggregates non-dry-run decisions for the duplicate report
func (r *Repository) OutcomeCounts(ctx context.Context) (map[models.MergeOutcome]int, error) {
	ctx, span := tracing.StartSpan(ctx, "mergedecision.Repository.OutcomeCounts")
	defer span.End()

	query := `
		SELECT outcome, COUNT(*) AS count
		FROM merge_decisions
		WHERE dry_run = false
		GROUP BY outcome
	`

	var rows []struct {
		Outcome models.MergeOutcome `db:"outcome"`
		Count   int                 `db:"count"`
	}
	if err := database.ExecutorFor(ctx, r.db).SelectContext(ctx, &rows, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count merge outcomes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count merge decisions")
	}

	counts := make(map[models.MergeOutcome]int)
	for _, row := range rows {
		counts[row.Outcome] += row.Count
	}

	return counts, nil
}

package matchcandidate

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/chorus/internal/repositories/matchcandidate"
	"github.com/Ramsey-B/chorus/internal/tracing"
	"github.com/Ramsey-B/chorus/pkg/events"
	graphpkg "github.com/Ramsey-B/chorus/pkg/graph"
	"github.com/Ramsey-B/chorus/pkg/merging"
	"github.com/Ramsey-B/chorus/pkg/models"
)

// Register registers match candidate routes
func Register(g *echo.Group) {
	g.GET("", ListMatchCandidates)
	g.GET("/:id", GetMatchCandidate)
	g.POST("/:id/approve", ApproveMatchCandidate)
	g.POST("/:id/reject", RejectMatchCandidate)
	g.POST("/:id/defer", DeferMatchCandidate)
}

// ListMatchCandidates lists pending candidates ranked by score
func ListMatchCandidates(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "matchcandidate_handler.List")
	defer span.End()

	kind := models.EntityKind(c.QueryParam("kind"))
	entityID := c.QueryParam("entity_id")
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, repo, err := ectoinject.GetContext[*matchcandidate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	var candidates []models.MatchCandidate
	if entityID != "" {
		candidates, err = repo.ListByEntity(ctx, entityID, c.QueryParam("status"))
	} else {
		candidates, err = repo.ListPending(ctx, kind, limit)
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, candidates)
}

// GetMatchCandidate gets a match candidate by id
func GetMatchCandidate(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "matchcandidate_handler.Get")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*matchcandidate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidate, err := repo.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, candidate)
}

// ResolveRequest carries reviewer identity for a resolution
type ResolveRequest struct {
	ResolvedBy string `json:"resolved_by,omitempty"`
}

// loadPendingCandidate binds the resolve request and fetches the candidate,
// rejecting already-resolved ones with 409
func loadPendingCandidate(c echo.Context, ctx context.Context) (context.Context, *models.MatchCandidate, string, error) {
	var req ResolveRequest
	_ = c.Bind(&req)
	resolvedBy := req.ResolvedBy
	if resolvedBy == "" {
		resolvedBy = "reviewer"
	}

	ctx, repo, err := ectoinject.GetContext[*matchcandidate.Repository](ctx)
	if err != nil {
		return ctx, nil, "", httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidate, err := repo.Get(ctx, c.Param("id"))
	if err != nil {
		return ctx, nil, "", err
	}
	if candidate.Status != models.MatchCandidateStatusPending {
		return ctx, nil, "", httperror.NewHTTPError(http.StatusConflict, "candidate is already resolved")
	}

	return ctx, candidate, resolvedBy, nil
}

// publishResolution emits the resolution event and, for applied merges,
// projects the tombstone into the graph. Best effort on both counts.
func publishResolution(ctx context.Context, candidate *models.MatchCandidate, status string, resolvedBy string, decision *models.MergeDecision) {
	resolved := *candidate
	resolved.Status = status
	resolved.ResolvedBy = &resolvedBy

	if ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx); err == nil {
		_ = emitter.EmitMatchResolved(ctx, &resolved)
		if decision != nil {
			_ = emitter.EmitEntityMerged(ctx, candidate.EntityKind, decision)
		}
	}

	if decision == nil || decision.Outcome != models.MergeOutcomeApplied || decision.DryRun {
		return
	}
	if ctx, projector, err := ectoinject.GetContext[*graphpkg.Projector](ctx); err == nil {
		if decision.WinnerID != nil && decision.LoserID != nil {
			_ = projector.RecordMerge(ctx, candidate.EntityKind, *decision.WinnerID, *decision.LoserID)
		}
	}
}

// ApproveMatchCandidate approves a candidate and applies the merge
func ApproveMatchCandidate(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "matchcandidate_handler.Approve")
	defer span.End()

	ctx, candidate, resolvedBy, err := loadPendingCandidate(c, ctx)
	if err != nil {
		return err
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	decision := engine.Approve(ctx, candidate, resolvedBy)

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"candidate_id": candidate.ID,
			"outcome":      decision.Outcome,
			"resolved_by":  resolvedBy,
		}).Info("Approved match candidate")
	}

	publishResolution(ctx, candidate, models.MatchCandidateStatusApproved, resolvedBy, &decision)

	return c.JSON(http.StatusOK, decision)
}

// RejectMatchCandidate marks a candidate as not-a-duplicate
func RejectMatchCandidate(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "matchcandidate_handler.Reject")
	defer span.End()

	ctx, candidate, resolvedBy, err := loadPendingCandidate(c, ctx)
	if err != nil {
		return err
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	decision, err := engine.Reject(ctx, candidate, resolvedBy)
	if err != nil {
		return err
	}

	publishResolution(ctx, candidate, models.MatchCandidateStatusRejected, resolvedBy, nil)

	return c.JSON(http.StatusOK, decision)
}

// DeferMatchCandidate pushes a candidate back for later review
func DeferMatchCandidate(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "matchcandidate_handler.Defer")
	defer span.End()

	ctx, candidate, resolvedBy, err := loadPendingCandidate(c, ctx)
	if err != nil {
		return err
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	decision, err := engine.Defer(ctx, candidate, resolvedBy)
	if err != nil {
		return err
	}

	publishResolution(ctx, candidate, models.MatchCandidateStatusDeferred, resolvedBy, nil)

	return c.JSON(http.StatusOK, decision)
}

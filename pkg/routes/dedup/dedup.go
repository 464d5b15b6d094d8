// Package dedup exposes duplicate detection and merge runs over HTTP
package dedup

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/chorus/internal/repositories/matchcandidate"
	"github.com/Ramsey-B/chorus/internal/tracing"
	dedupsvc "github.com/Ramsey-B/chorus/pkg/dedup"
	"github.com/Ramsey-B/chorus/pkg/events"
	graphpkg "github.com/Ramsey-B/chorus/pkg/graph"
	"github.com/Ramsey-B/chorus/pkg/merging"
	"github.com/Ramsey-B/chorus/pkg/models"
)

var validate = validator.New()

// Register registers dedup routes
func Register(g *echo.Group) {
	g.POST("/detect", Detect)
	g.POST("/merge", Merge)
}

// DetectRequest scopes one detection run
type DetectRequest struct {
	Kind      models.EntityKind `json:"kind" validate:"required"`
	ArtistID  string            `json:"artist_id,omitempty"`
	ArtistIDs []string          `json:"artist_ids,omitempty"`
	EntityIDs []string          `json:"entity_ids,omitempty"`
	TrackID   string            `json:"track_id,omitempty"`
}

// Detect runs duplicate detection for one scope
func Detect(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "dedup_handler.Detect")
	defer span.End()

	var req DetectRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, detector, err := ectoinject.GetContext[*dedupsvc.Detector](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	var result *models.DetectionResult
	switch req.Kind {
	case models.EntityKindTrack:
		if len(req.ArtistIDs) > 0 {
			result, err = detector.DetectTracksForArtists(ctx, req.ArtistIDs)
		} else {
			result, err = detector.DetectTracks(ctx, dedupsvc.Scope{ArtistID: req.ArtistID, EntityIDs: req.EntityIDs})
		}
	case models.EntityKindArtist:
		result, err = detector.DetectArtists(ctx, dedupsvc.Scope{EntityIDs: req.EntityIDs})
	case models.EntityKindAlbum:
		result, err = detector.DetectAlbums(ctx, dedupsvc.Scope{ArtistID: req.ArtistID})
	case models.EntityKindCredit:
		if req.TrackID == "" {
			return httperror.NewHTTPError(http.StatusBadRequest, "track_id is required for credit detection")
		}
		result, err = detector.DetectCredits(ctx, req.TrackID)
	default:
		return httperror.NewHTTPError(http.StatusBadRequest, "unknown entity kind")
	}
	if err != nil {
		return err
	}

	// Downstream notifications are best effort; the candidates are already
	// persisted in Postgres
	if ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx); err == nil {
		_ = emitter.EmitMatchCandidates(ctx, result.Candidates)
	}

	return c.JSON(http.StatusOK, result)
}

// MergeRequest selects candidates for a merge pass
type MergeRequest struct {
	CandidateIDs []string `json:"candidate_ids" validate:"required,min=1"`
	DryRun       bool     `json:"dry_run,omitempty"`
}

// Merge runs the merge engine over the named candidates
func Merge(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "dedup_handler.Merge")
	defer span.End()

	var req MergeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*matchcandidate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidates := make([]models.MatchCandidate, 0, len(req.CandidateIDs))
	for _, id := range req.CandidateIDs {
		candidate, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		candidates = append(candidates, *candidate)
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := engine.ApplyMerges(ctx, candidates, req.DryRun)
	if err != nil {
		return err
	}

	publishMerges(ctx, candidates, result)

	return c.JSON(http.StatusOK, result)
}

// publishMerges fans applied decisions out to the output topic and the graph
// projection. Both are best effort; Postgres already holds the outcome.
func publishMerges(ctx context.Context, candidates []models.MatchCandidate, result *models.MergeResult) {
	kinds := make(map[string]models.EntityKind, len(candidates))
	for i := range candidates {
		kinds[candidates[i].ID] = candidates[i].EntityKind
	}

	ctx, emitter, emitterErr := ectoinject.GetContext[*events.Emitter](ctx)
	ctx, projector, projectorErr := ectoinject.GetContext[*graphpkg.Projector](ctx)

	for i := range result.Decisions {
		decision := &result.Decisions[i]
		if decision.Outcome != models.MergeOutcomeApplied || decision.DryRun {
			continue
		}
		kind := kinds[decision.CandidateID]
		if emitterErr == nil {
			_ = emitter.EmitEntityMerged(ctx, kind, decision)
		}
		if projectorErr == nil && decision.WinnerID != nil && decision.LoserID != nil {
			_ = projector.RecordMerge(ctx, kind, *decision.WinnerID, *decision.LoserID)
		}
	}
}

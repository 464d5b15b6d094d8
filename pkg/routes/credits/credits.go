// Package credits exposes credit consolidation over HTTP
package credits

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	trackrepo "github.com/Ramsey-B/chorus/internal/repositories/track"
	"github.com/Ramsey-B/chorus/internal/tracing"
	creditsvc "github.com/Ramsey-B/chorus/pkg/credits"
	"github.com/Ramsey-B/chorus/pkg/models"
)

var validate = validator.New()

// Register registers credit routes
func Register(g *echo.Group) {
	g.POST("/consolidate", Consolidate)
}

// ConsolidateRequest carries raw credit entries for one track
type ConsolidateRequest struct {
	TrackID string                  `json:"track_id" validate:"required"`
	Entries []models.RawCreditEntry `json:"entries,omitempty"`
}

// Consolidate normalizes and deduplicates the track's credits
func Consolidate(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "credits_handler.Consolidate")
	defer span.End()

	var req ConsolidateRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, tracks, err := ectoinject.GetContext[*trackrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	track, err := tracks.Get(ctx, req.TrackID)
	if err != nil {
		return err
	}

	ctx, consolidator, err := ectoinject.GetContext[*creditsvc.Consolidator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := consolidator.ConsolidateCredits(ctx, track, req.Entries)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

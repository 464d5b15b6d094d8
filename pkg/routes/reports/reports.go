// Package reports exposes read-only catalog health reports
package reports

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/chorus/internal/tracing"
	reportsvc "github.com/Ramsey-B/chorus/pkg/reports"
)

// Register registers report routes
func Register(g *echo.Group) {
	g.GET("/duplicates", Duplicates)
	g.GET("/albums", Albums)
	g.GET("/credits", Credits)
}

// Duplicates summarizes the match candidate backlog
func Duplicates(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reports_handler.Duplicates")
	defer span.End()

	ctx, generator, err := ectoinject.GetContext[*reportsvc.Generator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	report, err := generator.DuplicateReport(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, report)
}

// Albums summarizes album coverage across the catalog
func Albums(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reports_handler.Albums")
	defer span.End()

	ctx, generator, err := ectoinject.GetContext[*reportsvc.Generator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	report, err := generator.AlbumCoverageReport(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, report)
}

// Credits summarizes credit completeness and confidence
func Credits(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reports_handler.Credits")
	defer span.End()

	ctx, generator, err := ectoinject.GetContext[*reportsvc.Generator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	report, err := generator.CreditQualityReport(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, report)
}

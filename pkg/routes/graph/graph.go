package graph

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	graphpkg "github.com/Ramsey-B/chorus/pkg/graph"
)

// Handler handles graph query API endpoints
type Handler struct {
	queryService *graphpkg.QueryService
	logger       ectologger.Logger
}

// NewHandler creates a new graph handler
func NewHandler(queryService *graphpkg.QueryService, logger ectologger.Logger) *Handler {
	return &Handler{
		queryService: queryService,
		logger:       logger,
	}
}

// Register registers the graph routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/query", h.ExecuteQuery)
	g.GET("/neighbors/:label/:id", h.FindNeighbors)
	g.GET("/lineage/:label/:id", h.MergeLineage)
}

func (h *Handler) requireQueryService(c echo.Context) (*graphpkg.QueryService, error) {
	// Prefer explicitly provided service (useful for tests), but fall back to
	// DI-from-context, the standard pattern used elsewhere.
	if h != nil && h.queryService != nil {
		return h.queryService, nil
	}

	ctx := c.Request().Context()
	_, svc, err := ectoinject.GetContext[*graphpkg.QueryService](ctx)
	if err != nil || svc == nil {
		// 503 because this is an optional dependency (graph DB can be disabled).
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "graph query service unavailable")
	}
	return svc, nil
}

// QueryRequest is the request body for executing a Cypher query
type QueryRequest struct {
	Query  string         `json:"query" validate:"required"`
	Params map[string]any `json:"params,omitempty"`
}

// ExecuteQuery runs a read-only OpenCypher query against the projection
func (h *Handler) ExecuteQuery(c echo.Context) error {
	ctx := c.Request().Context()

	qs, err := h.requireQueryService(c)
	if err != nil {
		return err
	}

	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Query == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	result, err := qs.ExecuteQuery(ctx, req.Query, req.Params)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// FindNeighbors finds catalog nodes connected to an entity within N hops
func (h *Handler) FindNeighbors(c echo.Context) error {
	ctx := c.Request().Context()

	qs, err := h.requireQueryService(c)
	if err != nil {
		return err
	}

	label := c.Param("label")
	entityID := c.Param("id")

	if label == "" || entityID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "label and id are required")
	}

	hops := 1
	if hopsStr := c.QueryParam("hops"); hopsStr != "" {
		var parsed int
		if err := echo.QueryParamsBinder(c).Int("hops", &parsed).BindError(); err == nil && parsed > 0 {
			hops = parsed
		}
	}

	result, err := qs.FindNeighbors(ctx, entityID, label, hops)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// MergeLineage returns the merge chain that ended at an entity
func (h *Handler) MergeLineage(c echo.Context) error {
	ctx := c.Request().Context()

	qs, err := h.requireQueryService(c)
	if err != nil {
		return err
	}

	label := c.Param("label")
	entityID := c.Param("id")

	if label == "" || entityID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "label and id are required")
	}

	result, err := qs.MergeLineage(ctx, entityID, label)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

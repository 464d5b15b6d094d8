package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/chorus/internal/middleware"
	albumroutes "github.com/Ramsey-B/chorus/pkg/routes/albums"
	creditroutes "github.com/Ramsey-B/chorus/pkg/routes/credits"
	deduproutes "github.com/Ramsey-B/chorus/pkg/routes/dedup"
	graphroutes "github.com/Ramsey-B/chorus/pkg/routes/graph"
	"github.com/Ramsey-B/chorus/pkg/routes/health"
	matchroutes "github.com/Ramsey-B/chorus/pkg/routes/matchcandidate"
	reportroutes "github.com/Ramsey-B/chorus/pkg/routes/reports"
)

// newTestServer wires the full route surface the way main does, with no
// database, broker, or DI registrations behind it. That exercises the layers
// in front of the services: binding, validation, and the error handler.
func newTestServer() (*echo.Echo, *health.Checker) {
	logger := testLogger()

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())

	checker := health.NewChecker(nil, nil, "test")
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	deduproutes.Register(api.Group("/dedup"))
	matchroutes.Register(api.Group("/match-candidates"))
	albumroutes.Register(api.Group("/albums"))
	creditroutes.Register(api.Group("/credits"))
	reportroutes.Register(api.Group("/reports"))
	graphroutes.NewHandler(nil, logger).Register(api.Group("/graph"))

	return e, checker
}

func makeRequest(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	e, checker := newTestServer()

	rec := makeRequest(e, http.MethodGet, "/api/v1/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Not ready until startup flips the switch
	rec = makeRequest(e, http.MethodGet, "/api/v1/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	checker.SetReady(true)
	rec = makeRequest(e, http.MethodGet, "/api/v1/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = makeRequest(e, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status health.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "test", status.Version)
	require.Contains(t, status.Checks, "database")
	assert.Equal(t, "database not configured", status.Checks["database"].Message)
}

func TestRequestValidation(t *testing.T) {
	e, _ := newTestServer()

	tests := []struct {
		name string
		path string
		body string
	}{
		{
			name: "detect rejects malformed json",
			path: "/api/v1/dedup/detect",
			body: `{`,
		},
		{
			name: "detect requires a kind",
			path: "/api/v1/dedup/detect",
			body: `{}`,
		},
		{
			name: "merge requires candidate ids",
			path: "/api/v1/dedup/merge",
			body: `{}`,
		},
		{
			name: "merge rejects an empty candidate list",
			path: "/api/v1/dedup/merge",
			body: `{"candidate_ids": []}`,
		},
		{
			name: "album resolution requires an artist id",
			path: "/api/v1/albums/resolve",
			body: `{}`,
		},
		{
			name: "credit consolidation requires a track id",
			path: "/api/v1/credits/consolidate",
			body: `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := makeRequest(e, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp middleware.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Message)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestHandlersWithoutDependencies(t *testing.T) {
	e, _ := newTestServer()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{
			name:   "detect",
			method: http.MethodPost,
			path:   "/api/v1/dedup/detect",
			body:   `{"kind": "track", "artist_id": "a1"}`,
		},
		{
			name:   "list match candidates",
			method: http.MethodGet,
			path:   "/api/v1/match-candidates",
		},
		{
			name:   "approve match candidate",
			method: http.MethodPost,
			path:   "/api/v1/match-candidates/c1/approve",
			body:   `{"resolved_by": "reviewer"}`,
		},
		{
			name:   "duplicate report",
			method: http.MethodGet,
			path:   "/api/v1/reports/duplicates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := makeRequest(e, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)

			var resp middleware.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp.Message, "service unavailable")
		})
	}
}

func TestGraphRoutesWhenProjectionDisabled(t *testing.T) {
	e, _ := newTestServer()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{
			name:   "neighbors",
			method: http.MethodGet,
			path:   "/api/v1/graph/neighbors/Artist/a1",
		},
		{
			name:   "lineage",
			method: http.MethodGet,
			path:   "/api/v1/graph/lineage/Track/t1",
		},
		{
			name:   "query",
			method: http.MethodPost,
			path:   "/api/v1/graph/query",
			body:   `{"query": "MATCH (a:Artist) RETURN a LIMIT 1"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := makeRequest(e, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

			var resp middleware.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp.Message, "graph query service unavailable")
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	e, _ := newTestServer()

	rec := makeRequest(e, http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

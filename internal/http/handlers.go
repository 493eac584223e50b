package http

import (
	"net/http"
	"strings"

	"github.com/fyrsmithlabs/gitmem/internal/memory"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CaptureResponse is the response body for POST /api/v1/memories.
type CaptureResponse struct {
	ID string `json:"id"`
}

// SearchResponse is the response body for POST /api/v1/search.
type SearchResponse struct {
	Results []memory.Result `json:"results"`
}

// SyncResponse is the response body for POST /api/v1/sync.
type SyncResponse struct {
	Synced int `json:"synced"`
}

// ScrubRequest is the request body for POST /api/v1/scrub.
type ScrubRequest struct {
	Content string `json:"content"`
}

// ScrubResponse is the response body for POST /api/v1/scrub.
type ScrubResponse struct {
	Content       string   `json:"content"`
	FindingsCount int      `json:"findings_count"`
	Rules         []string `json:"rules"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleCapture(c echo.Context) error {
	var req memory.CaptureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Namespace == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "namespace field is required")
	}
	if strings.TrimSpace(req.Summary) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "summary field is required")
	}

	id, err := s.engine.Capture(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, CaptureResponse{ID: id})
}

func (s *Server) handleGet(c echo.Context) error {
	id := c.Param("id")
	m, err := s.engine.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if m == nil {
		return echo.NewHTTPError(http.StatusNotFound, "memory "+id+" not found")
	}
	return c.JSON(http.StatusOK, m)
}

func (s *Server) handleSearch(c echo.Context) error {
	var req memory.SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}
	if req.K < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "k cannot be negative")
	}
	if req.MinSimilarity != nil && (*req.MinSimilarity < 0 || *req.MinSimilarity > 1) {
		return echo.NewHTTPError(http.StatusBadRequest, "min_similarity must be between 0 and 1")
	}

	results, err := s.engine.Search(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results})
}

func (s *Server) handleSync(c echo.Context) error {
	n, err := s.engine.Reconcile(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SyncResponse{Synced: n})
}

func (s *Server) handleStats(c echo.Context) error {
	st, err := s.engine.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleScrub(c echo.Context) error {
	var req ScrubRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid scrub request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	result := s.engine.Redactor().Redact(req.Content)
	s.logger.Debug("scrubbed content", zap.Int("findings", result.TotalFindings()))

	return c.JSON(http.StatusOK, ScrubResponse{
		Content:       result.Redacted,
		FindingsCount: result.TotalFindings(),
		Rules:         result.RuleIDs(),
	})
}

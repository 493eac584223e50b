// Package http serves the memory engine over a JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/gitmem/internal/logging"
	"github.com/fyrsmithlabs/gitmem/internal/memory"
	"github.com/fyrsmithlabs/gitmem/internal/secrets"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Engine is the part of memory.Service the server needs.
type Engine interface {
	Capture(ctx context.Context, req memory.CaptureRequest) (string, error)
	Search(ctx context.Context, req memory.SearchRequest) ([]memory.Result, error)
	Get(ctx context.Context, id string) (*memory.Memory, error)
	Reconcile(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*memory.Stats, error)
	Redactor() secrets.Redactor
}

var _ Engine = (*memory.Service)(nil)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides HTTP endpoints for the memory engine.
type Server struct {
	echo    *echo.Echo
	engine  Engine
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
}

// NewServer creates a new HTTP server.
func NewServer(engine Engine, logger *zap.Logger, cfg *Config) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9191}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		engine:  engine,
		logger:  logger,
		config:  cfg,
		metrics: NewHTTPMetrics(logger),
	}

	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestID())
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(s.requestLogger)

	s.registerRoutes()
	return s, nil
}

// requestLogger puts the request ID on the context and logs each request.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		id := c.Response().Header().Get(echo.HeaderXRequestID)
		req := c.Request()
		c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		logging.WithContext(c.Request().Context(), s.logger).Info("http request",
			zap.String("method", req.Method),
			zap.String("route", c.Path()),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(newPromHandler(s.engine, s.logger)))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/memories", s.handleCapture)
	v1.GET("/memories/:id", s.handleGet)
	v1.POST("/search", s.handleSearch)
	v1.POST("/sync", s.handleSync)
	v1.GET("/stats", s.handleStats)
	v1.POST("/scrub", s.handleScrub)
}

// handleError maps engine errors onto status codes.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
	case errors.Is(err, memory.ErrInvalidNamespace), errors.Is(err, memory.ErrInvalidQuery):
		he = echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("route", c.Path()),
			zap.Error(err))
		he = echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	msg, ok := he.Message.(string)
	if !ok {
		msg = http.StatusText(he.Code)
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(he.Code)
		return
	}
	_ = c.JSON(he.Code, ErrorResponse{Error: msg})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets the server be mounted or driven by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

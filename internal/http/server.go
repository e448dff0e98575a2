// Package http provides the HTTP API for infrad.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/infrad/internal/cloudstate"
	"github.com/fyrsmithlabs/infrad/internal/federation"
	"github.com/fyrsmithlabs/infrad/internal/memory"
	"github.com/fyrsmithlabs/infrad/internal/namespace"
	"github.com/fyrsmithlabs/infrad/internal/services"
	"github.com/fyrsmithlabs/infrad/internal/session"
	"github.com/fyrsmithlabs/infrad/internal/vectorstore"
)

// Server provides HTTP endpoints for infrad.
type Server struct {
	echo     *echo.Echo
	registry services.Registry
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// DefaultMaxTokens is the context token budget used when a
	// request does not specify one.
	DefaultMaxTokens int
}

// NewServer creates a new HTTP server over the service registry.
func NewServer(registry services.Registry, logger *zap.Logger, cfg *Config) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = 4000
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		registry: registry,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")

	// Unified knowledge layer
	v1.POST("/search", s.handleSearch)
	v1.POST("/context/build", s.handleContextBuild)
	v1.POST("/chat", s.handleChat)

	// Memory lifecycle
	v1.POST("/memory", s.handleMemoryStore)
	v1.GET("/memory/:id", s.handleMemoryGet)
	v1.DELETE("/memory/:id", s.handleMemoryDelete)
	v1.POST("/memory/:id/promote", s.handleMemoryPromote)
	v1.POST("/memory/:id/importance", s.handleMemoryImportance)
	v1.POST("/memory/search", s.handleMemorySearch)
	v1.POST("/memory/cleanup", s.handleMemoryCleanup)

	// Decision records
	v1.POST("/decisions", s.handleDecisionStore)
	v1.POST("/decisions/search", s.handleDecisionSearch)

	// Cloud inventory
	v1.POST("/cloud/state", s.handleStateUpload)
	v1.GET("/cloud/declared", s.handleDeclaredList)
	v1.GET("/cloud/observed", s.handleObservedList)
	v1.POST("/cloud/fetch", s.handleObservedFetch)
	v1.POST("/cloud/sync", s.handleObservedSync)
	v1.POST("/cloud/search", s.handleCloudSearch)
	v1.POST("/cloud/drift", s.handleDriftCompare)

	// General context notes
	v1.POST("/context/general", s.handleNoteStore)
	v1.POST("/context/general/search", s.handleNoteSearch)
	v1.GET("/context/general/:id", s.handleNoteGet)
	v1.DELETE("/context/general/:id", s.handleNoteDelete)

	// Sessions
	v1.POST("/sessions", s.handleSessionCreate)
	v1.GET("/sessions", s.handleSessionList)
	v1.GET("/sessions/:id", s.handleSessionGet)
	v1.DELETE("/sessions/:id", s.handleSessionDelete)
	v1.POST("/sessions/:id/messages", s.handleSessionAppend)
	v1.GET("/sessions/:id/messages", s.handleSessionMessages)
	v1.POST("/sessions/:id/context", s.handleSessionContext)
	v1.POST("/sessions/:id/state", s.handleSessionState)
	v1.POST("/sessions/:id/extend", s.handleSessionExtend)

	// User administration
	v1.GET("/users/:id/stats", s.handleUserStats)
	v1.DELETE("/users/:id", s.handleUserCleanup)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// statusFor maps service errors to HTTP status codes: not-found
// sentinels to 404, validation sentinels to 400, a missing fetcher to
// 503, everything else to 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, memory.ErrNotFound),
		errors.Is(err, cloudstate.ErrNotFound),
		errors.Is(err, vectorstore.ErrDocumentNotFound),
		errors.Is(err, vectorstore.ErrCollectionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidSession),
		errors.Is(err, memory.ErrInvalidRecord),
		errors.Is(err, memory.ErrInvalidDecision),
		errors.Is(err, cloudstate.ErrInvalidParams),
		errors.Is(err, federation.ErrInvalidQuery),
		errors.Is(err, services.ErrInvalidUser),
		errors.Is(err, namespace.ErrNotWellFormed),
		errors.Is(err, namespace.ErrUnknownGroup),
		errors.Is(err, namespace.ErrMissingField),
		errors.Is(err, namespace.ErrReservedSeparator),
		errors.Is(err, vectorstore.ErrMalformedMetadata):
		return http.StatusBadRequest
	case errors.Is(err, cloudstate.ErrNoFetcher):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// serviceError converts a service error into an echo HTTP error.
func (s *Server) serviceError(err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
		return echo.NewHTTPError(status, "internal error")
	}
	return echo.NewHTTPError(status, err.Error())
}

// bindError rejects an unparseable request body.
func bindError(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
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

// Package server exposes the chat and document APIs over HTTP.
package server

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

	"github.com/fyrsmithlabs/ragd/internal/chat"
	"github.com/fyrsmithlabs/ragd/internal/documents"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/memory"
	"github.com/fyrsmithlabs/ragd/internal/provider"
)

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
}

// Orchestrator is the chat pipeline surface the server depends on.
type Orchestrator interface {
	Stream(ctx context.Context, req chat.Request) (<-chan chat.Event, error)
	Ask(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// Server wires the API routes over echo.
type Server struct {
	echo      *echo.Echo
	orch      Orchestrator
	ingestSvc *ingest.Service
	docs      *documents.Store
	sessions  *memory.Store
	logger    *logging.Logger
	config    Config
}

// NewServer creates the HTTP server with all routes registered.
func NewServer(
	orch Orchestrator,
	ingestSvc *ingest.Service,
	docs *documents.Store,
	sessions *memory.Store,
	metrics *HTTPMetrics,
	logger *logging.Logger,
	cfg Config,
) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if metrics != nil {
		e.Use(metrics.Middleware())
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:      e,
		orch:      orch,
		ingestSvc: ingestSvc,
		docs:      docs,
		sessions:  sessions,
		logger:    logger,
		config:    cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")
	api.POST("/chat", s.handleChatStream)
	api.POST("/chat/sync", s.handleChatSync)
	api.POST("/ingest", s.handleIngest)
	api.GET("/documents", s.handleListDocuments)
	api.GET("/documents/:id", s.handleGetDocument)
	api.DELETE("/documents/:id", s.handleDeleteDocument)
	api.POST("/session/clear", s.handleClearSession)
	api.GET("/sessions", s.handleListSessions)
	api.DELETE("/sessions", s.handleClearAllSessions)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Documents int    `json:"documents"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   s.config.Version,
		Documents: s.docs.Count(),
	})
}

// httpError maps pipeline errors onto HTTP status codes.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, provider.ErrUnknownProvider):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, documents.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ingest.ErrUnsupportedType):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, ingest.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ingest.ErrEmptyFile), errors.Is(err, ingest.ErrNoText):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the root handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

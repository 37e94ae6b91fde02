// Package http serves the opsdocs retrieval API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsdocs/internal/logging"
	"github.com/fyrsmithlabs/opsdocs/internal/retriever"
	"github.com/fyrsmithlabs/opsdocs/internal/services"
	"github.com/fyrsmithlabs/opsdocs/internal/vectorstore"
)

// Retriever is the query side of the retriever.
type Retriever interface {
	Query(ctx context.Context, text string, opts retriever.QueryOptions) ([]retriever.Result, error)
	Stats() (*vectorstore.Metadata, error)
}

// Ingester appends files to the index.
type Ingester interface {
	AddPaths(ctx context.Context, paths []string, opts retriever.IngestOptions) (*services.IndexReport, error)
}

// Server provides HTTP endpoints for opsdocs.
type Server struct {
	echo      *echo.Echo
	retriever Retriever
	ingester  Ingester
	logger    *zap.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// AllowedRoots limits the paths POST /api/v1/ingest may read. Empty
	// disables the ingest endpoint.
	AllowedRoots []string
	// MaxK caps the k a client may request.
	MaxK int
}

// NewServer creates a new HTTP server. ingester may be nil, in which case
// the ingest endpoint is not registered.
func NewServer(r Retriever, ingester Ingester, logger *zap.Logger, cfg *Config) (*Server, error) {
	if r == nil {
		return nil, fmt.Errorf("retriever cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 9191,
		}
	}
	if cfg.MaxK <= 0 {
		cfg.MaxK = 50
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		retriever: r,
		ingester:  ingester,
		logger:    logger,
		config:    cfg,
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", id),
			)
			return nil
		}
	})

	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/query", s.handleQuery)
	v1.GET("/index", s.handleIndex)
	if s.ingester != nil && len(s.config.AllowedRoots) > 0 {
		v1.POST("/ingest", s.handleIngest)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// allowed reports whether p lies inside one of the allowed roots.
func (s *Server) allowed(p string) bool {
	abs, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	for _, root := range s.config.AllowedRoots {
		r, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if abs == r || strings.HasPrefix(abs, r+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedd/internal/embeddings"
	"github.com/fyrsmithlabs/embedd/internal/registry"
)

// Registries bundles the per-category model registries the server
// serves from.
type Registries struct {
	Dense           *registry.Registry[embeddings.DenseModel]
	Sparse          *registry.Registry[embeddings.SparseModel]
	LateInteraction *registry.Registry[embeddings.LateInteractionModel]
}

// Defaults holds the per-category model names applied when a request
// omits the model field.
type Defaults struct {
	Dense           string
	Sparse          string
	LateInteraction string
}

// Config holds HTTP server configuration.
type Config struct {
	Host     string
	Port     int
	Defaults Defaults
}

// Server provides the embedd HTTP endpoints.
type Server struct {
	echo       *echo.Echo
	registries *Registries
	logger     *zap.Logger
	config     *Config
}

// NewServer creates a new HTTP server.
func NewServer(registries *Registries, logger *zap.Logger, cfg *Config) (*Server, error) {
	if registries == nil || registries.Dense == nil || registries.Sparse == nil || registries.LateInteraction == nil {
		return nil, fmt.Errorf("all three model registries are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "0.0.0.0",
			Port: 8000,
			Defaults: Defaults{
				Dense:           embeddings.DefaultDenseModel,
				Sparse:          embeddings.DefaultSparseModel,
				LateInteraction: embeddings.DefaultLateInteractionModel,
			},
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestMetrics())
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
		echo:       e,
		registries: registries,
		logger:     logger,
		config:     cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleRoot)
	s.echo.GET("/models", s.handleModels)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.POST("/embed", s.handleEmbed)
	s.echo.POST("/sparse-embed", s.handleSparseEmbed)
	s.echo.POST("/late-interaction-embed", s.handleLateInteractionEmbed)
}

// handleRoot returns a static liveness payload with no dependency
// checks.
func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, RootResponse{Message: "embedd API is running."})
}

// handleModels enumerates supported model names per category from the
// static catalog, independent of current registry contents.
func (s *Server) handleModels(c echo.Context) error {
	return c.JSON(http.StatusOK, ModelsResponse{
		Dense:  embeddings.DenseModels(),
		Sparse: embeddings.SparseModels(),
		Rerank: embeddings.LateInteractionModels(),
	})
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

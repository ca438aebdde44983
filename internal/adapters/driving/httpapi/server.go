// Package httpapi provides the REST API for uploading documents, polling
// their status and retrieving context.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driving"
	"github.com/custodia-labs/ragctx/internal/logger"
)

// maxBodySize bounds uploaded document bodies.
const maxBodySize = "32M"

// Services are the driving ports behind the API.
type Services struct {
	Ingest   driving.IngestService
	Document driving.DocumentService
	Search   driving.SearchService
	Context  driving.ContextService

	// Defaults fill query fields a request leaves out.
	Defaults domain.SearchSettings
}

// Validate ensures every port is set.
func (s *Services) Validate() error {
	switch {
	case s.Ingest == nil:
		return errors.New("httpapi: ingest service is required")
	case s.Document == nil:
		return errors.New("httpapi: document service is required")
	case s.Search == nil:
		return errors.New("httpapi: search service is required")
	case s.Context == nil:
		return errors.New("httpapi: context service is required")
	}
	return nil
}

// Server is the HTTP API server.
type Server struct {
	services *Services
	echo     *echo.Echo
}

// NewServer creates the server and registers its routes.
func NewServer(services *Services) (*Server, error) {
	if err := services.Validate(); err != nil {
		return nil, fmt.Errorf("validating services: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("%s %s -> %d (%s)", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	s := &Server{services: services, echo: e}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.health)

	api := s.echo.Group("/api")
	api.POST("/documents", s.uploadDocument)
	api.GET("/documents", s.listDocuments)
	api.GET("/documents/:id", s.getDocument)
	api.PUT("/documents/:id/content", s.replaceContent)
	api.GET("/documents/:id/status", s.documentStatus)
	api.GET("/documents/:id/chunks", s.documentChunks)
	api.DELETE("/documents/:id", s.deleteDocument)
	api.PUT("/documents/:id/collections", s.setCollections)
	api.PATCH("/documents/:id/collections", s.updateCollections)
	api.GET("/collections", s.listCollections)
	api.DELETE("/collections/:name", s.deleteCollection)
	api.POST("/search", s.search)
	api.POST("/context", s.buildContext)
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown when context is cancelled
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	logger.Info("HTTP API listening on %s", addr)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

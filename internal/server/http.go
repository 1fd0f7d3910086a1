// Package server provides the HTTP surface of the costlens daemon.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"costlens/internal/admin"
)

// Server wraps the Echo router and its http.Server.
type Server struct {
	echo    *echo.Echo
	handler *admin.Handler
	httpSrv *http.Server
}

// Config holds server configuration options
type Config struct {
	Port            string // Listen port (default: 8080)
	MasterKey       string // Optional: master key for authentication
	MetricsEnabled  bool   // Whether to expose Prometheus metrics endpoint
	MetricsEndpoint string // HTTP path for metrics endpoint (default: /metrics)
	BodyLimit       string // Max request body size, e.g. "1M" (default: 1M)
}

// New creates a new HTTP server
func New(handler *admin.Handler, cfg *Config) *Server {
	e := echo.New()

	if handler == nil {
		handler = admin.NewHandler(nil, nil, nil)
	}

	// Build list of paths that skip authentication
	authSkipPaths := []string{"/health"}

	// Determine metrics path
	metricsPath := "/metrics"
	if cfg != nil && cfg.MetricsEnabled {
		if cfg.MetricsEndpoint != "" {
			// Normalize path to prevent traversal attacks
			metricsPath = path.Clean(cfg.MetricsEndpoint)
		}
		authSkipPaths = append(authSkipPaths, metricsPath)
	}

	// Global middleware stack (order matters)
	e.Use(RequestIDMiddleware())
	e.Use(RequestLoggerMiddleware(slog.Default()))
	e.Use(middleware.Recover())

	bodyLimit := ""
	if cfg != nil {
		bodyLimit = cfg.BodyLimit
	}
	e.Use(BodyLimitMiddleware(parseBodyLimit(bodyLimit)))

	// Authentication (skips public paths)
	if cfg != nil && cfg.MasterKey != "" {
		e.Use(AuthMiddleware(cfg.MasterKey, authSkipPaths))
	}

	// Public routes
	e.GET("/health", health)
	if cfg != nil && cfg.MetricsEnabled {
		e.GET(metricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	// API routes
	e.GET("/v1/reports/economics", handler.Economics)
	e.GET("/v1/reports/summary", handler.EconomicsSummary)
	e.GET("/v1/ledger/summary", handler.LedgerSummary)
	e.POST("/v1/events", handler.IngestEvents)

	port := "8080"
	if cfg != nil && cfg.Port != "" {
		port = cfg.Port
	}

	return &Server{
		echo:    e,
		handler: handler,
		httpSrv: &http.Server{
			Addr:              ":" + port,
			Handler:           e,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// health handles GET /health
func health(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Start starts the HTTP server. It blocks until the server stops and
// returns http.ErrServerClosed after a graceful Shutdown.
func (s *Server) Start() error {
	return s.httpSrv.ListenAndServe()
}

// Addr returns the listen address the server was configured with.
func (s *Server) Addr() string {
	return s.httpSrv.Addr
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

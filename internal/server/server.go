// Package server provides the main HTTP server for CreditDesk.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/HerbHall/creditdesk/internal/version"
	"github.com/HerbHall/creditdesk/pkg/platform"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// ReadinessChecker verifies that the server is ready to serve traffic.
// Returns nil if ready, an error describing why not otherwise.
type ReadinessChecker func(ctx context.Context) error

// AuthRegistrar mounts the authentication routes and supplies the middleware
// that guards every other /api route (consumer-side interface).
type AuthRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
	Middleware() func(http.Handler) http.Handler
}

// Options configures a Server. Only Addr and Logger are required.
type Options struct {
	Addr    string
	Logger  *zap.Logger
	Ready   ReadinessChecker
	Auth    AuthRegistrar
	DevMode bool

	// RateLimit is the global per-client limit; zero fields take defaults.
	RateLimit RateLimitConfig
	Clock     clockwork.Clock

	// Modules are the feature packages whose routes are mounted, in order.
	Modules []platform.RouteRegistrar
	// ModuleNames are reported by GET /api/v1/health.
	ModuleNames []string
}

// Server is the main CreditDesk HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	ready      ReadinessChecker
	modules    []string
}

// New creates a Server with the middleware chain and all routes mounted.
// When opts.Auth is nil the API is served without authentication, which only
// the tests do.
func New(opts Options) *Server {
	mux := http.NewServeMux()
	logger := opts.Logger

	s := &Server{
		logger:  logger,
		mux:     mux,
		ready:   opts.Ready,
		modules: opts.ModuleNames,
	}

	s.registerRoutes()
	if opts.Auth != nil {
		opts.Auth.RegisterRoutes(mux)
	}
	for _, m := range opts.Modules {
		m.RegisterRoutes(mux)
	}

	if opts.DevMode {
		mux.Handle("GET /swagger/", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
		logger.Info("swagger UI enabled (dev_mode)", zap.String("path", "/swagger/"))
	}

	// Unknown API paths get a problem document instead of the mux's text 404.
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		NotFound(w, r, "no such endpoint")
	})

	operational := []string{"/healthz", "/readyz", "/metrics"}

	// Middleware chain: outermost listed first.
	middlewares := []Middleware{
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		LoggingMiddleware(logger, operational),
		SecurityHeadersMiddleware,
		VersionHeaderMiddleware,
		RateLimitMiddleware(opts.RateLimit, opts.Clock, operational),
		MaxBodyMiddleware(maxBodyBytes),
	}
	if opts.Auth != nil {
		middlewares = append(middlewares, opts.Auth.Middleware())
	}

	// No WriteTimeout: /api/v1/ws/ streams stay open for the life of the
	// client.
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           Chain(mux, middlewares...),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler returns the root handler with the middleware chain applied.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// registerRoutes sets up all core routes.
func (s *Server) registerRoutes() {
	// Unversioned operational endpoints.
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Versioned API endpoints.
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
}

// Start begins serving HTTP requests and blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Serve is Start on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("starting HTTP server", zap.String("addr", l.Addr().String()))
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealthz is a liveness probe -- returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// handleReadyz checks readiness -- returns 200 if the server can serve traffic.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}

	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status  string            `json:"status" example:"ok"`
	Service string            `json:"service" example:"creditdesk"`
	Version map[string]string `json:"version"`
	Modules []string          `json:"modules" example:"auth,monitor,casework"`
}

// handleHealth returns process health and build information.
//
//	@Summary		Health check
//	@Description	Returns service status, version information and the mounted modules.
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	modules := s.modules
	if modules == nil {
		modules = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:  "ok",
		Service: "creditdesk",
		Version: version.Map(),
		Modules: modules,
	})
}

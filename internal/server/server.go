// Package server exposes the engine over HTTP: the chat endpoint, the
// Chatwoot webhook bridge, and the health check.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/levhaolam/support-engine/internal/dedup"
	"github.com/levhaolam/support-engine/internal/pipeline"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Config wires the server's collaborators.
type Config struct {
	Port         int
	RateLimit    float64
	RateBurst    int
	Orchestrator *pipeline.Orchestrator
	Dispatcher   *Dispatcher
	Dedup        *dedup.Cache
	HealthProbe  func(ctx context.Context) error
	Logger       *slog.Logger
}

// Server is the HTTP front of the engine.
type Server struct {
	cfg    Config
	logger *slog.Logger
	http   *http.Server
}

// New builds the server and its router.
func New(cfg Config) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dedup == nil {
		cfg.Dedup = dedup.New()
	}

	s := &Server{cfg: cfg, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(TimeoutMiddleware(120 * time.Second))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "support-engine")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.With(RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst)).
			Post("/chat", s.handleChat)
		r.Post("/webhook/chatwoot", s.handleChatwootWebhook)
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	status := "healthy"
	if s.cfg.HealthProbe != nil {
		if err := s.cfg.HealthProbe(r.Context()); err != nil {
			dbStatus = "disconnected"
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": Version,
		"services": map[string]string{
			"database": dbStatus,
			"openai":   "available",
		},
	})
}

// Package server wires the HTTP surface: routing, middleware order, and the
// graceful lifecycle. The audit middleware is the outermost layer so every
// outcome, including authentication rejections, lands in the audit trail.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/zapgate/zapgate/internal/auth"
	"github.com/zapgate/zapgate/internal/openapi"
	"github.com/zapgate/zapgate/internal/provider"
	"github.com/zapgate/zapgate/internal/ratelimit"
	"github.com/zapgate/zapgate/internal/reconciler"
	"github.com/zapgate/zapgate/internal/server/handler"
	"github.com/zapgate/zapgate/internal/server/middleware"
	"github.com/zapgate/zapgate/internal/store"
	"github.com/zapgate/zapgate/internal/usage"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	PublicRateLimit int
	WebhookSecret   string
	AuditExcluded   []string
	Version         string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		PublicRateLimit: 60,
		AuditExcluded:   []string{"/health", "/openapi.json"},
		Version:         "dev",
	}
}

// Deps bundles the components the server routes requests into.
type Deps struct {
	Store      *store.Store
	Resolver   *auth.Resolver
	Sessions   *auth.Sessions
	Limiter    *ratelimit.Limiter
	Tracker    *usage.Tracker
	Client     *provider.Client
	Pool       *provider.Pool
	Reconciler *reconciler.Reconciler
}

// Server is the top-level HTTP server. It owns the chi router and the
// graceful shutdown sequence.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes and middleware wired. Call
// ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{cfg: cfg, deps: deps, logger: logger}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Audit first so rejections from every inner layer are recorded.
	r.Use(middleware.Audit(s.deps.Store, s.logger, s.cfg.AuditExcluded))
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{middleware.TraceHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/openapi.json", s.handleOpenAPI)

	messageHandler := handler.NewMessageHandler(s.deps.Client, s.deps.Pool)
	connectionHandler := handler.NewConnectionHandler(s.deps.Store)
	webhookHandler := handler.NewWebhookHandler(s.deps.Reconciler, s.cfg.WebhookSecret)
	adminHandler := handler.NewAdminHandler(s.deps.Store, s.deps.Sessions, s.deps.Resolver, s.deps.Client, s.deps.Pool)

	gateway := func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.deps.Resolver, s.deps.Limiter, s.deps.Tracker))
		r.Post("/messages/send-text", messageHandler.SendText)
		r.Get("/messages/status/{messageId}", messageHandler.MessageStatus)
		r.Get("/connection/info", connectionHandler.Info)
	}
	r.Route("/v1", gateway)
	// Compatibility alias kept for clients still on the old path scheme.
	r.Route("/v2", gateway)

	publicLimit := middleware.PublicRateLimit(s.cfg.PublicRateLimit)
	r.With(publicLimit).Post("/webhooks/billing", webhookHandler.Billing)

	r.Route("/admin/v1", func(r chi.Router) {
		r.With(publicLimit).Post("/session", adminHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.SessionAuth(s.deps.Sessions))
			r.Get("/connections", adminHandler.ListConnections)
			r.Post("/connections", adminHandler.CreateConnection)
			r.Get("/connections/{id}", adminHandler.GetConnection)
			r.Post("/connections/{id}/connect", adminHandler.ConnectQR)
			r.Post("/connections/{id}/key", adminHandler.IssueKey)
			r.Post("/connections/{id}/sync", adminHandler.SyncStatus)
			r.Get("/audit-logs", adminHandler.ListAuditLogs)
		})
	})

	s.router = r
}

// handleHealth is a liveness probe. It is excluded from audit logging.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":   true,
		"message":   "ok",
		"version":   s.cfg.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	base := fmt.Sprintf("http://%s:%d", s.cfg.Host, s.cfg.Port)
	doc := openapi.Generate(base)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

// ListenAndServe starts the HTTP server and blocks until SIGINT or SIGTERM.
// It then drains in-flight requests before returning.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining requests")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

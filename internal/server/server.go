package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/faucetdb/widgets/internal/handler"
	"github.com/faucetdb/widgets/internal/openapi"
	"github.com/faucetdb/widgets/internal/server/middleware"
	"github.com/faucetdb/widgets/internal/service"
	"github.com/faucetdb/widgets/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	APIKeyHeader    string
	Version         string

	// RequestsPerMinute limits each client IP. PerKeyRequestsPerMinute limits
	// each authenticated client. Zero disables a limit.
	RequestsPerMinute       int
	PerKeyRequestsPerMinute int
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		APIKeyHeader:    middleware.DefaultAPIKeyHeader,
	}
}

// Server is the top-level HTTP server. It owns the Chi router, the store and
// the authentication service.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *store.Store
	authSvc    *service.AuthService
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, store *store.Store, authSvc *service.AuthService, logger *slog.Logger) *Server {
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = middleware.DefaultAPIKeyHeader
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		store:   store,
		authSvc: authSvc,
		logger:  logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", s.cfg.APIKeyHeader, "X-Requested-With"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:         300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.RequestsPerMinute > 0 {
		r.Use(middleware.RateLimit(s.cfg.RequestsPerMinute))
	}

	// --- Health checks and docs (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/openapi.json", handler.NewOpenAPIHandler(openapi.Options{
		Version:       s.cfg.Version,
		APIKeyHeader:  s.cfg.APIKeyHeader,
		IncludeSystem: s.authSvc.HasJWTSecret(),
	}).ServeSpec)

	// Vanity URL from the podcast campaign.
	r.Get("/amazing", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/widgets", http.StatusMovedPermanently)
	})

	// --- API-key gated resources ---
	widgetHandler := handler.NewWidgetHandler(s.store)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAPIKey(s.authSvc, s.cfg.APIKeyHeader))
		if s.cfg.PerKeyRequestsPerMinute > 0 {
			r.Use(middleware.RateLimitByClient(s.cfg.PerKeyRequestsPerMinute))
		}

		r.Get("/widgets", widgetHandler.ListWidgets)
		r.Get("/widgets/{id}", widgetHandler.GetWidget)
		r.Post("/widget_ratings", widgetHandler.CreateRating)
	})

	// --- Provisioning API (admin JWT) ---
	if s.authSvc.HasJWTSecret() {
		r.Route("/api/v1/system", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(s.authSvc))

			sysHandler := handler.NewSystemHandler(s.store, service.NewWidgetCreator(s.store, s.logger))
			r.Get("/api-key", sysHandler.ListAPIKeys)
			r.Post("/api-key", sysHandler.CreateAPIKey)
			r.Post("/api-key/deactivate", sysHandler.DeactivateAPIKey)
			r.Post("/widget", sysHandler.CreateWidget)
		})
	} else {
		s.logger.Warn("auth.jwt_secret not set; provisioning API disabled")
	}

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the key store answers a
// ping, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	httpStatus := http.StatusOK
	check := "ok"
	if err := s.store.Ping(ctx); err != nil {
		status = "unavailable"
		httpStatus = http.StatusServiceUnavailable
		check = "error: " + err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": map[string]string{"database": check},
		"driver": s.store.Driver(),
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests. Closing the store is left to the caller.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutdown signal received, draining connections...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		s.logger.Info("server stopped")
		return nil
	})
	return g.Wait()
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

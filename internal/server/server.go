package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/faucetdb/quotagate/internal/gateway"
	"github.com/faucetdb/quotagate/internal/handler"
	"github.com/faucetdb/quotagate/internal/mcp"
	"github.com/faucetdb/quotagate/internal/openapi"
	"github.com/faucetdb/quotagate/internal/server/middleware"
	"github.com/faucetdb/quotagate/internal/session"
	"github.com/faucetdb/quotagate/internal/telemetry"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	MaxBodySize     int64 // bytes, 0 disables the limit
	RateLimit       int   // requests per minute per IP on /authorize and /generate_image, 0 disables
	Cookie          handler.CookieOptions
	SweepInterval   time.Duration // how often keyed sessions are purged
	EnableMetrics   bool
	EnableMCP       bool // mount the streamable HTTP MCP endpoint at /mcp
	Version         string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		MaxBodySize:     1 << 20, // 1MB
		RateLimit:       60,
		Cookie:          handler.CookieOptions{Name: "credential"},
		SweepInterval:   10 * time.Minute,
		EnableMetrics:   true,
		Version:         "dev",
	}
}

// Server is the top-level HTTP server. It owns the Chi router, the gateway
// controller and the session store the controller writes to.
type Server struct {
	cfg        Config
	router     chi.Router
	ctrl       *gateway.Controller
	store      session.Store
	metrics    *telemetry.Metrics
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. metrics may be nil. Call ListenAndServe to start
// accepting connections.
func New(cfg Config, ctrl *gateway.Controller, store session.Store, metrics *telemetry.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		ctrl:    ctrl,
		store:   store,
		metrics: metrics,
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
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With", "Mcp-Session-Id"},
		ExposedHeaders:   []string{"X-Request-ID", "Mcp-Session-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	r.Use(middleware.SessionToken(s.cfg.Cookie.Name))
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}

	// --- Health checks ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- OpenAPI spec ---
	specOpts := openapi.Options{CookieName: s.cfg.Cookie.Name, Version: s.cfg.Version}
	r.Get("/openapi.json", handler.NewOpenAPIHandler(specOpts).ServeSpec)

	if s.cfg.EnableMetrics && s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// --- Gateway routes ---
	gw := handler.NewGatewayHandler(s.ctrl, s.cfg.Cookie)
	r.Get("/me", gw.Me)
	r.Group(func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.With(middleware.RateLimit(s.cfg.RateLimit)).Post("/authorize", gw.Authorize)
			r.With(middleware.RateLimit(s.cfg.RateLimit)).Post("/generate_image", gw.GenerateImage)
			return
		}
		r.Post("/authorize", gw.Authorize)
		r.Post("/generate_image", gw.GenerateImage)
	})

	// --- MCP over streamable HTTP ---
	if s.cfg.EnableMCP {
		r.Handle("/mcp", mcp.NewMCPServer(s.ctrl, specOpts, s.cfg.Cookie.MaxAge, s.logger).HTTPHandler())
	}

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the session backend is
// reachable, or 503 if it is not. Signed cookie sessions have nothing to
// check.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if p, ok := s.store.(session.Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("session backend ping failed", "error", err)
			checks["session"] = "error: unreachable"
			status = "degraded"
		} else {
			checks["session"] = "ok"
		}
	}

	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the session store.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // image generation can take close to a minute
		IdleTimeout:  120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if sw, ok := s.store.(session.Sweeper); ok {
		go session.RunSweeper(ctx, sw, s.cfg.SweepInterval, s.logger)
	}

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.logger.Warn("closing session store", "error", err)
		}
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

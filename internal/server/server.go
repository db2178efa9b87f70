// Package server exposes the settlement core over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pumpsly/duelcore/internal/domain"
	"github.com/pumpsly/duelcore/internal/metrics"
	"github.com/pumpsly/duelcore/internal/server/handler"
	"github.com/pumpsly/duelcore/internal/server/middleware"
	"github.com/pumpsly/duelcore/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow per client IP; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health *handler.HealthHandler
	Duels  *handler.DuelHandler
	Pools  *handler.PoolHandler
	Escrow *handler.EscrowHandler
}

// Server is the HTTP + WebSocket API server for the duel settlement core.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Duel lifecycle endpoints.
	mux.HandleFunc("GET /api/duels", handlers.Duels.ListDuels)
	mux.HandleFunc("POST /api/duels", handlers.Duels.CreateDuel)
	mux.HandleFunc("GET /api/duels/{id}", handlers.Duels.GetDuel)
	mux.HandleFunc("POST /api/duels/{id}/join", handlers.Duels.JoinDuel)
	mux.HandleFunc("POST /api/duels/{id}/deposit", handlers.Duels.SubmitDeposit)
	mux.HandleFunc("POST /api/duels/{id}/resolve", handlers.Duels.ResolveDuel)
	mux.HandleFunc("POST /api/duels/{id}/claim", handlers.Duels.ClaimDuel)
	mux.HandleFunc("POST /api/duels/{id}/cancel", handlers.Duels.CancelDuel)
	mux.HandleFunc("GET /api/duels/{id}/escrow", handlers.Escrow.ListDuelEscrow)

	// Pool endpoints.
	mux.HandleFunc("GET /api/pools", handlers.Pools.ListPools)
	mux.HandleFunc("POST /api/pools", handlers.Pools.CreatePool)
	mux.HandleFunc("GET /api/pools/{id}", handlers.Pools.GetPool)
	mux.HandleFunc("GET /api/pools/{id}/quote", handlers.Pools.QuotePool)
	mux.HandleFunc("GET /api/pools/{id}/trades", handlers.Pools.ListTrades)
	mux.HandleFunc("POST /api/pools/{id}/trades", handlers.Pools.RecordTrade)
	mux.HandleFunc("POST /api/pools/{id}/resolve", handlers.Pools.ResolvePool)
	mux.HandleFunc("POST /api/pools/{id}/claim", handlers.Pools.ClaimPool)

	// Escrow and statistics endpoints.
	mux.HandleFunc("GET /api/escrow", handlers.Escrow.ListWalletEscrow)
	mux.HandleFunc("GET /api/stats/{wallet}", handlers.Escrow.GetStats)
	mux.HandleFunc("GET /api/leaderboard", handlers.Escrow.Leaderboard)

	// Prometheus metrics.
	mux.Handle("GET /metrics", promhttp.Handler())

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-client rate limiting when configured.
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	// Apply request logging and metrics middleware.
	h = middleware.Logging(logger)(h)
	h = metrics.Instrument(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

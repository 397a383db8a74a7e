// Package server exposes the ledger and read model over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/udlabs/pulseratings/internal/domain"
	"github.com/udlabs/pulseratings/internal/server/handler"
	"github.com/udlabs/pulseratings/internal/server/middleware"
	"github.com/udlabs/pulseratings/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	AdminAPIKey string // if empty, the admin surface is disabled

	// Rate limiting of public endpoints. Zero RateLimit disables it.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health      *handler.HealthHandler
	Markets     *handler.MarketHandler
	Ratings     *handler.RatingHandler
	Leaderboard *handler.LeaderboardHandler
	Snapshots   *handler.SnapshotHandler
	Users       *handler.UserHandler
	Bank        *handler.BankHandler
	Admin       *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server for the reputation ledger.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. The admin surface
// mounts only when an API key is configured; everything else is public.
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handlers.Health.HealthCheck)

	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/resolve", handlers.Markets.ResolveMarket)

	mux.HandleFunc("GET /api/ratings/preview", handlers.Ratings.Preview)
	mux.HandleFunc("POST /api/ratings/up", handlers.Ratings.CreateUp)
	mux.HandleFunc("POST /api/ratings/down", handlers.Ratings.CreateDown)

	mux.HandleFunc("GET /api/leaderboard", handlers.Leaderboard.List)
	mux.HandleFunc("GET /api/users/{address}/ratings", handlers.Users.GetRatings)

	if handlers.Bank != nil {
		mux.HandleFunc("GET /api/bank/{address}", handlers.Bank.GetBalance)
	}

	mux.HandleFunc("GET /api/snapshot", handlers.Snapshots.Get)
	mux.HandleFunc("POST /api/snapshot/refresh", handlers.Snapshots.Refresh)
	mux.HandleFunc("GET /api/snapshot/history", handlers.Snapshots.History)
	mux.HandleFunc("GET /api/snapshot/history/{key...}", handlers.Snapshots.HistoryEntry)

	if cfg.AdminAPIKey != "" && handlers.Admin != nil {
		admin := http.NewServeMux()
		admin.HandleFunc("GET /api/admin/status", handlers.Admin.Status)
		admin.HandleFunc("POST /api/admin/pause", handlers.Admin.SetPaused)
		admin.HandleFunc("POST /api/admin/receiver", handlers.Admin.SetReceiver)
		admin.HandleFunc("POST /api/admin/ownership/transfer", handlers.Admin.TransferOwnership)
		admin.HandleFunc("POST /api/admin/ownership/accept", handlers.Admin.AcceptOwnership)
		admin.HandleFunc("POST /api/admin/recover", handlers.Admin.RecoverAsset)
		if handlers.Bank != nil {
			admin.HandleFunc("POST /api/admin/deposit", handlers.Bank.Deposit)
		}
		mux.Handle("/api/admin/", middleware.Auth(cfg.AdminAPIKey)(admin))
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.Logging(logger)(h)
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

// Package server assembles the HTTP API: routes, middleware, and the
// WebSocket endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/jaylabs/cryptocasino/internal/domain"
	"github.com/jaylabs/cryptocasino/internal/server/handler"
	"github.com/jaylabs/cryptocasino/internal/server/middleware"
	"github.com/jaylabs/cryptocasino/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateWindow. Zero disables the
	// global limiter.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Games       *handler.GameHandler
	Records     *handler.RecordHandler
	Settlements *handler.SettlementHandler
	Audit       *handler.AuditHandler
}

// Server is the HTTP + WebSocket API server for the casino backend.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (CORS, logging, auth, rate limiting) applied.
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required, registered before the auth wrap would
	// matter if auth ever becomes route-scoped).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Game endpoints.
	mux.HandleFunc("GET /api/games", handlers.Games.ListGames)
	mux.HandleFunc("GET /api/games/latest", handlers.Games.GetLatestGame)
	mux.HandleFunc("GET /api/games/{gameId}", handlers.Games.GetGame)
	mux.HandleFunc("POST /api/games/{gameId}/join", handlers.Games.JoinGame)

	// Settlement endpoints.
	mux.HandleFunc("POST /api/games/{gameId}/settle", handlers.Settlements.Settle)
	mux.HandleFunc("GET /api/games/{gameId}/settlement", handlers.Settlements.GetSettlement)
	mux.HandleFunc("GET /api/settlements", handlers.Settlements.ListSettlements)

	// Delegation record endpoints.
	mux.HandleFunc("POST /api/records", handlers.Records.CreateRecord)
	mux.HandleFunc("GET /api/records/game/{gameId}", handlers.Records.ListByGame)
	mux.HandleFunc("DELETE /api/records/game/{gameId}", handlers.Records.DeleteByGame)
	mux.HandleFunc("DELETE /api/records/id/{id}", handlers.Records.DeleteByID)

	// Audit log.
	mux.HandleFunc("GET /api/audit", handlers.Audit.List)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h = cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           86400,
	}).Handler(h)

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

// Package server exposes the recommendation API over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/polyrec/internal/domain"
	"github.com/alanyoungcy/polyrec/internal/server/handler"
	"github.com/alanyoungcy/polyrec/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKeys     []string // if empty, partner authentication is disabled
	// PartnerRateLimit is the number of partner requests allowed per
	// PartnerRateWindow. Zero disables the limit.
	PartnerRateLimit  int
	PartnerRateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health        *handler.HealthHandler
	Status        *handler.StatusHandler
	Markets       *handler.MarketHandler
	WalletProfile *handler.WalletProfileHandler
	Partner       *handler.PartnerHandler
	Pipeline      *handler.PipelineHandler
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// limiter may be nil, which disables partner rate limiting.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	mux := http.NewServeMux()

	// Protected routes: API key, then per-client rate limit.
	protect := func(h http.HandlerFunc) http.Handler {
		var out http.Handler = h
		if limiter != nil && cfg.PartnerRateLimit > 0 {
			window := cfg.PartnerRateWindow
			if window <= 0 {
				window = time.Minute
			}
			out = middleware.RateLimit(limiter, cfg.PartnerRateLimit, window, logger)(out)
		}
		return middleware.Auth(cfg.APIKeys)(out)
	}

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	mux.HandleFunc("GET /api/markets/recommendations/{wallet}", handlers.Markets.Recommendations)
	mux.HandleFunc("GET /api/markets/by-slugs", handlers.Markets.BySlugs)
	mux.HandleFunc("GET /api/markets/{slug}", handlers.Markets.GetMarket)

	mux.HandleFunc("GET /api/wallet-profile/{wallet}", handlers.WalletProfile.GetProfile)

	mux.Handle("POST /api/b2b/rank", protect(handlers.Partner.Rank))

	if handlers.Pipeline != nil {
		mux.Handle("POST /api/pipeline/trigger", protect(handlers.Pipeline.TriggerPipeline))
		mux.Handle("GET /api/pipeline/runs", protect(handlers.Pipeline.ListRuns))
	}

	var h http.Handler = mux
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
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

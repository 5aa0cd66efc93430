// Package server exposes the scanner over HTTP and websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/server/handler"
	"github.com/October-1030/AAOKX-sub001/internal/server/middleware"
	"github.com/October-1030/AAOKX-sub001/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port             int
	CORSOrigins      []string
	APIKey           string // empty disables authentication
	RevalidateLimit  int
	RevalidateWindow time.Duration
}

// Handlers aggregates the route handlers. Archive and Metrics are optional.
type Handlers struct {
	Health        *handler.HealthHandler
	Opportunities *handler.OpportunityHandler
	Quotes        *handler.QuoteHandler
	Archive       *handler.ArchiveHandler
	Metrics       http.Handler
}

// Server is the HTTP + websocket API of the scanner.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain. limiter may be nil, which disables revalidation rate limiting.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/opportunities", handlers.Opportunities.ListLive)
	mux.HandleFunc("GET /api/opportunities/history", handlers.Opportunities.History)
	mux.HandleFunc("GET /api/opportunities/{id}", handlers.Opportunities.Get)

	revalidate := http.Handler(http.HandlerFunc(handlers.Opportunities.Revalidate))
	if limiter != nil {
		revalidate = middleware.RateLimit(limiter, "revalidate", cfg.RevalidateLimit, cfg.RevalidateWindow, logger)(revalidate)
	}
	mux.Handle("POST /api/opportunities/{id}/revalidate", revalidate)

	mux.HandleFunc("GET /api/symbols", handlers.Quotes.ListSymbols)
	mux.HandleFunc("GET /api/quotes/{symbol}", handlers.Quotes.GetQuotes)

	if handlers.Archive != nil {
		mux.HandleFunc("GET /api/archive", handlers.Archive.List)
		mux.HandleFunc("GET /api/archive/object", handlers.Archive.Object)
		mux.HandleFunc("POST /api/archive/run", handlers.Archive.Run)
	}
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

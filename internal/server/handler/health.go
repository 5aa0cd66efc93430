package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
)

// Check probes one backend.
type Check func(ctx context.Context) error

// EngineStats is the engine state reported by the health endpoint.
type EngineStats interface {
	Symbols() []domain.Symbol
	ListLive() []domain.Opportunity
	QueueDepth() int
}

// HealthHandler serves GET /api/health.
type HealthHandler struct {
	mode      string
	startedAt time.Time
	stats     EngineStats
	checks    map[string]Check
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. checks may be nil.
func NewHealthHandler(mode string, stats EngineStats, checks map[string]Check, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:      mode,
		startedAt: time.Now(),
		stats:     stats,
		checks:    checks,
		logger:    logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck reports 200 when every backend check passes and 503 with
// status "degraded" otherwise.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	backends := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed", slog.String("backend", name), slog.String("error", err.Error()))
			backends[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		backends[name] = "ok"
	}

	body := map[string]any{
		"status":         status,
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"backends":       backends,
	}
	if h.stats != nil {
		body["engine"] = map[string]int{
			"symbols":     len(h.stats.Symbols()),
			"live":        len(h.stats.ListLive()),
			"queue_depth": h.stats.QueueDepth(),
		}
	}
	writeJSON(w, code, body)
}

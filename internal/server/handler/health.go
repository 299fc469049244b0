package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is an optional dependency whose reachability is reported by the
// health check, such as the Redis mirror.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	redis     Pinger
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. redis may be nil when the
// mirror is disabled.
func NewHealthHandler(redis Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		redis:     redis,
		startedAt: time.Now().UTC(),
		logger:    logHandler(logger, "health"),
	}
}

// HealthCheck reports liveness. A failing Redis ping degrades the status but
// still answers 200; the API itself is up.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":     "ok",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"started_at": h.startedAt.Format(time.RFC3339),
	}

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.redis.Ping(ctx); err != nil {
			h.logger.WarnContext(r.Context(), "redis ping failed", slog.String("error", err.Error()))
			resp["status"] = "degraded"
			resp["redis"] = "unreachable"
		} else {
			resp["redis"] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

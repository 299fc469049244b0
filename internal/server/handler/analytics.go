package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradeview/internal/analytics"
)

// Aggregator is the part of analytics.Aggregator the handler needs.
type Aggregator interface {
	Refresh(ctx context.Context) error
	SetSymbol(symbol string) analytics.State
	State() analytics.State
}

// AnalyticsHandler serves the execution quality report.
type AnalyticsHandler struct {
	agg    Aggregator
	logger *slog.Logger
}

// NewAnalyticsHandler creates an AnalyticsHandler.
func NewAnalyticsHandler(agg Aggregator, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{agg: agg, logger: logHandler(logger, "analytics")}
}

// GetReport returns the aggregator report. The aggregator is refreshed when
// asked to or when it has never loaded. A symbol parameter (possibly empty,
// meaning all) changes the filter without refetching. Fetch failures are
// reported in the body's error field next to the last good data.
// GET /api/analytics?symbol=S&refresh=true
func (h *AnalyticsHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	if queryBool(r, "refresh") || h.agg.State().RefreshedAt.IsZero() {
		if err := h.agg.Refresh(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "analytics refresh failed", slog.String("error", err.Error()))
		}
	}

	state := h.agg.State()
	if q := r.URL.Query(); q.Has("symbol") {
		state = h.agg.SetSymbol(q.Get("symbol"))
	}
	writeJSON(w, http.StatusOK, state.Report())
}

package handler

import (
	"net/http"

	"github.com/alanyoungcy/tradeview/internal/domain"
)

// StatsSource returns the last successfully polled dashboard stats.
type StatsSource interface {
	Latest() (domain.DashboardStats, bool)
}

// DashboardHandler serves the latest dashboard stats.
type DashboardHandler struct {
	stats StatsSource
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(stats StatsSource) *DashboardHandler {
	return &DashboardHandler{stats: stats}
}

// GetStats returns the last good stats. Before the first successful poll the
// body reports available=false rather than an error.
// GET /api/dashboard
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, ok := h.stats.Latest()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"available": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"available": true,
		"stats":     stats,
	})
}

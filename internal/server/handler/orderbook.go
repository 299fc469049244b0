package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/tradeview/internal/orderbook"
	"github.com/alanyoungcy/tradeview/internal/poll"
)

// maxDepth bounds the depth query parameter.
const maxDepth = 500

// BookCache is the part of orderbook.Cache the handler needs.
type BookCache interface {
	View(symbol string) orderbook.View
	Fetch(ctx context.Context, symbol string) error
	StartWatching(ctx context.Context, symbol string) *poll.Subscription
	Watching() string
	Interval() time.Duration
}

// OrderbookHandler serves cached order book views.
type OrderbookHandler struct {
	cache        BookCache
	watchCtx     context.Context
	defaultDepth int
	logger       *slog.Logger
}

// NewOrderbookHandler creates an OrderbookHandler. watchCtx bounds polling
// loops started through the watch endpoint and must outlive any request.
func NewOrderbookHandler(watchCtx context.Context, cache BookCache, defaultDepth int, logger *slog.Logger) *OrderbookHandler {
	return &OrderbookHandler{
		cache:        cache,
		watchCtx:     watchCtx,
		defaultDepth: defaultDepth,
		logger:       logHandler(logger, "orderbook"),
	}
}

type orderbookResponse struct {
	orderbook.View
	Stale    bool             `json:"stale"`
	Watching bool             `json:"watching"`
	Depth    *orderbook.Depth `json:"depth,omitempty"`
}

// GetOrderbook returns the cached view of a symbol plus display depth. A
// symbol that was never loaded is fetched once inline.
// GET /api/orderbook/{symbol}?depth=N
func (h *OrderbookHandler) GetOrderbook(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.PathValue("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	depth := queryInt(r, "depth", h.defaultDepth, maxDepth)

	view := h.cache.View(symbol)
	if view.State == orderbook.StateIdle {
		if err := h.cache.Fetch(r.Context(), symbol); err != nil {
			h.logger.WarnContext(r.Context(), "inline fetch failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
		view = h.cache.View(symbol)
	}

	if view.Snapshot == nil && view.State == orderbook.StateErrored {
		writeError(w, http.StatusBadGateway, view.Error)
		return
	}

	resp := orderbookResponse{
		View:     view,
		Stale:    view.Stale(time.Now(), 2*h.cache.Interval()),
		Watching: h.cache.Watching() == symbol,
	}
	if view.Snapshot != nil {
		d := orderbook.BuildDepth(*view.Snapshot, depth)
		resp.Depth = &d
	}
	writeJSON(w, http.StatusOK, resp)
}

type watchRequest struct {
	Symbol string `json:"symbol"`
}

// Watch switches the polled symbol. The previous loop is stopped first.
// PUT /api/orderbook/watch
func (h *OrderbookHandler) Watch(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	symbol := strings.TrimSpace(req.Symbol)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	h.cache.StartWatching(h.watchCtx, symbol)
	h.logger.InfoContext(r.Context(), "watch switched", slog.String("symbol", symbol))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"watching": symbol,
		"interval": h.cache.Interval().String(),
	})
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/tradeview/internal/domain"
)

// maxRecentOrders bounds the recent orders query.
const maxRecentOrders = 200

// Submitter is the trade submission pipeline.
type Submitter interface {
	Submit(ctx context.Context, req domain.TradeRequest) (domain.OrderRecord, error)
}

// OrderLog reads the durable submission log, newest first.
type OrderLog interface {
	StreamLatest(ctx context.Context, stream string, count int) ([]domain.StreamMessage, error)
}

// OrderFeed receives accepted orders for live push.
type OrderFeed interface {
	Broadcast(channel string, v any)
}

// TradeHandler accepts trade submissions and lists recent ones.
type TradeHandler struct {
	pipeline Submitter
	log      OrderLog
	stream   string
	feed     OrderFeed
	channel  string
	logger   *slog.Logger
}

// TradeOption configures a TradeHandler.
type TradeOption func(*TradeHandler)

// WithOrderLog serves GET /api/orders/recent from stream.
func WithOrderLog(l OrderLog, stream string) TradeOption {
	return func(h *TradeHandler) {
		h.log = l
		h.stream = stream
	}
}

// WithOrderFeed broadcasts every accepted order on channel.
func WithOrderFeed(f OrderFeed, channel string) TradeOption {
	return func(h *TradeHandler) {
		h.feed = f
		h.channel = channel
	}
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(pipeline Submitter, logger *slog.Logger, opts ...TradeOption) *TradeHandler {
	h := &TradeHandler{
		pipeline: pipeline,
		logger:   logHandler(logger, "trade"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SubmitTrade validates and submits one order.
// POST /api/trade
func (h *TradeHandler) SubmitTrade(w http.ResponseWriter, r *http.Request) {
	var req domain.TradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Symbol = strings.TrimSpace(req.Symbol)
	req.Side = domain.OrderSide(strings.ToUpper(string(req.Side)))
	req.Type = domain.OrderType(strings.ToUpper(string(req.Type)))
	if req.Type == "" {
		req.Type = domain.OrderTypeMarket
	}

	rec, err := h.pipeline.Submit(r.Context(), req)
	if err != nil {
		h.writeSubmitError(w, r, err)
		return
	}

	if h.feed != nil {
		h.feed.Broadcast(h.channel, rec)
	}

	status := http.StatusCreated
	if !rec.Filled() {
		status = http.StatusAccepted
	}
	writeJSON(w, status, rec)
}

func (h *TradeHandler) writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	var serr *domain.SubmitError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": verr.Error(),
			"field": verr.Field,
		})
	case errors.Is(err, domain.ErrRateLimited):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, submitMessage(err))
	case errors.As(err, &serr):
		writeError(w, http.StatusBadGateway, serr.Message)
	default:
		h.logger.ErrorContext(r.Context(), "submit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func submitMessage(err error) string {
	var serr *domain.SubmitError
	if errors.As(err, &serr) {
		return serr.Message
	}
	return err.Error()
}

// ListRecent returns the newest entries of the submission log. Without a log
// the list is empty.
// GET /api/orders/recent?limit=N
func (h *TradeHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, maxRecentOrders)
	if h.log == nil {
		writeJSON(w, http.StatusOK, []json.RawMessage{})
		return
	}

	msgs, err := h.log.StreamLatest(r.Context(), h.stream, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read order log failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "order log unavailable")
		return
	}

	out := make([]json.RawMessage, 0, len(msgs))
	for _, m := range msgs {
		if json.Valid(m.Payload) {
			out = append(out, json.RawMessage(m.Payload))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

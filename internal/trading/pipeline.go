// Package trading submits trade requests to the venue and reports exactly
// what the venue returned. It never retries a submission.
package trading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradeview/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	// OrdersChannel is the pub/sub channel carrying OrderEvent payloads.
	OrdersChannel = "orders"
	// OrdersStream is the durable stream every submitted order is appended to.
	OrdersStream = "orders:log"

	genericSubmitMessage = "order submission failed"
	rateLimitKey         = "trades:submit"
)

// Notification event types.
const (
	EventOrderFilled  = "order_filled"
	EventOrderPending = "order_pending"
	EventSubmitFailed = "submit_failed"
)

// Submitter posts a trade and returns the venue's final record.
type Submitter interface {
	SubmitTrade(ctx context.Context, req domain.TradeRequest) (domain.OrderRecord, error)
}

// Notifier delivers operator notifications.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// OrderEvent is published on OrdersChannel after a successful submission.
type OrderEvent struct {
	Event       string             `json:"event"`
	OrderID     string             `json:"order_id"`
	Symbol      string             `json:"symbol"`
	Side        domain.OrderSide   `json:"side"`
	Type        domain.OrderType   `json:"type"`
	Quantity    decimal.Decimal    `json:"quantity"`
	Status      domain.OrderStatus `json:"status"`
	ExecPrice   *decimal.Decimal   `json:"exec_price,omitempty"`
	SlippageBps *decimal.Decimal   `json:"slippage_bps,omitempty"`
	At          time.Time          `json:"at"`
}

// NewOrderEvent builds the bus event for rec.
func NewOrderEvent(rec domain.OrderRecord, at time.Time) OrderEvent {
	evt := OrderEvent{
		Event:    "order_submitted",
		OrderID:  rec.OrderID,
		Symbol:   rec.Symbol,
		Side:     rec.Side,
		Type:     rec.Type,
		Quantity: rec.Quantity,
		Status:   rec.Status,
		At:       at,
	}
	if f, ok := rec.Fill(); ok {
		evt.ExecPrice = &f.Price
		evt.SlippageBps = &f.SlippageBps
	}
	return evt
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRateLimiter caps submissions at limit per window.
func WithRateLimiter(l domain.RateLimiter, limit int, window time.Duration) Option {
	return func(p *Pipeline) {
		if l != nil && limit > 0 && window > 0 {
			p.limiter = l
			p.limit = limit
			p.window = window
		}
	}
}

// WithSignalBus publishes an OrderEvent for every successful submission.
func WithSignalBus(bus domain.SignalBus) Option {
	return func(p *Pipeline) { p.bus = bus }
}

// WithNotifier sends fill, pending and failure notifications.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// Pipeline validates, submits and reconciles trades.
type Pipeline struct {
	venue    Submitter
	limiter  domain.RateLimiter
	limit    int
	window   time.Duration
	bus      domain.SignalBus
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewPipeline creates a Pipeline around venue.
func NewPipeline(venue Submitter, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		venue:  venue,
		logger: logger.With(slog.String("component", "trading")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit validates req locally and posts it once. A validation failure is
// returned as *domain.ValidationError without any network call. Every other
// failure is a *domain.SubmitError. The returned record is the venue's, FILLED
// or PENDING; nothing is assumed.
func (p *Pipeline) Submit(ctx context.Context, req domain.TradeRequest) (domain.OrderRecord, error) {
	if err := req.Validate(); err != nil {
		p.logger.InfoContext(ctx, "trading: rejected invalid request",
			slog.String("symbol", req.Symbol),
			slog.String("error", err.Error()),
		)
		return domain.OrderRecord{}, err
	}

	if p.limiter != nil {
		allowed, err := p.limiter.Allow(ctx, rateLimitKey, p.limit, p.window)
		switch {
		case err != nil:
			p.logger.WarnContext(ctx, "trading: rate limiter unavailable, allowing submission",
				slog.String("error", err.Error()),
			)
		case !allowed:
			serr := &domain.SubmitError{Message: "too many submissions, try again shortly", Cause: domain.ErrRateLimited}
			p.logger.WarnContext(ctx, "trading: submission rate limited", slog.String("symbol", req.Symbol))
			return domain.OrderRecord{}, serr
		}
	}

	rec, err := p.venue.SubmitTrade(ctx, req)
	if err != nil {
		serr := newSubmitError(err)
		p.logger.ErrorContext(ctx, "trading: submission failed",
			slog.String("symbol", req.Symbol),
			slog.String("side", string(req.Side)),
			slog.String("quantity", req.Quantity.String()),
			slog.String("error", err.Error()),
		)
		p.notify(ctx, EventSubmitFailed, "Order submission failed",
			fmt.Sprintf("%s %s %s: %s", req.Side, req.Quantity, req.Symbol, serr.Message))
		return domain.OrderRecord{}, serr
	}

	attrs := []any{
		slog.String("order_id", rec.OrderID),
		slog.String("symbol", rec.Symbol),
		slog.String("side", string(rec.Side)),
		slog.String("status", string(rec.Status)),
	}
	if f, ok := rec.Fill(); ok {
		attrs = append(attrs,
			slog.String("exec_price", f.Price.String()),
			slog.String("slippage_bps", f.SlippageBps.String()),
		)
		p.notify(ctx, EventOrderFilled, "Order filled",
			fmt.Sprintf("%s %s %s @ %s (slippage %s bps)", rec.Side, f.Qty, rec.Symbol, f.Price, f.SlippageBps.StringFixed(2)))
	} else {
		p.notify(ctx, EventOrderPending, "Order pending",
			fmt.Sprintf("%s %s %s is pending (order %s)", rec.Side, rec.Quantity, rec.Symbol, rec.OrderID))
	}
	p.logger.InfoContext(ctx, "trading: order submitted", attrs...)

	p.publish(ctx, rec)
	return rec, nil
}

// newSubmitError carries the venue's message when it sent one.
func newSubmitError(err error) *domain.SubmitError {
	msg := genericSubmitMessage
	if m, ok := domain.ServerMessage(err); ok {
		msg = m
	} else if errors.Is(err, domain.ErrMalformedResponse) {
		msg = "venue returned an unreadable order"
	}
	return &domain.SubmitError{Message: msg, Cause: err}
}

func (p *Pipeline) publish(ctx context.Context, rec domain.OrderRecord) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(NewOrderEvent(rec, p.now().UTC()))
	if err != nil {
		p.logger.WarnContext(ctx, "trading: marshal order event failed", slog.String("error", err.Error()))
		return
	}
	if err := p.bus.Publish(ctx, OrdersChannel, payload); err != nil {
		p.logger.WarnContext(ctx, "trading: publish order event failed",
			slog.String("order_id", rec.OrderID),
			slog.String("error", err.Error()),
		)
	}
	if err := p.bus.StreamAppend(ctx, OrdersStream, payload); err != nil {
		p.logger.WarnContext(ctx, "trading: append order stream failed",
			slog.String("order_id", rec.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pipeline) notify(ctx context.Context, event, title, message string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, event, title, message); err != nil {
		p.logger.WarnContext(ctx, "trading: notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

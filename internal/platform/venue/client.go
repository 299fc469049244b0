// Package venue is the REST client for the remote trading venue. It attaches
// the session's bearer credential, normalizes every failure into a
// *domain.VenueError and decodes the venue's JSON payloads into domain types.
package venue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/tradeview/internal/domain"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// DefaultTimeout bounds every venue request.
const DefaultTimeout = 10 * time.Second

// Config holds the venue connection parameters.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client is the venue REST client. It never retries; callers decide.
type Client struct {
	rc     *resty.Client
	creds  domain.CredentialSource
	logger *slog.Logger
	now    func() time.Time
}

// New creates a venue client. creds is consulted on every request.
func New(cfg Config, creds domain.CredentialSource, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger = logger.With(slog.String("component", "venue"))

	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{logger: logger})
	if cfg.UserAgent != "" {
		rc.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Client{
		rc:     rc,
		creds:  creds,
		logger: logger,
		now:    time.Now,
	}
}

// Send issues one request and returns the raw 2xx body. Any other outcome is
// a *domain.VenueError.
func (c *Client) Send(ctx context.Context, method, path string, body any) ([]byte, error) {
	req := c.rc.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString())

	if sess := c.creds.Current(); sess.Authenticated() {
		req.SetHeader("Authorization", "Bearer "+sess.Token)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, &domain.VenueError{
			Kind:    domain.TransportError,
			Message: transportMessage(ctx, err),
			Cause:   err,
		}
	}

	if !resp.IsSuccess() {
		verr := &domain.VenueError{
			Kind:    domain.ServerError,
			Status:  resp.StatusCode(),
			Message: serverMessage(resp.Body(), resp.Status()),
		}
		c.logger.DebugContext(ctx, "venue: non-2xx response",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", verr.Status),
			slog.String("message", verr.Message),
		)
		return nil, verr
	}

	return resp.Body(), nil
}

// GetOrderBook fetches the full book for symbol.
func (c *Client) GetOrderBook(ctx context.Context, symbol string) (domain.OrderBookSnapshot, error) {
	body, err := c.Send(ctx, http.MethodGet, "/orderbook/"+url.PathEscape(symbol), nil)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("venue: get order book %s: %w", symbol, err)
	}

	var book APIOrderBook
	if err := decode(body, &book); err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("venue: decode order book %s: %w", symbol, err)
	}
	snap, err := book.ToDomain(symbol, c.now().UTC())
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("venue: order book %s: %w", symbol, err)
	}
	return snap, nil
}

// SubmitTrade posts a trade and returns the final record from the same
// response; there is no separate confirm round trip.
func (c *Client) SubmitTrade(ctx context.Context, req domain.TradeRequest) (domain.OrderRecord, error) {
	body, err := c.Send(ctx, http.MethodPost, "/trade/", newAPITradeRequest(req))
	if err != nil {
		return domain.OrderRecord{}, fmt.Errorf("venue: submit trade: %w", err)
	}

	var order APIOrder
	if err := decode(body, &order); err != nil {
		return domain.OrderRecord{}, fmt.Errorf("venue: decode trade result: %w", err)
	}
	rec, err := order.ToDomainOrder()
	if err != nil {
		return domain.OrderRecord{}, fmt.Errorf("venue: trade result: %w", err)
	}
	return rec, nil
}

// ListMyOrders returns the account's full order history. A null or empty
// response yields an empty, non-nil slice.
func (c *Client) ListMyOrders(ctx context.Context) ([]domain.OrderRecord, error) {
	body, err := c.Send(ctx, http.MethodGet, "/me/orders", nil)
	if err != nil {
		return nil, fmt.Errorf("venue: list my orders: %w", err)
	}

	var apiOrders []APIOrder
	if err := decode(body, &apiOrders); err != nil {
		return nil, fmt.Errorf("venue: decode orders: %w", err)
	}

	orders := make([]domain.OrderRecord, 0, len(apiOrders))
	for i := range apiOrders {
		rec, err := apiOrders[i].ToDomainOrder()
		if err != nil {
			return nil, fmt.Errorf("venue: orders[%d]: %w", i, err)
		}
		orders = append(orders, rec)
	}
	return orders, nil
}

// MyAnalytics returns the venue-computed per-symbol stats. An empty account
// yields an empty, non-nil slice.
func (c *Client) MyAnalytics(ctx context.Context) ([]domain.SymbolStats, error) {
	body, err := c.Send(ctx, http.MethodGet, "/me/analytics", nil)
	if err != nil {
		return nil, fmt.Errorf("venue: my analytics: %w", err)
	}

	var list symbolStatsList
	if err := decode(body, &list); err != nil {
		return nil, fmt.Errorf("venue: decode analytics: %w", err)
	}

	stats := make([]domain.SymbolStats, 0, len(list))
	for _, s := range list {
		stats = append(stats, s.toDomain())
	}
	return stats, nil
}

// MyStats returns the dashboard summary for the account.
func (c *Client) MyStats(ctx context.Context) (domain.DashboardStats, error) {
	body, err := c.Send(ctx, http.MethodGet, "/me/stats", nil)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("venue: my stats: %w", err)
	}

	var apiStats APIDashboardStats
	if err := decode(body, &apiStats); err != nil {
		return domain.DashboardStats{}, fmt.Errorf("venue: decode stats: %w", err)
	}
	stats, err := apiStats.toDomain(c.now().UTC())
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("venue: stats: %w", err)
	}
	return stats, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// decode unmarshals a 2xx body. An empty body decodes as JSON null.
func decode(body []byte, out any) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("null")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return nil
}

// serverMessage extracts a human-readable message from an error body. It
// understands {"detail": ...}, {"message": ...} and {"error": ...} and falls
// back to the raw text, then to the HTTP status line.
func serverMessage(body []byte, status string) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"detail", "message", "error"} {
			v, ok := payload[key]
			if !ok || v == nil {
				continue
			}
			if s, ok := v.(string); ok {
				if s != "" {
					return s
				}
				continue
			}
			if b, err := json.Marshal(v); err == nil {
				return string(b)
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return status
}

func transportMessage(ctx context.Context, err error) string {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return "request cancelled"
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "request timed out"
	case isTimeout(err):
		return "request timed out"
	default:
		return err.Error()
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// restyLogger routes resty's internal warnings through slog.
type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

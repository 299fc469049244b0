package venue

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/tradeview/internal/domain"
	"github.com/alanyoungcy/tradeview/internal/session"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, sess domain.Session) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, session.NewStore(sess), logger)
}

func TestSendAttachesBearerOnlyWithSession(t *testing.T) {
	var gotAuth []string
	handler := func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		w.Write([]byte(`{}`))
	}

	c := newTestClient(t, handler, domain.Session{Token: "tok-1", AccountID: "acct"})
	_, err := c.Send(context.Background(), http.MethodGet, "/me/stats", nil)
	require.NoError(t, err)

	anon := newTestClient(t, handler, domain.Session{})
	_, err = anon.Send(context.Background(), http.MethodGet, "/me/stats", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer tok-1", ""}, gotAuth)
}

func TestSendNormalizesServerErrors(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		message  string
		sentinel error
	}{
		{"detail", http.StatusUnauthorized, `{"detail":"token expired"}`, "token expired", domain.ErrUnauthorized},
		{"message", http.StatusNotFound, `{"message":"unknown symbol"}`, "unknown symbol", domain.ErrNotFound},
		{"raw text", http.StatusTooManyRequests, `slow down`, "slow down", domain.ErrRateLimited},
		{"empty body", http.StatusBadGateway, ``, "502 Bad Gateway", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}, domain.Session{})

			_, err := c.Send(context.Background(), http.MethodGet, "/x", nil)
			var verr *domain.VenueError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, domain.ServerError, verr.Kind)
			assert.Equal(t, tc.status, verr.Status)
			assert.Equal(t, tc.message, verr.Message)
			if tc.sentinel != nil {
				assert.ErrorIs(t, err, tc.sentinel)
			}
			msg, ok := domain.ServerMessage(err)
			assert.True(t, ok)
			assert.Equal(t, tc.message, msg)
		})
	}
}

func TestSendTimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() { close(release); srv.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, session.NewStore(domain.Session{}), logger)

	_, err := c.Send(context.Background(), http.MethodGet, "/orderbook/BTC", nil)
	require.Error(t, err)
	assert.True(t, domain.IsTransport(err))
	var verr *domain.VenueError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "request timed out", verr.Message)
}

func TestSendCancelledIsTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}, domain.Session{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Send(ctx, http.MethodGet, "/me/stats", nil)
	var verr *domain.VenueError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, domain.TransportError, verr.Kind)
	assert.Equal(t, "request cancelled", verr.Message)
}

func TestGetOrderBookSortsAndComputesMid(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orderbook/BTC", r.URL.Path)
		w.Write([]byte(`{
			"symbol": "BTC",
			"bids": [{"price": "99", "size": "1"}, {"price": 100, "size": 2}],
			"asks": [{"price": "103", "size": "1"}, {"price": "102", "size": "4"}]
		}`))
	}, domain.Session{})

	snap, err := c.GetOrderBook(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "100", snap.Bids[0].Price.String())
	assert.Equal(t, "102", snap.Asks[0].Price.String())
	assert.Equal(t, "101", snap.Mid.String())
	assert.Equal(t, domain.BookSideBid, snap.Bids[1].Side)
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestGetOrderBookEscapesSymbol(t *testing.T) {
	cases := map[string]string{
		"BTC/USD": "/orderbook/BTC%2FUSD",
		"ES?x=1":  "/orderbook/ES%3Fx=1",
	}
	for symbol, wantPath := range cases {
		t.Run(symbol, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, wantPath, r.URL.EscapedPath())
				assert.Equal(t, "/orderbook/"+symbol, r.URL.Path)
				assert.Empty(t, r.URL.RawQuery)
				w.Write([]byte(`{"bids": [{"price": "100", "size": "1"}], "asks": [{"price": "101", "size": "1"}]}`))
			}, domain.Session{})

			snap, err := c.GetOrderBook(context.Background(), symbol)
			require.NoError(t, err)
			assert.Equal(t, symbol, snap.Symbol)
		})
	}
}

func TestGetOrderBookRejectsBadLevel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bids": [{"price": "0", "size": "1"}], "asks": []}`))
	}, domain.Session{})

	_, err := c.GetOrderBook(context.Background(), "BTC")
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestGetOrderBookEmptySideHasNoMid(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bids": [{"price": "100", "size": "1"}], "asks": null}`))
	}, domain.Session{})

	snap, err := c.GetOrderBook(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, "ETH", snap.Symbol)
	assert.True(t, snap.Incomplete())
	assert.True(t, snap.Mid.IsZero())
}

func TestSubmitTradeSendsBodyAndDecodesFill(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/trade/", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "BTC", body["symbol"])
		assert.Equal(t, "LIMIT", body["type"])
		assert.Equal(t, "101.5", body["limit_price"])

		w.Write([]byte(`{
			"order_id": "o-9", "symbol": "BTC", "side": "BUY", "type": "LIMIT",
			"quantity": "2", "limit_price": "101.5", "status": "FILLED", "arrival_mid": "101",
			"created_at": "2024-03-01T09:00:00Z", "updated_at": "2024-03-01T09:00:01Z",
			"execution": {"exec_id": "x-9", "exec_price": "101.2", "exec_qty": "2", "slippage_bps": 1.98,
			              "exec_created_at": "2024-03-01T09:00:01Z"}
		}`))
	}, domain.Session{Token: "t"})

	price := decimal.RequireFromString("101.5")
	rec, err := c.SubmitTrade(context.Background(), domain.TradeRequest{
		Symbol: "BTC", Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit,
		Quantity: decimal.NewFromInt(2), LimitPrice: &price,
	})
	require.NoError(t, err)
	f, ok := rec.Fill()
	require.True(t, ok)
	assert.Equal(t, "1.98", f.SlippageBps.String())
	assert.Equal(t, "x-9", f.ExecID)
}

func TestListMyOrders(t *testing.T) {
	t.Run("null is empty", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`null`))
		}, domain.Session{})
		orders, err := c.ListMyOrders(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, orders)
		assert.Empty(t, orders)
	})

	t.Run("pending ignores stray execution fields", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[{"order_id": "o-1", "symbol": "BTC", "side": "sell", "type": "MARKET",
				"quantity": "1", "status": "PENDING", "execution": {"exec_qty": "0", "slippage_bps": "0"}}]`))
		}, domain.Session{})
		orders, err := c.ListMyOrders(context.Background())
		require.NoError(t, err)
		require.Len(t, orders, 1)
		assert.Equal(t, domain.OrderSideSell, orders[0].Side)
		assert.False(t, orders[0].Filled())
		assert.IsType(t, domain.Unfilled{}, orders[0].Execution)
	})

	t.Run("filled without execution is malformed", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[{"order_id": "o-1", "symbol": "BTC", "side": "BUY", "type": "MARKET",
				"quantity": "1", "status": "FILLED"}]`))
		}, domain.Session{})
		_, err := c.ListMyOrders(context.Background())
		assert.ErrorIs(t, err, domain.ErrMalformedResponse)
	})
}

func TestMyAnalyticsShapes(t *testing.T) {
	cases := map[string]struct {
		body string
		want int
	}{
		"null":   {`null`, 0},
		"empty":  {``, 0},
		"object": {`{"symbol": "BTC", "total_trades": 3, "avg_slippage_bps": "5"}`, 1},
		"array":  {`[{"symbol": "BTC"}, {"symbol": "ETH"}]`, 2},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}, domain.Session{})
			stats, err := c.MyAnalytics(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, stats)
			assert.Len(t, stats, tc.want)
		})
	}
}

func TestMyStatsRequiresFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"open_orders": 4, "portfolio_value": "1250.50"}`))
	}, domain.Session{})
	stats, err := c.MyStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.OpenOrders)
	assert.Equal(t, "1250.5", stats.PortfolioValue.String())

	bad := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"open_orders": 4}`))
	}, domain.Session{})
	_, err = bad.MyStats(context.Background())
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

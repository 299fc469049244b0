package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/tradeview/internal/analytics"
	"github.com/alanyoungcy/tradeview/internal/domain"
	"github.com/alanyoungcy/tradeview/internal/orderbook"
	"github.com/alanyoungcy/tradeview/internal/poll"
	"github.com/alanyoungcy/tradeview/internal/session"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.DiscardHandler)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeBook struct {
	views    map[string]orderbook.View
	onFetch  func(symbol string) orderbook.View
	fetches  int
	watching string
}

func (f *fakeBook) View(symbol string) orderbook.View {
	if v, ok := f.views[symbol]; ok {
		return v
	}
	return orderbook.View{Symbol: symbol, State: orderbook.StateIdle}
}

func (f *fakeBook) Fetch(_ context.Context, symbol string) error {
	f.fetches++
	v := f.onFetch(symbol)
	f.views[symbol] = v
	return v.Err
}

func (f *fakeBook) StartWatching(_ context.Context, symbol string) *poll.Subscription {
	f.watching = symbol
	return nil
}

func (f *fakeBook) Watching() string        { return f.watching }
func (f *fakeBook) Interval() time.Duration { return time.Minute }

func readySnapshot() *domain.OrderBookSnapshot {
	return &domain.OrderBookSnapshot{
		Symbol:    "BTC-USD",
		Mid:       dec("100.5"),
		Bids:      []domain.OrderLevel{{Price: dec("100"), Size: dec("2")}, {Price: dec("99"), Size: dec("4")}},
		Asks:      []domain.OrderLevel{{Price: dec("101"), Size: dec("1")}},
		FetchedAt: time.Now(),
	}
}

func TestGetOrderbookFetchesOnceWhenIdle(t *testing.T) {
	book := &fakeBook{
		views: map[string]orderbook.View{},
		onFetch: func(symbol string) orderbook.View {
			return orderbook.View{Symbol: symbol, State: orderbook.StateReady, Snapshot: readySnapshot()}
		},
	}
	h := NewOrderbookHandler(context.Background(), book, 20, testLogger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/orderbook/{symbol}", h.GetOrderbook)

	for range 2 {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orderbook/BTC-USD?depth=1", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			State string          `json:"state"`
			Stale bool            `json:"stale"`
			Depth orderbook.Depth `json:"depth"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ready", body.State)
		assert.False(t, body.Stale)
		require.Len(t, body.Depth.Bids, 1)
		assert.Equal(t, "1", body.Depth.Bids[0].Width.String())
	}
	assert.Equal(t, 1, book.fetches)
}

func TestGetOrderbookErroredWithoutSnapshotIs502(t *testing.T) {
	book := &fakeBook{
		views: map[string]orderbook.View{},
		onFetch: func(symbol string) orderbook.View {
			err := errors.New("venue: transport error: request timed out")
			return orderbook.View{Symbol: symbol, State: orderbook.StateErrored, Err: err, Error: err.Error()}
		},
	}
	h := NewOrderbookHandler(context.Background(), book, 20, testLogger)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/orderbook/{symbol}", h.GetOrderbook)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orderbook/ETH-USD", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "request timed out")
}

func TestGetOrderbookErroredKeepsLastGoodSnapshot(t *testing.T) {
	book := &fakeBook{views: map[string]orderbook.View{
		"BTC-USD": {Symbol: "BTC-USD", State: orderbook.StateErrored, Snapshot: readySnapshot(), Error: "boom"},
	}}
	h := NewOrderbookHandler(context.Background(), book, 20, testLogger)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/orderbook/{symbol}", h.GetOrderbook)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orderbook/BTC-USD", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"boom"`)
	assert.Contains(t, rec.Body.String(), `"depth"`)
	assert.Zero(t, book.fetches)
}

func TestWatch(t *testing.T) {
	book := &fakeBook{views: map[string]orderbook.View{}}
	h := NewOrderbookHandler(context.Background(), book, 20, testLogger)

	rec := httptest.NewRecorder()
	h.Watch(rec, httptest.NewRequest(http.MethodPut, "/api/orderbook/watch", strings.NewReader(`{"symbol":" ETH-USD "}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "ETH-USD", book.watching)

	rec = httptest.NewRecorder()
	h.Watch(rec, httptest.NewRequest(http.MethodPut, "/api/orderbook/watch", strings.NewReader(`{"symbol":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakePipeline struct {
	rec domain.OrderRecord
	err error
	got domain.TradeRequest
}

func (f *fakePipeline) Submit(_ context.Context, req domain.TradeRequest) (domain.OrderRecord, error) {
	f.got = req
	if err := req.Validate(); err != nil {
		return domain.OrderRecord{}, err
	}
	return f.rec, f.err
}

type fakeFeed struct{ channels []string }

func (f *fakeFeed) Broadcast(channel string, _ any) { f.channels = append(f.channels, channel) }

func TestSubmitTradeStatuses(t *testing.T) {
	filled := domain.OrderRecord{
		OrderID: "o-1", Symbol: "BTC-USD", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket,
		Quantity: dec("1"), Status: domain.OrderStatusFilled,
		Execution: domain.Fill{ExecID: "e-1", Price: dec("100"), Qty: dec("1"), SlippageBps: dec("2")},
	}
	pending := domain.OrderRecord{OrderID: "o-2", Status: domain.OrderStatusPending, Execution: domain.Unfilled{}}

	tests := []struct {
		name     string
		body     string
		pipeline *fakePipeline
		want     int
		contains string
	}{
		{
			name:     "filled",
			body:     `{"symbol":"BTC-USD","side":"buy","type":"market","quantity":"1"}`,
			pipeline: &fakePipeline{rec: filled},
			want:     http.StatusCreated,
			contains: `"exec_id":"e-1"`,
		},
		{
			name:     "pending",
			body:     `{"symbol":"BTC-USD","side":"SELL","quantity":1}`,
			pipeline: &fakePipeline{rec: pending},
			want:     http.StatusAccepted,
			contains: `"execution":null`,
		},
		{
			name:     "validation",
			body:     `{"symbol":"BTC-USD","side":"BUY","type":"LIMIT","quantity":"1"}`,
			pipeline: &fakePipeline{},
			want:     http.StatusBadRequest,
			contains: `"field":"limit_price"`,
		},
		{
			name:     "rate limited",
			body:     `{"symbol":"BTC-USD","side":"BUY","quantity":"1"}`,
			pipeline: &fakePipeline{err: &domain.SubmitError{Message: "too many submissions, try again shortly", Cause: domain.ErrRateLimited}},
			want:     http.StatusTooManyRequests,
			contains: "too many submissions",
		},
		{
			name:     "venue failure",
			body:     `{"symbol":"BTC-USD","side":"BUY","quantity":"1"}`,
			pipeline: &fakePipeline{err: &domain.SubmitError{Message: "insufficient balance"}},
			want:     http.StatusBadGateway,
			contains: "insufficient balance",
		},
		{
			name:     "bad json",
			body:     `{"symbol":`,
			pipeline: &fakePipeline{},
			want:     http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := &fakeFeed{}
			h := NewTradeHandler(tt.pipeline, testLogger, WithOrderFeed(feed, "orders"))

			rec := httptest.NewRecorder()
			h.SubmitTrade(rec, httptest.NewRequest(http.MethodPost, "/api/trade", strings.NewReader(tt.body)))

			assert.Equal(t, tt.want, rec.Code)
			if tt.contains != "" {
				assert.Contains(t, rec.Body.String(), tt.contains)
			}
			if rec.Code < 300 {
				assert.Equal(t, []string{"orders"}, feed.channels)
			} else {
				assert.Empty(t, feed.channels)
			}
		})
	}
}

func TestSubmitTradeNormalizesRequest(t *testing.T) {
	p := &fakePipeline{rec: domain.OrderRecord{Execution: domain.Unfilled{}}}
	h := NewTradeHandler(p, testLogger)

	rec := httptest.NewRecorder()
	h.SubmitTrade(rec, httptest.NewRequest(http.MethodPost, "/api/trade",
		strings.NewReader(`{"symbol":" ETH-USD ","side":"sell","quantity":"0.5"}`)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "ETH-USD", p.got.Symbol)
	assert.Equal(t, domain.OrderSideSell, p.got.Side)
	assert.Equal(t, domain.OrderTypeMarket, p.got.Type)
}

type fakeLog struct{ msgs []domain.StreamMessage }

func (f *fakeLog) StreamLatest(_ context.Context, _ string, count int) ([]domain.StreamMessage, error) {
	if count < len(f.msgs) {
		return f.msgs[:count], nil
	}
	return f.msgs, nil
}

func TestListRecent(t *testing.T) {
	t.Run("without log", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewTradeHandler(&fakePipeline{}, testLogger).ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/orders/recent", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("skips invalid payloads", func(t *testing.T) {
		l := &fakeLog{msgs: []domain.StreamMessage{
			{ID: "2-0", Payload: []byte(`{"order_id":"o-2"}`)},
			{ID: "1-0", Payload: []byte(`not json`)},
		}}
		h := NewTradeHandler(&fakePipeline{}, testLogger, WithOrderLog(l, "orders:log"))
		rec := httptest.NewRecorder()
		h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/orders/recent?limit=5", nil))
		assert.JSONEq(t, `[{"order_id":"o-2"}]`, rec.Body.String())
	})
}

type fakeAgg struct {
	state     analytics.State
	refreshes int
	symbol    string
}

func (f *fakeAgg) Refresh(context.Context) error {
	f.refreshes++
	f.state.RefreshedAt = time.Now()
	return nil
}

func (f *fakeAgg) SetSymbol(symbol string) analytics.State {
	f.symbol = symbol
	f.state.Symbol = symbol
	return f.state
}

func (f *fakeAgg) State() analytics.State { return f.state }

func TestGetReportRefreshPolicy(t *testing.T) {
	agg := &fakeAgg{}
	h := NewAnalyticsHandler(agg, testLogger)

	rec := httptest.NewRecorder()
	h.GetReport(rec, httptest.NewRequest(http.MethodGet, "/api/analytics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, agg.refreshes)

	h.GetReport(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/analytics?symbol=BTC-USD", nil))
	assert.Equal(t, 1, agg.refreshes)
	assert.Equal(t, "BTC-USD", agg.symbol)

	h.GetReport(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/analytics?refresh=true&symbol=", nil))
	assert.Equal(t, 2, agg.refreshes)
	assert.Equal(t, "", agg.symbol)
}

type fakeStats struct {
	stats domain.DashboardStats
	ok    bool
}

func (f fakeStats) Latest() (domain.DashboardStats, bool) { return f.stats, f.ok }

func TestGetStats(t *testing.T) {
	rec := httptest.NewRecorder()
	NewDashboardHandler(fakeStats{}).GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
	assert.JSONEq(t, `{"available":false}`, rec.Body.String())

	rec = httptest.NewRecorder()
	stats := domain.DashboardStats{OpenOrders: 3, PortfolioValue: dec("1250.5")}
	NewDashboardHandler(fakeStats{stats: stats, ok: true}).GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
	assert.Contains(t, rec.Body.String(), `"open_orders":3`)
}

func TestSessionLifecycle(t *testing.T) {
	store := session.NewStore(domain.Session{})
	h := NewSessionHandler(store, testLogger)

	rec := httptest.NewRecorder()
	h.PutSession(rec, httptest.NewRequest(http.MethodPut, "/api/session", strings.NewReader(`{"token":"tok","account_id":"acct-1"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", store.Current().Token)
	assert.NotContains(t, rec.Body.String(), "tok\"")

	rec = httptest.NewRecorder()
	h.PutSession(rec, httptest.NewRequest(http.MethodPut, "/api/session", strings.NewReader(`{"token":"  "}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.DeleteSession(rec, httptest.NewRequest(http.MethodDelete, "/api/session", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, store.Current().Authenticated())

	rec = httptest.NewRecorder()
	h.GetSession(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())
}

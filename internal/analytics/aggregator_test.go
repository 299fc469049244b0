package analytics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/tradeview/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	orders    []domain.OrderRecord
	ordersErr error
	stats     []domain.SymbolStats
	statsErr  error
	calls     int
}

func (f *fakeSource) ListMyOrders(context.Context) ([]domain.OrderRecord, error) {
	f.calls++
	return f.orders, f.ordersErr
}

func (f *fakeSource) MyAnalytics(context.Context) ([]domain.SymbolStats, error) {
	return f.stats, f.statsErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAggregatorInitialStateIsZeroDefined(t *testing.T) {
	a := NewAggregator(&fakeSource{}, discardLogger())
	s := a.State()

	assert.NotNil(t, s.Orders)
	assert.NotNil(t, s.Trend)
	assert.NotNil(t, s.VenueStats)
	assert.Equal(t, "0", s.Report().FillRate)
	assert.Equal(t, "0.00", s.Report().AvgSlippageBps)
}

func TestAggregatorNullHistory(t *testing.T) {
	src := &fakeSource{orders: nil, stats: nil}
	a := NewAggregator(src, discardLogger())

	require.NoError(t, a.Refresh(context.Background()))
	s := a.State()
	assert.NotNil(t, s.Orders)
	assert.Empty(t, s.Orders)
	assert.NotNil(t, s.VenueStats)
	assert.Equal(t, "0", s.Report().FillRate)
	assert.False(t, s.RefreshedAt.IsZero())
}

func TestAggregatorScenarioReport(t *testing.T) {
	src := &fakeSource{
		orders: []domain.OrderRecord{
			filled("a", "BTC", domain.OrderSideBuy, "4", t0),
			filled("b", "BTC", domain.OrderSideBuy, "6", t0.Add(time.Minute)),
			pending("c", "BTC", domain.OrderSideSell, t0.Add(2*time.Minute)),
		},
		stats: []domain.SymbolStats{{Symbol: "BTC", TotalTrades: 3, FilledTrades: 2, AvgSlippageBps: decimal.NewFromInt(5)}},
	}
	a := NewAggregator(src, discardLogger())
	require.NoError(t, a.Refresh(context.Background()))

	r := a.State().Report()
	assert.Equal(t, 3, r.TotalTrades)
	assert.Equal(t, "66.7", r.FillRate)
	assert.Equal(t, "5.00", r.AvgSlippageBps)
	assert.Len(t, r.Trend, 2)
	assert.Len(t, r.VenueStats, 1)
}

func TestAggregatorSetSymbolFiltersWithoutFetching(t *testing.T) {
	src := &fakeSource{
		orders: []domain.OrderRecord{
			filled("a", "BTC", domain.OrderSideBuy, "4", t0),
			filled("b", "ETH", domain.OrderSideBuy, "10", t0),
			pending("c", "ETH", domain.OrderSideSell, t0),
		},
		stats: []domain.SymbolStats{{Symbol: "BTC"}, {Symbol: "ETH"}},
	}
	a := NewAggregator(src, discardLogger())
	require.NoError(t, a.Refresh(context.Background()))

	s := a.SetSymbol("ETH")
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, "ETH", s.Symbol)
	assert.Equal(t, 2, s.Metrics.TotalTrades)
	assert.Equal(t, "50", s.Metrics.FillRate.String())
	assert.Equal(t, "50.0", s.Report().FillRate)
	assert.Equal(t, "10.00", s.Metrics.AvgSlippageBps.StringFixed(2))
	require.Len(t, s.VenueStats, 1)
	assert.Equal(t, "ETH", s.VenueStats[0].Symbol)
	assert.Equal(t, []string{"BTC", "ETH"}, s.Symbols)

	s = a.SetSymbol("")
	assert.Equal(t, 3, s.Metrics.TotalTrades)
	assert.Len(t, s.VenueStats, 2)
}

func TestAggregatorPartialFailureKeepsOtherSlot(t *testing.T) {
	src := &fakeSource{
		orders: []domain.OrderRecord{filled("a", "BTC", domain.OrderSideBuy, "4", t0)},
		stats:  []domain.SymbolStats{{Symbol: "BTC"}},
	}
	a := NewAggregator(src, discardLogger())
	require.NoError(t, a.Refresh(context.Background()))

	statsFailure := errors.New("stats unavailable")
	src.orders = append(src.orders, filled("b", "BTC", domain.OrderSideBuy, "6", t0))
	src.statsErr = statsFailure

	err := a.Refresh(context.Background())
	require.ErrorIs(t, err, statsFailure)

	s := a.State()
	assert.Equal(t, 2, s.Metrics.TotalTrades)
	assert.Len(t, s.VenueStats, 1)
	assert.ErrorIs(t, s.Err, statsFailure)
	assert.NotEmpty(t, s.Report().Error)
}

func TestAggregatorBothFetchesFail(t *testing.T) {
	ordersFailure := &domain.VenueError{Kind: domain.TransportError, Message: "request timed out"}
	statsFailure := &domain.VenueError{Kind: domain.ServerError, Status: 500, Message: "boom"}
	a := NewAggregator(&fakeSource{ordersErr: ordersFailure, statsErr: statsFailure}, discardLogger())

	err := a.Refresh(context.Background())
	assert.ErrorIs(t, err, ordersFailure)
	assert.ErrorIs(t, err, statsFailure)

	r := a.State().Report()
	assert.Equal(t, "0", r.FillRate)
	assert.Equal(t, "0.00", r.AvgSlippageBps)
	assert.NotNil(t, r.Orders)
}

func TestAggregatorTrendWindowOption(t *testing.T) {
	var orders []domain.OrderRecord
	for i := 0; i < 10; i++ {
		orders = append(orders, filled(string(rune('a'+i)), "BTC", domain.OrderSideBuy, "1", t0.Add(time.Duration(i)*time.Minute)))
	}
	a := NewAggregator(&fakeSource{orders: orders}, discardLogger(), WithTrendWindow(3))
	require.NoError(t, a.Refresh(context.Background()))

	trend := a.State().Trend
	require.Len(t, trend, 3)
	assert.Equal(t, "h", trend[0].OrderID)
	assert.Len(t, a.State().Executions, 10)
}

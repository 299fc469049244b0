package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeview/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Source provides the account's order history and venue-computed stats.
type Source interface {
	ListMyOrders(ctx context.Context) ([]domain.OrderRecord, error)
	MyAnalytics(ctx context.Context) ([]domain.SymbolStats, error)
}

// State is a consistent view of the aggregator after the last refresh or
// filter change. Slices are never nil.
type State struct {
	Symbol      string               `json:"symbol"`
	Symbols     []string             `json:"symbols"`
	Orders      []domain.OrderRecord `json:"orders"`
	Metrics     Metrics              `json:"metrics"`
	Trend       []Point              `json:"trend"`
	Executions  []Point              `json:"executions"`
	VenueStats  []domain.SymbolStats `json:"venue_stats"`
	RefreshedAt time.Time            `json:"refreshed_at"`
	Err         error                `json:"-"`
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTrendWindow overrides DefaultTrendWindow.
func WithTrendWindow(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.trendWindow = n
		}
	}
}

// Aggregator holds the fetched history and stats and the derived state.
type Aggregator struct {
	src         Source
	trendWindow int
	logger      *slog.Logger
	now         func() time.Time

	mu          sync.RWMutex
	orders      []domain.OrderRecord
	stats       []domain.SymbolStats
	symbol      string
	refreshedAt time.Time
	lastErr     error
	state       State
}

// NewAggregator creates an Aggregator. Its state is zero-defined until the
// first Refresh.
func NewAggregator(src Source, logger *slog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		src:         src,
		trendWindow: DefaultTrendWindow,
		logger:      logger.With(slog.String("component", "analytics")),
		now:         time.Now,
		orders:      []domain.OrderRecord{},
		stats:       []domain.SymbolStats{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.state = a.derive()
	return a
}

// Refresh fetches order history and venue stats concurrently. Each slot is
// replaced only when its own fetch succeeds; failures are joined and
// returned while the derived state is recomputed from what is held.
func (a *Aggregator) Refresh(ctx context.Context) error {
	var (
		orders    []domain.OrderRecord
		stats     []domain.SymbolStats
		ordersErr error
		statsErr  error
	)

	var g errgroup.Group
	g.Go(func() error {
		orders, ordersErr = a.src.ListMyOrders(ctx)
		return nil
	})
	g.Go(func() error {
		stats, statsErr = a.src.MyAnalytics(ctx)
		return nil
	})
	_ = g.Wait()

	var errs []error
	if ordersErr != nil {
		errs = append(errs, fmt.Errorf("analytics: order history: %w", ordersErr))
	}
	if statsErr != nil {
		errs = append(errs, fmt.Errorf("analytics: venue stats: %w", statsErr))
	}
	err := errors.Join(errs...)

	a.mu.Lock()
	if ordersErr == nil {
		if orders == nil {
			orders = []domain.OrderRecord{}
		}
		a.orders = orders
	}
	if statsErr == nil {
		if stats == nil {
			stats = []domain.SymbolStats{}
		}
		a.stats = stats
	}
	a.refreshedAt = a.now().UTC()
	a.lastErr = err
	a.state = a.derive()
	filled := a.state.Metrics.FilledTrades
	total := a.state.Metrics.TotalTrades
	a.mu.Unlock()

	if err != nil {
		a.logger.WarnContext(ctx, "analytics: refresh incomplete", slog.String("error", err.Error()))
	} else {
		a.logger.InfoContext(ctx, "analytics: refreshed",
			slog.Int("orders", total),
			slog.Int("filled", filled),
		)
	}
	return err
}

// SetSymbol narrows the working set to symbol without a network call. An
// empty symbol clears the filter.
func (a *Aggregator) SetSymbol(symbol string) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.symbol = symbol
	a.state = a.derive()
	return a.state
}

// State returns the current derived state.
func (a *Aggregator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// derive must be called with mu held.
func (a *Aggregator) derive() State {
	working := FilterBySymbol(a.orders, a.symbol)
	return State{
		Symbol:      a.symbol,
		Symbols:     Symbols(a.orders),
		Orders:      working,
		Metrics:     Compute(working),
		Trend:       SlippageTrend(working, a.trendWindow),
		Executions:  ExecutionSeries(working),
		VenueStats:  FilterStats(a.stats, a.symbol),
		RefreshedAt: a.refreshedAt,
		Err:         a.lastErr,
	}
}

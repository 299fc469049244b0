// Package dashboard polls the coarse account summary in the background. It
// is lower priority than the order book and trading: failures are logged and
// the next tick runs as scheduled.
package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeview/internal/domain"
	"github.com/alanyoungcy/tradeview/internal/poll"
)

// DefaultRefreshInterval is the dashboard polling cadence.
const DefaultRefreshInterval = 30 * time.Second

// StatsFetcher loads the dashboard summary.
type StatsFetcher interface {
	MyStats(ctx context.Context) (domain.DashboardStats, error)
}

// Poller owns the dashboard stats slot.
type Poller struct {
	fetcher  StatsFetcher
	interval time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	latest  *domain.DashboardStats
	subs    map[int]func(domain.DashboardStats)
	nextSub int
}

// NewPoller creates a Poller. A non-positive interval uses
// DefaultRefreshInterval.
func NewPoller(fetcher StatsFetcher, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Poller{
		fetcher:  fetcher,
		interval: interval,
		logger:   logger.With(slog.String("component", "dashboard")),
		subs:     make(map[int]func(domain.DashboardStats)),
	}
}

// Run polls until ctx is cancelled. It always returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "dashboard: poller started", slog.Duration("interval", p.interval))
	return poll.Loop(ctx, p.interval, p.tick)
}

// Start runs the poller in the background and returns its handle.
func (p *Poller) Start(ctx context.Context) *poll.Subscription {
	return poll.Start(ctx, p.interval, p.tick)
}

// Latest returns the most recent stats, if any tick has succeeded.
func (p *Poller) Latest() (domain.DashboardStats, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return domain.DashboardStats{}, false
	}
	return *p.latest, true
}

// Subscribe registers fn for every successful refresh.
func (p *Poller) Subscribe(fn func(domain.DashboardStats)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *Poller) tick(ctx context.Context) {
	stats, err := p.fetcher.MyStats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.WarnContext(ctx, "dashboard: refresh failed", slog.String("error", err.Error()))
		}
		return
	}

	p.mu.Lock()
	p.latest = &stats
	fns := make([]func(domain.DashboardStats), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(stats)
	}
}

// Package orderbook keeps a periodically refreshed, per-symbol view of the
// venue's order book and pushes every change to its subscribers.
package orderbook

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeview/internal/domain"
	"github.com/alanyoungcy/tradeview/internal/poll"
)

// DefaultRefreshInterval matches the venue's smoothing window; polling
// faster only spends the upstream rate budget.
const DefaultRefreshInterval = 60 * time.Second

// ErrSuperseded is returned by Fetch when a newer request for the same
// symbol was issued before this one completed. Its response is discarded.
var ErrSuperseded = errors.New("orderbook: response superseded by a newer request")

// State is the refresh state of one symbol.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateErrored State = "errored"
)

// Source tells where a View's snapshot came from.
type Source string

const (
	// SourceVenue marks a snapshot fetched by this cache.
	SourceVenue Source = "venue"
	// SourceMirror marks a peer process's snapshot loaded from the mirror
	// because this cache never fetched one successfully.
	SourceMirror Source = "mirror"
)

// Fetcher loads a full snapshot from the venue.
type Fetcher interface {
	GetOrderBook(ctx context.Context, symbol string) (domain.OrderBookSnapshot, error)
}

// View is what a reader sees for one symbol: the last good snapshot (if
// any) plus the error slot of the latest refresh.
type View struct {
	Symbol    string                    `json:"symbol"`
	State     State                     `json:"state"`
	Snapshot  *domain.OrderBookSnapshot `json:"snapshot,omitempty"`
	Source    Source                    `json:"source,omitempty"`
	Err       error                     `json:"-"`
	Error     string                    `json:"error,omitempty"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// Stale reports whether the snapshot is missing or older than maxAge.
func (v View) Stale(now time.Time, maxAge time.Duration) bool {
	if v.Snapshot == nil {
		return true
	}
	return now.Sub(v.Snapshot.FetchedAt) > maxAge
}

type book struct {
	state      State
	snap       *domain.OrderBookSnapshot
	fromMirror bool
	err       error
	seq       uint64
	updatedAt time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithRefreshInterval overrides DefaultRefreshInterval.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithMirror copies every applied snapshot to m.
func WithMirror(m domain.OrderbookMirror) Option {
	return func(c *Cache) { c.mirror = m }
}

// Cache owns one snapshot slot per symbol and at most one polling loop.
type Cache struct {
	fetcher  Fetcher
	mirror   domain.OrderbookMirror
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	books   map[string]*book
	subs    map[int]func(View)
	nextSub int

	watchMu  sync.Mutex
	watch    *poll.Subscription
	watchSym string
}

// NewCache creates an order book cache backed by fetcher.
func NewCache(fetcher Fetcher, logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		fetcher:  fetcher,
		interval: DefaultRefreshInterval,
		logger:   logger.With(slog.String("component", "orderbook_cache")),
		now:      time.Now,
		books:    make(map[string]*book),
		subs:     make(map[int]func(View)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Interval is the refresh cadence of the watch loop.
func (c *Cache) Interval() time.Duration { return c.interval }

// StartWatching fetches symbol immediately and then on every interval until
// the returned Subscription is cancelled or StopWatching is called. A
// previous watch is cancelled, and its goroutine has exited, before the new
// one starts. Subscribers must not call StartWatching from their callback.
func (c *Cache) StartWatching(ctx context.Context, symbol string) *poll.Subscription {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()

	if c.watch != nil {
		c.watch.Cancel()
		c.logger.InfoContext(ctx, "orderbook: stopped watching", slog.String("symbol", c.watchSym))
	}

	c.watchSym = symbol
	c.watch = poll.Start(ctx, c.interval, func(ctx context.Context) {
		err := c.Fetch(ctx, symbol)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrSuperseded) {
			c.logger.WarnContext(ctx, "orderbook: refresh failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	})
	c.logger.InfoContext(ctx, "orderbook: watching",
		slog.String("symbol", symbol),
		slog.Duration("interval", c.interval),
	)
	return c.watch
}

// StopWatching cancels the active watch, if any.
func (c *Cache) StopWatching() {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	if c.watch != nil {
		c.watch.Cancel()
		c.watch = nil
		c.watchSym = ""
	}
}

// Watching returns the symbol currently being polled.
func (c *Cache) Watching() string {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	return c.watchSym
}

// Fetch refreshes one symbol. On success the snapshot slot is replaced; on
// failure the error slot is set and the last good snapshot is kept. A slot
// that never held a snapshot is filled from the mirror, when one is set.
// Either way subscribers receive the new View. A fetch aborted by ctx keeps
// the snapshot and error slots and settles the state from them.
func (c *Cache) Fetch(ctx context.Context, symbol string) error {
	c.mu.Lock()
	b := c.bookLocked(symbol)
	b.seq++
	seq := b.seq
	b.state = StateLoading
	c.mu.Unlock()

	snap, err := c.fetcher.GetOrderBook(ctx, symbol)
	fallback := c.mirrored(ctx, symbol, err)

	c.mu.Lock()
	if seq != b.seq {
		c.mu.Unlock()
		c.logger.DebugContext(ctx, "orderbook: discarded superseded response",
			slog.String("symbol", symbol),
			slog.Uint64("seq", seq),
		)
		return ErrSuperseded
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		b.state = b.settled()
		c.mu.Unlock()
		return ctxErr
	}

	b.updatedAt = c.now().UTC()
	if err != nil {
		b.state = StateErrored
		b.err = err
		if b.snap == nil && fallback != nil {
			b.snap = fallback
			b.fromMirror = true
		}
	} else {
		b.state = StateReady
		b.err = nil
		b.snap = &snap
		b.fromMirror = false
	}
	view := b.view(symbol)
	c.mu.Unlock()

	if err == nil && c.mirror != nil {
		if mErr := c.mirror.SetSnapshot(ctx, snap); mErr != nil {
			c.logger.WarnContext(ctx, "orderbook: mirror snapshot failed",
				slog.String("symbol", symbol),
				slog.String("error", mErr.Error()),
			)
		}
	}

	c.notify(view)
	return err
}

// mirrored loads a peer's copy of symbol from the mirror after a failed
// fetch. It returns nil on success, without a mirror or when the mirror has
// nothing.
func (c *Cache) mirrored(ctx context.Context, symbol string, fetchErr error) *domain.OrderBookSnapshot {
	if fetchErr == nil || c.mirror == nil || ctx.Err() != nil {
		return nil
	}
	snap, err := c.mirror.GetSnapshot(ctx, symbol)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.WarnContext(ctx, "orderbook: mirror lookup failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	return &snap
}

// View returns the current view of symbol. Unknown symbols are Idle.
func (c *Cache) View(symbol string) View {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.books[symbol]
	if !ok {
		return View{Symbol: symbol, State: StateIdle}
	}
	return b.view(symbol)
}

// Snapshot returns the last good snapshot of symbol.
func (c *Cache) Snapshot(symbol string) (domain.OrderBookSnapshot, error) {
	v := c.View(symbol)
	if v.Snapshot == nil {
		return domain.OrderBookSnapshot{}, domain.ErrNoSnapshot
	}
	return *v.Snapshot, nil
}

// Subscribe registers fn for every View change. The returned function
// removes the subscription.
func (c *Cache) Subscribe(fn func(View)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Cache) notify(v View) {
	c.mu.Lock()
	fns := make([]func(View), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (c *Cache) bookLocked(symbol string) *book {
	b, ok := c.books[symbol]
	if !ok {
		b = &book{state: StateIdle}
		c.books[symbol] = b
	}
	return b
}

// settled is the state implied by the slots when no fetch is applied.
func (b *book) settled() State {
	switch {
	case b.err != nil:
		return StateErrored
	case b.snap != nil:
		return StateReady
	default:
		return StateIdle
	}
}

func (b *book) view(symbol string) View {
	v := View{
		Symbol:    symbol,
		State:     b.state,
		Snapshot:  b.snap,
		Err:       b.err,
		UpdatedAt: b.updatedAt,
	}
	if b.err != nil {
		v.Error = b.err.Error()
	}
	switch {
	case b.snap == nil:
	case b.fromMirror:
		v.Source = SourceMirror
	default:
		v.Source = SourceVenue
	}
	return v
}

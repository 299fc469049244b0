package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/tradeview/internal/analytics"
	"github.com/alanyoungcy/tradeview/internal/cache/redis"
	"github.com/alanyoungcy/tradeview/internal/config"
	"github.com/alanyoungcy/tradeview/internal/dashboard"
	"github.com/alanyoungcy/tradeview/internal/domain"
	"github.com/alanyoungcy/tradeview/internal/notify"
	"github.com/alanyoungcy/tradeview/internal/orderbook"
	"github.com/alanyoungcy/tradeview/internal/platform/venue"
	"github.com/alanyoungcy/tradeview/internal/session"
	"github.com/alanyoungcy/tradeview/internal/trading"
)

// Dependencies bundles everything the run modes need. It is constructed by
// Wire and torn down by the returned cleanup function. The Redis-backed
// fields are nil when Redis is disabled.
type Dependencies struct {
	Session *session.Store
	Venue   *venue.Client

	Redis       *redis.Client
	Mirror      domain.OrderbookMirror
	RateLimiter domain.RateLimiter
	SignalBus   *redis.SignalBus

	Notifier *notify.Notifier

	Books     *orderbook.Cache
	Dashboard *dashboard.Poller
	Analytics *analytics.Aggregator
	Pipeline  *trading.Pipeline
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Session: session.NewStore(domain.Session{
			Token:     cfg.Venue.Token,
			AccountID: cfg.Venue.AccountID,
		}),
	}
	deps.Venue = venue.New(venue.Config{
		BaseURL:   cfg.Venue.BaseURL,
		Timeout:   cfg.Venue.Timeout.Duration,
		UserAgent: cfg.Venue.UserAgent,
	}, deps.Session, logger)

	// --- Redis (optional shared state) ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Prefix:     cfg.Redis.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.Redis = rc
		deps.Mirror = redis.NewOrderbookCache(rc, cfg.Redis.MirrorTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(rc)
		deps.SignalBus = redis.NewSignalBus(rc)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramAPIURL,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Core components ---
	bookOpts := []orderbook.Option{orderbook.WithRefreshInterval(cfg.Orderbook.RefreshInterval.Duration)}
	if deps.Mirror != nil {
		bookOpts = append(bookOpts, orderbook.WithMirror(deps.Mirror))
	}
	deps.Books = orderbook.NewCache(deps.Venue, logger, bookOpts...)

	deps.Dashboard = dashboard.NewPoller(deps.Venue, cfg.Dashboard.RefreshInterval.Duration, logger)

	deps.Analytics = analytics.NewAggregator(deps.Venue, logger,
		analytics.WithTrendWindow(cfg.Analytics.TrendWindow),
	)

	var tradeOpts []trading.Option
	if deps.RateLimiter != nil {
		tradeOpts = append(tradeOpts, trading.WithRateLimiter(
			deps.RateLimiter, cfg.Trading.RateLimit, cfg.Trading.RateWindow.Duration,
		))
	}
	if deps.SignalBus != nil {
		tradeOpts = append(tradeOpts, trading.WithSignalBus(deps.SignalBus))
	}
	if deps.Notifier.Enabled() {
		tradeOpts = append(tradeOpts, trading.WithNotifier(deps.Notifier))
	}
	deps.Pipeline = trading.NewPipeline(deps.Venue, logger, tradeOpts...)

	return deps, cleanup, nil
}

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradeview/internal/domain"
	"github.com/alanyoungcy/tradeview/internal/orderbook"
	"github.com/alanyoungcy/tradeview/internal/server"
	"github.com/alanyoungcy/tradeview/internal/server/handler"
	"github.com/alanyoungcy/tradeview/internal/server/ws"
	"github.com/alanyoungcy/tradeview/internal/trading"
)

const (
	// shutdownTimeout bounds the HTTP server's graceful shutdown.
	shutdownTimeout = 5 * time.Second
	// apiRateLimit is the per-IP request budget per second when Redis is
	// enabled.
	apiRateLimit = 50
)

// bookPush is the payload pushed on a book channel.
type bookPush struct {
	orderbook.View
	Depth *orderbook.Depth `json:"depth,omitempty"`
}

// WatchMode polls the configured symbol and the dashboard, logging every
// change. With withServer it also serves the HTTP API and pushes the same
// changes to WebSocket clients.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies, withServer bool) error {
	symbol := a.cfg.Orderbook.Symbol
	if a.symbol != "" {
		symbol = a.symbol
	}
	a.logger.InfoContext(ctx, "starting watch mode",
		slog.String("symbol", symbol),
		slog.Bool("server", withServer),
	)

	g, ctx := errgroup.WithContext(ctx)

	var hub *ws.Hub
	if withServer {
		hub = a.newHub(deps)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	unsubBook := deps.Books.Subscribe(func(v orderbook.View) {
		a.logView(ctx, v)
		if hub != nil {
			push := bookPush{View: v}
			if v.Snapshot != nil {
				d := orderbook.BuildDepth(*v.Snapshot, a.cfg.Orderbook.Depth)
				push.Depth = &d
			}
			hub.Broadcast(ws.BookChannel(v.Symbol), push)
		}
	})
	defer unsubBook()

	unsubStats := deps.Dashboard.Subscribe(func(s domain.DashboardStats) {
		a.logger.InfoContext(ctx, "dashboard updated",
			slog.Int("open_orders", s.OpenOrders),
			slog.String("portfolio_value", s.PortfolioValue.String()),
		)
		if hub != nil {
			hub.Broadcast(ws.ChannelDashboard, s)
		}
	})
	defer unsubStats()

	deps.Books.StartWatching(ctx, symbol)
	g.Go(func() error {
		<-ctx.Done()
		deps.Books.StopWatching()
		return nil
	})

	g.Go(func() error {
		return deps.Dashboard.Run(ctx)
	})

	if withServer {
		a.startHTTPServer(ctx, g, deps, hub)
	}

	return g.Wait()
}

func (a *App) logView(ctx context.Context, v orderbook.View) {
	if v.Snapshot == nil {
		a.logger.WarnContext(ctx, "order book unavailable",
			slog.String("symbol", v.Symbol),
			slog.String("state", string(v.State)),
			slog.String("error", v.Error),
		)
		return
	}

	attrs := []slog.Attr{
		slog.String("symbol", v.Symbol),
		slog.String("state", string(v.State)),
		slog.Int("bids", len(v.Snapshot.Bids)),
		slog.Int("asks", len(v.Snapshot.Asks)),
	}
	if !v.Snapshot.Incomplete() {
		attrs = append(attrs,
			slog.String("mid", v.Snapshot.Mid.String()),
			slog.String("spread", v.Snapshot.Spread().String()),
		)
	}
	if v.Err != nil {
		attrs = append(attrs, slog.String("error", v.Error))
		a.logger.LogAttrs(ctx, slog.LevelWarn, "order book refresh failed, showing last snapshot", attrs...)
		return
	}
	a.logger.LogAttrs(ctx, slog.LevelInfo, "order book updated", attrs...)
}

// ReportMode refreshes analytics once, writes the report as JSON and
// returns. A partial fetch failure still writes the report; the error is
// returned afterwards so the process exits non-zero.
func (a *App) ReportMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting report mode", slog.String("symbol", a.symbol))

	refreshErr := deps.Analytics.Refresh(ctx)
	state := deps.Analytics.SetSymbol(a.symbol)

	data, err := json.MarshalIndent(state.Report(), "", "  ")
	if err != nil {
		return fmt.Errorf("app: encode report: %w", err)
	}
	if _, err := fmt.Fprintln(a.out, string(data)); err != nil {
		return fmt.Errorf("app: write report: %w", err)
	}

	if refreshErr != nil {
		return fmt.Errorf("app: refresh analytics: %w", refreshErr)
	}
	return nil
}

func (a *App) newHub(deps *Dependencies) *ws.Hub {
	cfg := ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      time.Now().UTC(),
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	}
	if deps.SignalBus != nil {
		cfg.BridgeChannels = []string{trading.OrdersChannel}
		return ws.NewHub(deps.SignalBus, a.logger, cfg)
	}
	return ws.NewHub(nil, a.logger, cfg)
}

// startHTTPServer registers the API on g. Orders reach WebSocket clients
// through the signal bus when Redis is enabled, and directly from the trade
// handler otherwise.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub) {
	var pinger handler.Pinger
	if deps.Redis != nil {
		pinger = deps.Redis
	}

	var tradeOpts []handler.TradeOption
	if deps.SignalBus != nil {
		tradeOpts = append(tradeOpts, handler.WithOrderLog(deps.SignalBus, trading.OrdersStream))
	} else {
		tradeOpts = append(tradeOpts, handler.WithOrderFeed(hub, ws.ChannelOrders))
	}

	srvCfg := server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}
	if deps.RateLimiter != nil {
		srvCfg.RateLimiter = deps.RateLimiter
		srvCfg.RateLimit = apiRateLimit
		srvCfg.RateWindow = time.Second
	}

	srv := server.NewServer(srvCfg, server.Handlers{
		Health:    handler.NewHealthHandler(pinger, a.logger),
		Orderbook: handler.NewOrderbookHandler(ctx, deps.Books, a.cfg.Orderbook.Depth, a.logger),
		Trade:     handler.NewTradeHandler(deps.Pipeline, a.logger, tradeOpts...),
		Analytics: handler.NewAnalyticsHandler(deps.Analytics, a.logger),
		Dashboard: handler.NewDashboardHandler(deps.Dashboard),
		Session:   handler.NewSessionHandler(deps.Session, a.logger),
	}, hub, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

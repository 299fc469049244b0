package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/tradeview/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// OrderbookCache mirrors order book snapshots into Redis so other processes
// can read the last applied book without calling the venue.
//
// Key schema:
//
//	book:{symbol}:bids      - sorted set of bid prices (score = price)
//	book:{symbol}:asks      - sorted set of ask prices (score = price)
//	book:{symbol}:bid:size  - hash mapping price -> size for bids
//	book:{symbol}:ask:size  - hash mapping price -> size for asks
//	book:{symbol}:meta      - hash with "mid" and "ts"
//
// Prices are stored as exact decimal strings in the set members; the float
// score is used for ordering only.
type OrderbookCache struct {
	c   *Client
	ttl time.Duration
}

// NewOrderbookCache creates an OrderbookCache. Mirrored keys expire after ttl
// (no expiry when ttl <= 0).
func NewOrderbookCache(c *Client, ttl time.Duration) *OrderbookCache {
	return &OrderbookCache{c: c, ttl: ttl}
}

type bookKeys struct {
	bids, asks, bidSize, askSize, meta string
}

func (oc *OrderbookCache) keys(symbol string) bookKeys {
	base := oc.c.Key("book:" + symbol)
	return bookKeys{
		bids:    base + ":bids",
		asks:    base + ":asks",
		bidSize: base + ":bid:size",
		askSize: base + ":ask:size",
		meta:    base + ":meta",
	}
}

// SetSnapshot atomically replaces the mirrored book for snap.Symbol.
func (oc *OrderbookCache) SetSnapshot(ctx context.Context, snap domain.OrderBookSnapshot) error {
	k := oc.keys(snap.Symbol)

	pipe := oc.c.rdb.TxPipeline()
	pipe.Del(ctx, k.bids, k.asks, k.bidSize, k.askSize, k.meta)

	for _, lvl := range snap.Bids {
		member := lvl.Price.String()
		pipe.ZAdd(ctx, k.bids, redis.Z{Score: lvl.Price.InexactFloat64(), Member: member})
		pipe.HSet(ctx, k.bidSize, member, lvl.Size.String())
	}
	for _, lvl := range snap.Asks {
		member := lvl.Price.String()
		pipe.ZAdd(ctx, k.asks, redis.Z{Score: lvl.Price.InexactFloat64(), Member: member})
		pipe.HSet(ctx, k.askSize, member, lvl.Size.String())
	}
	pipe.HSet(ctx, k.meta,
		"mid", snap.Mid.String(),
		"ts", strconv.FormatInt(snap.FetchedAt.UnixNano(), 10),
	)

	if oc.ttl > 0 {
		for _, key := range []string{k.bids, k.asks, k.bidSize, k.askSize, k.meta} {
			pipe.Expire(ctx, key, oc.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set orderbook snapshot %s: %w", snap.Symbol, err)
	}
	return nil
}

// GetSnapshot rebuilds the mirrored book for symbol. It returns
// domain.ErrNotFound when nothing is mirrored.
func (oc *OrderbookCache) GetSnapshot(ctx context.Context, symbol string) (domain.OrderBookSnapshot, error) {
	k := oc.keys(symbol)

	pipe := oc.c.rdb.Pipeline()
	bidsCmd := pipe.ZRevRange(ctx, k.bids, 0, -1)
	asksCmd := pipe.ZRange(ctx, k.asks, 0, -1)
	bidSizeCmd := pipe.HGetAll(ctx, k.bidSize)
	askSizeCmd := pipe.HGetAll(ctx, k.askSize)
	metaCmd := pipe.HGetAll(ctx, k.meta)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("redis: get orderbook snapshot %s: %w", symbol, err)
	}

	meta, _ := metaCmd.Result()
	if len(meta) == 0 {
		return domain.OrderBookSnapshot{}, domain.ErrNotFound
	}

	snap := domain.OrderBookSnapshot{Symbol: symbol}
	if mid, err := decimal.NewFromString(meta["mid"]); err == nil {
		snap.Mid = mid
	}
	if ns, err := strconv.ParseInt(meta["ts"], 10, 64); err == nil {
		snap.FetchedAt = time.Unix(0, ns).UTC()
	}

	var err error
	if snap.Bids, err = decodeLevels(domain.BookSideBid, bidsCmd.Val(), bidSizeCmd.Val()); err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("redis: decode bids %s: %w", symbol, err)
	}
	if snap.Asks, err = decodeLevels(domain.BookSideAsk, asksCmd.Val(), askSizeCmd.Val()); err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("redis: decode asks %s: %w", symbol, err)
	}
	return snap, nil
}

// decodeLevels pairs ordered price members with their sizes.
func decodeLevels(side domain.BookSide, prices []string, sizes map[string]string) ([]domain.OrderLevel, error) {
	out := make([]domain.OrderLevel, 0, len(prices))
	for _, p := range prices {
		price, err := decimal.NewFromString(p)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", p, err)
		}
		size := decimal.Zero
		if s, ok := sizes[p]; ok {
			if size, err = decimal.NewFromString(s); err != nil {
				return nil, fmt.Errorf("size %q at %s: %w", s, p, err)
			}
		}
		out = append(out, domain.OrderLevel{Side: side, Price: price, Size: size})
	}
	return out, nil
}

var _ domain.OrderbookMirror = (*OrderbookCache)(nil)

package orderbook

import (
	"github.com/alanyoungcy/tradeview/internal/domain"
	"github.com/shopspring/decimal"
)

// DepthRow is one level prepared for display. Width is the level size scaled
// against the largest level on either side, in [0, 1].
type DepthRow struct {
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	Cumulative decimal.Decimal `json:"cumulative"`
	Width      decimal.Decimal `json:"width"`
}

// Depth is a display-ready ladder for one snapshot.
type Depth struct {
	Symbol     string          `json:"symbol"`
	Incomplete bool            `json:"incomplete"`
	Crossed    bool            `json:"crossed"`
	Mid        decimal.Decimal `json:"mid"`
	Spread     decimal.Decimal `json:"spread"`
	MaxSize    decimal.Decimal `json:"max_size"`
	Bids       []DepthRow      `json:"bids"`
	Asks       []DepthRow      `json:"asks"`
}

// BuildDepth prepares at most maxLevels levels per side (all when maxLevels
// <= 0). An incomplete book keeps its rows but every width is zero.
func BuildDepth(snap domain.OrderBookSnapshot, maxLevels int) Depth {
	bids := truncate(snap.Bids, maxLevels)
	asks := truncate(snap.Asks, maxLevels)

	d := Depth{
		Symbol:     snap.Symbol,
		Incomplete: snap.Incomplete(),
		Crossed:    snap.Crossed(),
		Mid:        snap.Mid,
		Spread:     snap.Spread(),
		MaxSize:    MaxLevelSize(bids, asks),
	}

	scale := d.MaxSize
	if d.Incomplete {
		scale = decimal.Zero
	}
	d.Bids = rows(bids, scale)
	d.Asks = rows(asks, scale)
	return d
}

// MaxLevelSize returns the largest level size across all given sides, zero
// when every side is empty.
func MaxLevelSize(sides ...[]domain.OrderLevel) decimal.Decimal {
	max := decimal.Zero
	for _, side := range sides {
		for _, lvl := range side {
			if lvl.Size.GreaterThan(max) {
				max = lvl.Size
			}
		}
	}
	return max
}

// LevelWidth scales size against max. A non-positive max yields zero instead
// of dividing.
func LevelWidth(size, max decimal.Decimal) decimal.Decimal {
	if !max.IsPositive() {
		return decimal.Zero
	}
	return size.Div(max).Round(4)
}

func rows(levels []domain.OrderLevel, scale decimal.Decimal) []DepthRow {
	out := make([]DepthRow, 0, len(levels))
	cum := decimal.Zero
	for _, lvl := range levels {
		cum = cum.Add(lvl.Size)
		out = append(out, DepthRow{
			Price:      lvl.Price,
			Size:       lvl.Size,
			Cumulative: cum,
			Width:      LevelWidth(lvl.Size, scale),
		})
	}
	return out
}

func truncate(levels []domain.OrderLevel, n int) []domain.OrderLevel {
	if n > 0 && len(levels) > n {
		return levels[:n]
	}
	return levels
}

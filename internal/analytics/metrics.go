// Package analytics derives display-ready execution metrics from a trader's
// order history. Only FILLED records contribute to executed quantity,
// slippage and any execution series; PENDING records count toward trade
// totals and the fill-rate denominator only.
package analytics

import (
	"sort"
	"time"

	"github.com/alanyoungcy/tradeview/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultTrendWindow is the number of most recent fills in the slippage trend.
const DefaultTrendWindow = 20

var hundred = decimal.NewFromInt(100)

// Metrics are the derived statistics of one working set of orders.
type Metrics struct {
	TotalTrades   int `json:"total_trades"`
	FilledTrades  int `json:"filled_trades"`
	PendingTrades int `json:"pending_trades"`
	BuyTrades     int `json:"buy_trades"`
	SellTrades    int `json:"sell_trades"`

	// FillRate is filled/total*100 rounded to one decimal place.
	FillRate decimal.Decimal `json:"fill_rate"`
	// AvgSlippageBps is the mean over fills, rounded to two decimal places.
	AvgSlippageBps   decimal.Decimal `json:"avg_slippage_bps"`
	BestSlippageBps  decimal.Decimal `json:"best_slippage_bps"`
	WorstSlippageBps decimal.Decimal `json:"worst_slippage_bps"`

	ExecutedQty     decimal.Decimal `json:"executed_qty"`
	BuyExecutedQty  decimal.Decimal `json:"buy_executed_qty"`
	SellExecutedQty decimal.Decimal `json:"sell_executed_qty"`
	Notional        decimal.Decimal `json:"notional"`
}

// Point is one fill in an execution series.
type Point struct {
	OrderID     string           `json:"order_id"`
	Symbol      string           `json:"symbol"`
	Side        domain.OrderSide `json:"side"`
	At          time.Time        `json:"at"`
	Price       decimal.Decimal  `json:"exec_price"`
	Qty         decimal.Decimal  `json:"exec_qty"`
	SlippageBps decimal.Decimal  `json:"slippage_bps"`
}

// Compute derives Metrics from orders. Every field is zero-defined on an
// empty set.
func Compute(orders []domain.OrderRecord) Metrics {
	m := Metrics{
		FillRate:         decimal.Zero,
		AvgSlippageBps:   decimal.Zero,
		BestSlippageBps:  decimal.Zero,
		WorstSlippageBps: decimal.Zero,
		ExecutedQty:      decimal.Zero,
		BuyExecutedQty:   decimal.Zero,
		SellExecutedQty:  decimal.Zero,
		Notional:         decimal.Zero,
	}
	slippageSum := decimal.Zero

	for _, o := range orders {
		m.TotalTrades++
		switch o.Side {
		case domain.OrderSideBuy:
			m.BuyTrades++
		case domain.OrderSideSell:
			m.SellTrades++
		}

		f, ok := o.Fill()
		if !ok {
			m.PendingTrades++
			continue
		}

		if m.FilledTrades == 0 {
			m.BestSlippageBps = f.SlippageBps
			m.WorstSlippageBps = f.SlippageBps
		} else {
			m.BestSlippageBps = decimal.Min(m.BestSlippageBps, f.SlippageBps)
			m.WorstSlippageBps = decimal.Max(m.WorstSlippageBps, f.SlippageBps)
		}
		m.FilledTrades++
		slippageSum = slippageSum.Add(f.SlippageBps)
		m.ExecutedQty = m.ExecutedQty.Add(f.Qty)
		m.Notional = m.Notional.Add(f.Qty.Mul(f.Price))
		if o.Side == domain.OrderSideSell {
			m.SellExecutedQty = m.SellExecutedQty.Add(f.Qty)
		} else {
			m.BuyExecutedQty = m.BuyExecutedQty.Add(f.Qty)
		}
	}

	if m.TotalTrades > 0 {
		m.FillRate = decimal.NewFromInt(int64(m.FilledTrades)).
			Div(decimal.NewFromInt(int64(m.TotalTrades))).
			Mul(hundred).
			Round(1)
	}
	if m.FilledTrades > 0 {
		m.AvgSlippageBps = slippageSum.Div(decimal.NewFromInt(int64(m.FilledTrades))).Round(2)
	}
	return m
}

// FilterBySymbol returns the orders for symbol. An empty symbol returns all
// orders. The result is never nil.
func FilterBySymbol(orders []domain.OrderRecord, symbol string) []domain.OrderRecord {
	out := make([]domain.OrderRecord, 0, len(orders))
	for _, o := range orders {
		if symbol == "" || o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out
}

// ExecutionSeries returns every fill in chronological order.
func ExecutionSeries(orders []domain.OrderRecord) []Point {
	points := make([]Point, 0, len(orders))
	for _, o := range orders {
		f, ok := o.Fill()
		if !ok {
			continue
		}
		points = append(points, Point{
			OrderID:     o.OrderID,
			Symbol:      o.Symbol,
			Side:        o.Side,
			At:          fillTime(o, f),
			Price:       f.Price,
			Qty:         f.Qty,
			SlippageBps: f.SlippageBps,
		})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].At.Before(points[j].At) })
	return points
}

// SlippageTrend returns the n most recent fills, oldest first. Pending orders
// are dropped before the window is taken.
func SlippageTrend(orders []domain.OrderRecord, n int) []Point {
	if n <= 0 {
		n = DefaultTrendWindow
	}
	points := ExecutionSeries(orders)
	if len(points) > n {
		points = points[len(points)-n:]
	}
	return points
}

// Symbols lists the distinct symbols in orders, sorted.
func Symbols(orders []domain.OrderRecord) []string {
	seen := make(map[string]struct{}, len(orders))
	out := make([]string, 0)
	for _, o := range orders {
		if _, ok := seen[o.Symbol]; ok {
			continue
		}
		seen[o.Symbol] = struct{}{}
		out = append(out, o.Symbol)
	}
	sort.Strings(out)
	return out
}

// FilterStats narrows venue stats to symbol. An empty symbol keeps all.
func FilterStats(stats []domain.SymbolStats, symbol string) []domain.SymbolStats {
	out := make([]domain.SymbolStats, 0, len(stats))
	for _, s := range stats {
		if symbol == "" || s.Symbol == symbol {
			out = append(out, s)
		}
	}
	return out
}

func fillTime(o domain.OrderRecord, f domain.Fill) time.Time {
	switch {
	case !f.At.IsZero():
		return f.At
	case !o.UpdatedAt.IsZero():
		return o.UpdatedAt
	default:
		return o.CreatedAt
	}
}

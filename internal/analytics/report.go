package analytics

import (
	"time"

	"github.com/alanyoungcy/tradeview/internal/domain"
)

// Report is State rendered with display strings, as served to the UI and
// printed by the report mode.
type Report struct {
	Symbol           string               `json:"symbol,omitempty"`
	Symbols          []string             `json:"symbols"`
	TotalTrades      int                  `json:"total_trades"`
	FilledTrades     int                  `json:"filled_trades"`
	PendingTrades    int                  `json:"pending_trades"`
	BuyTrades        int                  `json:"buy_trades"`
	SellTrades       int                  `json:"sell_trades"`
	FillRate         string               `json:"fill_rate"`
	AvgSlippageBps   string               `json:"avg_slippage_bps"`
	BestSlippageBps  string               `json:"best_slippage_bps"`
	WorstSlippageBps string               `json:"worst_slippage_bps"`
	ExecutedQty      string               `json:"executed_qty"`
	BuyExecutedQty   string               `json:"buy_executed_qty"`
	SellExecutedQty  string               `json:"sell_executed_qty"`
	Notional         string               `json:"notional"`
	Trend            []Point              `json:"trend"`
	Executions       []Point              `json:"executions"`
	Orders           []domain.OrderRecord `json:"orders"`
	VenueStats       []domain.SymbolStats `json:"venue_stats"`
	RefreshedAt      time.Time            `json:"refreshed_at"`
	Error            string               `json:"error,omitempty"`
}

// Report formats the state for display.
func (s State) Report() Report {
	m := s.Metrics
	r := Report{
		Symbol:           s.Symbol,
		Symbols:          s.Symbols,
		TotalTrades:      m.TotalTrades,
		FilledTrades:     m.FilledTrades,
		PendingTrades:    m.PendingTrades,
		BuyTrades:        m.BuyTrades,
		SellTrades:       m.SellTrades,
		FillRate:         fillRate(m),
		AvgSlippageBps:   m.AvgSlippageBps.StringFixed(2),
		BestSlippageBps:  m.BestSlippageBps.StringFixed(2),
		WorstSlippageBps: m.WorstSlippageBps.StringFixed(2),
		ExecutedQty:      m.ExecutedQty.String(),
		BuyExecutedQty:   m.BuyExecutedQty.String(),
		SellExecutedQty:  m.SellExecutedQty.String(),
		Notional:         m.Notional.StringFixed(2),
		Trend:            s.Trend,
		Executions:       s.Executions,
		Orders:           s.Orders,
		VenueStats:       s.VenueStats,
		RefreshedAt:      s.RefreshedAt,
	}
	if s.Err != nil {
		r.Error = s.Err.Error()
	}
	return r
}

// fillRate renders one decimal place once there is a trade to rate.
func fillRate(m Metrics) string {
	if m.TotalTrades == 0 {
		return "0"
	}
	return m.FillRate.StringFixed(1)
}

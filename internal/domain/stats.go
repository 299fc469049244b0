package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SymbolStats is the venue-computed execution summary for one symbol.
type SymbolStats struct {
	Symbol           string          `json:"symbol"`
	TotalTrades      int             `json:"total_trades"`
	FilledTrades     int             `json:"filled_trades"`
	TotalVolume      decimal.Decimal `json:"total_volume"`
	AvgSlippageBps   decimal.Decimal `json:"avg_slippage_bps"`
	BestSlippageBps  decimal.Decimal `json:"best_slippage_bps"`
	WorstSlippageBps decimal.Decimal `json:"worst_slippage_bps"`
}

// DashboardStats are the coarse account metrics shown on the dashboard.
type DashboardStats struct {
	OpenOrders     int             `json:"open_orders"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	AsOf           time.Time       `json:"as_of"`
}

// Session is the caller's credential context. It is written only by the
// login/logout collaborator and read by every outgoing venue request.
type Session struct {
	Token     string
	AccountID string
}

// Authenticated reports whether the session carries a bearer token.
func (s Session) Authenticated() bool { return s.Token != "" }

package venue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/tradeview/internal/domain"
	"github.com/shopspring/decimal"
)

// --------------------------------------------------------------------------
// Order book DTOs
// --------------------------------------------------------------------------

// APILevel is a single level as sent by the venue. Side is optional on the
// wire because the enclosing array already says which side it is.
type APILevel struct {
	Side  string           `json:"side,omitempty"`
	Price *decimal.Decimal `json:"price"`
	Size  *decimal.Decimal `json:"size"`
}

// APIOrderBook is the response of GET /orderbook/{symbol}.
type APIOrderBook struct {
	Symbol string           `json:"symbol"`
	Mid    *decimal.Decimal `json:"mid"`
	Bids   []APILevel       `json:"bids"`
	Asks   []APILevel       `json:"asks"`
}

// ToDomain validates the payload and converts it into a snapshot. Levels are
// re-sorted so bids descend and asks ascend regardless of wire order.
func (b *APIOrderBook) ToDomain(symbol string, fetchedAt time.Time) (domain.OrderBookSnapshot, error) {
	snap := domain.OrderBookSnapshot{
		Symbol:    b.Symbol,
		FetchedAt: fetchedAt,
	}
	if snap.Symbol == "" {
		snap.Symbol = symbol
	}

	var err error
	if snap.Bids, err = convertLevels(b.Bids, domain.BookSideBid); err != nil {
		return domain.OrderBookSnapshot{}, err
	}
	if snap.Asks, err = convertLevels(b.Asks, domain.BookSideAsk); err != nil {
		return domain.OrderBookSnapshot{}, err
	}
	sort.SliceStable(snap.Bids, func(i, j int) bool { return snap.Bids[i].Price.GreaterThan(snap.Bids[j].Price) })
	sort.SliceStable(snap.Asks, func(i, j int) bool { return snap.Asks[i].Price.LessThan(snap.Asks[j].Price) })

	switch {
	case b.Mid != nil:
		snap.Mid = *b.Mid
	case !snap.Incomplete():
		snap.Mid = snap.Bids[0].Price.Add(snap.Asks[0].Price).Div(decimal.NewFromInt(2))
	}
	return snap, nil
}

func convertLevels(in []APILevel, side domain.BookSide) ([]domain.OrderLevel, error) {
	out := make([]domain.OrderLevel, 0, len(in))
	for i, lvl := range in {
		if lvl.Price == nil || lvl.Size == nil {
			return nil, fmt.Errorf("%w: %s level %d missing price or size", domain.ErrMalformedResponse, strings.ToLower(string(side)), i)
		}
		if !lvl.Price.IsPositive() || lvl.Size.IsNegative() {
			return nil, fmt.Errorf("%w: %s level %d has price %s size %s", domain.ErrMalformedResponse, strings.ToLower(string(side)), i, lvl.Price, lvl.Size)
		}
		out = append(out, domain.OrderLevel{Side: side, Price: *lvl.Price, Size: *lvl.Size})
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Order DTOs
// --------------------------------------------------------------------------

// APITradeRequest is the body of POST /trade/.
type APITradeRequest struct {
	Symbol     string           `json:"symbol"`
	Side       string           `json:"side"`
	Type       string           `json:"type"`
	Quantity   decimal.Decimal  `json:"quantity"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
}

func newAPITradeRequest(req domain.TradeRequest) APITradeRequest {
	out := APITradeRequest{
		Symbol:   req.Symbol,
		Side:     string(req.Side),
		Type:     string(req.Type),
		Quantity: req.Quantity,
	}
	if req.Type == domain.OrderTypeLimit {
		out.LimitPrice = req.LimitPrice
	}
	return out
}

// APIExecution is the execution block attached to filled orders.
type APIExecution struct {
	ExecID        string           `json:"exec_id"`
	ExecPrice     *decimal.Decimal `json:"exec_price"`
	ExecQty       *decimal.Decimal `json:"exec_qty"`
	SlippageBps   *decimal.Decimal `json:"slippage_bps"`
	ExecCreatedAt *time.Time       `json:"exec_created_at"`
}

// APIOrder is an order as returned by the venue (OrderResponse/AnalyticsTrade).
type APIOrder struct {
	OrderID    string           `json:"order_id"`
	Symbol     string           `json:"symbol"`
	Side       string           `json:"side"`
	Type       string           `json:"type"`
	Quantity   *decimal.Decimal `json:"quantity"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
	Status     string           `json:"status"`
	ArrivalMid *decimal.Decimal `json:"arrival_mid,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	Execution  *APIExecution    `json:"execution,omitempty"`
}

// ToDomainOrder validates required fields and converts to an OrderRecord.
// Execution data on a PENDING record is ignored; a FILLED record without a
// complete execution block is rejected.
func (o *APIOrder) ToDomainOrder() (domain.OrderRecord, error) {
	if o.OrderID == "" || o.Symbol == "" || o.Quantity == nil {
		return domain.OrderRecord{}, fmt.Errorf("%w: order %q missing order_id, symbol or quantity", domain.ErrMalformedResponse, o.OrderID)
	}

	rec := domain.OrderRecord{
		OrderID:    o.OrderID,
		Symbol:     o.Symbol,
		Side:       domain.OrderSide(strings.ToUpper(o.Side)),
		Type:       domain.OrderType(strings.ToUpper(o.Type)),
		Quantity:   *o.Quantity,
		LimitPrice: o.LimitPrice,
		ArrivalMid: o.ArrivalMid,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
		Execution:  domain.Unfilled{},
	}

	switch domain.OrderStatus(strings.ToUpper(o.Status)) {
	case domain.OrderStatusPending:
		rec.Status = domain.OrderStatusPending
	case domain.OrderStatusFilled:
		rec.Status = domain.OrderStatusFilled
		fill, err := o.Execution.toFill(o.OrderID)
		if err != nil {
			return domain.OrderRecord{}, err
		}
		rec.Execution = fill
	default:
		return domain.OrderRecord{}, fmt.Errorf("%w: order %s has unknown status %q", domain.ErrMalformedResponse, o.OrderID, o.Status)
	}
	return rec, nil
}

func (e *APIExecution) toFill(orderID string) (domain.Fill, error) {
	if e == nil || e.ExecPrice == nil || e.ExecQty == nil || e.SlippageBps == nil {
		return domain.Fill{}, fmt.Errorf("%w: filled order %s has incomplete execution", domain.ErrMalformedResponse, orderID)
	}
	f := domain.Fill{
		ExecID:      e.ExecID,
		Price:       *e.ExecPrice,
		Qty:         *e.ExecQty,
		SlippageBps: *e.SlippageBps,
	}
	if e.ExecCreatedAt != nil {
		f.At = *e.ExecCreatedAt
	}
	return f, nil
}

// --------------------------------------------------------------------------
// Stats DTOs
// --------------------------------------------------------------------------

// APISymbolStats mirrors domain.SymbolStats on the wire.
type APISymbolStats struct {
	Symbol           string          `json:"symbol"`
	TotalTrades      int             `json:"total_trades"`
	FilledTrades     int             `json:"filled_trades"`
	TotalVolume      decimal.Decimal `json:"total_volume"`
	AvgSlippageBps   decimal.Decimal `json:"avg_slippage_bps"`
	BestSlippageBps  decimal.Decimal `json:"best_slippage_bps"`
	WorstSlippageBps decimal.Decimal `json:"worst_slippage_bps"`
}

func (s APISymbolStats) toDomain() domain.SymbolStats {
	return domain.SymbolStats(s)
}

// symbolStatsList decodes /me/analytics, which may be null, a single object
// or an array of per-symbol objects.
type symbolStatsList []APISymbolStats

func (l *symbolStatsList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}
	if trimmed[0] == '[' {
		var many []APISymbolStats
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return err
		}
		*l = many
		return nil
	}
	var one APISymbolStats
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return err
	}
	*l = symbolStatsList{one}
	return nil
}

// APIDashboardStats is the response of GET /me/stats.
type APIDashboardStats struct {
	OpenOrders     *int             `json:"open_orders"`
	PortfolioValue *decimal.Decimal `json:"portfolio_value"`
}

func (s *APIDashboardStats) toDomain(asOf time.Time) (domain.DashboardStats, error) {
	if s.OpenOrders == nil || s.PortfolioValue == nil {
		return domain.DashboardStats{}, fmt.Errorf("%w: dashboard stats missing open_orders or portfolio_value", domain.ErrMalformedResponse)
	}
	return domain.DashboardStats{
		OpenOrders:     *s.OpenOrders,
		PortfolioValue: *s.PortfolioValue,
		AsOf:           asOf,
	}, nil
}

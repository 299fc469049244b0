package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType is the execution style of a trade request.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus tracks the order lifecycle. A record starts PENDING and moves
// to FILLED exactly once; cancel/reject are not modeled.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "PENDING"
	OrderStatusFilled  OrderStatus = "FILLED"
)

// TradeRequest is a caller-built order instruction, consumed once.
type TradeRequest struct {
	Symbol     string           `json:"symbol"`
	Side       OrderSide        `json:"side"`
	Type       OrderType        `json:"type"`
	Quantity   decimal.Decimal  `json:"quantity"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
}

// Validate enforces the local preconditions of a submission.
func (r TradeRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return &ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	switch r.Side {
	case OrderSideBuy, OrderSideSell:
	default:
		return &ValidationError{Field: "side", Reason: "must be BUY or SELL"}
	}
	if !r.Quantity.IsPositive() {
		return &ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}
	switch r.Type {
	case OrderTypeMarket:
	case OrderTypeLimit:
		if r.LimitPrice == nil {
			return &ValidationError{Field: "limit_price", Reason: "required for LIMIT orders"}
		}
		if !r.LimitPrice.IsPositive() {
			return &ValidationError{Field: "limit_price", Reason: "must be greater than zero"}
		}
	default:
		return &ValidationError{Field: "type", Reason: "must be MARKET or LIMIT"}
	}
	return nil
}

// Execution is the execution state of an order: either Unfilled or a Fill.
// Only a Fill carries quantity and slippage, so a pending order can never be
// mistaken for a zero-slippage execution.
type Execution interface {
	isExecution()
}

// Unfilled is the execution state of a PENDING order.
type Unfilled struct{}

func (Unfilled) isExecution() {}

// Fill is the execution of a FILLED order.
type Fill struct {
	ExecID      string          `json:"exec_id"`
	Price       decimal.Decimal `json:"exec_price"`
	Qty         decimal.Decimal `json:"exec_qty"`
	SlippageBps decimal.Decimal `json:"slippage_bps"`
	At          time.Time       `json:"exec_created_at"`
}

func (Fill) isExecution() {}

// OrderRecord is the venue-authoritative view of a submitted order.
type OrderRecord struct {
	OrderID    string
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Quantity   decimal.Decimal
	LimitPrice *decimal.Decimal
	Status     OrderStatus
	ArrivalMid *decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Execution  Execution
}

// Fill returns the execution of a filled order.
func (o OrderRecord) Fill() (Fill, bool) {
	if o.Status != OrderStatusFilled {
		return Fill{}, false
	}
	f, ok := o.Execution.(Fill)
	return f, ok
}

// Filled reports whether the order has a fill.
func (o OrderRecord) Filled() bool {
	_, ok := o.Fill()
	return ok
}

// MarshalJSON renders the execution as an object for fills and null otherwise.
func (o OrderRecord) MarshalJSON() ([]byte, error) {
	type wire struct {
		OrderID    string           `json:"order_id"`
		Symbol     string           `json:"symbol"`
		Side       OrderSide        `json:"side"`
		Type       OrderType        `json:"type"`
		Quantity   decimal.Decimal  `json:"quantity"`
		LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
		Status     OrderStatus      `json:"status"`
		ArrivalMid *decimal.Decimal `json:"arrival_mid,omitempty"`
		CreatedAt  time.Time        `json:"created_at"`
		UpdatedAt  time.Time        `json:"updated_at"`
		Execution  *Fill            `json:"execution"`
	}
	w := wire{
		OrderID:    o.OrderID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Type:       o.Type,
		Quantity:   o.Quantity,
		LimitPrice: o.LimitPrice,
		Status:     o.Status,
		ArrivalMid: o.ArrivalMid,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
	if f, ok := o.Fill(); ok {
		w.Execution = &f
	}
	return json.Marshal(w)
}

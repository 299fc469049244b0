package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookSide is the side of the book a level sits on.
type BookSide string

const (
	BookSideBid BookSide = "BID"
	BookSideAsk BookSide = "ASK"
)

// OrderLevel is a single price+size entry on one side of an order book.
type OrderLevel struct {
	Side  BookSide        `json:"side"`
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OrderBookSnapshot is a full view of one symbol's book. Bids are sorted by
// descending price, asks by ascending price. A snapshot is replaced wholesale
// on refresh and never mutated.
type OrderBookSnapshot struct {
	Symbol    string          `json:"symbol"`
	Mid       decimal.Decimal `json:"mid"`
	Bids      []OrderLevel    `json:"bids"`
	Asks      []OrderLevel    `json:"asks"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Incomplete reports whether either side of the book is empty.
func (s OrderBookSnapshot) Incomplete() bool {
	return len(s.Bids) == 0 || len(s.Asks) == 0
}

// BestBid returns the top bid level.
func (s OrderBookSnapshot) BestBid() (OrderLevel, bool) {
	if len(s.Bids) == 0 {
		return OrderLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the top ask level.
func (s OrderBookSnapshot) BestAsk() (OrderLevel, bool) {
	if len(s.Asks) == 0 {
		return OrderLevel{}, false
	}
	return s.Asks[0], true
}

// Spread is best ask minus best bid, zero for an incomplete book.
func (s OrderBookSnapshot) Spread() decimal.Decimal {
	bid, okBid := s.BestBid()
	ask, okAsk := s.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero
	}
	return ask.Price.Sub(bid.Price)
}

// Crossed reports a book whose best ask is below its best bid. This is a
// display anomaly, not an error.
func (s OrderBookSnapshot) Crossed() bool {
	bid, okBid := s.BestBid()
	ask, okAsk := s.BestAsk()
	return okBid && okAsk && ask.Price.LessThan(bid.Price)
}

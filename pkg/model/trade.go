package model

import (
	"math/big"
	"time"
)

// Trade is one fill between a resting (maker) and an incoming (taker)
// order. Side is the taker's side.
type Trade struct {
	ID        uint64
	Asset     AssetID
	Side      Side
	MakerID   OrderId
	TakerID   OrderId
	Maker     AccountID
	Taker     AccountID
	Price     Price
	Quantity  *big.Int
	Notional  *big.Int
	Timestamp time.Time
}

// Buyer returns the account that received the base asset.
func (t *Trade) Buyer() AccountID {
	if t.Side == BID {
		return t.Taker
	}
	return t.Maker
}

// Seller returns the account that received the quote currency.
func (t *Trade) Seller() AccountID {
	if t.Side == BID {
		return t.Maker
	}
	return t.Taker
}

type TradeView struct {
	ID        uint64    `json:"id"`
	Asset     AssetID   `json:"asset"`
	Side      string    `json:"side"`
	MakerID   OrderId   `json:"makerOrderId"`
	TakerID   OrderId   `json:"takerOrderId"`
	Price     Price     `json:"price"`
	Quantity  string    `json:"quantity"`
	Notional  string    `json:"notional"`
	Timestamp time.Time `json:"timestamp"`
}

func (t *Trade) View() TradeView {
	return TradeView{
		ID:        t.ID,
		Asset:     t.Asset,
		Side:      t.Side.String(),
		MakerID:   t.MakerID,
		TakerID:   t.TakerID,
		Price:     t.Price,
		Quantity:  FormatUnits(t.Quantity),
		Notional:  FormatUnits(t.Notional),
		Timestamp: t.Timestamp,
	}
}

// OracleQuoteBuy is emitted once per successful oracle-bounded market buy.
type OracleQuoteBuy struct {
	Trader         AccountID
	Asset          AssetID
	Symbol         string
	TakerID        OrderId
	QtyBought      *big.Int
	QuoteSpent     *big.Int
	OraclePrice    Price
	OracleMaxPrice Price
	Timestamp      time.Time
}

// OrderEventType classifies order lifecycle notifications.
type OrderEventType uint8

const (
	ORDER_PLACED OrderEventType = iota
	ORDER_PARTIALLY_FILLED
	ORDER_FILLED
	ORDER_CANCELLED
)

func (t OrderEventType) String() string {
	switch t {
	case ORDER_PLACED:
		return "PLACED"
	case ORDER_PARTIALLY_FILLED:
		return "PARTIALLY_FILLED"
	case ORDER_FILLED:
		return "FILLED"
	case ORDER_CANCELLED:
		return "CANCELLED"
	}
	return "UNKNOWN"
}

// OrderEvent reports a lifecycle change of an order. Order is a snapshot
// taken after the change.
type OrderEvent struct {
	Type  OrderEventType
	Order Order
}

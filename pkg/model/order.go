package model

import (
	"fmt"
	"math/big"
	"time"
)

type Order struct {
	id                OrderId
	trader            AccountID
	asset             AssetID
	side              Side // BID or ASK
	price             Price
	initialQuantity   *big.Int
	remainingQuantity *big.Int
	orderType         OrderType
	active            bool
	createdAt         time.Time
}

func NewOrder(id OrderId, trader AccountID, asset AssetID, side Side, price Price, quantity *big.Int, orderType OrderType) Order {
	return Order{
		id:                id,
		trader:            trader,
		asset:             asset,
		side:              side,
		price:             price,
		initialQuantity:   new(big.Int).Set(quantity),
		remainingQuantity: new(big.Int).Set(quantity),
		orderType:         orderType,
		active:            true,
		createdAt:         time.Now(),
	}
}

// RestoreOrder rebuilds an active order that was partly filled before it
// was persisted.
func RestoreOrder(id OrderId, trader AccountID, asset AssetID, side Side, price Price, initial, remaining *big.Int, orderType OrderType, createdAt time.Time) Order {
	return Order{
		id:                id,
		trader:            trader,
		asset:             asset,
		side:              side,
		price:             price,
		initialQuantity:   new(big.Int).Set(initial),
		remainingQuantity: new(big.Int).Set(remaining),
		orderType:         orderType,
		active:            remaining.Sign() > 0,
		createdAt:         createdAt,
	}
}

func (o *Order) GetFilledQuantity() *big.Int {
	return new(big.Int).Sub(o.initialQuantity, o.remainingQuantity)
}

// Fill reduces the remaining quantity. An order that reaches zero is
// deactivated and never comes back.
func (o *Order) Fill(quantity *big.Int) error {
	if !o.active {
		return fmt.Errorf("order %d is not active", o.id)
	}
	if quantity.Sign() <= 0 || quantity.Cmp(o.remainingQuantity) > 0 {
		return fmt.Errorf("order cannot be filled for more than its remaining quantity %d", o.id)
	}
	o.remainingQuantity.Sub(o.remainingQuantity, quantity)
	if o.remainingQuantity.Sign() == 0 {
		o.active = false
	}
	return nil
}

// Deactivate marks the order cancelled. Remaining quantity is left as is so
// the refunded amount can still be read back.
func (o *Order) Deactivate() {
	o.active = false
}

func (o *Order) IsFilled() bool {
	return o.remainingQuantity.Sign() == 0
}

func (o *Order) IsActive() bool {
	return o.active
}

func (o *Order) GetRemainingQuantity() *big.Int {
	return new(big.Int).Set(o.remainingQuantity)
}

func (o *Order) GetPrice() Price {
	return o.price
}

func (o *Order) GetId() OrderId {
	return o.id
}

func (o *Order) GetTrader() AccountID {
	return o.trader
}

func (o *Order) GetAsset() AssetID {
	return o.asset
}

func (o *Order) GetType() OrderType {
	return o.orderType
}

func (o *Order) GetSide() Side {
	return o.side
}

func (o *Order) GetInitialQuantity() *big.Int {
	return new(big.Int).Set(o.initialQuantity)
}

func (o *Order) GetCreatedAt() time.Time {
	return o.createdAt
}

// Snapshot returns a deep copy that shares no state with the book.
func (o *Order) Snapshot() Order {
	cp := *o
	cp.initialQuantity = new(big.Int).Set(o.initialQuantity)
	cp.remainingQuantity = new(big.Int).Set(o.remainingQuantity)
	return cp
}

// OrderView is the JSON shape of an order.
type OrderView struct {
	ID        OrderId   `json:"id"`
	Trader    AccountID `json:"trader"`
	Asset     AssetID   `json:"asset"`
	Side      string    `json:"side"`
	Price     Price     `json:"price"`
	Quantity  string    `json:"quantity"`
	Remaining string    `json:"remaining"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

func (o *Order) View() OrderView {
	return OrderView{
		ID:        o.id,
		Trader:    o.trader,
		Asset:     o.asset,
		Side:      o.side.String(),
		Price:     o.price,
		Quantity:  FormatUnits(o.initialQuantity),
		Remaining: FormatUnits(o.remainingQuantity),
		Active:    o.active,
		CreatedAt: o.createdAt,
	}
}

type Price uint64
type OrderId uint64
type OrderType uint8

// AccountID identifies a trader or a system account on the ledger.
type AccountID int64

// AssetID identifies a fungible asset on the ledger.
type AssetID string

type Side uint8

const (
	BID Side = iota
	ASK
)

func (s Side) String() string {
	switch s {
	case BID:
		return "BUY"
	case ASK:
		return "SELL"
	}
	return fmt.Sprintf("Side(%d)", uint8(s))
}

// Opposite returns the side resting orders must have to trade against s.
func (s Side) Opposite() Side {
	if s == BID {
		return ASK
	}
	return BID
}

func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY", "buy", "BID", "bid", "0":
		return BID, nil
	case "SELL", "sell", "ASK", "ask", "1":
		return ASK, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

const (
	ORDER_GOOD_TILL_CANCEL OrderType = iota
	ORDER_MARKET_BUDGET
)

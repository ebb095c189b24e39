package model

import (
	"math/big"

	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"github.com/google/btree"
)

// PriceLevel is the FIFO queue of resting orders at one price. Orders are
// appended in id order, so the slice order is time priority.
type PriceLevel interface {
	btree.Item
	GetPrice() model.Price
	GetOrders() []*model.Order
	Append(order *model.Order)
	RemoveOrderByID(orderID model.OrderId) bool
	Reduce(quantity *big.Int)
	Volume() *big.Int
	IsEmpty() bool
}

type level struct {
	Price       model.Price
	Orders      []*model.Order
	TotalVolume *big.Int
}

func (pl *level) GetPrice() model.Price {
	return pl.Price
}

func (pl *level) GetOrders() []*model.Order {
	return pl.Orders
}

func (pl *level) Append(order *model.Order) {
	pl.Orders = append(pl.Orders, order)
	pl.TotalVolume.Add(pl.TotalVolume, order.GetRemainingQuantity())
}

// RemoveOrderByID drops the order and its remaining quantity from the level.
func (pl *level) RemoveOrderByID(orderID model.OrderId) bool {
	for i, order := range pl.Orders {
		if order.GetId() == orderID {
			pl.Orders = append(pl.Orders[:i], pl.Orders[i+1:]...)
			pl.TotalVolume.Sub(pl.TotalVolume, order.GetRemainingQuantity())
			return true
		}
	}
	return false
}

// Reduce accounts for a fill against one of the level's orders.
func (pl *level) Reduce(quantity *big.Int) {
	pl.TotalVolume.Sub(pl.TotalVolume, quantity)
}

func (pl *level) Volume() *big.Int {
	return new(big.Int).Set(pl.TotalVolume)
}

func (pl *level) IsEmpty() bool {
	return len(pl.Orders) == 0
}

// AskPriceLevel ascending
type AskPriceLevel struct {
	level
}

func NewAskPriceLevel(price model.Price) *AskPriceLevel {
	return &AskPriceLevel{level{Price: price, TotalVolume: new(big.Int)}}
}

func (pl *AskPriceLevel) Less(than btree.Item) bool {
	other := than.(*AskPriceLevel)
	return pl.Price < other.Price
}

// BidPriceLevel descending
type BidPriceLevel struct {
	level
}

func NewBidPriceLevel(price model.Price) *BidPriceLevel {
	return &BidPriceLevel{level{Price: price, TotalVolume: new(big.Int)}}
}

func (bpl *BidPriceLevel) Less(than btree.Item) bool {
	other := than.(*BidPriceLevel)
	return bpl.Price > other.Price // Reverse
}

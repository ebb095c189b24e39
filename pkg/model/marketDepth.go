package model

import (
	"encoding/json"
	"math/big"
)

type MarketDepthLevel struct {
	Price      Price
	Volume     *big.Int
	OrderCount int
}

func (l MarketDepthLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Price      Price  `json:"price"`
		Volume     string `json:"volume"`
		OrderCount int    `json:"orderCount"`
	}{l.Price, FormatUnits(l.Volume), l.OrderCount})
}

// MarketDepth represents the full order book depth
type MarketDepth struct {
	Bids      []MarketDepthLevel `json:"bids"` // Highest to lowest price
	Asks      []MarketDepthLevel `json:"asks"` // Lowest to highest price
	Timestamp int64              `json:"timestamp"`
}

// TopOfBook represents best bid/ask. Spread stays zero when the book is
// crossed, which self-trade prevention allows.
type TopOfBook struct {
	BestBid *MarketDepthLevel `json:"bestBid"`
	BestAsk *MarketDepthLevel `json:"bestAsk"`
	Spread  Price             `json:"spread"`
}

package engine

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	orderbookModel "github.com/TiggieF/tokenised-lse-sub000/internal/engine/model"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"github.com/google/btree"
	"go.uber.org/zap"
)

var (
	ErrOrderExists   = errors.New("order already exists")
	ErrOrderNotFound = errors.New("order not found")
	ErrWrongAsset    = errors.New("order belongs to another asset")
)

// Fill is one planned execution against a resting order, always at the
// resting order's price.
type Fill struct {
	Maker    *model.Order
	Price    model.Price
	Quantity *big.Int
}

// OrderBookEngine is the book of a single asset. Matching is split in two
// steps: Match* walks the book in priority order and returns the fills it
// would make without touching any state, ApplyFills commits them. Callers
// settle the fills in between and drop them if settlement fails.
type OrderBookEngine interface {
	Asset() model.AssetID
	MatchLimit(taker *model.Order) []Fill
	MatchBudget(trader model.AccountID, budget *big.Int, maxPrice model.Price) []Fill
	ApplyFills(fills []Fill) error
	AddOrder(order *model.Order) error
	CancelOrder(orderID model.OrderId) (*model.Order, error)
	GetOrder(orderID model.OrderId) (*model.Order, bool)
	OpenOrders(side model.Side) []*model.Order
	OrderSize() int
	GetTopOfBook() *model.TopOfBook
	GetMarketDepth(levels int) *model.MarketDepth
	GetOrderInfos() *model.MarketDepth
}

type OrderBookEngineImpl struct {
	asset      model.AssetID
	bids, asks *btree.BTree                   // price-level trees, best level first
	orders     map[model.OrderId]*model.Order // resting orders by ID
	logger     *zap.SugaredLogger
}

func NewOrderBookEngine(asset model.AssetID, logger *zap.SugaredLogger) OrderBookEngine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	o := &OrderBookEngineImpl{asset: asset, logger: logger}
	o.Initialize()
	return o
}

func (o *OrderBookEngineImpl) Initialize() {
	o.bids = btree.New(32) // degree tuned for performance
	o.asks = btree.New(32)
	o.orders = make(map[model.OrderId]*model.Order)
	o.logger.Debugw("order book initialized", "asset", o.asset)
}

func (o *OrderBookEngineImpl) Asset() model.AssetID {
	return o.asset
}

func (o *OrderBookEngineImpl) tree(side model.Side) *btree.BTree {
	if side == model.BID {
		return o.bids
	}
	return o.asks
}

func (o *OrderBookEngineImpl) level(side model.Side, price model.Price) orderbookModel.PriceLevel {
	var key btree.Item
	if side == model.BID {
		key = orderbookModel.NewBidPriceLevel(price)
	} else {
		key = orderbookModel.NewAskPriceLevel(price)
	}
	item := o.tree(side).Get(key)
	if item == nil {
		return nil
	}
	return item.(orderbookModel.PriceLevel)
}

// crosses reports whether an incoming order on side at limit can trade
// with a resting level at price.
func crosses(side model.Side, limit, price model.Price) bool {
	if side == model.BID {
		return limit >= price
	}
	return limit <= price
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// MatchLimit plans the fills for an incoming limit order. Resting orders of
// the same trader are skipped, never filled.
func (o *OrderBookEngineImpl) MatchLimit(taker *model.Order) []Fill {
	fills := make([]Fill, 0)
	remaining := taker.GetRemainingQuantity()
	if remaining.Sign() == 0 {
		return fills
	}

	o.tree(taker.GetSide().Opposite()).Ascend(func(item btree.Item) bool {
		priceLevel := item.(orderbookModel.PriceLevel)
		if !crosses(taker.GetSide(), taker.GetPrice(), priceLevel.GetPrice()) {
			return false
		}
		for _, maker := range priceLevel.GetOrders() {
			if maker.GetTrader() == taker.GetTrader() {
				continue
			}
			qty := minBig(remaining, maker.GetRemainingQuantity())
			fills = append(fills, Fill{Maker: maker, Price: priceLevel.GetPrice(), Quantity: qty})
			remaining.Sub(remaining, qty)
			if remaining.Sign() == 0 {
				return false
			}
		}
		return true
	})
	return fills
}

// MatchBudget plans a market buy spending at most budget on asks priced at
// or below maxPrice. It stops at the first ask where the budget left buys
// nothing or where the purchasable quantity would cost nothing.
func (o *OrderBookEngineImpl) MatchBudget(trader model.AccountID, budget *big.Int, maxPrice model.Price) []Fill {
	fills := make([]Fill, 0)
	left := new(big.Int).Set(budget)

	o.asks.Ascend(func(item btree.Item) bool {
		priceLevel := item.(orderbookModel.PriceLevel)
		price := priceLevel.GetPrice()
		if price > maxPrice {
			return false
		}
		for _, maker := range priceLevel.GetOrders() {
			if maker.GetTrader() == trader {
				continue
			}
			qty := minBig(model.MaxQuantityFor(left, price), maker.GetRemainingQuantity())
			if qty.Sign() == 0 {
				return false
			}
			cost := model.QuoteAmount(qty, price)
			if cost.Sign() == 0 {
				return false
			}
			fills = append(fills, Fill{Maker: maker, Price: price, Quantity: qty})
			left.Sub(left, cost)
		}
		return true
	})
	return fills
}

// ApplyFills commits planned fills: makers are reduced, fully filled makers
// leave the book and empty levels are dropped.
func (o *OrderBookEngineImpl) ApplyFills(fills []Fill) error {
	for _, f := range fills {
		maker := f.Maker
		if _, ok := o.orders[maker.GetId()]; !ok {
			return fmt.Errorf("fill against %d: %w", maker.GetId(), ErrOrderNotFound)
		}
		priceLevel := o.level(maker.GetSide(), maker.GetPrice())
		if priceLevel == nil {
			return fmt.Errorf("no price level %d for order %d", maker.GetPrice(), maker.GetId())
		}
		if err := maker.Fill(f.Quantity); err != nil {
			return err
		}
		priceLevel.Reduce(f.Quantity)
		if maker.IsFilled() {
			priceLevel.RemoveOrderByID(maker.GetId())
			delete(o.orders, maker.GetId())
		}
		if priceLevel.IsEmpty() {
			o.tree(maker.GetSide()).Delete(priceLevel)
		}
	}
	return nil
}

// AddOrder rests an order at the back of its price level.
func (o *OrderBookEngineImpl) AddOrder(order *model.Order) error {
	if _, ok := o.orders[order.GetId()]; ok {
		return fmt.Errorf("%w: id %d", ErrOrderExists, order.GetId())
	}
	if order.GetAsset() != o.asset {
		return fmt.Errorf("%w: %s", ErrWrongAsset, order.GetAsset())
	}
	if !order.IsActive() || order.IsFilled() {
		return fmt.Errorf("order %d has nothing left to rest", order.GetId())
	}

	priceLevel := o.level(order.GetSide(), order.GetPrice())
	if priceLevel == nil {
		if order.GetSide() == model.BID {
			priceLevel = orderbookModel.NewBidPriceLevel(order.GetPrice())
		} else {
			priceLevel = orderbookModel.NewAskPriceLevel(order.GetPrice())
		}
		o.tree(order.GetSide()).ReplaceOrInsert(priceLevel)
	}
	priceLevel.Append(order)
	o.orders[order.GetId()] = order
	return nil
}

// CancelOrder removes a resting order and deactivates it.
func (o *OrderBookEngineImpl) CancelOrder(orderID model.OrderId) (*model.Order, error) {
	order, exists := o.orders[orderID]
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}

	if priceLevel := o.level(order.GetSide(), order.GetPrice()); priceLevel != nil {
		priceLevel.RemoveOrderByID(orderID)
		if priceLevel.IsEmpty() {
			o.tree(order.GetSide()).Delete(priceLevel)
		}
	}
	order.Deactivate()
	delete(o.orders, orderID)
	return order, nil
}

func (o *OrderBookEngineImpl) GetOrder(orderID model.OrderId) (*model.Order, bool) {
	order, ok := o.orders[orderID]
	return order, ok
}

// OpenOrders lists the resting orders of one side in match priority.
func (o *OrderBookEngineImpl) OpenOrders(side model.Side) []*model.Order {
	orders := make([]*model.Order, 0)
	o.tree(side).Ascend(func(item btree.Item) bool {
		orders = append(orders, item.(orderbookModel.PriceLevel).GetOrders()...)
		return true
	})
	return orders
}

func (o *OrderBookEngineImpl) OrderSize() int {
	return len(o.orders)
}

func depthLevel(pl orderbookModel.PriceLevel) model.MarketDepthLevel {
	return model.MarketDepthLevel{
		Price:      pl.GetPrice(),
		Volume:     pl.Volume(),
		OrderCount: len(pl.GetOrders()),
	}
}

func (o *OrderBookEngineImpl) GetMarketDepth(levels int) *model.MarketDepth {
	depth := &model.MarketDepth{
		Bids:      make([]model.MarketDepthLevel, 0, levels),
		Asks:      make([]model.MarketDepthLevel, 0, levels),
		Timestamp: time.Now().UnixMilli(),
	}

	// Collect bid levels (highest price first)
	o.bids.Ascend(func(item btree.Item) bool {
		if len(depth.Bids) >= levels {
			return false // Stop iteration
		}
		depth.Bids = append(depth.Bids, depthLevel(item.(orderbookModel.PriceLevel)))
		return true
	})

	// Collect ask levels (lowest price first)
	o.asks.Ascend(func(item btree.Item) bool {
		if len(depth.Asks) >= levels {
			return false
		}
		depth.Asks = append(depth.Asks, depthLevel(item.(orderbookModel.PriceLevel)))
		return true
	})

	return depth
}

// GetTopOfBook returns best bid and ask
func (o *OrderBookEngineImpl) GetTopOfBook() *model.TopOfBook {
	tob := &model.TopOfBook{}

	if o.bids.Len() > 0 {
		best := depthLevel(o.bids.Min().(orderbookModel.PriceLevel))
		tob.BestBid = &best
	}
	if o.asks.Len() > 0 {
		best := depthLevel(o.asks.Min().(orderbookModel.PriceLevel))
		tob.BestAsk = &best
	}

	if tob.BestBid != nil && tob.BestAsk != nil && tob.BestAsk.Price > tob.BestBid.Price {
		tob.Spread = tob.BestAsk.Price - tob.BestBid.Price
	}
	return tob
}

func (o *OrderBookEngineImpl) GetOrderInfos() *model.MarketDepth {
	return o.GetMarketDepth(10) // Default to top 10 levels
}

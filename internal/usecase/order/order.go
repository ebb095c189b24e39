package order

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/internal/engine"
	"github.com/TiggieF/tokenised-lse-sub000/internal/ledger"
	"github.com/TiggieF/tokenised-lse-sub000/internal/pricefeed"
	"github.com/TiggieF/tokenised-lse-sub000/internal/registry"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"go.uber.org/zap"
)

var (
	ErrInvalidPrice    = errors.New("price must be > 0")
	ErrInvalidQuantity = errors.New("quantity must be > 0")
	ErrInvalidBudget   = errors.New("budget must be > 0")
	ErrZeroNotional    = errors.New("order notional rounds to zero")
	ErrUnknownToken    = errors.New("unknown token")
	ErrNotOwner        = errors.New("not order owner")
	ErrOrderNotFound   = errors.New("order not found")
	ErrOrderNotActive  = errors.New("order not active")
	ErrNoFill          = errors.New("orderbook: no fill")
	ErrStalePrice      = errors.New("stale price")
)

type OrderUseCase interface {
	PlaceLimitOrder(ctx context.Context, trader model.AccountID, asset model.AssetID, side model.Side, price model.Price, quantity *big.Int) (model.OrderId, []*model.Trade, error)
	CancelOrder(ctx context.Context, trader model.AccountID, orderID model.OrderId) error
	BuyExactQuote(ctx context.Context, trader model.AccountID, asset model.AssetID, budget *big.Int, maxPrice model.Price) (*MarketBuy, error)
	BuyExactQuoteAtOracle(ctx context.Context, trader model.AccountID, asset model.AssetID, budget *big.Int, maxSlippageBps uint32) (*OracleBuy, error)

	GetOpenOrders(ctx context.Context, asset model.AssetID, side model.Side) ([]model.Order, error)
	GetOrder(ctx context.Context, orderID model.OrderId) (model.Order, error)
	GetTopOfBook(ctx context.Context, asset model.AssetID) (*model.TopOfBook, error)
	GetMarketDepth(ctx context.Context, asset model.AssetID, levels int) (*model.MarketDepth, error)
	NextOrderID() model.OrderId
	Restore(orders []model.Order) error
	Account() model.AccountID
	QuoteAsset() model.AssetID

	RegisterTradeHandler(handler TradeHandler)
	RegisterOrderHandler(handler OrderHandler)
	RegisterOracleBuyHandler(handler OracleBuyHandler)
}

type TradeHandler func(model.Trade)
type OrderHandler func(model.OrderEvent)
type OracleBuyHandler func(model.OracleQuoteBuy)

// Reporter receives per-fill activity. The exchange reports as its own
// custody account.
type Reporter interface {
	RecordTrade(ctx context.Context, caller, trader model.AccountID, notional *big.Int) error
	RecordTradeQty(ctx context.Context, caller, trader model.AccountID, qty *big.Int) error
}

// MarketBuy is the outcome of a budget-bounded market buy.
type MarketBuy struct {
	OrderID  model.OrderId
	Quantity *big.Int
	Spent    *big.Int
	Trades   []*model.Trade
}

type OracleBuy struct {
	MarketBuy
	Symbol         string
	OraclePrice    model.Price
	OracleMaxPrice model.Price
}

type OrderUseCaseOpts struct {
	Ledger   ledger.AssetLedger
	Registry registry.Registry
	Oracle   pricefeed.Oracle
	Reporter Reporter // optional

	// QuoteAsset defaults to the asset id of model.CASH_TICKER.
	QuoteAsset model.AssetID
	// Account holds every escrowed balance and reports to the Reporter.
	Account model.AccountID
	Logger  *zap.SugaredLogger
	Now     func() time.Time

	// LastOrderID and LastTradeID continue numbering after a restart.
	LastOrderID model.OrderId
	LastTradeID uint64
}

type orderUseCaseImpl struct {
	// one lock for every book, the counters and escrow
	mu sync.RWMutex

	books       map[model.AssetID]engine.OrderBookEngine
	orders      map[model.OrderId]*model.Order // every order ever placed
	escrow      map[model.OrderId]*big.Int     // locked by each resting order
	nextOrderID model.OrderId
	nextTradeID uint64

	ledger     ledger.AssetLedger
	registry   registry.Registry
	oracle     pricefeed.Oracle
	reporter   Reporter
	quoteAsset model.AssetID
	account    model.AccountID
	logger     *zap.SugaredLogger
	now        func() time.Time

	tradeHandlers     []TradeHandler
	orderHandlers     []OrderHandler
	oracleBuyHandlers []OracleBuyHandler
}

func NewOrderUseCase(opts OrderUseCaseOpts) OrderUseCase {
	if opts.QuoteAsset == "" {
		opts.QuoteAsset = model.AssetIDFor(model.CASH_TICKER)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &orderUseCaseImpl{
		books:       make(map[model.AssetID]engine.OrderBookEngine),
		orders:      make(map[model.OrderId]*model.Order),
		escrow:      make(map[model.OrderId]*big.Int),
		nextOrderID: opts.LastOrderID,
		nextTradeID: opts.LastTradeID,
		ledger:      opts.Ledger,
		registry:    opts.Registry,
		oracle:      opts.Oracle,
		reporter:    opts.Reporter,
		quoteAsset:  opts.QuoteAsset,
		account:     opts.Account,
		logger:      opts.Logger,
		now:         opts.Now,
	}
}

func (ou *orderUseCaseImpl) RegisterTradeHandler(handler TradeHandler) {
	ou.mu.Lock()
	defer ou.mu.Unlock()
	ou.tradeHandlers = append(ou.tradeHandlers, handler)
}

func (ou *orderUseCaseImpl) RegisterOrderHandler(handler OrderHandler) {
	ou.mu.Lock()
	defer ou.mu.Unlock()
	ou.orderHandlers = append(ou.orderHandlers, handler)
}

func (ou *orderUseCaseImpl) RegisterOracleBuyHandler(handler OracleBuyHandler) {
	ou.mu.Lock()
	defer ou.mu.Unlock()
	ou.oracleBuyHandlers = append(ou.oracleBuyHandlers, handler)
}

func (ou *orderUseCaseImpl) Account() model.AccountID {
	return ou.account
}

func (ou *orderUseCaseImpl) QuoteAsset() model.AssetID {
	return ou.quoteAsset
}

// NextOrderID is the id the next accepted order will get.
func (ou *orderUseCaseImpl) NextOrderID() model.OrderId {
	ou.mu.RLock()
	defer ou.mu.RUnlock()
	return ou.nextOrderID + 1
}

func (ou *orderUseCaseImpl) book(asset model.AssetID) engine.OrderBookEngine {
	b, ok := ou.books[asset]
	if !ok {
		b = engine.NewOrderBookEngine(asset, ou.logger)
		ou.books[asset] = b
	}
	return b
}

func (ou *orderUseCaseImpl) settlement() *settlement {
	return &settlement{quote: ou.quoteAsset, custody: ou.account}
}

// PlaceLimitOrder escrows the order, matches it against the opposite side
// and rests whatever is left. Nothing changes unless every custody transfer
// of the call goes through.
func (ou *orderUseCaseImpl) PlaceLimitOrder(ctx context.Context, trader model.AccountID, asset model.AssetID, side model.Side, price model.Price, quantity *big.Int) (model.OrderId, []*model.Trade, error) {
	if price == 0 {
		return 0, nil, ErrInvalidPrice
	}
	if quantity == nil || quantity.Sign() <= 0 {
		return 0, nil, ErrInvalidQuantity
	}
	if side != model.BID && side != model.ASK {
		return 0, nil, fmt.Errorf("invalid side %d", side)
	}
	if side == model.BID && model.QuoteAmount(quantity, price).Sign() == 0 {
		return 0, nil, ErrZeroNotional
	}
	if !ou.registry.IsListed(asset) {
		return 0, nil, fmt.Errorf("%w: %s", ErrUnknownToken, asset)
	}

	ou.mu.Lock()
	defer ou.mu.Unlock()

	orderID := ou.nextOrderID + 1
	o := model.NewOrder(orderID, trader, asset, side, price, quantity, model.ORDER_GOOD_TILL_CANCEL)
	taker := &o
	book := ou.book(asset)
	fills := book.MatchLimit(taker)

	s := ou.settlement()
	s.escrowIn(taker)
	takerRemaining := taker.GetRemainingQuantity()
	makerEscrowLeft := make([]*big.Int, len(fills))
	for i, f := range fills {
		s.limitFill(taker, takerRemaining, f)
		maker := f.Maker
		makerEscrowLeft[i] = escrowFor(maker.GetSide(), new(big.Int).Sub(maker.GetRemainingQuantity(), f.Quantity), maker.GetPrice())
		takerRemaining.Sub(takerRemaining, f.Quantity)
	}
	if err := ou.ledger.Apply(ctx, s.transfers); err != nil {
		return 0, nil, fmt.Errorf("settling order: %w", err)
	}

	// committed from here on
	ou.nextOrderID = orderID
	ou.orders[orderID] = taker
	trades, err := ou.commitFills(ctx, taker, fills, makerEscrowLeft)
	if err != nil {
		return orderID, trades, err
	}
	ou.emitOrder(model.ORDER_PLACED, taker)
	if taker.IsActive() {
		ou.escrow[orderID] = escrowFor(side, taker.GetRemainingQuantity(), price)
		if err := book.AddOrder(taker); err != nil {
			return orderID, trades, err
		}
	} else {
		ou.emitOrder(model.ORDER_FILLED, taker)
	}

	ou.logger.Infow("limit order placed",
		"orderId", orderID, "trader", trader, "asset", asset, "side", side.String(),
		"price", price, "quantity", model.FormatUnits(quantity), "fills", len(fills))
	ou.emitTrades(trades)
	return orderID, trades, nil
}

// commitFills applies already-settled fills to the book, the orders and
// escrow, then builds the trades and reports them.
func (ou *orderUseCaseImpl) commitFills(ctx context.Context, taker *model.Order, fills []engine.Fill, makerEscrowLeft []*big.Int) ([]*model.Trade, error) {
	book := ou.book(taker.GetAsset())
	if err := book.ApplyFills(fills); err != nil {
		ou.logger.Errorw("book out of sync with settled fills", "takerId", taker.GetId(), "error", err)
		return nil, err
	}

	trades := make([]*model.Trade, 0, len(fills))
	ts := ou.now()
	for i, f := range fills {
		maker := f.Maker
		if err := taker.Fill(f.Quantity); err != nil {
			return trades, err
		}
		if maker.IsActive() {
			ou.escrow[maker.GetId()] = makerEscrowLeft[i]
			ou.emitOrder(model.ORDER_PARTIALLY_FILLED, maker)
		} else {
			delete(ou.escrow, maker.GetId())
			ou.emitOrder(model.ORDER_FILLED, maker)
		}

		ou.nextTradeID++
		tr := &model.Trade{
			ID:        ou.nextTradeID,
			Asset:     taker.GetAsset(),
			Side:      taker.GetSide(),
			MakerID:   maker.GetId(),
			TakerID:   taker.GetId(),
			Maker:     maker.GetTrader(),
			Taker:     taker.GetTrader(),
			Price:     f.Price,
			Quantity:  new(big.Int).Set(f.Quantity),
			Notional:  model.QuoteAmount(f.Quantity, f.Price),
			Timestamp: ts,
		}
		trades = append(trades, tr)
		ou.report(ctx, tr)
	}
	return trades, nil
}

// report feeds both sides of a trade into the reporter. The trade is
// already settled, so a rejected report is logged, not returned.
func (ou *orderUseCaseImpl) report(ctx context.Context, tr *model.Trade) {
	if ou.reporter == nil {
		return
	}
	for _, trader := range []model.AccountID{tr.Maker, tr.Taker} {
		if err := ou.reporter.RecordTradeQty(ctx, ou.account, trader, tr.Quantity); err != nil {
			ou.logger.Errorw("reporting traded quantity", "tradeId", tr.ID, "trader", trader, "error", err)
		}
		if err := ou.reporter.RecordTrade(ctx, ou.account, trader, tr.Notional); err != nil {
			ou.logger.Errorw("reporting traded volume", "tradeId", tr.ID, "trader", trader, "error", err)
		}
	}
}

func (ou *orderUseCaseImpl) emitTrades(trades []*model.Trade) {
	for _, tr := range trades {
		for _, h := range ou.tradeHandlers {
			h(*tr)
		}
	}
}

func (ou *orderUseCaseImpl) emitOrder(typ model.OrderEventType, o *model.Order) {
	if len(ou.orderHandlers) == 0 {
		return
	}
	ev := model.OrderEvent{Type: typ, Order: o.Snapshot()}
	for _, h := range ou.orderHandlers {
		h(ev)
	}
}

// Restore puts persisted resting orders back on their books, in the order
// given. Their escrow is already held in custody, so nothing is transferred
// and no events are emitted.
func (ou *orderUseCaseImpl) Restore(orders []model.Order) error {
	ou.mu.Lock()
	defer ou.mu.Unlock()

	restored := 0
	for i := range orders {
		o := orders[i].Snapshot()
		id := o.GetId()
		if !o.IsActive() {
			continue
		}
		if !ou.registry.IsListed(o.GetAsset()) {
			return fmt.Errorf("restoring order %d: %w: %s", id, ErrUnknownToken, o.GetAsset())
		}
		if _, ok := ou.orders[id]; ok {
			return fmt.Errorf("restoring order %d: %w", id, engine.ErrOrderExists)
		}
		if err := ou.book(o.GetAsset()).AddOrder(&o); err != nil {
			return fmt.Errorf("restoring order %d: %w", id, err)
		}
		ou.orders[id] = &o
		ou.escrow[id] = escrowFor(o.GetSide(), o.GetRemainingQuantity(), o.GetPrice())
		if id > ou.nextOrderID {
			ou.nextOrderID = id
		}
		restored++
	}
	ou.logger.Infow("resting orders restored", "count", restored)
	return nil
}

// CancelOrder refunds the escrow of an active order to its owner and takes
// it off the book.
func (ou *orderUseCaseImpl) CancelOrder(ctx context.Context, trader model.AccountID, orderID model.OrderId) error {
	ou.mu.Lock()
	defer ou.mu.Unlock()

	o, ok := ou.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}
	if o.GetTrader() != trader {
		return ErrNotOwner
	}
	if !o.IsActive() {
		return fmt.Errorf("%w: %d", ErrOrderNotActive, orderID)
	}

	s := ou.settlement()
	if locked, ok := ou.escrow[orderID]; ok {
		s.refund(o.GetAsset(), o.GetSide(), trader, locked)
	}
	if err := ou.ledger.Apply(ctx, s.transfers); err != nil {
		return fmt.Errorf("refunding escrow: %w", err)
	}

	if _, err := ou.book(o.GetAsset()).CancelOrder(orderID); err != nil {
		ou.logger.Errorw("cancelled order missing from book", "orderId", orderID, "error", err)
		o.Deactivate()
	}
	delete(ou.escrow, orderID)
	ou.logger.Infow("order cancelled", "orderId", orderID, "trader", trader,
		"remaining", model.FormatUnits(o.GetRemainingQuantity()))
	ou.emitOrder(model.ORDER_CANCELLED, o)
	return nil
}

// GetOpenOrders lists the active orders of one side in match priority.
func (ou *orderUseCaseImpl) GetOpenOrders(ctx context.Context, asset model.AssetID, side model.Side) ([]model.Order, error) {
	if !ou.registry.IsListed(asset) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, asset)
	}
	ou.mu.RLock()
	defer ou.mu.RUnlock()

	out := make([]model.Order, 0)
	b, ok := ou.books[asset]
	if !ok {
		return out, nil
	}
	for _, o := range b.OpenOrders(side) {
		out = append(out, o.Snapshot())
	}
	return out, nil
}

// GetOrder returns any order ever accepted, filled and cancelled ones
// included.
func (ou *orderUseCaseImpl) GetOrder(ctx context.Context, orderID model.OrderId) (model.Order, error) {
	ou.mu.RLock()
	defer ou.mu.RUnlock()
	o, ok := ou.orders[orderID]
	if !ok {
		return model.Order{}, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}
	return o.Snapshot(), nil
}

func (ou *orderUseCaseImpl) GetTopOfBook(ctx context.Context, asset model.AssetID) (*model.TopOfBook, error) {
	if !ou.registry.IsListed(asset) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, asset)
	}
	ou.mu.RLock()
	defer ou.mu.RUnlock()
	b, ok := ou.books[asset]
	if !ok {
		return &model.TopOfBook{}, nil
	}
	return b.GetTopOfBook(), nil
}

func (ou *orderUseCaseImpl) GetMarketDepth(ctx context.Context, asset model.AssetID, levels int) (*model.MarketDepth, error) {
	if !ou.registry.IsListed(asset) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, asset)
	}
	if levels <= 0 {
		levels = 10
	}
	ou.mu.RLock()
	defer ou.mu.RUnlock()
	b, ok := ou.books[asset]
	if !ok {
		return &model.MarketDepth{Bids: []model.MarketDepthLevel{}, Asks: []model.MarketDepthLevel{}, Timestamp: ou.now().UnixMilli()}, nil
	}
	return b.GetMarketDepth(levels), nil
}

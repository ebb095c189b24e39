package order

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/TiggieF/tokenised-lse-sub000/internal/pricefeed"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
)

// BuyExactQuote spends at most budget on asks priced at or below maxPrice.
func (ou *orderUseCaseImpl) BuyExactQuote(ctx context.Context, trader model.AccountID, asset model.AssetID, budget *big.Int, maxPrice model.Price) (*MarketBuy, error) {
	if budget == nil || budget.Sign() <= 0 {
		return nil, ErrInvalidBudget
	}
	if maxPrice == 0 {
		return nil, ErrInvalidPrice
	}
	if !ou.registry.IsListed(asset) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, asset)
	}

	ou.mu.Lock()
	defer ou.mu.Unlock()
	res, err := ou.matchUpToBudget(ctx, trader, asset, budget, maxPrice)
	if err != nil {
		return nil, err
	}
	ou.emitTrades(res.Trades)
	return res, nil
}

// BuyExactQuoteAtOracle is BuyExactQuote with the ceiling set to the fresh
// oracle price plus maxSlippageBps.
func (ou *orderUseCaseImpl) BuyExactQuoteAtOracle(ctx context.Context, trader model.AccountID, asset model.AssetID, budget *big.Int, maxSlippageBps uint32) (*OracleBuy, error) {
	if budget == nil || budget.Sign() <= 0 {
		return nil, ErrInvalidBudget
	}
	symbol, ok := ou.registry.SymbolOf(asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, asset)
	}
	if ou.oracle == nil {
		return nil, fmt.Errorf("%w: no price feed configured", ErrStalePrice)
	}

	fresh, err := ou.oracle.IsFresh(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("checking price of %s: %w", symbol, err)
	}
	if !fresh {
		return nil, fmt.Errorf("%w: %s", ErrStalePrice, symbol)
	}
	price, _, err := ou.oracle.GetPrice(ctx, symbol)
	if errors.Is(err, pricefeed.ErrNoPrice) {
		return nil, fmt.Errorf("%w: %s", ErrStalePrice, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("reading price of %s: %w", symbol, err)
	}
	ceiling, ok := oracleCeiling(price, maxSlippageBps)
	if !ok {
		return nil, fmt.Errorf("%w: slippage overflows price", ErrInvalidPrice)
	}

	ou.mu.Lock()
	defer ou.mu.Unlock()
	res, err := ou.matchUpToBudget(ctx, trader, asset, budget, ceiling)
	if err != nil {
		return nil, err
	}

	buy := &OracleBuy{
		MarketBuy:      *res,
		Symbol:         symbol,
		OraclePrice:    price,
		OracleMaxPrice: ceiling,
	}
	ev := model.OracleQuoteBuy{
		Trader:         trader,
		Asset:          asset,
		Symbol:         symbol,
		TakerID:        res.OrderID,
		QtyBought:      new(big.Int).Set(res.Quantity),
		QuoteSpent:     new(big.Int).Set(res.Spent),
		OraclePrice:    price,
		OracleMaxPrice: ceiling,
		Timestamp:      ou.now(),
	}
	ou.logger.Infow("oracle quote buy executed",
		"trader", trader, "symbol", symbol, "qty", model.FormatUnits(res.Quantity),
		"spent", model.FormatUnits(res.Spent), "oraclePrice", price, "ceiling", ceiling)
	ou.emitTrades(res.Trades)
	for _, h := range ou.oracleBuyHandlers {
		h(ev)
	}
	return buy, nil
}

// matchUpToBudget runs a market buy under the write lock. The buyer pays
// sellers directly and receives shares out of the sellers' escrow; no quote
// is escrowed for the buyer.
func (ou *orderUseCaseImpl) matchUpToBudget(ctx context.Context, trader model.AccountID, asset model.AssetID, budget *big.Int, ceiling model.Price) (*MarketBuy, error) {
	book := ou.book(asset)
	fills := book.MatchBudget(trader, budget, ceiling)

	qty, spent := new(big.Int), new(big.Int)
	s := ou.settlement()
	makerEscrowLeft := make([]*big.Int, len(fills))
	for i, f := range fills {
		s.budgetFill(asset, trader, f)
		qty.Add(qty, f.Quantity)
		spent.Add(spent, model.QuoteAmount(f.Quantity, f.Price))
		makerEscrowLeft[i] = new(big.Int).Sub(f.Maker.GetRemainingQuantity(), f.Quantity)
	}
	if qty.Sign() == 0 {
		return nil, ErrNoFill
	}
	if err := ou.ledger.Apply(ctx, s.transfers); err != nil {
		return nil, fmt.Errorf("settling market buy: %w", err)
	}

	orderID := ou.nextOrderID + 1
	ou.nextOrderID = orderID
	o := model.NewOrder(orderID, trader, asset, model.BID, ceiling, qty, model.ORDER_MARKET_BUDGET)
	taker := &o
	ou.orders[orderID] = taker

	trades, err := ou.commitFills(ctx, taker, fills, makerEscrowLeft)
	if err != nil {
		return nil, err
	}
	ou.emitOrder(model.ORDER_PLACED, taker)
	ou.emitOrder(model.ORDER_FILLED, taker)
	ou.logger.Infow("market buy executed",
		"orderId", orderID, "trader", trader, "asset", asset, "ceiling", ceiling,
		"qty", model.FormatUnits(qty), "spent", model.FormatUnits(spent), "budget", model.FormatUnits(budget))

	return &MarketBuy{OrderID: orderID, Quantity: qty, Spent: spent, Trades: trades}, nil
}

package order

import (
	"math/big"

	"github.com/TiggieF/tokenised-lse-sub000/internal/engine"
	"github.com/TiggieF/tokenised-lse-sub000/internal/ledger"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
)

// escrowFor is what a resting order with remaining quantity locks up: quote
// at its limit for a buy, the shares themselves for a sell.
func escrowFor(side model.Side, remaining *big.Int, price model.Price) *big.Int {
	if side == model.BID {
		return model.QuoteAmount(remaining, price)
	}
	return new(big.Int).Set(remaining)
}

// released is the escrow freed when qty of remaining is filled. For a buy it
// telescopes, so the sum over all fills plus the final refund is exactly the
// amount locked at placement.
func released(side model.Side, remaining, qty *big.Int, price model.Price) *big.Int {
	if side != model.BID {
		return new(big.Int).Set(qty)
	}
	after := new(big.Int).Sub(remaining, qty)
	return new(big.Int).Sub(model.QuoteAmount(remaining, price), model.QuoteAmount(after, price))
}

// settlement collects the custody transfers of one call, in the order they
// have to be applied.
type settlement struct {
	quote     model.AssetID
	custody   model.AccountID
	transfers []ledger.Transfer
}

func (s *settlement) add(asset model.AssetID, from, to model.AccountID, amount *big.Int, code ledger.TransferCode) {
	s.transfers = append(s.transfers, ledger.Transfer{Asset: asset, From: from, To: to, Amount: amount, Code: code})
}

// escrowIn locks what a new limit order needs before it matches.
func (s *settlement) escrowIn(o *model.Order) {
	asset := o.GetAsset()
	if o.GetSide() == model.BID {
		asset = s.quote
	}
	s.add(asset, o.GetTrader(), s.custody, escrowFor(o.GetSide(), o.GetRemainingQuantity(), o.GetPrice()), ledger.CodeEscrow)
}

// refund returns escrow of order side to trader.
func (s *settlement) refund(asset model.AssetID, side model.Side, trader model.AccountID, amount *big.Int) {
	if side == model.BID {
		asset = s.quote
	}
	s.add(asset, s.custody, trader, amount, ledger.CodeRefund)
}

// limitFill settles one fill between two escrowed orders. Both legs are paid
// out of custody: the seller gets the notional, the buyer gets the shares
// and whatever its escrow held beyond the notional.
func (s *settlement) limitFill(taker *model.Order, takerRemaining *big.Int, f engine.Fill) (buyerRefund *big.Int) {
	maker := f.Maker
	buyer, seller := maker.GetTrader(), taker.GetTrader()
	buyerRemaining, buyerLimit := maker.GetRemainingQuantity(), maker.GetPrice()
	if taker.GetSide() == model.BID {
		buyer, seller = taker.GetTrader(), maker.GetTrader()
		buyerRemaining, buyerLimit = takerRemaining, taker.GetPrice()
	}

	notional := model.QuoteAmount(f.Quantity, f.Price)
	freed := released(model.BID, buyerRemaining, f.Quantity, buyerLimit)
	buyerRefund = new(big.Int).Sub(freed, notional)

	s.add(s.quote, s.custody, seller, notional, ledger.CodeSettleCash)
	s.add(taker.GetAsset(), s.custody, buyer, f.Quantity, ledger.CodeSettle)
	s.add(s.quote, s.custody, buyer, buyerRefund, ledger.CodeRefund)
	return buyerRefund
}

// budgetFill settles one fill of a market buy: quote goes straight from the
// buyer to the seller, shares come out of the seller's escrow.
func (s *settlement) budgetFill(asset model.AssetID, buyer model.AccountID, f engine.Fill) {
	s.add(s.quote, buyer, f.Maker.GetTrader(), model.QuoteAmount(f.Quantity, f.Price), ledger.CodeSettleCash)
	s.add(asset, s.custody, buyer, f.Quantity, ledger.CodeSettle)
}

// oracleCeiling is price raised by bps basis points, rounded down.
func oracleCeiling(price model.Price, bps uint32) (model.Price, bool) {
	v := new(big.Int).SetUint64(uint64(price))
	v.Mul(v, big.NewInt(10_000+int64(bps)))
	v.Quo(v, big.NewInt(10_000))
	if !v.IsUint64() {
		return 0, false
	}
	return model.Price(v.Uint64()), true
}

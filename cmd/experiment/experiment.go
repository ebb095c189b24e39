package main

import (
	"context"
	"log"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/internal/award"
	"github.com/TiggieF/tokenised-lse-sub000/internal/ledger"
	"github.com/TiggieF/tokenised-lse-sub000/internal/logging"
	"github.com/TiggieF/tokenised-lse-sub000/internal/pricefeed"
	"github.com/TiggieF/tokenised-lse-sub000/internal/registry"
	"github.com/TiggieF/tokenised-lse-sub000/internal/usecase/order"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
)

const (
	exchange model.AccountID = 1_000_000
	alice    model.AccountID = 1
	bob      model.AccountID = 2
)

func main() {
	ctx := context.Background()
	logger, err := logging.New("debug", true)
	if err != nil {
		log.Fatal(err)
	}

	now := time.Now()
	clock := func() time.Time { return now }
	quote := model.AssetIDFor(model.CASH_TICKER)
	acme := model.AssetIDFor("ACME")

	balances := ledger.NewMemory()
	reg := registry.NewMemory()
	if err := reg.Register(registry.Listing{Symbol: "ACME", Name: "Acme Corp"}); err != nil {
		logger.Fatal(err)
	}
	oracle := pricefeed.NewMemory(clock)
	tracker := award.NewTracker(award.Opts{Ledger: balances, RewardAsset: quote, Dex: exchange, Now: clock, Logger: logger})
	ex := order.NewOrderUseCase(order.OrderUseCaseOpts{
		Ledger: balances, Registry: reg, Oracle: oracle, Reporter: tracker,
		Account: exchange, Logger: logger, Now: clock,
	})
	ex.RegisterTradeHandler(func(tr model.Trade) {
		logger.Infow("trade", "trade", tr.View())
	})

	_ = balances.Mint(ctx, acme, alice, model.Units(10))
	_ = balances.Mint(ctx, quote, bob, model.Units(1_000))

	// resting ask at 1.01 and bid at 1.00 do not cross
	askID, trades, err := ex.PlaceLimitOrder(ctx, alice, acme, model.ASK, 101, model.Units(5))
	logger.Infow("ask placed", "id", askID, "trades", len(trades), "err", err)
	bidID, trades, err := ex.PlaceLimitOrder(ctx, bob, acme, model.BID, 100, model.Units(5))
	logger.Infow("bid placed", "id", bidID, "trades", len(trades), "err", err)

	depth, _ := ex.GetMarketDepth(ctx, acme, 5)
	logger.Infow("depth", "bids", depth.Bids, "asks", depth.Asks)

	// crossing bid fills against the ask at the maker's price
	_, trades, err = ex.PlaceLimitOrder(ctx, bob, acme, model.BID, 101, model.Units(2))
	logger.Infow("crossing bid", "trades", len(trades), "err", err)

	buy, err := ex.BuyExactQuote(ctx, bob, acme, model.Units(1), 101)
	if err == nil {
		logger.Infow("market buy", "qty", model.FormatUnits(buy.Quantity), "spent", model.FormatUnits(buy.Spent))
	}

	_ = oracle.SetPrice(ctx, "ACME", 100)
	obuy, err := ex.BuyExactQuoteAtOracle(ctx, bob, acme, model.Units(1), 100)
	logger.Infow("oracle buy", "result", obuy, "err", err)

	if err := ex.CancelOrder(ctx, bob, bidID); err != nil {
		logger.Warnw("cancel", "err", err)
	}

	epoch := tracker.CurrentEpoch()
	now = now.Add(award.EpochDuration * time.Second)
	err = tracker.FinalizeEpoch(ctx, epoch)
	logger.Infow("epoch finalized", "summary", tracker.Summary(epoch), "err", err)

	for _, acc := range []model.AccountID{alice, bob, exchange} {
		q, _ := balances.BalanceOf(ctx, quote, acc)
		b, _ := balances.BalanceOf(ctx, acme, acc)
		logger.Infow("balance", "account", acc, model.CASH_TICKER, model.FormatUnits(q), "ACME", model.FormatUnits(b))
	}
}

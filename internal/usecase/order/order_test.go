package order

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/internal/award"
	"github.com/TiggieF/tokenised-lse-sub000/internal/ledger"
	"github.com/TiggieF/tokenised-lse-sub000/internal/pricefeed"
	"github.com/TiggieF/tokenised-lse-sub000/internal/registry"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	custody model.AccountID = 0
	alice   model.AccountID = 1
	bob     model.AccountID = 2
	carol   model.AccountID = 3
	dave    model.AccountID = 4
)

var (
	acme  = model.AssetIDFor("ACME")
	quote = model.AssetIDFor(model.CASH_TICKER)
)

type exchange struct {
	OrderUseCase
	ledger  *ledger.Memory
	feed    *pricefeed.Memory
	tracker *award.Tracker
	now     time.Time
	trades  []model.Trade
	events  []model.OrderEvent
	oracle  []model.OracleQuoteBuy
}

func newExchange(t *testing.T) *exchange {
	t.Helper()
	ctx := context.Background()
	x := &exchange{ledger: ledger.NewMemory(), now: time.Unix(1_700_000_000, 0)}
	clock := func() time.Time { return x.now }

	reg := registry.NewMemory()
	require.NoError(t, reg.Register(registry.Listing{Symbol: "ACME", Name: "Acme Corp"}))
	x.feed = pricefeed.NewMemory(clock)
	x.tracker = award.NewTracker(award.Opts{Ledger: x.ledger, RewardAsset: quote, Dex: custody, Now: clock})

	x.OrderUseCase = NewOrderUseCase(OrderUseCaseOpts{
		Ledger:   x.ledger,
		Registry: reg,
		Oracle:   x.feed,
		Reporter: x.tracker,
		Account:  custody,
		Now:      clock,
	})
	x.RegisterTradeHandler(func(tr model.Trade) { x.trades = append(x.trades, tr) })
	x.RegisterOrderHandler(func(ev model.OrderEvent) { x.events = append(x.events, ev) })
	x.RegisterOracleBuyHandler(func(ev model.OracleQuoteBuy) { x.oracle = append(x.oracle, ev) })

	for _, trader := range []model.AccountID{alice, bob, carol, dave} {
		require.NoError(t, x.ledger.Mint(ctx, quote, trader, model.Units(10_000)))
		require.NoError(t, x.ledger.Mint(ctx, acme, trader, model.Units(100)))
	}
	return x
}

func (x *exchange) balance(t *testing.T, asset model.AssetID, who model.AccountID) *big.Int {
	t.Helper()
	b, err := x.ledger.BalanceOf(context.Background(), asset, who)
	require.NoError(t, err)
	return b
}

// units returns whole + cents/100 quote units.
func units(whole int64, cents int64) *big.Int {
	v := model.Units(whole)
	return v.Add(v, new(big.Int).Div(model.Units(cents), big.NewInt(100)))
}

func (x *exchange) place(t *testing.T, trader model.AccountID, side model.Side, price model.Price, shares int64) model.OrderId {
	t.Helper()
	id, _, err := x.PlaceLimitOrder(context.Background(), trader, acme, side, price, model.Units(shares))
	require.NoError(t, err)
	return id
}

func (x *exchange) assertConserved(t *testing.T) {
	t.Helper()
	assert.Equal(t, x.ledger.TotalSupply(quote).String(), x.ledger.Sum(quote).String())
	assert.Equal(t, x.ledger.TotalSupply(acme).String(), x.ledger.Sum(acme).String())
	assert.Equal(t, model.Units(400).String(), x.ledger.Sum(acme).String())
}

func TestPriceTimePriority(t *testing.T) {
	x := newExchange(t)
	first := x.place(t, alice, model.ASK, 10_100, 1)
	second := x.place(t, bob, model.ASK, 10_000, 1)

	buy, trades, err := x.PlaceLimitOrder(context.Background(), carol, acme, model.BID, 10_100, model.Units(2))
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, second, trades[0].MakerID)
	assert.Equal(t, model.Price(10_000), trades[0].Price)
	assert.Equal(t, first, trades[1].MakerID)
	assert.Equal(t, model.Price(10_100), trades[1].Price)
	assert.Equal(t, buy, trades[0].TakerID)

	// carol paid 100 + 101 and got both shares
	assert.Equal(t, new(big.Int).Sub(model.Units(10_000), model.Units(201)).String(), x.balance(t, quote, carol).String())
	assert.Equal(t, model.Units(102).String(), x.balance(t, acme, carol).String())
	assert.Equal(t, model.Units(10_100).String(), x.balance(t, quote, bob).String())
	assert.Equal(t, model.Units(10_101).String(), x.balance(t, quote, alice).String())
	assert.Equal(t, "0", x.balance(t, quote, custody).String())
	assert.Equal(t, "0", x.balance(t, acme, custody).String())

	o, err := x.GetOrder(context.Background(), buy)
	require.NoError(t, err)
	assert.False(t, o.IsActive())
	assert.Len(t, x.trades, 2)
	x.assertConserved(t)
}

func TestEqualPriceFillsOldestFirst(t *testing.T) {
	x := newExchange(t)
	older := x.place(t, alice, model.ASK, 10_000, 1)
	x.place(t, bob, model.ASK, 10_000, 1)

	_, trades, err := x.PlaceLimitOrder(context.Background(), carol, acme, model.BID, 10_000, model.Units(1))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, older, trades[0].MakerID)
}

func TestPriceImprovementRefunded(t *testing.T) {
	x := newExchange(t)
	x.place(t, alice, model.ASK, 10_000, 1)

	// limit 105.00, resting at 100.00: 5.00 comes back right away
	x.place(t, carol, model.BID, 10_500, 1)
	assert.Equal(t, model.Units(9_900).String(), x.balance(t, quote, carol).String())
	assert.Equal(t, "0", x.balance(t, quote, custody).String())
	x.assertConserved(t)
}

func TestIncomingSellFillsBestBid(t *testing.T) {
	x := newExchange(t)
	x.place(t, alice, model.BID, 9_900, 1)
	best := x.place(t, bob, model.BID, 10_000, 2)

	_, trades, err := x.PlaceLimitOrder(context.Background(), carol, acme, model.ASK, 9_900, model.Units(1))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, best, trades[0].MakerID)
	assert.Equal(t, model.Price(10_000), trades[0].Price)
	assert.Equal(t, bob, trades[0].Buyer())

	// bob still has one share bid at 100.00 escrowed
	assert.Equal(t, units(199, 0).String(), x.balance(t, quote, custody).String())
	assert.Equal(t, model.Units(10_100).String(), x.balance(t, quote, carol).String())
	x.assertConserved(t)
}

func TestSelfTradePrevention(t *testing.T) {
	x := newExchange(t)
	sell := x.place(t, alice, model.ASK, 10_000, 1)
	buy, trades, err := x.PlaceLimitOrder(context.Background(), alice, acme, model.BID, 10_000, model.Units(1))
	require.NoError(t, err)
	assert.Empty(t, trades)

	for _, id := range []model.OrderId{sell, buy} {
		o, err := x.GetOrder(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, o.IsActive())
		assert.Equal(t, model.Units(1).String(), o.GetRemainingQuantity().String())
	}
	tob, err := x.GetTopOfBook(context.Background(), acme)
	require.NoError(t, err)
	require.NotNil(t, tob.BestBid)
	require.NotNil(t, tob.BestAsk)

	// someone else still trades with alice's ask
	_, trades, err = x.PlaceLimitOrder(context.Background(), bob, acme, model.BID, 10_000, model.Units(1))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, sell, trades[0].MakerID)
	x.assertConserved(t)
}

func TestCancelRefundsExactEscrow(t *testing.T) {
	ctx := context.Background()
	x := newExchange(t)

	// 3.333... shares at 33.33 locks floor(3.333.. * 3333 / 100)
	qty, err := model.ParseUnits("3.333333333333333333")
	require.NoError(t, err)
	id, _, err := x.PlaceLimitOrder(ctx, alice, acme, model.BID, 3_333, qty)
	require.NoError(t, err)
	locked := model.QuoteAmount(qty, 3_333)
	assert.Equal(t, locked.String(), x.balance(t, quote, custody).String())

	// partial fill, then cancel the rest
	_, _, err = x.PlaceLimitOrder(ctx, bob, acme, model.ASK, 3_333, model.Units(1))
	require.NoError(t, err)

	o, err := x.GetOrder(ctx, id)
	require.NoError(t, err)
	remaining := o.GetRemainingQuantity()
	assert.Equal(t, model.QuoteAmount(remaining, 3_333).String(), x.balance(t, quote, custody).String())

	before := x.balance(t, quote, alice)
	require.NoError(t, x.CancelOrder(ctx, alice, id))
	after := x.balance(t, quote, alice)
	assert.Equal(t, model.QuoteAmount(remaining, 3_333).String(), new(big.Int).Sub(after, before).String())
	assert.Equal(t, "0", x.balance(t, quote, custody).String())

	o, _ = x.GetOrder(ctx, id)
	assert.False(t, o.IsActive())
	assert.Equal(t, model.ORDER_CANCELLED, x.events[len(x.events)-1].Type)
	x.assertConserved(t)
}

func TestCancelSellReturnsShares(t *testing.T) {
	ctx := context.Background()
	x := newExchange(t)
	id := x.place(t, alice, model.ASK, 10_000, 3)
	assert.Equal(t, model.Units(97).String(), x.balance(t, acme, alice).String())

	require.NoError(t, x.CancelOrder(ctx, alice, id))
	assert.Equal(t, model.Units(100).String(), x.balance(t, acme, alice).String())

	asks, err := x.GetOpenOrders(ctx, acme, model.ASK)
	require.NoError(t, err)
	assert.Empty(t, asks)
}

func TestCancelRejects(t *testing.T) {
	ctx := context.Background()
	x := newExchange(t)
	id := x.place(t, alice, model.ASK, 10_000, 1)

	assert.ErrorIs(t, x.CancelOrder(ctx, bob, id), ErrNotOwner)
	assert.ErrorIs(t, x.CancelOrder(ctx, alice, 999), ErrOrderNotFound)
	require.NoError(t, x.CancelOrder(ctx, alice, id))
	assert.ErrorIs(t, x.CancelOrder(ctx, alice, id), ErrOrderNotActive)

	filled := x.place(t, alice, model.ASK, 10_000, 1)
	x.place(t, bob, model.BID, 10_000, 1)
	assert.ErrorIs(t, x.CancelOrder(ctx, alice, filled), ErrOrderNotActive)
}

func TestPlaceLimitOrderValidation(t *testing.T) {
	ctx := context.Background()
	x := newExchange(t)

	_, _, err := x.PlaceLimitOrder(ctx, alice, acme, model.BID, 0, model.Units(1))
	assert.ErrorIs(t, err, ErrInvalidPrice)
	_, _, err = x.PlaceLimitOrder(ctx, alice, acme, model.BID, 100, new(big.Int))
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, _, err = x.PlaceLimitOrder(ctx, alice, acme, model.BID, 1, big.NewInt(99))
	assert.ErrorIs(t, err, ErrZeroNotional)
	_, _, err = x.PlaceLimitOrder(ctx, alice, "unlisted", model.BID, 100, model.Units(1))
	assert.ErrorIs(t, err, ErrUnknownToken)

	// cannot escrow more than the balance; nothing moves and no id is used
	next := x.NextOrderID()
	_, _, err = x.PlaceLimitOrder(ctx, alice, acme, model.ASK, 100, model.Units(101))
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, next, x.NextOrderID())
	assert.Equal(t, model.Units(100).String(), x.balance(t, acme, alice).String())
}

func TestFailedSettlementLeavesBookUntouched(t *testing.T) {
	ctx := context.Background()
	x := newExchange(t)
	ask := x.place(t, alice, model.ASK, 10_000, 1)

	// dave cannot afford 200 shares, so the marketable part must not fill
	_, _, err := x.PlaceLimitOrder(ctx, dave, acme, model.BID, 10_000, model.Units(200))
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	o, err := x.GetOrder(ctx, ask)
	require.NoError(t, err)
	assert.True(t, o.IsActive())
	assert.Equal(t, model.Units(1).String(), o.GetRemainingQuantity().String())
	assert.Empty(t, x.trades)
}

func TestOrdersShareOneIDCounter(t *testing.T) {
	ctx := context.Background()
	x := newExchange(t)
	assert.Equal(t, model.OrderId(1), x.NextOrderID())
	a := x.place(t, alice, model.ASK, 10_000, 1)
	b := x.place(t, bob, model.BID, 9_000, 1)
	res, err := x.BuyExactQuote(ctx, carol, acme, model.Units(100), 10_000)
	require.NoError(t, err)
	assert.Equal(t, []model.OrderId{1, 2, 3}, []model.OrderId{a, b, res.OrderID})

	bids, err := x.GetOpenOrders(ctx, acme, model.BID)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, b, bids[0].GetId())
}

func TestTradesReportedToAward(t *testing.T) {
	ctx := context.Background()
	x := newExchange(t)
	epoch := x.tracker.CurrentEpoch()

	x.place(t, alice, model.ASK, 10_000, 1)
	x.place(t, bob, model.BID, 10_000, 1)
	assert.Equal(t, model.Units(1).String(), x.tracker.QtyOf(epoch, alice).String())
	assert.Equal(t, model.Units(1).String(), x.tracker.QtyOf(epoch, bob).String())
	assert.Equal(t, model.Units(100).String(), x.tracker.VolumeOf(epoch, bob).String())

	x.now = x.now.Add(award.EpochDuration * time.Second)
	require.NoError(t, x.tracker.ClaimAward(ctx, epoch, alice))
	require.NoError(t, x.tracker.ClaimAward(ctx, epoch, bob))
	assert.ErrorIs(t, x.tracker.ClaimAward(ctx, epoch, bob), award.ErrAlreadyClaimed)

	// seller: 10_000 + 100 + reward
	want := new(big.Int).Add(model.Units(10_100), award.RewardAmount)
	assert.Equal(t, want.String(), x.balance(t, quote, alice).String())
}

func TestRestoreRebuildsBookAndEscrow(t *testing.T) {
	ctx := context.Background()
	x := newExchange(t)
	ts := time.Unix(1_699_999_000, 0)

	// escrow for these already sits in custody
	require.NoError(t, x.ledger.TransferCustody(ctx, acme, alice, custody, model.Units(2)))
	require.NoError(t, x.ledger.TransferCustody(ctx, quote, bob, custody, model.Units(99)))
	filled := model.RestoreOrder(3, carol, acme, model.ASK, 10_000, model.Units(1), model.Units(0), model.ORDER_GOOD_TILL_CANCEL, ts)
	require.NoError(t, x.Restore([]model.Order{
		model.RestoreOrder(5, alice, acme, model.ASK, 10_100, model.Units(3), model.Units(2), model.ORDER_GOOD_TILL_CANCEL, ts),
		model.RestoreOrder(7, bob, acme, model.BID, 9_900, model.Units(1), model.Units(1), model.ORDER_GOOD_TILL_CANCEL, ts),
		filled,
	}))
	assert.EqualValues(t, 8, x.NextOrderID())

	_, err := x.GetOrder(ctx, 3)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	top, err := x.GetTopOfBook(ctx, acme)
	require.NoError(t, err)
	require.NotNil(t, top.BestAsk)
	require.NotNil(t, top.BestBid)
	assert.EqualValues(t, 10_100, top.BestAsk.Price)
	assert.EqualValues(t, 9_900, top.BestBid.Price)

	require.NoError(t, x.CancelOrder(ctx, alice, 5))
	require.NoError(t, x.CancelOrder(ctx, bob, 7))
	assert.Zero(t, x.balance(t, acme, custody).Sign())
	assert.Zero(t, x.balance(t, quote, custody).Sign())
	assert.Equal(t, model.Units(100).String(), x.balance(t, acme, alice).String())
	assert.Equal(t, model.Units(10_000).String(), x.balance(t, quote, bob).String())
	x.assertConserved(t)
}

func TestRestoreRejects(t *testing.T) {
	x := newExchange(t)
	ts := time.Unix(1_699_999_000, 0)
	id := x.place(t, alice, model.ASK, 10_000, 1)

	err := x.Restore([]model.Order{model.RestoreOrder(id, alice, acme, model.ASK, 10_000, model.Units(1), model.Units(1), model.ORDER_GOOD_TILL_CANCEL, ts)})
	assert.Error(t, err)

	other := model.AssetIDFor("NOPE")
	err = x.Restore([]model.Order{model.RestoreOrder(id+1, alice, other, model.ASK, 10_000, model.Units(1), model.Units(1), model.ORDER_GOOD_TILL_CANCEL, ts)})
	assert.ErrorIs(t, err, ErrUnknownToken)
}

package journal

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/internal/ledger"
	"github.com/TiggieF/tokenised-lse-sub000/internal/registry"
	"github.com/TiggieF/tokenised-lse-sub000/internal/repository/repositorytest"
	ucorder "github.com/TiggieF/tokenised-lse-sub000/internal/usecase/order"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	seller model.AccountID = 1
	buyer  model.AccountID = 2
)

var acme = model.AssetIDFor("ACME")

func fundedLedger(t *testing.T) *ledger.Memory {
	t.Helper()
	ctx := context.Background()
	led := ledger.NewMemory()
	quote := model.AssetIDFor(model.CASH_TICKER)
	for _, trader := range []model.AccountID{seller, buyer} {
		require.NoError(t, led.Mint(ctx, quote, trader, model.Units(1_000)))
		require.NoError(t, led.Mint(ctx, acme, trader, model.Units(10)))
	}
	return led
}

// startExchange boots an exchange the way the server does: counters and
// resting orders come from the journal before it starts recording.
func startExchange(t *testing.T, led *ledger.Memory, db *sqlx.DB) (ucorder.OrderUseCase, *Journal) {
	t.Helper()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	reg := registry.NewMemory()
	require.NoError(t, reg.Register(registry.Listing{Symbol: "ACME", Name: "Acme Corp"}))

	j := New(Opts{DB: db, Now: clock})
	lastOrder, lastTrade, err := j.LastIDs(ctx)
	require.NoError(t, err)
	ex := ucorder.NewOrderUseCase(ucorder.OrderUseCaseOpts{
		Ledger: led, Registry: reg, Now: clock,
		LastOrderID: lastOrder, LastTradeID: lastTrade,
	})
	resting, err := j.RestingOrders(ctx)
	require.NoError(t, err)
	require.NoError(t, ex.Restore(resting))
	j.Attach(ex)
	go j.Run(ctx)
	return ex, j
}

func newJournaledExchange(t *testing.T) (ucorder.OrderUseCase, *Journal) {
	t.Helper()
	return startExchange(t, fundedLedger(t), repositorytest.NewDB(t))
}

func TestJournalPersistsOrdersAndTrades(t *testing.T) {
	ctx := context.Background()
	ex, j := newJournaledExchange(t)

	ask, _, err := ex.PlaceLimitOrder(ctx, seller, acme, model.ASK, 10_000, model.Units(3))
	require.NoError(t, err)
	bid, trades, err := ex.PlaceLimitOrder(ctx, buyer, acme, model.BID, 10_000, model.Units(1))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	cancelled, _, err := ex.PlaceLimitOrder(ctx, buyer, acme, model.BID, 9_000, model.Units(1))
	require.NoError(t, err)
	require.NoError(t, ex.CancelOrder(ctx, buyer, cancelled))
	j.Close()

	sellerHist, err := j.HistoryOf(ctx, seller, 10)
	require.NoError(t, err)
	require.Len(t, sellerHist.Orders, 1)
	resting := sellerHist.Orders[0]
	assert.EqualValues(t, ask, resting.ID)
	assert.True(t, resting.IsActive)
	assert.Equal(t, model.Units(2).String(), resting.Remaining)
	require.Len(t, sellerHist.Trades, 1)

	buyerHist, err := j.HistoryOf(ctx, buyer, 10)
	require.NoError(t, err)
	require.Len(t, buyerHist.Orders, 2)
	byID := map[uint64]bool{}
	for _, o := range buyerHist.Orders {
		assert.False(t, o.IsActive)
		assert.NotNil(t, o.ClosedAt)
		byID[o.ID] = o.Cancelled
	}
	assert.False(t, byID[uint64(bid)])
	assert.True(t, byID[uint64(cancelled)])

	tr := buyerHist.Trades[0]
	assert.EqualValues(t, trades[0].ID, tr.ID)
	assert.EqualValues(t, bid, tr.OrderTakerID)
	assert.EqualValues(t, ask, tr.OrderMakerID)
	assert.Equal(t, model.Units(100).String(), tr.Notional)

	lastOrder, lastTrade, err := j.LastIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, cancelled, lastOrder)
	assert.EqualValues(t, 1, lastTrade)
}

func TestJournalDropsEventsAfterClose(t *testing.T) {
	ctx := context.Background()
	ex, j := newJournaledExchange(t)
	j.Close()

	_, _, err := ex.PlaceLimitOrder(ctx, seller, acme, model.ASK, 10_000, model.Units(1))
	require.NoError(t, err)

	hist, err := j.HistoryOf(ctx, seller, 10)
	require.NoError(t, err)
	assert.Empty(t, hist.Orders)
}

func TestRestartRestoresRestingOrders(t *testing.T) {
	ctx := context.Background()
	led := fundedLedger(t)
	db := repositorytest.NewDB(t)
	quote := model.AssetIDFor(model.CASH_TICKER)
	const custody model.AccountID = 0

	ex, j := startExchange(t, led, db)
	ask, _, err := ex.PlaceLimitOrder(ctx, seller, acme, model.ASK, 10_000, model.Units(3))
	require.NoError(t, err)
	_, trades, err := ex.PlaceLimitOrder(ctx, buyer, acme, model.BID, 10_000, model.Units(1))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	bid, _, err := ex.PlaceLimitOrder(ctx, buyer, acme, model.BID, 9_000, model.Units(1))
	require.NoError(t, err)
	j.Close()

	// same ledger and database, fresh process state
	ex, j = startExchange(t, led, db)
	defer j.Close()

	o, err := ex.GetOrder(ctx, ask)
	require.NoError(t, err)
	assert.True(t, o.IsActive())
	assert.Equal(t, model.Units(2).String(), o.GetRemainingQuantity().String())
	assert.Equal(t, bid+1, ex.NextOrderID())

	// restored ask still matches, trade ids continue
	_, trades, err = ex.PlaceLimitOrder(ctx, buyer, acme, model.BID, 10_000, model.Units(1))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.EqualValues(t, ask, trades[0].MakerID)
	assert.EqualValues(t, 2, trades[0].ID)

	require.NoError(t, ex.CancelOrder(ctx, seller, ask))
	require.NoError(t, ex.CancelOrder(ctx, buyer, bid))

	balance := func(asset model.AssetID, who model.AccountID) *big.Int {
		b, err := led.BalanceOf(ctx, asset, who)
		require.NoError(t, err)
		return b
	}
	assert.Zero(t, balance(acme, custody).Sign())
	assert.Zero(t, balance(quote, custody).Sign())
	assert.Equal(t, model.Units(8).String(), balance(acme, seller).String())
	assert.Equal(t, model.Units(1_200).String(), balance(quote, seller).String())
	assert.Equal(t, model.Units(12).String(), balance(acme, buyer).String())
	assert.Equal(t, model.Units(800).String(), balance(quote, buyer).String())
}

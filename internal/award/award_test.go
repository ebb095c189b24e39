package award

import (
	"context"
	"testing"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/internal/ledger"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dex    model.AccountID = 0
	admin  model.AccountID = 99
	alice  model.AccountID = 1
	bob    model.AccountID = 2
	carol  model.AccountID = 3
	reward model.AssetID   = "TGBP"
)

type fixture struct {
	now     time.Time
	ledger  *ledger.Memory
	tracker *Tracker
}

func newFixture() *fixture {
	f := &fixture{now: time.Unix(1_700_000_000, 0), ledger: ledger.NewMemory()}
	f.tracker = NewTracker(Opts{
		Ledger:      f.ledger,
		RewardAsset: reward,
		Admin:       admin,
		Dex:         dex,
		Now:         func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) nextEpoch() {
	f.now = f.now.Add(EpochDuration * time.Second)
}

func (f *fixture) balance(t *testing.T, who model.AccountID) string {
	b, err := f.ledger.BalanceOf(context.Background(), reward, who)
	require.NoError(t, err)
	return b.String()
}

func TestConstants(t *testing.T) {
	assert.Equal(t, 60, EpochDuration)
	assert.Equal(t, "100000000000000000000", RewardAmount.String())

	f := newFixture()
	assert.Equal(t, uint64(1_700_000_000/60), f.tracker.CurrentEpoch())
}

func TestQtyTieWinnersClaimIndependently(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	epoch := f.tracker.CurrentEpoch()

	require.NoError(t, f.tracker.RecordTradeQty(ctx, dex, alice, model.Units(1)))
	require.NoError(t, f.tracker.RecordTradeQty(ctx, dex, bob, model.Units(1)))
	assert.Equal(t, model.Units(1).String(), f.tracker.MaxQty(epoch).String())

	// not over yet
	assert.ErrorIs(t, f.tracker.ClaimAward(ctx, epoch, alice), ErrEpochNotEnded)

	f.nextEpoch()
	assert.True(t, f.tracker.IsWinner(epoch, alice))
	assert.True(t, f.tracker.IsWinner(epoch, bob))
	assert.False(t, f.tracker.IsWinner(epoch, carol))

	require.NoError(t, f.tracker.ClaimAward(ctx, epoch, alice))
	require.NoError(t, f.tracker.ClaimAward(ctx, epoch, bob))
	assert.Equal(t, RewardAmount.String(), f.balance(t, alice))
	assert.Equal(t, RewardAmount.String(), f.balance(t, bob))

	assert.ErrorIs(t, f.tracker.ClaimAward(ctx, epoch, alice), ErrAlreadyClaimed)
	assert.ErrorIs(t, f.tracker.ClaimAward(ctx, epoch, carol), ErrNotWinner)
	assert.Equal(t, RewardAmount.String(), f.balance(t, alice))
	assert.True(t, f.tracker.HasClaimed(epoch, bob))
}

func TestLowerQtyIsNotWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	epoch := f.tracker.CurrentEpoch()

	require.NoError(t, f.tracker.RecordTradeQty(ctx, dex, alice, model.Units(2)))
	require.NoError(t, f.tracker.RecordTradeQty(ctx, dex, bob, model.Units(1)))
	f.nextEpoch()

	assert.True(t, f.tracker.IsWinner(epoch, alice))
	assert.False(t, f.tracker.IsWinner(epoch, bob))
	assert.ErrorIs(t, f.tracker.ClaimAward(ctx, epoch, bob), ErrNotWinner)
}

func TestTopTraderFirstToReachWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	epoch := f.tracker.CurrentEpoch()

	require.NoError(t, f.tracker.RecordTrade(ctx, dex, alice, model.Units(5)))
	require.NoError(t, f.tracker.RecordTrade(ctx, dex, bob, model.Units(10)))
	top, _ := f.tracker.TopTrader(epoch)
	assert.Equal(t, bob, top)

	// alice ties at 10 and keeps second place
	require.NoError(t, f.tracker.RecordTrade(ctx, dex, alice, model.Units(5)))
	top, _ = f.tracker.TopTrader(epoch)
	assert.Equal(t, bob, top)

	require.NoError(t, f.tracker.RecordTrade(ctx, dex, alice, model.Units(1)))
	top, ok := f.tracker.TopTrader(epoch)
	require.True(t, ok)
	assert.Equal(t, alice, top)
	assert.Equal(t, model.Units(11).String(), f.tracker.VolumeOf(epoch, alice).String())
}

func TestFinalizeEpoch(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	epoch := f.tracker.CurrentEpoch()

	require.NoError(t, f.tracker.RecordTrade(ctx, dex, alice, model.Units(7)))
	assert.ErrorIs(t, f.tracker.FinalizeEpoch(ctx, epoch), ErrEpochNotEnded)

	f.nextEpoch()
	require.NoError(t, f.tracker.FinalizeEpoch(ctx, epoch))
	assert.True(t, f.tracker.IsFinalized(epoch))
	assert.Equal(t, RewardAmount.String(), f.balance(t, alice))

	assert.ErrorIs(t, f.tracker.FinalizeEpoch(ctx, epoch), ErrAlreadyFinalized)
	assert.Equal(t, RewardAmount.String(), f.balance(t, alice))
}

func TestFinalizeWithoutVolume(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	epoch := f.tracker.CurrentEpoch()
	f.nextEpoch()

	require.NoError(t, f.tracker.FinalizeEpoch(ctx, epoch))
	assert.True(t, f.tracker.IsFinalized(epoch))
	assert.Equal(t, "0", f.ledger.TotalSupply(reward).String())
	assert.ErrorIs(t, f.tracker.FinalizeEpoch(ctx, epoch), ErrAlreadyFinalized)
}

func TestFinalizeIdleEpochsKeepsNoBucket(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.nextEpoch()
	past := f.tracker.CurrentEpoch() - 1

	for epoch := past - 100; epoch <= past; epoch++ {
		require.NoError(t, f.tracker.FinalizeEpoch(ctx, epoch))
	}
	assert.Empty(t, f.tracker.epochs)
	assert.Len(t, f.tracker.idle, 101)

	assert.True(t, f.tracker.IsFinalized(past))
	assert.True(t, f.tracker.Summary(past).Finalized)
	assert.False(t, f.tracker.IsFinalized(past+1))
	assert.ErrorIs(t, f.tracker.FinalizeEpoch(ctx, past), ErrAlreadyFinalized)
	assert.ErrorIs(t, f.tracker.ClaimAward(ctx, past, alice), ErrNotWinner)
}

func TestOnlyDexReports(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	assert.ErrorIs(t, f.tracker.RecordTrade(ctx, alice, alice, model.Units(1)), ErrOnlyDex)
	assert.ErrorIs(t, f.tracker.RecordTradeQty(ctx, alice, alice, model.Units(1)), ErrOnlyDex)

	assert.ErrorIs(t, f.tracker.SetDex(alice, alice), ErrOnlyAdmin)
	require.NoError(t, f.tracker.SetDex(admin, 42))
	assert.Equal(t, model.AccountID(42), f.tracker.Dex())
	assert.ErrorIs(t, f.tracker.RecordTradeQty(ctx, dex, alice, model.Units(1)), ErrOnlyDex)
	assert.NoError(t, f.tracker.RecordTradeQty(ctx, 42, alice, model.Units(1)))
}

func TestReportsLandInCurrentEpoch(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	first := f.tracker.CurrentEpoch()
	require.NoError(t, f.tracker.RecordTradeQty(ctx, dex, alice, model.Units(1)))

	f.nextEpoch()
	require.NoError(t, f.tracker.RecordTradeQty(ctx, dex, alice, model.Units(3)))

	assert.Equal(t, model.Units(1).String(), f.tracker.QtyOf(first, alice).String())
	assert.Equal(t, model.Units(3).String(), f.tracker.QtyOf(first+1, alice).String())
}

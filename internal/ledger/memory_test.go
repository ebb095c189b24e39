package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryApplyIsAtomic(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	require.NoError(t, l.Mint(ctx, "TGBP", 1, model.Units(100)))
	require.NoError(t, l.Mint(ctx, "ACME", 2, model.Units(1)))

	err := l.Apply(ctx, []Transfer{
		{Asset: "TGBP", From: 1, To: 2, Amount: model.Units(50), Code: CodeSettleCash},
		{Asset: "ACME", From: 2, To: 1, Amount: model.Units(2), Code: CodeSettle},
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	bal, _ := l.BalanceOf(ctx, "TGBP", 1)
	assert.Equal(t, model.Units(100).String(), bal.String())
	bal, _ = l.BalanceOf(ctx, "TGBP", 2)
	assert.Equal(t, "0", bal.String())
}

func TestMemoryApplyChainsWithinBatch(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	require.NoError(t, l.Mint(ctx, "TGBP", 1, model.Units(10)))

	// 2 pays 3 out of what 1 paid it earlier in the same batch
	require.NoError(t, l.Apply(ctx, []Transfer{
		{Asset: "TGBP", From: 1, To: 2, Amount: model.Units(10)},
		{Asset: "TGBP", From: 2, To: 3, Amount: model.Units(10)},
		{Asset: "TGBP", From: 3, To: 3, Amount: model.Units(10)},
		{Asset: "TGBP", From: 3, To: 1, Amount: new(big.Int)},
	}))
	bal, _ := l.BalanceOf(ctx, "TGBP", 3)
	assert.Equal(t, model.Units(10).String(), bal.String())
	assert.Equal(t, l.TotalSupply("TGBP").String(), l.Sum("TGBP").String())
}

func TestMemoryRejectsBadAmounts(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	assert.ErrorIs(t, l.Mint(ctx, "TGBP", 1, big.NewInt(0)), ErrInvalidAmount)
	assert.ErrorIs(t, l.TransferCustody(ctx, "TGBP", 1, 2, big.NewInt(-1)), ErrInvalidAmount)
	assert.ErrorIs(t, l.TransferCustody(ctx, "TGBP", 1, 2, big.NewInt(1)), ErrInsufficientBalance)
}

func TestAccountIDIsStable(t *testing.T) {
	a := AccountID(20, 7)
	assert.Equal(t, a, AccountID(20, 7))
	assert.NotEqual(t, a, AccountID(30, 7))
	assert.NotEqual(t, a, AccountID(20, 8))
}

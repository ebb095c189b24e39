// Package ledger holds the balances the exchange moves custody on. Every
// asset, the quote currency included, is a separate balance sheet keyed by
// account.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrUnknownAsset        = errors.New("asset has no ledger")
)

// Issuer is the system account that mints are drawn from. It is never a
// trader.
const Issuer model.AccountID = -1

// TransferCode tags why custody moved.
type TransferCode uint16

const (
	CodeEscrow     TransferCode = 1001
	CodeRefund     TransferCode = 2001
	CodeSettleCash TransferCode = 3001
	CodeSettle     TransferCode = 3002
	CodeMint       TransferCode = 1005
)

type Transfer struct {
	Asset  model.AssetID
	From   model.AccountID
	To     model.AccountID
	Amount *big.Int
	Code   TransferCode
}

func (t Transfer) String() string {
	return fmt.Sprintf("%s %d->%d %s (code %d)", t.Asset, t.From, t.To, t.Amount, t.Code)
}

// AssetLedger is the custody backend. Apply is all-or-nothing: if any
// transfer in the batch fails, no balance changes.
type AssetLedger interface {
	Apply(ctx context.Context, transfers []Transfer) error
	TransferCustody(ctx context.Context, asset model.AssetID, from, to model.AccountID, amount *big.Int) error
	Mint(ctx context.Context, asset model.AssetID, to model.AccountID, amount *big.Int) error
	BalanceOf(ctx context.Context, asset model.AssetID, account model.AccountID) (*big.Int, error)
	OpenAccounts(ctx context.Context, account model.AccountID, assets []model.AssetID) error
}

// compact drops zero-amount transfers and rejects negative ones.
func compact(transfers []Transfer) ([]Transfer, error) {
	out := make([]Transfer, 0, len(transfers))
	for _, t := range transfers {
		if t.Amount == nil || t.Amount.Sign() < 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, t)
		}
		if t.Amount.Sign() == 0 || t.From == t.To {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

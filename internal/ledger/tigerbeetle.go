package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/util"
	tb "github.com/tigerbeetle/tigerbeetle-go"
	tbtypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

const (
	accountCodeTrader uint16 = 1
	accountCodeIssuer uint16 = 2
)

// TigerBeetle keeps balances in a TigerBeetle cluster, one TigerBeetle
// ledger per asset. Account ids are derived from (ledger, account) so no
// mapping table is needed to find them again.
type TigerBeetle struct {
	client tb.Client
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	ledgers map[model.AssetID]uint32
	opened  map[tbtypes.Uint128]struct{}
}

func NewTigerBeetle(client tb.Client, logger *zap.SugaredLogger) *TigerBeetle {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &TigerBeetle{
		client:  client,
		logger:  logger,
		ledgers: make(map[model.AssetID]uint32),
		opened:  make(map[tbtypes.Uint128]struct{}),
	}
}

// RegisterAsset binds an asset to its TigerBeetle ledger number.
func (t *TigerBeetle) RegisterAsset(asset model.AssetID, ledgerID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ledgers[asset] = ledgerID
}

func (t *TigerBeetle) ledgerOf(asset model.AssetID) (uint32, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.ledgers[asset]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	return id, nil
}

// AccountID derives the TigerBeetle id of account on ledgerID.
func AccountID(ledgerID uint32, account model.AccountID) tbtypes.Uint128 {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[:4], ledgerID)
	binary.BigEndian.PutUint64(buf[4:], uint64(account))
	sum := blake3.Sum256(buf[:])
	var id [16]byte
	copy(id[:], sum[:16])
	return tbtypes.BytesToUint128(id)
}

func (t *TigerBeetle) newAccount(ledgerID uint32, account model.AccountID) tbtypes.Account {
	acc := tbtypes.Account{
		ID:         AccountID(ledgerID, account),
		Ledger:     ledgerID,
		Code:       accountCodeTrader,
		UserData64: uint64(account),
	}
	if account == Issuer {
		acc.Code = accountCodeIssuer
		acc.Flags = tbtypes.AccountFlags{History: true}.ToUint16()
	} else {
		acc.Flags = tbtypes.AccountFlags{DebitsMustNotExceedCredits: true, History: true}.ToUint16()
	}
	return acc
}

// ensureAccounts creates whatever accounts have not been seen yet. An
// account that already exists in the cluster is fine.
func (t *TigerBeetle) ensureAccounts(accounts []tbtypes.Account) error {
	t.mu.RLock()
	missing := make([]tbtypes.Account, 0, len(accounts))
	seen := make(map[tbtypes.Uint128]struct{})
	for _, a := range accounts {
		if _, ok := t.opened[a.ID]; ok {
			continue
		}
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		missing = append(missing, a)
	}
	t.mu.RUnlock()
	if len(missing) == 0 {
		return nil
	}

	results, err := t.client.CreateAccounts(missing)
	if err != nil {
		return fmt.Errorf("creating accounts: %w", err)
	}
	for _, r := range results {
		if r.Result != tbtypes.AccountExists {
			return fmt.Errorf("creating account %d: %v", r.Index, r.Result)
		}
	}

	t.mu.Lock()
	for _, a := range missing {
		t.opened[a.ID] = struct{}{}
	}
	t.mu.Unlock()
	return nil
}

func (t *TigerBeetle) OpenAccounts(ctx context.Context, account model.AccountID, assets []model.AssetID) error {
	accounts := make([]tbtypes.Account, 0, len(assets))
	for _, asset := range assets {
		ledgerID, err := t.ledgerOf(asset)
		if err != nil {
			return err
		}
		accounts = append(accounts, t.newAccount(ledgerID, account))
	}
	return t.ensureAccounts(accounts)
}

// Apply submits the batch as one linked chain, so TigerBeetle commits all
// of it or none of it.
func (t *TigerBeetle) Apply(ctx context.Context, transfers []Transfer) error {
	batch, err := compact(transfers)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	accounts := make([]tbtypes.Account, 0, 2*len(batch))
	tbTransfers := make([]tbtypes.Transfer, 0, len(batch))
	for i, tr := range batch {
		ledgerID, err := t.ledgerOf(tr.Asset)
		if err != nil {
			return err
		}
		amount, err := util.BigToUint128(tr.Amount)
		if err != nil {
			return fmt.Errorf("transfer %s: %w", tr, err)
		}
		accounts = append(accounts, t.newAccount(ledgerID, tr.From), t.newAccount(ledgerID, tr.To))
		tbTransfers = append(tbTransfers, tbtypes.Transfer{
			ID:              tbtypes.ID(),
			DebitAccountID:  AccountID(ledgerID, tr.From),
			CreditAccountID: AccountID(ledgerID, tr.To),
			Amount:          amount,
			Ledger:          ledgerID,
			Code:            uint16(tr.Code),
			Flags:           tbtypes.TransferFlags{Linked: i < len(batch)-1}.ToUint16(),
		})
	}
	if err := t.ensureAccounts(accounts); err != nil {
		return err
	}

	results, err := t.client.CreateTransfers(tbTransfers)
	if err != nil {
		return fmt.Errorf("creating transfers: %w", err)
	}
	if len(results) == 0 {
		return nil
	}
	for _, r := range results {
		if r.Result == tbtypes.TransferLinkedEventFailed {
			continue
		}
		tr := batch[r.Index]
		t.logger.Warnw("transfer rejected", "transfer", tr.String(), "result", fmt.Sprint(r.Result))
		if r.Result == tbtypes.TransferExceedsCredits {
			return fmt.Errorf("transfer %d (%s): %w", r.Index, tr, ErrInsufficientBalance)
		}
		return fmt.Errorf("transfer %d (%s): %v", r.Index, tr, r.Result)
	}
	return fmt.Errorf("transfer batch rejected: %+v", results)
}

func (t *TigerBeetle) TransferCustody(ctx context.Context, asset model.AssetID, from, to model.AccountID, amount *big.Int) error {
	return t.Apply(ctx, []Transfer{{Asset: asset, From: from, To: to, Amount: amount, Code: CodeSettle}})
}

// Mint credits to, drawing on the asset's issuer account.
func (t *TigerBeetle) Mint(ctx context.Context, asset model.AssetID, to model.AccountID, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return t.Apply(ctx, []Transfer{{Asset: asset, From: Issuer, To: to, Amount: amount, Code: CodeMint}})
}

func (t *TigerBeetle) BalanceOf(ctx context.Context, asset model.AssetID, account model.AccountID) (*big.Int, error) {
	ledgerID, err := t.ledgerOf(asset)
	if err != nil {
		return nil, err
	}
	found, err := t.client.LookupAccounts([]tbtypes.Uint128{AccountID(ledgerID, account)})
	if err != nil {
		return nil, fmt.Errorf("looking up account: %w", err)
	}
	if len(found) == 0 {
		return new(big.Int), nil
	}
	credits := found[0].CreditsPosted.BigInt()
	debits := found[0].DebitsPosted.BigInt()
	return new(big.Int).Sub(&credits, &debits), nil
}

package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
)

type balanceKey struct {
	asset   model.AssetID
	account model.AccountID
}

// Memory is an in-process AssetLedger. Any asset is accepted; balances
// start at zero.
type Memory struct {
	mu       sync.RWMutex
	balances map[balanceKey]*big.Int
	supply   map[model.AssetID]*big.Int
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[balanceKey]*big.Int),
		supply:   make(map[model.AssetID]*big.Int),
	}
}

func (m *Memory) get(k balanceKey) *big.Int {
	if b, ok := m.balances[k]; ok {
		return b
	}
	return new(big.Int)
}

func (m *Memory) Apply(ctx context.Context, transfers []Transfer) error {
	batch, err := compact(transfers)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Run the batch on scratch balances first so a failure midway leaves
	// nothing behind.
	scratch := make(map[balanceKey]*big.Int)
	read := func(k balanceKey) *big.Int {
		if b, ok := scratch[k]; ok {
			return b
		}
		b := new(big.Int).Set(m.get(k))
		scratch[k] = b
		return b
	}
	for i, t := range batch {
		from := read(balanceKey{t.Asset, t.From})
		if from.Cmp(t.Amount) < 0 {
			return fmt.Errorf("transfer %d (%s): %w: have %s", i, t, ErrInsufficientBalance, from)
		}
		from.Sub(from, t.Amount)
		to := read(balanceKey{t.Asset, t.To})
		to.Add(to, t.Amount)
	}
	for k, v := range scratch {
		m.balances[k] = v
	}
	return nil
}

func (m *Memory) TransferCustody(ctx context.Context, asset model.AssetID, from, to model.AccountID, amount *big.Int) error {
	return m.Apply(ctx, []Transfer{{Asset: asset, From: from, To: to, Amount: amount, Code: CodeSettle}})
}

func (m *Memory) Mint(ctx context.Context, asset model.AssetID, to model.AccountID, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := balanceKey{asset, to}
	m.balances[k] = new(big.Int).Add(m.get(k), amount)
	s, ok := m.supply[asset]
	if !ok {
		s = new(big.Int)
		m.supply[asset] = s
	}
	s.Add(s, amount)
	return nil
}

func (m *Memory) BalanceOf(ctx context.Context, asset model.AssetID, account model.AccountID) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.get(balanceKey{asset, account})), nil
}

func (m *Memory) OpenAccounts(ctx context.Context, account model.AccountID, assets []model.AssetID) error {
	return nil
}

// TotalSupply is everything ever minted of asset.
func (m *Memory) TotalSupply(asset model.AssetID) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.supply[asset]; ok {
		return new(big.Int).Set(s)
	}
	return new(big.Int)
}

// Sum adds up every balance of asset. With no mint in between, it is
// constant.
func (m *Memory) Sum(asset model.AssetID) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := new(big.Int)
	for k, v := range m.balances {
		if k.asset == asset {
			total.Add(total, v)
		}
	}
	return total
}

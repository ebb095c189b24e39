// Package registry maps listed symbols to the assets traded under them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	ledgerRepository "github.com/TiggieF/tokenised-lse-sub000/internal/repository/ledger"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"github.com/jmoiron/sqlx"
)

var (
	ErrAlreadyListed = errors.New("symbol already listed")
	ErrAssetInUse    = errors.New("asset already listed under another symbol")
)

type Registry interface {
	ResolveAsset(symbol string) (model.AssetID, bool)
	SymbolOf(asset model.AssetID) (string, bool)
	IsListed(asset model.AssetID) bool
}

type Listing struct {
	Symbol   string        `json:"symbol"`
	Name     string        `json:"name"`
	Asset    model.AssetID `json:"asset"`
	LedgerID uint32        `json:"ledgerId"`
}

type Memory struct {
	mu       sync.RWMutex
	bySymbol map[string]Listing
	byAsset  map[model.AssetID]string
}

func NewMemory() *Memory {
	return &Memory{
		bySymbol: make(map[string]Listing),
		byAsset:  make(map[model.AssetID]string),
	}
}

func (m *Memory) Register(l Listing) error {
	if !model.ValidSymbol(l.Symbol) {
		return fmt.Errorf("%w: %q", model.ErrInvalidSymbol, l.Symbol)
	}
	if l.Asset == "" {
		l.Asset = model.AssetIDFor(l.Symbol)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bySymbol[l.Symbol]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyListed, l.Symbol)
	}
	if other, ok := m.byAsset[l.Asset]; ok {
		return fmt.Errorf("%w: %s", ErrAssetInUse, other)
	}
	m.bySymbol[l.Symbol] = l
	m.byAsset[l.Asset] = l.Symbol
	return nil
}

func (m *Memory) ResolveAsset(symbol string) (model.AssetID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.bySymbol[symbol]
	return l.Asset, ok
}

func (m *Memory) SymbolOf(asset model.AssetID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byAsset[asset]
	return s, ok
}

func (m *Memory) IsListed(asset model.AssetID) bool {
	_, ok := m.SymbolOf(asset)
	return ok
}

// GetListing returns the full listing for symbol; ok is false when the
// symbol is unknown.
func (m *Memory) GetListing(symbol string) (Listing, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.bySymbol[symbol]
	return l, ok
}

// Listings returns every listing ordered by symbol.
func (m *Memory) Listings() []Listing {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Listing, 0, len(m.bySymbol))
	for _, l := range m.bySymbol {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Load registers every row of the ticker table except the quote currency,
// which is settled against but never listed.
func Load(ctx context.Context, db *sqlx.DB, repo ledgerRepository.LedgerRepository) (*Memory, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := repo.ListLedgers(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("listing tickers: %w", err)
	}
	m := NewMemory()
	for _, row := range rows {
		if row.Ticker == model.CASH_TICKER {
			continue
		}
		err := m.Register(Listing{
			Symbol:   row.Ticker,
			Name:     row.Name,
			Asset:    row.AssetID,
			LedgerID: uint32(row.TBLedgerID),
		})
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Package pricefeed stores reference prices per symbol and reports whether
// they are recent enough to trade against.
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
)

const DefaultFreshnessWindow = 60 * time.Second

var (
	ErrNoPrice       = errors.New("no price for symbol")
	ErrInvalidPrice  = errors.New("price must be > 0")
	ErrInvalidWindow = errors.New("freshness window must be > 0")
)

type Oracle interface {
	GetPrice(ctx context.Context, symbol string) (model.Price, time.Time, error)
	IsFresh(ctx context.Context, symbol string) (bool, error)
}

func validate(symbol string, price model.Price) error {
	if !model.ValidSymbol(symbol) {
		return fmt.Errorf("%w: %q", model.ErrInvalidSymbol, symbol)
	}
	if price == 0 {
		return ErrInvalidPrice
	}
	return nil
}

func fresh(now, updatedAt time.Time, window time.Duration) bool {
	return now.Sub(updatedAt) <= window
}

type entry struct {
	price     model.Price
	updatedAt time.Time
}

// Memory is an in-process Oracle.
type Memory struct {
	mu     sync.RWMutex
	prices map[string]entry
	window time.Duration
	now    func() time.Time
}

func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		prices: make(map[string]entry),
		window: DefaultFreshnessWindow,
		now:    now,
	}
}

func (m *Memory) SetPrice(ctx context.Context, symbol string, price model.Price) error {
	if err := validate(symbol, price); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = entry{price: price, updatedAt: m.now()}
	return nil
}

func (m *Memory) SetFreshnessWindow(window time.Duration) error {
	if window <= 0 {
		return ErrInvalidWindow
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = window
	return nil
}

func (m *Memory) FreshnessWindow() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.window
}

func (m *Memory) GetPrice(ctx context.Context, symbol string) (model.Price, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.prices[symbol]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
	}
	return e.price, e.updatedAt, nil
}

func (m *Memory) IsFresh(ctx context.Context, symbol string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.prices[symbol]
	if !ok {
		return false, nil
	}
	return fresh(m.now(), e.updatedAt, m.window), nil
}

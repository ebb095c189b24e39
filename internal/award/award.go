// Package award scores traders per fixed-length epoch and pays out the
// trading reward. Two payout paths exist: FinalizeEpoch pushes one reward to
// the top trader by notional volume, ClaimAward lets every trader tied on the
// highest traded quantity pull one reward each.
package award

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/internal/ledger"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"go.uber.org/zap"
)

// EpochDuration is the length of an epoch in seconds.
const EpochDuration = 60

// RewardAmount is 100 whole quote units.
var RewardAmount = model.Units(100)

var (
	ErrOnlyDex          = errors.New("award: only dex")
	ErrOnlyAdmin        = errors.New("award: only admin")
	ErrNotWinner        = errors.New("award: not winner")
	ErrAlreadyClaimed   = errors.New("award: already claimed")
	ErrAlreadyFinalized = errors.New("award: already finalised")
	ErrEpochNotEnded    = errors.New("award: epoch not ended")
	ErrInvalidAmount    = errors.New("award: amount must not be negative")
)

type epoch struct {
	qty       map[model.AccountID]*big.Int
	maxQty    *big.Int
	volume    map[model.AccountID]*big.Int
	topTrader model.AccountID
	topVolume *big.Int
	hasTop    bool
	finalized bool
	claimed   map[model.AccountID]bool
}

func newEpoch() *epoch {
	return &epoch{
		qty:       make(map[model.AccountID]*big.Int),
		maxQty:    new(big.Int),
		volume:    make(map[model.AccountID]*big.Int),
		topVolume: new(big.Int),
		claimed:   make(map[model.AccountID]bool),
	}
}

func add(m map[model.AccountID]*big.Int, trader model.AccountID, v *big.Int) *big.Int {
	total, ok := m[trader]
	if !ok {
		total = new(big.Int)
		m[trader] = total
	}
	return total.Add(total, v)
}

type Opts struct {
	Ledger      ledger.AssetLedger
	RewardAsset model.AssetID
	Admin       model.AccountID
	Dex         model.AccountID
	Now         func() time.Time
	Logger      *zap.SugaredLogger
}

type Tracker struct {
	mu     sync.RWMutex
	epochs map[uint64]*epoch
	// epochs finalised without any activity; they get no bucket
	idle  map[uint64]struct{}
	admin model.AccountID
	dex   model.AccountID

	ledger      ledger.AssetLedger
	rewardAsset model.AssetID
	now         func() time.Time
	logger      *zap.SugaredLogger
}

func NewTracker(opts Opts) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Tracker{
		epochs:      make(map[uint64]*epoch),
		idle:        make(map[uint64]struct{}),
		admin:       opts.Admin,
		dex:         opts.Dex,
		ledger:      opts.Ledger,
		rewardAsset: opts.RewardAsset,
		now:         opts.Now,
		logger:      opts.Logger,
	}
}

func (t *Tracker) CurrentEpoch() uint64 {
	return uint64(t.now().Unix()) / EpochDuration
}

// SetDex changes the only account allowed to report trades.
func (t *Tracker) SetDex(caller, dex model.AccountID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.admin {
		return ErrOnlyAdmin
	}
	t.dex = dex
	t.logger.Infow("award reporter changed", "dex", dex)
	return nil
}

func (t *Tracker) Dex() model.AccountID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dex
}

// current returns the live epoch bucket, creating it on first use.
func (t *Tracker) current() (uint64, *epoch) {
	id := t.CurrentEpoch()
	e, ok := t.epochs[id]
	if !ok {
		e = newEpoch()
		t.epochs[id] = e
	}
	return id, e
}

func (t *Tracker) checkReport(caller model.AccountID, amount *big.Int) error {
	if caller != t.dex {
		return ErrOnlyDex
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// RecordTrade adds notional volume for trader. The top trader only changes
// when someone strictly exceeds the current top volume.
func (t *Tracker) RecordTrade(ctx context.Context, caller, trader model.AccountID, notional *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkReport(caller, notional); err != nil {
		return err
	}
	_, e := t.current()
	total := add(e.volume, trader, notional)
	if total.Cmp(e.topVolume) > 0 {
		e.topVolume.Set(total)
		e.topTrader = trader
		e.hasTop = true
	}
	return nil
}

// RecordTradeQty adds traded quantity for trader. Everyone sitting on the
// maximum is a winner.
func (t *Tracker) RecordTradeQty(ctx context.Context, caller, trader model.AccountID, qty *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkReport(caller, qty); err != nil {
		return err
	}
	_, e := t.current()
	total := add(e.qty, trader, qty)
	if total.Cmp(e.maxQty) > 0 {
		e.maxQty.Set(total)
	}
	return nil
}

func (t *Tracker) isWinner(e *epoch, trader model.AccountID) bool {
	if e == nil || e.maxQty.Sign() == 0 {
		return false
	}
	q, ok := e.qty[trader]
	return ok && q.Cmp(e.maxQty) == 0
}

func (t *Tracker) IsWinner(epochID uint64, trader model.AccountID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isWinner(t.epochs[epochID], trader)
}

// ClaimAward pays RewardAmount to a quantity winner of an ended epoch, once.
func (t *Tracker) ClaimAward(ctx context.Context, epochID uint64, trader model.AccountID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if epochID >= t.CurrentEpoch() {
		return ErrEpochNotEnded
	}
	e := t.epochs[epochID]
	if !t.isWinner(e, trader) {
		return ErrNotWinner
	}
	if e.claimed[trader] {
		return ErrAlreadyClaimed
	}
	if err := t.ledger.Mint(ctx, t.rewardAsset, trader, RewardAmount); err != nil {
		return fmt.Errorf("minting award: %w", err)
	}
	e.claimed[trader] = true
	t.logger.Infow("award claimed", "epoch", epochID, "trader", trader)
	return nil
}

// FinalizeEpoch closes an ended epoch and pays the top trader by volume, if
// there was any volume at all.
func (t *Tracker) FinalizeEpoch(ctx context.Context, epochID uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if epochID >= t.CurrentEpoch() {
		return ErrEpochNotEnded
	}
	e, ok := t.epochs[epochID]
	if !ok {
		if _, done := t.idle[epochID]; done {
			return ErrAlreadyFinalized
		}
		t.idle[epochID] = struct{}{}
		t.logger.Infow("epoch finalized without activity", "epoch", epochID)
		return nil
	}
	if e.finalized {
		return ErrAlreadyFinalized
	}
	if e.hasTop {
		if err := t.ledger.Mint(ctx, t.rewardAsset, e.topTrader, RewardAmount); err != nil {
			return fmt.Errorf("minting award: %w", err)
		}
		t.logger.Infow("epoch finalized", "epoch", epochID, "topTrader", e.topTrader, "volume", model.FormatUnits(e.topVolume))
	} else {
		t.logger.Infow("epoch finalized without volume", "epoch", epochID)
	}
	e.finalized = true
	return nil
}

// TopTrader is the volume leader of the epoch; ok is false if nobody traded.
func (t *Tracker) TopTrader(epochID uint64) (model.AccountID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.epochs[epochID]
	if !ok || !e.hasTop {
		return 0, false
	}
	return e.topTrader, true
}

func lookup(m map[model.AccountID]*big.Int, trader model.AccountID) *big.Int {
	if v, ok := m[trader]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (t *Tracker) VolumeOf(epochID uint64, trader model.AccountID) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.epochs[epochID]; ok {
		return lookup(e.volume, trader)
	}
	return new(big.Int)
}

func (t *Tracker) QtyOf(epochID uint64, trader model.AccountID) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.epochs[epochID]; ok {
		return lookup(e.qty, trader)
	}
	return new(big.Int)
}

func (t *Tracker) MaxQty(epochID uint64) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.epochs[epochID]; ok {
		return new(big.Int).Set(e.maxQty)
	}
	return new(big.Int)
}

func (t *Tracker) HasClaimed(epochID uint64, trader model.AccountID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.epochs[epochID]
	return ok && e.claimed[trader]
}

func (t *Tracker) IsFinalized(epochID uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.idle[epochID]; ok {
		return true
	}
	e, ok := t.epochs[epochID]
	return ok && e.finalized
}

// EpochView is the public summary of one epoch.
type EpochView struct {
	Epoch     uint64          `json:"epoch"`
	TopTrader model.AccountID `json:"topTrader"`
	HasTop    bool            `json:"hasTop"`
	TopVolume string          `json:"topVolume"`
	MaxQty    string          `json:"maxQty"`
	Finalized bool            `json:"finalized"`
}

func (t *Tracker) Summary(epochID uint64) EpochView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v := EpochView{Epoch: epochID, TopVolume: "0", MaxQty: "0"}
	if e, ok := t.epochs[epochID]; ok {
		v.TopTrader = e.topTrader
		v.HasTop = e.hasTop
		v.TopVolume = model.FormatUnits(e.topVolume)
		v.MaxQty = model.FormatUnits(e.maxQty)
		v.Finalized = e.finalized
	} else if _, ok := t.idle[epochID]; ok {
		v.Finalized = true
	}
	return v
}

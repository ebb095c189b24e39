// Package journal persists exchange activity. It subscribes to the order and
// trade feeds and writes them to the orders and trades tables from a single
// worker, so rows land in the order the exchange emitted them.
package journal

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/internal/repository/order"
	ucorder "github.com/TiggieF/tokenised-lse-sub000/internal/usecase/order"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const defaultBuffer = 4096

var ErrClosed = errors.New("journal: closed")

type entry struct {
	order *model.OrderEvent
	trade *model.Trade
}

type Opts struct {
	DB     *sqlx.DB
	Repo   order.OrderRepository
	Logger *zap.SugaredLogger
	Buffer int
	Now    func() time.Time
}

type Journal struct {
	db     *sqlx.DB
	repo   order.OrderRepository
	logger *zap.SugaredLogger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan entry
	done   chan struct{}
}

func New(opts Opts) *Journal {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Repo == nil {
		opts.Repo = order.NewOrderRepository(opts.DB)
	}
	return &Journal{
		db:     opts.DB,
		repo:   opts.Repo,
		logger: opts.Logger,
		now:    opts.Now,
		queue:  make(chan entry, opts.Buffer),
		done:   make(chan struct{}),
	}
}

// Attach subscribes the journal to an exchange's order and trade feeds.
func (j *Journal) Attach(ex ucorder.OrderUseCase) {
	ex.RegisterOrderHandler(j.OnOrder)
	ex.RegisterTradeHandler(j.OnTrade)
}

// LastIDs returns the highest persisted order and trade ids, for seeding a
// restarted exchange.
func (j *Journal) LastIDs(ctx context.Context) (model.OrderId, uint64, error) {
	tx, err := j.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()
	orderID, tradeID, err := j.repo.LastIDs(ctx, tx)
	return model.OrderId(orderID), tradeID, err
}

// RestingOrders reads back every order that was still on a book when the
// journal last wrote, oldest first.
func (j *Journal) RestingOrders(ctx context.Context) ([]model.Order, error) {
	tx, err := j.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := j.repo.ListActiveOrders(ctx, tx)
	if err != nil {
		return nil, err
	}
	orders := make([]model.Order, 0, len(rows))
	for _, r := range rows {
		o, err := orderFromRecord(r)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func orderFromRecord(r order.OrderRecord) (model.Order, error) {
	initial, ok := new(big.Int).SetString(r.Quantity, 10)
	if !ok {
		return model.Order{}, fmt.Errorf("order %d: bad quantity %q", r.ID, r.Quantity)
	}
	remaining, ok := new(big.Int).SetString(r.Remaining, 10)
	if !ok {
		return model.Order{}, fmt.Errorf("order %d: bad remaining %q", r.ID, r.Remaining)
	}
	return model.RestoreOrder(
		model.OrderId(r.ID), model.AccountID(r.UserID), model.AssetID(r.AssetID),
		model.Side(r.Side), model.Price(r.Price), initial, remaining,
		model.OrderType(r.Type), time.UnixMilli(r.CreatedAt),
	), nil
}

func (j *Journal) OnOrder(ev model.OrderEvent) {
	j.enqueue(entry{order: &ev})
}

func (j *Journal) OnTrade(tr model.Trade) {
	j.enqueue(entry{trade: &tr})
}

// enqueue blocks when the buffer is full rather than lose a row.
func (j *Journal) enqueue(e entry) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.logger.Warnw("event after journal closed", "error", ErrClosed)
		return
	}
	j.queue <- e
}

// Run drains the queue until Close is called. Call as: go j.Run(ctx).
func (j *Journal) Run(ctx context.Context) {
	defer close(j.done)
	j.logger.Info("trade journal started")
	for e := range j.queue {
		if err := j.write(ctx, e); err != nil {
			j.logger.Errorw("journal write failed", "error", err)
		}
	}
	j.logger.Info("trade journal stopped")
}

// Close stops accepting events and waits for the queue to drain.
func (j *Journal) Close() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()
	<-j.done
}

func (j *Journal) write(ctx context.Context, e entry) error {
	tx, err := j.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	switch {
	case e.order != nil:
		err = j.writeOrder(ctx, tx, *e.order)
	case e.trade != nil:
		err = j.repo.CreateTrade(ctx, tx, tradeRecord(e.trade))
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (j *Journal) writeOrder(ctx context.Context, tx *sqlx.Tx, ev model.OrderEvent) error {
	o := ev.Order
	remaining := o.GetRemainingQuantity().String()
	switch ev.Type {
	case model.ORDER_PLACED:
		rec := orderRecord(&o)
		if !o.IsActive() {
			closed := j.now().UnixMilli()
			rec.ClosedAt = &closed
		}
		return j.repo.CreateOrder(ctx, tx, rec)
	case model.ORDER_PARTIALLY_FILLED:
		return j.repo.UpdateRemaining(ctx, tx, uint64(o.GetId()), remaining)
	case model.ORDER_FILLED:
		return j.repo.CloseOrder(ctx, tx, uint64(o.GetId()), remaining, j.now(), false)
	case model.ORDER_CANCELLED:
		return j.repo.CloseOrder(ctx, tx, uint64(o.GetId()), remaining, j.now(), true)
	}
	return nil
}

func orderRecord(o *model.Order) order.OrderRecord {
	return order.OrderRecord{
		ID:        uint64(o.GetId()),
		UserID:    int64(o.GetTrader()),
		AssetID:   string(o.GetAsset()),
		Side:      int8(o.GetSide()),
		Type:      uint8(o.GetType()),
		Quantity:  o.GetInitialQuantity().String(),
		Remaining: o.GetRemainingQuantity().String(),
		Price:     uint64(o.GetPrice()),
		IsActive:  o.IsActive(),
		CreatedAt: o.GetCreatedAt().UnixMilli(),
	}
}

func tradeRecord(t *model.Trade) order.TradeRecord {
	return order.TradeRecord{
		ID:           t.ID,
		AssetID:      string(t.Asset),
		OrderTakerID: uint64(t.TakerID),
		OrderMakerID: uint64(t.MakerID),
		TakerID:      int64(t.Taker),
		MakerID:      int64(t.Maker),
		Side:         int8(t.Side),
		Quantity:     t.Quantity.String(),
		Price:        uint64(t.Price),
		Notional:     t.Notional.String(),
		TradedAt:     t.Timestamp.UnixMilli(),
	}
}

// History reads a trader's orders and trades back out of the journal.
type History struct {
	Orders []order.OrderRecord `json:"orders"`
	Trades []order.TradeRecord `json:"trades"`
}

func (j *Journal) HistoryOf(ctx context.Context, trader model.AccountID, limit int) (*History, error) {
	if limit <= 0 {
		limit = 100
	}
	tx, err := j.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	orders, err := j.repo.ListOrdersByUser(ctx, tx, int64(trader), false)
	if err != nil {
		return nil, err
	}
	trades, err := j.repo.ListTradesByUser(ctx, tx, int64(trader), limit)
	if err != nil {
		return nil, err
	}
	return &History{Orders: orders, Trades: trades}, nil
}

package order

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// --- Models corresponding to DB tables ---
// Quantities are decimal strings of base units.
type OrderRecord struct {
	ID        uint64 `db:"id" json:"id"`
	UserID    int64  `db:"user_id" json:"userId"`
	AssetID   string `db:"asset_id" json:"assetId"`
	Side      int8   `db:"side" json:"side"` // 0 = BID, 1 = ASK
	Type      uint8  `db:"type" json:"type"` // 0 = GTC limit, 1 = market budget
	Quantity  string `db:"quantity" json:"quantity"`
	Remaining string `db:"remaining" json:"remaining"`
	Price     uint64 `db:"price" json:"price"`
	IsActive  bool   `db:"is_active" json:"isActive"`
	Cancelled bool   `db:"cancelled" json:"cancelled"`
	CreatedAt int64  `db:"created_at" json:"createdAt"` // unix ms
	ClosedAt  *int64 `db:"closed_at" json:"closedAt"`
}

type TradeRecord struct {
	ID           uint64 `db:"id" json:"id"`
	AssetID      string `db:"asset_id" json:"assetId"`
	OrderTakerID uint64 `db:"order_taker_id" json:"orderTakerId"`
	OrderMakerID uint64 `db:"order_maker_id" json:"orderMakerId"`
	TakerID      int64  `db:"taker_id" json:"takerId"`
	MakerID      int64  `db:"maker_id" json:"makerId"`
	Side         int8   `db:"side" json:"side"`
	Quantity     string `db:"quantity" json:"quantity"`
	Price        uint64 `db:"price" json:"price"`
	Notional     string `db:"notional" json:"notional"`
	TradedAt     int64  `db:"traded_at" json:"tradedAt"`
}

// --- Repository Interface ---
type OrderRepository interface {
	CreateOrder(ctx context.Context, tx *sqlx.Tx, order OrderRecord) error
	UpdateRemaining(ctx context.Context, tx *sqlx.Tx, orderID uint64, remaining string) error
	CloseOrder(ctx context.Context, tx *sqlx.Tx, orderID uint64, remaining string, closedAt time.Time, cancelled bool) error
	GetOrderByID(ctx context.Context, tx *sqlx.Tx, orderID uint64) (*OrderRecord, error)
	ListOrdersByUser(ctx context.Context, tx *sqlx.Tx, userID int64, onlyActive bool) ([]OrderRecord, error)
	ListActiveOrders(ctx context.Context, tx *sqlx.Tx) ([]OrderRecord, error)
	CreateTrade(ctx context.Context, tx *sqlx.Tx, trade TradeRecord) error
	ListTradesByAsset(ctx context.Context, tx *sqlx.Tx, assetID string, limit int) ([]TradeRecord, error)
	ListTradesByUser(ctx context.Context, tx *sqlx.Tx, userID int64, limit int) ([]TradeRecord, error)
	LastIDs(ctx context.Context, tx *sqlx.Tx) (orderID uint64, tradeID uint64, err error)
}

// --- Implementation ---
type orderRepositoryImpl struct{}

func NewOrderRepository(db *sqlx.DB) OrderRepository {
	return &orderRepositoryImpl{}
}

const orderColumns = `id, user_id, asset_id, side, type, quantity, remaining, price, is_active, cancelled, created_at, closed_at`

const tradeColumns = `id, asset_id, order_taker_id, order_maker_id, taker_id, maker_id, side, quantity, price, notional, traded_at`

func (r *orderRepositoryImpl) CreateOrder(ctx context.Context, tx *sqlx.Tx, order OrderRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		order.ID, order.UserID, order.AssetID, order.Side, order.Type, order.Quantity, order.Remaining,
		order.Price, order.IsActive, order.Cancelled, order.CreatedAt, order.ClosedAt)
	return err
}

func (r *orderRepositoryImpl) UpdateRemaining(ctx context.Context, tx *sqlx.Tx, orderID uint64, remaining string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET remaining=$1 WHERE id=$2`,
		remaining, orderID)
	return err
}

func (r *orderRepositoryImpl) CloseOrder(ctx context.Context, tx *sqlx.Tx, orderID uint64, remaining string, closedAt time.Time, cancelled bool) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET is_active=false, remaining=$1, closed_at=$2, cancelled=$3 WHERE id=$4`,
		remaining, closedAt.UnixMilli(), cancelled, orderID)
	return err
}

func (r *orderRepositoryImpl) GetOrderByID(ctx context.Context, tx *sqlx.Tx, orderID uint64) (*OrderRecord, error) {
	var ord OrderRecord
	err := tx.GetContext(ctx, &ord,
		`SELECT `+orderColumns+` FROM orders WHERE id=$1`,
		orderID)
	if err != nil {
		return nil, err
	}
	return &ord, nil
}

func (r *orderRepositoryImpl) ListOrdersByUser(ctx context.Context, tx *sqlx.Tx, userID int64, onlyActive bool) ([]OrderRecord, error) {
	orders := make([]OrderRecord, 0)
	var err error
	if onlyActive {
		err = tx.SelectContext(ctx, &orders,
			`SELECT `+orderColumns+`
             FROM orders WHERE user_id=$1 AND is_active=true ORDER BY id DESC`, userID)
	} else {
		err = tx.SelectContext(ctx, &orders,
			`SELECT `+orderColumns+`
             FROM orders WHERE user_id=$1 ORDER BY id DESC`, userID)
	}
	return orders, err
}

// ListActiveOrders returns every resting order in placement order.
func (r *orderRepositoryImpl) ListActiveOrders(ctx context.Context, tx *sqlx.Tx) ([]OrderRecord, error) {
	orders := make([]OrderRecord, 0)
	err := tx.SelectContext(ctx, &orders,
		`SELECT `+orderColumns+` FROM orders WHERE is_active=true ORDER BY id ASC`)
	return orders, err
}

func (r *orderRepositoryImpl) CreateTrade(ctx context.Context, tx *sqlx.Tx, trade TradeRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO trades (`+tradeColumns+`)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		trade.ID, trade.AssetID, trade.OrderTakerID, trade.OrderMakerID,
		trade.TakerID, trade.MakerID, trade.Side,
		trade.Quantity, trade.Price, trade.Notional, trade.TradedAt)
	return err
}

func (r *orderRepositoryImpl) ListTradesByAsset(ctx context.Context, tx *sqlx.Tx, assetID string, limit int) ([]TradeRecord, error) {
	trades := make([]TradeRecord, 0)
	err := tx.SelectContext(ctx, &trades,
		`SELECT `+tradeColumns+` FROM trades WHERE asset_id=$1 ORDER BY id DESC LIMIT $2`,
		assetID, limit)
	return trades, err
}

func (r *orderRepositoryImpl) ListTradesByUser(ctx context.Context, tx *sqlx.Tx, userID int64, limit int) ([]TradeRecord, error) {
	trades := make([]TradeRecord, 0)
	err := tx.SelectContext(ctx, &trades,
		`SELECT `+tradeColumns+` FROM trades WHERE taker_id=$1 OR maker_id=$1 ORDER BY id DESC LIMIT $2`,
		userID, limit)
	return trades, err
}

// LastIDs returns the highest order and trade ids recorded so far.
func (r *orderRepositoryImpl) LastIDs(ctx context.Context, tx *sqlx.Tx) (uint64, uint64, error) {
	var ids struct {
		Order int64 `db:"last_order" json:"lastOrder"`
		Trade int64 `db:"last_trade" json:"lastTrade"`
	}
	err := tx.GetContext(ctx, &ids,
		`SELECT (SELECT COALESCE(MAX(id), 0) FROM orders) AS last_order,
                (SELECT COALESCE(MAX(id), 0) FROM trades) AS last_trade`)
	if err != nil {
		return 0, 0, err
	}
	return uint64(ids.Order), uint64(ids.Trade), nil
}

package ledger

import (
	"context"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"github.com/jmoiron/sqlx"
)

// Ticker is one listed instrument together with the TigerBeetle ledger its
// balances live on. The quote currency has a row too.
type Ticker struct {
	ID         int64         `db:"id"`
	Ticker     string        `db:"ticker"`
	Name       string        `db:"name"`
	AssetID    model.AssetID `db:"asset_id"`
	TBLedgerID int64         `db:"tb_ledger_id"`
	CreatedAt  int64         `db:"created_at"`
}

type LedgerRepository interface {
	CreateLedger(ctx context.Context, tx *sqlx.Tx, ticker, name string, asset model.AssetID, tbLedgerID int64) (int64, error)
	GetLedgerByID(ctx context.Context, tx *sqlx.Tx, id int64) (*Ticker, error)
	GetLedgerByTicker(ctx context.Context, tx *sqlx.Tx, ticker string) (*Ticker, error)
	GetLedgerByAsset(ctx context.Context, tx *sqlx.Tx, asset model.AssetID) (*Ticker, error)
	ListLedgers(ctx context.Context, tx *sqlx.Tx) ([]Ticker, error)
}

type ledgerRepositoryImpl struct {
}

func NewLedgerRepository(db *sqlx.DB) LedgerRepository {
	return &ledgerRepositoryImpl{}
}

const tickerColumns = `id, ticker, name, asset_id, tb_ledger_id, created_at`

func (r *ledgerRepositoryImpl) CreateLedger(ctx context.Context, tx *sqlx.Tx, ticker, name string, asset model.AssetID, tbLedgerID int64) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO ticker (ticker, name, asset_id, tb_ledger_id, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		ticker, name, string(asset), tbLedgerID, time.Now().UnixMilli(),
	).Scan(&id)
	return id, err
}

func (r *ledgerRepositoryImpl) GetLedgerByID(ctx context.Context, tx *sqlx.Tx, id int64) (*Ticker, error) {
	var t Ticker
	err := tx.GetContext(ctx, &t,
		`SELECT `+tickerColumns+` FROM ticker WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ledgerRepositoryImpl) GetLedgerByTicker(ctx context.Context, tx *sqlx.Tx, ticker string) (*Ticker, error) {
	var t Ticker
	err := tx.GetContext(ctx, &t,
		`SELECT `+tickerColumns+` FROM ticker WHERE ticker=$1`, ticker)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ledgerRepositoryImpl) GetLedgerByAsset(ctx context.Context, tx *sqlx.Tx, asset model.AssetID) (*Ticker, error) {
	var t Ticker
	err := tx.GetContext(ctx, &t,
		`SELECT `+tickerColumns+` FROM ticker WHERE asset_id=$1`, string(asset))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ledgerRepositoryImpl) ListLedgers(ctx context.Context, tx *sqlx.Tx) ([]Ticker, error) {
	var list []Ticker
	err := tx.SelectContext(ctx, &list,
		`SELECT `+tickerColumns+` FROM ticker ORDER BY id`)
	return list, err
}

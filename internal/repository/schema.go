package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Amounts are stored as decimal strings of base units, timestamps as unix
// milliseconds. {{ID}} is replaced by the driver's auto-increment key.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id {{ID}},
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS ticker (
    id {{ID}},
    ticker TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    asset_id TEXT NOT NULL UNIQUE,
    tb_ledger_id BIGINT NOT NULL,
    created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
    id BIGINT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    asset_id TEXT NOT NULL,
    side SMALLINT NOT NULL,
    type SMALLINT NOT NULL,
    quantity TEXT NOT NULL,
    remaining TEXT NOT NULL,
    price BIGINT NOT NULL,
    is_active BOOLEAN NOT NULL,
    cancelled BOOLEAN NOT NULL DEFAULT false,
    created_at BIGINT NOT NULL,
    closed_at BIGINT
);

CREATE INDEX IF NOT EXISTS orders_user_idx ON orders (user_id);

CREATE TABLE IF NOT EXISTS trades (
    id BIGINT PRIMARY KEY,
    asset_id TEXT NOT NULL,
    order_taker_id BIGINT NOT NULL,
    order_maker_id BIGINT NOT NULL,
    taker_id BIGINT NOT NULL,
    maker_id BIGINT NOT NULL,
    side SMALLINT NOT NULL,
    quantity TEXT NOT NULL,
    price BIGINT NOT NULL,
    notional TEXT NOT NULL,
    traded_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS trades_asset_idx ON trades (asset_id);
`

func idColumn(driver string) (string, error) {
	switch driver {
	case "postgres":
		return "BIGSERIAL PRIMARY KEY", nil
	case "sqlite":
		return "INTEGER PRIMARY KEY AUTOINCREMENT", nil
	default:
		return "", fmt.Errorf("unsupported driver %q", driver)
	}
}

// Migrate creates the tables the repositories use if they are missing.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	id, err := idColumn(db.DriverName())
	if err != nil {
		return err
	}
	ddl := strings.ReplaceAll(schema, "{{ID}}", id)
	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

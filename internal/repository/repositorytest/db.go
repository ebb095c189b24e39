// Package repositorytest opens throwaway databases for repository tests.
package repositorytest

import (
	"context"
	"testing"

	"github.com/TiggieF/tokenised-lse-sub000/internal/repository"
	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// NewDB returns a migrated in-memory sqlite database. One connection only,
// every new connection to :memory: would see an empty database.
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, repository.Migrate(context.Background(), db))
	return db
}

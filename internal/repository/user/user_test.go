package user

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/internal/repository/repositorytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newRepo(t *testing.T) (*userRepositoryImpl, func(*testing.T) (int64, error)) {
	db := repositorytest.NewDB(t)
	repo := &userRepositoryImpl{db: db, cost: bcrypt.MinCost, now: func() time.Time { return time.UnixMilli(42) }}
	create := func(t *testing.T) (int64, error) {
		ctx := context.Background()
		tx := db.MustBeginTx(ctx, nil)
		defer tx.Rollback()
		id, err := repo.Create(ctx, tx, "alice", "hunter2")
		if err != nil {
			return 0, err
		}
		return id, tx.Commit()
	}
	return repo, create
}

func TestCreateAndVerify(t *testing.T) {
	ctx := context.Background()
	repo, create := newRepo(t)

	id, err := create(t)
	require.NoError(t, err)

	u, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.EqualValues(t, 42, u.CreatedAt)
	assert.NotEqual(t, "hunter2", u.PasswordHash)

	u, err = repo.VerifyPassword(ctx, "alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)

	_, err = repo.VerifyPassword(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = repo.VerifyPassword(ctx, "nobody", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = repo.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDuplicateUsername(t *testing.T) {
	_, create := newRepo(t)
	_, err := create(t)
	require.NoError(t, err)
	_, err = create(t)
	assert.Error(t, err)
}

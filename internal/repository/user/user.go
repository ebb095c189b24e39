package user

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type User struct {
	ID           int64  `db:"id" json:"id"`
	Username     string `db:"username" json:"username"`
	PasswordHash string `db:"password_hash" json:"-"`
	CreatedAt    int64  `db:"created_at" json:"createdAt"` // unix ms
}

type UserRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, username, password string) (int64, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	VerifyPassword(ctx context.Context, username, password string) (*User, error)
}

type userRepositoryImpl struct {
	db   *sqlx.DB
	cost int
	now  func() time.Time
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepositoryImpl{db: db, cost: bcrypt.DefaultCost, now: time.Now}
}

func (r *userRepositoryImpl) Create(ctx context.Context, tx *sqlx.Tx, username, password string) (int64, error) {
	// hash password
	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.cost)
	if err != nil {
		return 0, err
	}

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES ($1, $2, $3) RETURNING id`,
		username, string(hash), r.now().UnixMilli()).Scan(&id)
	return id, err
}

func (r *userRepositoryImpl) GetByID(ctx context.Context, id int64) (*User, error) {
	u := &User{}
	err := r.db.GetContext(ctx, u,
		`SELECT id, username, password_hash, created_at FROM users WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *userRepositoryImpl) GetByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	err := r.db.GetContext(ctx, u,
		`SELECT id, username, password_hash, created_at FROM users WHERE username=$1`, username)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *userRepositoryImpl) VerifyPassword(ctx context.Context, username, password string) (*User, error) {
	u, err := r.GetByUsername(ctx, username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

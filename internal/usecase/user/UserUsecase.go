package user

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/TiggieF/tokenised-lse-sub000/internal/ledger"
	"github.com/TiggieF/tokenised-lse-sub000/internal/registry"
	repository "github.com/TiggieF/tokenised-lse-sub000/internal/repository/user"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var (
	ErrUsernameTaken   = errors.New("username already exists")
	ErrInvalidUsername = errors.New("username must not be empty")
	ErrWeakPassword    = errors.New("password must be at least 8 characters")
	ErrFaucetDisabled  = errors.New("faucet disabled")
	ErrInvalidAmount   = errors.New("amount must be > 0")
)

const minPasswordLen = 8

type UserUseCase interface {
	Register(ctx context.Context, username, password string) (int64, error)
	Login(ctx context.Context, username, password string) (*repository.User, error)
	GetProfile(ctx context.Context, userID int64) (*UserProfile, error)
	TopupMoney(ctx context.Context, userId int64, amount *big.Int) error
}

// Listings is the part of the registry the user flows read.
type Listings interface {
	Listings() []registry.Listing
}

type userUseCaseImpl struct {
	repo        repository.UserRepository
	ledger      ledger.AssetLedger
	listings    Listings
	quoteAsset  model.AssetID
	allowFaucet bool
	db          *sqlx.DB
	logger      *zap.SugaredLogger
}

type UserUseCaseOpts struct {
	UserRepo    repository.UserRepository
	Ledger      ledger.AssetLedger
	Listings    Listings
	QuoteAsset  model.AssetID
	AllowFaucet bool
	Db          *sqlx.DB
	Logger      *zap.SugaredLogger
}

func NewUserUseCase(opts UserUseCaseOpts) UserUseCase {
	if opts.QuoteAsset == "" {
		opts.QuoteAsset = model.AssetIDFor(model.CASH_TICKER)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &userUseCaseImpl{
		repo:        opts.UserRepo,
		ledger:      opts.Ledger,
		listings:    opts.Listings,
		quoteAsset:  opts.QuoteAsset,
		allowFaucet: opts.AllowFaucet,
		db:          opts.Db,
		logger:      opts.Logger,
	}
}

// assets is the quote currency followed by every listed asset.
func (uc *userUseCaseImpl) assets() []model.AssetID {
	out := []model.AssetID{uc.quoteAsset}
	for _, l := range uc.listings.Listings() {
		out = append(out, l.Asset)
	}
	return out
}

// Register creates the user and opens a ledger account per asset. The user
// row is only committed once the accounts exist.
func (uc *userUseCaseImpl) Register(ctx context.Context, username, password string) (int64, error) {
	if username == "" {
		return 0, ErrInvalidUsername
	}
	if len(password) < minPasswordLen {
		return 0, ErrWeakPassword
	}
	// Prevent duplicate usernames
	if existing, _ := uc.repo.GetByUsername(ctx, username); existing != nil {
		return 0, ErrUsernameTaken
	}

	tx, err := uc.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	newUserID, err := uc.repo.Create(ctx, tx, username, password)
	if err != nil {
		return 0, err
	}
	if err := uc.ledger.OpenAccounts(ctx, model.AccountID(newUserID), uc.assets()); err != nil {
		return 0, fmt.Errorf("opening ledger accounts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	uc.logger.Infow("user registered", "userId", newUserID, "username", username)
	return newUserID, nil
}

func (uc *userUseCaseImpl) Login(ctx context.Context, username, password string) (*repository.User, error) {
	return uc.repo.VerifyPassword(ctx, username, password)
}

type UserProfile struct {
	*repository.User
	// UserBalance is the quote currency balance.
	UserBalance string            `json:"userBalance"`
	Holdings    map[string]string `json:"holdings"`
}

func (uc *userUseCaseImpl) GetProfile(ctx context.Context, userID int64) (*UserProfile, error) {
	user, err := uc.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	account := model.AccountID(userID)

	cash, err := uc.ledger.BalanceOf(ctx, uc.quoteAsset, account)
	if err != nil {
		return nil, err
	}
	holdings := make(map[string]string)
	for _, l := range uc.listings.Listings() {
		b, err := uc.ledger.BalanceOf(ctx, l.Asset, account)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", l.Symbol, err)
		}
		holdings[l.Symbol] = model.FormatUnits(b)
	}
	return &UserProfile{
		User:        user,
		UserBalance: model.FormatUnits(cash),
		Holdings:    holdings,
	}, nil
}

// TopupMoney mints quote currency to a user. Development only.
func (uc *userUseCaseImpl) TopupMoney(ctx context.Context, userId int64, amount *big.Int) error {
	if !uc.allowFaucet {
		return ErrFaucetDisabled
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, err := uc.repo.GetByID(ctx, userId); err != nil {
		return err
	}
	if err := uc.ledger.Mint(ctx, uc.quoteAsset, model.AccountID(userId), amount); err != nil {
		return err
	}
	uc.logger.Infow("faucet topup", "userId", userId, "amount", model.FormatUnits(amount))
	return nil
}

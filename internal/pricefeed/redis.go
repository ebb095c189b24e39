package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pricefeed:"

// Redis keeps prices in a Redis hash per symbol so several processes can
// share one feed.
type Redis struct {
	client *redis.Client
	window time.Duration
	now    func() time.Time
}

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // No password by default
		DB:       0,
	})
}

func NewRedis(client *redis.Client, window time.Duration, now func() time.Time) *Redis {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Redis{client: client, window: window, now: now}
}

func (r *Redis) SetPrice(ctx context.Context, symbol string, price model.Price) error {
	if err := validate(symbol, price); err != nil {
		return err
	}
	return r.client.HSet(ctx, keyPrefix+symbol,
		"price", uint64(price),
		"updated_at", r.now().UnixMilli(),
	).Err()
}

func (r *Redis) GetPrice(ctx context.Context, symbol string) (model.Price, time.Time, error) {
	fields, err := r.client.HGetAll(ctx, keyPrefix+symbol).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, time.Time{}, err
	}
	if len(fields) == 0 {
		return 0, time.Time{}, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
	}
	price, err := strconv.ParseUint(fields["price"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("decoding price of %s: %w", symbol, err)
	}
	ms, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("decoding timestamp of %s: %w", symbol, err)
	}
	return model.Price(price), time.UnixMilli(ms), nil
}

func (r *Redis) IsFresh(ctx context.Context, symbol string) (bool, error) {
	_, updatedAt, err := r.GetPrice(ctx, symbol)
	if errors.Is(err, ErrNoPrice) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fresh(r.now(), updatedAt, r.window), nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

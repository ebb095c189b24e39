package pricefeed

import (
	"context"
	"testing"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Unix(1_700_000_000, 0)}
}

func TestMemoryFreshness(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	feed := NewMemory(c.now)
	assert.Equal(t, 60*time.Second, feed.FreshnessWindow())

	fresh, err := feed.IsFresh(ctx, "ACME1")
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, feed.SetPrice(ctx, "ACME1", 12_345))
	price, at, err := feed.GetPrice(ctx, "ACME1")
	require.NoError(t, err)
	assert.Equal(t, model.Price(12_345), price)
	assert.Equal(t, c.t, at)

	c.advance(60 * time.Second)
	fresh, _ = feed.IsFresh(ctx, "ACME1")
	assert.True(t, fresh)

	c.advance(time.Second)
	fresh, _ = feed.IsFresh(ctx, "ACME1")
	assert.False(t, fresh)

	require.NoError(t, feed.SetFreshnessWindow(10*time.Second))
	require.NoError(t, feed.SetPrice(ctx, "ACME1", 12_000))
	c.advance(11 * time.Second)
	fresh, _ = feed.IsFresh(ctx, "ACME1")
	assert.False(t, fresh)
	assert.ErrorIs(t, feed.SetFreshnessWindow(0), ErrInvalidWindow)
}

func TestMemoryRejects(t *testing.T) {
	ctx := context.Background()
	feed := NewMemory(nil)
	assert.ErrorIs(t, feed.SetPrice(ctx, "ACME1", 0), ErrInvalidPrice)
	assert.ErrorIs(t, feed.SetPrice(ctx, "acme", 100), model.ErrInvalidSymbol)

	_, _, err := feed.GetPrice(ctx, "NONE")
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestRedisFeed(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := newClock()
	feed := NewRedis(NewRedisClient(mr.Addr()), 0, c.now)
	defer feed.Close()

	_, _, err := feed.GetPrice(ctx, "ACME1")
	assert.ErrorIs(t, err, ErrNoPrice)
	fresh, err := feed.IsFresh(ctx, "ACME1")
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, feed.SetPrice(ctx, "ACME1", 10_050))
	price, at, err := feed.GetPrice(ctx, "ACME1")
	require.NoError(t, err)
	assert.Equal(t, model.Price(10_050), price)
	assert.Equal(t, c.t.UnixMilli(), at.UnixMilli())

	c.advance(61 * time.Second)
	fresh, err = feed.IsFresh(ctx, "ACME1")
	require.NoError(t, err)
	assert.False(t, fresh)

	assert.ErrorIs(t, feed.SetPrice(ctx, "ACME1", 0), ErrInvalidPrice)
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMemoryCache_GetSet(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	defer c.Close()
	ctx := context.Background()

	_, err := c.Get(ctx, "cursor")
	assert.ErrorIs(t, err, ErrCacheMiss)

	buf := []byte("42")
	require.NoError(t, c.Set(ctx, "cursor", buf, 0))
	buf[0] = 'x'

	got, err := c.Get(ctx, "cursor")
	require.NoError(t, err)
	assert.Equal(t, "42", string(got))

	ok, err := c.Exists(ctx, "cursor")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "cursor"))
	ok, _ = c.Exists(ctx, "cursor")
	assert.False(t, ok)
}

func TestMemoryCache_GetOrSetAndClear(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	defer c.Close()
	ctx := context.Background()

	calls := 0
	fn := func() ([]byte, error) {
		calls++
		return []byte("v"), nil
	}
	for i := 0; i < 2; i++ {
		got, err := c.GetOrSet(ctx, "k", 0, fn)
		require.NoError(t, err)
		assert.Equal(t, "v", string(got))
	}
	assert.Equal(t, 1, calls)

	require.NoError(t, c.Clear(ctx))
	assert.Zero(t, c.Len())
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	defer c.Close()
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "short", []byte("a"), time.Second))
	require.NoError(t, c.Set(ctx, "forever", []byte("b"), 0))

	now = now.Add(time.Hour)

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
	got, err := c.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))

	c.removeExpired()
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_CloseStopsSweeper(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewMemoryCache(time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestMemoryCache_Stats(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ballbot:cursor", []byte("7"), 0))
	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "memory", stats["backend"])
	assert.Equal(t, 1, stats["keys"])
}

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real server when REDIS_TEST_ADDR is set.
func TestRedisCache_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()

	c, err := NewRedisCache(ctx, RedisConfig{Addr: addr, KeyPrefix: "ballbot-test"}, nil)
	require.NoError(t, err)
	defer c.Close()

	_ = c.Delete(ctx, "cursor")
	_, err = c.Get(ctx, "cursor")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "cursor", []byte("1001"), time.Minute))
	got, err := c.Get(ctx, "cursor")
	require.NoError(t, err)
	assert.Equal(t, "1001", string(got))

	ok, err := c.Exists(ctx, "cursor")
	require.NoError(t, err)
	assert.True(t, ok)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "redis", stats["backend"])
}

func TestRedisCache_KeyPrefix(t *testing.T) {
	c := NewRedisCacheFromClient(nil, "", nil)
	assert.Equal(t, "pronto-ballbot:cursor", c.key("cursor"))
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNilError(t *testing.T) {
	assert.True(t, IsNilError(redis.Nil))
	assert.True(t, IsNilError(fmt.Errorf("cache get: %w", redis.Nil)))
	assert.False(t, IsNilError(errors.New("connection refused")))
	assert.False(t, IsNilError(nil))
}

// Runs against a live server when DR_TEST_REDIS_ADDR is set.
func TestClientRoundTrip(t *testing.T) {
	addr := os.Getenv("DR_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DR_TEST_REDIS_ADDR not set")
	}
	c, err := NewClient(config.RedisConfig{Addr: addr, PoolSize: 2})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "drtest:a", "1", time.Minute))
	require.NoError(t, c.Set(ctx, "drtest:b", "2", time.Minute))
	v, err := c.Get(ctx, "drtest:a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	n, err := c.FlushByPattern(ctx, "drtest:*")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	_, err = c.Get(ctx, "drtest:a")
	assert.True(t, IsNilError(err))
}

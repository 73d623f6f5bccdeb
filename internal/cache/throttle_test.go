package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newThrottle(t *testing.T) (*LoginThrottle, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLoginThrottle(rdb, 5, 30*time.Minute), mr
}

func TestThrottleBlocksAfterLimit(t *testing.T) {
	th, _ := newThrottle(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, th.RecordFailure(ctx, "a@b.co"))
	}
	blocked, err := th.Blocked(ctx, "a@b.co")
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, th.RecordFailure(ctx, "a@b.co"))
	blocked, err = th.Blocked(ctx, "a@b.co")
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, err = th.Blocked(ctx, "other@b.co")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestThrottleWindowExpires(t *testing.T) {
	th, mr := newThrottle(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, th.RecordFailure(ctx, "a@b.co"))
	}
	assert.Equal(t, 30*time.Minute, mr.TTL(keyPrefix+"a@b.co"))

	mr.FastForward(31 * time.Minute)

	blocked, err := th.Blocked(ctx, "a@b.co")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestThrottleReset(t *testing.T) {
	th, _ := newThrottle(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, th.RecordFailure(ctx, "a@b.co"))
	}
	require.NoError(t, th.Reset(ctx, "a@b.co"))

	blocked, err := th.Blocked(ctx, "a@b.co")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestThrottleRedisDown(t *testing.T) {
	th, mr := newThrottle(t)
	mr.Close()

	_, err := th.Blocked(context.Background(), "a@b.co")
	assert.Error(t, err)
	assert.Error(t, th.RecordFailure(context.Background(), "a@b.co"))
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()

	rdb, err := Connect(context.Background(), addr, "", 0)
	require.NoError(t, err)
	require.NoError(t, rdb.Close())

	mr.Close()
	_, err = Connect(context.Background(), addr, "", 0)
	assert.Error(t, err)
}

package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, buckets map[string]BucketConfig) *RedisLuaLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLuaLimiter(rdb, buckets)
}

func TestNewBucketConfigFromPerMinute(t *testing.T) {
	cfg := NewBucketConfigFromPerMinute(60)
	assert.Equal(t, int64(60), cfg.Capacity)
	assert.InDelta(t, 1.0, cfg.RefillRate, 1e-9)

	assert.Equal(t, BucketConfig{}, NewBucketConfigFromPerMinute(0))
}

func TestAllow_ConsumesTokensUntilEmpty(t *testing.T) {
	l := newTestLimiter(t, map[string]BucketConfig{
		"llm:gpt-4o-mini": {Capacity: 2, RefillRate: 0.001},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := l.Allow(ctx, "llm:gpt-4o-mini", 1)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d within capacity", i+1)
	}

	allowed, retryAfter, err := l.Allow(ctx, "llm:gpt-4o-mini", 1)
	require.NoError(t, err)
	assert.False(t, allowed, "bucket exhausted")
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestAllow_UnknownKeyFailsOpen(t *testing.T) {
	l := newTestLimiter(t, map[string]BucketConfig{})
	allowed, retryAfter, err := l.Allow(context.Background(), "unconfigured", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Zero(t, retryAfter)
}

func TestAllow_NilLimiterAllowsEverything(t *testing.T) {
	var l *RedisLuaLimiter
	allowed, _, err := l.Allow(context.Background(), "anything", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAllow_RedisDownFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewRedisLuaLimiter(rdb, map[string]BucketConfig{
		"llm:gpt-4o-mini": {Capacity: 1, RefillRate: 1},
	})
	mr.Close()

	allowed, _, err := l.Allow(context.Background(), "llm:gpt-4o-mini", 1)
	assert.Error(t, err)
	assert.True(t, allowed, "redis outage must not block the pipeline")
}

func TestSetBucketConfig_TakesEffect(t *testing.T) {
	l := newTestLimiter(t, nil)
	ctx := context.Background()

	allowed, _, err := l.Allow(ctx, "llm:gpt-4o-mini", 1)
	require.NoError(t, err)
	assert.True(t, allowed, "no bucket yet, fail open")

	l.SetBucketConfig("llm:gpt-4o-mini", BucketConfig{Capacity: 1, RefillRate: 0.001})
	allowed, _, err = l.Allow(ctx, "llm:gpt-4o-mini", 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = l.Allow(ctx, "llm:gpt-4o-mini", 1)
	require.NoError(t, err)
	assert.False(t, allowed, "configured bucket must now limit")
}

func TestAllow_RefillsOverTime(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := NewRedisLuaLimiter(rdb, map[string]BucketConfig{
		"llm:gpt-4o-mini": {Capacity: 1, RefillRate: 50}, // 50 tokens/sec
	})
	ctx := context.Background()

	allowed, _, err := l.Allow(ctx, "llm:gpt-4o-mini", 1)
	require.NoError(t, err)
	require.True(t, allowed)

	time.Sleep(50 * time.Millisecond)
	allowed, _, err = l.Allow(ctx, "llm:gpt-4o-mini", 1)
	require.NoError(t, err)
	assert.True(t, allowed, "bucket should refill within the sleep window")
}

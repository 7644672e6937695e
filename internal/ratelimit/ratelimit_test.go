package ratelimit

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creditledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScriptResult(t *testing.T) {
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	allowed, err := parseScriptResult([]interface{}{int64(1), int64(4), ts}, 1, 5)
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)
	assert.Equal(t, 4, allowed.Remaining)
	assert.Equal(t, 5, allowed.Limit)
	assert.Zero(t, allowed.RetryAfter)

	denied, err := parseScriptResult([]interface{}{int64(0), int64(0), ts}, 0.5, 3)
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
	assert.Equal(t, 2*time.Second, denied.RetryAfter)
	assert.Equal(t, time.UnixMilli(ts).Add(2*time.Second), denied.ResetTime)

	_, err = parseScriptResult([]interface{}{int64(1)}, 1, 1)
	assert.Error(t, err)
}

func TestCastHelpers(t *testing.T) {
	assert.Equal(t, int64(3), castToInt(3))
	assert.Equal(t, int64(2), castToInt(2.9))
	assert.Equal(t, int64(0), castToInt("x"))
	assert.Equal(t, 1.5, castToFloat("1.5"))
	assert.Equal(t, 0.0, castToFloat("nope"))
	assert.Equal(t, 7.0, castToFloat(int64(7)))
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, 10*time.Second, defaultBucketTTL(1, 5))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 0))
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	assert.False(t, l.Enabled())
	res, err := l.Allow(context.Background(), EndpointAssistant, "u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestNilTokenBucket(t *testing.T) {
	var b *TokenBucket
	_, err := b.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewLimiter(t *testing.T) {
	cfg := config.Config{}
	l, err := NewLimiter(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, l)

	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RedisAddr: "localhost:6379", AssistantRate: 1, AssistantBurst: 5}
	client := redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr})
	t.Cleanup(func() { _ = client.Close() })

	_, err = NewLimiter(cfg, client)
	assert.Error(t, err, "order policy missing")

	cfg.RateLimit.OrderRate = 0.5
	cfg.RateLimit.OrderBurst = 3
	l, err = NewLimiter(cfg, client)
	require.NoError(t, err)
	assert.True(t, l.Enabled())

	// Unknown endpoints never reach redis.
	res, err := l.Allow(context.Background(), Endpoint("other"), "u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestSchedulerLockerRequiresFlag(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	t.Cleanup(func() { _ = client.Close() })

	assert.Nil(t, NewSchedulerLocker(config.Config{}, client))
	cfg := config.Config{Scheduler: config.SchedulerConfig{DistributedLock: true}}
	assert.NotNil(t, NewSchedulerLocker(cfg, client))

	var l *Locker
	_, _, err := l.TryLock(context.Background(), "k", time.Second)
	assert.Error(t, err)
	assert.NoError(t, l.Release(context.Background(), "k", "t"))
}

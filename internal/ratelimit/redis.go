package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creditledger/internal/config"
	"go.uber.org/fx"
)

// NewRedisClient returns nil when neither rate limiting nor the scheduler
// lock is switched on.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if !cfg.RateLimit.Enabled && !cfg.Scheduler.DistributedLock {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.RateLimit.RedisAddr),
		Password: strings.TrimSpace(cfg.RateLimit.RedisPassword),
		DB:       cfg.RateLimit.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

// NewSchedulerLocker is nil unless the scheduler is configured to
// coordinate through redis.
func NewSchedulerLocker(cfg config.Config, client *redis.Client) *Locker {
	if !cfg.Scheduler.DistributedLock {
		return nil
	}
	return NewLocker(client)
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creditledger/internal/config"
)

// Endpoint names a rate limited operation.
type Endpoint string

const (
	EndpointAssistant Endpoint = "assistant"
	EndpointOrders    Endpoint = "orders"
)

const keyUserEndpoint = "creditledger:ratelimit:%s:user:%s"

type bucketPolicy struct {
	rate  float64
	burst int
}

// Limiter throttles expensive per-user calls. A nil Limiter allows
// everything.
type Limiter struct {
	bucket   *TokenBucket
	policies map[Endpoint]bucketPolicy
}

func NewLimiter(cfg config.Config, client *redis.Client) (*Limiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(limitCfg.RedisAddr) == "" || client == nil {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.AssistantRate <= 0 || limitCfg.AssistantBurst <= 0 {
		return nil, errors.New("assistant rate limit must be positive")
	}
	if limitCfg.OrderRate <= 0 || limitCfg.OrderBurst <= 0 {
		return nil, errors.New("order rate limit must be positive")
	}

	return &Limiter{
		bucket: NewTokenBucket(client),
		policies: map[Endpoint]bucketPolicy{
			EndpointAssistant: {rate: limitCfg.AssistantRate, burst: limitCfg.AssistantBurst},
			EndpointOrders:    {rate: limitCfg.OrderRate, burst: limitCfg.OrderBurst},
		},
	}, nil
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow takes one token from the user's bucket for endpoint. Endpoints
// without a policy are not limited.
func (l *Limiter) Allow(ctx context.Context, endpoint Endpoint, userID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	policy, ok := l.policies[endpoint]
	if !ok {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyUserEndpoint, endpoint, strings.TrimSpace(userID))
	return l.bucket.Allow(ctx, key, policy.rate, policy.burst)
}

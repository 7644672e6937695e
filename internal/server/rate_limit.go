package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditledger/internal/observability/logger"
	"github.com/smallbiznis/creditledger/internal/ratelimit"
	"go.uber.org/zap"
)

const rateLimitReasonUserRate = "user-rate"

// RateLimit takes one token from the caller's bucket for endpoint. It runs
// after IdentityRequired, so every bucket is per user.
func (s *Server) RateLimit(endpoint ratelimit.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		userID := userIDFromContext(c)
		route := normalizeRateLimitEndpoint(c)

		result, err := s.limiter.Allow(ctx, endpoint, userID)
		if err != nil {
			logger.WithUser(logger.FromContext(ctx), userID).Warn("rate limit check failed",
				zap.String("endpoint", route),
				zap.Error(err),
			)
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		if result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if !result.Allowed {
			s.denyRateLimit(c, endpoint, route, userID, result)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, string(endpoint))
		c.Next()
	}
}

func (s *Server) denyRateLimit(c *gin.Context, endpoint ratelimit.Endpoint, route, userID string, result *ratelimit.RateLimitResult) {
	ctx := c.Request.Context()
	logger.WithUser(logger.FromContext(ctx), userID).Warn("rate limit exceeded",
		zap.String("reason", rateLimitReasonUserRate),
		zap.String("endpoint", route),
	)
	s.obsMetrics.RecordRateLimitDenied(ctx, string(endpoint), rateLimitReasonUserRate)

	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(result)))
	c.Header("X-Rate-Limited-Reason", rateLimitReasonUserRate)
	AbortWithError(c, ErrRateLimited)
}

func retryAfterSeconds(result *ratelimit.RateLimitResult) int {
	if result == nil || result.RetryAfter <= 0 {
		return 1
	}
	return int(math.Ceil(result.RetryAfter.Seconds()))
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}

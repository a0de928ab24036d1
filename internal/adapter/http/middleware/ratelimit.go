package middleware

import (
	"fmt"
	"strconv"
	"time"

	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/pkg/apperror"
	"secure-withdrawal-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the rate limits per endpoint group.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"accounts_register": {Limit: 5, Window: time.Hour},
		"read":              {Limit: 120, Window: time.Minute},
		"wallet_fund":       {Limit: 10, Window: time.Minute},
		"sessions":          {Limit: 30, Window: time.Minute},
		"session_input":     {Limit: 300, Window: time.Minute},
		"quotations":        {Limit: 30, Window: time.Minute},
		"signing":           {Limit: 10, Window: time.Minute},
	}
}

// MergeRateLimitRules returns the default rules with overrides applied.
// Overrides may name groups the defaults do not have.
func MergeRateLimitRules(overrides map[string]RateLimitRule) map[string]RateLimitRule {
	rules := DefaultRateLimitRules()
	for group, rule := range overrides {
		rules[group] = rule
	}
	return rules
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// When the limiter is unavailable requests pass.
func RateLimiter(limiter ports.RateLimiter, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)

		result, err := limiter.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retryAfter := max(int64(time.Until(result.ResetAt).Seconds()), 1)
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier keys authenticated requests by account, the rest by IP.
func extractIdentifier(c *gin.Context) string {
	if id, ok := AccountID(c); ok {
		return id.String()
	}
	return c.ClientIP()
}

package middleware

import (
	"fmt"
	"strconv"
	"time"

	"payment-core/config"
	"payment-core/internal/core/ports"
	"payment-core/pkg/apperror"
	"payment-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule is one fixed-window cap.
type RateLimitRule struct {
	Granularity string // key suffix: minute, hour, day
	Limit       int64
	Window      time.Duration
}

// RulesFromConfig expands the configured caps into the three
// granularities every request must clear.
func RulesFromConfig(cfg config.RateLimitConfig) []RateLimitRule {
	return []RateLimitRule{
		{Granularity: "minute", Limit: cfg.PerMinute, Window: time.Minute},
		{Granularity: "hour", Limit: cfg.PerHour, Window: time.Hour},
		{Granularity: "day", Limit: cfg.PerDay, Window: 24 * time.Hour},
	}
}

// RateLimiter creates a rate-limiting middleware for an endpoint group.
// Each rule keeps its own counter; the first exhausted one rejects the
// request with the seconds until its window resets. A store failure
// lets the request through: the limiter protects throughput and must
// not take the API down with it.
func RateLimiter(store ports.RateLimitStore, group string, rules []RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := extractIdentifier(c)

		for _, rule := range rules {
			key := fmt.Sprintf("%s:%s:%s", identifier, group, rule.Granularity)

			result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
			if err != nil {
				log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
				continue
			}

			if rule.Granularity == "minute" {
				c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
				c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
				c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))
			}

			if !result.Allowed {
				retryAfter := result.ResetAt - time.Now().Unix()
				if retryAfter < 1 {
					retryAfter = 1
				}
				response.Error(c, apperror.ErrRateLimitExceeded(int(retryAfter)))
				c.Abort()
				return
			}
		}

		c.Next()
	}
}

// extractIdentifier determines the rate limit key source.
func extractIdentifier(c *gin.Context) string {
	return c.ClientIP()
}

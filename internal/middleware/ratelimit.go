package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bazarkua/molexa-api/internal/fingerprint"
	"github.com/bazarkua/molexa-api/internal/logger"
	"github.com/bazarkua/molexa-api/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// Throttles by client IP fingerprint, so limiter keys never carry a raw IP.
// A nil limiter disables throttling, and a failing limiter lets requests through.
func RateLimit(limiter ratelimit.Limiter, hasher *fingerprint.Hasher, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := hasher.Sum(c.ClientIP())

		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			log.Warn("Rate limit check failed", logger.Error(err))
			c.Next()
			return
		}

		remaining, _ := limiter.Remaining(ctx, key)
		resetTime, _ := limiter.Reset(ctx, key)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.Limit()))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime.Unix()))

		if !allowed {
			retryAfter := int(time.Until(resetTime).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}

			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"limit":       limiter.Limit(),
				"retry_after": resetTime.Unix(),
			})
			return
		}

		c.Next()
	}
}

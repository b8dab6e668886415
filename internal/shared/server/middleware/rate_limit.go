package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"conformity-backend/internal/ratelimit"
	"conformity-backend/internal/shared/server/respond"
)

// RateLimitRule caps hits per caller inside a sliding window. Name keeps
// rules from sharing counters.
type RateLimitRule struct {
	Name   string
	Max    int
	Window time.Duration
}

// RateLimit rejects callers over rule with 429 and a Retry-After header.
func RateLimit(limiter *ratelimit.Limiter, rule RateLimitRule) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rule.Name + "|" + CallerIDFromContext(c)
		res := limiter.CheckAndRecord(c.Request.Context(), key, rule.Window, rule.Max)
		c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if res.Allowed {
			c.Next()
			return
		}

		retryAfter := time.Until(res.ResetAt)
		if limiter != nil && limiter.Now != nil {
			retryAfter = res.ResetAt.Sub(limiter.Now())
		}
		retryAfterSeconds := int(math.Ceil(retryAfter.Seconds()))
		if retryAfterSeconds <= 0 {
			retryAfterSeconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "too many requests", gin.H{
			"retryAfterSeconds": retryAfterSeconds,
		})
	}
}

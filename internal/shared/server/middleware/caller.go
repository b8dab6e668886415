package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	callerIDKey    = "callerId"
	callerIDHeader = "X-Caller-Id"
	maxCallerIDLen = 128
)

// Caller stores the caller identity used for rate limiting and logs: the
// X-Caller-Id header when present, otherwise the client IP.
func Caller() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(callerIDHeader))
		if len(id) > maxCallerIDLen {
			id = id[:maxCallerIDLen]
		}
		if id == "" {
			id = c.ClientIP()
		}
		c.Set(callerIDKey, id)
		c.Next()
	}
}

// CallerIDFromContext returns the identity stored by Caller, falling back to
// the client IP.
func CallerIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if id := c.GetString(callerIDKey); id != "" {
		return id
	}
	return c.ClientIP()
}

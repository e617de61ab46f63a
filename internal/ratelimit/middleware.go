package ratelimit

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/gridwatch/queue-reliability/internal/errors"
	"github.com/gridwatch/queue-reliability/internal/monitoring"
)

// ContextKeyAPIKey is where the auth middleware stores the authenticated
// key for downstream consumers.
const ContextKeyAPIKey = "api_key"

// Middleware throttles requests per client. Authenticated requests are
// keyed by API key, anonymous ones by client IP.
func Middleware(limiter *Limiter, metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(ContextKeyAPIKey)
		if key == "" {
			key = c.ClientIP()
		}

		if !limiter.Allow(key) {
			metrics.IncrementRateLimitBlock(key)

			appErr := apperrors.NewRateLimitError()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
			return
		}

		c.Next()
	}
}

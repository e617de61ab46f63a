package auth

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	apperrors "github.com/gridwatch/queue-reliability/internal/errors"
	"github.com/gridwatch/queue-reliability/internal/ratelimit"
)

// HeaderAPIKey carries the client credential on every request.
const HeaderAPIKey = "X-API-Key"

// APIKeyMiddleware authenticates requests against the configured key set.
// With no keys configured the service runs open, which is the expected
// mode for local development. The matched key is stored on the context so
// the rate limiter can throttle per key rather than per IP.
func APIKeyMiddleware(keys []string) gin.HandlerFunc {
	if len(keys) == 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		presented := c.GetHeader(HeaderAPIKey)
		if presented == "" {
			unauthorized(c)
			return
		}

		for _, key := range keys {
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1 {
				c.Set(ratelimit.ContextKeyAPIKey, key)
				c.Next()
				return
			}
		}

		unauthorized(c)
	}
}

func unauthorized(c *gin.Context) {
	appErr := apperrors.NewUnauthorizedError()
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
}

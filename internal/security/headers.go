package security

import (
	"github.com/gin-gonic/gin"
)

// HeadersMiddleware adds standard security headers to all responses. The
// API serves JSON only, so the browser-facing headers are belt and braces
// for anyone pointing a browser at an endpoint.
func HeadersMiddleware(enableHSTS bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		if enableHSTS {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		}

		c.Next()
	}
}

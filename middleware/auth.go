package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader carries the shared secret on every authenticated request.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth gates a route group behind the configured static API key.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	secret := []byte(apiKey)

	return func(c *gin.Context) {
		presented := c.GetHeader(APIKeyHeader)
		if presented == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"detail": "API key missing. Please provide X-API-Key header.",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(presented), secret) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"detail": "Invalid API key.",
			})
			return
		}

		c.Next()
	}
}

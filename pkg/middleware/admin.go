package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const AdminKeyHeader = "X-Admin-Key"

// NewAdminKeyMiddleware guards admin routes with a static key. A missing
// header is 401, a wrong one 403.
func NewAdminKeyMiddleware(key string) gin.HandlerFunc {
	expected := []byte(key)

	return func(c *gin.Context) {
		requestID := c.GetString("requestID")

		got := c.GetHeader(AdminKeyHeader)
		if got == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Admin key required",
				"requestID": requestID,
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			zap.L().Warn("Rejected admin request with wrong key", zap.String("requestID", requestID), zap.String("ip", c.ClientIP()))

			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":     "Invalid admin key",
				"requestID": requestID,
			})
			return
		}

		c.Next()
	}
}

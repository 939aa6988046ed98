// Package errs turns service errors into HTTP responses
package errs

import (
	"context"
	"errors"
	"net/http"

	"bitwise74/tmpfile-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Respond writes the error response matching err and aborts the chain
func Respond(c *gin.Context, err error) {
	requestID := c.GetString("requestID")

	var (
		tooLarge *service.UploadTooLargeError
		bodyCap  *http.MaxBytesError
		quota    *service.QuotaExceededError
		expired  *service.ExpiredError
	)

	switch {
	case errors.As(err, &tooLarge):
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":     "File too large",
			"details":   tooLarge.Error(),
			"maxSize":   tooLarge.Limit,
			"requestID": requestID,
		})
	case errors.As(err, &bodyCap):
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":     "Request body size exceeds limit",
			"maxSize":   bodyCap.Limit,
			"requestID": requestID,
		})
	case errors.As(err, &quota):
		c.AbortWithStatusJSON(http.StatusInsufficientStorage, gin.H{
			"error":     "Insufficient storage space",
			"details":   quota.Error(),
			"requestID": requestID,
		})
	case errors.As(err, &expired):
		c.AbortWithStatusJSON(http.StatusGone, gin.H{
			"error":     "File has expired",
			"expiresAt": expired.ExpiresAt,
			"requestID": requestID,
		})
	case errors.Is(err, service.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error":     "File not found",
			"requestID": requestID,
		})
	case errors.Is(err, context.Canceled):
		// Client is gone, nobody reads the body
		zap.L().Debug("Request cancelled", zap.String("requestID", requestID))
		c.AbortWithStatus(http.StatusBadRequest)
	default:
		zap.L().Error("Request failed", zap.String("requestID", requestID), zap.Error(err))

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})
	}
}

// BadRequest answers 400 with msg
func BadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":     msg,
		"requestID": c.GetString("requestID"),
	})
}

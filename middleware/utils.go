package middleware

import (
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/cliproxy/gateway/common/ctxkey"
)

// AbortWithError aborts the request with a JSON error body and logs the cause
// at the appropriate level.
func AbortWithError(c *gin.Context, statusCode int, err error) {
	logger := gmw.GetLogger(c)
	requestId, _ := c.Get(ctxkey.RequestId)
	fields := []zap.Field{
		zap.Int("status_code", statusCode),
		zap.Error(err),
	}
	if statusCode >= 400 && statusCode < 500 {
		logger.Warn("request aborted", fields...)
	} else {
		logger.Error("request aborted", fields...)
	}

	c.JSON(statusCode, gin.H{
		"error": gin.H{
			"message":    err.Error(),
			"type":       "gateway_error",
			"request_id": requestId,
		},
	})
	c.Abort()
}

package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cliproxy/gateway/common/ctxkey"
)

// RequestID assigns a UUID to every inbound request, reusing an inbound
// X-Request-Id header when the caller already supplied one, and records the
// handler's start time for latency measurement.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxkey.RequestId, id)
		c.Set(ctxkey.StartTime, time.Now())
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// SessionID captures the optional client-supplied session correlation id.
func SessionID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sid := c.GetHeader("X-Session-Id"); sid != "" {
			c.Set(ctxkey.SessionId, sid)
		}
		c.Next()
	}
}

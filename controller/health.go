package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cliproxy/gateway/relay/model"
)

// Health handles GET /health: a liveness probe with no dependency checks.
func (d *Deps) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": model.NowUnix(),
	})
}

// StatusSnapshot handles GET /status: every app family's current ProxyStatus snapshot.
func (d *Deps) StatusSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, d.Status.Snapshot())
}

// DebugBreakers handles GET /debug/breakers: every provider's circuit
// breaker snapshot, grounded on the teacher's DebugAllChannelModelConfigs
// debug-surface convention.
func (d *Deps) DebugBreakers(c *gin.Context) {
	c.JSON(http.StatusOK, d.Breakers.Snapshot())
}

// Package router wires gin route registration, per spec §6's listening
// surface: health/status/debug endpoints plus the three app-family relay
// endpoints.
package router

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cliproxy/gateway/controller"
	"github.com/cliproxy/gateway/middleware"
)

// SetAPIRouter mounts every handler in deps onto engine.
func SetAPIRouter(engine *gin.Engine, deps *controller.Deps) {
	engine.Use(middleware.RequestID(), middleware.SessionID())

	engine.GET("/health", deps.Health)

	statusGroup := engine.Group("/")
	statusGroup.Use(gzip.Gzip(gzip.DefaultCompression))
	statusGroup.GET("/status", deps.StatusSnapshot)
	statusGroup.GET("/debug/breakers", deps.DebugBreakers)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.POST("/v1/messages", deps.ClaudeMessages)
	engine.POST("/v1/responses", deps.CodexResponses)
	engine.POST("/v1/chat/completions", deps.CodexChatCompletions)

	engine.NoRoute(deps.GeminiForward)
}

package scoring

import (
	"github.com/labstack/echo/v4"

	"github.com/opennotes-ai/opennotes-server/pkg/auth"
)

// RegisterRoutes mounts the scoring-adapter endpoints under /api/community-servers/:id.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	read := e.Group("/api/community-servers/:id")
	read.Use(authMiddleware.RequireAuth())
	read.Use(authMiddleware.RequireScopes("scoring:read"))
	read.GET("/scoring-tier", h.GetTier)
	read.GET("/scoring-status", h.GetBatchScoringStatus)

	admin := e.Group("/api/community-servers/:id")
	admin.Use(authMiddleware.RequireAuth())
	admin.Use(authMiddleware.RequireScopes("scoring:admin"))
	admin.POST("/score", h.DispatchScoring)
}

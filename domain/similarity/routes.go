package similarity

import (
	"github.com/labstack/echo/v4"

	"github.com/opennotes-ai/opennotes-server/pkg/auth"
)

// RegisterRoutes mounts the previously-seen lookup endpoint under /api/similarity.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/similarity")
	g.Use(authMiddleware.RequireAuth())
	g.Use(authMiddleware.RequireScopes("similarity:read"))
	g.POST("/previously-seen", h.Lookup)
}

package search

import (
	"github.com/labstack/echo/v4"

	"github.com/opennotes-ai/opennotes-server/pkg/auth"
)

// RegisterRoutes mounts hybrid search under /api/search and its fusion-weight
// administration under /api/search/admin, gated behind the search:admin scope the spec
// reserves for service accounts.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/search")
	g.Use(authMiddleware.RequireAuth())
	g.Use(authMiddleware.RequireScopes("search:read"))
	g.POST("", h.Search)

	admin := e.Group("/api/search/admin")
	admin.Use(authMiddleware.RequireAuth())
	admin.Use(authMiddleware.RequireScopes("search:admin"))
	admin.GET("/fusion-weights", h.GetFusionWeights)
	admin.PUT("/fusion-weights", h.PutFusionWeights)
	admin.DELETE("/fusion-weights/:dataset", h.DeleteFusionWeight)
}

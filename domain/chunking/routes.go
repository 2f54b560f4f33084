package chunking

import (
	"github.com/labstack/echo/v4"

	"github.com/opennotes-ai/opennotes-server/pkg/auth"
)

// RegisterRoutes mounts the rechunk-job endpoints under /api/rechunk, rate limited and
// scoped since they're the trigger point for the rechunk distributed lock.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/rechunk")
	g.Use(authMiddleware.RequireAuth())
	g.Use(authMiddleware.RequireScopes("batch_jobs:write"))

	g.POST("/fact-checks", h.RechunkFactChecks)
	g.POST("/previously-seen", h.RechunkPreviouslySeen)
}

package batchjobs

import (
	"github.com/labstack/echo/v4"

	"github.com/opennotes-ai/opennotes-server/pkg/auth"
)

// RegisterRoutes registers the batch jobs routes.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/batch-jobs")
	g.Use(authMiddleware.RequireAuth())

	readGroup := g.Group("")
	readGroup.Use(authMiddleware.RequireScopes("batch_jobs:read"))
	readGroup.GET("/:id", h.Get)
	readGroup.GET("/:id/progress", h.GetProgress)

	writeGroup := g.Group("")
	writeGroup.Use(authMiddleware.RequireScopes("batch_jobs:write"))
	writeGroup.POST("", h.Create)
	writeGroup.POST("/:id/start", h.Start)
	writeGroup.PATCH("/:id/progress", h.UpdateProgress)
	writeGroup.POST("/:id/complete", h.Complete)
	writeGroup.POST("/:id/fail", h.Fail)
	writeGroup.POST("/:id/cancel", h.Cancel)
}

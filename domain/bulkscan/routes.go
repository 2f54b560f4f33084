package bulkscan

import (
	"github.com/labstack/echo/v4"

	"github.com/opennotes-ai/opennotes-server/pkg/auth"
)

// RegisterRoutes mounts the bulk-scan initiation endpoint.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/bulk-scans")
	g.Use(authMiddleware.RequireAuth())
	g.Use(authMiddleware.RequireScopes("bulkscan:admin"))
	g.POST("", h.Initiate)
}

package webhooks

import (
	"github.com/labstack/echo/v4"

	"github.com/opennotes-ai/opennotes-server/pkg/auth"
)

// RegisterRoutes mounts webhook registration and receipt endpoints. Receipt endpoints
// are unauthenticated at the HTTP layer by design — they are protected entirely by
// signature verification, not bearer tokens, since the caller is an external platform
// or an internal sender that never holds a session.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/webhooks")
	g.POST("", h.Register, authMiddleware.RequireAuth(), authMiddleware.RequireScopes("webhooks:admin"))
	g.POST("/:id/receive", h.ReceiveInternal)
	g.POST("/platform/discord", h.ReceivePlatform)
}

package webhooks

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/jsonapi"
)

// Handler serves the webhook registration and receipt HTTP surface.
type Handler struct {
	svc *Service
}

// NewHandler builds a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register handles POST /api/webhooks
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return jsonapi.RenderError(c, apperror.ErrBadRequest.WithMessage("invalid request body"))
	}

	communityServerID, err := uuid.Parse(req.CommunityServerID)
	if err != nil {
		return jsonapi.RenderError(c, apperror.ErrBadRequest.WithMessage("invalid community_server_id"))
	}
	if req.Label == "" {
		return jsonapi.RenderError(c, apperror.ErrBadRequest.WithMessage("label is required"))
	}

	reg, secret, err := h.svc.Register(c.Request().Context(), communityServerID, req.Label)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}

	resp := RegisterResponse{ID: reg.ID.String(), Label: reg.Label, Secret: secret}
	return jsonapi.Render(c, http.StatusCreated, jsonapi.Resource{Type: "webhooks", ID: reg.ID.String(), Attributes: resp}, nil)
}

// ReceiveInternal handles POST /api/webhooks/:id/receive — an internally-registered
// webhook endpoint signed with its registration secret per the HMAC-SHA-256 scheme.
func (h *Handler) ReceiveInternal(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return jsonapi.RenderError(c, apperror.ErrBadRequest.WithMessage("invalid webhook id"))
	}

	kind := c.Request().Header.Get("X-Webhook-Kind")
	signature := c.Request().Header.Get("X-Webhook-Signature")
	timestamp := c.Request().Header.Get("X-Webhook-Timestamp")
	if kind == "" || signature == "" || timestamp == "" {
		return jsonapi.RenderError(c, apperror.ErrBadRequest.WithMessage("missing webhook headers"))
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return jsonapi.RenderError(c, apperror.ErrBadRequest.WithMessage("failed to read request body"))
	}

	if err := h.svc.ReceiveInternal(c.Request().Context(), id, kind, signature, timestamp, body); err != nil {
		return jsonapi.RenderError(c, err)
	}
	return jsonapi.Render(c, http.StatusAccepted, jsonapi.Resource{Type: "webhook-receipts", ID: id.String(), Attributes: ReceiveResponse{Accepted: true}}, nil)
}

// ReceivePlatform handles POST /api/webhooks/platform/discord — an inbound Discord
// interaction verified with the platform's Ed25519 signature scheme.
func (h *Handler) ReceivePlatform(c echo.Context) error {
	signature := c.Request().Header.Get("X-Signature-Ed25519")
	timestamp := c.Request().Header.Get("X-Signature-Timestamp")
	if signature == "" || timestamp == "" {
		return jsonapi.RenderError(c, apperror.ErrBadRequest.WithMessage("missing signature headers"))
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return jsonapi.RenderError(c, apperror.ErrBadRequest.WithMessage("failed to read request body"))
	}

	if err := h.svc.ReceivePlatform(c.Request().Context(), "interaction_create", signature, timestamp, body); err != nil {
		return jsonapi.RenderError(c, err)
	}
	return jsonapi.Render(c, http.StatusAccepted, jsonapi.Resource{Type: "webhook-receipts", ID: "platform", Attributes: ReceiveResponse{Accepted: true}}, nil)
}

package bulkscan

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/jsonapi"
)

// Handler serves the bulk-scan HTTP surface.
type Handler struct {
	svc *Service
}

// NewHandler builds a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Initiate handles POST /api/bulk-scans
func (h *Handler) Initiate(c echo.Context) error {
	var req InitiateRequest
	if err := c.Bind(&req); err != nil {
		return jsonapi.RenderError(c, apperror.ErrBadRequest.WithMessage("invalid request body"))
	}

	communityServerID, err := uuid.Parse(req.CommunityServerID)
	if err != nil {
		return jsonapi.RenderError(c, apperror.ErrBadRequest.WithMessage("invalid community_server_id"))
	}
	if req.WindowDays <= 0 {
		return jsonapi.RenderError(c, apperror.ErrBadRequest.WithMessage("window_days must be positive"))
	}

	scan, err := h.svc.Initiate(c.Request().Context(), communityServerID, req.ChannelIDs, req.WindowDays, req.VibecheckDebugMode)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}

	resp := InitiateResponse{ScanID: scan.ID.String(), Status: scan.Status}
	return jsonapi.Render(c, http.StatusAccepted, jsonapi.Resource{Type: "bulk-scans", ID: scan.ID.String(), Attributes: resp}, nil)
}

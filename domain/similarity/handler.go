package similarity

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/jsonapi"
)

// Handler serves the previously-seen lookup HTTP surface.
type Handler struct {
	svc *Service
}

// NewHandler builds a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Lookup handles POST /api/similarity/previously-seen
func (h *Handler) Lookup(c echo.Context) error {
	var req LookupRequest
	if err := c.Bind(&req); err != nil {
		return jsonapi.RenderError(c, apperror.ErrBadRequest.WithMessage("invalid request body"))
	}
	if req.Text == "" {
		return jsonapi.RenderError(c, apperror.ErrBadRequest.WithMessage("text is required"))
	}
	communityID, err := uuid.Parse(req.CommunityID)
	if err != nil {
		return jsonapi.RenderError(c, apperror.ErrBadRequest.WithMessage("invalid community_id"))
	}

	matches, err := h.svc.FindPreviouslySeen(c.Request().Context(), req.Text, communityID, req.TopK)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}

	resp := LookupResponse{Matches: matches}
	return jsonapi.Render(c, http.StatusOK, jsonapi.Resource{Type: "previously-seen-lookups", ID: communityID.String(), Attributes: resp}, nil)
}

package scoring

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/jsonapi"
)

// Handler serves the scoring-adapter HTTP surface: tier/status lookups and triggering a
// batch-scoring run for a community.
type Handler struct {
	svc *Service
}

// NewHandler builds a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func parseCommunityID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.UUID{}, apperror.ErrBadRequest.WithMessage("invalid community id")
	}
	return id, nil
}

// GetTier handles GET /api/community-servers/:id/scoring-tier
func (h *Handler) GetTier(c echo.Context) error {
	id, err := parseCommunityID(c)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}

	tier, cfg, err := h.svc.GetTier(c.Request().Context(), id)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}

	resp := TierResponse{
		Tier:                 tier,
		Scorers:              cfg.Scorers,
		RequiresFullPipeline: cfg.RequiresFullPipeline,
		EnableClustering:     cfg.EnableClustering,
		ConfidenceWarnings:   cfg.ConfidenceWarnings,
	}
	return jsonapi.Render(c, http.StatusOK, jsonapi.Resource{Type: "scoring-tiers", ID: id.String(), Attributes: resp}, nil)
}

// GetBatchScoringStatus handles GET /api/community-servers/:id/scoring-status
func (h *Handler) GetBatchScoringStatus(c echo.Context) error {
	id, err := parseCommunityID(c)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}

	status, err := h.svc.GetBatchScoringStatus(c.Request().Context(), id)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}
	return jsonapi.Render(c, http.StatusOK, jsonapi.Resource{Type: "scoring-statuses", ID: id.String(), Attributes: status}, nil)
}

// DispatchScoring handles POST /api/community-servers/:id/score
func (h *Handler) DispatchScoring(c echo.Context) error {
	id, err := parseCommunityID(c)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}

	workflowID, err := h.svc.DispatchScoring(c.Request().Context(), id)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}

	resp := DispatchScoringResponse{
		WorkflowID: workflowID,
		Message:    "scoring dispatched for community " + id.String(),
	}
	return jsonapi.Render(c, http.StatusAccepted, jsonapi.Resource{Type: "scoring-dispatches", ID: workflowID, Attributes: resp}, nil)
}

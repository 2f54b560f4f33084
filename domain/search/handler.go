package search

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
)

// Handler handles HTTP requests for hybrid search and its fusion-weight administration.
type Handler struct {
	svc   *Service
	alpha *AlphaResolver
}

// NewHandler builds a Handler.
func NewHandler(svc *Service, alpha *AlphaResolver) *Handler {
	return &Handler{svc: svc, alpha: alpha}
}

// Search handles POST /api/search.
func (h *Handler) Search(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	if req.Query == "" {
		return apperror.ErrBadRequest.WithMessage("query is required")
	}
	if len(req.Query) > 800 {
		return apperror.ErrBadRequest.WithMessage("query must be 800 characters or less")
	}

	resp, err := h.svc.Search(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// GetFusionWeights handles GET /api/search/admin/fusion-weights.
func (h *Handler) GetFusionWeights(c echo.Context) error {
	resp, err := h.alpha.ListOverrides(c.Request().Context())
	if err != nil {
		return apperror.ErrInternal.WithInternal(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// PutFusionWeights handles PUT /api/search/admin/fusion-weights.
func (h *Handler) PutFusionWeights(c echo.Context) error {
	var req SetAlphaRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	ctx := c.Request().Context()
	var err error
	if req.Dataset == "" {
		err = h.alpha.SetDefault(ctx, req.Alpha)
	} else {
		err = h.alpha.SetOverride(ctx, req.Dataset, req.Alpha)
	}
	if err != nil {
		return apperror.ErrBadRequest.WithMessage(err.Error())
	}
	return c.NoContent(http.StatusOK)
}

// DeleteFusionWeight handles DELETE /api/search/admin/fusion-weights/:dataset.
func (h *Handler) DeleteFusionWeight(c echo.Context) error {
	dataset := c.Param("dataset")
	if err := h.alpha.DeleteOverride(c.Request().Context(), dataset); err != nil {
		return apperror.ErrBadRequest.WithMessage(err.Error())
	}
	return c.NoContent(http.StatusOK)
}

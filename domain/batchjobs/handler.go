package batchjobs

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/jsonapi"
)

// Handler serves the batch job HTTP surface, rendering every success response as a
// JSON:API document via pkg/jsonapi.
type Handler struct {
	svc *Service
}

// NewHandler builds a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func parseJobID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.UUID{}, apperror.ErrBadRequest.WithMessage("invalid job id")
	}
	return id, nil
}

// Create handles POST /batch-jobs
func (h *Handler) Create(c echo.Context) error {
	var req CreateJobRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	job, err := h.svc.CreateJob(c.Request().Context(), &req)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}
	return jsonapi.Render(c, http.StatusCreated, jobResource(job), nil)
}

// Get handles GET /batch-jobs/:id
func (h *Handler) Get(c echo.Context) error {
	id, err := parseJobID(c)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}

	job, err := h.svc.GetJob(c.Request().Context(), id)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}
	return jsonapi.Render(c, http.StatusOK, jobResource(job), nil)
}

// Start handles POST /batch-jobs/:id/start
func (h *Handler) Start(c echo.Context) error {
	id, err := parseJobID(c)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}

	job, err := h.svc.StartJob(c.Request().Context(), id)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}
	return jsonapi.Render(c, http.StatusOK, jobResource(job), nil)
}

// UpdateProgress handles PATCH /batch-jobs/:id/progress
func (h *Handler) UpdateProgress(c echo.Context) error {
	id, err := parseJobID(c)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}

	var req UpdateProgressRequest
	if err := c.Bind(&req); err != nil {
		return jsonapi.RenderError(c, apperror.ErrBadRequest.WithMessage("invalid request body"))
	}

	job, err := h.svc.UpdateProgress(c.Request().Context(), id, &req)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}
	return jsonapi.Render(c, http.StatusOK, jobResource(job), nil)
}

// GetProgress handles GET /batch-jobs/:id/progress
func (h *Handler) GetProgress(c echo.Context) error {
	id, err := parseJobID(c)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}

	progress, err := h.svc.GetProgress(c.Request().Context(), id)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}
	return jsonapi.Render(c, http.StatusOK, progressResource(progress), nil)
}

// Complete handles POST /batch-jobs/:id/complete
func (h *Handler) Complete(c echo.Context) error {
	id, err := parseJobID(c)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}

	job, err := h.svc.CompleteJob(c.Request().Context(), id)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}
	return jsonapi.Render(c, http.StatusOK, jobResource(job), nil)
}

// Fail handles POST /batch-jobs/:id/fail
func (h *Handler) Fail(c echo.Context) error {
	id, err := parseJobID(c)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}

	var req FailJobRequest
	if err := c.Bind(&req); err != nil {
		return jsonapi.RenderError(c, apperror.ErrBadRequest.WithMessage("invalid request body"))
	}

	job, err := h.svc.FailJob(c.Request().Context(), id, &req)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}
	return jsonapi.Render(c, http.StatusOK, jobResource(job), nil)
}

// Cancel handles POST /batch-jobs/:id/cancel
func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseJobID(c)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}

	job, err := h.svc.CancelJob(c.Request().Context(), id)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}
	return jsonapi.Render(c, http.StatusOK, jobResource(job), nil)
}

func jobResource(job *JobResponse) jsonapi.Resource {
	return jsonapi.Resource{Type: "batch-jobs", ID: job.ID.String(), Attributes: job}
}

func progressResource(p *ProgressResponse) jsonapi.Resource {
	return jsonapi.Resource{Type: "batch-job-progress", ID: p.JobID.String(), Attributes: p}
}

package chunking

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opennotes-ai/opennotes-server/domain/batchjobs"
	"github.com/opennotes-ai/opennotes-server/domain/chunks"
	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/jsonapi"
)

// Handler serves the rechunk-job HTTP surface.
type Handler struct {
	runner *RechunkJobRunner
}

// NewHandler builds a Handler.
func NewHandler(runner *RechunkJobRunner) *Handler {
	return &Handler{runner: runner}
}

type createRechunkJobRequest struct {
	CommunityServerID string `json:"community_server_id"`
	BatchSize         int    `json:"batch_size"`
}

func (h *Handler) rechunk(c echo.Context, sourceType string) error {
	var req createRechunkJobRequest
	if err := c.Bind(&req); err != nil {
		return jsonapi.RenderError(c, apperror.ErrBadRequest.WithMessage("invalid request body"))
	}
	if req.CommunityServerID == "" {
		return jsonapi.RenderError(c, apperror.ErrBadRequest.WithMessage("community_server_id is required"))
	}

	job, err := h.runner.CreateJob(c.Request().Context(), sourceType, req.CommunityServerID, req.BatchSize)
	if err != nil {
		return jsonapi.RenderError(c, err)
	}
	return jsonapi.Render(c, http.StatusAccepted, jobResource(job), nil)
}

// RechunkFactChecks handles POST /rechunk/fact-checks
func (h *Handler) RechunkFactChecks(c echo.Context) error {
	return h.rechunk(c, chunks.SourceTypeFactCheck)
}

// RechunkPreviouslySeen handles POST /rechunk/previously-seen
func (h *Handler) RechunkPreviouslySeen(c echo.Context) error {
	return h.rechunk(c, chunks.SourceTypePreviouslySeen)
}

func jobResource(job *batchjobs.JobResponse) jsonapi.Resource {
	return jsonapi.Resource{Type: "batch-jobs", ID: job.ID.String(), Attributes: job}
}

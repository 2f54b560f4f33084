package batchjobs

import (
	"time"

	"github.com/google/uuid"
)

// CreateJobRequest creates a new batch job. ResourceID, when non-empty, scopes the
// exclusive-per-resource guard; omit it for job types that allow multiple concurrent
// instances.
type CreateJobRequest struct {
	JobType    string         `json:"job_type"`
	ResourceID string         `json:"resource_id,omitempty"`
	TotalTasks int            `json:"total_tasks"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// UpdateProgressRequest reports incremental progress on an in-progress job.
type UpdateProgressRequest struct {
	CompletedDelta int    `json:"completed_delta"`
	FailedDelta    int    `json:"failed_delta"`
	CurrentItem    string `json:"current_item,omitempty"`
}

// FailJobRequest carries the terminal error message for FailJob.
type FailJobRequest struct {
	Error string `json:"error"`
}

// JobResponse is the public representation of a BatchJob.
type JobResponse struct {
	ID             uuid.UUID      `json:"id"`
	JobType        string         `json:"job_type"`
	Status         string         `json:"status"`
	TotalTasks     int            `json:"total_tasks"`
	CompletedTasks int            `json:"completed_tasks"`
	FailedTasks    int            `json:"failed_tasks"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	LastError      *string        `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func toJobResponse(j *BatchJob) *JobResponse {
	return &JobResponse{
		ID:             j.ID,
		JobType:        j.JobType,
		Status:         j.Status,
		TotalTasks:     j.TotalTasks,
		CompletedTasks: j.CompletedTasks,
		FailedTasks:    j.FailedTasks,
		Metadata:       j.Metadata,
		LastError:      j.LastError,
		CreatedAt:      j.CreatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

// ProgressResponse is the result of GetProgress: the cache-backed fast path when
// available, otherwise the durable counters.
type ProgressResponse struct {
	JobID          uuid.UUID `json:"job_id"`
	Status         string    `json:"status"`
	TotalTasks     int       `json:"total_tasks"`
	CompletedTasks int       `json:"completed_tasks"`
	FailedTasks    int       `json:"failed_tasks"`
	Source         string    `json:"source"` // "cache" or "database"
}

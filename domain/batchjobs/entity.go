package batchjobs

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Job statuses. Transitions form a DAG: PENDING -> IN_PROGRESS -> {COMPLETED, FAILED,
// CANCELLED}; PENDING may also go directly to CANCELLED. COMPLETED/FAILED/CANCELLED are
// absorbing.
const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
)

// JSONMap is a helper type for JSONB map fields.
type JSONMap map[string]any

// BatchJob is a unit of background work: rechunk, import, scrape, and promotion jobs are
// all BatchJobs distinguished by a JobType prefix (e.g. "rechunk:fact_check",
// "import:discord"), with type-specific keys living in Metadata.
type BatchJob struct {
	bun.BaseModel `bun:"table:opennotes.batch_jobs,alias:bj"`

	ID             uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	JobType        string     `bun:"job_type,notnull" json:"job_type"`
	Status         string     `bun:"status,notnull,default:'PENDING'" json:"status"`
	TotalTasks     int        `bun:"total_tasks,notnull,default:0" json:"total_tasks"`
	CompletedTasks int        `bun:"completed_tasks,notnull,default:0" json:"completed_tasks"`
	FailedTasks    int        `bun:"failed_tasks,notnull,default:0" json:"failed_tasks"`
	Metadata       JSONMap    `bun:"metadata,type:jsonb,notnull,default:'{}'::jsonb" json:"metadata"`
	LastError      *string    `bun:"last_error" json:"last_error,omitempty"`
	CreatedAt      time.Time  `bun:"created_at,notnull,default:now()" json:"created_at"`
	StartedAt      *time.Time `bun:"started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time `bun:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}

// IsTerminal reports whether Status is one of the absorbing states.
func (j *BatchJob) IsTerminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsCancellable reports whether Status permits a transition to CANCELLED.
func (j *BatchJob) IsCancellable() bool {
	return j.Status == StatusPending || j.Status == StatusInProgress
}

// jobLock is the sentinel row the concurrent-creation guard locks with SELECT ... FOR
// UPDATE to serialize "at most one active job of this type for this resource" checks.
type jobLock struct {
	bun.BaseModel `bun:"table:opennotes.batch_job_locks,alias:bjl"`

	JobType    string `bun:"job_type,pk"`
	ResourceID string `bun:"resource_id,pk"`
}

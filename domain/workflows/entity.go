package workflows

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// JSONMap is a helper type for JSONB payload fields.
type JSONMap map[string]any

// WorkflowExecution is one durable run of a named workflow. Its column layout matches
// what internal/jobs.Queue expects (status/scheduled_at/priority/started_at/
// completed_at/attempt_count/last_error), so the generic dequeue-with-row-lock queue the
// teacher already built serves this table unmodified.
type WorkflowExecution struct {
	bun.BaseModel `bun:"table:opennotes.workflow_executions,alias:we"`

	ID               uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	WorkflowType     string     `bun:"workflow_type,notnull" json:"workflow_type"`
	DeduplicationID  *string    `bun:"deduplication_id" json:"deduplication_id,omitempty"`
	Status           string     `bun:"status,notnull,default:'pending'" json:"status"`
	Priority         int        `bun:"priority,notnull,default:0" json:"priority"`
	Payload          JSONMap    `bun:"payload,type:jsonb,notnull,default:'{}'::jsonb" json:"payload"`
	StepResults      JSONMap    `bun:"step_results,type:jsonb,notnull,default:'{}'::jsonb" json:"step_results"`
	AttemptCount     int        `bun:"attempt_count,notnull,default:0" json:"attempt_count"`
	LastError        *string    `bun:"last_error" json:"last_error,omitempty"`
	ScheduledAt      *time.Time `bun:"scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt        *time.Time `bun:"started_at" json:"started_at,omitempty"`
	CompletedAt      *time.Time `bun:"completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time  `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}

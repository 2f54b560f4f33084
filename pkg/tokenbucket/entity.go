package tokenbucket

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Pool is a named weighted semaphore: up to Capacity units of weight may be held open at
// once across every TokenHold referencing it.
type Pool struct {
	bun.BaseModel `bun:"table:opennotes.token_bucket_pools,alias:tbp"`

	Name      string    `bun:"name,pk" json:"name"`
	Capacity  int       `bun:"capacity,notnull" json:"capacity"`
	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// Hold records one outstanding claim of weight units against a Pool on behalf of a
// workflow. An open hold has ReleasedAt == nil.
type Hold struct {
	bun.BaseModel `bun:"table:opennotes.token_holds,alias:th"`

	ID         uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	PoolName   string     `bun:"pool_name,notnull" json:"poolName"`
	WorkflowID string     `bun:"workflow_id,notnull" json:"workflowId"`
	Weight     int        `bun:"weight,notnull" json:"weight"`
	AcquiredAt time.Time  `bun:"acquired_at,notnull,default:now()" json:"acquiredAt"`
	ReleasedAt *time.Time `bun:"released_at" json:"releasedAt,omitempty"`
}

// Open reports whether this hold has not yet been released.
func (h *Hold) Open() bool {
	return h.ReleasedAt == nil
}

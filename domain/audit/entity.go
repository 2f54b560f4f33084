package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Log is a persisted audit record for one state-changing HTTP request. UserID is
// nullable in the table, but the middleware only audits requests it can attribute to a
// user bearer token (service-credential requests are not audited), so the rows it
// writes always carry one.
type Log struct {
	bun.BaseModel `bun:"table:opennotes.audit_logs,alias:al"`

	ID           uuid.UUID      `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	UserID       *uuid.UUID     `bun:"user_id,type:uuid" json:"user_id,omitempty"`
	Action       string         `bun:"action,notnull" json:"action"`
	ResourceType string         `bun:"resource_type,notnull" json:"resource_type"`
	ResourceID   *string        `bun:"resource_id" json:"resource_id,omitempty"`
	Details      map[string]any `bun:"details,type:jsonb" json:"details,omitempty"`
	IPAddress    *string        `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent    *string        `bun:"user_agent" json:"user_agent,omitempty"`
	StartedAt    time.Time      `bun:"started_at,notnull" json:"started_at"`
	CreatedAt    time.Time      `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// Entry is what the middleware hands to Service.Persist — everything Log needs, still
// detached from the bun model so callers outside this package don't need to import bun.
type Entry struct {
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   *string
	Details      map[string]any
	IPAddress    *string
	UserAgent    *string
	StartedAt    time.Time
}

// PersistedPayload is the AUDIT_LOG_PERSISTED event body.
type PersistedPayload struct {
	LogID        uuid.UUID  `json:"log_id"`
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	Action       string     `json:"action"`
	ResourceType string     `json:"resource_type"`
}

package webhooks

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Registration statuses.
const (
	StatusActive   = "ACTIVE"
	StatusDisabled = "DISABLED"
)

// Registration is an internally-registered webhook sender: a community server's
// integration is issued an HMAC secret at registration time and signs every payload
// it sends back to this platform with it.
type Registration struct {
	bun.BaseModel `bun:"table:opennotes.webhooks,alias:wh"`

	ID                uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	CommunityServerID uuid.UUID `bun:"community_server_id,notnull,type:uuid" json:"community_server_id"`
	Label             string    `bun:"label,notnull" json:"label"`
	Secret            string    `bun:"secret,notnull" json:"-"`
	Status            string    `bun:"status,notnull,default:'ACTIVE'" json:"status"`
	CreatedAt         time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt         time.Time `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}

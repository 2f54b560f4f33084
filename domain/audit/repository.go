package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// Repository persists Log rows.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository builds a Repository bound to db.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log.With(logger.Scope("audit.repo"))}
}

// Create inserts a new audit log row.
func (r *Repository) Create(ctx context.Context, entry Entry) (*Log, error) {
	row := &Log{
		UserID:       entry.UserID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Details:      entry.Details,
		IPAddress:    entry.IPAddress,
		UserAgent:    entry.UserAgent,
		StartedAt:    entry.StartedAt,
	}
	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("insert audit log: %w", err))
	}
	return row, nil
}

package webhooks

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// Repository persists Registration rows.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository builds a Repository bound to db.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log.With(logger.Scope("webhooks.repo"))}
}

// Create inserts a new ACTIVE registration row.
func (r *Repository) Create(ctx context.Context, communityServerID uuid.UUID, label, secret string) (*Registration, error) {
	reg := &Registration{
		CommunityServerID: communityServerID,
		Label:             label,
		Secret:            secret,
		Status:            StatusActive,
	}
	if _, err := r.db.NewInsert().Model(reg).Exec(ctx); err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("insert webhook registration: %w", err))
	}
	return reg, nil
}

// GetByID fetches a registration by id, translating a missing row to apperror.ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Registration, error) {
	var reg Registration
	err := r.db.NewSelect().Model(&reg).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NewNotFound("webhook", id.String())
		}
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("get webhook registration: %w", err))
	}
	return &reg, nil
}

// ListByCommunityServer returns every registration for a community server, newest first.
func (r *Repository) ListByCommunityServer(ctx context.Context, communityServerID uuid.UUID) ([]*Registration, error) {
	var regs []*Registration
	err := r.db.NewSelect().Model(&regs).
		Where("community_server_id = ?", communityServerID).
		OrderExpr("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("list webhook registrations: %w", err))
	}
	return regs, nil
}

// Disable flips a registration to DISABLED.
func (r *Repository) Disable(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*Registration)(nil)).
		Set("status = ?", StatusDisabled).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrInternal.WithInternal(fmt.Errorf("disable webhook registration: %w", err))
	}
	return nil
}

package bulkscan

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// Repository persists Scan rows.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository builds a Repository bound to db.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log.With(logger.Scope("bulkscan.repo"))}
}

// Create inserts a new INITIATED scan row.
func (r *Repository) Create(ctx context.Context, communityServerID uuid.UUID, channelIDs []string, windowDays int, vibecheckDebugMode bool) (*Scan, error) {
	scan := &Scan{
		CommunityServerID:  communityServerID,
		ChannelIDs:         pq.StringArray(channelIDs),
		WindowDays:         windowDays,
		VibecheckDebugMode: vibecheckDebugMode,
		Status:             StatusInitiated,
	}
	if _, err := r.db.NewInsert().Model(scan).Exec(ctx); err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("insert bulk scan: %w", err))
	}
	return scan, nil
}

// GetByID fetches a scan by id, translating a missing row to apperror.ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Scan, error) {
	var scan Scan
	err := r.db.NewSelect().Model(&scan).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NewNotFound("bulk_scan", id.String())
		}
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("get bulk scan: %w", err))
	}
	return &scan, nil
}

// RecordBatch atomically advances messages_scanned by len(messageCount) and moves the
// scan to PROCESSING if it was still INITIATED. Progress counters are concurrently
// updated by nothing else, but the increment is still expressed atomically (never
// read-modify-write) to match the platform's general counter-update policy.
func (r *Repository) RecordBatch(ctx context.Context, id uuid.UUID, batchNumber, messageCount int) error {
	_, err := r.db.NewUpdate().
		Model((*Scan)(nil)).
		Set("messages_scanned = messages_scanned + ?", messageCount).
		Set("last_batch_number = ?", batchNumber).
		Set("status = CASE WHEN status = ? THEN ? ELSE status END", StatusInitiated, StatusProcessing).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrInternal.WithInternal(fmt.Errorf("record bulk scan batch: %w", err))
	}
	return nil
}

// Complete marks a scan COMPLETED.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*Scan)(nil)).
		Set("status = ?", StatusCompleted).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrInternal.WithInternal(fmt.Errorf("complete bulk scan: %w", err))
	}
	return nil
}

// Fail marks a scan FAILED.
func (r *Repository) Fail(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*Scan)(nil)).
		Set("status = ?", StatusFailed).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrInternal.WithInternal(fmt.Errorf("fail bulk scan: %w", err))
	}
	return nil
}

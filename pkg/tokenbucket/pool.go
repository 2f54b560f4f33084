// Package tokenbucket implements a database-backed named weighted semaphore bounding
// concurrent calls to a scarce resource (an LLM or embeddings API) across worker
// processes. State lives in PostgreSQL so it survives worker restarts.
package tokenbucket

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/opennotes-ai/opennotes-server/internal/database"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

var Module = fx.Module("tokenbucket",
	fx.Provide(NewService),
)

// Service implements try_acquire/release/status over Pool and Hold rows.
type Service struct {
	db  bun.IDB
	log *slog.Logger
}

// NewService builds a Service bound to db.
func NewService(db bun.IDB, log *slog.Logger) *Service {
	return &Service{db: db, log: log.With(logger.Scope("tokenbucket"))}
}

// EnsurePool upserts a pool definition, leaving capacity untouched if it already exists
// with a different value (callers that need to resize a pool do so explicitly).
func (s *Service) EnsurePool(ctx context.Context, name string, capacity int) error {
	_, err := s.db.NewInsert().
		Model(&Pool{Name: name, Capacity: capacity}).
		On("CONFLICT (name) DO NOTHING").
		Exec(ctx)
	return err
}

// TryAcquire attempts to claim weight units of poolName on behalf of workflowID. It is
// idempotent: a second call for the same (poolName, workflowID) while the first hold is
// still open returns true without creating a duplicate row. Returns false if the pool is
// missing or would exceed capacity.
func (s *Service) TryAcquire(ctx context.Context, poolName, workflowID string, weight int) (bool, error) {
	tx, err := database.BeginSafeTx(ctx, s.db)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var existing Hold
	err = tx.NewSelect().
		Model(&existing).
		Where("pool_name = ?", poolName).
		Where("workflow_id = ?", workflowID).
		Where("released_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err == nil {
		return true, tx.Commit()
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("lookup existing hold: %w", err)
	}

	var pool Pool
	err = tx.NewSelect().Model(&pool).Where("name = ?", poolName).For("UPDATE").Scan(ctx)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup pool: %w", err)
	}

	var held sql.NullInt64
	err = tx.NewSelect().
		Model((*Hold)(nil)).
		ColumnExpr("COALESCE(SUM(weight), 0)").
		Where("pool_name = ?", poolName).
		Where("released_at IS NULL").
		Scan(ctx, &held)
	if err != nil {
		return false, fmt.Errorf("sum held weight: %w", err)
	}

	if held.Int64+int64(weight) > int64(pool.Capacity) {
		return false, tx.Commit()
	}

	hold := &Hold{PoolName: poolName, WorkflowID: workflowID, Weight: weight}
	if _, err := tx.NewInsert().Model(hold).Exec(ctx); err != nil {
		return false, fmt.Errorf("insert hold: %w", err)
	}

	return true, tx.Commit()
}

// Release marks the open hold for (poolName, workflowID) as released, returning whether
// a row was affected.
func (s *Service) Release(ctx context.Context, poolName, workflowID string) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*Hold)(nil)).
		Set("released_at = now()").
		Where("pool_name = ?", poolName).
		Where("workflow_id = ?", workflowID).
		Where("released_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("release hold: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// OpenHold describes one currently-held claim, as returned by Status.
type OpenHold struct {
	WorkflowID string    `json:"workflowId"`
	Weight     int       `json:"weight"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// PoolStatus is the result of Status.
type PoolStatus struct {
	Capacity  int        `json:"capacity"`
	Held      int        `json:"held"`
	Available int        `json:"available"`
	Holds     []OpenHold `json:"holds"`
}

// Status reports capacity, current held weight, and the open holds of poolName.
func (s *Service) Status(ctx context.Context, poolName string) (*PoolStatus, error) {
	var pool Pool
	if err := s.db.NewSelect().Model(&pool).Where("name = ?", poolName).Scan(ctx); err != nil {
		return nil, fmt.Errorf("lookup pool: %w", err)
	}

	var holds []Hold
	if err := s.db.NewSelect().
		Model(&holds).
		Where("pool_name = ?", poolName).
		Where("released_at IS NULL").
		Order("acquired_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list open holds: %w", err)
	}

	status := &PoolStatus{Capacity: pool.Capacity}
	for _, h := range holds {
		status.Held += h.Weight
		status.Holds = append(status.Holds, OpenHold{
			WorkflowID: h.WorkflowID,
			Weight:     h.Weight,
			AcquiredAt: h.AcquiredAt,
		})
	}
	status.Available = status.Capacity - status.Held

	return status, nil
}

// ReclaimStaleHolds releases every open hold whose workflow_id appears in
// terminalWorkflowIDs, for use by a periodic sweep that reclaims holds abandoned by
// workflows that reached a terminal state without releasing.
func (s *Service) ReclaimStaleHolds(ctx context.Context, terminalWorkflowIDs []string) (int, error) {
	if len(terminalWorkflowIDs) == 0 {
		return 0, nil
	}

	res, err := s.db.NewUpdate().
		Model((*Hold)(nil)).
		Set("released_at = now()").
		Where("released_at IS NULL").
		Where("workflow_id IN (?)", bun.In(terminalWorkflowIDs)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale holds: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Warn("reclaimed stale token-bucket holds", slog.Int64("count", n))
	}
	return int(n), nil
}

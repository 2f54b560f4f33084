package batchjobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/opennotes-ai/opennotes-server/internal/database"
	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// ActiveJobExists is returned by CreateExclusive when resourceID already has a
// non-terminal job of the same type. Details carries the conflicting job's id so callers
// can surface it without a second lookup.
func ActiveJobExists(conflictingID uuid.UUID) *apperror.Error {
	return apperror.ErrConflict.
		WithMessage("an active job of this type already exists for this resource").
		WithDetails(map[string]any{"conflicting_job_id": conflictingID.String()})
}

// Repository persists BatchJob rows and enforces the exclusive-per-resource creation
// guard via a row-locked sentinel table.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository builds a Repository bound to db.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log.With(logger.Scope("batchjobs.repo"))}
}

// Create inserts a new PENDING job with no exclusivity check.
func (r *Repository) Create(ctx context.Context, jobType string, totalTasks int, metadata JSONMap) (*BatchJob, error) {
	if metadata == nil {
		metadata = JSONMap{}
	}
	job := &BatchJob{
		JobType:    jobType,
		Status:     StatusPending,
		TotalTasks: totalTasks,
		Metadata:   metadata,
	}
	if _, err := r.db.NewInsert().Model(job).Exec(ctx); err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("insert batch job: %w", err))
	}
	return job, nil
}

// CreateExclusive inserts a new PENDING job for (jobType, resourceID), but only if no
// other non-terminal job of that type already holds resourceID. It locks a sentinel row
// via SELECT ... FOR UPDATE so concurrent attempts against the same (jobType,
// resourceID) serialize: under N concurrent callers, exactly one succeeds when none
// exists yet, and zero succeed when one is already active.
func (r *Repository) CreateExclusive(ctx context.Context, jobType, resourceID string, totalTasks int, metadata JSONMap) (*BatchJob, error) {
	if metadata == nil {
		metadata = JSONMap{}
	}
	if metadata["resource_id"] == nil {
		metadata["resource_id"] = resourceID
	}

	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.NewInsert().
		Model(&jobLock{JobType: jobType, ResourceID: resourceID}).
		On("CONFLICT (job_type, resource_id) DO NOTHING").
		Exec(ctx); err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("ensure job lock row: %w", err))
	}

	var lock jobLock
	if err := tx.NewSelect().
		Model(&lock).
		Where("job_type = ?", jobType).
		Where("resource_id = ?", resourceID).
		For("UPDATE").
		Scan(ctx); err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("lock job row: %w", err))
	}

	var existing BatchJob
	err = tx.NewSelect().
		Model(&existing).
		Where("job_type = ?", jobType).
		Where("metadata->>'resource_id' = ?", resourceID).
		Where("status IN (?)", bun.In([]string{StatusPending, StatusInProgress})).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return nil, ActiveJobExists(existing.ID)
	}
	if err != sql.ErrNoRows {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("check active job: %w", err))
	}

	job := &BatchJob{
		JobType:    jobType,
		Status:     StatusPending,
		TotalTasks: totalTasks,
		Metadata:   metadata,
	}
	if _, err := tx.NewInsert().Model(job).Exec(ctx); err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("insert batch job: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("commit tx: %w", err))
	}
	return job, nil
}

// GetByID fetches a job by id, translating a missing row to apperror.ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*BatchJob, error) {
	var job BatchJob
	err := r.db.NewSelect().Model(&job).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.ErrNotFound.WithMessage(fmt.Sprintf("batch job %q not found", id))
		}
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("get batch job: %w", err))
	}
	return &job, nil
}

// Start transitions a PENDING job to IN_PROGRESS, stamping started_at. Returns
// apperror.ErrBadRequest if the job is not currently PENDING.
func (r *Repository) Start(ctx context.Context, id uuid.UUID) (*BatchJob, error) {
	res, err := r.db.NewUpdate().
		Model((*BatchJob)(nil)).
		Set("status = ?", StatusInProgress).
		Set("started_at = now()").
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("status = ?", StatusPending).
		Exec(ctx)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("start batch job: %w", err))
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// UpdateProgress atomically increments completed_tasks/failed_tasks and optionally
// records the item currently being processed in metadata.
func (r *Repository) UpdateProgress(ctx context.Context, id uuid.UUID, completedDelta, failedDelta int, currentItem string) (*BatchJob, error) {
	q := r.db.NewUpdate().
		Model((*BatchJob)(nil)).
		Set("completed_tasks = completed_tasks + ?", completedDelta).
		Set("failed_tasks = failed_tasks + ?", failedDelta).
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("status = ?", StatusInProgress)

	if currentItem != "" {
		patch, err := json.Marshal(map[string]any{"current_item": currentItem})
		if err != nil {
			return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("marshal progress patch: %w", err))
		}
		q = q.Set("metadata = metadata || ?::jsonb", string(patch))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("update batch job progress: %w", err))
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Complete marks a job COMPLETED, stamping completed_at. Valid from IN_PROGRESS only.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID) (*BatchJob, error) {
	res, err := r.db.NewUpdate().
		Model((*BatchJob)(nil)).
		Set("status = ?", StatusCompleted).
		Set("completed_at = now()").
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("status = ?", StatusInProgress).
		Exec(ctx)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("complete batch job: %w", err))
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Fail marks a job FAILED, recording errMsg and stamping completed_at. Valid from
// PENDING or IN_PROGRESS.
func (r *Repository) Fail(ctx context.Context, id uuid.UUID, errMsg string) (*BatchJob, error) {
	res, err := r.db.NewUpdate().
		Model((*BatchJob)(nil)).
		Set("status = ?", StatusFailed).
		Set("last_error = ?", errMsg).
		Set("completed_at = now()").
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("status IN (?)", bun.In([]string{StatusPending, StatusInProgress})).
		Exec(ctx)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("fail batch job: %w", err))
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Cancel marks a job CANCELLED. Valid from PENDING or IN_PROGRESS only; returns
// apperror.ErrBadRequest otherwise.
func (r *Repository) Cancel(ctx context.Context, id uuid.UUID) (*BatchJob, error) {
	res, err := r.db.NewUpdate().
		Model((*BatchJob)(nil)).
		Set("status = ?", StatusCancelled).
		Set("completed_at = now()").
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("status IN (?)", bun.In([]string{StatusPending, StatusInProgress})).
		Exec(ctx)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("cancel batch job: %w", err))
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// ListStale returns non-terminal jobs whose updated_at is older than the given
// threshold, for the stale-job sweep.
func (r *Repository) ListStale(ctx context.Context, olderThanHours float64) ([]BatchJob, error) {
	var jobs []BatchJob
	err := r.db.NewSelect().
		Model(&jobs).
		Where("status IN (?)", bun.In([]string{StatusPending, StatusInProgress})).
		Where("updated_at < now() - ? * interval '1 hour'", olderThanHours).
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("list stale batch jobs: %w", err))
	}
	return jobs, nil
}

// ListStuck returns non-terminal jobs whose updated_at is older than the given threshold,
// for the stuck-job monitor (read-only — callers must not mutate these rows).
func (r *Repository) ListStuck(ctx context.Context, olderThanMinutes float64) ([]BatchJob, error) {
	var jobs []BatchJob
	err := r.db.NewSelect().
		Model(&jobs).
		Where("status IN (?)", bun.In([]string{StatusPending, StatusInProgress})).
		Where("updated_at < now() - ? * interval '1 minute'", olderThanMinutes).
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("list stuck batch jobs: %w", err))
	}
	return jobs, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperror.ErrInternal.WithInternal(fmt.Errorf("rows affected: %w", err))
	}
	if n == 0 {
		return apperror.ErrBadRequest.WithMessage("batch job is not in a state that allows this transition")
	}
	return nil
}

package workflows

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/opennotes-ai/opennotes-server/internal/config"
	"github.com/opennotes-ai/opennotes-server/internal/jobs"
	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

const tableName = "opennotes.workflow_executions"

// Repository persists WorkflowExecution rows. Dequeue/MarkCompleted/MarkFailed/
// RecoverStaleJobs are delegated to the teacher's generic internal/jobs.Queue, which
// already implements FOR UPDATE SKIP LOCKED dequeue and exponential-backoff retry
// against any table matching this column layout.
type Repository struct {
	db    bun.IDB
	queue *jobs.Queue
	log   *slog.Logger
}

// NewRepository builds a Repository bound to db, configuring the shared jobs.Queue from
// cfg.Workflows.
func NewRepository(db bun.IDB, cfg *config.Config, log *slog.Logger) *Repository {
	log = log.With(logger.Scope("workflows.repo"))

	qcfg := jobs.DefaultQueueConfig(tableName, "id")
	qcfg.MaxAttempts = cfg.Workflows.MaxAttempts
	qcfg.BaseRetryDelaySec = cfg.Workflows.BaseRetryDelaySec
	qcfg.MaxRetryDelaySec = cfg.Workflows.MaxRetryDelaySec
	qcfg.BatchSize = cfg.Workflows.BatchSize

	return &Repository{db: db, queue: jobs.NewQueue(db, qcfg, log), log: log}
}

// Enqueue inserts a new pending execution. When deduplicationID is non-empty and an
// execution with that id already exists, the existing row is returned instead of
// creating a duplicate.
func (r *Repository) Enqueue(ctx context.Context, workflowType, deduplicationID string, payload JSONMap) (*WorkflowExecution, error) {
	if payload == nil {
		payload = JSONMap{}
	}

	exec := &WorkflowExecution{
		WorkflowType: workflowType,
		Status:       string(jobs.StatusPending),
		Payload:      payload,
	}
	if deduplicationID != "" {
		exec.DeduplicationID = &deduplicationID
	}

	q := r.db.NewInsert().Model(exec)
	if deduplicationID != "" {
		q = q.On("CONFLICT (deduplication_id) DO NOTHING")
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("enqueue workflow: %w", err))
	}

	if n, _ := res.RowsAffected(); n > 0 {
		return exec, nil
	}

	existing, err := r.GetByDeduplicationID(ctx, deduplicationID)
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// GetByID fetches an execution by id.
func (r *Repository) GetByID(ctx context.Context, id string) (*WorkflowExecution, error) {
	var exec WorkflowExecution
	err := r.db.NewSelect().Model(&exec).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.ErrNotFound.WithMessage(fmt.Sprintf("workflow execution %q not found", id))
		}
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("get workflow execution: %w", err))
	}
	return &exec, nil
}

// GetByDeduplicationID fetches an execution by its deduplication id.
func (r *Repository) GetByDeduplicationID(ctx context.Context, deduplicationID string) (*WorkflowExecution, error) {
	var exec WorkflowExecution
	err := r.db.NewSelect().Model(&exec).Where("deduplication_id = ?", deduplicationID).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.ErrNotFound.WithMessage(fmt.Sprintf("workflow execution with deduplication_id %q not found", deduplicationID))
		}
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("get workflow execution by deduplication id: %w", err))
	}
	return &exec, nil
}

// SaveStepResult persists result under stepID in the execution's step_results map, so a
// crash between steps resumes without rerunning already-completed work.
func (r *Repository) SaveStepResult(ctx context.Context, id, stepID string, result any) error {
	patch, err := json.Marshal(map[string]any{stepID: result})
	if err != nil {
		return apperror.ErrInternal.WithInternal(fmt.Errorf("marshal step result: %w", err))
	}

	_, err = r.db.NewUpdate().
		Model((*WorkflowExecution)(nil)).
		Set("step_results = step_results || ?::jsonb", string(patch)).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrInternal.WithInternal(fmt.Errorf("save workflow step result: %w", err))
	}
	return nil
}

// Dequeue atomically claims up to batchSize pending executions for processing.
func (r *Repository) Dequeue(ctx context.Context, batchSize int) ([]string, error) {
	return r.queue.Dequeue(ctx, batchSize)
}

// MarkCompleted marks an execution completed.
func (r *Repository) MarkCompleted(ctx context.Context, id string) error {
	return r.queue.MarkCompleted(ctx, id)
}

// MarkFailed marks an execution failed, scheduling a retry with exponential backoff
// unless the configured attempt ceiling has been reached.
func (r *Repository) MarkFailed(ctx context.Context, id string, attemptCount int, errMsg string) error {
	return r.queue.MarkFailed(ctx, id, attemptCount, errMsg)
}

// RecoverStale recovers executions stuck in 'processing' past staleThresholdMinutes.
func (r *Repository) RecoverStale(ctx context.Context, staleThresholdMinutes int) (int, error) {
	return r.queue.RecoverStaleJobs(ctx, staleThresholdMinutes)
}

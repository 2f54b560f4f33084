package chunking

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/opennotes-ai/opennotes-server/domain/batchjobs"
	"github.com/opennotes-ai/opennotes-server/domain/chunks"
	"github.com/opennotes-ai/opennotes-server/domain/workflows"
	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/cache"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// defaultRechunkBatchSize bounds how often a running rechunk job flushes progress to
// the batch job's durable counters and cache mirror.
const defaultRechunkBatchSize = 25

func rechunkJobType(sourceType string) string {
	return "rechunk:" + sourceType
}

func rechunkLockOperation(sourceType string) string {
	return sourceType
}

// NoopSourceProvider reports an empty scope for every community. It stands in until a
// source domain (fact-checks, previously-seen messages) is wired to provide real scope.
type NoopSourceProvider struct{}

func (NoopSourceProvider) ListSourceIDs(ctx context.Context, sourceType, communityServerID string) ([]uuid.UUID, error) {
	return nil, nil
}

func (NoopSourceProvider) FetchText(ctx context.Context, sourceType string, sourceID uuid.UUID) (string, error) {
	return "", nil
}

// RechunkJobRunner owns both halves of a rechunk job: creating it under the batch job
// engine's concurrent-creation guard and the distributed rechunk lock (at the HTTP
// layer), then streaming through its scope as a workflow step (in the background
// worker). The endpoint acquires the lock; only the worker releases it, per the
// consistency requirement on rechunk mutual exclusion.
type RechunkJobRunner struct {
	chunks   *Service
	jobs     *batchjobs.Service
	lock     *cache.Lock
	provider SourceProvider
	log      *slog.Logger
}

// NewRechunkJobRunner builds a RechunkJobRunner.
func NewRechunkJobRunner(chunkSvc *Service, jobs *batchjobs.Service, lock *cache.Lock, provider SourceProvider, log *slog.Logger) *RechunkJobRunner {
	return &RechunkJobRunner{
		chunks:   chunkSvc,
		jobs:     jobs,
		lock:     lock,
		provider: provider,
		log:      log.With(logger.Scope("chunking.rechunk")),
	}
}

// RegisterHandlers binds this runner's workflow handlers for every known source type on
// wf. Call once during startup wiring.
func (r *RechunkJobRunner) RegisterHandlers(wf *workflows.Service) {
	wf.RegisterHandler(rechunkJobType(chunks.SourceTypeFactCheck), r.workflowHandler(chunks.SourceTypeFactCheck))
	wf.RegisterHandler(rechunkJobType(chunks.SourceTypePreviouslySeen), r.workflowHandler(chunks.SourceTypePreviouslySeen))
}

// CreateJob starts a rechunk job for communityServerID: it first goes through the batch
// job engine's concurrent-creation guard (one active rechunk job per community per
// source type), then acquires the rechunk lock before dispatching the workflow. Both
// failure modes surface as 409.
func (r *RechunkJobRunner) CreateJob(ctx context.Context, sourceType, communityServerID string, batchSize int) (*batchjobs.JobResponse, error) {
	if batchSize <= 0 {
		batchSize = defaultRechunkBatchSize
	}

	job, err := r.jobs.CreateJob(ctx, &batchjobs.CreateJobRequest{
		JobType:    rechunkJobType(sourceType),
		ResourceID: communityServerID,
		Metadata: map[string]any{
			"community_server_id": communityServerID,
			"batch_size":           batchSize,
			"source_type":          sourceType,
		},
	})
	if err != nil {
		return nil, err
	}

	acquired, err := r.lock.Acquire(ctx, rechunkLockOperation(sourceType), communityServerID, 0)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("acquire rechunk lock: %w", err))
	}
	if !acquired {
		return nil, apperror.ErrConflict.WithMessage("a rechunk job already holds the lock for this community")
	}

	return r.jobs.StartJob(ctx, job.ID)
}

// workflowHandler returns the workflows.HandlerFunc dispatched for a started rechunk job
// of the given source type. It streams through every source entity in scope, rechunking
// each (itself a memoized step, so a crash mid-job resumes without redoing completed
// sources), flushing progress every batchSize sources. Once the job row has been loaded
// it releases the rechunk lock on the way out; a payload without a valid job_id or a job
// that cannot be loaded returns an error without releasing it.
func (r *RechunkJobRunner) workflowHandler(sourceType string) workflows.HandlerFunc {
	return func(ctx context.Context, run workflows.StepRunner, payload map[string]any) error {
		jobIDStr, _ := payload["job_id"].(string)
		jobID, err := uuid.Parse(jobIDStr)
		if err != nil {
			return fmt.Errorf("rechunk workflow payload missing valid job_id: %w", err)
		}

		job, err := r.jobs.GetJob(ctx, jobID)
		if err != nil {
			return fmt.Errorf("load rechunk batch job: %w", err)
		}

		communityServerID, _ := job.Metadata["community_server_id"].(string)
		batchSize := defaultRechunkBatchSize
		if v, ok := job.Metadata["batch_size"].(float64); ok && v > 0 {
			batchSize = int(v)
		}

		releaseLock := func() {
			if err := r.lock.Release(ctx, rechunkLockOperation(sourceType), communityServerID); err != nil {
				r.log.Warn("failed to release rechunk lock",
					slog.String("community_server_id", communityServerID), logger.Error(err))
			}
		}

		rawIDs, err := run.Step(ctx, "list_sources", func(ctx context.Context) (any, error) {
			ids, err := r.provider.ListSourceIDs(ctx, sourceType, communityServerID)
			if err != nil {
				return nil, err
			}
			strs := make([]string, len(ids))
			for i, id := range ids {
				strs[i] = id.String()
			}
			return strs, nil
		})
		if err != nil {
			releaseLock()
			_, _ = r.jobs.FailJob(ctx, jobID, &batchjobs.FailJobRequest{Error: err.Error()})
			return err
		}

		sourceIDStrs := toStringSlice(rawIDs)
		total := len(sourceIDStrs)

		var completedSinceFlush, failedSinceFlush int
		flush := func() {
			if completedSinceFlush == 0 && failedSinceFlush == 0 {
				return
			}
			if _, err := r.jobs.UpdateProgress(ctx, jobID, &batchjobs.UpdateProgressRequest{
				CompletedDelta: completedSinceFlush,
				FailedDelta:    failedSinceFlush,
			}); err != nil {
				r.log.Warn("failed to flush rechunk progress", logger.Error(err))
			}
			completedSinceFlush, failedSinceFlush = 0, 0
		}

		for i, idStr := range sourceIDStrs {
			sourceID, err := uuid.Parse(idStr)
			if err != nil {
				failedSinceFlush++
				continue
			}

			stepID := "source:" + idStr
			_, err = run.Step(ctx, stepID, func(ctx context.Context) (any, error) {
				text, err := r.provider.FetchText(ctx, sourceType, sourceID)
				if err != nil {
					return nil, err
				}
				n, err := r.chunks.RechunkSource(ctx, sourceType, sourceID, text, communityServerID)
				return n, err
			})
			if err != nil {
				r.log.Warn("rechunk failed for source",
					slog.String("source_id", idStr), logger.Error(err))
				failedSinceFlush++
			} else {
				completedSinceFlush++
			}

			if (i+1)%batchSize == 0 || i == total-1 {
				flush()
			}
		}

		releaseLock()
		if _, err := r.jobs.CompleteJob(ctx, jobID); err != nil {
			return fmt.Errorf("complete rechunk batch job: %w", err)
		}
		return nil
	}
}

// toStringSlice normalizes a step result that may be either the original []string
// (same-process, no round trip through jsonb) or the []any a resumed execution's
// persisted step_results unmarshal into.
func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

package batchjobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/cache"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

const (
	defaultStaleThresholdHours   = 24
	defaultStuckThresholdMinutes = 60

	// progressCacheTTL bounds how long a stale JobProgress hash lingers after its last
	// write before GetProgress falls back to the durable counters.
	progressCacheTTL = 48 * time.Hour
)

// Dispatcher enqueues the workflow a started job should run as. It is satisfied by the
// workflow orchestrator (domain/workflows); NoopDispatcher stands in until that package
// is wired so this service can be exercised independently.
type Dispatcher interface {
	Enqueue(ctx context.Context, workflowType, deduplicationID string, payload map[string]any) error
}

// NoopDispatcher discards dispatch requests, logging at debug level. Used where no
// workflow orchestrator is configured.
type NoopDispatcher struct {
	log *slog.Logger
}

// NewNoopDispatcher builds a NoopDispatcher.
func NewNoopDispatcher(log *slog.Logger) *NoopDispatcher {
	return &NoopDispatcher{log: log.With(logger.Scope("batchjobs.noop_dispatcher"))}
}

// Enqueue implements Dispatcher.
func (d *NoopDispatcher) Enqueue(ctx context.Context, workflowType, deduplicationID string, payload map[string]any) error {
	d.log.Debug("no workflow orchestrator configured, dropping dispatch",
		slog.String("workflow_type", workflowType),
		slog.String("deduplication_id", deduplicationID),
	)
	return nil
}

// Service implements the batch job lifecycle: creation (plain or exclusive-per-resource),
// start/progress/completion transitions, cache-backed progress reads, and the two
// scheduled cleanup sweeps.
type Service struct {
	repo       *Repository
	cache      *cache.Client
	dispatcher Dispatcher
	log        *slog.Logger
}

// NewService builds a Service.
func NewService(repo *Repository, cacheClient *cache.Client, dispatcher Dispatcher, log *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		cache:      cacheClient,
		dispatcher: dispatcher,
		log:        log.With(logger.Scope("batchjobs.svc")),
	}
}

func progressCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("batchjob:progress:%s", id)
}

// CreateJob creates a PENDING job. When req.ResourceID is set it goes through the
// exclusive-per-resource guard (Repository.CreateExclusive); otherwise no exclusivity
// constraint applies.
func (s *Service) CreateJob(ctx context.Context, req *CreateJobRequest) (*JobResponse, error) {
	if req.JobType == "" {
		return nil, apperror.ErrBadRequest.WithMessage("job_type is required")
	}

	var job *BatchJob
	var err error
	if req.ResourceID != "" {
		job, err = s.repo.CreateExclusive(ctx, req.JobType, req.ResourceID, req.TotalTasks, JSONMap(req.Metadata))
	} else {
		job, err = s.repo.Create(ctx, req.JobType, req.TotalTasks, JSONMap(req.Metadata))
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("batch job created",
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", job.JobType),
	)
	return toJobResponse(job), nil
}

// StartJob transitions a job to IN_PROGRESS and dispatches its workflow on the
// orchestrator, deduplicated on the job id so a retried start request never double-runs.
func (s *Service) StartJob(ctx context.Context, id uuid.UUID) (*JobResponse, error) {
	job, err := s.repo.Start(ctx, id)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"job_id":      job.ID.String(),
		"job_type":    job.JobType,
		"total_tasks": job.TotalTasks,
	}
	if err := s.dispatcher.Enqueue(ctx, job.JobType, job.ID.String(), payload); err != nil {
		s.log.Warn("workflow dispatch failed", slog.String("job_id", job.ID.String()), logger.Error(err))
	}

	return toJobResponse(job), nil
}

// UpdateProgress atomically increments the durable counters and mirrors the running
// totals into the cache via HINCRBY so concurrent worker coroutines never lose a write,
// and readers get near-real-time progress without hitting the database.
func (s *Service) UpdateProgress(ctx context.Context, id uuid.UUID, req *UpdateProgressRequest) (*JobResponse, error) {
	job, err := s.repo.UpdateProgress(ctx, id, req.CompletedDelta, req.FailedDelta, req.CurrentItem)
	if err != nil {
		return nil, err
	}

	key := progressCacheKey(id)
	if req.CompletedDelta != 0 {
		if _, err := s.cache.HIncrBy(ctx, key, "completed_tasks", int64(req.CompletedDelta)); err != nil {
			s.log.Warn("progress cache update failed", logger.Error(err))
		}
	}
	if req.FailedDelta != 0 {
		if _, err := s.cache.HIncrBy(ctx, key, "failed_tasks", int64(req.FailedDelta)); err != nil {
			s.log.Warn("progress cache update failed", logger.Error(err))
		}
	}
	if err := s.cache.Expire(ctx, key, progressCacheTTL); err != nil {
		s.log.Warn("progress cache ttl refresh failed", logger.Error(err))
	}

	return toJobResponse(job), nil
}

// CompleteJob marks a job COMPLETED.
func (s *Service) CompleteJob(ctx context.Context, id uuid.UUID) (*JobResponse, error) {
	job, err := s.repo.Complete(ctx, id)
	if err != nil {
		return nil, err
	}
	return toJobResponse(job), nil
}

// FailJob marks a job FAILED with the given error message.
func (s *Service) FailJob(ctx context.Context, id uuid.UUID, req *FailJobRequest) (*JobResponse, error) {
	job, err := s.repo.Fail(ctx, id, req.Error)
	if err != nil {
		return nil, err
	}
	return toJobResponse(job), nil
}

// CancelJob marks a job CANCELLED. Valid only from PENDING or IN_PROGRESS.
func (s *Service) CancelJob(ctx context.Context, id uuid.UUID) (*JobResponse, error) {
	job, err := s.repo.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	return toJobResponse(job), nil
}

// GetJob returns the durable state of a job.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*JobResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toJobResponse(job), nil
}

// GetProgress prefers the cache-backed counters; if they are absent (expired, never
// written, or the cache is unavailable) it falls back to the durable row.
func (s *Service) GetProgress(ctx context.Context, id uuid.UUID) (*ProgressResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	fields, err := s.cache.HGetAll(ctx, progressCacheKey(id))
	if err == nil {
		completedStr, hasCompleted := fields["completed_tasks"]
		failedStr, hasFailed := fields["failed_tasks"]
		if hasCompleted && hasFailed {
			return &ProgressResponse{
				JobID:          job.ID,
				Status:         job.Status,
				TotalTasks:     job.TotalTasks,
				CompletedTasks: parseInt(completedStr),
				FailedTasks:    parseInt(failedStr),
				Source:         "cache",
			}, nil
		}
	} else {
		s.log.Warn("progress cache read failed, falling back to database", logger.Error(err))
	}

	return &ProgressResponse{
		JobID:          job.ID,
		Status:         job.Status,
		TotalTasks:     job.TotalTasks,
		CompletedTasks: job.CompletedTasks,
		FailedTasks:    job.FailedTasks,
		Source:         "database",
	}, nil
}

func parseInt(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// StaleJobSweep transitions non-terminal jobs untouched for longer than
// thresholdHours (default 24) to FAILED with a synthetic error. Intended to run weekly.
func (s *Service) StaleJobSweep(ctx context.Context, thresholdHours float64) (int, error) {
	if thresholdHours <= 0 {
		thresholdHours = defaultStaleThresholdHours
	}

	stale, err := s.repo.ListStale(ctx, thresholdHours)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, job := range stale {
		msg := fmt.Sprintf("job untouched for more than %.0f hours, marked failed by stale job sweep", thresholdHours)
		if _, err := s.repo.Fail(ctx, job.ID, msg); err != nil {
			s.log.Warn("stale job sweep failed to transition job",
				slog.String("job_id", job.ID.String()), logger.Error(err))
			continue
		}
		swept++
	}

	if swept > 0 {
		s.log.Warn("stale job sweep transitioned jobs to failed", slog.Int("count", swept))
	}
	return swept, nil
}

// StuckJobMonitor logs a warning for every non-terminal job untouched for longer than
// thresholdMinutes (default 60) without modifying it. Intended to run every 6 hours.
func (s *Service) StuckJobMonitor(ctx context.Context, thresholdMinutes float64) (int, error) {
	if thresholdMinutes <= 0 {
		thresholdMinutes = defaultStuckThresholdMinutes
	}

	stuck, err := s.repo.ListStuck(ctx, thresholdMinutes)
	if err != nil {
		return 0, err
	}

	for _, job := range stuck {
		s.log.Warn("batch job appears stuck",
			slog.String("job_id", job.ID.String()),
			slog.String("job_type", job.JobType),
			slog.String("status", job.Status),
			slog.Time("updated_at", job.UpdatedAt),
			slog.Duration("idle_for", time.Since(job.UpdatedAt)),
		)
	}
	return len(stuck), nil
}

package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opennotes-ai/opennotes-server/domain/scheduler"
	"github.com/opennotes-ai/opennotes-server/internal/config"
	"github.com/opennotes-ai/opennotes-server/internal/jobs"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// timeBucket returns the current Unix minute, used to give each cron tick of a
// scheduled workflow a distinct but collision-resistant deduplication suffix.
func timeBucket() int64 {
	return time.Now().Unix() / 60
}

// HandlerFunc runs one workflow execution's business logic. run lets the handler break
// its work into idempotent, individually-memoized steps per the durable-workflow contract:
// a step whose result was already persisted (e.g. the process crashed after it completed
// but before the next step ran) is not re-executed on the next attempt.
type HandlerFunc func(ctx context.Context, run StepRunner, payload map[string]any) error

// StepRunner executes a named step exactly once per workflow execution, persisting its
// result so a later attempt (after a crash or retry) resumes at the next pending step
// instead of redoing completed work.
type StepRunner interface {
	Step(ctx context.Context, stepID string, fn func(ctx context.Context) (any, error)) (any, error)
}

// stepRunner is the concrete StepRunner bound to one in-flight execution.
type stepRunner struct {
	repo    *Repository
	execID  string
	results JSONMap
}

func (r *stepRunner) Step(ctx context.Context, stepID string, fn func(ctx context.Context) (any, error)) (any, error) {
	if result, ok := r.results[stepID]; ok {
		return result, nil
	}

	result, err := fn(ctx)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", stepID, err)
	}

	if err := r.repo.SaveStepResult(ctx, r.execID, stepID, result); err != nil {
		return nil, fmt.Errorf("persist step %q result: %w", stepID, err)
	}
	r.results[stepID] = result
	return result, nil
}

// Service is the durable workflow orchestrator: handlers register by workflow type,
// Enqueue schedules a deduplicated run, and an internal/jobs.Worker polling loop
// dequeues and dispatches executions to their registered handler.
//
// Its Enqueue method satisfies domain/batchjobs.Dispatcher directly, so batch jobs can
// start a workflow through this service without either package importing the other.
type Service struct {
	repo *Repository
	log  *slog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	worker *jobs.Worker
}

// NewService builds a Service and its polling worker, wired from cfg.Workflows.
func NewService(repo *Repository, cfg *config.Config, log *slog.Logger) *Service {
	log = log.With(logger.Scope("workflows.svc"))
	s := &Service{repo: repo, log: log, handlers: make(map[string]HandlerFunc)}

	workerCfg := jobs.DefaultWorkerConfig("workflows")
	workerCfg.PollInterval = cfg.Workflows.PollInterval
	workerCfg.BatchSize = cfg.Workflows.BatchSize
	workerCfg.StaleThresholdMinutes = cfg.Workflows.StaleThresholdMinutes
	s.worker = jobs.NewWorker(workerCfg, log, s.processBatch)

	return s
}

// RegisterHandler binds workflowType to handler. Call before Start.
func (s *Service) RegisterHandler(workflowType string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[workflowType] = handler
}

func (s *Service) handlerFor(workflowType string) (HandlerFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[workflowType]
	return h, ok
}

// Enqueue schedules workflowType to run, deduplicated on deduplicationID: a later
// Enqueue call with the same non-empty id, whatever the status of the execution already
// recorded under it (completed ones included), is a no-op that keeps the existing
// execution instead of starting a duplicate.
func (s *Service) Enqueue(ctx context.Context, workflowType, deduplicationID string, payload map[string]any) error {
	_, err := s.repo.Enqueue(ctx, workflowType, deduplicationID, JSONMap(payload))
	return err
}

// ScheduleCron registers a cron-triggered workflow launch on the shared scheduler: each
// tick enqueues a fresh execution of workflowType, deduplicated on name + tick time so a
// slow previous run's worker dequeue can't be double-started by a second tick landing on
// the same scheduled minute.
func (s *Service) ScheduleCron(sched *scheduler.Scheduler, name, cronSchedule, workflowType string, payloadFn func() map[string]any) error {
	return sched.AddCronTask(name, cronSchedule, func(ctx context.Context) error {
		payload := map[string]any{}
		if payloadFn != nil {
			payload = payloadFn()
		}
		dedupID := fmt.Sprintf("%s:%d", name, timeBucket())
		return s.Enqueue(ctx, workflowType, dedupID, payload)
	})
}

// Start first recovers stale in-flight executions, using the queue's default stale
// threshold, and then begins the polling worker.
func (s *Service) Start(ctx context.Context) error {
	if n, err := s.repo.RecoverStale(ctx, 0); err != nil {
		s.log.Warn("stale workflow recovery failed", logger.Error(err))
	} else if n > 0 {
		s.log.Warn("recovered stale workflow executions", slog.Int("count", n))
	}
	return s.worker.Start(ctx)
}

// Stop gracefully stops the polling worker.
func (s *Service) Stop(ctx context.Context) error {
	return s.worker.Stop(ctx)
}

// processBatch dequeues a batch of pending executions and runs each against its
// registered handler, acking success/failure back to the durable queue.
func (s *Service) processBatch(ctx context.Context) error {
	ids, err := s.repo.Dequeue(ctx, 0)
	if err != nil {
		return fmt.Errorf("dequeue workflow executions: %w", err)
	}

	for _, id := range ids {
		s.runOne(ctx, id)
	}
	return nil
}

func (s *Service) runOne(ctx context.Context, id string) {
	exec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.log.Error("failed to load dequeued workflow execution", slog.String("id", id), logger.Error(err))
		return
	}

	handler, ok := s.handlerFor(exec.WorkflowType)
	if !ok {
		s.log.Error("no handler registered for workflow type",
			slog.String("workflow_type", exec.WorkflowType), slog.String("id", id))
		_ = s.repo.MarkFailed(ctx, id, exec.AttemptCount, "no handler registered for workflow type "+exec.WorkflowType)
		return
	}

	results := exec.StepResults
	if results == nil {
		results = JSONMap{}
	}
	run := &stepRunner{repo: s.repo, execID: id, results: results}

	if err := handler(ctx, run, exec.Payload); err != nil {
		s.log.Warn("workflow execution failed",
			slog.String("workflow_type", exec.WorkflowType), slog.String("id", id), logger.Error(err))
		if markErr := s.repo.MarkFailed(ctx, id, exec.AttemptCount, err.Error()); markErr != nil {
			s.log.Error("failed to record workflow failure", slog.String("id", id), logger.Error(markErr))
		}
		return
	}

	if err := s.repo.MarkCompleted(ctx, id); err != nil {
		s.log.Error("failed to mark workflow execution completed", slog.String("id", id), logger.Error(err))
	}
}

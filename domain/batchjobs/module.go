package batchjobs

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/opennotes-ai/opennotes-server/domain/scheduler"
)

const (
	staleJobSweepInterval   = 7 * 24 * time.Hour
	stuckJobMonitorInterval = 6 * time.Hour
)

// Module wires the batch job engine: repository, service, HTTP handler, routes, and the
// two scheduled cleanup tasks. Dispatcher has no default binding here — the composition
// root supplies it once the workflow orchestrator is wired (see cmd/server), so this
// package stays independent of domain/workflows; NewNoopDispatcher remains exported for
// standalone construction and tests.
var Module = fx.Module("batchjobs",
	fx.Provide(
		NewRepository,
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes, RegisterScheduledTasks),
)

// RegisterScheduledTasks registers the stale-job sweep (weekly default) and the
// non-mutating stuck-job monitor (every 6 hours default) on the shared scheduler.
func RegisterScheduledTasks(s *scheduler.Scheduler, svc *Service) error {
	if err := s.AddIntervalTask("batch_job_stale_sweep", staleJobSweepInterval, func(ctx context.Context) error {
		_, err := svc.StaleJobSweep(ctx, 0)
		return err
	}); err != nil {
		return err
	}

	return s.AddIntervalTask("batch_job_stuck_monitor", stuckJobMonitorInterval, func(ctx context.Context) error {
		_, err := svc.StuckJobMonitor(ctx, 0)
		return err
	})
}

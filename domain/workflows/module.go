package workflows

import (
	"context"

	"go.uber.org/fx"
)

// Module wires the workflow orchestrator's repository and service, and starts/stops the
// polling worker alongside the application lifecycle.
//
// It intentionally does not bind Service as domain/batchjobs.Dispatcher here — that
// binding belongs in cmd/server, once both modules are assembled together, to keep this
// package independent of domain/batchjobs.
var Module = fx.Module("workflows",
	fx.Provide(NewRepository, NewService),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})
}

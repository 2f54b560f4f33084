package scoring

import (
	"go.uber.org/fx"
)

// Module provides the scoring adapter (tiering, batch trigger, graceful degradation)
// via fx. Dispatcher has no default binding here — cmd/server supplies it once the
// workflow orchestrator is wired, mirroring domain/batchjobs and domain/chunking's
// dispatcher convention; NewNoopDispatcher remains exported for standalone construction
// and tests.
var Module = fx.Module("scoring",
	fx.Provide(
		NewRepository,
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)

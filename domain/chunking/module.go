package chunking

import (
	"go.uber.org/fx"

	"github.com/opennotes-ai/opennotes-server/domain/workflows"
)

// Module wires the chunk/embed/link pipeline, its rechunk-job HTTP surface, and
// registers the rechunk workflow handlers on the shared orchestrator. EmbeddingDispatcher
// has no default binding here — cmd/server supplies it once the workflow orchestrator is
// wired; NewNoopEmbeddingDispatcher remains exported for standalone construction and
// tests. SourceProvider still defaults to NoopSourceProvider pending a real source
// lookup implementation.
var Module = fx.Module("chunking",
	fx.Provide(
		fx.Annotate(func() SourceProvider { return NoopSourceProvider{} }),
		NewService,
		NewRechunkJobRunner,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes, registerWorkflowHandlers),
)

func registerWorkflowHandlers(runner *RechunkJobRunner, wf *workflows.Service) {
	runner.RegisterHandlers(wf)
}

package bulkscan

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"google.golang.org/genai"

	"github.com/opennotes-ai/opennotes-server/internal/config"
	"github.com/opennotes-ai/opennotes-server/pkg/circuitbreaker"
)

// Module provides the bulk-content-scan lifecycle (C11) via fx: scan records,
// flashpoint detection, moderation, and the consumer loop on BULK_SCAN_MESSAGE_BATCH.
// Moderator defaults to NoopModerator until a real moderation backend is wired in
// cmd/server, mirroring domain/scoring and domain/batchjobs's dispatcher convention.
var Module = fx.Module("bulkscan",
	fx.Provide(
		NewConfig,
		NewRepository,
		newPromptRunnerFactory,
		newFlashpointService,
		fx.Annotate(NewNoopModerator, fx.As(new(Moderator))),
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes, startConsumer),
)

// newPromptRunnerFactory builds the closure FlashpointService calls to lazily construct
// its PromptRunner: a real genai-backed one when LLM credentials are configured, a noop
// one otherwise.
func newPromptRunnerFactory(cfg *config.Config, breakers *circuitbreaker.Registry, log *slog.Logger) func() (PromptRunner, error) {
	return func() (PromptRunner, error) {
		llmCfg := cfg.LLM
		if !llmCfg.IsEnabled() {
			log.Info("flashpoint LLM not configured, using noop prompt runner")
			return NewNoopPromptRunner(), nil
		}

		clientCfg := &genai.ClientConfig{}
		if llmCfg.UseVertexAI() {
			clientCfg.Backend = genai.BackendVertexAI
			clientCfg.Project = llmCfg.GCPProjectID
			clientCfg.Location = llmCfg.VertexAILocation
		} else {
			clientCfg.Backend = genai.BackendGeminiAPI
			clientCfg.APIKey = llmCfg.GoogleAPIKey
		}

		client, err := genai.NewClient(context.Background(), clientCfg)
		if err != nil {
			return nil, err
		}
		breaker := breakers.GetDefault(flashpointBreakerName)
		return NewGenAIPromptRunner(client, llmCfg.Model, breaker), nil
	}
}

func newFlashpointService(newRunner func() (PromptRunner, error), cfg *Config, log *slog.Logger) *FlashpointService {
	return NewFlashpointService(newRunner, cfg.FlashpointArtifactPath, log)
}

// startConsumer joins the durable BULK_SCAN_MESSAGE_BATCH consumer group on app start.
func startConsumer(lc fx.Lifecycle, svc *Service, log *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return svc.Subscribe(context.Background(), "bulkscan-consumer-1")
		},
	})
}

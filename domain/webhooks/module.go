package webhooks

import (
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/opennotes-ai/opennotes-server/internal/config"
	"github.com/opennotes-ai/opennotes-server/pkg/eventbus"
)

// Module provides webhook registration and signature-verified receipt (§6.5): an
// internal HMAC-SHA-256 scheme for registered senders and an Ed25519 scheme for the
// configured external platform, both dispatching into EventWebhookReceived on success.
var Module = fx.Module("webhooks",
	fx.Provide(
		NewRepository,
		newService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)

func newService(repo *Repository, bus *eventbus.Bus, cfg *config.Config, log *slog.Logger) *Service {
	maxAge := time.Duration(cfg.Auth.MaxWebhookAgeSeconds) * time.Second
	return NewService(repo, bus, cfg.Auth.DiscordPublicKey, maxAge, log)
}

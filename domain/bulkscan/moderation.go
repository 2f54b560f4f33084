package bulkscan

import (
	"context"
	"log/slog"

	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// Moderator screens one message's text, reporting whether it should be flagged and why.
// The production moderation backend (a third-party content-safety API) is an external
// collaborator; only this narrow interface is owned here.
type Moderator interface {
	Moderate(ctx context.Context, text string) (flagged bool, reason string, err error)
}

// NoopModerator never flags anything. Bound as the default Moderator until a real
// moderation backend is wired in cmd/server.
type NoopModerator struct {
	log *slog.Logger
}

// NewNoopModerator builds a NoopModerator.
func NewNoopModerator(log *slog.Logger) *NoopModerator {
	return &NoopModerator{log: log.With(logger.Scope("bulkscan.moderation.noop"))}
}

// Moderate always reports no flag.
func (m *NoopModerator) Moderate(ctx context.Context, text string) (bool, string, error) {
	m.log.Debug("moderation check (noop)")
	return false, "", nil
}

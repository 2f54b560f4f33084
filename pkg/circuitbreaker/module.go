package circuitbreaker

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/opennotes-ai/opennotes-server/internal/config"
)

var Module = fx.Module("circuitbreaker",
	fx.Provide(NewRegistryFromConfig),
)

// NewRegistryFromConfig builds a Registry whose Get calls default to the
// CIRCUIT_BREAKER_FAILURE_THRESHOLD / CIRCUIT_BREAKER_TIMEOUT settings when a caller
// doesn't have a more specific per-dependency value.
func NewRegistryFromConfig(cfg *config.Config, log *slog.Logger) *Registry {
	r := NewRegistry(log)
	r.defaultThreshold = uint32(cfg.Auth.CircuitBreakerThreshold)
	r.defaultTimeout = cfg.Auth.CircuitBreakerTimeout
	return r
}

// GetDefault returns (creating if absent) the breaker registered under name, using the
// registry's configured default threshold/timeout.
func (r *Registry) GetDefault(name string) *Breaker {
	return r.Get(name, r.defaultThreshold, r.defaultTimeout)
}

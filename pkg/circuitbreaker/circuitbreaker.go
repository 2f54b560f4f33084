// Package circuitbreaker provides a named registry of per-dependency circuit breakers on
// top of sony/gobreaker, exposing the CLOSED/OPEN/HALF_OPEN count-threshold state machine
// described for component C2.
package circuitbreaker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// State mirrors gobreaker's state constants under the names used elsewhere in this repo.
type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// Breaker wraps one named gobreaker.CircuitBreaker configured with a consecutive-failure
// threshold.
type Breaker struct {
	name      string
	threshold uint32
	timeout   time.Duration
	cb        *gobreaker.CircuitBreaker
}

func newBreaker(name string, threshold uint32, timeout time.Duration, log *slog.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &Breaker{
		name:      name,
		threshold: threshold,
		timeout:   timeout,
		cb:        gobreaker.NewCircuitBreaker(settings),
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	return b.cb.State()
}

// Counts returns the breaker's current request/failure counters.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// Check raises apperror.ErrCircuitOpen when the breaker is OPEN, letting the caller avoid
// exercising the dependency at all. A breaker in HALF_OPEN or CLOSED state passes.
func (b *Breaker) Check() error {
	if b.cb.State() == gobreaker.StateOpen {
		return apperror.NewCircuitOpen(b.name, b.timeout.Seconds())
	}
	return nil
}

// Execute runs fn through the breaker: it is rejected outright while OPEN, permitted as
// the single probe call while HALF_OPEN, and otherwise run directly. The breaker records
// success or failure based on fn's own error return.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return apperror.NewCircuitOpen(b.name, b.timeout.Seconds())
	}
	return err
}

// Registry holds one Breaker per dependency name, created lazily on first use.
type Registry struct {
	mu               sync.Mutex
	breakers         map[string]*Breaker
	log              *slog.Logger
	defaultThreshold uint32
	defaultTimeout   time.Duration
}

// NewRegistry builds an empty breaker registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		log:      log.With(logger.Scope("circuitbreaker")),
	}
}

// Get returns the breaker registered under name, creating it with threshold/timeout if
// absent. A second call with different threshold/timeout for the same name logs a
// warning and keeps the breaker as originally configured.
func (r *Registry) Get(name string, threshold uint32, timeout time.Duration) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		if b.threshold != threshold || b.timeout != timeout {
			r.log.Warn("circuit breaker reconfiguration ignored, keeping original settings",
				slog.String("breaker", name),
				slog.Uint64("original_threshold", uint64(b.threshold)),
				slog.Uint64("requested_threshold", uint64(threshold)),
				slog.Duration("original_timeout", b.timeout),
				slog.Duration("requested_timeout", timeout),
			)
		}
		return b
	}

	b := newBreaker(name, threshold, timeout, r.log)
	r.breakers[name] = b
	return b
}

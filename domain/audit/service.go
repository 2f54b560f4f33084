package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/opennotes-ai/opennotes-server/pkg/eventbus"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// persistTimeout is the hard ceiling on one audit-log persist attempt. It never blocks
// the HTTP request that produced the entry — Persist only enqueues work onto the pool.
const persistTimeout = 5 * time.Second

// Service drives the fire-and-forget audit-log persist path: Persist enqueues entry
// onto a bounded pool, which inserts the row and publishes AUDIT_LOG_PERSISTED within a
// hard timeout. Persist errors are counted in metrics and logged, never propagated to
// the caller.
type Service struct {
	repo *Repository
	bus  *eventbus.Bus
	pool *Pool
	log  *slog.Logger
}

// NewService builds a Service. Call Start once at startup to launch the pool's workers.
func NewService(repo *Repository, bus *eventbus.Bus, pool *Pool, log *slog.Logger) *Service {
	return &Service{repo: repo, bus: bus, pool: pool, log: log.With(logger.Scope("audit"))}
}

// Start launches the underlying pool's workers.
func (s *Service) Start() {
	s.pool.Start()
}

// Stop drains the underlying pool, waiting up to ctx's deadline.
func (s *Service) Stop(ctx context.Context) error {
	return s.pool.Stop(ctx)
}

// Persist enqueues entry for asynchronous persistence. Returns immediately; a full
// queue counts as a publish failure and is logged, never returned to the caller.
func (s *Service) Persist(entry Entry) {
	accepted := s.pool.Submit(func(ctx context.Context) {
		s.persistNow(ctx, entry)
	})
	if !accepted {
		s.log.Warn("audit pool queue full, dropping entry", slog.String("action", entry.Action))
		publishFailuresTotal.WithLabelValues("queue_full").Inc()
		eventsPublishedTotal.WithLabelValues("failure").Inc()
	}
}

func (s *Service) persistNow(ctx context.Context, entry Entry) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	row, err := s.repo.Create(ctx, entry)
	if err != nil {
		s.handlePersistError(err, entry)
		return
	}

	payload, err := json.Marshal(PersistedPayload{
		LogID:        row.ID,
		UserID:       row.UserID,
		Action:       row.Action,
		ResourceType: row.ResourceType,
	})
	if err != nil {
		s.handlePersistError(err, entry)
		return
	}

	if _, err := s.bus.Publish(ctx, eventbus.EventAuditLogPersisted, nil, payload); err != nil {
		s.handlePersistError(err, entry)
		return
	}

	eventsPublishedTotal.WithLabelValues("success").Inc()
}

func (s *Service) handlePersistError(err error, entry Entry) {
	errorType := "unknown"
	if errors.Is(err, context.DeadlineExceeded) {
		errorType = "timeout"
		publishTimeoutsTotal.Inc()
	}
	s.log.Error("audit log persist failed",
		logger.Error(err), slog.String("action", entry.Action), slog.String("error_type", errorType))
	publishFailuresTotal.WithLabelValues(errorType).Inc()
	eventsPublishedTotal.WithLabelValues("failure").Inc()
}

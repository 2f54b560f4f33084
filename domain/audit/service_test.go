package audit_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/opennotes-ai/opennotes-server/domain/audit"
	"github.com/opennotes-ai/opennotes-server/internal/testutil"
	"github.com/opennotes-ai/opennotes-server/pkg/cache"
	"github.com/opennotes-ai/opennotes-server/pkg/eventbus"
)

type noopLifecycle struct{}

func (noopLifecycle) Append(fx.Hook) {}

func newTestService(t *testing.T) (*audit.Service, *eventbus.Bus) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db, err := testutil.SetupTestDB(context.Background(), "audit_svc")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	bus := eventbus.NewBus(noopLifecycle{}, cache.NewClientForTest(rdb, slog.Default()), slog.Default())

	repo := audit.NewRepository(db.DB, slog.Default())
	pool := audit.NewPool(2, 16, slog.Default())
	svc := audit.NewService(repo, bus, pool, slog.Default())
	svc.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Stop(ctx)
	})

	return svc, bus
}

func TestService_Persist_PublishesAuditLogPersisted(t *testing.T) {
	svc, bus := newTestService(t)
	userID := uuid.New()

	var received eventbus.Event
	done := make(chan struct{})
	require.NoError(t, bus.Subscribe(context.Background(), eventbus.EventAuditLogPersisted, eventbus.ConsumerOptions{
		ConsumerGroup: "test-watch",
		ConsumerName:  "watcher-1",
		BlockTimeout:  50 * time.Millisecond,
	}, func(ctx context.Context, ev eventbus.Event) error {
		received = ev
		close(done)
		return nil
	}))

	svc.Persist(audit.Entry{
		UserID:       &userID,
		Action:       "DELETE /api/batch-jobs/123",
		ResourceType: "batch-jobs",
		StartedAt:    time.Now().UTC(),
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for AUDIT_LOG_PERSISTED event")
	}

	var payload audit.PersistedPayload
	require.NoError(t, json.Unmarshal(received.Payload, &payload))
	require.Equal(t, "DELETE /api/batch-jobs/123", payload.Action)
	require.Equal(t, userID, *payload.UserID)
}

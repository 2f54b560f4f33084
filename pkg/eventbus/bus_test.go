package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) (*Bus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return &Bus{
		rdb:  rdb,
		log:  slog.Default(),
		subs: make(map[string]*subscription),
	}, mr
}

func TestBus_PublishSubscribe_Delivers(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	var mu sync.Mutex
	var received []Event

	err := b.Subscribe(ctx, EventNoteScoreUpdated, ConsumerOptions{
		ConsumerGroup: "scoring",
		ConsumerName:  "worker-1",
		BlockTimeout:  100 * time.Millisecond,
		ClaimMinIdle:  time.Second,
	}, func(ctx context.Context, ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, ev)
		return nil
	})
	require.NoError(t, err)
	defer b.Stop()

	_, err = b.Publish(ctx, EventNoteScoreUpdated, map[string]string{"note_id": "n-1"}, []byte(`{"score":0.8}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	ev := received[0]
	mu.Unlock()

	require.Equal(t, EventNoteScoreUpdated, ev.EventType)
	require.Equal(t, "n-1", ev.Correlation["note_id"])
	require.Equal(t, `{"score":0.8}`, string(ev.Payload))
}

func TestBus_Subscribe_JoinsExistingGroup(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()
	opts := ConsumerOptions{
		ConsumerGroup: "audit",
		ConsumerName:  "worker-1",
		BlockTimeout:  100 * time.Millisecond,
		ClaimMinIdle:  time.Second,
	}

	noop := func(ctx context.Context, ev Event) error { return nil }

	require.NoError(t, b.Subscribe(ctx, EventAuditLogPersisted, opts, noop))
	require.NoError(t, b.Subscribe(ctx, EventAuditLogPersisted, opts, noop), "re-subscribing with identical config must join, not error")
	b.Stop()
}

func TestBus_HealthCheck_MissingGroup(t *testing.T) {
	b, _ := newTestBus(t)
	ok, err := b.HealthCheck(context.Background(), "no-such-stream", "no-such-group")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBus_HealthCheck_ExistingGroup(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	err := b.Subscribe(ctx, EventBulkScanProgress, ConsumerOptions{
		ConsumerGroup: "progress-readers",
		ConsumerName:  "worker-1",
		BlockTimeout:  100 * time.Millisecond,
		ClaimMinIdle:  time.Second,
	}, func(ctx context.Context, ev Event) error { return nil })
	require.NoError(t, err)
	defer b.Stop()

	ok, err := b.HealthCheck(ctx, EventBulkScanProgress, "progress-readers")
	require.NoError(t, err)
	require.True(t, ok)
}

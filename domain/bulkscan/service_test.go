package bulkscan_test

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

	"github.com/opennotes-ai/opennotes-server/domain/bulkscan"
	"github.com/opennotes-ai/opennotes-server/domain/chunking"
	"github.com/opennotes-ai/opennotes-server/domain/chunks"
	"github.com/opennotes-ai/opennotes-server/domain/similarity"
	"github.com/opennotes-ai/opennotes-server/internal/testutil"
	"github.com/opennotes-ai/opennotes-server/pkg/cache"
	"github.com/opennotes-ai/opennotes-server/pkg/embeddings"
	"github.com/opennotes-ai/opennotes-server/pkg/eventbus"
)

// noopLifecycle discards every hook it is given; these tests drive Start/Stop manually.
type noopLifecycle struct{}

func (noopLifecycle) Append(fx.Hook) {}

func newTestBus(t *testing.T) *eventbus.Bus {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cacheClient := cache.NewClientForTest(rdb, slog.Default())
	return eventbus.NewBus(noopLifecycle{}, cacheClient, slog.Default())
}

type fakeModerator struct{}

func (m *fakeModerator) Moderate(ctx context.Context, text string) (bool, string, error) {
	return text == "flag-me", "flagged by test moderator", nil
}

func newTestService(t *testing.T) (*bulkscan.Service, *bulkscan.Repository, *eventbus.Bus) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db, err := testutil.SetupTestDB(context.Background(), "bulkscan")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	repo := bulkscan.NewRepository(db.DB, slog.Default())
	bus := newTestBus(t)

	chunkRepo := chunks.NewRepository(db.DB, slog.Default())
	chunkingSvc := chunking.NewService(chunkRepo, chunking.NewNoopEmbeddingDispatcher(slog.Default()), slog.Default())
	simRepo := similarity.NewRepository(db.DB, slog.Default())
	simSvc := similarity.NewService(simRepo, chunkingSvc, embeddings.NewNoopService(slog.Default()), slog.Default())

	svc := bulkscan.NewService(repo, bus, simSvc, &fakeModerator{}, nil, slog.Default())
	require.NoError(t, svc.Subscribe(context.Background(), "test-consumer"))

	return svc, repo, bus
}

func TestService_Initiate_PublishesInitiatedEvent(t *testing.T) {
	svc, _, bus := newTestService(t)
	communityID := uuid.New()

	var received eventbus.Event
	done := make(chan struct{})
	require.NoError(t, bus.Subscribe(context.Background(), eventbus.EventBulkScanInitiated, eventbus.ConsumerOptions{
		ConsumerGroup: "test-watch",
		ConsumerName:  "watcher-1",
		BlockTimeout:  50 * time.Millisecond,
	}, func(ctx context.Context, ev eventbus.Event) error {
		received = ev
		close(done)
		return nil
	}))

	scan, err := svc.Initiate(context.Background(), communityID, []string{"chan-1"}, 7, false)
	require.NoError(t, err)
	require.Equal(t, bulkscan.StatusInitiated, scan.Status)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for BULK_SCAN_INITIATED event")
	}

	var payload bulkscan.ScanInitiatedPayload
	require.NoError(t, json.Unmarshal(received.Payload, &payload))
	require.Equal(t, scan.ID, payload.ScanID)
	require.Equal(t, communityID, payload.CommunityServerID)
}

func TestService_ProcessBatch_FinalBatchPublishesCompletionAndResults(t *testing.T) {
	svc, repo, bus := newTestService(t)
	communityID := uuid.New()

	scan, err := repo.Create(context.Background(), communityID, []string{"chan-1"}, 7, false)
	require.NoError(t, err)

	var completed eventbus.Event
	var results eventbus.Event
	doneCompleted := make(chan struct{})
	doneResults := make(chan struct{})

	require.NoError(t, bus.Subscribe(context.Background(), eventbus.EventBulkScanCompleted, eventbus.ConsumerOptions{
		ConsumerGroup: "test-watch-completed", ConsumerName: "watcher", BlockTimeout: 50 * time.Millisecond,
	}, func(ctx context.Context, ev eventbus.Event) error {
		completed = ev
		close(doneCompleted)
		return nil
	}))
	require.NoError(t, bus.Subscribe(context.Background(), eventbus.EventBulkScanResults, eventbus.ConsumerOptions{
		ConsumerGroup: "test-watch-results", ConsumerName: "watcher", BlockTimeout: 50 * time.Millisecond,
	}, func(ctx context.Context, ev eventbus.Event) error {
		results = ev
		close(doneResults)
		return nil
	}))

	payload, err := json.Marshal(bulkscan.MessageBatchPayload{
		ScanID: scan.ID,
		Messages: []bulkscan.BulkScanMessage{
			{MessageID: "m1", AuthorID: "a1", Content: "hello there"},
			{MessageID: "m2", AuthorID: "a2", Content: "flag-me"},
		},
		BatchNumber:  1,
		IsFinalBatch: true,
	})
	require.NoError(t, err)
	_, err = bus.Publish(context.Background(), eventbus.EventBulkScanMessageBatch,
		map[string]string{"scan_id": scan.ID.String()}, payload)
	require.NoError(t, err)

	select {
	case <-doneCompleted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for BULK_SCAN_COMPLETED event")
	}
	select {
	case <-doneResults:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for BULK_SCAN_RESULTS event")
	}

	var completedPayload bulkscan.CompletedPayload
	require.NoError(t, json.Unmarshal(completed.Payload, &completedPayload))
	require.Equal(t, 2, completedPayload.MessagesScanned)

	updated, err := repo.GetByID(context.Background(), scan.ID)
	require.NoError(t, err)
	require.Equal(t, bulkscan.StatusCompleted, updated.Status)

	var resultsPayload bulkscan.ResultsPayload
	require.NoError(t, json.Unmarshal(results.Payload, &resultsPayload))
	require.NotEmpty(t, resultsPayload.FlaggedMessages)
}

package chunking_test

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opennotes-ai/opennotes-server/domain/chunking"
	"github.com/opennotes-ai/opennotes-server/domain/chunks"
	"github.com/opennotes-ai/opennotes-server/internal/testutil"
)

type recordingEmbeddingDispatcher struct {
	calls []string
}

func (d *recordingEmbeddingDispatcher) Enqueue(ctx context.Context, workflowType, deduplicationID string, payload map[string]any) error {
	d.calls = append(d.calls, deduplicationID)
	return nil
}

func newTestService(t *testing.T) (*chunking.Service, *chunks.Repository, *recordingEmbeddingDispatcher) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db, err := testutil.SetupTestDB(context.Background(), "chunking")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	repo := chunks.NewRepository(db.DB, slog.Default())
	dispatcher := &recordingEmbeddingDispatcher{}
	return chunking.NewService(repo, dispatcher, slog.Default()), repo, dispatcher
}

func TestService_RechunkSource_LinksEveryChunkAndDispatchesEmbeddings(t *testing.T) {
	svc, _, dispatcher := newTestService(t)
	ctx := context.Background()

	sourceID := uuid.New()
	text := "First sentence of the fact check. Second sentence follows here. And a third one to close it out."

	n, err := svc.RechunkSource(ctx, chunks.SourceTypeFactCheck, sourceID, text)
	require.NoError(t, err)
	require.Greater(t, n, 0)
	require.Len(t, dispatcher.calls, n)
}

func TestService_RechunkSource_OnceEmbeddedChunksAreNotRedispatched(t *testing.T) {
	svc, repo, dispatcher := newTestService(t)
	ctx := context.Background()

	sourceID := uuid.New()
	text := "A stable fact check body that will not change between rechunk runs."

	_, err := svc.RechunkSource(ctx, chunks.SourceTypeFactCheck, sourceID, text)
	require.NoError(t, err)
	firstCalls := len(dispatcher.calls)
	require.Greater(t, firstCalls, 0)

	// Simulate the embedding worker having since filled in each dispatched chunk.
	for _, dedupID := range dispatcher.calls {
		chunkIDStr := strings.TrimPrefix(dedupID, "embed:")
		chunk, err := repo.GetByHash(ctx, xxhash.Sum64String(text))
		require.NoError(t, err)
		require.Equal(t, chunk.ID.String(), chunkIDStr)
		require.NoError(t, repo.SetEmbedding(ctx, chunk.ID, []byte("fake-vector-bytes")))
	}

	_, err = svc.RechunkSource(ctx, chunks.SourceTypeFactCheck, sourceID, text)
	require.NoError(t, err)
	require.Len(t, dispatcher.calls, firstCalls, "chunks that already have embeddings should not be redispatched")
}

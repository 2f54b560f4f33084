package chunks_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opennotes-ai/opennotes-server/domain/chunks"
	"github.com/opennotes-ai/opennotes-server/internal/testutil"
)

func newTestRepository(t *testing.T) *chunks.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db, err := testutil.SetupTestDB(context.Background(), "chunks")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return chunks.NewRepository(db.DB, slog.Default())
}

func TestRepository_UpsertChunk_DedupsByHash(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	hash := xxhash.Sum64String("the quick brown fox")

	first, err := repo.UpsertChunk(ctx, hash, "the quick brown fox")
	require.NoError(t, err)
	require.False(t, first.HasEmbedding())

	second, err := repo.UpsertChunk(ctx, hash, "the quick brown fox")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestRepository_SetEmbedding(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	hash := xxhash.Sum64String("needs an embedding")
	chunk, err := repo.UpsertChunk(ctx, hash, "needs an embedding")
	require.NoError(t, err)
	require.False(t, chunk.HasEmbedding())

	require.NoError(t, repo.SetEmbedding(ctx, chunk.ID, []byte("fake-vector-bytes")))

	reloaded, err := repo.GetByHash(ctx, hash)
	require.NoError(t, err)
	require.True(t, reloaded.HasEmbedding())
}

func TestRepository_UpsertLink_UpdatesIndexInPlace(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	hash := xxhash.Sum64String("linked chunk")
	chunk, err := repo.UpsertChunk(ctx, hash, "linked chunk")
	require.NoError(t, err)

	sourceID := uuid.New()
	require.NoError(t, repo.UpsertLink(ctx, chunk.ID, chunks.SourceTypeFactCheck, sourceID, 0))
	require.NoError(t, repo.UpsertLink(ctx, chunk.ID, chunks.SourceTypeFactCheck, sourceID, 3))

	count, err := repo.CountLinksBySource(ctx, chunks.SourceTypeFactCheck)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRepository_UpsertLink_RelinkWithNewDatasetTagsSucceeds(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	hash := xxhash.Sum64String("tagged chunk")
	chunk, err := repo.UpsertChunk(ctx, hash, "tagged chunk")
	require.NoError(t, err)

	sourceID := uuid.New()
	require.NoError(t, repo.UpsertLink(ctx, chunk.ID, chunks.SourceTypeFactCheck, sourceID, 0, "community-a"))
	require.NoError(t, repo.UpsertLink(ctx, chunk.ID, chunks.SourceTypeFactCheck, sourceID, 0, "community-b"))
}

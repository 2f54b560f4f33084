package search_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opennotes-ai/opennotes-server/domain/chunks"
	"github.com/opennotes-ai/opennotes-server/domain/search"
	"github.com/opennotes-ai/opennotes-server/internal/testutil"
)

func TestRepository_KeywordCandidates_FiltersByDataset(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db, err := testutil.SetupTestDB(context.Background(), "search")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	chunkRepo := chunks.NewRepository(db.DB, slog.Default())
	searchRepo := search.NewRepository(db.DB, slog.Default())
	ctx := context.Background()

	text := "the fact check covers a claim about vaccines"
	chunk, err := chunkRepo.UpsertChunk(ctx, xxhash.Sum64String(text), text)
	require.NoError(t, err)
	require.NoError(t, chunkRepo.UpsertLink(ctx, chunk.ID, chunks.SourceTypeFactCheck, uuid.New(), 0, "community-a"))

	results, err := searchRepo.KeywordCandidates(ctx, "vaccines", []string{"community-a"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = searchRepo.KeywordCandidates(ctx, "vaccines", []string{"community-b"}, 10)
	require.NoError(t, err)
	require.Empty(t, results)
}

package similarity_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opennotes-ai/opennotes-server/domain/chunks"
	"github.com/opennotes-ai/opennotes-server/domain/similarity"
	"github.com/opennotes-ai/opennotes-server/internal/testutil"
	"github.com/opennotes-ai/opennotes-server/pkg/pgutils"
)

func newTestDeps(t *testing.T) (*similarity.Repository, *chunks.Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db, err := testutil.SetupTestDB(context.Background(), "similarity")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return similarity.NewRepository(db.DB, slog.Default()), chunks.NewRepository(db.DB, slog.Default())
}

func seedMessage(t *testing.T, repo *similarity.Repository, chunkRepo *chunks.Repository, communityID uuid.UUID, text string, vector []float32) *similarity.PreviouslySeenMessage {
	t.Helper()
	ctx := context.Background()

	msg, err := repo.Create(ctx, &similarity.PreviouslySeenMessage{
		CommunityServerID: communityID,
		OriginalMessageID: "snowflake-" + text,
	})
	require.NoError(t, err)

	chunk, err := chunkRepo.UpsertChunk(ctx, xxhash.Sum64String(text), text)
	require.NoError(t, err)
	require.NoError(t, chunkRepo.SetEmbedding(ctx, chunk.ID, []byte(pgutils.FormatVector(vector))))
	require.NoError(t, chunkRepo.UpsertLink(ctx, chunk.ID, chunks.SourceTypePreviouslySeen, msg.ID, 0, communityID.String()))

	return msg
}

func TestRepository_NearestNeighbors_OrdersByDistanceAscending(t *testing.T) {
	repo, chunkRepo := newTestDeps(t)
	communityID := uuid.New()

	closer := seedMessage(t, repo, chunkRepo, communityID, "the election results were certified", []float32{1, 0, 0})
	farther := seedMessage(t, repo, chunkRepo, communityID, "a totally unrelated cooking recipe", []float32{0, 1, 0})

	neighbors, err := repo.NearestNeighbors(context.Background(), []float32{1, 0, 0}, communityID, 5)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	require.Equal(t, closer.ID, neighbors[0].Message.ID)
	require.Equal(t, farther.ID, neighbors[1].Message.ID)
	require.LessOrEqual(t, neighbors[0].Distance, neighbors[1].Distance)
}

func TestRepository_NearestNeighbors_ScopedToCommunity(t *testing.T) {
	repo, chunkRepo := newTestDeps(t)
	communityA := uuid.New()
	communityB := uuid.New()

	seedMessage(t, repo, chunkRepo, communityA, "community a archived message", []float32{1, 0, 0})

	neighbors, err := repo.NearestNeighbors(context.Background(), []float32{1, 0, 0}, communityB, 5)
	require.NoError(t, err)
	require.Empty(t, neighbors)
}

func TestRepository_NearestNeighbors_RespectsTopK(t *testing.T) {
	repo, chunkRepo := newTestDeps(t)
	communityID := uuid.New()

	for i := 0; i < 3; i++ {
		seedMessage(t, repo, chunkRepo, communityID, uuid.New().String(), []float32{1, 0, 0})
	}

	neighbors, err := repo.NearestNeighbors(context.Background(), []float32{1, 0, 0}, communityID, 2)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
}

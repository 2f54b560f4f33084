package similarity_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opennotes-ai/opennotes-server/domain/chunking"
	"github.com/opennotes-ai/opennotes-server/domain/chunks"
	"github.com/opennotes-ai/opennotes-server/domain/similarity"
	"github.com/opennotes-ai/opennotes-server/internal/testutil"
	"github.com/opennotes-ai/opennotes-server/pkg/embeddings"
)

func newTestService(t *testing.T) *similarity.Service {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db, err := testutil.SetupTestDB(context.Background(), "similarity_svc")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	chunkRepo := chunks.NewRepository(db.DB, slog.Default())
	chunkingSvc := chunking.NewService(chunkRepo, chunking.NewNoopEmbeddingDispatcher(slog.Default()), slog.Default())
	simRepo := similarity.NewRepository(db.DB, slog.Default())

	return similarity.NewService(simRepo, chunkingSvc, embeddings.NewNoopService(slog.Default()), slog.Default())
}

func TestService_FindPreviouslySeen_NoopEmbeddingsReturnsEmpty(t *testing.T) {
	svc := newTestService(t)

	matches, err := svc.FindPreviouslySeen(context.Background(), "some text", uuid.New(), 0)
	require.NoError(t, err)
	require.Empty(t, matches, "a nil query vector from disabled embeddings should short-circuit to no matches")
}

func TestService_RecordPreviouslySeen_CreatesMessageAndLinksChunk(t *testing.T) {
	svc := newTestService(t)
	communityID := uuid.New()

	msg, err := svc.RecordPreviouslySeen(context.Background(), communityID, "snowflake-123", nil, "this claim was already fact-checked")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, msg.ID)
	require.Equal(t, communityID, msg.CommunityServerID)
}

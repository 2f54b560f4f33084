package bulkscan_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opennotes-ai/opennotes-server/domain/bulkscan"
	"github.com/opennotes-ai/opennotes-server/internal/testutil"
)

func newTestRepo(t *testing.T) *bulkscan.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db, err := testutil.SetupTestDB(context.Background(), "bulkscan_repo")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return bulkscan.NewRepository(db.DB, slog.Default())
}

func TestRepository_Create_StartsInitiated(t *testing.T) {
	repo := newTestRepo(t)

	scan, err := repo.Create(context.Background(), uuid.New(), []string{"c1", "c2"}, 14, true)
	require.NoError(t, err)
	require.Equal(t, bulkscan.StatusInitiated, scan.Status)
	require.Equal(t, 0, scan.MessagesScanned)
	require.True(t, scan.VibecheckDebugMode)
}

func TestRepository_RecordBatch_AccumulatesMessagesScanned(t *testing.T) {
	repo := newTestRepo(t)
	scan, err := repo.Create(context.Background(), uuid.New(), []string{"c1"}, 7, false)
	require.NoError(t, err)

	require.NoError(t, repo.RecordBatch(context.Background(), scan.ID, 1, 5))
	require.NoError(t, repo.RecordBatch(context.Background(), scan.ID, 2, 3))

	updated, err := repo.GetByID(context.Background(), scan.ID)
	require.NoError(t, err)
	require.Equal(t, 8, updated.MessagesScanned)
	require.Equal(t, 2, updated.LastBatchNumber)
	require.Equal(t, bulkscan.StatusProcessing, updated.Status)
}

func TestRepository_Complete_SetsStatus(t *testing.T) {
	repo := newTestRepo(t)
	scan, err := repo.Create(context.Background(), uuid.New(), []string{"c1"}, 7, false)
	require.NoError(t, err)

	require.NoError(t, repo.Complete(context.Background(), scan.ID))

	updated, err := repo.GetByID(context.Background(), scan.ID)
	require.NoError(t, err)
	require.Equal(t, bulkscan.StatusCompleted, updated.Status)
}

func TestRepository_GetByID_MissingReturnsNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetByID(context.Background(), uuid.New())
	require.Error(t, err)
}

package audit_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opennotes-ai/opennotes-server/domain/audit"
	"github.com/opennotes-ai/opennotes-server/internal/testutil"
)

func newTestRepo(t *testing.T) *audit.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db, err := testutil.SetupTestDB(context.Background(), "audit_repo")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return audit.NewRepository(db.DB, slog.Default())
}

func TestRepository_Create_PersistsRow(t *testing.T) {
	repo := newTestRepo(t)
	userID := uuid.New()

	row, err := repo.Create(context.Background(), audit.Entry{
		UserID:       &userID,
		Action:       "POST /api/bulk-scans",
		ResourceType: "bulk-scans",
		Details:      map[string]any{"status_code": float64(202)},
		StartedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, row.ID)
	require.Equal(t, "POST /api/bulk-scans", row.Action)
	require.Equal(t, userID, *row.UserID)
}

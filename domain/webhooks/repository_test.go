package webhooks_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opennotes-ai/opennotes-server/domain/webhooks"
	"github.com/opennotes-ai/opennotes-server/internal/testutil"
)

func newTestRepo(t *testing.T) *webhooks.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db, err := testutil.SetupTestDB(context.Background(), "webhooks_repo")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return webhooks.NewRepository(db.DB, slog.Default())
}

func TestRepository_Create_StartsActive(t *testing.T) {
	repo := newTestRepo(t)

	reg, err := repo.Create(context.Background(), uuid.New(), "test-integration", "a-secret")
	require.NoError(t, err)
	require.Equal(t, webhooks.StatusActive, reg.Status)
	require.Equal(t, "a-secret", reg.Secret)
}

func TestRepository_Disable_FlipsStatus(t *testing.T) {
	repo := newTestRepo(t)
	reg, err := repo.Create(context.Background(), uuid.New(), "test-integration", "a-secret")
	require.NoError(t, err)

	require.NoError(t, repo.Disable(context.Background(), reg.ID))

	got, err := repo.GetByID(context.Background(), reg.ID)
	require.NoError(t, err)
	require.Equal(t, webhooks.StatusDisabled, got.Status)
}

func TestRepository_ListByCommunityServer_ReturnsOwnRegistrations(t *testing.T) {
	repo := newTestRepo(t)
	communityServerID := uuid.New()
	_, err := repo.Create(context.Background(), communityServerID, "hook-1", "secret-1")
	require.NoError(t, err)
	_, err = repo.Create(context.Background(), communityServerID, "hook-2", "secret-2")
	require.NoError(t, err)
	_, err = repo.Create(context.Background(), uuid.New(), "other-server-hook", "secret-3")
	require.NoError(t, err)

	regs, err := repo.ListByCommunityServer(context.Background(), communityServerID)
	require.NoError(t, err)
	require.Len(t, regs, 2)
}

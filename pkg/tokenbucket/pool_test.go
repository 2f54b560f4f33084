package tokenbucket_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opennotes-ai/opennotes-server/internal/testutil"
	"github.com/opennotes-ai/opennotes-server/pkg/tokenbucket"
)

func newTestService(t *testing.T) (*tokenbucket.Service, *testutil.TestDB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db, err := testutil.SetupTestDB(context.Background(), "tokenbucket")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return tokenbucket.NewService(db.DB, slog.Default()), db
}

func TestService_TryAcquire_WithinCapacity(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsurePool(ctx, "llm-calls", 2))

	ok, err := svc.TryAcquire(ctx, "llm-calls", "workflow-1", 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.TryAcquire(ctx, "llm-calls", "workflow-2", 1)
	require.NoError(t, err)
	require.True(t, ok)

	status, err := svc.Status(ctx, "llm-calls")
	require.NoError(t, err)
	require.Equal(t, 2, status.Capacity)
	require.Equal(t, 2, status.Held)
	require.Equal(t, 0, status.Available)
	require.Len(t, status.Holds, 2)

	_ = db
}

func TestService_TryAcquire_OverCapacityFails(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsurePool(ctx, "llm-calls-2", 1))

	ok, err := svc.TryAcquire(ctx, "llm-calls-2", "workflow-1", 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.TryAcquire(ctx, "llm-calls-2", "workflow-2", 1)
	require.NoError(t, err)
	require.False(t, ok, "second acquire should fail once capacity is exhausted")
}

func TestService_TryAcquire_IdempotentForSameWorkflow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsurePool(ctx, "llm-calls-3", 1))

	ok, err := svc.TryAcquire(ctx, "llm-calls-3", "workflow-1", 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.TryAcquire(ctx, "llm-calls-3", "workflow-1", 1)
	require.NoError(t, err)
	require.True(t, ok, "re-acquiring for the same workflow id must be idempotent")

	status, err := svc.Status(ctx, "llm-calls-3")
	require.NoError(t, err)
	require.Len(t, status.Holds, 1, "idempotent acquire must not create a duplicate hold")
}

func TestService_TryAcquire_MissingPoolFails(t *testing.T) {
	svc, _ := newTestService(t)
	ok, err := svc.TryAcquire(context.Background(), "does-not-exist", "workflow-1", 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestService_Release(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsurePool(ctx, "llm-calls-4", 1))

	ok, err := svc.TryAcquire(ctx, "llm-calls-4", "workflow-1", 1)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := svc.Release(ctx, "llm-calls-4", "workflow-1")
	require.NoError(t, err)
	require.True(t, released)

	status, err := svc.Status(ctx, "llm-calls-4")
	require.NoError(t, err)
	require.Equal(t, 0, status.Held)

	ok, err = svc.TryAcquire(ctx, "llm-calls-4", "workflow-2", 1)
	require.NoError(t, err)
	require.True(t, ok, "capacity should be available again after release")
}

func TestService_Release_NoOpenHold(t *testing.T) {
	svc, _ := newTestService(t)
	released, err := svc.Release(context.Background(), "llm-calls-5", "workflow-x")
	require.NoError(t, err)
	require.False(t, released)
}

func TestService_ReclaimStaleHolds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsurePool(ctx, "llm-calls-6", 1))
	ok, err := svc.TryAcquire(ctx, "llm-calls-6", "workflow-1", 1)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := svc.ReclaimStaleHolds(ctx, []string{"workflow-1"})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	status, err := svc.Status(ctx, "llm-calls-6")
	require.NoError(t, err)
	require.Equal(t, 0, status.Held)
}

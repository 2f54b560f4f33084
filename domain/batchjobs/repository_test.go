package batchjobs_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opennotes-ai/opennotes-server/domain/batchjobs"
	"github.com/opennotes-ai/opennotes-server/internal/testutil"
)

func newTestRepository(t *testing.T) (*batchjobs.Repository, *testutil.TestDB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db, err := testutil.SetupTestDB(context.Background(), "batchjobs")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return batchjobs.NewRepository(db.DB, slog.Default()), db
}

func TestRepository_CreateAndGetByID(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	job, err := repo.Create(ctx, "import:discord", 10, batchjobs.JSONMap{"channel": "general"})
	require.NoError(t, err)
	require.Equal(t, batchjobs.StatusPending, job.Status)

	fetched, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, job.ID, fetched.ID)
	require.Equal(t, "general", fetched.Metadata["channel"])
}

func TestRepository_CreateExclusive_SecondAttemptConflicts(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	first, err := repo.CreateExclusive(ctx, "rechunk:fact_check", "community-1", 0, nil)
	require.NoError(t, err)

	_, err = repo.CreateExclusive(ctx, "rechunk:fact_check", "community-1", 0, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")
	require.NotEqual(t, first.ID, "")
}

func TestRepository_CreateExclusive_ConcurrentAttempts_ExactlyOneWins(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, err := repo.CreateExclusive(ctx, "rechunk:fact_check", "community-2", 0, nil)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successes)
}

func TestRepository_CreateExclusive_AllowsNewAfterTerminal(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	job, err := repo.CreateExclusive(ctx, "rechunk:fact_check", "community-3", 0, nil)
	require.NoError(t, err)

	_, err = repo.Start(ctx, job.ID)
	require.NoError(t, err)
	_, err = repo.Complete(ctx, job.ID)
	require.NoError(t, err)

	second, err := repo.CreateExclusive(ctx, "rechunk:fact_check", "community-3", 0, nil)
	require.NoError(t, err)
	require.NotEqual(t, job.ID, second.ID)
}

func TestRepository_StartCompleteLifecycle(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	job, err := repo.Create(ctx, "import:discord", 5, nil)
	require.NoError(t, err)

	started, err := repo.Start(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, batchjobs.StatusInProgress, started.Status)
	require.NotNil(t, started.StartedAt)

	updated, err := repo.UpdateProgress(ctx, job.ID, 2, 1, "item-3")
	require.NoError(t, err)
	require.Equal(t, 2, updated.CompletedTasks)
	require.Equal(t, 1, updated.FailedTasks)
	require.Equal(t, "item-3", updated.Metadata["current_item"])

	completed, err := repo.Complete(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, batchjobs.StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	_, err = repo.Complete(ctx, job.ID)
	require.Error(t, err)
}

func TestRepository_Cancel_OnlyFromNonTerminal(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	job, err := repo.Create(ctx, "import:discord", 0, nil)
	require.NoError(t, err)

	cancelled, err := repo.Cancel(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, batchjobs.StatusCancelled, cancelled.Status)

	_, err = repo.Cancel(ctx, job.ID)
	require.Error(t, err)
}

func TestRepository_Fail_RecordsError(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	job, err := repo.Create(ctx, "import:discord", 0, nil)
	require.NoError(t, err)

	failed, err := repo.Fail(ctx, job.ID, "boom")
	require.NoError(t, err)
	require.Equal(t, batchjobs.StatusFailed, failed.Status)
	require.NotNil(t, failed.LastError)
	require.Equal(t, "boom", *failed.LastError)
}

package batchjobs_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/opennotes-ai/opennotes-server/domain/batchjobs"
	"github.com/opennotes-ai/opennotes-server/pkg/cache"
)

type recordingDispatcher struct {
	calls []string
}

func (d *recordingDispatcher) Enqueue(ctx context.Context, workflowType, deduplicationID string, payload map[string]any) error {
	d.calls = append(d.calls, workflowType+"|"+deduplicationID)
	return nil
}

func newTestServiceDeps(t *testing.T) (*batchjobs.Repository, *cache.Client, *recordingDispatcher) {
	t.Helper()
	repo, _ := newTestRepository(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return repo, cache.NewClientForTest(rdb, slog.Default()), &recordingDispatcher{}
}

func TestService_CreateJob_Plain(t *testing.T) {
	repo, c, d := newTestServiceDeps(t)
	svc := batchjobs.NewService(repo, c, d, slog.Default())

	resp, err := svc.CreateJob(context.Background(), &batchjobs.CreateJobRequest{
		JobType:    "import:discord",
		TotalTasks: 100,
	})
	require.NoError(t, err)
	require.Equal(t, batchjobs.StatusPending, resp.Status)
}

func TestService_CreateJob_RequiresJobType(t *testing.T) {
	repo, c, d := newTestServiceDeps(t)
	svc := batchjobs.NewService(repo, c, d, slog.Default())

	_, err := svc.CreateJob(context.Background(), &batchjobs.CreateJobRequest{})
	require.Error(t, err)
}

func TestService_StartJob_DispatchesWorkflow(t *testing.T) {
	repo, c, d := newTestServiceDeps(t)
	svc := batchjobs.NewService(repo, c, d, slog.Default())
	ctx := context.Background()

	created, err := svc.CreateJob(ctx, &batchjobs.CreateJobRequest{JobType: "import:discord", TotalTasks: 10})
	require.NoError(t, err)

	started, err := svc.StartJob(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, batchjobs.StatusInProgress, started.Status)

	require.Len(t, d.calls, 1)
	require.Contains(t, d.calls[0], created.ID.String())
}

func TestService_UpdateProgress_PrefersCacheOnRead(t *testing.T) {
	repo, c, d := newTestServiceDeps(t)
	svc := batchjobs.NewService(repo, c, d, slog.Default())
	ctx := context.Background()

	created, err := svc.CreateJob(ctx, &batchjobs.CreateJobRequest{JobType: "import:discord", TotalTasks: 10})
	require.NoError(t, err)
	_, err = svc.StartJob(ctx, created.ID)
	require.NoError(t, err)

	_, err = svc.UpdateProgress(ctx, created.ID, &batchjobs.UpdateProgressRequest{CompletedDelta: 3, FailedDelta: 1})
	require.NoError(t, err)

	progress, err := svc.GetProgress(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "cache", progress.Source)
	require.Equal(t, 3, progress.CompletedTasks)
	require.Equal(t, 1, progress.FailedTasks)
}

func TestService_GetProgress_FallsBackToDatabaseWithoutCacheWrites(t *testing.T) {
	repo, c, d := newTestServiceDeps(t)
	svc := batchjobs.NewService(repo, c, d, slog.Default())
	ctx := context.Background()

	created, err := svc.CreateJob(ctx, &batchjobs.CreateJobRequest{JobType: "import:discord", TotalTasks: 10})
	require.NoError(t, err)

	progress, err := svc.GetProgress(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "database", progress.Source)
	require.Equal(t, 0, progress.CompletedTasks)
}

func TestService_CancelJob(t *testing.T) {
	repo, c, d := newTestServiceDeps(t)
	svc := batchjobs.NewService(repo, c, d, slog.Default())
	ctx := context.Background()

	created, err := svc.CreateJob(ctx, &batchjobs.CreateJobRequest{JobType: "import:discord"})
	require.NoError(t, err)

	cancelled, err := svc.CancelJob(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, batchjobs.StatusCancelled, cancelled.Status)
}

func TestService_FailJob_RecordsMessage(t *testing.T) {
	repo, c, d := newTestServiceDeps(t)
	svc := batchjobs.NewService(repo, c, d, slog.Default())
	ctx := context.Background()

	created, err := svc.CreateJob(ctx, &batchjobs.CreateJobRequest{JobType: "import:discord"})
	require.NoError(t, err)

	failed, err := svc.FailJob(ctx, created.ID, &batchjobs.FailJobRequest{Error: "upstream timeout"})
	require.NoError(t, err)
	require.Equal(t, batchjobs.StatusFailed, failed.Status)
	require.Equal(t, "upstream timeout", *failed.LastError)
}

func TestService_StaleJobSweep_FailsUntouchedJobs(t *testing.T) {
	repo, c, d := newTestServiceDeps(t)
	svc := batchjobs.NewService(repo, c, d, slog.Default())
	ctx := context.Background()

	_, err := svc.CreateJob(ctx, &batchjobs.CreateJobRequest{JobType: "import:discord"})
	require.NoError(t, err)

	swept, err := svc.StaleJobSweep(ctx, 0.0000001)
	require.NoError(t, err)
	require.GreaterOrEqual(t, swept, 1)
}

func TestService_StuckJobMonitor_DoesNotMutate(t *testing.T) {
	repo, c, d := newTestServiceDeps(t)
	svc := batchjobs.NewService(repo, c, d, slog.Default())
	ctx := context.Background()

	created, err := svc.CreateJob(ctx, &batchjobs.CreateJobRequest{JobType: "import:discord"})
	require.NoError(t, err)

	count, err := svc.StuckJobMonitor(ctx, 0.0000001)
	require.NoError(t, err)
	require.GreaterOrEqual(t, count, 1)

	job, err := svc.GetJob(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, batchjobs.StatusPending, job.Status)
}

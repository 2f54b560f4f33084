package chunking_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/opennotes-ai/opennotes-server/domain/batchjobs"
	"github.com/opennotes-ai/opennotes-server/domain/chunking"
	"github.com/opennotes-ai/opennotes-server/domain/chunks"
	"github.com/opennotes-ai/opennotes-server/domain/workflows"
	"github.com/opennotes-ai/opennotes-server/internal/config"
	"github.com/opennotes-ai/opennotes-server/internal/testutil"
	"github.com/opennotes-ai/opennotes-server/pkg/cache"
)

type fakeSourceProvider struct {
	mu    sync.Mutex
	texts map[uuid.UUID]string
}

func newFakeSourceProvider(texts map[uuid.UUID]string) *fakeSourceProvider {
	return &fakeSourceProvider{texts: texts}
}

func (p *fakeSourceProvider) ListSourceIDs(ctx context.Context, sourceType, communityServerID string) ([]uuid.UUID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(p.texts))
	for id := range p.texts {
		ids = append(ids, id)
	}
	return ids, nil
}

func (p *fakeSourceProvider) FetchText(ctx context.Context, sourceType string, sourceID uuid.UUID) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texts[sourceID], nil
}

func newTestRunner(t *testing.T) (*chunking.RechunkJobRunner, *batchjobs.Service, *fakeSourceProvider) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db, err := testutil.SetupTestDB(context.Background(), "chunking_rechunk")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cacheClient := cache.NewClientForTest(rdb, slog.Default())
	lock := cache.NewLock(cacheClient)

	batchRepo := batchjobs.NewRepository(db.DB, slog.Default())
	batchSvc := batchjobs.NewService(batchRepo, cacheClient, batchjobs.NewNoopDispatcher(slog.Default()), slog.Default())

	chunkRepo := chunks.NewRepository(db.DB, slog.Default())
	chunkSvc := chunking.NewService(chunkRepo, chunking.NewNoopEmbeddingDispatcher(slog.Default()), slog.Default())

	provider := newFakeSourceProvider(map[uuid.UUID]string{
		uuid.New(): "fact check one has some body text to split into chunks.",
		uuid.New(): "fact check two also has body text worth chunking up.",
	})

	runner := chunking.NewRechunkJobRunner(chunkSvc, batchSvc, lock, provider, slog.Default())
	return runner, batchSvc, provider
}

func TestRechunkJobRunner_CreateJob_SecondAttemptConflicts(t *testing.T) {
	runner, _, _ := newTestRunner(t)
	ctx := context.Background()

	_, err := runner.CreateJob(ctx, chunks.SourceTypeFactCheck, "community-1", 10)
	require.NoError(t, err)

	_, err = runner.CreateJob(ctx, chunks.SourceTypeFactCheck, "community-1", 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")
}

func TestRechunkJobRunner_CreateJob_DifferentCommunitiesDoNotConflict(t *testing.T) {
	runner, _, _ := newTestRunner(t)
	ctx := context.Background()

	_, err := runner.CreateJob(ctx, chunks.SourceTypeFactCheck, "community-1", 10)
	require.NoError(t, err)

	_, err = runner.CreateJob(ctx, chunks.SourceTypeFactCheck, "community-2", 10)
	require.NoError(t, err)
}

func TestRechunkJobRunner_EndToEnd_CompletesJob(t *testing.T) {
	runner, batchSvc, provider := newTestRunner(t)
	ctx := context.Background()

	cfg := &config.Config{}
	cfg.Workflows.BatchSize = 10
	cfg.Workflows.PollInterval = 20 * time.Millisecond
	cfg.Workflows.MaxAttempts = 3
	cfg.Workflows.BaseRetryDelaySec = 1
	cfg.Workflows.MaxRetryDelaySec = 5

	db, err := testutil.SetupTestDB(context.Background(), "chunking_rechunk_wf")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	wfRepo := workflows.NewRepository(db.DB, cfg, slog.Default())
	wfSvc := workflows.NewService(wfRepo, cfg, slog.Default())
	runner.RegisterHandlers(wfSvc)

	job, err := runner.CreateJob(ctx, chunks.SourceTypeFactCheck, "community-e2e", 10)
	require.NoError(t, err)

	require.NoError(t, wfSvc.Enqueue(ctx, "rechunk:"+chunks.SourceTypeFactCheck, job.ID.String(), map[string]any{"job_id": job.ID.String()}))
	require.NoError(t, wfSvc.Start(ctx))
	defer wfSvc.Stop(ctx)

	require.Eventually(t, func() bool {
		got, err := batchSvc.GetJob(ctx, job.ID)
		return err == nil && got.Status == batchjobs.StatusCompleted
	}, 3*time.Second, 20*time.Millisecond)

	_ = provider
}

package workflows

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opennotes-ai/opennotes-server/internal/config"
	"github.com/opennotes-ai/opennotes-server/internal/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db, err := testutil.SetupTestDB(context.Background(), "workflows_svc")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	cfg := &config.Config{}
	cfg.Workflows.BatchSize = 10
	cfg.Workflows.PollInterval = 20 * time.Millisecond
	cfg.Workflows.BaseRetryDelaySec = 1
	cfg.Workflows.MaxRetryDelaySec = 5
	cfg.Workflows.StaleThresholdMinutes = 10

	repo := NewRepository(db.DB, cfg, slog.Default())
	return NewService(repo, cfg, slog.Default())
}

func TestService_DispatchesToRegisteredHandler(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	var mu sync.Mutex
	var gotPayload map[string]any

	svc.RegisterHandler("import:discord", func(ctx context.Context, run StepRunner, payload map[string]any) error {
		result, err := run.Step(ctx, "record_payload", func(ctx context.Context) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			gotPayload = payload
			return "recorded", nil
		})
		require.NoError(t, err)
		require.Equal(t, "recorded", result)
		return nil
	})

	require.NoError(t, svc.Enqueue(ctx, "import:discord", "", map[string]any{"channel": "general"}))
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotPayload != nil
	}, 2*time.Second, 20*time.Millisecond)

	require.Equal(t, "general", gotPayload["channel"])
}

func TestService_UnknownWorkflowTypeMarksFailed(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Enqueue(ctx, "no-such-handler", "dedup-unknown", nil))
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop(ctx)

	require.Eventually(t, func() bool {
		exec, err := svc.repo.GetByDeduplicationID(ctx, "dedup-unknown")
		return err == nil && exec.LastError != nil
	}, 2*time.Second, 20*time.Millisecond)
}

// TestService_StepResultsAreNotRerunOnRetry simulates a crash between two steps: the
// first step's result is already persisted, so a second dispatch of the same execution
// (standing in for a post-crash retry) must not re-invoke it.
func TestService_StepResultsAreNotRerunOnRetry(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	var firstStepCalls int32

	exec, err := svc.repo.Enqueue(ctx, "rechunk:fact_check", "dedup-steps", nil)
	require.NoError(t, err)

	run := &stepRunner{repo: svc.repo, execID: exec.ID.String(), results: JSONMap{}}
	result, err := run.Step(ctx, "fetch_sources", func(ctx context.Context) (any, error) {
		firstStepCalls++
		return "sources-fetched", nil
	})
	require.NoError(t, err)
	require.Equal(t, "sources-fetched", result)
	require.EqualValues(t, 1, firstStepCalls)

	reloaded, err := svc.repo.GetByID(ctx, exec.ID.String())
	require.NoError(t, err)
	resumedRun := &stepRunner{repo: svc.repo, execID: exec.ID.String(), results: reloaded.StepResults}

	result, err = resumedRun.Step(ctx, "fetch_sources", func(ctx context.Context) (any, error) {
		firstStepCalls++
		return "sources-fetched", nil
	})
	require.NoError(t, err)
	require.Equal(t, "sources-fetched", result)
	require.EqualValues(t, 1, firstStepCalls, "step should not rerun once its result is persisted")
}

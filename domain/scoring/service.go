package scoring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/cache"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// ScoringWorkflowType is the domain/workflows workflow type a dispatched batch-scoring
// run registers its handler under.
const ScoringWorkflowType = "score_community"

// scoringLockOperation scopes the distributed lock DispatchScoring acquires before
// enqueuing a batch-scoring run, so a second dispatch for the same community while one is still in
// flight is rejected instead of silently queuing a duplicate.
const scoringLockOperation = "scoring"

// Dispatcher enqueues the workflow a dispatched scoring run should execute. Its
// signature matches domain/workflows.Service.Enqueue structurally, the same convention
// domain/batchjobs and domain/chunking use to depend on the orchestrator without
// importing it.
type Dispatcher interface {
	Enqueue(ctx context.Context, workflowType, deduplicationID string, payload map[string]any) error
}

// NoopDispatcher discards dispatch requests, logging at debug level. Stands in until
// domain/workflows is wired in cmd/server.
type NoopDispatcher struct {
	log *slog.Logger
}

// NewNoopDispatcher builds a NoopDispatcher.
func NewNoopDispatcher(log *slog.Logger) *NoopDispatcher {
	return &NoopDispatcher{log: log.With(logger.Scope("scoring.noop_dispatcher"))}
}

// Enqueue implements Dispatcher.
func (d *NoopDispatcher) Enqueue(ctx context.Context, workflowType, deduplicationID string, payload map[string]any) error {
	d.log.Debug("dropping scoring dispatch, no workflow dispatcher wired",
		slog.String("workflow_type", workflowType), slog.String("deduplication_id", deduplicationID))
	return nil
}

// Service is the scoring adapter: it selects a community's tier from its note count,
// reports batch-scoring trigger status, scores individual notes through a
// tier-appropriate Scorer with graceful degradation, and dispatches full batch-scoring
// runs to the workflow orchestrator.
type Service struct {
	repo       *Repository
	cache      *cache.Client
	lock       *cache.Lock
	dispatcher Dispatcher
	trigger    *BatchScoringTrigger
	log        *slog.Logger
}

// NewService builds a Service wired to repo as both DataProvider and note-count source.
func NewService(repo *Repository, cacheClient *cache.Client, dispatcher Dispatcher, log *slog.Logger) *Service {
	log = log.With(logger.Scope("scoring.svc"))
	return &Service{
		repo:       repo,
		cache:      cacheClient,
		lock:       cache.NewLock(cacheClient),
		dispatcher: dispatcher,
		trigger:    NewBatchScoringTrigger(DefaultBatchThreshold),
		log:        log,
	}
}

// GetTier returns communityID's current tier and its configuration.
func (s *Service) GetTier(ctx context.Context, communityID uuid.UUID) (Tier, TierThresholds, error) {
	n, err := s.repo.CountNotes(ctx, communityID)
	if err != nil {
		return "", TierThresholds{}, err
	}
	tier := TierForNoteCount(n)
	cfg, _ := TierConfig(tier)
	return tier, cfg, nil
}

// GetBatchScoringStatus reports where communityID sits relative to the batch-scoring
// threshold.
func (s *Service) GetBatchScoringStatus(ctx context.Context, communityID uuid.UUID) (BatchScoringStatus, error) {
	n, err := s.repo.CountNotes(ctx, communityID)
	if err != nil {
		return BatchScoringStatus{}, err
	}
	return s.trigger.GetStatus(n), nil
}

// scorerFor picks the tier's primary scorer. Tiers with multiple matrix-factorization
// scorers (INTERMEDIATE and above) run their first-listed scorer here — composing the
// full multi-scorer ensemble those tiers name is out of scope for this adapter, which
// exists to exercise tiering, degradation, and caching, not score-fusion fidelity.
func (s *Service) scorerFor(tier Tier) Scorer {
	cfg, ok := TierConfig(tier)
	if !ok || len(cfg.Scorers) == 0 {
		return NewBayesianAverageScorer()
	}
	if cfg.Scorers[0] == "BayesianAverageScorer" {
		return NewBayesianAverageScorer()
	}
	return NewMFCoreScorer(cfg.Scorers[0])
}

// ScoreNote scores noteID within communityID using the community's current tier,
// degrading gracefully to a stub result if the tier's scorer fails.
func (s *Service) ScoreNote(ctx context.Context, communityID, noteID uuid.UUID) (ScoreResult, error) {
	tier, _, err := s.GetTier(ctx, communityID)
	if err != nil {
		return ScoreResult{}, err
	}

	adapter := NewScorerAdapter(s.scorerFor(tier), s.repo, s.cache, s.log)
	return adapter.ScoreNote(ctx, communityID, noteID)
}

// DispatchScoring enqueues a batch-scoring workflow run for communityServerID, rejecting
// the request with a conflict if a run is already in flight. Returns the deduplication
// id the caller can report back as a workflow identifier.
func (s *Service) DispatchScoring(ctx context.Context, communityServerID uuid.UUID) (string, error) {
	acquired, err := s.lock.Acquire(ctx, scoringLockOperation, communityServerID.String(), 0)
	if err != nil {
		return "", apperror.ErrInternal.WithInternal(fmt.Errorf("acquire scoring lock: %w", err))
	}
	if !acquired {
		return "", apperror.ErrConflict.WithMessage("scoring already in progress for this community")
	}

	workflowID := fmt.Sprintf("score-community-%s", communityServerID)
	payload := map[string]any{"community_server_id": communityServerID.String()}

	if err := s.dispatcher.Enqueue(ctx, ScoringWorkflowType, workflowID, payload); err != nil {
		_ = s.lock.Release(ctx, scoringLockOperation, communityServerID.String())
		return "", apperror.ErrInternal.WithInternal(fmt.Errorf("dispatch scoring workflow: %w", err))
	}

	return workflowID, nil
}

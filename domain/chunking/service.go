package chunking

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/opennotes-ai/opennotes-server/domain/chunks"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
	"github.com/opennotes-ai/opennotes-server/pkg/textsplitter"
)

// EmbeddingDispatcher enqueues an embedding computation for a chunk that doesn't have
// one yet. Its signature matches domain/workflows.Service.Enqueue structurally so this
// package never has to import that one directly.
type EmbeddingDispatcher interface {
	Enqueue(ctx context.Context, workflowType, deduplicationID string, payload map[string]any) error
}

// NoopEmbeddingDispatcher drops embedding requests, logging at debug level. Stands in
// until the workflow orchestrator is wired.
type NoopEmbeddingDispatcher struct {
	log *slog.Logger
}

// NewNoopEmbeddingDispatcher builds a NoopEmbeddingDispatcher.
func NewNoopEmbeddingDispatcher(log *slog.Logger) *NoopEmbeddingDispatcher {
	return &NoopEmbeddingDispatcher{log: log.With(logger.Scope("chunking.noop_dispatcher"))}
}

// Enqueue implements EmbeddingDispatcher.
func (d *NoopEmbeddingDispatcher) Enqueue(ctx context.Context, workflowType, deduplicationID string, payload map[string]any) error {
	d.log.Debug("no workflow orchestrator configured, dropping embedding dispatch",
		slog.String("workflow_type", workflowType), slog.String("deduplication_id", deduplicationID))
	return nil
}

// EmbedWorkflowType is the workflow_type embedding tasks are enqueued under.
const EmbedWorkflowType = "embed:chunk"

// SourceProvider resolves the scope of a rechunk job: which source entities of a given
// type belong to a community, and each one's current text.
type SourceProvider interface {
	ListSourceIDs(ctx context.Context, sourceType, communityServerID string) ([]uuid.UUID, error)
	FetchText(ctx context.Context, sourceType string, sourceID uuid.UUID) (string, error)
}

// Service implements the chunk/embed/link pipeline: split source text into chunks,
// dedup-upsert each by content hash, enqueue an embedding task for any chunk that
// doesn't have one yet, and link the chunk to its source entity at its ordinal position.
type Service struct {
	repo       *chunks.Repository
	dispatcher EmbeddingDispatcher
	splitCfg   textsplitter.Config
	log        *slog.Logger
}

// NewService builds a Service.
func NewService(repo *chunks.Repository, dispatcher EmbeddingDispatcher, log *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		splitCfg:   textsplitter.DefaultConfig(),
		log:        log.With(logger.Scope("chunking.svc")),
	}
}

// RechunkSource runs steps 1-4 of the chunking pipeline for one source entity: split,
// hash, upsert-by-hash, link. datasetTags (e.g. the owning community server id) scope the
// resulting links for hybrid search's dataset filter. Returns the number of chunks linked.
func (s *Service) RechunkSource(ctx context.Context, sourceType string, sourceID uuid.UUID, text string, datasetTags ...string) (int, error) {
	textChunks := textsplitter.Split(text, s.splitCfg)

	for i, chunkText := range textChunks {
		hash := xxhash.Sum64String(chunkText)

		chunk, err := s.repo.UpsertChunk(ctx, hash, chunkText)
		if err != nil {
			return i, fmt.Errorf("upsert chunk %d: %w", i, err)
		}

		if !chunk.HasEmbedding() {
			payload := map[string]any{"chunk_id": chunk.ID.String()}
			dedupID := fmt.Sprintf("embed:%s", chunk.ID)
			if err := s.dispatcher.Enqueue(ctx, EmbedWorkflowType, dedupID, payload); err != nil {
				s.log.Warn("embedding dispatch failed",
					slog.String("chunk_id", chunk.ID.String()), logger.Error(err))
			}
		}

		if err := s.repo.UpsertLink(ctx, chunk.ID, sourceType, sourceID, i, datasetTags...); err != nil {
			return i, fmt.Errorf("link chunk %d: %w", i, err)
		}
	}

	return len(textChunks), nil
}

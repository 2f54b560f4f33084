package similarity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/opennotes-ai/opennotes-server/domain/chunking"
	"github.com/opennotes-ai/opennotes-server/domain/chunks"
	"github.com/opennotes-ai/opennotes-server/pkg/embeddings"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// defaultTopK is used when a caller doesn't specify how many neighbors to return.
const defaultTopK = 5

// Service looks up previously-seen content for a community before a new note request is
// spawned, short-circuiting to an already-published note when the incoming text matches
// something already scored.
type Service struct {
	repo       *Repository
	chunking   *chunking.Service
	embeddings *embeddings.Service
	log        *slog.Logger
}

// NewService builds a Service.
func NewService(repo *Repository, chunkingSvc *chunking.Service, embeddingsSvc *embeddings.Service, log *slog.Logger) *Service {
	return &Service{repo: repo, chunking: chunkingSvc, embeddings: embeddingsSvc, log: log.With(logger.Scope("similarity.svc"))}
}

// FindPreviouslySeen embeds text and returns the topK nearest archived messages within
// communityID, closest first. An empty result means the content hasn't been seen before.
func (s *Service) FindPreviouslySeen(ctx context.Context, text string, communityID uuid.UUID, topK int) ([]Neighbor, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	vector, err := s.embeddings.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return s.repo.NearestNeighbors(ctx, vector, communityID, topK)
}

// RecordPreviouslySeen archives a newly-published note's source message so future
// matching content short-circuits to it: it creates the PreviouslySeenMessage row, then
// chunks and links originalText to it the same way domain/chunking links any other
// source, tagging the link with communityID so hybrid search's dataset filter and this
// package's nearest-neighbor query both scope to it correctly.
func (s *Service) RecordPreviouslySeen(ctx context.Context, communityID uuid.UUID, originalMessageID string, publishedNoteID *uuid.UUID, originalText string) (*PreviouslySeenMessage, error) {
	msg := &PreviouslySeenMessage{
		CommunityServerID: communityID,
		OriginalMessageID: originalMessageID,
		PublishedNoteID:   publishedNoteID,
	}
	msg, err := s.repo.Create(ctx, msg)
	if err != nil {
		return nil, err
	}

	if _, err := s.chunking.RechunkSource(ctx, chunks.SourceTypePreviouslySeen, msg.ID, originalText, communityID.String()); err != nil {
		return nil, fmt.Errorf("chunk previously seen message: %w", err)
	}

	return msg, nil
}

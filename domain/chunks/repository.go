package chunks

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// Repository persists Chunk and ChunkLink rows.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository builds a Repository bound to db.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log.With(logger.Scope("chunks.repo"))}
}

// UpsertChunk inserts a Chunk for textHash/text if one doesn't already exist, otherwise
// returns the existing row untouched. The caller uses the returned chunk's HasEmbedding
// to decide whether an embedding task still needs enqueuing.
func (r *Repository) UpsertChunk(ctx context.Context, textHash uint64, text string) (*Chunk, error) {
	c := &Chunk{TextHash: textHash, Text: text}

	_, err := r.db.NewInsert().
		Model(c).
		On("CONFLICT (text_hash) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("upsert chunk: %w", err))
	}

	return r.GetByHash(ctx, textHash)
}

// GetByHash fetches a Chunk by its content hash.
func (r *Repository) GetByHash(ctx context.Context, textHash uint64) (*Chunk, error) {
	var c Chunk
	err := r.db.NewSelect().Model(&c).Where("text_hash = ?", textHash).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.ErrNotFound.WithMessage("chunk not found")
		}
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("get chunk by hash: %w", err))
	}
	return &c, nil
}

// SetEmbedding stores the embedding vector for chunkID once computed.
func (r *Repository) SetEmbedding(ctx context.Context, chunkID uuid.UUID, embedding []byte) error {
	_, err := r.db.NewUpdate().
		Model((*Chunk)(nil)).
		Set("embedding = ?", embedding).
		Set("updated_at = now()").
		Where("id = ?", chunkID).
		Exec(ctx)
	if err != nil {
		return apperror.ErrInternal.WithInternal(fmt.Errorf("set chunk embedding: %w", err))
	}
	return nil
}

// UpsertLink links chunkID to (sourceType, sourceID) at chunkIndex, updating the index in
// place if the pair is already linked (a source's chunk ordering can shift on rechunk).
// datasetTags scope the link for hybrid search's dataset filter (e.g. a community server
// id); they're replaced wholesale on re-link, same as chunkIndex.
func (r *Repository) UpsertLink(ctx context.Context, chunkID uuid.UUID, sourceType string, sourceID uuid.UUID, chunkIndex int, datasetTags ...string) error {
	if datasetTags == nil {
		datasetTags = []string{}
	}
	link := &ChunkLink{
		ChunkID:     chunkID,
		SourceType:  sourceType,
		SourceID:    sourceID,
		ChunkIndex:  chunkIndex,
		DatasetTags: datasetTags,
	}

	_, err := r.db.NewInsert().
		Model(link).
		On("CONFLICT (chunk_id, source_id) DO UPDATE").
		Set("chunk_index = EXCLUDED.chunk_index").
		Set("dataset_tags = EXCLUDED.dataset_tags").
		Exec(ctx)
	if err != nil {
		return apperror.ErrInternal.WithInternal(fmt.Errorf("upsert chunk link: %w", err))
	}
	return nil
}

// CountLinksBySource returns how many distinct source entities of sourceType currently
// have at least one ChunkLink — used by rechunk-completion assertions.
func (r *Repository) CountLinksBySource(ctx context.Context, sourceType string) (int, error) {
	var count int
	err := r.db.NewSelect().
		Model((*ChunkLink)(nil)).
		ColumnExpr("COUNT(DISTINCT source_id)").
		Where("source_type = ?", sourceType).
		Scan(ctx, &count)
	if err != nil {
		return 0, apperror.ErrInternal.WithInternal(fmt.Errorf("count chunk links: %w", err))
	}
	return count, nil
}

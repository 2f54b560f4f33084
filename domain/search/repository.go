package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
	"github.com/opennotes-ai/opennotes-server/pkg/pgutils"
)

// Repository runs the two candidate-retrieval queries hybrid search fuses: vector
// similarity and full-text rank, both over opennotes.chunks joined through
// opennotes.chunk_links so results carry their source entity.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository builds a Repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log.With(logger.Scope("search.repo"))}
}

// Candidate is one row of a single-source (vector or keyword) retrieval pass, before
// cross-set normalization and fusion.
type Candidate struct {
	ChunkID    uuid.UUID
	SourceType string
	SourceID   uuid.UUID
	Text       string
	Score      float32
}

// datasetFilter returns the SQL fragment and bind args that restrict results to chunk
// links tagged with any of dataset, or ("TRUE", nil) when dataset is empty (no filter).
func datasetFilter(dataset []string) (string, []any) {
	if len(dataset) == 0 {
		return "TRUE", nil
	}
	return "cl.dataset_tags && ?::text[]", []any{pgArrayLiteral(dataset)}
}

func pgArrayLiteral(tags []string) string {
	out := "{"
	for i, t := range tags {
		if i > 0 {
			out += ","
		}
		out += `"` + t + `"`
	}
	return out + "}"
}

// VectorCandidates retrieves the top-N1 chunks by cosine distance against vector, scoped
// to dataset. Score is cosine similarity (1 - distance), not yet normalized.
func (r *Repository) VectorCandidates(ctx context.Context, vector []float32, dataset []string, limit int) ([]Candidate, error) {
	if len(vector) == 0 {
		return nil, nil
	}

	filterSQL, filterArgs := datasetFilter(dataset)
	vectorStr := pgutils.FormatVector(vector)

	query := fmt.Sprintf(`
		SELECT id, source_type, source_id, text, score FROM (
			SELECT DISTINCT ON (ch.id) ch.id, cl.source_type, cl.source_id, ch.text,
				(1 - (ch.embedding <=> ?::vector)) AS score
			FROM opennotes.chunks ch
			JOIN opennotes.chunk_links cl ON cl.chunk_id = ch.id
			WHERE ch.embedding IS NOT NULL AND %s
			ORDER BY ch.id, ch.embedding <=> ?::vector
		) candidates
		ORDER BY score DESC
		LIMIT ?
	`, filterSQL)

	args := append([]any{vectorStr}, filterArgs...)
	args = append(args, vectorStr, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.log.Error("vector candidate search failed", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	defer rows.Close()

	var results []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ChunkID, &c.SourceType, &c.SourceID, &c.Text, &c.Score); err != nil {
			return nil, apperror.ErrDatabase.WithInternal(err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return results, nil
}

// KeywordCandidates retrieves the top-N2 chunks by full-text rank against query, scoped
// to dataset. Score is ts_rank, not yet normalized.
func (r *Repository) KeywordCandidates(ctx context.Context, query string, dataset []string, limit int) ([]Candidate, error) {
	filterSQL, filterArgs := datasetFilter(dataset)

	sqlQuery := fmt.Sprintf(`
		SELECT id, source_type, source_id, text, score FROM (
			SELECT DISTINCT ON (ch.id) ch.id, cl.source_type, cl.source_id, ch.text,
				ts_rank(ch.tsv, websearch_to_tsquery('simple', ?)) AS score
			FROM opennotes.chunks ch
			JOIN opennotes.chunk_links cl ON cl.chunk_id = ch.id
			WHERE ch.tsv @@ websearch_to_tsquery('simple', ?) AND %s
			ORDER BY ch.id, score DESC
		) candidates
		ORDER BY score DESC
		LIMIT ?
	`, filterSQL)

	args := append([]any{query, query}, filterArgs...)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		r.log.Error("keyword candidate search failed", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	defer rows.Close()

	var results []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ChunkID, &c.SourceType, &c.SourceID, &c.Text, &c.Score); err != nil {
			return nil, apperror.ErrDatabase.WithInternal(err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return results, nil
}

package similarity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/opennotes-ai/opennotes-server/domain/chunks"
	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
	"github.com/opennotes-ai/opennotes-server/pkg/pgutils"
)

// Repository persists PreviouslySeenMessage rows and runs the per-community nearest-
// neighbor query against chunks linked to them.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository builds a Repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log.With(logger.Scope("similarity.repo"))}
}

// Create inserts a new PreviouslySeenMessage row.
func (r *Repository) Create(ctx context.Context, msg *PreviouslySeenMessage) (*PreviouslySeenMessage, error) {
	_, err := r.db.NewInsert().Model(msg).Exec(ctx)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("create previously seen message: %w", err))
	}
	return msg, nil
}

// NearestNeighbors finds the top-k chunks (by cosine distance against vector) that are
// linked to a PreviouslySeenMessage within communityID, deduplicated to the closest
// match per archived message.
func (r *Repository) NearestNeighbors(ctx context.Context, vector []float32, communityID uuid.UUID, topK int) ([]Neighbor, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	vectorStr := pgutils.FormatVector(vector)

	query := `
		SELECT DISTINCT ON (psm.id)
			psm.id, psm.community_server_id, psm.original_message_id, psm.published_note_id,
			psm.extra_metadata, psm.created_at,
			ch.id, ch.text, (ch.embedding <=> ?::vector) AS distance
		FROM opennotes.chunks ch
		JOIN opennotes.chunk_links cl ON cl.chunk_id = ch.id AND cl.source_type = ?
		JOIN opennotes.previously_seen_messages psm ON psm.id = cl.source_id
		WHERE ch.embedding IS NOT NULL AND psm.community_server_id = ?
		ORDER BY psm.id, distance ASC
	`

	rows, err := r.db.QueryContext(ctx, query, vectorStr, chunks.SourceTypePreviouslySeen, communityID)
	if err != nil {
		r.log.Error("nearest neighbor search failed", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	defer rows.Close()

	var results []Neighbor
	for rows.Next() {
		var n Neighbor
		var metadataRaw []byte
		if err := rows.Scan(
			&n.Message.ID, &n.Message.CommunityServerID, &n.Message.OriginalMessageID, &n.Message.PublishedNoteID,
			&metadataRaw, &n.Message.CreatedAt,
			&n.ChunkID, &n.ChunkText, &n.Distance,
		); err != nil {
			return nil, apperror.ErrDatabase.WithInternal(err)
		}
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &n.Message.ExtraMetadata); err != nil {
				return nil, apperror.ErrDatabase.WithInternal(fmt.Errorf("decode extra_metadata: %w", err))
			}
		}
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

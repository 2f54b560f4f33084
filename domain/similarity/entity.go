package similarity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PreviouslySeenMessage is an archived message that has already been published-about:
// a new note request for the same content can short-circuit to PublishedNoteID instead
// of spawning a duplicate scoring run. Embedding/EmbeddingProvider/EmbeddingModel are the
// legacy single-embedding columns kept for messages archived before chunking existed;
// current lookups go through Chunk/ChunkLink instead.
type PreviouslySeenMessage struct {
	bun.BaseModel `bun:"table:opennotes.previously_seen_messages,alias:psm"`

	ID                uuid.UUID      `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	CommunityServerID uuid.UUID      `bun:"community_server_id,type:uuid,notnull" json:"community_server_id"`
	OriginalMessageID string         `bun:"original_message_id,notnull" json:"original_message_id"`
	PublishedNoteID   *uuid.UUID     `bun:"published_note_id,type:uuid" json:"published_note_id,omitempty"`
	Embedding         []byte         `bun:"embedding,type:vector(1536)" json:"-"`
	EmbeddingProvider *string        `bun:"embedding_provider" json:"embedding_provider,omitempty"`
	EmbeddingModel    *string        `bun:"embedding_model" json:"embedding_model,omitempty"`
	ExtraMetadata     map[string]any `bun:"extra_metadata,type:jsonb" json:"extra_metadata,omitempty"`
	CreatedAt         time.Time      `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// Neighbor is one nearest-neighbor match: an archived message along with the chunk that
// matched and how far (cosine distance, lower is more similar).
type Neighbor struct {
	Message   PreviouslySeenMessage `json:"message"`
	ChunkID   uuid.UUID             `json:"chunk_id"`
	ChunkText string                `json:"chunk_text"`
	Distance  float32               `json:"distance"`
}

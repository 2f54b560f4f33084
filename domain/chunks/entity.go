package chunks

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Chunk is a deduplicated span of source text. Uniqueness is on TextHash
// (xxhash.Sum64String of the chunk's normalized text), so re-chunking a source whose
// text hasn't changed never produces a second row — it only touches the ChunkLink.
type Chunk struct {
	bun.BaseModel `bun:"table:opennotes.chunks,alias:ch"`

	ID        uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	TextHash  uint64    `bun:"text_hash,notnull,unique" json:"text_hash"`
	Text      string    `bun:"text,notnull" json:"text"`
	Embedding []byte    `bun:"embedding,type:vector(1536)" json:"-"`
	TSV       string    `bun:"tsv,type:tsvector" json:"-"`
	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}

// HasEmbedding reports whether this chunk already has an embedding; a chunk without one
// still needs an embedding task enqueued.
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// SourceType enumerates the entity kinds a Chunk can be linked from.
const (
	SourceTypeFactCheck      = "fact_check"
	SourceTypePreviouslySeen = "previously_seen"
)

// ChunkLink is the many-to-many join from a Chunk to the source entity it was derived
// from, carrying that source's chunk ordering. Unique on (chunk_id, source_id): a given
// chunk/source pair is linked at most once, even if rechunking reassigns chunk_index.
type ChunkLink struct {
	bun.BaseModel `bun:"table:opennotes.chunk_links,alias:cl"`

	ID         uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	ChunkID    uuid.UUID `bun:"chunk_id,type:uuid,notnull" json:"chunk_id"`
	SourceType string    `bun:"source_type,notnull" json:"source_type"`
	SourceID   uuid.UUID `bun:"source_id,type:uuid,notnull" json:"source_id"`
	ChunkIndex int       `bun:"chunk_index,notnull" json:"chunk_index"`
	// DatasetTags scopes this link for hybrid search's dataset filter (e.g. the owning
	// community server id) — distinct from SourceType, which is the kind of entity.
	DatasetTags []string  `bun:"dataset_tags,array,notnull,default:'{}'" json:"dataset_tags"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

package bulkscan

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"
)

// Scan statuses. Transitions: INITIATED -> PROCESSING -> {COMPLETED, FAILED}.
// INITIATED is set when the scan is recorded and the BULK_SCAN_INITIATED event is
// published; PROCESSING begins with the first ingested batch.
const (
	StatusInitiated  = "INITIATED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Scan is a long-running scan over a community's recent messages, keyed by ScanID and
// driven entirely by events published on the bus (see Service).
type Scan struct {
	bun.BaseModel `bun:"table:opennotes.bulk_scans,alias:bs"`

	ID                 uuid.UUID      `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	CommunityServerID  uuid.UUID      `bun:"community_server_id,notnull,type:uuid" json:"community_server_id"`
	ChannelIDs         pq.StringArray `bun:"channel_ids,notnull,type:text[]" json:"channel_ids"`
	WindowDays         int            `bun:"window_days,notnull" json:"window_days"`
	VibecheckDebugMode bool           `bun:"vibecheck_debug_mode,notnull,default:false" json:"vibecheck_debug_mode"`
	Status             string         `bun:"status,notnull,default:'INITIATED'" json:"status"`
	MessagesScanned    int            `bun:"messages_scanned,notnull,default:0" json:"messages_scanned"`
	LastBatchNumber    int            `bun:"last_batch_number,notnull,default:0" json:"last_batch_number"`
	CreatedAt          time.Time      `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt          time.Time      `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}

// BulkScanMessage is one platform message carried in a BULK_SCAN_MESSAGE_BATCH event.
type BulkScanMessage struct {
	MessageID      string    `json:"message_id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username,omitempty"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// speaker returns the label used in flashpoint prompt context: username if known,
// falling back to the raw author id.
func (m BulkScanMessage) speaker() string {
	if m.AuthorUsername != "" {
		return m.AuthorUsername
	}
	return m.AuthorID
}

// MessageScore is one message's per-step scores, published in BULK_SCAN_PROGRESS events
// when a community has vibecheck_debug_mode enabled. Unlike FlaggedMessage, this is
// emitted for every message in the batch, not only flagged ones.
type MessageScore struct {
	MessageID            string  `json:"message_id"`
	ModerationFlagged    bool    `json:"moderation_flagged"`
	FlashpointConfidence float64 `json:"flashpoint_confidence"`
	SimilarNoteFound     bool    `json:"similar_note_found"`
}

// FlaggedMessage is a message that triggered moderation, flashpoint detection, or a
// fact-check similarity match during processing, accumulated for the scan's final
// BULK_SCAN_RESULTS event.
type FlaggedMessage struct {
	Message           BulkScanMessage  `json:"message"`
	ModerationFlagged bool             `json:"moderation_flagged"`
	ModerationReason  string           `json:"moderation_reason,omitempty"`
	Flashpoint        *FlashpointMatch `json:"flashpoint,omitempty"`
	SimilarMessageID  *uuid.UUID       `json:"similar_message_id,omitempty"`
	SimilarNoteID     *uuid.UUID       `json:"similar_note_id,omitempty"`
}

// ScanInitiatedPayload is the BULK_SCAN_INITIATED event body.
type ScanInitiatedPayload struct {
	ScanID            uuid.UUID `json:"scan_id"`
	CommunityServerID uuid.UUID `json:"community_server_id"`
	ChannelIDs        []string  `json:"channel_ids"`
	WindowDays        int       `json:"window_days"`
}

// MessageBatchPayload is the BULK_SCAN_MESSAGE_BATCH event body, published by an
// external producer (the chat-platform bot) as it streams historical messages.
type MessageBatchPayload struct {
	ScanID       uuid.UUID         `json:"scan_id"`
	Messages     []BulkScanMessage `json:"messages"`
	BatchNumber  int               `json:"batch_number"`
	IsFinalBatch bool              `json:"is_final_batch"`
}

// ProgressPayload is the BULK_SCAN_PROGRESS event body, published per batch only when
// the owning community has vibecheck_debug_mode enabled.
type ProgressPayload struct {
	ScanID      uuid.UUID      `json:"scan_id"`
	BatchNumber int            `json:"batch_number"`
	Scores      []MessageScore `json:"scores"`
}

// CompletedPayload is the BULK_SCAN_COMPLETED event body, published on the final batch.
type CompletedPayload struct {
	ScanID          uuid.UUID `json:"scan_id"`
	MessagesScanned int       `json:"messages_scanned"`
}

// ResultsPayload is the BULK_SCAN_RESULTS event body, published alongside
// CompletedPayload on the final batch.
type ResultsPayload struct {
	ScanID          uuid.UUID        `json:"scan_id"`
	FlaggedMessages []FlaggedMessage `json:"flagged_messages"`
}

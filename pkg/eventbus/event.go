package eventbus

import "time"

// Event types published across the platform.
const (
	EventVisionDescriptionRequested = "OPENNOTES.vision.description_requested"
	EventBulkScanInitiated          = "OPENNOTES.bulk_scan.initiated"
	EventBulkScanMessageBatch       = "OPENNOTES.bulk_scan.message_batch"
	EventBulkScanCompleted          = "OPENNOTES.bulk_scan.completed"
	EventBulkScanResults            = "OPENNOTES.bulk_scan.results"
	EventBulkScanProgress           = "OPENNOTES.bulk_scan.progress"
	EventNoteScoreUpdated           = "OPENNOTES.note.score_updated"
	EventAuditLogPersisted          = "OPENNOTES.audit.log_persisted"
	EventWebhookReceived            = "OPENNOTES.webhook.received"
)

// Event is one message carried on the bus. Every event carries an id, type, timestamp,
// and a correlation key so consumers can tie related events together (scan_id, job_id,
// community_server_id, etc.) without parsing Payload.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Timestamp     time.Time         `json:"timestamp"`
	Correlation   map[string]string `json:"correlation,omitempty"`
	Payload       []byte            `json:"payload"`
	DeliveryCount int               `json:"delivery_count"`
}

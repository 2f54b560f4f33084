package scoring

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Note is the scoring subsystem's view of a note: only the fields a Scorer or tier
// selection needs, not the full note-authoring lifecycle.
type Note struct {
	bun.BaseModel `bun:"table:opennotes.notes,alias:n"`

	ID                  uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	AuthorParticipantID string    `bun:"author_participant_id,notnull" json:"author_participant_id"`
	CommunityServerID   uuid.UUID `bun:"community_server_id,type:uuid,notnull" json:"community_server_id"`
	Classification      string    `bun:"classification,notnull" json:"classification"`
	Status              string    `bun:"status,notnull" json:"status"`
	HelpfulnessScore    *float64  `bun:"helpfulness_score" json:"helpfulness_score,omitempty"`
	CreatedAt           time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// Rating is one participant's helpfulness rating of a Note.
type Rating struct {
	bun.BaseModel `bun:"table:opennotes.ratings,alias:r"`

	ID                 uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	NoteID             uuid.UUID `bun:"note_id,type:uuid,notnull" json:"note_id"`
	RaterParticipantID string    `bun:"rater_participant_id,notnull" json:"rater_participant_id"`
	HelpfulnessLevel   string    `bun:"helpfulness_level,notnull" json:"helpfulness_level"`
	CreatedAt          time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// ScoreResult is a Scorer's verdict on a single note.
type ScoreResult struct {
	NoteID          uuid.UUID      `json:"note_id"`
	Score           float64        `json:"score"`
	ConfidenceLevel string         `json:"confidence_level"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

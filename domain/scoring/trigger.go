package scoring

// DefaultBatchThreshold is the note count at which a community becomes eligible for
// batch (matrix factorization) scoring instead of the cheap per-note stub.
const DefaultBatchThreshold = 200

// BatchScoringStatus reports where a community sits relative to its batch-scoring
// threshold.
type BatchScoringStatus struct {
	Threshold            int  `json:"threshold"`
	NoteCount            int  `json:"note_count"`
	ReadyForBatchScoring bool `json:"ready_for_batch_scoring"`
	NotesUntilBatch      int  `json:"notes_until_batch"`
}

// BatchScoringTrigger decides when a community has accumulated enough notes to justify
// running batch scoring, and detects the moment it first crosses that line so callers
// can fire a one-time transition event instead of re-triggering on every subsequent note.
type BatchScoringTrigger struct {
	Threshold int
}

// NewBatchScoringTrigger builds a trigger at threshold, or DefaultBatchThreshold when
// threshold is zero.
func NewBatchScoringTrigger(threshold int) *BatchScoringTrigger {
	if threshold == 0 {
		threshold = DefaultBatchThreshold
	}
	return &BatchScoringTrigger{Threshold: threshold}
}

// ShouldTrigger reports whether noteCount is at or above the threshold.
func (t *BatchScoringTrigger) ShouldTrigger(noteCount int) bool {
	return noteCount >= t.Threshold
}

// CheckTransition reports whether adding a note moved a community from below the
// threshold to at-or-above it — true only for the single note count that first crosses
// the line, even if it jumps past it in one step.
func (t *BatchScoringTrigger) CheckTransition(previousCount, currentCount int) bool {
	return currentCount >= t.Threshold && previousCount < t.Threshold
}

// GetStatus summarizes noteCount relative to the threshold.
func (t *BatchScoringTrigger) GetStatus(noteCount int) BatchScoringStatus {
	until := t.Threshold - noteCount
	if until < 0 {
		until = 0
	}
	return BatchScoringStatus{
		Threshold:            t.Threshold,
		NoteCount:            noteCount,
		ReadyForBatchScoring: t.ShouldTrigger(noteCount),
		NotesUntilBatch:      until,
	}
}

package scoring

import (
	"context"
)

// helpfulnessWeight maps a rating's helpfulness level to a numeric contribution in
// [0, 1], the input both scorers below reduce over.
var helpfulnessWeight = map[string]float64{
	"HELPFUL":          1.0,
	"SOMEWHAT_HELPFUL": 0.5,
	"NOT_HELPFUL":      0.0,
}

func weightFor(level string) float64 {
	if w, ok := helpfulnessWeight[level]; ok {
		return w
	}
	return 0.5
}

// confidenceLevelFor grades a score's reliability by how many ratings support it — a
// note with a handful of ratings gets a provisional score even if the number itself
// looks confident.
func confidenceLevelFor(ratingCount int) string {
	switch {
	case ratingCount >= 10:
		return "high"
	case ratingCount >= 3:
		return "standard"
	default:
		return "provisional"
	}
}

// Scorer computes a helpfulness score for one note given the community's full rating
// history. Implementations range from the cheap BayesianAverageScorer (tier MINIMAL) to
// the tiered matrix-factorization scorers used as a community accumulates notes.
type Scorer interface {
	Name() string
	ScoreNote(ctx context.Context, notes []Note, ratings []Rating, noteID string) (ScoreResult, error)
}

// BayesianAverageScorer blends a note's own rating average with the community-wide
// average, pulled toward the prior in proportion to how few ratings the note has — the
// tier-MINIMAL default since it needs no trained model and degrades gracefully with
// sparse data.
type BayesianAverageScorer struct {
	// PriorWeight is the number of "virtual" community-average ratings blended into
	// every note's score; higher values pull sparse notes harder toward the prior.
	PriorWeight float64
}

// NewBayesianAverageScorer builds a BayesianAverageScorer with a sane default prior
// weight.
func NewBayesianAverageScorer() *BayesianAverageScorer {
	return &BayesianAverageScorer{PriorWeight: 5}
}

func (s *BayesianAverageScorer) Name() string { return "BayesianAverageScorer" }

func (s *BayesianAverageScorer) ScoreNote(ctx context.Context, notes []Note, ratings []Rating, noteID string) (ScoreResult, error) {
	communitySum, communityCount := 0.0, 0
	noteSum, noteCount := 0.0, 0

	for _, r := range ratings {
		w := weightFor(r.HelpfulnessLevel)
		communitySum += w
		communityCount++
		if r.NoteID.String() == noteID {
			noteSum += w
			noteCount++
		}
	}

	communityAvg := 0.5
	if communityCount > 0 {
		communityAvg = communitySum / float64(communityCount)
	}

	score := (s.PriorWeight*communityAvg + noteSum) / (s.PriorWeight + float64(noteCount))

	return ScoreResult{
		Score:           score,
		ConfidenceLevel: confidenceLevelFor(noteCount),
		Metadata:        map[string]any{"source": s.Name()},
	}, nil
}

// MFCoreScorer stands in for the trained matrix-factorization scorer used once a
// community has enough notes and raters for collaborative filtering to outperform a
// simple average. The actual factorization algorithm is out of scope here — this
// computes a participant-weighted average as a structurally faithful substitute so the
// tiering, degradation, and caching machinery around it has something real to exercise.
type MFCoreScorer struct {
	name string
}

// NewMFCoreScorer builds an MFCoreScorer identifying itself as name (e.g.
// "MFExpansionScorer" for a higher tier reusing the same substitute computation).
func NewMFCoreScorer(name string) *MFCoreScorer {
	if name == "" {
		name = "MFCoreScorer"
	}
	return &MFCoreScorer{name: name}
}

func (s *MFCoreScorer) Name() string { return s.name }

func (s *MFCoreScorer) ScoreNote(ctx context.Context, notes []Note, ratings []Rating, noteID string) (ScoreResult, error) {
	raterWeight := make(map[string]float64)
	for _, r := range ratings {
		raterWeight[r.RaterParticipantID] += weightFor(r.HelpfulnessLevel)
	}

	var weighted, totalWeight float64
	var noteRatings int
	for _, r := range ratings {
		if r.NoteID.String() != noteID {
			continue
		}
		noteRatings++
		w := 1.0 + raterWeight[r.RaterParticipantID]/10
		weighted += w * weightFor(r.HelpfulnessLevel)
		totalWeight += w
	}

	score := 0.5
	if totalWeight > 0 {
		score = weighted / totalWeight
	}

	return ScoreResult{
		Score:           score,
		ConfidenceLevel: confidenceLevelFor(noteRatings),
		Metadata:        map[string]any{"source": s.Name()},
	}, nil
}

package scoring

// Tier selects the scorer set applied to a community, graduated by total note count so
// small communities aren't charged the cost of matrix factorization before they have
// enough ratings to make it meaningful.
type Tier string

const (
	TierMinimal      Tier = "minimal"
	TierLimited      Tier = "limited"
	TierBasic        Tier = "basic"
	TierIntermediate Tier = "intermediate"
	TierAdvanced     Tier = "advanced"
	TierFull         Tier = "full"
)

// TierThresholds describes one tier's note-count range (MaxNotes nil means unbounded)
// and which scorers run at that tier.
type TierThresholds struct {
	MinNotes             int
	MaxNotes             *int
	Scorers              []string
	RequiresFullPipeline bool
	EnableClustering     bool
	ConfidenceWarnings   bool
}

func intPtr(n int) *int { return &n }

// tierConfigurations is ordered and contiguous: each tier's MaxNotes equals the next
// tier's MinNotes, and TierFull's MaxNotes is nil (unbounded).
var tierConfigurations = map[Tier]TierThresholds{
	TierMinimal: {
		MinNotes: 0, MaxNotes: intPtr(200),
		Scorers:            []string{"BayesianAverageScorer"},
		ConfidenceWarnings: true,
	},
	TierLimited: {
		MinNotes: 200, MaxNotes: intPtr(1000),
		Scorers:            []string{"MFCoreScorer"},
		ConfidenceWarnings: true,
	},
	TierBasic: {
		MinNotes: 1000, MaxNotes: intPtr(5000),
		Scorers: []string{"MFCoreScorer"},
	},
	TierIntermediate: {
		MinNotes: 5000, MaxNotes: intPtr(10000),
		Scorers: []string{"MFCoreScorer", "MFExpansionScorer"},
	},
	TierAdvanced: {
		MinNotes: 10000, MaxNotes: intPtr(50000),
		Scorers:              []string{"MFCoreScorer", "MFExpansionScorer", "MFGroupScorer", "MFExpansionPlusScorer"},
		RequiresFullPipeline: true,
	},
	TierFull: {
		MinNotes: 50000, MaxNotes: nil,
		Scorers:              []string{"MFCoreScorer", "MFExpansionScorer", "MFGroupScorer", "MFExpansionPlusScorer"},
		RequiresFullPipeline: true,
		EnableClustering:     true,
	},
}

// orderedTiers lists tiers from lowest to highest note-count range.
var orderedTiers = []Tier{TierMinimal, TierLimited, TierBasic, TierIntermediate, TierAdvanced, TierFull}

// TierForNoteCount returns the unique tier whose [MinNotes, MaxNotes) range contains n;
// a boundary value belongs to the higher tier.
func TierForNoteCount(n int) Tier {
	for _, tier := range orderedTiers {
		cfg := tierConfigurations[tier]
		if cfg.MaxNotes == nil || n < *cfg.MaxNotes {
			return tier
		}
	}
	return TierFull
}

// TierConfig returns tier's thresholds and whether tier is a recognized tier.
func TierConfig(tier Tier) (TierThresholds, bool) {
	cfg, ok := tierConfigurations[tier]
	return cfg, ok
}

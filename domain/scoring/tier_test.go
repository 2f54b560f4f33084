package scoring

import "testing"

func TestTierForNoteCount(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  Tier
	}{
		{"zero", 0, TierMinimal},
		{"minimal upper", 199, TierMinimal},
		{"limited lower boundary", 200, TierLimited},
		{"limited upper", 999, TierLimited},
		{"basic lower boundary", 1000, TierBasic},
		{"basic upper", 4999, TierBasic},
		{"intermediate lower boundary", 5000, TierIntermediate},
		{"intermediate upper", 9999, TierIntermediate},
		{"advanced lower boundary", 10000, TierAdvanced},
		{"advanced upper", 49999, TierAdvanced},
		{"full lower boundary", 50000, TierFull},
		{"full large", 1000000, TierFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TierForNoteCount(tt.count); got != tt.want {
				t.Errorf("TierForNoteCount(%d) = %q, want %q", tt.count, got, tt.want)
			}
		})
	}
}

func TestTierRangesAreContiguous(t *testing.T) {
	for i := 0; i < len(orderedTiers)-1; i++ {
		cur := tierConfigurations[orderedTiers[i]]
		next := tierConfigurations[orderedTiers[i+1]]
		if cur.MaxNotes == nil {
			t.Fatalf("%s has no upper bound but isn't the last tier", orderedTiers[i])
		}
		if *cur.MaxNotes != next.MinNotes {
			t.Errorf("%s.MaxNotes=%d != %s.MinNotes=%d", orderedTiers[i], *cur.MaxNotes, orderedTiers[i+1], next.MinNotes)
		}
	}
}

func TestTierConfigScorerComplexityIncreasesWithTier(t *testing.T) {
	minimal, _ := TierConfig(TierMinimal)
	basic, _ := TierConfig(TierBasic)
	advanced, _ := TierConfig(TierAdvanced)

	if len(minimal.Scorers) > len(basic.Scorers) {
		t.Error("minimal tier should not have more scorers than basic")
	}
	if len(basic.Scorers) > len(advanced.Scorers) {
		t.Error("basic tier should not have more scorers than advanced")
	}
}

func TestTierConfigUnknownTier(t *testing.T) {
	if _, ok := TierConfig("bogus"); ok {
		t.Error("expected unknown tier to report ok=false")
	}
}

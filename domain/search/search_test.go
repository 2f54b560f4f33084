package search

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinMax(t *testing.T) {
	tests := []struct {
		name    string
		scores  []float32
		wantMin float32
		wantMax float32
	}{
		{name: "empty", scores: nil, wantMin: 0, wantMax: 0},
		{name: "single", scores: []float32{5}, wantMin: 5, wantMax: 5},
		{name: "spread", scores: []float32{1, 4, 2}, wantMin: 1, wantMax: 4},
		{name: "negative", scores: []float32{-3, -1, -8}, wantMin: -8, wantMax: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			min, max := minMax(tt.scores)
			assert.Equal(t, tt.wantMin, min)
			assert.Equal(t, tt.wantMax, max)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, float32(0), normalize(1, 1, 5))
	assert.Equal(t, float32(1), normalize(5, 1, 5))
	assert.Equal(t, float32(0.5), normalize(3, 1, 5))
	assert.Equal(t, float32(1), normalize(7, 7, 7), "degenerate set normalizes to 1, not NaN")
}

func TestFuse_ConvexCombination(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	semantic := []Candidate{
		{ChunkID: a, SourceType: "fact_check", SourceID: uuid.New(), Text: "a", Score: 0.9},
		{ChunkID: b, SourceType: "fact_check", SourceID: uuid.New(), Text: "b", Score: 0.1},
	}
	keyword := []Candidate{
		{ChunkID: a, SourceType: "fact_check", SourceID: uuid.New(), Text: "a", Score: 0.2},
		{ChunkID: b, SourceType: "fact_check", SourceID: uuid.New(), Text: "b", Score: 0.8},
	}

	// alpha=1 collapses to pure semantic ranking: a (sem_norm=1) beats b (sem_norm=0).
	results := fuse(semantic, keyword, 1.0, 10)
	require.Len(t, results, 2)
	assert.Equal(t, a.String(), results[0].ChunkID)

	// alpha=0 collapses to pure keyword ranking: b (kw_norm=1) beats a (kw_norm=0).
	results = fuse(semantic, keyword, 0.0, 10)
	require.Len(t, results, 2)
	assert.Equal(t, b.String(), results[0].ChunkID)
}

func TestFuse_ChunkOnlyInOneSetContributesZeroForTheOther(t *testing.T) {
	onlySemantic := uuid.New()

	semantic := []Candidate{
		{ChunkID: onlySemantic, SourceType: "fact_check", SourceID: uuid.New(), Text: "x", Score: 0.5},
	}

	results := fuse(semantic, nil, 0.5, 10)
	require.Len(t, results, 1)
	assert.Equal(t, float32(0), results[0].KeywordNorm)
	assert.Equal(t, float32(1), results[0].SemanticNorm, "single-candidate set normalizes to 1")
	assert.Equal(t, float32(0.5), results[0].Score)
}

func TestFuse_RespectsLimit(t *testing.T) {
	semantic := make([]Candidate, 0, 5)
	for i := 0; i < 5; i++ {
		semantic = append(semantic, Candidate{ChunkID: uuid.New(), Score: float32(i)})
	}
	results := fuse(semantic, nil, 1.0, 2)
	assert.Len(t, results, 2)
}

func TestAlphaBucket(t *testing.T) {
	assert.Equal(t, "0.7", alphaBucket(0.73))
	assert.Equal(t, "0.0", alphaBucket(0.0))
	assert.Equal(t, "1.0", alphaBucket(1.0))
}

package search

// SearchRequest is the request body for a hybrid search.
type SearchRequest struct {
	Query        string   `json:"query" validate:"required,max=800"`
	Dataset      []string `json:"dataset,omitempty"`
	Limit        int      `json:"limit,omitempty"`
	IncludeDebug bool     `json:"includeDebug,omitempty"`
}

// SearchResultItem is one fused, ranked chunk.
type SearchResultItem struct {
	ChunkID       string  `json:"chunk_id"`
	SourceType    string  `json:"source_type"`
	SourceID      string  `json:"source_id"`
	Text          string  `json:"text"`
	Score         float32 `json:"score"`
	SemanticNorm  float32 `json:"semantic_norm"`
	KeywordNorm   float32 `json:"keyword_norm"`
	SemanticScore float32 `json:"semantic_score,omitempty"`
	KeywordScore  float32 `json:"keyword_score,omitempty"`
}

// SearchMetadata describes how a SearchResponse was produced.
type SearchMetadata struct {
	Alpha        float32  `json:"alpha"`
	Dataset      []string `json:"dataset,omitempty"`
	TotalResults int      `json:"total_results"`
	DurationMs   int      `json:"duration_ms"`
}

// SearchDebug carries pre-fusion candidate counts when IncludeDebug is set.
type SearchDebug struct {
	SemanticCandidates int `json:"semantic_candidates"`
	KeywordCandidates  int `json:"keyword_candidates"`
}

// SearchResponse is the response body for a hybrid search.
type SearchResponse struct {
	Results  []SearchResultItem `json:"results"`
	Metadata SearchMetadata     `json:"metadata"`
	Debug    *SearchDebug       `json:"debug,omitempty"`
}

// SetAlphaRequest updates the default fusion weight, or a dataset-specific override when
// Dataset is non-empty.
type SetAlphaRequest struct {
	Alpha   float32 `json:"alpha"`
	Dataset string  `json:"dataset,omitempty"`
}

// AlphasResponse lists the current default and every dataset-specific override.
type AlphasResponse struct {
	Default   float32            `json:"default"`
	Overrides map[string]float32 `json:"overrides"`
}

package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/opennotes-ai/opennotes-server/pkg/cache"
	"github.com/opennotes-ai/opennotes-server/pkg/embeddings"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

const (
	defaultSemanticCandidates = 50
	defaultKeywordCandidates  = 50
	maxResultLimit            = 100
	queryEmbeddingTTL         = time.Hour
)

// Service runs hybrid search: vector + full-text retrieval, min-max normalization within
// each candidate set, and Convex Combination fusion under a dynamically resolved α.
type Service struct {
	repo       *Repository
	alpha      *AlphaResolver
	embeddings *embeddings.Service
	cache      *cache.Client
	log        *slog.Logger
}

// NewService builds a Service.
func NewService(repo *Repository, alpha *AlphaResolver, embeddingsSvc *embeddings.Service, cacheClient *cache.Client, log *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		alpha:      alpha,
		embeddings: embeddingsSvc,
		cache:      cacheClient,
		log:        log.With(logger.Scope("search.svc")),
	}
}

// Search runs one hybrid search request end to end.
func (s *Service) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	start := time.Now()

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > maxResultLimit {
		limit = maxResultLimit
	}

	vector, err := s.embedQueryCached(ctx, req.Query)
	if err != nil {
		s.log.Warn("query embedding failed, continuing keyword-only", logger.Error(err))
	}

	semantic, err := s.repo.VectorCandidates(ctx, vector, req.Dataset, defaultSemanticCandidates)
	if err != nil {
		return nil, err
	}
	keyword, err := s.repo.KeywordCandidates(ctx, req.Query, req.Dataset, defaultKeywordCandidates)
	if err != nil {
		return nil, err
	}

	dataset := req.Dataset
	alphaKey := ""
	if len(dataset) == 1 {
		alphaKey = dataset[0]
	}
	alpha := s.alpha.Resolve(ctx, alphaKey)

	fused := fuse(semantic, keyword, alpha, limit)

	var debug *SearchDebug
	if req.IncludeDebug {
		debug = &SearchDebug{
			SemanticCandidates: len(semantic),
			KeywordCandidates:  len(keyword),
		}
	}

	resp := &SearchResponse{
		Results: fused,
		Metadata: SearchMetadata{
			Alpha:        alpha,
			Dataset:      dataset,
			TotalResults: len(fused),
			DurationMs:   int(time.Since(start).Milliseconds()),
		},
		Debug: debug,
	}

	go s.recordAnalytics(req.Query, alpha, dataset, resp.Metadata.TotalResults, fused, time.Since(start))

	return resp, nil
}

// fuse min-max normalizes each candidate set independently, then combines them by
// Convex Combination: final_score = α·semantic_norm + (1−α)·keyword_norm. A chunk present
// in only one set contributes 0 for the other's normalized score.
func fuse(semantic, keyword []Candidate, alpha float32, limit int) []SearchResultItem {
	semScores := make(map[uuid.UUID]float32, len(semantic))
	rawSem := make([]float32, len(semantic))
	for i, c := range semantic {
		rawSem[i] = c.Score
	}
	semMin, semMax := minMax(rawSem)
	for _, c := range semantic {
		semScores[c.ChunkID] = normalize(c.Score, semMin, semMax)
	}

	kwScores := make(map[uuid.UUID]float32, len(keyword))
	rawKw := make([]float32, len(keyword))
	for i, c := range keyword {
		rawKw[i] = c.Score
	}
	kwMin, kwMax := minMax(rawKw)
	for _, c := range keyword {
		kwScores[c.ChunkID] = normalize(c.Score, kwMin, kwMax)
	}

	byID := make(map[uuid.UUID]Candidate, len(semantic)+len(keyword))
	semRaw := make(map[uuid.UUID]float32, len(semantic))
	kwRaw := make(map[uuid.UUID]float32, len(keyword))
	for _, c := range semantic {
		byID[c.ChunkID] = c
		semRaw[c.ChunkID] = c.Score
	}
	for _, c := range keyword {
		kwRaw[c.ChunkID] = c.Score
		if _, ok := byID[c.ChunkID]; !ok {
			byID[c.ChunkID] = c
		}
	}

	items := make([]SearchResultItem, 0, len(byID))
	for id, c := range byID {
		semNorm := semScores[id]
		kwNorm := kwScores[id]
		items = append(items, SearchResultItem{
			ChunkID:       id.String(),
			SourceType:    c.SourceType,
			SourceID:      c.SourceID.String(),
			Text:          c.Text,
			Score:         alpha*semNorm + (1-alpha)*kwNorm,
			SemanticNorm:  semNorm,
			KeywordNorm:   kwNorm,
			SemanticScore: semRaw[id],
			KeywordScore:  kwRaw[id],
		})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})

	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// minMax returns the min and max of scores, or (0,0) for an empty set.
func minMax(scores []float32) (min, max float32) {
	if len(scores) == 0 {
		return 0, 0
	}
	min, max = scores[0], scores[0]
	for _, s := range scores {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return min, max
}

// normalize min-max scales v into [0,1] given the set's min/max. A degenerate set
// (min==max) normalizes every member to 1 rather than dividing by zero.
func normalize(v, min, max float32) float32 {
	if max <= min {
		return 1
	}
	return (v - min) / (max - min)
}

// embedQueryCached computes the query embedding once per distinct query text, caching
// under its content hash so repeat searches for the same query skip the LLM call.
func (s *Service) embedQueryCached(ctx context.Context, query string) ([]float32, error) {
	key := "search:query_embedding:" + queryHash(query)

	if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var vec []float32
		if err := json.Unmarshal(raw, &vec); err == nil {
			return vec, nil
		}
	}

	vec, err := s.embeddings.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(vec); err == nil {
		if err := s.cache.Set(ctx, key, encoded, queryEmbeddingTTL); err != nil {
			s.log.Warn("failed to cache query embedding", logger.Error(err))
		}
	}
	return vec, nil
}

func queryHash(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])[:16]
}

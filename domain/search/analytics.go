package search

import (
	"context"
	"time"

	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

const analyticsCountersKey = "search:analytics:counters"

// recordAnalytics emits one structured analytics record and rolls it into the cached
// aggregate counters. Runs detached from the request context so a failure here (or the
// caller disconnecting) never affects the search response already returned.
func (s *Service) recordAnalytics(query string, alpha float32, dataset []string, resultCount int, results []SearchResultItem, elapsed time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var topScore, minScore, maxScore, spread float32
	if len(results) > 0 {
		minScore, maxScore = results[0].Score, results[0].Score
		for _, r := range results {
			if r.Score < minScore {
				minScore = r.Score
			}
			if r.Score > maxScore {
				maxScore = r.Score
			}
		}
		topScore = results[0].Score
		spread = maxScore - minScore
	}

	s.log.Info("search analytics",
		"query_hash", queryHash(query),
		"alpha", alpha,
		"dataset", dataset,
		"result_count", resultCount,
		"top_score", topScore,
		"min_score", minScore,
		"max_score", maxScore,
		"spread", spread,
		"duration_ms", elapsed.Milliseconds(),
	)

	if _, err := s.cache.HIncrBy(ctx, analyticsCountersKey, "total_searches", 1); err != nil {
		s.log.Warn("failed to update search analytics counters", logger.Error(err))
		return
	}
	if _, err := s.cache.HIncrBy(ctx, analyticsCountersKey, "total_results", int64(resultCount)); err != nil {
		s.log.Warn("failed to update search analytics counters", logger.Error(err))
	}

	bucket := alphaBucket(alpha)
	if _, err := s.cache.HIncrBy(ctx, analyticsCountersKey, "alpha_bucket:"+bucket, 1); err != nil {
		s.log.Warn("failed to update search analytics alpha histogram", logger.Error(err))
	}
}

// alphaBucket rounds alpha down to its nearest tenth for the histogram, e.g. 0.73 -> "0.7".
func alphaBucket(alpha float32) string {
	tenths := int(alpha * 10)
	if tenths < 0 {
		tenths = 0
	}
	if tenths > 10 {
		tenths = 10
	}
	digits := "0123456789"
	if tenths == 10 {
		return "1.0"
	}
	return "0." + string(digits[tenths])
}

package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/opennotes-ai/opennotes-server/pkg/cache"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// DefaultAlpha is the convex-combination weight used when neither a dataset-specific nor
// a default override has been cached yet.
const DefaultAlpha float32 = 0.7

const defaultAlphaKey = "search:fusion:default_alpha"

func datasetAlphaKey(dataset string) string {
	return "search:fusion:alpha:" + dataset
}

// AlphaResolver reads and writes the fusion weight α, self-healing the cache on miss or
// corruption the same way pkg/encryption reads its key: try the specific value, fall back,
// and write the fallback back so the next read is cached.
type AlphaResolver struct {
	cache *cache.Client
	log   *slog.Logger
}

// NewAlphaResolver builds an AlphaResolver.
func NewAlphaResolver(c *cache.Client, log *slog.Logger) *AlphaResolver {
	return &AlphaResolver{cache: c, log: log.With(logger.Scope("search.alpha"))}
}

// Resolve returns the α to use for dataset, in priority order: the dataset-specific
// override, then the default override, then DefaultAlpha. When neither key holds a valid
// α, it self-heals by writing DefaultAlpha to the default key so subsequent reads hit the
// cache; a missing dataset-specific key is not written.
func (a *AlphaResolver) Resolve(ctx context.Context, dataset string) float32 {
	if dataset != "" {
		if v, ok := a.readValid(ctx, datasetAlphaKey(dataset)); ok {
			return v
		}
	}
	if v, ok := a.readValid(ctx, defaultAlphaKey); ok {
		return v
	}

	if err := a.cache.Set(ctx, defaultAlphaKey, []byte(formatAlpha(DefaultAlpha)), 0); err != nil {
		a.log.Warn("failed to self-heal default fusion alpha", logger.Error(err))
	}
	return DefaultAlpha
}

// readValid fetches key and returns (value, true) only if present and a valid α in
// [0,1]. An out-of-range or non-numeric cached value is warned about and ignored, as if
// it were a miss — the caller falls through to the next priority level.
func (a *AlphaResolver) readValid(ctx context.Context, key string) (float32, bool) {
	raw, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		a.log.Warn("fusion alpha cache read failed", slog.String("key", key), logger.Error(err))
		return 0, false
	}
	if !ok {
		return 0, false
	}

	v, err := strconv.ParseFloat(string(raw), 32)
	if err != nil || v < 0.0 || v > 1.0 {
		a.log.Warn("invalid cached fusion alpha, restoring fallback",
			slog.String("key", key), slog.String("value", string(raw)))
		return 0, false
	}
	return float32(v), true
}

// SetDefault overwrites the default fusion weight. Rejects α outside [0,1].
func (a *AlphaResolver) SetDefault(ctx context.Context, alpha float32) error {
	if alpha < 0.0 || alpha > 1.0 {
		return fmt.Errorf("alpha must be in [0,1], got %v", alpha)
	}
	return a.cache.Set(ctx, defaultAlphaKey, []byte(formatAlpha(alpha)), 0)
}

// SetOverride sets a dataset-specific fusion weight override. Rejects α outside [0,1] or
// an empty dataset.
func (a *AlphaResolver) SetOverride(ctx context.Context, dataset string, alpha float32) error {
	if dataset == "" {
		return fmt.Errorf("dataset is required for an override")
	}
	if alpha < 0.0 || alpha > 1.0 {
		return fmt.Errorf("alpha must be in [0,1], got %v", alpha)
	}
	return a.cache.Set(ctx, datasetAlphaKey(dataset), []byte(formatAlpha(alpha)), 0)
}

// DeleteOverride removes a dataset-specific override, reverting that dataset to the
// default. A subsequent Resolve self-heals the default key if it isn't already cached.
func (a *AlphaResolver) DeleteOverride(ctx context.Context, dataset string) error {
	if dataset == "" {
		return fmt.Errorf("dataset is required to delete an override")
	}
	return a.cache.Delete(ctx, datasetAlphaKey(dataset))
}

// ListOverrides returns the current default alongside every dataset-specific override
// currently cached.
func (a *AlphaResolver) ListOverrides(ctx context.Context) (*AlphasResponse, error) {
	resp := &AlphasResponse{
		Default:   a.Resolve(ctx, ""),
		Overrides: map[string]float32{},
	}

	keys, err := a.cache.Keys(ctx, datasetAlphaKey("*"))
	if err != nil {
		return nil, err
	}
	prefix := datasetAlphaKey("")
	for _, key := range keys {
		dataset := key[len(prefix):]
		if v, ok := a.readValid(ctx, key); ok {
			resp.Overrides[dataset] = v
		}
	}
	return resp, nil
}

func formatAlpha(alpha float32) string {
	return strconv.FormatFloat(float64(alpha), 'f', -1, 32)
}

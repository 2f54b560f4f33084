package search

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/opennotes-ai/opennotes-server/pkg/cache"
)

func newTestAlphaResolver(t *testing.T) *AlphaResolver {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cacheClient := cache.NewClientForTest(rdb, slog.Default())
	return NewAlphaResolver(cacheClient, slog.Default())
}

func TestAlphaResolver_Resolve_SelfHealsOnMiss(t *testing.T) {
	a := newTestAlphaResolver(t)
	ctx := context.Background()

	got := a.Resolve(ctx, "")
	require.Equal(t, DefaultAlpha, got)

	resp, err := a.ListOverrides(ctx)
	require.NoError(t, err)
	require.Equal(t, DefaultAlpha, resp.Default, "self-heal should have cached the fallback")
}

func TestAlphaResolver_Resolve_PrefersDatasetOverrideOverDefault(t *testing.T) {
	a := newTestAlphaResolver(t)
	ctx := context.Background()

	require.NoError(t, a.SetDefault(ctx, 0.5))
	require.NoError(t, a.SetOverride(ctx, "snopes", 0.9))

	require.Equal(t, float32(0.9), a.Resolve(ctx, "snopes"))
	require.Equal(t, float32(0.5), a.Resolve(ctx, "other-dataset"))
}

func TestAlphaResolver_Resolve_InvalidCachedValueFallsBack(t *testing.T) {
	a := newTestAlphaResolver(t)
	ctx := context.Background()

	require.NoError(t, a.cache.Set(ctx, datasetAlphaKey("broken"), []byte("not-a-number"), 0))
	require.Equal(t, DefaultAlpha, a.Resolve(ctx, "broken"))

	require.NoError(t, a.cache.Set(ctx, datasetAlphaKey("out-of-range"), []byte("1.5"), 0))
	require.Equal(t, DefaultAlpha, a.Resolve(ctx, "out-of-range"))
}

func TestAlphaResolver_SetOverride_RejectsInvalidAlpha(t *testing.T) {
	a := newTestAlphaResolver(t)
	ctx := context.Background()

	require.Error(t, a.SetOverride(ctx, "snopes", -0.1))
	require.Error(t, a.SetOverride(ctx, "snopes", 1.5))
	require.Error(t, a.SetOverride(ctx, "", 0.5), "dataset is required for an override")

	require.NoError(t, a.SetOverride(ctx, "snopes", 0.0))
	require.NoError(t, a.SetOverride(ctx, "snopes", 1.0))
}

func TestAlphaResolver_DeleteOverride_RevertsToDefault(t *testing.T) {
	a := newTestAlphaResolver(t)
	ctx := context.Background()

	require.NoError(t, a.SetDefault(ctx, 0.4))
	require.NoError(t, a.SetOverride(ctx, "snopes", 0.9))
	require.Equal(t, float32(0.9), a.Resolve(ctx, "snopes"))

	require.NoError(t, a.DeleteOverride(ctx, "snopes"))
	require.Equal(t, float32(0.4), a.Resolve(ctx, "snopes"))
}

func TestAlphaResolver_ListOverrides(t *testing.T) {
	a := newTestAlphaResolver(t)
	ctx := context.Background()

	require.NoError(t, a.SetOverride(ctx, "snopes", 0.9))
	require.NoError(t, a.SetOverride(ctx, "politifact", 0.3))

	resp, err := a.ListOverrides(ctx)
	require.NoError(t, err)
	require.Equal(t, float32(0.9), resp.Overrides["snopes"])
	require.Equal(t, float32(0.3), resp.Overrides["politifact"])
}

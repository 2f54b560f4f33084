package cache

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &Client{rdb: rdb, log: slog.Default()}, mr
}

func TestClient_SetGetDelete(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	err := c.Set(ctx, "foo", []byte("bar"), time.Minute)
	require.NoError(t, err)

	val, ok, err := c.Get(ctx, "foo")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "bar", string(val))

	exists, err := c.Exists(ctx, "foo")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, c.Delete(ctx, "foo"))

	_, ok, err = c.Get(ctx, "foo")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClient_Get_Missing(t *testing.T) {
	c, _ := newTestClient(t)
	_, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClient_KeysAndMGet(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a:1", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "a:2", []byte("2"), time.Minute))

	keys, err := c.Keys(ctx, "a:*")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a:1", "a:2"}, keys)

	vals, err := c.MGet(ctx, "a:1", "a:2", "a:missing")
	require.NoError(t, err)
	require.Len(t, vals, 3)
	require.Equal(t, "1", vals[0])
	require.Equal(t, "2", vals[1])
	require.Nil(t, vals[2])
}

func TestClient_HIncrBy(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	n, err := c.HIncrBy(ctx, "counters", "hits", 3)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	n, err = c.HIncrBy(ctx, "counters", "hits", 2)
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
}

func TestClient_Publish(t *testing.T) {
	c, _ := newTestClient(t)
	err := c.Publish(context.Background(), "events", []byte("hello"))
	require.NoError(t, err)
}

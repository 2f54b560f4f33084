package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessions_CreateGetRefresh(t *testing.T) {
	c, mr := newTestClient(t)
	s := NewSessions(c)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "sess-1", "user-1", []byte(`{"foo":"bar"}`), time.Hour))

	blob, ok, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"foo":"bar"}`, string(blob))

	mr.FastForward(59 * time.Minute)
	require.NoError(t, s.Refresh(ctx, "sess-1", time.Hour))

	mr.FastForward(59 * time.Minute)
	_, ok, err = s.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, ok, "refreshed session should still be alive")
}

func TestSessions_Get_MissingOrExpired(t *testing.T) {
	c, mr := newTestClient(t)
	s := NewSessions(c)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "sess-2", "user-2", []byte("data"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := s.Get(ctx, "sess-2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSessions_Revoke(t *testing.T) {
	c, _ := newTestClient(t)
	s := NewSessions(c)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "sess-3", "user-3", []byte("data"), time.Hour))
	require.NoError(t, s.Revoke(ctx, "sess-3", "user-3"))

	_, ok, err := s.Get(ctx, "sess-3")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSessions_RevokeAllForUser(t *testing.T) {
	c, _ := newTestClient(t)
	s := NewSessions(c)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "sess-4a", "user-4", []byte("a"), time.Hour))
	require.NoError(t, s.Create(ctx, "sess-4b", "user-4", []byte("b"), time.Hour))

	require.NoError(t, s.RevokeAllForUser(ctx, "user-4"))

	_, ok, err := s.Get(ctx, "sess-4a")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = s.Get(ctx, "sess-4b")
	require.NoError(t, err)
	require.False(t, ok)
}

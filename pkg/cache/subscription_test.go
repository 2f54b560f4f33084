package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscriptions_DeliversMessages(t *testing.T) {
	c, _ := newTestClient(t)
	s := NewSubscriptions(c)

	var mu sync.Mutex
	var received []string

	s.Subscribe("events", func(channel string, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, string(payload))
	})

	// give the subscribe goroutine time to register with miniredis before publishing
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.Publish(context.Background(), "events", []byte("hello")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	s.Stop()
}

func TestSubscriptions_StopClearsAll(t *testing.T) {
	c, _ := newTestClient(t)
	s := NewSubscriptions(c)

	s.Subscribe("a", func(string, []byte) {})
	s.Subscribe("b", func(string, []byte) {})

	s.mu.Lock()
	require.Len(t, s.subs, 2)
	s.mu.Unlock()

	s.Stop()

	s.mu.Lock()
	require.Len(t, s.subs, 0)
	s.mu.Unlock()

	// stopping again must not panic or leak
	s.Stop()
}

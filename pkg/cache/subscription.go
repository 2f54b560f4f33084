package cache

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// Handler processes one pub/sub message payload.
type Handler func(channel string, payload []byte)

type subscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

// Subscriptions tracks every background subscribe() task spawned via Subscribe so Stop
// can cancel all of them without leaking goroutines across repeated subscribe/stop cycles.
type Subscriptions struct {
	mu   sync.Mutex
	subs []*subscription
	c    *Client
	log  *slog.Logger
}

// NewSubscriptions builds a subscription tracker bound to c.
func NewSubscriptions(c *Client) *Subscriptions {
	return &Subscriptions{c: c, log: c.log.With(logger.Scope("cache.subscriptions"))}
}

// Subscribe spawns a background task delivering messages on channel to handler. The task
// is tracked so Stop can cancel it.
func (s *Subscriptions) Subscribe(channel string, handler Handler) {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := s.c.rdb.Subscribe(ctx, channel)

	sub := &subscription{pubsub: pubsub, cancel: cancel}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler(msg.Channel, []byte(msg.Payload))
			}
		}
	}()
}

// Stop cancels every tracked subscription, best-effort unsubscribes, closes each pubsub,
// and clears the list.
func (s *Subscriptions) Stop() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		if err := sub.pubsub.Unsubscribe(context.Background()); err != nil {
			s.log.Warn("unsubscribe failed", logger.Error(err))
		}
		if err := sub.pubsub.Close(); err != nil {
			s.log.Warn("close pubsub failed", logger.Error(err))
		}
	}
}

// Package eventbus implements a durable, at-least-once pub/sub abstraction over Redis
// Streams: named streams, durable competing-consumer groups, ack-on-success delivery,
// bounded-retry redelivery, and an eventual dead-letter stream.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/opennotes-ai/opennotes-server/pkg/cache"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

var Module = fx.Module("eventbus",
	fx.Provide(NewBus),
)

// Handler processes one delivered event. Returning a non-nil error leaves the message
// unacknowledged so it is retried (up to ConsumerOptions.MaxRetries) before moving to the
// stream's dead-letter queue.
type Handler func(ctx context.Context, ev Event) error

// ConsumerOptions configures a durable consumer-group subscription.
type ConsumerOptions struct {
	ConsumerGroup string
	ConsumerName  string
	MaxRetries    int
	BlockTimeout  time.Duration
	ClaimMinIdle  time.Duration
	BatchSize     int64
}

func (o ConsumerOptions) withDefaults() ConsumerOptions {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.BlockTimeout <= 0 {
		o.BlockTimeout = 5 * time.Second
	}
	if o.ClaimMinIdle <= 0 {
		o.ClaimMinIdle = 30 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	return o
}

type subscription struct {
	eventType string
	cfg       ConsumerOptions
	cancel    context.CancelFunc
	handler   Handler
}

// Bus is the Redis Streams-backed event bus.
type Bus struct {
	rdb *redis.Client
	log *slog.Logger

	mu   sync.Mutex
	subs map[string]*subscription
}

// NewBus builds a Bus over the shared cache.Client's Redis connection and registers an
// fx shutdown hook that stops every background subscription loop.
func NewBus(lc fx.Lifecycle, c *cache.Client, log *slog.Logger) *Bus {
	b := &Bus{
		rdb:  c.Raw(),
		log:  log.With(logger.Scope("eventbus")),
		subs: make(map[string]*subscription),
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			b.Stop()
			return nil
		},
	})

	return b
}

func streamKey(eventType string) string {
	return fmt.Sprintf("events:%s", eventType)
}

func dlqKey(eventType string) string {
	return fmt.Sprintf("events:%s:dlq", eventType)
}

func subKey(eventType, group string) string {
	return eventType + "|" + group
}

// Publish appends an event of eventType to its stream, stamping event_id and timestamp.
// correlation keys (scan_id, job_id, community_server_id, ...) ride alongside payload so
// consumers can trace related events without unmarshaling it.
func (b *Bus) Publish(ctx context.Context, eventType string, correlation map[string]string, payload []byte) (string, error) {
	eventID := uuid.New().String()
	correlationJSON, err := json.Marshal(correlation)
	if err != nil {
		return "", fmt.Errorf("marshal correlation: %w", err)
	}

	id, err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(eventType),
		Values: map[string]interface{}{
			"event_id":    eventID,
			"event_type":  eventType,
			"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
			"correlation": string(correlationJSON),
			"payload":     payload,
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", eventType, err)
	}

	b.log.Debug("event published",
		slog.String("event_type", eventType),
		slog.String("event_id", eventID),
		slog.String("stream_id", id),
	)
	return eventID, nil
}

// Subscribe joins (or creates) the durable consumer group named opts.ConsumerGroup on
// eventType's stream and starts delivering messages to handler in the background.
//
// Subscribing again under the same (eventType, ConsumerGroup) first tries to join the
// existing group. Only when the new opts disagree with the tracked configuration does it
// destroy and recreate the group — this never happens proactively.
func (b *Bus) Subscribe(ctx context.Context, eventType string, opts ConsumerOptions, handler Handler) error {
	opts = opts.withDefaults()
	if opts.ConsumerGroup == "" {
		return errors.New("eventbus: ConsumerGroup is required")
	}
	if opts.ConsumerName == "" {
		return errors.New("eventbus: ConsumerName is required")
	}

	key := subKey(eventType, opts.ConsumerGroup)
	stream := streamKey(eventType)

	b.mu.Lock()
	if existing, ok := b.subs[key]; ok {
		if existing.cfg == opts {
			b.mu.Unlock()
			return nil
		}
		b.log.Warn("consumer group configuration mismatch, recreating",
			slog.String("event_type", eventType),
			slog.String("consumer_group", opts.ConsumerGroup),
		)
		existing.cancel()
		delete(b.subs, key)
		if err := b.rdb.XGroupDestroy(ctx, stream, opts.ConsumerGroup).Err(); err != nil && !isNoSuchKey(err) {
			b.log.Warn("destroy stale consumer group failed", logger.Error(err))
		}
	}
	b.mu.Unlock()

	err := b.rdb.XGroupCreateMkStream(ctx, stream, opts.ConsumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", opts.ConsumerGroup, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{eventType: eventType, cfg: opts, cancel: cancel, handler: handler}

	b.mu.Lock()
	b.subs[key] = sub
	b.mu.Unlock()

	go b.readLoop(subCtx, stream, eventType, opts, handler)
	go b.claimLoop(subCtx, stream, eventType, opts, handler)

	return nil
}

func isNoSuchKey(err error) bool {
	return strings.Contains(err.Error(), "no such key")
}

func (b *Bus) readLoop(ctx context.Context, stream, eventType string, opts ConsumerOptions, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    opts.ConsumerGroup,
			Consumer: opts.ConsumerName,
			Streams:  []string{stream, ">"},
			Count:    opts.BatchSize,
			Block:    opts.BlockTimeout,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if err != redis.Nil {
				b.log.Warn("xreadgroup failed", logger.Error(err))
				time.Sleep(time.Second)
			}
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				b.deliver(ctx, stream, eventType, opts, handler, msg)
			}
		}
	}
}

// claimLoop periodically reclaims pending entries that have sat unacknowledged past
// ClaimMinIdle, redelivering them to this consumer — covers crashed consumers and
// handler panics that left a message pending forever.
func (b *Bus) claimLoop(ctx context.Context, stream, eventType string, opts ConsumerOptions, handler Handler) {
	ticker := time.NewTicker(opts.ClaimMinIdle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		start := "0-0"
		for {
			msgs, next, err := b.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   stream,
				Group:    opts.ConsumerGroup,
				Consumer: opts.ConsumerName,
				MinIdle:  opts.ClaimMinIdle,
				Start:    start,
				Count:    opts.BatchSize,
			}).Result()
			if err != nil {
				if !isNoSuchKey(err) {
					b.log.Warn("xautoclaim failed", logger.Error(err))
				}
				break
			}

			for _, msg := range msgs {
				b.deliver(ctx, stream, eventType, opts, handler, msg)
			}

			if next == "0-0" || len(msgs) == 0 {
				break
			}
			start = next
		}
	}
}

func (b *Bus) deliver(ctx context.Context, stream, eventType string, opts ConsumerOptions, handler Handler, msg redis.XMessage) {
	ev := parseEvent(eventType, msg)

	if err := handler(ctx, ev); err != nil {
		b.log.Warn("event handler failed",
			slog.String("event_type", eventType),
			slog.String("event_id", ev.EventID),
			logger.Error(err),
		)

		pending, pErr := b.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: stream, Group: opts.ConsumerGroup, Start: msg.ID, End: msg.ID, Count: 1,
		}).Result()
		deliveries := int64(1)
		if pErr == nil && len(pending) > 0 {
			deliveries = pending[0].RetryCount
		}

		if int(deliveries) >= opts.MaxRetries {
			b.deadLetter(ctx, stream, eventType, opts, msg, err)
		}
		return
	}

	if err := b.rdb.XAck(ctx, stream, opts.ConsumerGroup, msg.ID).Err(); err != nil {
		b.log.Warn("xack failed", logger.Error(err))
	}
}

func (b *Bus) deadLetter(ctx context.Context, stream, eventType string, opts ConsumerOptions, msg redis.XMessage, cause error) {
	values := make(map[string]interface{}, len(msg.Values)+1)
	for k, v := range msg.Values {
		values[k] = v
	}
	values["dead_letter_reason"] = cause.Error()

	if _, err := b.rdb.XAdd(ctx, &redis.XAddArgs{Stream: dlqKey(eventType), Values: values}).Result(); err != nil {
		b.log.Error("failed to write dead letter", logger.Error(err))
		return
	}
	if err := b.rdb.XAck(ctx, stream, opts.ConsumerGroup, msg.ID).Err(); err != nil {
		b.log.Warn("xack after dead-letter failed", logger.Error(err))
	}
	b.log.Warn("event moved to dead-letter queue after exhausting retries",
		slog.String("event_type", eventType),
		slog.String("stream_id", msg.ID),
	)
}

func parseEvent(eventType string, msg redis.XMessage) Event {
	ev := Event{EventType: eventType}
	if v, ok := msg.Values["event_id"].(string); ok {
		ev.EventID = v
	}
	if v, ok := msg.Values["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			ev.Timestamp = ts
		}
	}
	if v, ok := msg.Values["correlation"].(string); ok {
		_ = json.Unmarshal([]byte(v), &ev.Correlation)
	}
	if v, ok := msg.Values["payload"].(string); ok {
		ev.Payload = []byte(v)
	}
	return ev
}

// HealthCheck reports whether the consumer group for (eventType, consumerGroup) still
// exists on its stream — a deleted group (e.g. after an operator FLUSHALL) means the
// caller should re-subscribe.
func (b *Bus) HealthCheck(ctx context.Context, eventType, consumerGroup string) (bool, error) {
	groups, err := b.rdb.XInfoGroups(ctx, streamKey(eventType)).Result()
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, err
	}
	for _, g := range groups {
		if g.Name == consumerGroup {
			return true, nil
		}
	}
	return false, nil
}

// Stop cancels every tracked subscription's background loops.
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, sub := range b.subs {
		sub.cancel()
		delete(b.subs, key)
	}
}

// Package cache implements the key/value store, distributed lock, sliding-window rate
// limiter, and session registry that sit in front of Redis for every other component.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/opennotes-ai/opennotes-server/internal/config"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

var Module = fx.Module("cache",
	fx.Provide(NewClient, NewLock, NewRateLimiter, NewSessions, NewSubscriptions),
)

// Client wraps a *redis.Client with the get/set/delete/exists/keys/mget/hash/publish
// primitives every other package in this repo builds on.
type Client struct {
	rdb *redis.Client
	log *slog.Logger
}

// NewClient builds the Redis client from RedisConfig and registers an fx shutdown hook.
func NewClient(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*Client, error) {
	log = log.With(logger.Scope("cache"))

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = cfg.Redis.DialTimeout

	rdb := redis.NewClient(opts)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
			defer cancel()
			if err := rdb.Ping(pingCtx).Err(); err != nil {
				log.Warn("redis ping failed at startup", logger.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})

	return &Client{rdb: rdb, log: log}, nil
}

// Raw exposes the underlying *redis.Client for packages that need primitives this
// wrapper doesn't expose (e.g. eventbus's Streams API).
func (c *Client) Raw() *redis.Client { return c.rdb }

// NewClientForTest builds a Client around an already-constructed *redis.Client (e.g. one
// pointed at a miniredis instance), bypassing config parsing and fx lifecycle wiring.
func NewClientForTest(rdb *redis.Client, log *slog.Logger) *Client {
	return &Client{rdb: rdb, log: log}
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	return c.rdb.Keys(ctx, pattern).Result()
}

func (c *Client) MGet(ctx context.Context, keys ...string) ([]any, error) {
	return c.rdb.MGet(ctx, keys...).Result()
}

func (c *Client) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	return c.rdb.HIncrBy(ctx, key, field, delta).Result()
}

// HGetAll returns every field of the hash at key, or an empty (non-nil) map if key
// doesn't exist.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, key).Result()
}

// HSet sets one or more fields on the hash at key.
func (c *Client) HSet(ctx context.Context, key string, values map[string]any) error {
	return c.rdb.HSet(ctx, key, values).Err()
}

// Expire sets a TTL on an existing key.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

func (c *Client) Publish(ctx context.Context, channel string, message []byte) error {
	return c.rdb.Publish(ctx, channel, message).Err()
}

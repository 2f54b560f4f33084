package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// slidingWindowScript trims expired entries out of the per-identifier sorted set, counts
// what's left, and — if under limit — records this call before returning the decision.
// Running it as a single script keeps the check-then-record sequence atomic under
// concurrent callers sharing the same identifier.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

local window_start = now - window_ms
redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('PEXPIRE', key, window_ms)
    return {1, limit - count - 1}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local reset_at = now + window_ms
if oldest[2] ~= nil then
    reset_at = tonumber(oldest[2]) + window_ms
end
return {0, 0, reset_at}
`)

// RateLimitResult is the outcome of one sliding-window check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimiter implements a sliding-window rate limit per identifier over a Redis sorted
// set. It fails open (allows the request, logs a warning) when the backend is
// unreachable, since an unavailable limiter should never itself take the system down.
type RateLimiter struct {
	c *Client
}

// NewRateLimiter wraps c in a RateLimiter.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{c: c}
}

// Allow checks whether identifier may make one more call within limit requests per
// window, recording the call if so.
func (r *RateLimiter) Allow(ctx context.Context, identifier string, limit int, window time.Duration) (RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:%s", identifier)
	now := time.Now()
	windowMs := window.Milliseconds()
	member := fmt.Sprintf("%d-%s", now.UnixNano(), identifier)

	res, err := slidingWindowScript.Run(ctx, r.c.rdb, []string{key}, now.UnixMilli(), windowMs, limit, member).Result()
	if err != nil {
		r.c.log.Warn("rate limiter backend unavailable, failing open", logger.Error(err))
		return RateLimitResult{Allowed: true, Remaining: limit}, nil
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		r.c.log.Warn("rate limiter script returned unexpected shape, failing open")
		return RateLimitResult{Allowed: true, Remaining: limit}, nil
	}

	allowed := toInt64(vals[0]) == 1
	if allowed {
		return RateLimitResult{
			Allowed:   true,
			Remaining: int(toInt64(vals[1])),
		}, nil
	}

	resetAtMs := now.Add(window).UnixMilli()
	if len(vals) >= 3 {
		resetAtMs = toInt64(vals[2])
	}
	resetAt := time.UnixMilli(resetAtMs)

	return RateLimitResult{
		Allowed:    false,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: time.Until(resetAt),
	}, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

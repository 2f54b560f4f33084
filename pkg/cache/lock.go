package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// DefaultLockTTL is the lock lifetime used when a caller doesn't specify one.
const DefaultLockTTL = 1800 * time.Second

// Lock is a Redis-backed distributed mutex scoped to an operation name and an optional
// resource id. When the backend is unreachable, Acquire is permissive (returns true so
// the caller proceeds unguarded), Release is a no-op success, and IsLocked reports false
// — this degraded behavior is logged at warn level so it stays visible in production.
type Lock struct {
	c *Client
}

// NewLock wraps c in a Lock.
func NewLock(c *Client) *Lock {
	return &Lock{c: c}
}

func lockKey(operation, resourceID string) string {
	if resourceID == "" {
		return fmt.Sprintf("rechunk:lock:%s", operation)
	}
	return fmt.Sprintf("rechunk:lock:%s:%s", operation, resourceID)
}

// Acquire attempts to take the lock for operation/resourceID, returning true if this call
// newly acquired it. ttl defaults to DefaultLockTTL when zero.
func (l *Lock) Acquire(ctx context.Context, operation, resourceID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	key := lockKey(operation, resourceID)

	ok, err := l.c.rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		l.c.log.Warn("lock backend unavailable, granting permissive acquire",
			logger.Error(err))
		return true, nil
	}
	return ok, nil
}

// Release drops the lock for operation/resourceID. A backend failure is logged and
// treated as a successful no-op release.
func (l *Lock) Release(ctx context.Context, operation, resourceID string) error {
	key := lockKey(operation, resourceID)
	if err := l.c.rdb.Del(ctx, key).Err(); err != nil {
		l.c.log.Warn("lock backend unavailable, treating release as no-op",
			logger.Error(err))
	}
	return nil
}

// IsLocked reports whether operation/resourceID is currently locked. On backend failure
// it reports false (degraded-open) and logs a warning.
func (l *Lock) IsLocked(ctx context.Context, operation, resourceID string) (bool, error) {
	key := lockKey(operation, resourceID)
	n, err := l.c.rdb.Exists(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		l.c.log.Warn("lock backend unavailable, reporting unlocked",
			logger.Error(err))
		return false, nil
	}
	return n > 0, nil
}

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultSessionTTL is the session lifetime used when Create doesn't specify one.
const DefaultSessionTTL = 24 * time.Hour

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func userSessionsKey(userID string) string {
	return fmt.Sprintf("session:user:%s:sessions", userID)
}

// Sessions is a Redis-backed session registry: a `session:<id>` blob with TTL, indexed by
// a `session:user:<user_id>:sessions` set so every session belonging to a user can be
// enumerated or revoked at once.
type Sessions struct {
	c *Client
}

// NewSessions wraps c in a Sessions registry.
func NewSessions(c *Client) *Sessions {
	return &Sessions{c: c}
}

// Create stores blob under sessionID with ttl (DefaultSessionTTL if zero) and indexes it
// under userID.
func (s *Sessions) Create(ctx context.Context, sessionID, userID string, blob []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	pipe := s.c.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(sessionID), blob, ttl)
	pipe.SAdd(ctx, userSessionsKey(userID), sessionID)
	pipe.Expire(ctx, userSessionsKey(userID), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Get returns the session blob, or ok=false if it doesn't exist or has expired. It does
// not touch the user-session index: an expired id stays in that set until the set itself
// expires or RevokeAllForUser deletes it.
func (s *Sessions) Get(ctx context.Context, sessionID string) (blob []byte, ok bool, err error) {
	val, err := s.c.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Refresh rewrites the session's TTL without altering its stored blob.
func (s *Sessions) Refresh(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	ok, err := s.c.rdb.Expire(ctx, sessionKey(sessionID), ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return nil
}

// Revoke deletes a single session and removes it from userID's index.
func (s *Sessions) Revoke(ctx context.Context, sessionID, userID string) error {
	pipe := s.c.rdb.TxPipeline()
	pipe.Del(ctx, sessionKey(sessionID))
	pipe.SRem(ctx, userSessionsKey(userID), sessionID)
	_, err := pipe.Exec(ctx)
	return err
}

// RevokeAllForUser deletes every session belonging to userID along with its index set.
func (s *Sessions) RevokeAllForUser(ctx context.Context, userID string) error {
	ids, err := s.c.rdb.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return err
	}

	pipe := s.c.rdb.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, sessionKey(id))
	}
	pipe.Del(ctx, userSessionsKey(userID))
	_, err = pipe.Exec(ctx)
	return err
}

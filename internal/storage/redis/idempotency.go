// Package redis holds Redis-backed helpers.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// IdempotencyStore records request keys so that a retried write is
// recognised. A key is claimed at most once per TTL.
type IdempotencyStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewIdempotencyStore creates an IdempotencyStore.
func NewIdempotencyStore(rdb redis.Cmdable, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// Key scopes a client-provided idempotency key to an operation and a user.
func (s *IdempotencyStore) Key(operation, userID, key string) string {
	return fmt.Sprintf("idem:%s:%s:%s", operation, userID, key)
}

// Claim marks key as used. It reports false when the key was already
// claimed.
func (s *IdempotencyStore) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "claim %q", key)
	}
	return ok, nil
}

// Release frees key so that a request which failed may be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "release %q", key)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *IdempotencyStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

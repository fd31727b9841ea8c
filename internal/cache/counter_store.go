package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps transport-level Redis failures so callers can decide
// whether to fail open without matching on driver internals.
var ErrUnavailable = errors.New("counter store unavailable")

// CounterStore holds the volatile throttle counters. Values live only in
// Redis: a restart of the store silently resets all lockouts, which is the
// accepted tradeoff for keeping lockout state out of the relational store.
type CounterStore struct {
	rdb redis.UniversalClient
}

func NewCounterStore(rdb redis.UniversalClient) *CounterStore {
	return &CounterStore{rdb: rdb}
}

// Get returns the current count for key. The second return is false when
// the key does not exist (distinct from an existing zero).
func (s *CounterStore) Get(ctx context.Context, key string) (int64, bool, error) {
	n, err := s.rdb.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, true, nil
}

// Set writes an absolute count with the given expiry.
func (s *CounterStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Increment adds one to key and returns the new count. Fixed-window
// semantics: the TTL is applied only when the increment creates the key, so
// later failures never extend an open window.
func (s *CounterStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return n, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return n, nil
}

// Delete removes the given counters. Missing keys are not an error.
func (s *CounterStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

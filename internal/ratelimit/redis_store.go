package ratelimit

import (
	"context"
	"time"

	"campusnotes/internal/cache"
)

const redisKeyPrefix = "ratelimit:"

// RedisStore shares counters between processes through Redis. Expired keys
// are removed by Redis itself, so it needs no sweeper.
type RedisStore struct {
	cache *cache.Client
	now   func() time.Time
}

// NewRedisStore creates a store over the given cache client.
func NewRedisStore(c *cache.Client) *RedisStore {
	return &RedisStore{cache: c, now: time.Now}
}

// Hit implements Store.
func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	count, ttl, err := s.cache.IncrWindow(ctx, redisKeyPrefix+key, window)
	if err != nil {
		return 0, time.Time{}, err
	}
	return count, s.now().Add(ttl), nil
}

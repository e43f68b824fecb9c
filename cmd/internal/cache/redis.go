package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"linkup/cmd/identity"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store over go-redis.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing client; the caller owns its lifecycle.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Dial creates a client for addr and verifies it answers PING.
func Dial(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", identity.Fail("cache.Get", identity.FaultUnavailable, err)
	}
	return v, nil
}

// Set stores value with ttl. A non-positive ttl is rejected rather than
// creating an entry that never expires.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return identity.Fail("cache.Set", identity.FaultOther, fmt.Errorf("non-positive ttl for %s", key))
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return identity.Fail("cache.Set", identity.FaultUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return identity.Fail("cache.Delete", identity.FaultUnavailable, err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = Nop{}
)

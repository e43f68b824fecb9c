// Package cache is the advisory key-value layer in front of the record store.
//
// Entries are written through with a TTL after the authoritative write
// succeeds. A miss or an outage never changes the outcome of a read; callers
// fall back to the record store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"linkup/cmd/identity"
)

// ErrMiss reports an absent or expired key.
var ErrMiss = errors.New("cache: miss")

// Store is the minimal cache surface used by the session authority.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ProfileKey holds the decrypted profile snippet of an account.
func ProfileKey(accountID string) string { return "user:" + accountID }

// AccessKey mirrors the current access token of an account.
func AccessKey(accountID string) string { return "access:" + accountID }

// GetJSON decodes the value at key into a T. ok is false on a miss.
func GetJSON[T any](ctx context.Context, s Store, key string) (v T, ok bool, err error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		// A corrupt entry behaves like a miss and gets overwritten on refill.
		return v, false, nil
	}
	return v, true, nil
}

// SetJSON encodes v and stores it with ttl.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return identity.Fail("cache.SetJSON", identity.FaultOther, fmt.Errorf("encode %s: %w", key, err))
	}
	return s.Set(ctx, key, string(raw), ttl)
}

// Nop is a Store that never holds anything. It backs deployments without Redis.
type Nop struct{}

func (Nop) Get(context.Context, string) (string, error)              { return "", ErrMiss }
func (Nop) Set(context.Context, string, string, time.Duration) error { return nil }
func (Nop) Delete(context.Context, ...string) error                  { return nil }

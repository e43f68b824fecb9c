package session

import (
	"context"
	"time"

	"linkup/cmd/identity"

	"github.com/sethvargo/go-retry"
)

// withRetry runs fn, retrying only transient store faults. Decisions
// (credential checks, token comparisons) never go through here.
func (s *Service) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(s.cfg.StoreRetries, retry.WithJitterPercent(20, retry.NewExponential(s.retryBase())))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && identity.IsUnavailable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *Service) retryBase() time.Duration {
	if s.cfg.StoreRetryBase <= 0 {
		return 50 * time.Millisecond
	}
	return s.cfg.StoreRetryBase
}

// storeFailure maps a store error that is not a domain outcome.
func storeFailure(err error) error {
	if identity.IsNotFound(err) {
		return ErrNotFound
	}
	return ErrStoreUnavailable
}

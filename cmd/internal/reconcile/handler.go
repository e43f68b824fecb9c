package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"linkup/cmd/identity"
	"linkup/cmd/internal/cache"
	"linkup/cmd/internal/graph"

	"github.com/hibiken/asynq"
)

// Purger deletes account leftovers across the three stores.
type Purger struct {
	accounts identity.Store
	graph    graph.Mirror
	cache    cache.Store
	log      *slog.Logger
}

// NewPurger builds a Purger. A nil cache store is treated as cache-less.
func NewPurger(accounts identity.Store, mirror graph.Mirror, c cache.Store, log *slog.Logger) *Purger {
	if c == nil {
		c = cache.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Purger{accounts: accounts, graph: mirror, cache: c, log: log}
}

// Handle fulfils the asynq.HandlerFunc contract. A malformed payload is
// dropped; any other failure is returned so asynq retries the task.
func (p *Purger) Handle(ctx context.Context, task *asynq.Task) error {
	var payload PurgePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.AccountID == "" {
		p.log.Error("reconcile.purge.bad_payload", slog.Any("err", err))
		return fmt.Errorf("reconcile: bad payload: %w", asynq.SkipRetry)
	}
	return p.Purge(ctx, payload.AccountID, payload.Reason)
}

// Purge removes the row, the graph node and the cache keys of accountID.
// All three steps run even if an earlier one fails.
func (p *Purger) Purge(ctx context.Context, accountID, reason string) error {
	log := p.log.With(slog.String("account_id", accountID), slog.String("reason", reason))

	var errs []error
	if err := p.accounts.DeleteAccount(ctx, accountID); err != nil && !identity.IsNotFound(err) {
		errs = append(errs, fmt.Errorf("account: %w", err))
	}
	if err := p.graph.DeleteNode(ctx, accountID); err != nil && !identity.IsNotFound(err) {
		errs = append(errs, fmt.Errorf("graph: %w", err))
	}
	if err := p.cache.Delete(ctx, cache.ProfileKey(accountID), cache.AccessKey(accountID)); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		log.Warn("reconcile.purge.retry", slog.Any("err", err))
		return err
	}
	log.Info("reconcile.purge.done")
	return nil
}

package reconcile

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer submits purge tasks. It satisfies session.Reconciler.
type Enqueuer struct {
	client taskEnqueuer
	closer func() error
}

// NewEnqueuer builds an Enqueuer on a fresh asynq client.
func NewEnqueuer(redisOpts asynq.RedisConnOpt) *Enqueuer {
	c := asynq.NewClient(redisOpts)
	return &Enqueuer{client: c, closer: c.Close}
}

// EnqueuePurge schedules removal of whatever is left of accountID.
func (e *Enqueuer) EnqueuePurge(ctx context.Context, accountID, reason string) error {
	task, err := NewPurgeTask(accountID, reason)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("reconcile: enqueue %s: %w", TypePurgeAccount, err)
	}
	return nil
}

// Close releases the underlying client.
func (e *Enqueuer) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer()
}

package session

import (
	"context"
	"log/slog"
	"time"

	"linkup/cmd/identity"
)

const compensationTimeout = 10 * time.Second

type compensation struct {
	step string
	undo func(ctx context.Context) error
}

// saga records the undo action of every completed registration step.
type saga struct {
	accountID string
	steps     []compensation
}

func (g *saga) done(step string, undo func(ctx context.Context) error) {
	g.steps = append(g.steps, compensation{step: step, undo: undo})
}

// rollback undoes completed steps in reverse order. It runs detached from the
// caller's cancellation so a client disconnect cannot strand a half-created
// account. Failures are logged, counted and handed to the reconciler.
func (s *Service) rollback(ctx context.Context, g *saga, cause string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	var failed []string
	for i := len(g.steps) - 1; i >= 0; i-- {
		c := g.steps[i]
		err := s.withRetry(ctx, c.undo)
		if err != nil && !identity.IsNotFound(err) {
			failed = append(failed, c.step)
			s.metrics.compensation(c.step, "fail")
			s.log.Error("auth.register.compensate.fail",
				slog.String("account_id", g.accountID),
				slog.String("step", c.step),
				slog.String("cause", cause),
				slog.Any("err", err),
			)
			continue
		}
		s.metrics.compensation(c.step, "ok")
	}

	if len(failed) == 0 {
		s.log.Warn("auth.register.rolled_back",
			slog.String("state", "rolled_back"),
			slog.String("account_id", g.accountID),
			slog.String("cause", cause),
		)
		return
	}
	s.enqueuePurge(ctx, g.accountID, "register:"+cause)
}

// enqueuePurge asks the reconciler to remove whatever is left of an account.
func (s *Service) enqueuePurge(ctx context.Context, accountID, reason string) {
	if s.reconciler == nil {
		s.log.Error("auth.reconcile.unavailable",
			slog.String("account_id", accountID),
			slog.String("reason", reason),
		)
		return
	}
	if err := s.reconciler.EnqueuePurge(ctx, accountID, reason); err != nil {
		s.log.Error("auth.reconcile.enqueue.fail",
			slog.String("account_id", accountID),
			slog.String("reason", reason),
			slog.Any("err", err),
		)
	}
}

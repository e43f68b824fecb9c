package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// processor is the part of *asynq.Server the worker drives.
type processor interface {
	Start(handler asynq.Handler) error
	Shutdown()
}

// Worker runs the asynq server that processes reconciliation tasks.
type Worker struct {
	server processor
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// WorkerConfig collects what the worker needs.
type WorkerConfig struct {
	RedisOpts   asynq.RedisConnOpt
	Concurrency int
	Purger      *Purger
	Logger      *slog.Logger
}

// NewWorker constructs a Worker.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.RedisOpts == nil || cfg.Purger == nil {
		return nil, errors.New("reconcile: redis options and purger are required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{QueueDefault: 1},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePurgeAccount, cfg.Purger.Handle)

	return &Worker{server: srv, mux: mux, logger: cfg.Logger}, nil
}

// Run processes tasks until ctx is cancelled. Cancellation is a clean stop
// and returns nil.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("reconcile: worker not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("reconcile: start worker: %w", err)
	}
	<-ctx.Done()
	w.server.Shutdown()
	w.logger.Info("reconcile.worker.stopped")
	return nil
}

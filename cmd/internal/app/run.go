package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"linkup/cmd/internal/reconcile"
)

// Run is the CLI entrypoint used by cmd/linkup.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// RunReconciler is the CLI entrypoint used by cmd/reconciler. It drains purge
// tasks against the same backends the server writes to.
func RunReconciler() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	if cfg.RedisAddr == "" {
		return errors.New("app: reconciler requires LINKUP_REDIS_ADDR")
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(context.Background()); err != nil {
			log.Error("backends.close.fail", "err", err)
		}
	}()

	worker, err := reconcile.NewWorker(reconcile.WorkerConfig{
		RedisOpts:   asynqOptions(cfg),
		Concurrency: cfg.ReconcileConcurrency,
		Purger:      reconcile.NewPurger(b.accounts, b.mirror, b.cache, log),
		Logger:      log,
	})
	if err != nil {
		return err
	}

	log.Info("reconcile.worker.start", "concurrency", cfg.ReconcileConcurrency)
	return worker.Run(ctx)
}

// Package app wires the LinkUp server runtime: config, logging, backends, HTTP routes and the realtime gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	authapi "linkup/cmd/internal/auth/api"
	"linkup/cmd/internal/auth/session"
	"linkup/cmd/internal/presence"
	"linkup/cmd/internal/realtime"
	"linkup/cmd/internal/reconcile"
	"linkup/cmd/security/password"

	"github.com/go-chi/chi/v5"
)

// App is the LinkUp server runtime: it owns the backends, the session authority and the HTTP server.
type App struct {
	cfg Config
	log Logger

	metrics  *Metrics
	backends *backends
	enqueuer *reconcile.Enqueuer

	sessions *session.Service
	presence *presence.Tracker
	router   chi.Router
}

// New constructs a fully wired App from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	wsCfg, err := realtime.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	apiCfg, err := authapi.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, log: log, metrics: NewMetrics(), backends: b}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	deps := session.Deps{
		Accounts:  b.accounts,
		Graph:     b.mirror,
		Cache:     b.cache,
		Passwords: pwCfg,
		Logger:    log,
		Metrics:   session.NewMetrics(a.metrics.Registerer()),
	}
	if cfg.RedisAddr != "" {
		a.enqueuer = reconcile.NewEnqueuer(asynqOptions(cfg))
		deps.Reconciler = a.enqueuer
	} else {
		log.Info("reconcile.disabled", "reason", "no redis")
	}

	a.sessions, err = session.NewService(sessCfg, deps)
	if err != nil {
		return nil, fmt.Errorf("app: session authority: %w", err)
	}
	a.presence = presence.NewTracker(a.sessions, log, presence.NewMetrics(a.metrics.Registerer()))

	gateway := realtime.NewWSGateway(log, wsCfg, realtime.NewHub(log), a.sessions, a.presence)
	api := authapi.NewHandler(log, apiCfg, a.sessions, a.presence)

	a.router = newRouter(routes{
		log:      log,
		cfg:      cfg,
		metrics:  a.metrics,
		ready:    b.ready,
		mountAPI: api.Mount,
		ws:       gateway,
	})
	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.router }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.router,
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"postgres", a.backends.pool != nil,
		"neo4j", a.backends.neo != nil,
		"redis", a.backends.redis != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		_ = a.close(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.close(shutdownCtx); err != nil {
		a.log.Error("backends.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func (a *App) close(ctx context.Context) error {
	var errs []error
	if a.enqueuer != nil {
		errs = append(errs, a.enqueuer.Close())
	}
	if a.backends != nil {
		errs = append(errs, a.backends.Close(ctx))
	}
	return errors.Join(errs...)
}

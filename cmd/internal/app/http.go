package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// routes is everything the router needs from the wired runtime.
type routes struct {
	log     Logger
	cfg     Config
	metrics *Metrics

	// ready reports backend health; nil means nothing external to check.
	ready func(ctx context.Context) error

	mountAPI func(chi.Router)
	ws       http.Handler
}

func newRouter(rt routes) chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		WithRequestLogging(rt.log, rt.metrics),
		middleware.Recoverer,
		SecureHeaders(rt.cfg.Development),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if rt.cfg.ReadinessRequireDB && !rt.cfg.Durable() {
			http.Error(w, "durable backends not configured", http.StatusServiceUnavailable)
			return
		}

		if rt.ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := rt.ready(ctx); err != nil {
				http.Error(w, "backends not ready", http.StatusServiceUnavailable)
				rt.log.Info("readyz.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())

	if rt.ws != nil {
		r.Method(http.MethodGet, "/ws", rt.ws)
	}
	if rt.mountAPI != nil {
		rt.mountAPI(r)
	}
	return r
}

package service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/cors"
)

// HealthzServer serves the liveness and readiness probes. Liveness answers
// unconditionally; readiness runs the configured check (a store ping) and
// reports 503 while it fails.
type HealthzServer struct {
	ctx    context.Context
	server *http.Server
	ready  func(context.Context) error
	log    *slog.Logger
}

func NewHealthzServer(ready func(context.Context) error, log *slog.Logger) *HealthzServer {
	if log == nil {
		log = slog.Default()
	}
	return &HealthzServer{ready: ready, log: log}
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleLiveness)
	mux.HandleFunc("/readyz", h.handleReadiness)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	h.server = &http.Server{
		Handler: c.Handler(mux),
		Addr:    addr,
	}
	h.ctx = ctx
	return h.server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	return h.server.Shutdown(h.ctx)
}

func (h *HealthzServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	h.log.Debug("received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

func (h *HealthzServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.log.Warn("readiness check failed", "err", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Write([]byte("OK")) //nolint:errcheck
}

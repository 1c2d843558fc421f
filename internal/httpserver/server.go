// Package httpserver assembles the HTTP surface: channel webhooks, the
// kitchen display endpoints, health, and metrics.
package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Z1Code/gastrocloud-sub000/internal/ingest"
	"github.com/Z1Code/gastrocloud-sub000/internal/kds"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

// Config carries server dependencies and the listen address.
type Config struct {
	Addr      string
	Rappi     *ingest.WebhookHandler
	PedidosYa *ingest.WebhookHandler
	KDS       *kds.Handler
	Store     repo.Store
}

// Server wraps http.Server with route registration and graceful shutdown.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds the server and mounts all routes.
func New(cfg Config, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.Handle("/webhooks/rappi", cfg.Rappi)
	mux.Handle("/webhooks/pedidosya", cfg.PedidosYa)
	cfg.KDS.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", healthz(cfg.Store))

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			// No blanket write timeout: the display websocket is long-lived.
			IdleTimeout: 120 * time.Second,
		},
		logger: logger.With("component", "httpserver"),
	}
}

// Start blocks serving requests until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func healthz(store repo.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		if err := store.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]string{"status": "degraded", "error": "database unreachable"}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

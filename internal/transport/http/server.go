// Package http serves Prometheus metrics and a health probe.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gurkepunktli/hslu-iot/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

// HealthChecker reports upstream connectivity.
type HealthChecker interface {
	IsConnected() bool
}

type healthResponse struct {
	Status   string `json:"status"`
	Upstream string `json:"upstream"`
}

// NewHandler routes /metrics and /healthz. /healthz answers 503 while
// the upstream broker is disconnected.
func NewHandler(health HealthChecker, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: "ok", Upstream: "connected"}
		code := http.StatusOK
		if !health.IsConnected() {
			resp = healthResponse{Status: "degraded", Upstream: "disconnected"}
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})

	return NewLoggingMiddleware(logger).Wrap(mux)
}

// Serve runs the server on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Package metrics defines the Prometheus collectors of the language server.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	// SchemaReloads counts schema snapshot builds by result.
	SchemaReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pglsp_schema_reloads_total",
		Help: "Total schema snapshot builds by result",
	}, []string{"result"})

	// ListenerStops counts schema listeners that stopped on a receive error.
	ListenerStops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pglsp_schema_listener_stops_total",
		Help: "Total schema listeners stopped by a receive error",
	})

	// Reconfigurations counts database connection changes by result.
	Reconfigurations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pglsp_reconfigurations_total",
		Help: "Total database connection changes by result",
	}, []string{"result"})

	// Statements counts statements run on behalf of the client by result.
	Statements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pglsp_statements_total",
		Help: "Total client statements executed by result",
	}, []string{"result"})

	OpenDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pglsp_open_documents",
		Help: "Number of documents currently open",
	})
)

// Result maps err to a result label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// Serve exposes the default registry on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("metrics server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Package metrics exposes Prometheus collectors for the ingestion and export
// workers and an optional HTTP endpoint that serves them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pawluxe/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// Metrics holds every collector registered by pawluxe.
type Metrics struct {
	registry *prometheus.Registry
	Ingest   *IngestMetrics
	Export   *ExportMetrics
}

// NewMetrics creates a registry and registers all collectors on it.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	ingest, err := NewIngestMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest metrics: %w", err)
	}
	export, err := NewExportMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create export metrics: %w", err)
	}
	return &Metrics{registry: registry, Ingest: ingest, Export: export}, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on listen until ctx is cancelled. An empty listen
// address disables the endpoint.
func (m *Metrics) Serve(ctx context.Context, listen string, logger *slog.Logger) error {
	listen = strings.TrimSpace(listen)
	if listen == "" {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint starting", logging.String("address", listen))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("metrics endpoint: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics endpoint shutdown failed", logging.Error(err))
	}
	<-errCh
	return nil
}

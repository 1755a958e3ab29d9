// Package observability exposes acquisition and error metrics in the
// Prometheus format.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/biosync/internal/errors"
	"github.com/tphakala/biosync/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry    *prometheus.Registry
	Acquisition *metrics.AcquisitionMetrics
	Errors      *metrics.ErrorMetrics
}

// NewMetrics creates a registry with the acquisition, error, Go runtime and
// process collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	acquisition, err := metrics.NewAcquisitionMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create acquisition metrics: %w", err)
	}

	errorMetrics, err := metrics.NewErrorMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create error metrics: %w", err)
	}

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	return &Metrics{
		registry:    registry,
		Acquisition: acquisition,
		Errors:      errorMetrics,
	}, nil
}

// InstallErrorHook counts every enhanced error built from now on.
func (m *Metrics) InstallErrorHook() {
	errors.AddErrorHook(m.Errors.Hook)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
}

package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/biosync/internal/errors"
)

// ErrorMetrics counts enhanced errors by component and category.
type ErrorMetrics struct {
	ErrorsTotal *prometheus.CounterVec
}

// NewErrorMetrics creates and registers the error metrics.
func NewErrorMetrics(registry *prometheus.Registry) (*ErrorMetrics, error) {
	m := &ErrorMetrics{
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Errors built through the enhanced error package",
		}, []string{LabelComponent, LabelCategory}),
	}
	if err := registry.Register(m.ErrorsTotal); err != nil {
		return nil, fmt.Errorf("failed to register error metrics: %w", err)
	}
	return m, nil
}

// Hook counts ee. Install it with errors.AddErrorHook.
func (m *ErrorMetrics) Hook(ee *errors.EnhancedError) {
	m.ErrorsTotal.WithLabelValues(ee.GetComponent(), ee.GetCategory()).Inc()
}

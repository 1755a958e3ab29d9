package observability

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/tphakala/biosync/internal/conf"
	"github.com/tphakala/biosync/internal/errors"
	"github.com/tphakala/biosync/internal/logger"
	"github.com/tphakala/biosync/internal/observability/metrics"
)

// Endpoint serves /metrics over HTTP.
type Endpoint struct {
	listenAddress string
	metrics       *Metrics
}

// NewEndpoint creates an endpoint for the telemetry settings. It fails when
// telemetry is disabled.
func NewEndpoint(settings *conf.TelemetrySettings, m *Metrics) (*Endpoint, error) {
	if !settings.Enabled {
		return nil, errors.Newf("telemetry not enabled in settings").
			Component("observability").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return &Endpoint{
		listenAddress: settings.Listen,
		metrics:       m,
	}, nil
}

// Run listens on the configured address and serves until ctx is done.
func (e *Endpoint) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", e.listenAddress)
	if err != nil {
		return errors.New(err).
			Component("observability").
			Category(errors.CategoryNetwork).
			Context("listen", e.listenAddress).
			Build()
	}
	return e.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (e *Endpoint) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ln)
	}()
	GetLogger().Info("telemetry endpoint started", logger.String("address", ln.Addr().String()))

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component("observability").
			Category(errors.CategoryNetwork).
			Context("listen", ln.Addr().String()).
			Build()
	case <-ctx.Done():
	}

	GetLogger().Info("stopping telemetry endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metrics.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		GetLogger().Error("telemetry endpoint shutdown error", logger.Error(err))
	}
	<-serveErr
	return nil
}

// GetMetrics returns the Metrics instance served by this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}

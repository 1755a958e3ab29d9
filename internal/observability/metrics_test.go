package observability

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/biosync/internal/conf"
	"github.com/tphakala/biosync/internal/testutil"
)

// NewMetrics uses a private registry, so concurrent calls must not collide.
func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()

	const numGoroutines = 20

	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			if !assert.NoError(t, err) {
				return
			}
			assert.NotNil(t, m.Registry())
			assert.NotNil(t, m.Acquisition)
			assert.NotNil(t, m.Errors)
		})
	}
	wg.Wait()
}

func TestNewEndpointRequiresTelemetry(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	_, err = NewEndpoint(&conf.TelemetrySettings{Enabled: false}, m)
	require.Error(t, err)

	e, err := NewEndpoint(&conf.TelemetrySettings{Enabled: true, Listen: "127.0.0.1:0"}, m)
	require.NoError(t, err)
	assert.Same(t, m, e.GetMetrics())
}

func TestEndpointServesMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Acquisition.RecordSync()

	e, err := NewEndpoint(&conf.TelemetrySettings{Enabled: true, Listen: "127.0.0.1:0"}, m)
	require.NoError(t, err)

	var lc net.ListenConfig
	ln, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := testutil.RunAsync(func() error { return e.Serve(ctx, ln) })

	client := &http.Client{
		Timeout:   2 * time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://"+ln.Addr().String()+"/metrics", http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "biosync_engine_syncs_total 1")
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	require.NoError(t, testutil.Receive(t, done, testutil.DefaultTestTimeout, "endpoint did not shut down"))
}

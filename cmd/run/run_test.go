package run

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/biosync/internal/conf"
	"github.com/tphakala/biosync/internal/errors"
)

func testSettings() *conf.Settings {
	return &conf.Settings{
		Engine: conf.EngineSettings{
			TickInterval: 5 * time.Millisecond,
			AutoSync:     true,
			Drift:        conf.DriftSettings{Enabled: true},
		},
		Sensor: conf.SensorSettings{BufferSize: 4096, BurstWindow: 16, InboxCapacity: 256, ResampleMode: "realtime"},
		Devices: []conf.DeviceConfig{
			{
				Name:          "headband",
				Type:          conf.DeviceTypeSimulated,
				Enabled:       true,
				Timeout:       time.Second,
				BurstInterval: 10 * time.Millisecond,
				Waveform:      conf.WaveformSine,
				Frequency:     1,
				Sensors: []conf.SensorConfig{
					{Name: "eeg", Min: -1, Max: 1, SampleRate: 250, OutputRate: 250},
				},
			},
			{Name: "spare", Type: conf.DeviceTypeSimulated, Enabled: false},
		},
	}
}

func TestAcquireWritesSummary(t *testing.T) {
	t.Cleanup(errors.ClearErrorHooks)

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, Acquire(ctx, testSettings(), &out))

	summary := out.String()
	assert.Contains(t, summary, "engine: elapsed")
	assert.Contains(t, summary, "device headband")
	assert.Contains(t, summary, "  eeg:")
	assert.NotContains(t, summary, "device spare")
	assert.Contains(t, summary, "frames sent")
}

func TestAcquireRejectsInvalidDevice(t *testing.T) {
	t.Cleanup(errors.ClearErrorHooks)

	settings := testSettings()
	settings.Devices[0].LossRate = 1.5

	err := Acquire(t.Context(), settings, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

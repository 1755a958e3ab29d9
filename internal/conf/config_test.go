package conf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Load works on the global viper instance, so these tests do not run in parallel.

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
engine:
  tickinterval: 20ms
sensor:
  resamplemode: good
devices:
  - name: bench
    enabled: true
    sensors:
      - name: ecg
        samplerate: 500
`

func TestLoadCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	settings, err := Load(path)
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr, "default config should be written")

	assert.Equal(t, DefaultTickInterval, settings.Engine.TickInterval)
	assert.True(t, settings.Engine.AutoSync)
	assert.True(t, settings.Engine.Drift.Enabled)
	assert.Equal(t, DefaultMaxDriftUntilSync, settings.Engine.Drift.MaxDriftUntilSync)
	assert.Equal(t, DefaultMaxForwardDrift, settings.Engine.Drift.MaxForwardDrift)
	assert.Equal(t, DefaultMaxBackwardDrift, settings.Engine.Drift.MaxBackwardDrift)
	assert.Equal(t, ResampleModeRealtime, settings.Sensor.ResampleMode)

	require.Len(t, settings.Devices, 2)
	headband := settings.Devices[0]
	assert.Equal(t, "headband", headband.Name)
	assert.Equal(t, 20*time.Millisecond, headband.Latency)
	assert.InDelta(t, 150.0, headband.ClockSkewPPM, 0)
	require.Len(t, headband.Sensors, 2)
	assert.InDelta(t, 256.0, headband.Sensors[0].OutputRate, 0)

	assert.Equal(t, ":9400", settings.Telemetry.Listen)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
}

func TestLoadAppliesDefaults(t *testing.T) {
	settings, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 20*time.Millisecond, settings.Engine.TickInterval)
	assert.Equal(t, ResampleModeGood, settings.Sensor.ResampleMode)
	assert.Equal(t, DefaultBufferSize, settings.Sensor.BufferSize)
	assert.Equal(t, DefaultBurstWindow, settings.Sensor.BurstWindow)

	require.Len(t, settings.Devices, 1)
	d := settings.Devices[0]
	assert.Equal(t, DeviceTypeSimulated, d.Type)
	assert.Equal(t, DefaultDeviceTimeout, d.Timeout)
	assert.Equal(t, DefaultBurstInterval, d.BurstInterval)
	assert.Equal(t, WaveformSine, d.Waveform)
	assert.InDelta(t, 500.0, d.Sensors[0].OutputRate, 0, "output rate defaults to sample rate")
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("BIOSYNC_ENGINE_DRIFT_MAXFORWARDDRIFT", "300ms")
	t.Setenv("BIOSYNC_ENGINE_AUTOSYNC", "false")

	settings, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 300*time.Millisecond, settings.Engine.Drift.MaxForwardDrift)
	assert.False(t, settings.Engine.AutoSync)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
sensor:
  resamplemode: fastest
devices:
  - name: bench
    lossrate: 1.5
    sensors:
      - name: ecg
        samplerate: 500
`)

	_, err := Load(path)
	require.Error(t, err)

	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 2)
}

func TestDumpYAMLLoadsBack(t *testing.T) {
	original, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	data, err := DumpYAML(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tickinterval: 10ms")

	reloaded, err := Load(writeConfig(t, string(data)))
	require.NoError(t, err)

	assert.Equal(t, original.Engine, reloaded.Engine)
	assert.Equal(t, original.Sensor, reloaded.Sensor)
	if diff := cmp.Diff(original.Devices, reloaded.Devices); diff != "" {
		t.Errorf("devices mismatch after reload (-want +got):\n%s", diff)
	}
}

func TestSaveYAMLConfigReplacesFile(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	settings, err := Load(path)
	require.NoError(t, err)

	settings.Engine.TickInterval = 5 * time.Millisecond
	require.NoError(t, SaveYAMLConfig(path, settings))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file should be renamed over the config")

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, reloaded.Engine.TickInterval)
}

package driver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/biosync/internal/conf"
	"github.com/tphakala/biosync/internal/device"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func simulatedDevice(t *testing.T, dc *conf.DeviceConfig) *device.Device {
	t.Helper()
	defaults := &conf.SensorSettings{BufferSize: 4096, BurstWindow: 50, InboxCapacity: 1024, ResampleMode: "realtime"}
	d, err := device.FromSettings(dc, defaults, nil)
	require.NoError(t, err)
	return d
}

func deviceConfig() *conf.DeviceConfig {
	return &conf.DeviceConfig{
		Name:          "headband",
		Type:          conf.DeviceTypeSimulated,
		Enabled:       true,
		BurstInterval: 10 * time.Millisecond,
		Waveform:      conf.WaveformSine,
		Frequency:     10,
		Sensors: []conf.SensorConfig{
			{Name: "eeg", Min: -100, Max: 100, SampleRate: 1000},
			{Name: "resp", Min: 0, Max: 1, SampleRate: 200},
		},
	}
}

func runFor(t *testing.T, sim *Simulator, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), d)
	defer cancel()
	require.NoError(t, sim.Run(ctx))
}

func queued(d *device.Device) uint64 {
	var n uint64
	for _, s := range d.Sensors() {
		n += uint64(s.QueueLength())
	}
	return n
}

func TestSimulatorDeliversAllFrames(t *testing.T) {
	t.Parallel()

	dc := deviceConfig()
	dev := simulatedDevice(t, dc)
	sim, err := New(dev, dc, WithSeed(3))
	require.NoError(t, err)
	assert.NotEqual(t, sim.Session().String(), "")

	runFor(t, sim, 250*time.Millisecond)

	st := sim.Stats()
	assert.Positive(t, st.FramesSent)
	assert.Equal(t, st.FramesSent, st.FramesDecoded, "frames left in the ring are drained on shutdown")
	assert.Zero(t, st.FramesOverflow)
	assert.Zero(t, st.LostSamples)
	assert.Zero(t, st.FramesCorrupt)
	assert.Equal(t, st.FramesDecoded, queued(dev))

	assert.Greater(t, dev.FindSensor("eeg").QueueLength(), dev.FindSensor("resp").QueueLength())
	assert.Greater(t, dev.BatteryChargeLevel(), 0.99)
}

func TestSimulatorRingOverflowBecomesLoss(t *testing.T) {
	t.Parallel()

	dc := deviceConfig()
	dc.Sensors = dc.Sensors[:1]
	dc.Sensors[0].SampleRate = 2000
	dc.BurstInterval = 20 * time.Millisecond

	dev := simulatedDevice(t, dc)
	sim, err := New(dev, dc, WithRingSize(8*FrameSize), WithPollInterval(time.Millisecond))
	require.NoError(t, err)

	runFor(t, sim, 200*time.Millisecond)

	st := sim.Stats()
	assert.Positive(t, st.FramesOverflow)
	assert.Positive(t, st.LostSamples)
	assert.LessOrEqual(t, st.LostSamples, st.FramesOverflow)
	assert.Equal(t, st.FramesSent, st.FramesDecoded)
	assert.Equal(t, st.FramesDecoded+st.LostSamples, queued(dev))
}

func TestSimulatorIntentionalLoss(t *testing.T) {
	t.Parallel()

	dc := deviceConfig()
	dc.LossRate = 0.2
	dev := simulatedDevice(t, dc)
	sim, err := New(dev, dc, WithSeed(7))
	require.NoError(t, err)

	runFor(t, sim, 200*time.Millisecond)

	st := sim.Stats()
	assert.Positive(t, st.FramesDropped)
	assert.Positive(t, st.LostSamples)
	assert.LessOrEqual(t, st.LostSamples, st.FramesDropped)
	assert.Equal(t, dev.FindSensor("eeg").NumLostSamples()+dev.FindSensor("resp").NumLostSamples(), st.LostSamples)
}

func TestSimulatorBatteryDrain(t *testing.T) {
	t.Parallel()

	dc := deviceConfig()
	dev := simulatedDevice(t, dc)
	sim, err := New(dev, dc, WithBatteryLife(time.Second))
	require.NoError(t, err)

	runFor(t, sim, 300*time.Millisecond)

	level := dev.BatteryChargeLevel()
	assert.Less(t, level, 0.8)
	assert.Greater(t, level, 0.5)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	dc := deviceConfig()
	dev := simulatedDevice(t, dc)

	dc.Waveform = "sawtooth"
	_, err := New(dev, dc)
	require.Error(t, err)

	dc.Waveform = conf.WaveformNoise
	dc.LossRate = 1
	_, err = New(dev, dc)
	require.Error(t, err)
}

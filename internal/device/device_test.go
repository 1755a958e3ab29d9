package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/biosync/internal/conf"
	"github.com/tphakala/biosync/internal/dsp"
	"github.com/tphakala/biosync/internal/errors"
	"github.com/tphakala/biosync/internal/sensor"
)

func newSensor(t *testing.T, name string, rate float64) *sensor.Sensor {
	t.Helper()
	s, err := sensor.New(sensor.Config{Name: name, InputRate: rate, OutputRate: rate}, nil)
	require.NoError(t, err)
	return s
}

func newDevice(t *testing.T, cfg Config, sensors ...*sensor.Sensor) *Device {
	t.Helper()
	d := New(cfg)
	for _, s := range sensors {
		require.NoError(t, d.AddSensor(s, SensorOutput))
	}
	return d
}

func push(s *sensor.Sensor, n int) {
	for i := range n {
		s.AddQueuedSample(float64(i))
	}
}

func TestDeviceStateMachine(t *testing.T) {
	t.Parallel()

	eeg := newSensor(t, "eeg", 250)
	d := newDevice(t, Config{Name: "headband", Enabled: true}, eeg)

	assert.Equal(t, StateDisconnected, d.State())
	assert.False(t, d.IsConnected())
	assert.True(t, d.Connect())
	assert.False(t, d.Connect(), "connect only from disconnected")
	assert.Equal(t, StateIdle, d.State())
	assert.True(t, d.IsConnected())

	d.Update(100*time.Millisecond, 100*time.Millisecond)
	assert.Equal(t, StateIdle, d.State(), "no data, still idle")

	push(eeg, 5)
	d.Update(120*time.Millisecond, 20*time.Millisecond)
	assert.True(t, d.IsStreaming())
	assert.Equal(t, 120*time.Millisecond, eeg.Input().StartTime(), "first data aligns sensors to engine time")
	assert.Equal(t, 120*time.Millisecond, eeg.Output().StartTime())

	d.Fail(errors.NewStd("link lost"))
	assert.Equal(t, StateError, d.State())
	require.Error(t, d.Err())
	assert.False(t, d.IsConnected())

	d.Disconnect()
	assert.Equal(t, StateDisconnected, d.State())
	assert.Equal(t, "disconnected", d.State().String())
}

func TestDeviceTimeout(t *testing.T) {
	t.Parallel()

	eeg := newSensor(t, "eeg", 250)
	d := newDevice(t, Config{Name: "headband", Enabled: true, Timeout: time.Second}, eeg)
	require.True(t, d.Connect())
	assert.Equal(t, time.Second, d.TimeoutLimit())

	d.Update(time.Second, time.Second)
	assert.Equal(t, StateIdle, d.State(), "timeout requires exceeding the limit")

	d.Update(1100*time.Millisecond, 100*time.Millisecond)
	assert.True(t, d.IsTimeoutReached())

	// data brings the device back from any state
	push(eeg, 3)
	d.Update(1200*time.Millisecond, 100*time.Millisecond)
	assert.True(t, d.IsStreaming())

	d.Update(1300*time.Millisecond, 100*time.Millisecond)
	assert.True(t, d.IsStreaming(), "inactivity was reset by active sensors")

	assert.Equal(t, DefaultTimeout, New(Config{}).TimeoutLimit())
}

func TestDisabledDeviceSkipsSensors(t *testing.T) {
	t.Parallel()

	eeg := newSensor(t, "eeg", 250)
	d := newDevice(t, Config{Name: "headband"}, eeg)
	require.False(t, d.IsEnabled())

	push(eeg, 4)
	d.Update(20*time.Millisecond, 20*time.Millisecond)
	assert.Equal(t, 4, eeg.QueueLength())
	assert.Equal(t, uint64(0), eeg.Input().SampleCounter())

	d.SetEnabled(true)
	d.Update(40*time.Millisecond, 20*time.Millisecond)
	assert.Equal(t, uint64(4), eeg.Input().SampleCounter())
}

func TestDeviceSensorLatency(t *testing.T) {
	t.Parallel()

	bursty := newSensor(t, "eeg", 250)
	single := newSensor(t, "marker", 250)
	d := newDevice(t, Config{Name: "headband", Enabled: true, Latency: 20 * time.Millisecond, Jitter: 5 * time.Millisecond},
		bursty, single)

	push(bursty, 11)
	push(single, 1)
	d.Update(44*time.Millisecond, 44*time.Millisecond)

	// (11-1)/250/2 = 20ms of burst latency on top of the transmission latency
	assert.Equal(t, 40*time.Millisecond, bursty.Latency())
	assert.Equal(t, 20*time.Millisecond, single.Latency())
	assert.Equal(t, 40*time.Millisecond, d.FindMaxLatency())
	assert.Equal(t, 5*time.Millisecond, bursty.ExpectedJitter())
}

func TestDeviceSyncPadsAllSensors(t *testing.T) {
	t.Parallel()

	a := newSensor(t, "a", 100)
	b := newSensor(t, "b", 50)
	d := newDevice(t, Config{Name: "dev", Enabled: true}, a, b)

	a.SetLatency(500 * time.Millisecond)
	d.Sync(time.Second, true)
	assert.Equal(t, uint64(50), a.Output().SampleCounter())
	assert.Equal(t, uint64(50), b.Output().SampleCounter())

	d.Sync(2*time.Second, false)
	assert.Equal(t, 2*time.Second, a.Output().StartTime())
	assert.Equal(t, 2*time.Second, b.Input().StartTime())
}

func TestDeviceOutputReaders(t *testing.T) {
	t.Parallel()

	eeg := newSensor(t, "eeg", 250)
	d := newDevice(t, Config{Name: "headband", Enabled: true}, eeg)
	require.True(t, d.Connect())
	require.Len(t, d.OutputReaders(), 1)
	assert.Same(t, eeg.Output(), d.OutputReaders()[0].Channel())

	push(eeg, 5)
	d.Update(20*time.Millisecond, 20*time.Millisecond)
	push(eeg, 3)
	d.Update(32*time.Millisecond, 12*time.Millisecond)

	st := d.Stats()
	assert.Equal(t, uint64(8), st.Delivered)
	assert.Equal(t, uint64(0), st.Overruns)
	assert.Equal(t, "headband", st.Name)
	assert.Equal(t, StateStreaming, st.State)
	require.Len(t, st.Sensors, 1)
	assert.Equal(t, uint64(8), st.Sensors[0].OutputSamples)
}

func TestDeviceInputSensorsHaveNoReader(t *testing.T) {
	t.Parallel()

	d := New(Config{Name: "stimulator", Enabled: true})
	require.NoError(t, d.AddSensor(newSensor(t, "led", 10), SensorInput))
	require.NoError(t, d.AddSensor(newSensor(t, "eeg", 250), SensorOutput))

	assert.Len(t, d.Sensors(), 2)
	assert.Len(t, d.InputSensors(), 1)
	assert.Len(t, d.OutputSensors(), 1)
	assert.Len(t, d.OutputReaders(), 1)

	err := d.AddSensor(newSensor(t, "eeg", 250), SensorOutput)
	require.Error(t, err)
	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, errors.CategoryConflict, ee.Category)
	assert.NotNil(t, d.FindSensor("led"))
	assert.Nil(t, d.FindSensor("missing"))
}

func TestDeviceBattery(t *testing.T) {
	t.Parallel()

	d := New(Config{Name: "band", PowerSupply: PowerBattery})
	assert.InDelta(t, 0.0, d.BatteryChargeLevel(), 0, "no level received yet")
	assert.False(t, d.IsBatteryCritical())

	d.SetBatteryChargeLevel(0.8)
	assert.InDelta(t, 0.8, d.BatteryChargeLevel(), 1e-12)

	d.SetBatteryChargeLevel(0.805)
	assert.InDelta(t, 0.8, d.BatteryChargeLevel(), 1e-12, "small changes are ignored")

	d.SetBatteryChargeLevel(0.2)
	assert.True(t, d.IsBatteryCritical())

	line := New(Config{PowerSupply: PowerLine})
	assert.InDelta(t, 1.0, line.BatteryChargeLevel(), 0)
	assert.False(t, line.IsBatteryCritical())

	d.Reset()
	assert.InDelta(t, 0.0, d.BatteryChargeLevel(), 0)
}

func TestDeviceReset(t *testing.T) {
	t.Parallel()

	eeg := newSensor(t, "eeg", 250)
	d := newDevice(t, Config{Name: "headband", Enabled: true}, eeg)
	push(eeg, 10)
	d.Update(40*time.Millisecond, 40*time.Millisecond)
	d.SetDriftCorrectionEnabled(false)
	assert.False(t, eeg.DriftCorrectionEnabled())

	d.Reset()
	assert.Equal(t, uint64(0), eeg.Input().SampleCounter())
	assert.Equal(t, uint64(0), eeg.Output().SampleCounter())

	push(eeg, 2)
	d.Update(8*time.Millisecond, 8*time.Millisecond)
	assert.Equal(t, uint64(12), d.Stats().Delivered, "delivery count is cumulative")
}

func TestFromSettings(t *testing.T) {
	t.Parallel()

	dc := &conf.DeviceConfig{
		Name:    "wristband",
		Type:    conf.DeviceTypeSimulated,
		Enabled: true,
		Latency: 50 * time.Millisecond,
		Timeout: 3 * time.Second,
		Sensors: []conf.SensorConfig{
			{Name: "ppg", Unit: "a.u.", Max: 1, SampleRate: 64, OutputRate: 32},
			{Name: "eda", Unit: "uS", Max: 40, SampleRate: 4, OutputRate: 4},
		},
	}
	defaults := &conf.SensorSettings{BufferSize: 512, BurstWindow: 50, InboxCapacity: 128, ResampleMode: "good"}

	d, err := FromSettings(dc, defaults, nil)
	require.NoError(t, err)
	assert.Equal(t, "wristband", d.Name())
	assert.Equal(t, conf.DeviceTypeSimulated, d.Type())
	assert.Equal(t, 3*time.Second, d.TimeoutLimit())
	require.Len(t, d.Sensors(), 2)

	ppg := d.FindSensor("ppg")
	require.NotNil(t, ppg)
	assert.Equal(t, 0, ppg.HardwareChannel())
	assert.Equal(t, 512, ppg.Output().Capacity())
	assert.Equal(t, "a.u.", ppg.Output().Info().Unit)
	assert.Equal(t, dsp.AlgoBoxcar, ppg.Resampler().Algorithm())
	assert.Equal(t, 1, d.FindSensor("eda").HardwareChannel())

	d.SetBatteryChargeLevel(0.5)
	assert.InDelta(t, 0.5, d.BatteryChargeLevel(), 1e-12, "simulated devices run on battery")

	defaults.ResampleMode = "cubic"
	_, err = FromSettings(dc, defaults, nil)
	require.Error(t, err)

	defaults.ResampleMode = "realtime"
	dc.Sensors = append(dc.Sensors, conf.SensorConfig{Name: "ppg", SampleRate: 64, OutputRate: 64})
	_, err = FromSettings(dc, defaults, nil)
	require.Error(t, err, "duplicate sensor names")
}

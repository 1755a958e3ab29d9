// Package device groups the sensors of one piece of hardware. A device tracks
// connection state and inactivity, estimates per sensor latency from burst
// sizes and consumes its output channels through read cursors.
package device

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/biosync/internal/dsp"
	"github.com/tphakala/biosync/internal/errors"
	"github.com/tphakala/biosync/internal/logger"
	"github.com/tphakala/biosync/internal/sensor"
)

const (
	// DefaultTimeout is the inactivity limit before a device enters StateTimeout.
	DefaultTimeout = 5 * time.Second

	// CriticalBatteryLevel is the normalized charge at or below which the battery is critical.
	CriticalBatteryLevel = 0.25

	// batteryHysteresis ignores charge updates smaller than about one percent.
	batteryHysteresis = 0.011
)

// State is the connection state of a device.
type State int

const (
	StateDisconnected State = iota // startup state
	StateIdle                      // connected, no data yet
	StateStreaming
	StateTest // device specific test mode, e.g. impedance check
	StateTimeout
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateTest:
		return "test"
	case StateTimeout:
		return "timeout"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Direction tells whether a sensor carries data from or to the hardware.
type Direction int

const (
	// SensorOutput sensors deliver hardware data and get an output reader.
	SensorOutput Direction = iota
	// SensorInput sensors carry data sent to the hardware.
	SensorInput
)

// PowerSupply is how the hardware is powered.
type PowerSupply int

const (
	PowerUnknown PowerSupply = iota
	PowerBattery
	PowerLine
)

// Config describes a device at construction.
type Config struct {
	Name    string
	Type    string
	Enabled bool
	// Latency is the transmission latency added to every sensor.
	Latency time.Duration
	// Jitter is applied as expected jitter to every sensor.
	Jitter      time.Duration
	Timeout     time.Duration
	PowerSupply PowerSupply
}

// Device owns a set of sensors. Update, Sync and Reset belong to the engine
// tick; battery updates may come from the driver goroutine.
type Device struct {
	id      uuid.UUID
	name    string
	kind    string
	enabled bool

	state      State
	lastError  error
	latency    time.Duration
	jitter     time.Duration
	timeout    time.Duration
	inactivity time.Duration

	sensors       []*sensor.Sensor
	inputSensors  []*sensor.Sensor
	outputSensors []*sensor.Sensor
	outputReaders []*dsp.ChannelReader
	delivered     []uint64

	powerMu         sync.Mutex
	powerSupply     PowerSupply
	battery         float64
	receivedBattery bool
}

// New creates a disconnected device without sensors.
func New(cfg Config) *Device {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Device{
		id:          uuid.New(),
		name:        cfg.Name,
		kind:        cfg.Type,
		enabled:     cfg.Enabled,
		state:       StateDisconnected,
		latency:     cfg.Latency,
		jitter:      cfg.Jitter,
		timeout:     cfg.Timeout,
		powerSupply: cfg.PowerSupply,
	}
}

// AddSensor attaches a sensor. Output sensors get a read cursor on their
// output channel. Sensor names must be unique within the device.
func (d *Device) AddSensor(s *sensor.Sensor, dir Direction) error {
	if d.FindSensor(s.Name()) != nil {
		return errors.Newf("device %s already has a sensor named %s", d.name, s.Name()).
			Component("device").
			Category(errors.CategoryConflict).
			Context("device", d.name).
			Context("sensor", s.Name()).
			Build()
	}

	if dir == SensorInput {
		d.inputSensors = append(d.inputSensors, s)
	} else {
		d.outputSensors = append(d.outputSensors, s)
		d.outputReaders = append(d.outputReaders, dsp.NewChannelReader(s.Output()))
		d.delivered = append(d.delivered, 0)
	}
	d.sensors = append(d.sensors, s)
	return nil
}

// Connect moves a disconnected device to StateIdle.
func (d *Device) Connect() bool {
	if d.state != StateDisconnected {
		return false
	}
	d.setState(StateIdle)
	return true
}

// Disconnect moves the device to StateDisconnected.
func (d *Device) Disconnect() {
	d.setState(StateDisconnected)
}

// Fail records err and moves the device to StateError.
func (d *Device) Fail(err error) {
	d.lastError = err
	d.setState(StateError)
}

func (d *Device) setState(s State) {
	if d.state == s {
		return
	}
	GetLogger().Info("device state changed",
		logger.String("device", d.name),
		logger.String("from", d.state.String()),
		logger.String("to", s.String()))
	d.state = s
}

func (d *Device) State() State { return d.state }
func (d *Device) Err() error { return d.lastError }
func (d *Device) IsConnected() bool {
	return d.state == StateIdle || d.state == StateStreaming || d.state == StateTest
}
func (d *Device) IsStreaming() bool { return d.state == StateStreaming }
func (d *Device) IsTimeoutReached() bool { return d.state == StateTimeout }

// Update runs one engine tick: timeout bookkeeping, sensor updates, latency
// estimation and output reader updates.
func (d *Device) Update(elapsed, delta time.Duration) {
	d.inactivity += delta
	if d.inactivity > d.timeout {
		d.setState(StateTimeout)
	}

	if !d.enabled {
		return
	}

	receivedData := false
	active := false
	for _, s := range d.sensors {
		s.Update(elapsed, delta)
		s.SetLatency(d.sensorLatency(s))

		receivedData = receivedData || s.Input().NumNewSamples() > 0
		active = active || s.Input().IsActive()

		s.SetExpectedJitter(d.jitter)
	}

	for i, r := range d.outputReaders {
		r.Update()
		d.delivered[i] += uint64(r.NumNewSamples())
		r.Flush()
	}

	if active {
		d.inactivity = 0
	}

	// first data after connecting aligns the sensors to engine time
	if d.state == StateIdle && receivedData {
		d.Sync(elapsed, false)
	}
	if receivedData {
		d.setState(StateStreaming)
	}
}

// sensorLatency is the transmission latency plus half the duration of an
// average burst, since samples in a burst wait for the burst to complete.
func (d *Device) sensorLatency(s *sensor.Sensor) time.Duration {
	burst := math.Trunc(s.AverageBurstSize())
	if burst <= 1 {
		return d.latency
	}

	var burstDuration float64
	if rate := s.SampleRate(); rate > 0 {
		burstDuration = (burst - 1) / rate
	}
	return time.Duration(burstDuration/2*float64(time.Second)) + d.latency
}

// Sync aligns every sensor to t.
func (d *Device) Sync(t time.Duration, usePadding bool) {
	for _, s := range d.sensors {
		s.Sync(t, usePadding)
	}
}

// Reset clears all sensors, readers and battery state.
func (d *Device) Reset() {
	for _, s := range d.sensors {
		s.Reset()
	}
	for _, r := range d.outputReaders {
		r.Reset()
	}
	d.inactivity = 0

	d.powerMu.Lock()
	d.receivedBattery = false
	d.battery = 0
	d.powerMu.Unlock()
}

// FindMaxLatency returns the largest latency across all sensors.
func (d *Device) FindMaxLatency() time.Duration {
	var maxLatency time.Duration
	for _, s := range d.sensors {
		maxLatency = max(maxLatency, s.Latency())
	}
	return maxLatency
}

// SetDriftCorrectionEnabled toggles drift correction on every sensor.
func (d *Device) SetDriftCorrectionEnabled(enabled bool) {
	for _, s := range d.sensors {
		s.SetDriftCorrectionEnabled(enabled)
	}
}

// SetBatteryChargeLevel records a normalized charge level. Changes below about
// one percent are ignored. Safe for concurrent use.
func (d *Device) SetBatteryChargeLevel(level float64) {
	d.powerMu.Lock()
	defer d.powerMu.Unlock()

	if level > 0 {
		d.receivedBattery = true
	}
	if math.Abs(d.battery-level) > batteryHysteresis {
		d.battery = level
	}
}

// BatteryChargeLevel returns the normalized charge; line powered devices report 1.
func (d *Device) BatteryChargeLevel() float64 {
	d.powerMu.Lock()
	defer d.powerMu.Unlock()

	switch {
	case d.powerSupply == PowerBattery && d.receivedBattery:
		return d.battery
	case d.powerSupply == PowerLine:
		return 1
	default:
		return 0
	}
}

// IsBatteryCritical reports a battery powered device at or below CriticalBatteryLevel.
func (d *Device) IsBatteryCritical() bool {
	d.powerMu.Lock()
	defer d.powerMu.Unlock()
	return d.powerSupply == PowerBattery && d.receivedBattery && d.battery <= CriticalBatteryLevel
}

func (d *Device) ID() uuid.UUID { return d.id }
func (d *Device) Name() string { return d.name }
func (d *Device) Type() string { return d.kind }
func (d *Device) IsEnabled() bool { return d.enabled }
func (d *Device) SetEnabled(enabled bool) { d.enabled = enabled }
func (d *Device) Latency() time.Duration { return d.latency }
func (d *Device) ExpectedJitter() time.Duration { return d.jitter }
func (d *Device) TimeoutLimit() time.Duration { return d.timeout }
func (d *Device) Sensors() []*sensor.Sensor { return d.sensors }
func (d *Device) OutputSensors() []*sensor.Sensor { return d.outputSensors }
func (d *Device) InputSensors() []*sensor.Sensor { return d.inputSensors }
func (d *Device) OutputReaders() []*dsp.ChannelReader { return d.outputReaders }

// FindSensor returns the sensor with the given name, nil if there is none.
func (d *Device) FindSensor(name string) *sensor.Sensor {
	for _, s := range d.sensors {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// Stats is a point in time view of a device.
type Stats struct {
	ID        string
	Name      string
	State     State
	Battery   float64
	Delivered uint64 // output samples consumed by the readers
	Overruns  uint64 // output samples overwritten before they were read
	Sensors   []sensor.Stats
}

// Stats returns the current device and sensor counters. Call from the tick goroutine.
func (d *Device) Stats() Stats {
	st := Stats{
		ID:      d.id.String(),
		Name:    d.name,
		State:   d.state,
		Battery: d.BatteryChargeLevel(),
		Sensors: make([]sensor.Stats, 0, len(d.sensors)),
	}
	for i, r := range d.outputReaders {
		st.Delivered += d.delivered[i]
		st.Overruns += r.Overruns()
	}
	for _, s := range d.sensors {
		st.Sensors = append(st.Sensors, s.Stats())
	}
	return st
}

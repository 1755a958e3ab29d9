// Package engine drives the acquisition tick and keeps all sensors on a
// common time base. Sensors reach the engine through sensor.Environment to
// read drift limits and to schedule an engine wide sync.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/biosync/internal/conf"
	"github.com/tphakala/biosync/internal/device"
	"github.com/tphakala/biosync/internal/errors"
	"github.com/tphakala/biosync/internal/logger"
	"github.com/tphakala/biosync/internal/sensor"
)

const (
	// DefaultTickInterval is the update period used when none is configured.
	DefaultTickInterval = 10 * time.Millisecond

	// DefaultPublishInterval is how often device statistics reach the Recorder.
	DefaultPublishInterval = time.Second
)

// Recorder receives engine measurements. Implementations must be safe for
// concurrent use; RecordSyncRequest may be called from any goroutine.
type Recorder interface {
	RecordTick(d time.Duration)
	RecordSyncRequest()
	RecordSync()
	RecordDevice(st device.Stats)
}

type nopRecorder struct{}

func (nopRecorder) RecordTick(time.Duration) {}
func (nopRecorder) RecordSyncRequest() {}
func (nopRecorder) RecordSync() {}
func (nopRecorder) RecordDevice(device.Stats) {}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithRecorder routes tick, sync and device measurements to r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithPublishInterval overrides DefaultPublishInterval.
func WithPublishInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.publishInterval = d
		}
	}
}

// Engine owns the devices and runs their update tick. Update, Sync and Reset
// are serialized by an internal mutex. The sync flags are atomic so sensors
// can request a sync from inside the tick.
type Engine struct {
	mu      sync.Mutex
	devices []*device.Device
	elapsed time.Duration
	syncs   uint64

	drift          atomic.Pointer[sensor.DriftCorrection]
	autoSync       atomic.Bool
	sessionRunning atomic.Bool
	paused         atomic.Bool
	syncPending    atomic.Bool
	syncRequests   atomic.Uint64

	tickInterval    time.Duration
	publishInterval time.Duration
	recorder        Recorder
}

var _ sensor.Environment = (*Engine)(nil)

// New creates an engine from settings. A nil settings value selects the
// built in defaults.
func New(settings *conf.EngineSettings, opts ...Option) *Engine {
	e := &Engine{
		tickInterval:    DefaultTickInterval,
		publishInterval: DefaultPublishInterval,
		recorder:        nopRecorder{},
	}

	drift := sensor.DefaultDriftCorrection()
	e.autoSync.Store(true)

	if settings != nil {
		if settings.TickInterval > 0 {
			e.tickInterval = settings.TickInterval
		}
		e.autoSync.Store(settings.AutoSync)
		e.sessionRunning.Store(settings.Session.Running)
		drift = driftFromSettings(&settings.Drift)
	}
	e.drift.Store(&drift)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

func driftFromSettings(ds *conf.DriftSettings) sensor.DriftCorrection {
	dc := sensor.DriftCorrection{
		Enabled:           ds.Enabled,
		MaxDriftUntilSync: ds.MaxDriftUntilSync,
		MaxForwardDrift:   ds.MaxForwardDrift,
		MaxBackwardDrift:  ds.MaxBackwardDrift,
	}
	if dc.MaxDriftUntilSync <= 0 {
		dc.MaxDriftUntilSync = sensor.DefaultMaxDriftUntilSync
	}
	if dc.MaxForwardDrift <= 0 {
		dc.MaxForwardDrift = sensor.DefaultMaxForwardDrift
	}
	if dc.MaxBackwardDrift <= 0 {
		dc.MaxBackwardDrift = sensor.DefaultMaxBackwardDrift
	}
	return dc
}

// DriftCorrection returns the current drift limits.
func (e *Engine) DriftCorrection() sensor.DriftCorrection {
	return *e.drift.Load()
}

// SetDriftCorrection replaces the drift limits used from the next tick on.
func (e *Engine) SetDriftCorrection(dc sensor.DriftCorrection) {
	e.drift.Store(&dc)
}

func (e *Engine) AutoSyncEnabled() bool { return e.autoSync.Load() }
func (e *Engine) SetAutoSync(enabled bool) { e.autoSync.Store(enabled) }

// SessionRunning reports whether a recording session is active. Sync requests
// are ignored while it is.
func (e *Engine) SessionRunning() bool { return e.sessionRunning.Load() }
func (e *Engine) SetSessionRunning(running bool) { e.sessionRunning.Store(running) }

// Pause stops Update from advancing the engine until Resume.
func (e *Engine) Pause() { e.paused.Store(true) }
func (e *Engine) Resume() { e.paused.Store(false) }

// RequestSync schedules a sync for the next tick unless a session is running.
// It never blocks and may be called from the tick itself.
func (e *Engine) RequestSync() {
	if e.sessionRunning.Load() {
		GetLogger().Debug("sync request ignored, session running")
		return
	}
	e.syncRequests.Add(1)
	e.recorder.RecordSyncRequest()
	e.syncPending.Store(true)
}

// SyncAsync is an alias of RequestSync.
func (e *Engine) SyncAsync() { e.RequestSync() }

// SyncPending reports whether a sync is scheduled.
func (e *Engine) SyncPending() bool { return e.syncPending.Load() }

// AddDevice registers d. Device names are unique. With auto sync enabled a
// sync is scheduled so the new sensors join the common time base.
func (e *Engine) AddDevice(d *device.Device) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.findDevice(d.Name()) >= 0 {
		return deviceError(ErrDeviceExists, errors.CategoryConflict, d.Name())
	}
	e.devices = append(e.devices, d)

	GetLogger().Info("device added",
		logger.String("device", d.Name()),
		logger.String("id", d.ID().String()),
		logger.Int("sensors", len(d.Sensors())))

	if e.autoSync.Load() {
		e.RequestSync()
	}
	return nil
}

// RemoveDevice unregisters the device with the given name.
func (e *Engine) RemoveDevice(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.findDevice(name)
	if i < 0 {
		return deviceError(ErrDeviceNotFound, errors.CategoryNotFound, name)
	}
	e.devices = append(e.devices[:i], e.devices[i+1:]...)

	GetLogger().Info("device removed", logger.String("device", name))
	return nil
}

func (e *Engine) findDevice(name string) int {
	for i, d := range e.devices {
		if d.Name() == name {
			return i
		}
	}
	return -1
}

// Devices returns a copy of the registered devices.
func (e *Engine) Devices() []*device.Device {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*device.Device(nil), e.devices...)
}

// Elapsed returns the engine time since the last sync.
func (e *Engine) Elapsed() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.elapsed
}

// Update advances the engine by delta. While a sync is pending the tick runs
// with zero delta and ends in Reset.
func (e *Engine) Update(delta time.Duration) {
	if e.paused.Load() {
		return
	}

	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	syncing := e.syncPending.Load()
	if syncing {
		delta = 0
	}
	e.elapsed += delta

	for _, d := range e.devices {
		d.Update(e.elapsed, delta)
	}

	if syncing {
		e.reset()
	}

	e.recorder.RecordTick(time.Since(start))
}

// Reset clears all devices and syncs them.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

func (e *Engine) reset() {
	e.elapsed = 0
	e.syncPending.Store(false)

	for _, d := range e.devices {
		d.Reset()
	}
	e.sync()
}

// Sync restarts engine time and pads every sensor to the largest sensor
// latency so that all outputs line up.
func (e *Engine) Sync() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sync()
}

func (e *Engine) sync() {
	e.elapsed = 0

	var maxLatency time.Duration
	for _, d := range e.devices {
		maxLatency = max(maxLatency, d.FindMaxLatency())
	}
	for _, d := range e.devices {
		d.Sync(maxLatency, true)
	}

	e.syncs++
	e.recorder.RecordSync()

	GetLogger().Info("engine sensors synced",
		logger.Int("devices", len(e.devices)),
		logger.Duration("max_latency", maxLatency))
}

// Run ticks the engine every tick interval until ctx is done. Device
// statistics are published to the Recorder every publish interval.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()
	publish := time.NewTicker(e.publishInterval)
	defer publish.Stop()

	GetLogger().Info("engine started",
		logger.Duration("tick_interval", e.tickInterval),
		logger.Int("devices", len(e.Devices())))

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			GetLogger().Info("engine stopped", logger.Duration("elapsed", e.Elapsed()))
			return nil
		case now := <-ticker.C:
			e.Update(now.Sub(last))
			last = now
		case <-publish.C:
			e.Publish()
		}
	}
}

// Publish hands a statistics snapshot of every device to the Recorder.
func (e *Engine) Publish() {
	for _, st := range e.Stats().Devices {
		e.recorder.RecordDevice(st)
	}
}

// TickInterval returns the configured update period.
func (e *Engine) TickInterval() time.Duration { return e.tickInterval }

// Stats is a point in time view of the engine.
type Stats struct {
	Elapsed      time.Duration
	Syncs        uint64
	SyncRequests uint64
	SyncPending  bool
	Devices      []device.Stats
}

// Stats returns a snapshot of the engine and all devices.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Stats{
		Elapsed:      e.elapsed,
		Syncs:        e.syncs,
		SyncRequests: e.syncRequests.Load(),
		SyncPending:  e.syncPending.Load(),
		Devices:      make([]device.Stats, 0, len(e.devices)),
	}
	for _, d := range e.devices {
		st.Devices = append(st.Devices, d.Stats())
	}
	return st
}

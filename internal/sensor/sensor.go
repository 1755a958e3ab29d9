// Package sensor pairs a hardware rate input channel with an engine rate
// output channel. Driver goroutines queue samples; the engine tick drains the
// queue, resamples and corrects clock drift.
package sensor

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/tphakala/biosync/internal/dsp"
	"github.com/tphakala/biosync/internal/logger"
)

const (
	DefaultInboxCapacity = 2048
	DefaultBurstWindow   = 200
)

// Config describes a sensor at construction.
type Config struct {
	Name string
	Info dsp.ChannelInfo
	// InputRate is the hardware rate; 0 marks an irregular, event driven sensor.
	InputRate float64
	// OutputRate is the engine facing rate.
	OutputRate float64

	HardwareChannel int
	BufferSize      int
	BurstWindow     int
	InboxCapacity   int
	ResampleMode    dsp.ResampleMode
}

// Sensor is one acquisition unit. AddQueuedSample and HandleLostSamples may be
// called from any goroutine; every other method belongs to the engine tick.
type Sensor struct {
	id              uuid.UUID
	hardwareChannel int
	enabled         bool
	env             Environment

	input     *dsp.Channel[float64]
	output    *dsp.Channel[float64]
	resampler *dsp.Resampler[float64]
	processor dsp.Processor

	inboxMu sync.Mutex
	inbox   []float64
	drain   []float64 // swapped with inbox each tick

	bursts         []float64 // burst sizes, oldest first
	realSampleRate float64
	latency        time.Duration
	expectedJitter time.Duration
	contact        ContactQuality

	driftCorrection     bool
	lastDrift           int64
	driftSamplesAdded   uint64
	driftSamplesRemoved uint64
	lostSamples         atomic.Uint64

	syncLog *rate.Limiter
	lossLog *rate.Limiter
}

// New creates a sensor with its channels and a resampler from input to output.
// env may be nil, in which case drift correction stays disabled.
func New(cfg Config, env Environment) (*Sensor, error) {
	if cfg.Name == "" {
		return nil, ErrMissingName
	}
	if !validRate(cfg.InputRate) {
		return nil, invalidRate(cfg.Name, "input rate", cfg.InputRate)
	}
	if !validRate(cfg.OutputRate) {
		return nil, invalidRate(cfg.Name, "output rate", cfg.OutputRate)
	}

	if env == nil {
		env = &StaticEnvironment{}
	}
	if cfg.BurstWindow <= 0 {
		cfg.BurstWindow = DefaultBurstWindow
	}
	if cfg.InboxCapacity <= 0 {
		cfg.InboxCapacity = DefaultInboxCapacity
	}

	info := cfg.Info
	info.Name = cfg.Name

	input := dsp.NewChannel[float64](cfg.BufferSize, cfg.InputRate)
	input.SetInfo(info)
	input.SetIndependent(true)

	output := dsp.NewChannel[float64](cfg.BufferSize, cfg.OutputRate)
	output.SetInfo(info)

	resampler := dsp.NewResampler(output, cfg.ResampleMode)
	resampler.SetInput(input)
	resampler.SetOutputSampleRate(cfg.OutputRate)
	resampler.ReInit()

	s := &Sensor{
		id:              uuid.New(),
		hardwareChannel: cfg.HardwareChannel,
		enabled:         true,
		env:             env,
		input:           input,
		output:          output,
		resampler:       resampler,
		processor:       resampler,
		inbox:           make([]float64, 0, cfg.InboxCapacity),
		drain:           make([]float64, 0, cfg.InboxCapacity),
		bursts:          make([]float64, cfg.BurstWindow),
		driftCorrection: true,
		syncLog:         rate.NewLimiter(rate.Every(5*time.Second), 1),
		lossLog:         rate.NewLimiter(rate.Every(10*time.Second), 1),
	}

	GetLogger().Debug("sensor created",
		logger.String("sensor", cfg.Name),
		logger.Float64("input_rate", cfg.InputRate),
		logger.Float64("output_rate", cfg.OutputRate),
		logger.String("algorithm", resampler.Algorithm().String()))

	return s, nil
}

func validRate(r float64) bool {
	return r >= 0 && !math.IsInf(r, 0) && !math.IsNaN(r)
}

// AddQueuedSample appends a sample to the inbox. Safe for concurrent use.
func (s *Sensor) AddQueuedSample(value float64) {
	s.inboxMu.Lock()
	s.inbox = append(s.inbox, value)
	s.inboxMu.Unlock()
}

// HandleLostSamples queues n zero samples in place of samples the hardware
// lost and counts them. Safe for concurrent use.
func (s *Sensor) HandleLostSamples(n int) {
	if n <= 0 {
		return
	}

	s.inboxMu.Lock()
	for range n {
		s.inbox = append(s.inbox, 0)
	}
	s.inboxMu.Unlock()

	total := s.lostSamples.Add(uint64(n))
	if s.lossLog.Allow() {
		GetLogger().Warn("sensor lost samples",
			logger.String("sensor", s.Name()),
			logger.Int("lost", n),
			logger.Uint64("lost_total", total))
	}
}

// ClearQueuedSamples drops everything not yet drained.
func (s *Sensor) ClearQueuedSamples() {
	s.inboxMu.Lock()
	s.inbox = s.inbox[:0]
	s.inboxMu.Unlock()
}

// QueueLength returns the number of samples waiting for the next tick.
func (s *Sensor) QueueLength() int {
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()
	return len(s.inbox)
}

// Update drains the inbox into the input channel, resamples to the output
// channel and corrects drift. Called once per engine tick.
func (s *Sensor) Update(elapsed, delta time.Duration) {
	// swap buffers so the lock is held for constant time
	s.inboxMu.Lock()
	s.inbox, s.drain = s.drain[:0], s.inbox
	s.inboxMu.Unlock()

	numQueued := len(s.drain)

	s.input.UpdateActivity(delta)
	s.output.UpdateActivity(delta)

	s.input.BeginAddSamples()
	for _, v := range s.drain {
		s.input.AddSample(v)
	}

	s.processor.Update(elapsed, delta)

	s.output.SetElapsedTime(elapsed)
	s.input.SetElapsedTime(elapsed)
	s.output.UpdateLatency()
	s.input.UpdateLatency()

	copy(s.bursts, s.bursts[1:])
	s.bursts[len(s.bursts)-1] = float64(numQueued)

	if elapsed > 0 {
		s.realSampleRate = float64(s.input.SampleCounter()) / elapsed.Seconds()
	}

	if s.driftCorrection && s.input.SampleRate() > 0 {
		if settings := s.env.DriftCorrection(); settings.Enabled {
			s.correctForDrift(settings)
		}
	}
}

// Reset clears channels, inbox, burst history and counters and reinitializes
// the resampler.
func (s *Sensor) Reset() {
	s.output.Reset()
	s.ClearQueuedSamples()
	s.input.Reset()

	clear(s.bursts)
	s.realSampleRate = 0
	s.lastDrift = 0
	s.driftSamplesAdded = 0
	s.driftSamplesRemoved = 0
	s.lostSamples.Store(0)

	s.processor.Reset()
}

// Sync aligns the sensor to t. With padding, zero samples covering t minus the
// sensor latency are appended to the output; otherwise both channels are
// rebased to start at t.
func (s *Sensor) Sync(t time.Duration, usePadding bool) {
	if !usePadding {
		s.SetStartTime(t)
		return
	}

	padding := t - s.latency
	if padding <= 0 {
		return
	}

	n := uint32(padding.Seconds()*s.output.SampleRate() + 0.5)
	for range n {
		s.output.AddSample(0)
	}

	GetLogger().Debug("sensor padded for sync",
		logger.String("sensor", s.Name()),
		logger.Duration("padding", padding),
		logger.Int64("samples", int64(n)))
}

// SetStartTime rebases both channels and the resampler clock.
func (s *Sensor) SetStartTime(t time.Duration) {
	s.output.SetStartTime(t)
	s.input.SetStartTime(t)
	s.processor.SetStartTime(t)
}

// SetSampleRate changes the output rate and reconfigures the resampler.
func (s *Sensor) SetSampleRate(rate float64) {
	s.resampler.SetOutputSampleRate(rate)
	s.resampler.ReInit()
	s.output.SetSampleRate(rate)
}

// SampleRate returns the output rate.
func (s *Sensor) SampleRate() float64 { return s.output.SampleRate() }

// SetName renames the sensor and both channels.
func (s *Sensor) SetName(name string) {
	for _, c := range []*dsp.Channel[float64]{s.input, s.output} {
		info := c.Info()
		info.Name = name
		c.SetInfo(info)
	}
}

func (s *Sensor) ID() uuid.UUID { return s.id }
func (s *Sensor) Name() string { return s.output.Name() }
func (s *Sensor) Input() *dsp.Channel[float64] { return s.input }
func (s *Sensor) Output() *dsp.Channel[float64] { return s.output }
func (s *Sensor) Resampler() *dsp.Resampler[float64] { return s.resampler }
func (s *Sensor) HardwareChannel() int { return s.hardwareChannel }
func (s *Sensor) SetHardwareChannel(ch int) { s.hardwareChannel = ch }
func (s *Sensor) IsEnabled() bool { return s.enabled }
func (s *Sensor) SetEnabled(enabled bool) { s.enabled = enabled }
func (s *Sensor) RealSampleRate() float64 { return s.realSampleRate }
func (s *Sensor) Latency() time.Duration { return s.latency }
func (s *Sensor) SetLatency(latency time.Duration) { s.latency = latency }
func (s *Sensor) SetExpectedJitter(jitter time.Duration) { s.expectedJitter = jitter }
func (s *Sensor) ContactQuality() ContactQuality { return s.contact }
func (s *Sensor) SetContactQuality(q ContactQuality) { s.contact = q }
func (s *Sensor) HasContactQuality() bool { return s.contact != ContactNotAvailable }
func (s *Sensor) NumLostSamples() uint64 { return s.lostSamples.Load() }

// ExpectedJitter returns the configured jitter or, when unset, the largest
// recent burst scaled by the sample rate.
func (s *Sensor) ExpectedJitter() time.Duration {
	if s.expectedJitter != 0 {
		return s.expectedJitter
	}
	return time.Duration(float64(s.MaxBurstSize()) * s.SampleRate() * float64(time.Second))
}

// LastBurstSize returns the number of samples drained in the last tick.
func (s *Sensor) LastBurstSize() int {
	return int(s.bursts[len(s.bursts)-1])
}

// MaxBurstSize returns the largest burst within the window.
func (s *Sensor) MaxBurstSize() int {
	return int(floats.Max(s.bursts))
}

// AverageBurstSize returns the mean burst size, ignoring ticks without data.
func (s *Sensor) AverageBurstSize() float64 {
	nonZero := make([]float64, 0, len(s.bursts))
	for _, b := range s.bursts {
		if b != 0 {
			nonZero = append(nonZero, b)
		}
	}
	if len(nonZero) == 0 {
		return 0
	}
	return stat.Mean(nonZero, nil)
}

// Stats is a point in time view used for metrics and summaries.
type Stats struct {
	Name                string
	Latency             time.Duration
	RealSampleRate      float64
	QueueLength         int
	Drift               time.Duration
	DriftSamplesAdded   uint64
	DriftSamplesRemoved uint64
	LostSamples         uint64
	InputSamples        uint64
	OutputSamples       uint64
	Active              bool
}

// Stats returns the current counters. Call from the tick goroutine.
func (s *Sensor) Stats() Stats {
	var drift time.Duration
	if r := s.SampleRate(); r > 0 {
		drift = time.Duration(float64(s.lastDrift) / r * float64(time.Second))
	}
	return Stats{
		Name:                s.Name(),
		Latency:             s.latency,
		RealSampleRate:      s.realSampleRate,
		QueueLength:         s.QueueLength(),
		Drift:               drift,
		DriftSamplesAdded:   s.driftSamplesAdded,
		DriftSamplesRemoved: s.driftSamplesRemoved,
		LostSamples:         s.NumLostSamples(),
		InputSamples:        s.input.SampleCounter(),
		OutputSamples:       s.output.SampleCounter(),
		Active:              s.input.IsActive(),
	}
}

// Package driver provides a simulated acquisition driver. A producer
// goroutine emits sample frames with a skewed clock into a byte ring, and a
// consumer goroutine decodes them into the sensor inboxes, the way a real
// hardware driver thread feeds the engine.
package driver

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/ringbuffer"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tphakala/biosync/internal/conf"
	"github.com/tphakala/biosync/internal/device"
	"github.com/tphakala/biosync/internal/errors"
	"github.com/tphakala/biosync/internal/logger"
)

const (
	// DefaultRingSize is the byte capacity of the frame ring.
	DefaultRingSize = 64 * 1024

	// DefaultPollInterval is how often the consumer drains the ring.
	DefaultPollInterval = 5 * time.Millisecond

	// DefaultBatteryLife is the simulated runtime from full to empty.
	DefaultBatteryLife = 8 * time.Hour
)

// Option configures a Simulator.
type Option func(*Simulator)

// WithRingSize sets the frame ring capacity in bytes, rounded down to whole frames.
func WithRingSize(n int) Option {
	return func(s *Simulator) {
		if n >= FrameSize {
			s.ringSize = n / FrameSize * FrameSize
		}
	}
}

// WithPollInterval sets how often the consumer drains the ring.
func WithPollInterval(d time.Duration) Option {
	return func(s *Simulator) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithSeed makes the waveform noise and frame loss reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Simulator) { s.seed = seed }
}

// WithBatteryLife sets the simulated runtime of a full battery.
func WithBatteryLife(d time.Duration) Option {
	return func(s *Simulator) {
		if d > 0 {
			s.batteryLife = d
		}
	}
}

// Simulator drives one device.
type Simulator struct {
	device  *device.Device
	session uuid.UUID

	burstInterval time.Duration
	pollInterval  time.Duration
	batteryLife   time.Duration
	ringSize      int
	seed          uint64

	gen     *Generator
	decoder *Decoder
	ring    *ringbuffer.RingBuffer
	readBuf []byte

	overflowLog *rate.Limiter
	corruptLog  *rate.Limiter

	framesSent     atomic.Uint64
	framesOverflow atomic.Uint64
}

// New creates a simulator for dev from its configuration. Sensor hardware
// channels must match the configuration order, as device.FromSettings does.
func New(dev *device.Device, dc *conf.DeviceConfig, opts ...Option) (*Simulator, error) {
	wave, err := ParseWaveform(dc.Waveform)
	if err != nil {
		return nil, err
	}
	if dc.LossRate < 0 || dc.LossRate >= 1 {
		return nil, errors.Newf("loss rate must be in [0, 1), got %g", dc.LossRate).
			Component("driver").
			Category(errors.CategoryValidation).
			Context("device", dc.Name).
			Build()
	}

	s := &Simulator{
		device:        dev,
		session:       uuid.New(),
		burstInterval: dc.BurstInterval,
		pollInterval:  DefaultPollInterval,
		batteryLife:   DefaultBatteryLife,
		ringSize:      DefaultRingSize / FrameSize * FrameSize,
		seed:          uint64(time.Now().UnixNano()),
		overflowLog:   rate.NewLimiter(rate.Every(5*time.Second), 1),
		corruptLog:    rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
	if s.burstInterval <= 0 {
		s.burstInterval = conf.DefaultBurstInterval
	}
	for _, opt := range opts {
		opt(s)
	}

	s.gen = NewGenerator(GeneratorConfig{
		Sensors:      dc.Sensors,
		ClockSkewPPM: dc.ClockSkewPPM,
		Waveform:     wave,
		Frequency:    dc.Frequency,
		LossRate:     dc.LossRate,
		Seed:         s.seed,
	})
	s.decoder = NewDecoder(dev.OutputSensors())
	s.ring = ringbuffer.New(s.ringSize)
	s.readBuf = make([]byte, s.ringSize)

	return s, nil
}

// Session identifies this simulator run in logs.
func (s *Simulator) Session() uuid.UUID { return s.session }

// Run produces and decodes frames until ctx is done. Frames still in the
// ring when the producer stops are decoded before Run returns.
func (s *Simulator) Run(ctx context.Context) error {
	log := GetLogger().With(
		logger.String("device", s.device.Name()),
		logger.String("session", s.session.String()))
	log.Info("simulated driver started",
		logger.Duration("burst_interval", s.burstInterval),
		logger.Int("ring_bytes", s.ringSize))

	producerDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(producerDone)
		return s.produce(gctx)
	})
	g.Go(func() error {
		return s.consume(gctx, producerDone)
	})

	err := g.Wait()
	st := s.Stats()
	log.Info("simulated driver stopped",
		logger.Uint64("frames_sent", st.FramesSent),
		logger.Uint64("frames_dropped", st.FramesDropped),
		logger.Uint64("frames_overflow", st.FramesOverflow),
		logger.Uint64("lost_samples", st.LostSamples))
	return err
}

func (s *Simulator) produce(ctx context.Context) error {
	ticker := time.NewTicker(s.burstInterval)
	defer ticker.Stop()

	start := time.Now()
	var buf []byte
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			uptime := now.Sub(start)
			buf = s.gen.Frames(buf[:0], uptime)
			if err := s.write(buf); err != nil {
				return err
			}
			s.device.SetBatteryChargeLevel(s.batteryLevel(uptime))
		}
	}
}

// write stores whole frames only; frames that do not fit are lost and show
// up as sequence gaps on the consumer side.
func (s *Simulator) write(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	n := min(len(buf), s.ring.Free()/FrameSize*FrameSize)
	if n > 0 {
		written, err := s.ring.Write(buf[:n])
		if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
			return errors.New(err).
				Component("driver").
				Category(errors.CategoryBuffer).
				Context("device", s.device.Name()).
				Build()
		}
		n = written / FrameSize * FrameSize
		s.framesSent.Add(uint64(n / FrameSize))
	}

	if overflow := (len(buf) - n) / FrameSize; overflow > 0 {
		s.framesOverflow.Add(uint64(overflow))
		if s.overflowLog.Allow() {
			GetLogger().Warn("frame ring full, dropping frames",
				logger.String("device", s.device.Name()),
				logger.Int("frames", overflow),
				logger.Int("capacity", s.ring.Capacity()))
		}
	}
	return nil
}

func (s *Simulator) consume(ctx context.Context, producerDone <-chan struct{}) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-producerDone
			return s.drain()
		case <-ticker.C:
			if err := s.drain(); err != nil {
				return err
			}
		}
	}
}

func (s *Simulator) drain() error {
	n := s.ring.Length() / FrameSize * FrameSize
	if n == 0 {
		return nil
	}

	got, err := s.ring.Read(s.readBuf[:n])
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return errors.New(err).
			Component("driver").
			Category(errors.CategoryBuffer).
			Context("device", s.device.Name()).
			Build()
	}

	if _, err := s.decoder.Decode(s.readBuf[:got]); err != nil && s.corruptLog.Allow() {
		GetLogger().Warn("corrupt frames skipped",
			logger.String("device", s.device.Name()),
			logger.Uint64("corrupt", s.decoder.Corrupt()),
			logger.Error(err))
	}
	return nil
}

func (s *Simulator) batteryLevel(uptime time.Duration) float64 {
	return max(1-uptime.Seconds()/s.batteryLife.Seconds(), 0)
}

// Stats are the simulator counters. Safe for concurrent use.
type Stats struct {
	FramesSent     uint64 // frames written to the ring
	FramesDropped  uint64 // frames dropped on purpose
	FramesOverflow uint64 // frames that did not fit the ring
	FramesDecoded  uint64
	LostSamples    uint64 // sequence gaps reported to sensors
	FramesCorrupt  uint64
}

func (s *Simulator) Stats() Stats {
	return Stats{
		FramesSent:     s.framesSent.Load(),
		FramesDropped:  s.gen.Dropped(),
		FramesOverflow: s.framesOverflow.Load(),
		FramesDecoded:  s.decoder.Decoded(),
		LostSamples:    s.decoder.Lost(),
		FramesCorrupt:  s.decoder.Corrupt(),
	}
}

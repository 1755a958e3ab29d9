package driver

import (
	"math"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tphakala/biosync/internal/conf"
	"github.com/tphakala/biosync/internal/errors"
)

// Waveform selects the simulated signal shape.
type Waveform int

const (
	WaveSine Waveform = iota
	WaveSquare
	WaveNoise
)

func (w Waveform) String() string {
	switch w {
	case WaveSquare:
		return conf.WaveformSquare
	case WaveNoise:
		return conf.WaveformNoise
	default:
		return conf.WaveformSine
	}
}

// ParseWaveform maps a configuration value to a Waveform. Empty selects sine.
func ParseWaveform(s string) (Waveform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", conf.WaveformSine:
		return WaveSine, nil
	case conf.WaveformSquare:
		return WaveSquare, nil
	case conf.WaveformNoise:
		return WaveNoise, nil
	default:
		return WaveSine, errors.Newf("unknown waveform %q", s).
			Component("driver").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// GeneratorConfig describes the simulated hardware.
type GeneratorConfig struct {
	Sensors      []conf.SensorConfig // indexed by hardware channel
	ClockSkewPPM float64
	Waveform     Waveform
	Frequency    float64
	LossRate     float64
	Seed         uint64
}

type channelState struct {
	rate     float64
	mid      float64
	amp      float64
	produced uint64 // samples generated, dropped ones included
	seq      uint32
	noise    distuv.Normal
}

// Generator produces the frames a device with a skewed sample clock emits.
// It is not safe for concurrent use.
type Generator struct {
	channels []channelState
	skew     float64
	wave     Waveform
	freq     float64
	lossRate float64
	loss     distuv.Bernoulli

	dropped atomic.Uint64
}

// NewGenerator creates a generator starting at driver time zero.
func NewGenerator(cfg GeneratorConfig) *Generator {
	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)

	g := &Generator{
		channels: make([]channelState, len(cfg.Sensors)),
		skew:     1 + cfg.ClockSkewPPM*1e-6,
		wave:     cfg.Waveform,
		freq:     cfg.Frequency,
		lossRate: cfg.LossRate,
		loss:     distuv.Bernoulli{P: cfg.LossRate, Src: src},
	}

	for i, sc := range cfg.Sensors {
		mid := (sc.Min + sc.Max) / 2
		amp := (sc.Max - sc.Min) / 2
		if amp <= 0 {
			amp = 1
		}
		g.channels[i] = channelState{
			rate:  sc.SampleRate,
			mid:   mid,
			amp:   amp,
			noise: distuv.Normal{Mu: mid, Sigma: amp / 3, Src: src},
		}
	}
	return g
}

// Frames appends every frame that is due at driver time t. Dropped frames
// still consume a sequence number.
func (g *Generator) Frames(buf []byte, t time.Duration) []byte {
	for i := range g.channels {
		c := &g.channels[i]
		if c.rate <= 0 {
			continue
		}

		due := uint64(t.Seconds() * c.rate * g.skew)
		for ; c.produced < due; c.produced++ {
			seq := c.seq
			c.seq++

			if g.lossRate > 0 && g.loss.Rand() == 1 {
				g.dropped.Add(1)
				continue
			}

			ts := float64(c.produced) / c.rate
			buf = AppendFrame(buf, Frame{Seq: seq, Sensor: uint16(i), Value: g.value(c, ts)})
		}
	}
	return buf
}

func (g *Generator) value(c *channelState, ts float64) float64 {
	switch g.wave {
	case WaveSquare:
		if math.Mod(ts*g.freq, 1) < 0.5 {
			return c.mid + c.amp
		}
		return c.mid - c.amp
	case WaveNoise:
		return c.noise.Rand()
	default:
		return c.mid + c.amp*math.Sin(2*math.Pi*g.freq*ts)
	}
}

// Dropped returns the number of frames dropped on purpose.
func (g *Generator) Dropped() uint64 { return g.dropped.Load() }

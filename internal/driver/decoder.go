package driver

import (
	"sync/atomic"

	"github.com/tphakala/biosync/internal/errors"
	"github.com/tphakala/biosync/internal/logger"
	"github.com/tphakala/biosync/internal/sensor"
)

// maxGap separates lost frames from a restarted sequence counter.
const maxGap = 1 << 20

// Decoder turns frames into sensor inbox samples and reports sequence gaps as
// lost samples. It is used by a single goroutine; its counters may be read
// from any goroutine.
type Decoder struct {
	sensors []*sensor.Sensor // indexed by hardware channel
	next    []uint32
	seen    []bool

	decoded atomic.Uint64
	lost    atomic.Uint64
	corrupt atomic.Uint64
}

// NewDecoder routes frames to sensors by their hardware channel.
func NewDecoder(sensors []*sensor.Sensor) *Decoder {
	n := 0
	for _, s := range sensors {
		n = max(n, s.HardwareChannel()+1)
	}

	d := &Decoder{
		sensors: make([]*sensor.Sensor, n),
		next:    make([]uint32, n),
		seen:    make([]bool, n),
	}
	for _, s := range sensors {
		if ch := s.HardwareChannel(); ch >= 0 {
			d.sensors[ch] = s
		}
	}
	return d
}

// Decode consumes every complete frame in b and returns the number of bytes
// used. Frames for unknown channels are skipped; the first such frame is
// reported as ErrFrameCorrupt after the rest of b has been decoded.
func (d *Decoder) Decode(b []byte) (int, error) {
	var firstErr error
	used := 0

	for len(b)-used >= FrameSize {
		f, err := DecodeFrame(b[used : used+FrameSize])
		used += FrameSize
		if err != nil {
			firstErr = firstError(firstErr, err)
			continue
		}

		if int(f.Sensor) >= len(d.sensors) || d.sensors[f.Sensor] == nil {
			d.corrupt.Add(1)
			firstErr = firstError(firstErr, errors.New(ErrFrameCorrupt).
				Component("driver").
				Category(errors.CategoryAcquisition).
				Context("channel", int(f.Sensor)).
				Build())
			continue
		}

		d.deliver(f)
	}

	return used, firstErr
}

func (d *Decoder) deliver(f Frame) {
	ch := f.Sensor
	s := d.sensors[ch]

	if d.seen[ch] && f.Seq != d.next[ch] {
		gap := f.Seq - d.next[ch]
		if gap < maxGap {
			s.HandleLostSamples(int(gap))
			d.lost.Add(uint64(gap))
		} else {
			GetLogger().Debug("sequence restarted",
				logger.String("sensor", s.Name()),
				logger.Uint64("expected", uint64(d.next[ch])),
				logger.Uint64("received", uint64(f.Seq)))
		}
	}

	s.AddQueuedSample(f.Value)
	d.decoded.Add(1)
	d.next[ch] = f.Seq + 1
	d.seen[ch] = true
}

// Reset forgets sequence state, e.g. after the hardware reconnects.
func (d *Decoder) Reset() {
	clear(d.next)
	clear(d.seen)
}

func (d *Decoder) Decoded() uint64 { return d.decoded.Load() }
func (d *Decoder) Lost() uint64 { return d.lost.Load() }
func (d *Decoder) Corrupt() uint64 { return d.corrupt.Load() }

func firstError(first, err error) error {
	if first != nil {
		return first
	}
	return err
}

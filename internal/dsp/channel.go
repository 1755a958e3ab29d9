// channel.go: time indexed ring buffer of samples with a monotonic sample counter
package dsp

import (
	"math"
	"time"

	"github.com/tphakala/biosync/internal/logger"
)

const (
	// DefaultBufferSize is the capacity used when a channel is created with a non-positive size.
	DefaultBufferSize = 2048

	// activityTimeout marks a channel inactive when no sample was added for this long.
	activityTimeout = 2 * time.Second

	// inactiveSince is the initial time-since-last-add; fresh channels report inactive.
	inactiveSince = 100 * time.Second

	// indexEpsilon absorbs float error when converting times to sample indices.
	indexEpsilon = 1e-5
)

// Sample constrains the value types the resampler can average and interpolate.
type Sample interface {
	~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// ChannelInfo is the descriptive metadata of a channel.
type ChannelInfo struct {
	Name  string
	Unit  string
	Color string
	Min   float64
	Max   float64
}

// Buffer is the value-type independent view of a Channel. Readers, clocks and
// sensors only need counters and timing, never the sample values.
type Buffer interface {
	Info() ChannelInfo
	SampleRate() float64
	IsIndependent() bool

	Capacity() int
	NumSamples() int
	NumNewSamples() int
	SampleCounter() uint64
	IsEmpty() bool
	MinSampleIndex() (uint64, bool)
	MaxSampleIndex() (uint64, bool)
	IsValidSample(index uint64) bool

	StartTime() time.Duration
	ElapsedTime() time.Duration
	Duration() time.Duration
	SampleTime(index uint64) time.Duration
	LastSampleTime() time.Duration
	FindIndexByTime(t time.Duration, roundToClosest bool) (uint64, bool)
	Latency() time.Duration
	IsActive() bool

	BeginAddSamples()
	RemoveLastSample() error
	Reset()
}

// Channel is a fixed capacity ring buffer. Sample i is stamped at
// startTime + (i+1)/sampleRate; no sample exists at startTime itself.
// Valid indices are [sampleCounter-numSamples, sampleCounter-1].
//
// A Channel is not safe for concurrent use. It is owned by a single update loop.
type Channel[T any] struct {
	info        ChannelInfo
	sampleRate  float64
	independent bool

	samples       []T
	sampleCounter uint64 // total samples added since the last Clear or Reset
	numSamples    int    // samples currently held, at most len(samples)
	numNewSamples int    // samples added since BeginAddSamples

	startTime    time.Duration
	elapsedTime  time.Duration
	latency      time.Duration
	sinceLastAdd time.Duration
}

var _ Buffer = (*Channel[float64])(nil)

// NewChannel creates a channel holding up to capacity samples at sampleRate Hz.
// A sample rate of 0 marks an irregular, event driven channel.
func NewChannel[T any](capacity int, sampleRate float64) *Channel[T] {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &Channel[T]{
		samples:      make([]T, capacity),
		sampleRate:   sampleRate,
		sinceLastAdd: inactiveSince,
	}
}

// Reset clears samples, counters and timing. Rate, capacity and metadata are kept.
func (c *Channel[T]) Reset() {
	c.Clear()
	c.startTime = 0
	c.elapsedTime = 0
	c.latency = 0
}

// Clear drops all samples and counters but keeps the time base.
func (c *Channel[T]) Clear() {
	clear(c.samples)
	c.sampleCounter = 0
	c.numSamples = 0
	c.numNewSamples = 0
	c.sinceLastAdd = inactiveSince
}

// SetBufferSize reallocates the ring and clears the channel.
func (c *Channel[T]) SetBufferSize(capacity int) {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	if capacity != len(c.samples) {
		GetLogger().Debug("resizing channel buffer",
			logger.String("channel", c.info.Name),
			logger.Int("from", len(c.samples)),
			logger.Int("to", capacity))
		c.samples = make([]T, capacity)
	}
	c.Clear()
}

// BeginAddSamples starts a new generation; NumNewSamples counts from zero again.
func (c *Channel[T]) BeginAddSamples() {
	c.numNewSamples = 0
}

// AddSample appends v, overwriting the oldest sample once the ring is full.
func (c *Channel[T]) AddSample(v T) {
	c.samples[c.sampleCounter%uint64(len(c.samples))] = v
	c.sampleCounter++
	c.numNewSamples++
	if c.numSamples < len(c.samples) {
		c.numSamples++
	}
	c.sinceLastAdd = 0
}

// RemoveLastSample drops the newest sample. Only drift correction uses it.
func (c *Channel[T]) RemoveLastSample() error {
	if c.numSamples == 0 || c.sampleCounter == 0 {
		return ErrEmptyChannel
	}

	c.numSamples--
	c.sampleCounter--
	if c.numNewSamples > 0 {
		c.numNewSamples--
	}
	return nil
}

// Sample returns the sample at index, or the zero value if index is not valid.
func (c *Channel[T]) Sample(index uint64) T {
	if !c.IsValidSample(index) {
		var zero T
		return zero
	}
	return c.samples[index%uint64(len(c.samples))]
}

// LastSample returns the newest sample, or the zero value for an empty channel.
func (c *Channel[T]) LastSample() T {
	if c.sampleCounter == 0 {
		var zero T
		return zero
	}
	return c.Sample(c.sampleCounter - 1)
}

func (c *Channel[T]) IsValidSample(index uint64) bool {
	if c.sampleCounter == 0 || c.numSamples == 0 {
		return false
	}
	return index >= c.sampleCounter-uint64(c.numSamples) && index <= c.sampleCounter-1
}

// MinSampleIndex returns the oldest valid index; false when the channel is empty.
func (c *Channel[T]) MinSampleIndex() (uint64, bool) {
	if c.sampleCounter == 0 || c.numSamples == 0 {
		return 0, false
	}
	return c.sampleCounter - uint64(c.numSamples), true
}

// MaxSampleIndex returns the newest valid index; false when the channel is empty.
func (c *Channel[T]) MaxSampleIndex() (uint64, bool) {
	if c.sampleCounter == 0 || c.numSamples == 0 {
		return 0, false
	}
	return c.sampleCounter - 1, true
}

// Duration is the time covered by all samples ever added, 0 for irregular channels.
func (c *Channel[T]) Duration() time.Duration {
	if c.sampleRate == 0 {
		return 0
	}
	return seconds(float64(c.sampleCounter) / c.sampleRate)
}

// SampleTime returns the timestamp of the sample at index.
func (c *Channel[T]) SampleTime(index uint64) time.Duration {
	if c.sampleRate == 0 {
		return 0
	}
	return c.startTime + seconds(float64(index+1)/c.sampleRate)
}

// LastSampleTime returns the timestamp of the newest sample, startTime when empty.
func (c *Channel[T]) LastSampleTime() time.Duration {
	if c.sampleRate == 0 {
		return 0
	}
	return c.startTime + seconds(float64(c.sampleCounter)/c.sampleRate)
}

// FindIndexByTime maps an absolute time to a sample index, truncating or rounding
// to the closest sample. It fails for times before startTime and for indices
// outside [0, sampleCounter]. The returned index may equal sampleCounter, which is
// not a valid sample yet; callers check IsValidSample.
func (c *Channel[T]) FindIndexByTime(t time.Duration, roundToClosest bool) (uint64, bool) {
	if t < c.startTime {
		return 0, false
	}
	return c.indexFromFloat((t-c.startTime).Seconds()*c.sampleRate-1, roundToClosest)
}

// FindIndexByTimeClamped maps a time in seconds, which may be negative, to a
// sample index clamped to the valid range. It fails only for empty channels.
//
// Deprecated: Use FindIndexByTime. This variant remains for callers that rely on
// clamping at the buffer edges instead of failing.
func (c *Channel[T]) FindIndexByTimeClamped(t float64, roundToClosest bool) (uint64, bool) {
	minIndex, ok := c.MinSampleIndex()
	if !ok {
		return 0, false
	}
	maxIndex, _ := c.MaxSampleIndex()

	floatIndex := (t-c.startTime.Seconds())*c.sampleRate - 1
	floatIndex = math.Max(float64(minIndex), math.Min(float64(maxIndex), floatIndex))

	return c.indexFromFloat(floatIndex, roundToClosest)
}

func (c *Channel[T]) indexFromFloat(floatIndex float64, roundToClosest bool) (uint64, bool) {
	floatIndex += indexEpsilon
	if floatIndex < 0 || floatIndex > float64(c.sampleCounter)+indexEpsilon {
		return 0, false
	}
	if roundToClosest {
		floatIndex += 0.5
	}
	index := uint64(floatIndex)
	if index > c.sampleCounter {
		index = c.sampleCounter
	}
	return index, true
}

// UpdateLatency folds |elapsed - lastSampleTime| into the smoothed latency with
// weight 5:1. The first measurement seeds the average.
func (c *Channel[T]) UpdateLatency() {
	if c.IsEmpty() {
		return
	}

	current := c.elapsedTime - c.LastSampleTime()
	if current < 0 {
		current = -current
	}

	if c.latency == 0 {
		c.latency = current
		return
	}
	c.latency = (c.latency*5 + current) / 6
}

// UpdateActivity advances the inactivity timer by delta.
func (c *Channel[T]) UpdateActivity(delta time.Duration) {
	c.sinceLastAdd += delta
}

// IsActive reports whether a sample was added within the last two seconds.
func (c *Channel[T]) IsActive() bool {
	return c.sinceLastAdd <= activityTimeout
}

func (c *Channel[T]) Info() ChannelInfo { return c.info }
func (c *Channel[T]) SetInfo(info ChannelInfo) { c.info = info }
func (c *Channel[T]) Name() string { return c.info.Name }
func (c *Channel[T]) SampleRate() float64 { return c.sampleRate }
func (c *Channel[T]) SetSampleRate(rate float64) { c.sampleRate = rate }
func (c *Channel[T]) IsIndependent() bool { return c.independent }
func (c *Channel[T]) SetIndependent(v bool) { c.independent = v }

func (c *Channel[T]) Capacity() int { return len(c.samples) }
func (c *Channel[T]) NumSamples() int { return c.numSamples }
func (c *Channel[T]) NumNewSamples() int { return c.numNewSamples }
func (c *Channel[T]) SampleCounter() uint64 { return c.sampleCounter }
func (c *Channel[T]) IsEmpty() bool { return c.numSamples == 0 }

func (c *Channel[T]) StartTime() time.Duration { return c.startTime }
func (c *Channel[T]) SetStartTime(t time.Duration) { c.startTime = t }
func (c *Channel[T]) ElapsedTime() time.Duration { return c.elapsedTime }
func (c *Channel[T]) SetElapsedTime(t time.Duration) { c.elapsedTime = t }
func (c *Channel[T]) Latency() time.Duration { return c.latency }

// seconds converts fractional seconds to a Duration, rounded to the nanosecond.
func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

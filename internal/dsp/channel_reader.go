// channel_reader.go: read cursor tracking new samples of a channel
package dsp

import (
	"time"

	"github.com/tphakala/biosync/internal/logger"
)

// ChangeType identifies an input change detected by ChannelReader.Update.
type ChangeType int

const (
	ChangeReference  ChangeType = iota // a different channel was attached
	ChangeSampleRate                   // the channel sample rate changed
	ChangeReset                        // the sample counter went backwards
	ChangeAny                          // any of the above
	numChangeTypes
)

// ChannelReader is a cursor over a Buffer. It keeps its own position as a
// sample counter value, so the number of new samples is independent of the
// producer's generation bookkeeping.
type ChannelReader struct {
	channel Buffer

	started        bool
	startTime      time.Duration
	lastSampleRate float64
	position       uint64 // counter value of the oldest unread sample
	overruns       uint64 // unread samples lost to ring buffer overwrites

	referenceChanged bool
	changes          [numChangeTypes]bool
}

// NewChannelReader creates a reader for channel. A nil channel is allowed.
func NewChannelReader(channel Buffer) *ChannelReader {
	r := &ChannelReader{channel: channel}
	r.Reset()
	if channel != nil {
		r.lastSampleRate = channel.SampleRate()
	}
	return r
}

// Channel returns the attached channel.
func (r *ChannelReader) Channel() Buffer {
	return r.channel
}

// SetChannel attaches a new channel and flags a reference change on the next Update.
func (r *ChannelReader) SetChannel(channel Buffer) {
	if r.channel == channel {
		return
	}
	r.channel = channel
	r.Reset()
	r.referenceChanged = true
}

// Reset returns the reader to its unstarted state.
func (r *ChannelReader) Reset() {
	r.started = false
	r.startTime = 0
	r.lastSampleRate = 0
	r.position = 0
	r.overruns = 0
	r.referenceChanged = false
	clear(r.changes[:])
}

// Start begins reading at time t. Samples stamped at or before t are skipped
// once the channel reaches t. A pending reference change is consumed.
func (r *ChannelReader) Start(t time.Duration) {
	r.resetCounters()
	r.startTime = t
	r.referenceChanged = false
}

func (r *ChannelReader) resetCounters() {
	r.started = false
	r.overruns = 0
	if r.channel == nil {
		r.lastSampleRate = 0
		r.position = 0
		r.startTime = 0
		return
	}
	r.lastSampleRate = r.channel.SampleRate()
	r.position = r.channel.SampleCounter()
	r.startTime = r.channel.LastSampleTime()
}

// Update detects input changes and, until started, waits for the channel to
// reach the start time.
func (r *ChannelReader) Update() {
	r.detectChanges()

	if r.channel == nil {
		return
	}

	counter := r.channel.SampleCounter()

	if !r.started {
		if rate := r.channel.SampleRate(); rate > 0 {
			newest := r.channel.LastSampleTime()
			if newest < r.startTime {
				return
			}
			n := min(uint64((newest-r.startTime).Seconds()*rate+indexEpsilon), counter)
			r.position = counter - n
		} else {
			// irregular channels have no timestamps to align to
			r.position = counter
		}
		r.started = true
	}

	// unread samples that were overwritten are gone
	if oldest, ok := r.channel.MinSampleIndex(); ok && r.position < oldest {
		r.overruns += oldest - r.position
		r.position = oldest
	}
}

func (r *ChannelReader) detectChanges() {
	clear(r.changes[:])

	if r.channel == nil {
		if r.referenceChanged {
			r.Reset()
			r.changes[ChangeReference] = true
			r.changes[ChangeAny] = true
		}
		return
	}

	changed := false
	if r.referenceChanged {
		r.changes[ChangeReference] = true
		changed = true
	}
	if rate := r.channel.SampleRate(); rate != r.lastSampleRate {
		r.changes[ChangeSampleRate] = true
		changed = true
	}
	if r.channel.SampleCounter() < r.position {
		r.changes[ChangeReset] = true
		changed = true
	}

	if !changed {
		return
	}

	GetLogger().Debug("restarting channel reader",
		logger.String("channel", r.channel.Info().Name),
		logger.Bool("reference", r.changes[ChangeReference]),
		logger.Bool("sample_rate", r.changes[ChangeSampleRate]),
		logger.Bool("reset", r.changes[ChangeReset]))

	r.changes[ChangeAny] = true
	r.position = r.channel.SampleCounter()
	r.lastSampleRate = r.channel.SampleRate()
	r.started = false
	r.referenceChanged = false
}

// Changed reports whether the last Update detected a change of the given type.
func (r *ChannelReader) Changed(kind ChangeType) bool {
	if kind < 0 || kind >= numChangeTypes {
		return false
	}
	return r.changes[kind]
}

// HasStarted reports whether the reader reached its start time.
func (r *ChannelReader) HasStarted() bool {
	return r.started
}

// NumNewSamples returns the number of unread samples.
func (r *ChannelReader) NumNewSamples() int {
	if r.channel == nil || !r.started {
		return 0
	}
	counter := r.channel.SampleCounter()
	if counter <= r.position {
		return 0
	}
	return int(counter - r.position)
}

// Overruns returns the number of unread samples lost to buffer overwrites.
func (r *ChannelReader) Overruns() uint64 {
	return r.overruns
}

// Advance marks the oldest n unread samples as read.
func (r *ChannelReader) Advance(n int) {
	if n <= 0 {
		return
	}
	r.position += uint64(min(n, r.NumNewSamples()))
}

// Flush marks every sample as read.
func (r *ChannelReader) Flush() {
	if r.channel == nil || !r.started {
		return
	}
	r.position = max(r.position, r.channel.SampleCounter())
}

// Rewind moves the cursor back by up to n samples after the channel dropped its
// newest samples, so the shrinking counter is not mistaken for a reset.
func (r *ChannelReader) Rewind(n int) {
	if r.channel == nil || n <= 0 {
		return
	}
	counter := r.channel.SampleCounter()
	if r.position <= counter {
		return
	}
	r.position -= min(uint64(n), r.position-counter)
}

// SampleIndex returns the channel index of the i-th unread sample, 0 being the oldest.
func (r *ChannelReader) SampleIndex(i int) (uint64, bool) {
	if i < 0 || i >= r.NumNewSamples() {
		return 0, false
	}
	return r.position + uint64(i), true
}

// PopOldestSample returns the index of the oldest unread sample and marks it read.
func (r *ChannelReader) PopOldestSample() (uint64, bool) {
	index, ok := r.SampleIndex(0)
	if !ok {
		return 0, false
	}
	r.position++
	return index, true
}

// OldestSampleIndex returns the oldest unread index, or the newest index when
// everything was read.
func (r *ChannelReader) OldestSampleIndex() (uint64, bool) {
	if index, ok := r.SampleIndex(0); ok {
		return index, true
	}
	if r.channel == nil {
		return 0, false
	}
	return r.channel.MaxSampleIndex()
}

// OldestSampleTime returns the timestamp of OldestSampleIndex, 0 if there is none.
func (r *ChannelReader) OldestSampleTime() time.Duration {
	index, ok := r.OldestSampleIndex()
	if !ok {
		return 0
	}
	return r.channel.SampleTime(index)
}

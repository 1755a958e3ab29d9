// clock.go: output clock driving the resampler
package dsp

import (
	"math"
	"time"
)

// ClockMode selects what the clock generator follows.
type ClockMode int

const (
	// ClockIndependent ticks with engine time.
	ClockIndependent ClockMode = iota
	// ClockSynced ticks up to the reference channel's newest sample.
	ClockSynced
	// ClockSyncedAhead runs one output period ahead of the reference channel.
	ClockSyncedAhead
)

func (m ClockMode) String() string {
	switch m {
	case ClockIndependent:
		return "independent"
	case ClockSynced:
		return "synced"
	case ClockSyncedAhead:
		return "synced-ahead"
	default:
		return "unknown"
	}
}

// ClockGenerator produces ticks at a fixed frequency. Tick i is stamped at
// startTime + (i+1)/frequency, mirroring channel sample timestamps. Ticks
// become pending once their time is reached and stay pending until popped.
type ClockGenerator struct {
	mode      ClockMode
	frequency float64
	reference Buffer
	startTime time.Duration
	running   bool

	tickCounter uint64 // ticks generated since start
	numNewTicks uint64 // generated ticks not yet popped
}

func (g *ClockGenerator) SetMode(mode ClockMode) { g.mode = mode }
func (g *ClockGenerator) Mode() ClockMode { return g.mode }
func (g *ClockGenerator) SetFrequency(hz float64) { g.frequency = hz }
func (g *ClockGenerator) Frequency() float64 { return g.frequency }
func (g *ClockGenerator) SetReferenceChannel(ref Buffer) { g.reference = ref }
func (g *ClockGenerator) Start() { g.running = true }
func (g *ClockGenerator) Stop() { g.running = false }
func (g *ClockGenerator) IsRunning() bool { return g.running }
func (g *ClockGenerator) StartTime() time.Duration { return g.startTime }

// SetStartTime rebases the clock; tick numbering restarts at zero.
func (g *ClockGenerator) SetStartTime(t time.Duration) {
	g.startTime = t
	g.tickCounter = 0
	g.numNewTicks = 0
}

// Rebase moves the time base to t without renumbering ticks. Used when the
// reference channel is rebased by the same amount.
func (g *ClockGenerator) Rebase(t time.Duration) {
	g.startTime = t
}

// Reset drops all ticks and the time base. Mode, frequency and reference are kept.
func (g *ClockGenerator) Reset() {
	g.SetStartTime(0)
}

// Update generates the ticks whose time has been reached.
func (g *ClockGenerator) Update(elapsed, _ time.Duration) {
	if !g.running || g.frequency <= 0 {
		return
	}

	var horizon time.Duration
	switch g.mode {
	case ClockIndependent:
		horizon = elapsed
	case ClockSynced, ClockSyncedAhead:
		if g.reference == nil || g.reference.SampleCounter() == 0 {
			return
		}
		horizon = g.reference.LastSampleTime()
		if g.mode == ClockSyncedAhead {
			horizon += seconds(1 / g.frequency)
		}
	}

	if horizon <= g.startTime {
		return
	}

	target := uint64(math.Floor((horizon-g.startTime).Seconds()*g.frequency + indexEpsilon))
	if target > g.tickCounter {
		g.numNewTicks += target - g.tickCounter
		g.tickCounter = target
	}
}

// NumNewTicks returns the number of pending ticks.
func (g *ClockGenerator) NumNewTicks() int {
	return int(g.numNewTicks)
}

// TickCounter returns the number of ticks generated since the last start time change.
func (g *ClockGenerator) TickCounter() uint64 {
	return g.tickCounter
}

// Tick returns the i-th pending tick, 0 being the oldest.
func (g *ClockGenerator) Tick(i int) (uint64, bool) {
	if i < 0 || uint64(i) >= g.numNewTicks {
		return 0, false
	}
	return g.tickCounter - g.numNewTicks + uint64(i), true
}

// PopOldestTick removes and returns the oldest pending tick.
func (g *ClockGenerator) PopOldestTick() (uint64, bool) {
	tick, ok := g.Tick(0)
	if ok {
		g.numNewTicks--
	}
	return tick, ok
}

// ClearNewTicks drops all pending ticks.
func (g *ClockGenerator) ClearNewTicks() {
	g.numNewTicks = 0
}

// TickTime returns the timestamp of a tick.
func (g *ClockGenerator) TickTime(tick uint64) time.Duration {
	if g.frequency <= 0 {
		return g.startTime
	}
	return g.startTime + seconds(float64(tick+1)/g.frequency)
}

// resampler.go: converts a channel from its native rate to a target output rate
package dsp

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/tphakala/biosync/internal/errors"
	"github.com/tphakala/biosync/internal/logger"
)

// ratioEpsilon decides when two sample rates are considered equal or integer related.
const ratioEpsilon = 10e-6

// ResampleMode chooses how the algorithm is selected.
type ResampleMode int

const (
	ResampleRealtime ResampleMode = iota
	ResampleGoodQuality
	ResampleBestQuality
	ResampleManual
)

func (m ResampleMode) String() string {
	switch m {
	case ResampleRealtime:
		return "realtime"
	case ResampleGoodQuality:
		return "good"
	case ResampleBestQuality:
		return "best"
	case ResampleManual:
		return "manual"
	default:
		return fmt.Sprintf("ResampleMode(%d)", int(m))
	}
}

// ParseResampleMode converts a configuration string to a ResampleMode.
func ParseResampleMode(s string) (ResampleMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "realtime", "":
		return ResampleRealtime, nil
	case "good":
		return ResampleGoodQuality, nil
	case "best":
		return ResampleBestQuality, nil
	case "manual":
		return ResampleManual, nil
	default:
		return ResampleRealtime, errors.Newf("unknown resample mode %q", s).
			Component("dsp").
			Category(errors.CategoryValidation).
			Context("operation", "parse_resample_mode").
			Build()
	}
}

// ResampleType classifies the rate ratio between input and output.
type ResampleType int

const (
	NoResampling ResampleType = iota
	Naive                     // input has no fixed rate
	UpsampleInteger
	DownsampleInteger
	UpsampleFractional
	DownsampleFractional
)

func (t ResampleType) IsUpsampling() bool {
	return t == UpsampleInteger || t == UpsampleFractional
}

// ResampleAlgo is the algorithm producing output samples.
type ResampleAlgo int

const (
	AlgoForward ResampleAlgo = iota
	AlgoOutputLast
	AlgoNearestNeighbor
	AlgoLinearInterpolate
	AlgoBoxcar
)

func (a ResampleAlgo) String() string {
	switch a {
	case AlgoForward:
		return "forward"
	case AlgoOutputLast:
		return "output-last"
	case AlgoNearestNeighbor:
		return "nearest-neighbor"
	case AlgoLinearInterpolate:
		return "linear-interpolate"
	case AlgoBoxcar:
		return "boxcar"
	default:
		return fmt.Sprintf("ResampleAlgo(%d)", int(a))
	}
}

// Processor is the capability a sensor needs from the stage between its input
// and output channels.
type Processor interface {
	// Update consumes new input and appends output samples for this tick.
	Update(elapsed, delta time.Duration)
	// ReInit reconfigures after input, rate or mode changes.
	ReInit()
	// Reset drops all state and reinitializes.
	Reset()
	// Retract withdraws the effect of the last n input samples, which were
	// removed from the input after Update ran in the same tick.
	Retract(n int)
	// SetStartTime rebases the output time line.
	SetStartTime(t time.Duration)
}

// Resampler converts an input channel to a fixed output rate. The output
// channel is owned by the caller; the resampler only appends to it.
type Resampler[T Sample] struct {
	mode       ResampleMode
	manualAlgo ResampleAlgo
	targetRate float64
	startTime  time.Duration

	resampleType ResampleType
	algo         ResampleAlgo
	factor       float64
	intFactor    int
	kernelSize   int

	input  *Channel[T]
	output *Channel[T]
	reader *ChannelReader
	clock  ClockGenerator
	window []float64

	initialized bool
}

var _ Processor = (*Resampler[float64])(nil)

// NewResampler creates a resampler appending to output.
func NewResampler[T Sample](output *Channel[T], mode ResampleMode) *Resampler[T] {
	return &Resampler[T]{
		mode:       mode,
		manualAlgo: AlgoForward,
		output:     output,
		reader:     NewChannelReader(nil),
	}
}

// SetInput attaches the input channel. Call ReInit afterwards.
func (r *Resampler[T]) SetInput(input *Channel[T]) {
	r.input = input
	if input == nil {
		// avoid storing a typed nil in the Buffer interface
		r.reader.SetChannel(nil)
		return
	}
	r.reader.SetChannel(input)
}

// SetOutputSampleRate sets the target rate. Call ReInit afterwards.
func (r *Resampler[T]) SetOutputSampleRate(rate float64) { r.targetRate = rate }

// SetMode sets the algorithm selection mode. Call ReInit afterwards.
func (r *Resampler[T]) SetMode(mode ResampleMode) { r.mode = mode }

// SetAlgorithm fixes the algorithm used in manual mode.
func (r *Resampler[T]) SetAlgorithm(algo ResampleAlgo) { r.manualAlgo = algo }

func (r *Resampler[T]) Mode() ResampleMode { return r.mode }
func (r *Resampler[T]) Type() ResampleType { return r.resampleType }
func (r *Resampler[T]) Algorithm() ResampleAlgo { return r.algo }
func (r *Resampler[T]) Factor() float64 { return r.factor }
func (r *Resampler[T]) OutputSampleRate() float64 { return r.targetRate }
func (r *Resampler[T]) Clock() *ClockGenerator { return &r.clock }

// ReInit classifies the rate ratio, selects the algorithm and configures the
// output channel and clock.
func (r *Resampler[T]) ReInit() {
	r.initialized = false

	if r.input == nil {
		r.clock.SetReferenceChannel(nil)
		r.clock.Reset()
		GetLogger().Debug("resampler left unconfigured", logger.Error(ErrNoInput))
		return
	}

	inputRate := r.input.SampleRate()
	outputRate := r.targetRate

	switch {
	case outputRate <= 0:
		r.resampleType, r.algo, r.factor = NoResampling, AlgoForward, 1
	case inputRate <= 0:
		r.resampleType, r.algo, r.factor = Naive, AlgoOutputLast, 1
	default:
		ratio := outputRate / inputRate
		r.factor = ratio
		switch {
		case math.Abs(ratio-1) < ratioEpsilon:
			r.resampleType, r.factor = NoResampling, 1
		case math.Abs(math.Floor(ratio)-ratio) < ratioEpsilon ||
			math.Abs(math.Floor(1/ratio)-1/ratio) < ratioEpsilon:
			if ratio > 1 {
				r.resampleType = UpsampleInteger
			} else {
				r.resampleType = DownsampleInteger
			}
		default:
			if ratio > 1 {
				r.resampleType = UpsampleFractional
			} else {
				r.resampleType = DownsampleFractional
			}
		}
		r.algo = r.selectAlgorithm()
	}

	r.output.SetSampleRate(outputRate)
	r.output.SetIndependent(false)

	if r.factor > 1 {
		r.intFactor = int(r.factor + ratioEpsilon)
	} else {
		r.intFactor = int(1/r.factor + ratioEpsilon)
	}
	r.kernelSize = max(r.intFactor, 0)
	r.window = make([]float64, 0, r.kernelSize)

	r.clock.SetStartTime(r.startTime)
	r.clock.SetFrequency(outputRate)
	switch r.algo {
	case AlgoForward:
		r.clock.SetReferenceChannel(nil)
		r.clock.Stop()
	case AlgoOutputLast:
		r.clock.SetMode(ClockIndependent)
		r.clock.SetReferenceChannel(nil)
		r.clock.Start()
	case AlgoNearestNeighbor:
		r.clock.SetMode(ClockSyncedAhead)
		r.clock.SetReferenceChannel(r.input)
		r.clock.Start()
	default:
		r.clock.SetMode(ClockSynced)
		r.clock.SetReferenceChannel(r.input)
		r.clock.Start()
	}

	// only samples arriving from now on are resampled
	r.reader.Start(r.input.LastSampleTime())

	GetLogger().Debug("resampler configured",
		logger.String("channel", r.input.Info().Name),
		logger.Float64("input_rate", inputRate),
		logger.Float64("output_rate", outputRate),
		logger.String("mode", r.mode.String()),
		logger.String("algorithm", r.algo.String()),
		logger.String("clock", r.clock.Mode().String()))

	r.initialized = true
}

// selectAlgorithm picks the algorithm for the current type and mode.
// Best quality has no dedicated kernel and uses the good quality choice.
func (r *Resampler[T]) selectAlgorithm() ResampleAlgo {
	switch r.resampleType {
	case NoResampling:
		return AlgoForward
	case Naive:
		return AlgoOutputLast
	}

	switch r.mode {
	case ResampleManual:
		return r.manualAlgo
	case ResampleGoodQuality, ResampleBestQuality:
		if r.resampleType.IsUpsampling() {
			return AlgoLinearInterpolate
		}
		return AlgoBoxcar
	default:
		return AlgoNearestNeighbor
	}
}

// Reset drops the time base, pending ticks and read position, then reinitializes.
func (r *Resampler[T]) Reset() {
	r.startTime = 0
	r.reader.Reset()
	r.clock.Reset()
	r.ReInit()
}

// SetStartTime rebases the output clock together with the channels. Tick
// numbering is kept so no ticks are generated twice.
func (r *Resampler[T]) SetStartTime(t time.Duration) {
	r.startTime = t
	r.clock.Rebase(t)
}

// Update advances the clock and appends the output samples due this tick.
func (r *Resampler[T]) Update(elapsed, delta time.Duration) {
	r.output.BeginAddSamples()

	if r.input == nil || !r.initialized {
		return
	}

	r.clock.Update(elapsed, delta)
	r.reader.Update()

	switch r.algo {
	case AlgoForward:
		r.forward()
	case AlgoOutputLast:
		r.outputLast()
	case AlgoNearestNeighbor:
		r.clocked(r.nearestNeighbor)
	case AlgoLinearInterpolate:
		r.clocked(r.linearInterpolate)
	case AlgoBoxcar:
		r.clocked(r.boxcar)
	}
}

// Retract undoes the last n input samples. Forwarded output produced from them
// in this tick is removed; clocked algorithms only resync the read position.
func (r *Resampler[T]) Retract(n int) {
	if n <= 0 || r.input == nil {
		return
	}

	if r.algo == AlgoForward {
		k := min(n, r.output.NumNewSamples())
		for range k {
			if err := r.output.RemoveLastSample(); err != nil {
				break
			}
		}
	}

	r.reader.Rewind(n)
}

// Delay is the output delay in samples introduced by the algorithm.
func (r *Resampler[T]) Delay() int {
	switch r.algo {
	case AlgoLinearInterpolate:
		return 1
	case AlgoBoxcar:
		return r.intFactor
	default:
		if r.resampleType.IsUpsampling() {
			return 1
		}
		return 0
	}
}

// NumStartupSamples is the number of input samples needed before output is meaningful.
func (r *Resampler[T]) NumStartupSamples() int {
	return r.NumEpochSamples()
}

// NumEpochSamples is the number of input samples each output sample depends on.
func (r *Resampler[T]) NumEpochSamples() int {
	switch r.algo {
	case AlgoLinearInterpolate:
		return 2
	case AlgoBoxcar:
		return r.kernelSize * 2
	default:
		return 1
	}
}

func (r *Resampler[T]) forward() {
	for {
		index, ok := r.reader.PopOldestSample()
		if !ok {
			return
		}
		r.output.AddSample(r.input.Sample(index))
	}
}

func (r *Resampler[T]) outputLast() {
	n := r.clock.NumNewTicks()
	r.clock.ClearNewTicks()

	last := r.input.LastSample()
	for range n {
		r.output.AddSample(last)
	}

	r.reader.Flush()
}

// clocked emits one output sample per pending tick. sample returns false when
// the tick lies beyond the newest input sample; the tick then stays pending.
func (r *Resampler[T]) clocked(sample func(t time.Duration) (T, bool)) {
	for {
		tick, ok := r.clock.Tick(0)
		if !ok {
			break
		}
		value, ready := sample(r.clock.TickTime(tick))
		if !ready {
			break
		}
		r.output.AddSample(value)
		r.clock.PopOldestTick()
	}

	r.reader.Flush()
}

// beyondInput reports whether t lies after the newest input sample.
func (r *Resampler[T]) beyondInput(t time.Duration) bool {
	return t > r.input.LastSampleTime()
}

func (r *Resampler[T]) nearestNeighbor(t time.Duration) (T, bool) {
	var zero T

	index, ok := r.input.FindIndexByTime(t, false)
	if !ok {
		if r.beyondInput(t) {
			return zero, false
		}
		return zero, true
	}

	if maxIndex, valid := r.input.MaxSampleIndex(); valid && index > maxIndex {
		return zero, false
	}
	return r.input.Sample(index), true
}

func (r *Resampler[T]) linearInterpolate(t time.Duration) (T, bool) {
	var zero T

	maxIndex, ok := r.input.MaxSampleIndex()
	if !ok || t < r.input.StartTime() {
		return zero, !r.beyondInput(t)
	}

	floatIndex := (t-r.input.StartTime()).Seconds()*r.input.SampleRate() - 1
	if floatIndex > float64(maxIndex)+indexEpsilon {
		return zero, false
	}
	if floatIndex < -indexEpsilon {
		return zero, true
	}

	base := math.Floor(floatIndex + indexEpsilon)
	i0 := uint64(base)
	if !r.input.IsValidSample(i0) {
		return zero, true
	}

	frac := floatIndex - base
	if frac < indexEpsilon || i0+1 > maxIndex {
		return r.input.Sample(i0), true
	}

	a := float64(r.input.Sample(i0))
	b := float64(r.input.Sample(i0 + 1))
	return T(a + (b-a)*frac), true
}

func (r *Resampler[T]) boxcar(t time.Duration) (T, bool) {
	var zero T

	index, ok := r.input.FindIndexByTime(t, false)
	if !ok {
		return zero, !r.beyondInput(t)
	}

	maxIndex, valid := r.input.MaxSampleIndex()
	if !valid || index > maxIndex {
		return zero, false
	}

	mean, ok := Average(r.input, index+1-uint64(min(uint64(r.kernelSize), index+1)), index, r.window)
	if !ok {
		return zero, true
	}
	return T(mean), true
}

// Average returns the mean of the valid samples in [from, to]. scratch is
// reused for the values when it has enough capacity.
func Average[T Sample](c *Channel[T], from, to uint64, scratch []float64) (float64, bool) {
	minIndex, ok := c.MinSampleIndex()
	if !ok {
		return 0, false
	}
	maxIndex, _ := c.MaxSampleIndex()

	from = max(from, minIndex)
	to = min(to, maxIndex)
	if from > to {
		return 0, false
	}

	values := scratch[:0]
	for i := from; i <= to; i++ {
		values = append(values, float64(c.Sample(i)))
	}
	return stat.Mean(values, nil), true
}

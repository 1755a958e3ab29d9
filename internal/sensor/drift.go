package sensor

import (
	"math"
	"time"

	"github.com/tphakala/biosync/internal/logger"
)

const (
	// drift is not corrected before this much engine time has passed
	startupGracePeriod = 2 * time.Second
	// nor before this many output samples exist, for low rate sensors
	startupMinSamples = 10
)

// SetDriftCorrectionEnabled toggles drift correction for this sensor. The
// engine wide setting must be enabled as well.
func (s *Sensor) SetDriftCorrectionEnabled(enabled bool) { s.driftCorrection = enabled }

func (s *Sensor) DriftCorrectionEnabled() bool { return s.driftCorrection }
func (s *Sensor) NumDriftSamplesAdded() uint64 { return s.driftSamplesAdded }
func (s *Sensor) NumDriftSamplesRemoved() uint64 { return s.driftSamplesRemoved }

// CalculateDrift returns how many samples the output lags behind engine time.
// Negative values mean the sensor runs ahead.
func (s *Sensor) CalculateDrift() int64 {
	theoretical := int64(s.output.ElapsedTime().Seconds() * s.SampleRate())
	return theoretical - int64(s.output.SampleCounter())
}

// correctForDrift duplicates or removes input samples so the output follows
// engine time. Drift beyond MaxDriftUntilSync is escalated to a sync instead.
func (s *Sensor) correctForDrift(settings DriftCorrection) {
	sampleRate := s.output.SampleRate()
	if sampleRate <= 0 {
		return
	}

	total := s.output.SampleCounter()
	if s.output.ElapsedTime() < startupGracePeriod || total < startupMinSamples {
		return
	}

	drift := s.CalculateDrift()
	s.lastDrift = drift
	driftAbs := drift
	if driftAbs < 0 {
		driftAbs = -driftAbs
	}
	driftSeconds := float64(drift) / sampleRate
	driftSecondsAbs := math.Abs(driftSeconds)

	if driftSecondsAbs > settings.MaxDriftUntilSync.Seconds() && s.env.AutoSyncEnabled() {
		if s.syncLog.Allow() {
			GetLogger().Info("sensor drift exceeds limit, requesting sync",
				logger.String("sensor", s.Name()),
				logger.Float64("drift_seconds", driftSeconds),
				logger.Duration("limit", settings.MaxDriftUntilSync))
		}
		s.env.RequestSync()
		return
	}

	// cannot correct below one sample interval
	if driftSecondsAbs < 1/sampleRate {
		return
	}

	switch {
	case driftSeconds > settings.MaxBackwardDrift.Seconds():
		// late: repeat the last input sample
		excess := driftSeconds - settings.MaxBackwardDrift.Seconds()
		n := min(driftAbs, int64(excess*sampleRate))
		if n <= 0 {
			return
		}

		last := s.input.LastSample()
		for range n {
			s.input.AddSample(last)
		}
		s.driftSamplesAdded += uint64(n)

		GetLogger().Trace("drift correction added samples",
			logger.String("sensor", s.Name()),
			logger.Int64("drift", drift),
			logger.Int64("added", n))

	case driftSeconds < -settings.MaxForwardDrift.Seconds():
		// early: drop samples, never more than arrived in this tick so
		// readers never see the counter move backwards
		excess := -driftSeconds - settings.MaxForwardDrift.Seconds()
		n := min(int64(excess*sampleRate), int64(s.LastBurstSize()), driftAbs)
		if n <= 0 {
			return
		}

		removed := 0
		for range n {
			if err := s.input.RemoveLastSample(); err != nil {
				GetLogger().Error("drift correction removal failed",
					logger.String("sensor", s.Name()),
					logger.Error(err))
				break
			}
			removed++
		}
		s.processor.Retract(removed)
		s.driftSamplesRemoved += uint64(removed)

		GetLogger().Trace("drift correction removed samples",
			logger.String("sensor", s.Name()),
			logger.Int64("drift", drift),
			logger.Int("removed", removed))
	}
}

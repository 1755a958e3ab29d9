package sensor

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/biosync/internal/dsp"
	"github.com/tphakala/biosync/internal/errors"
)

func testEnvironment() *StaticEnvironment {
	return &StaticEnvironment{
		Drift: DriftCorrection{
			Enabled:           true,
			MaxDriftUntilSync: 2 * time.Second,
			MaxForwardDrift:   20 * time.Millisecond,
			MaxBackwardDrift:  20 * time.Millisecond,
		},
		AutoSync: true,
	}
}

func newTestSensor(t *testing.T, env Environment) *Sensor {
	t.Helper()
	s, err := New(Config{Name: "eeg", InputRate: 250, OutputRate: 250, BufferSize: 4096}, env)
	require.NoError(t, err)
	return s
}

func queue(s *Sensor, n int) {
	for i := range n {
		s.AddQueuedSample(float64(i))
	}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{InputRate: 10, OutputRate: 10}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingName))

	_, err = New(Config{Name: "x", InputRate: -1, OutputRate: 10}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input rate")

	_, err = New(Config{Name: "x", InputRate: 10, OutputRate: math.NaN()}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output rate")
}

func TestNewWiresChannels(t *testing.T) {
	t.Parallel()

	s, err := New(Config{
		Name:         "ppg",
		Info:         dsp.ChannelInfo{Unit: "a.u.", Min: 0, Max: 1, Color: "#ff0000"},
		InputRate:    100,
		OutputRate:   50,
		ResampleMode: dsp.ResampleGoodQuality,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "ppg", s.Name())
	assert.True(t, s.Input().IsIndependent())
	assert.False(t, s.Output().IsIndependent())
	assert.InDelta(t, 100.0, s.Input().SampleRate(), 0)
	assert.InDelta(t, 50.0, s.SampleRate(), 0)
	assert.Equal(t, "a.u.", s.Output().Info().Unit)
	assert.Equal(t, "#ff0000", s.Output().Info().Color)
	assert.Equal(t, dsp.AlgoBoxcar, s.Resampler().Algorithm())
	assert.Equal(t, DefaultBurstWindow, len(s.bursts))
	assert.Equal(t, DefaultInboxCapacity, cap(s.inbox))
	assert.NotEqual(t, s.ID().String(), "")

	s.SetName("ppg-left")
	assert.Equal(t, "ppg-left", s.Input().Name())
	assert.Equal(t, "ppg-left", s.Output().Name())
}

func TestUpdateDrainsInbox(t *testing.T) {
	t.Parallel()

	s := newTestSensor(t, nil)
	queue(s, 5)
	assert.Equal(t, 5, s.QueueLength())

	s.Update(20*time.Millisecond, 20*time.Millisecond)
	assert.Equal(t, 0, s.QueueLength())
	assert.Equal(t, uint64(5), s.Input().SampleCounter())
	assert.Equal(t, 5, s.Input().NumNewSamples())
	assert.Equal(t, uint64(5), s.Output().SampleCounter(), "equal rates forward samples")
	assert.Equal(t, 20*time.Millisecond, s.Output().ElapsedTime())
	assert.True(t, s.Input().IsActive())

	s.Update(40*time.Millisecond, 20*time.Millisecond)
	assert.Equal(t, 0, s.Input().NumNewSamples())
	assert.Equal(t, 0, s.LastBurstSize())
}

func TestConcurrentProducersKeepOrder(t *testing.T) {
	t.Parallel()

	s := newTestSensor(t, nil)
	const total = 3000

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range total {
			s.AddQueuedSample(float64(i))
		}
	}()

	elapsed := time.Duration(0)
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		elapsed += time.Millisecond
		s.Update(elapsed, time.Millisecond)
	}
	s.Update(elapsed+time.Millisecond, time.Millisecond)

	in := s.Input()
	require.Equal(t, uint64(total), in.SampleCounter())
	for i := range uint64(total) {
		require.InDelta(t, float64(i), in.Sample(i), 0, "sample %d out of order", i)
	}
}

func TestConcurrentProducersAndLoss(t *testing.T) {
	t.Parallel()

	s := newTestSensor(t, nil)
	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			for range 500 {
				s.AddQueuedSample(1)
			}
			s.HandleLostSamples(10)
		})
	}
	wg.Wait()

	s.Update(10*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, uint64(2040), s.Input().SampleCounter())
	assert.Equal(t, uint64(40), s.NumLostSamples())
}

func TestHandleLostSamples(t *testing.T) {
	t.Parallel()

	s := newTestSensor(t, nil)
	s.AddQueuedSample(7)
	s.HandleLostSamples(5)
	s.HandleLostSamples(0)
	s.HandleLostSamples(-3)

	s.Update(30*time.Millisecond, 30*time.Millisecond)
	in := s.Input()
	require.Equal(t, uint64(6), in.SampleCounter())
	assert.InDelta(t, 7.0, in.Sample(0), 0)
	for i := uint64(1); i < 6; i++ {
		assert.InDelta(t, 0.0, in.Sample(i), 0)
	}
	assert.Equal(t, uint64(5), s.NumLostSamples())
}

func TestSyncPadding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		latency time.Duration
		at      time.Duration
		want    uint64
	}{
		{"no latency", 0, time.Second, 250},
		{"latency subtracted", 500 * time.Millisecond, time.Second, 125},
		{"latency exceeds time", 2 * time.Second, time.Second, 0},
		{"rounds to closest", 0, 10 * time.Millisecond, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestSensor(t, nil)
			s.SetLatency(tt.latency)
			s.Sync(tt.at, true)
			assert.Equal(t, tt.want, s.Output().SampleCounter())
			assert.Equal(t, uint64(0), s.Input().SampleCounter(), "padding bypasses the input")
		})
	}
}

func TestSyncRebase(t *testing.T) {
	t.Parallel()

	s := newTestSensor(t, nil)
	s.Sync(1500*time.Millisecond, false)
	assert.Equal(t, 1500*time.Millisecond, s.Input().StartTime())
	assert.Equal(t, 1500*time.Millisecond, s.Output().StartTime())
	assert.Equal(t, uint64(0), s.Output().SampleCounter())
}

func TestBurstStatistics(t *testing.T) {
	t.Parallel()

	s := newTestSensor(t, nil)
	assert.Equal(t, 0, s.MaxBurstSize())
	assert.InDelta(t, 0.0, s.AverageBurstSize(), 0)

	elapsed := time.Duration(0)
	for _, n := range []int{3, 0, 5} {
		queue(s, n)
		elapsed += 10 * time.Millisecond
		s.Update(elapsed, 10*time.Millisecond)
	}

	assert.Equal(t, 5, s.LastBurstSize())
	assert.Equal(t, 5, s.MaxBurstSize())
	assert.InDelta(t, 4.0, s.AverageBurstSize(), 1e-12, "empty ticks are ignored")

	assert.Equal(t, time.Duration(5*250)*time.Second, s.ExpectedJitter())
	s.SetExpectedJitter(30 * time.Millisecond)
	assert.Equal(t, 30*time.Millisecond, s.ExpectedJitter())
}

func TestRealSampleRate(t *testing.T) {
	t.Parallel()

	s := newTestSensor(t, nil)
	queue(s, 500)
	s.Update(2*time.Second, 2*time.Second)
	assert.InDelta(t, 250.0, s.RealSampleRate(), 1e-9)
}

func TestReset(t *testing.T) {
	t.Parallel()

	env := testEnvironment()
	s := newTestSensor(t, env)
	queue(s, 490)
	s.HandleLostSamples(2)
	s.Update(2*time.Second, 2*time.Second)
	queue(s, 3)
	require.NotZero(t, s.NumDriftSamplesAdded())

	s.Reset()
	assert.Equal(t, 0, s.QueueLength())
	assert.Equal(t, uint64(0), s.Input().SampleCounter())
	assert.Equal(t, uint64(0), s.Output().SampleCounter())
	assert.Equal(t, 0, s.MaxBurstSize())
	assert.Equal(t, uint64(0), s.NumDriftSamplesAdded())
	assert.Equal(t, uint64(0), s.NumDriftSamplesRemoved())
	assert.Equal(t, uint64(0), s.NumLostSamples())
	assert.InDelta(t, 0.0, s.RealSampleRate(), 0)

	// the sensor keeps working after a reset
	queue(s, 4)
	s.Update(16*time.Millisecond, 16*time.Millisecond)
	assert.Equal(t, uint64(4), s.Output().SampleCounter())
}

func TestSetSampleRateReconfiguresResampler(t *testing.T) {
	t.Parallel()

	s := newTestSensor(t, nil)
	require.Equal(t, dsp.AlgoForward, s.Resampler().Algorithm())

	s.SetSampleRate(500)
	assert.InDelta(t, 500.0, s.SampleRate(), 0)
	assert.Equal(t, dsp.UpsampleInteger, s.Resampler().Type())
	assert.Equal(t, dsp.AlgoNearestNeighbor, s.Resampler().Algorithm())
}

func TestContactQuality(t *testing.T) {
	t.Parallel()

	s := newTestSensor(t, nil)
	assert.False(t, s.HasContactQuality())
	assert.Equal(t, "n/a", s.ContactQuality().Description())

	s.SetContactQuality(ContactGood)
	assert.True(t, s.HasContactQuality())
	assert.Equal(t, "Good", s.ContactQuality().String())
	assert.Equal(t, "#32ea21", s.ContactQuality().Color())

	assert.Equal(t, "No Signal", ContactNoSignal.Description())
	assert.Equal(t, "#009fe3", ContactNotAvailable.Color())
	assert.Equal(t, "No Signal", ContactQuality(42).Description())
}

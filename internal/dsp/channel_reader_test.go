package dsp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelReaderTracksNewSamples(t *testing.T) {
	t.Parallel()

	c := NewChannel[float64](64, 100)
	r := NewChannelReader(c)
	r.Start(c.LastSampleTime())

	fill(c, 5)
	r.Update()
	require.True(t, r.HasStarted())
	assert.False(t, r.Changed(ChangeAny), "fresh reader reports no change")
	assert.Equal(t, 5, r.NumNewSamples())

	index, ok := r.PopOldestSample()
	require.True(t, ok)
	assert.Equal(t, uint64(0), index)

	r.Advance(2)
	assert.Equal(t, 2, r.NumNewSamples())
	index, ok = r.SampleIndex(1)
	require.True(t, ok)
	assert.Equal(t, uint64(4), index)
	_, ok = r.SampleIndex(2)
	assert.False(t, ok)

	r.Flush()
	assert.Equal(t, 0, r.NumNewSamples())

	newest, ok := r.OldestSampleIndex()
	require.True(t, ok)
	assert.Equal(t, uint64(4), newest, "fully read cursor reports the newest index")
	assert.Equal(t, 50*time.Millisecond, r.OldestSampleTime())
}

func TestChannelReaderStartSkipsExistingSamples(t *testing.T) {
	t.Parallel()

	c := NewChannel[float64](64, 100)
	fill(c, 10)

	r := NewChannelReader(c)
	r.Start(c.LastSampleTime())
	r.Update()
	require.True(t, r.HasStarted())
	assert.Equal(t, 0, r.NumNewSamples())

	fill(c, 3)
	r.Update()
	assert.Equal(t, 3, r.NumNewSamples())
	index, ok := r.SampleIndex(0)
	require.True(t, ok)
	assert.Equal(t, uint64(10), index)
}

func TestChannelReaderWaitsForStartTime(t *testing.T) {
	t.Parallel()

	c := NewChannel[float64](64, 100)
	r := NewChannelReader(c)
	r.Start(100 * time.Millisecond)

	fill(c, 5) // newest sample at 50ms
	r.Update()
	assert.False(t, r.HasStarted())
	assert.Equal(t, 0, r.NumNewSamples())

	fill(c, 7) // newest sample at 120ms
	r.Update()
	require.True(t, r.HasStarted())
	assert.Equal(t, 2, r.NumNewSamples(), "only samples after the start time are new")
}

func TestChannelReaderCountsOverruns(t *testing.T) {
	t.Parallel()

	c := NewChannel[float64](4, 100)
	r := NewChannelReader(c)
	r.Start(0)
	r.Update()

	fill(c, 10)
	r.Update()
	assert.Equal(t, uint64(6), r.Overruns())
	assert.Equal(t, 4, r.NumNewSamples())

	index, ok := r.PopOldestSample()
	require.True(t, ok)
	assert.Equal(t, uint64(6), index)
}

func TestChannelReaderDetectsChanges(t *testing.T) {
	t.Parallel()

	t.Run("sample rate", func(t *testing.T) {
		t.Parallel()
		c := NewChannel[float64](16, 100)
		r := NewChannelReader(c)
		r.Update()
		require.False(t, r.Changed(ChangeAny))

		c.SetSampleRate(50)
		r.Update()
		assert.True(t, r.Changed(ChangeSampleRate))
		assert.True(t, r.Changed(ChangeAny))
		assert.False(t, r.Changed(ChangeReset))

		r.Update()
		assert.False(t, r.Changed(ChangeAny), "changes are reported once")
	})

	t.Run("reset", func(t *testing.T) {
		t.Parallel()
		c := NewChannel[float64](16, 100)
		r := NewChannelReader(c)
		r.Start(0)
		fill(c, 8)
		r.Update()
		r.Flush()

		c.Reset()
		r.Update()
		assert.True(t, r.Changed(ChangeReset))
		assert.True(t, r.Changed(ChangeAny))
	})

	t.Run("reference", func(t *testing.T) {
		t.Parallel()
		a := NewChannel[float64](16, 100)
		b := NewChannel[float64](16, 100)
		r := NewChannelReader(a)
		r.Update()

		r.SetChannel(b)
		r.Update()
		assert.True(t, r.Changed(ChangeReference))
		assert.True(t, r.Changed(ChangeAny))
		assert.Same(t, b, r.Channel())
	})

	t.Run("invalid kind", func(t *testing.T) {
		t.Parallel()
		r := NewChannelReader(nil)
		r.Update()
		assert.False(t, r.Changed(ChangeType(-1)))
		assert.False(t, r.Changed(numChangeTypes))
		assert.Equal(t, 0, r.NumNewSamples())
	})
}

func TestChannelReaderRewindAfterRemoval(t *testing.T) {
	t.Parallel()

	c := NewChannel[float64](16, 100)
	r := NewChannelReader(c)
	r.Start(0)
	fill(c, 5)
	r.Update()
	r.Flush()

	require.NoError(t, c.RemoveLastSample())
	require.NoError(t, c.RemoveLastSample())
	r.Rewind(2)

	r.Update()
	assert.False(t, r.Changed(ChangeReset), "rewound cursor must not look like a reset")
	assert.Equal(t, 0, r.NumNewSamples())

	c.AddSample(42)
	r.Update()
	require.Equal(t, 1, r.NumNewSamples())
	index, ok := r.PopOldestSample()
	require.True(t, ok)
	assert.Equal(t, uint64(3), index)
	assert.InDelta(t, 42.0, c.Sample(index), 0)
}

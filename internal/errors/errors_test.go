package errors

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tests in this file mutate the global hook list and therefore do not run in parallel.

func TestFastPathWithoutHooks(t *testing.T) {
	ClearErrorHooks()

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.IsReported())
}

func TestBuilderFields(t *testing.T) {
	ClearErrorHooks()

	ee := Newf("remove from empty channel %s", "eeg").
		Component("dsp").
		Category(CategoryState).
		Priority(PriorityHigh).
		SensorContext("eeg", 250).
		Context("operation", "remove_last_sample").
		Build()

	assert.Equal(t, "dsp", ee.GetComponent())
	assert.Equal(t, "state", ee.GetCategory())
	assert.Equal(t, PriorityHigh, ee.GetPriority())

	ctx := ee.GetContext()
	assert.Equal(t, "eeg", ctx["sensor"])
	assert.InDelta(t, 250.0, ctx["sample_rate"], 0)
	assert.Equal(t, "remove_last_sample", ctx["operation"])

	// returned context is a copy
	ctx["sensor"] = "changed"
	assert.Equal(t, "eeg", ee.GetContext()["sensor"])
}

func TestInvalidPriorityFallsBackToMedium(t *testing.T) {
	ClearErrorHooks()

	ee := Newf("x").Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, ee.Priority)
}

func TestHooksReceiveErrors(t *testing.T) {
	ClearErrorHooks()
	t.Cleanup(ClearErrorHooks)

	var calls atomic.Int32
	var lastCategory atomic.Value
	AddErrorHook(func(ee *EnhancedError) {
		calls.Add(1)
		lastCategory.Store(ee.Category)
	})

	ee := Newf("clock drift beyond tolerance").Component("sensor").Build()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, CategoryDrift, lastCategory.Load())
	assert.True(t, ee.IsReported())
}

func TestDetectCategory(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		component string
		want      ErrorCategory
	}{
		{"drift keyword", fmt.Errorf("drift too large"), "", CategoryDrift},
		{"sync keyword", fmt.Errorf("sync failed"), "", CategorySync},
		{"buffer keyword", fmt.Errorf("ring buffer full"), "", CategoryBuffer},
		{"frame keyword", fmt.Errorf("corrupt frame"), "", CategoryAcquisition},
		{"driver component", fmt.Errorf("boom"), "driver", CategoryAcquisition},
		{"engine component", fmt.Errorf("boom"), "engine", CategoryState},
		{"unknown", fmt.Errorf("boom"), "other", CategoryGeneric},
		{"wrapped enhanced", New(fmt.Errorf("x")).Category(CategoryLimit).Build(), "", CategoryLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectCategory(tt.err, tt.component))
		})
	}
}

func TestIsCategoryAndStdPassthrough(t *testing.T) {
	ClearErrorHooks()

	base := NewStd("base")
	ee := New(fmt.Errorf("wrapped: %w", base)).Category(CategoryNotFound).Build()

	require.True(t, Is(ee, base))
	assert.True(t, IsNotFound(ee))
	assert.True(t, IsCategory(fmt.Errorf("outer: %w", ee), CategoryNotFound))
	assert.False(t, IsCategory(base, CategoryNotFound))

	var target *EnhancedError
	require.True(t, As(fmt.Errorf("outer: %w", ee), &target))
	assert.Same(t, ee, target)

	joined := Join(base, ee)
	assert.True(t, Is(joined, base))
}

func TestLookupComponentFallback(t *testing.T) {
	assert.Equal(t, "sensor", lookupComponent("github.com/tphakala/biosync/internal/sensor.(*Sensor).Update"))
	assert.Equal(t, "mypkg", lookupComponent("example.com/x/mypkg.Func"))
}

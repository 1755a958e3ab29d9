package dsp

import (
	"github.com/tphakala/biosync/internal/errors"
)

// Error sentinel values for the dsp package
var (
	// ErrEmptyChannel is returned when RemoveLastSample is called on a channel without samples
	ErrEmptyChannel = errors.Newf("cannot remove sample from empty channel").
			Component("dsp").
			Category(errors.CategoryState).
			Context("operation", "remove_last_sample").
			Build()

	// ErrNoInput is returned when a resampler is updated before SetInput
	ErrNoInput = errors.Newf("resampler has no input channel").
			Component("dsp").
			Category(errors.CategoryResample).
			Context("operation", "resample").
			Build()
)

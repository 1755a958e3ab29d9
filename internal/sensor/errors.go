package sensor

import (
	"github.com/tphakala/biosync/internal/errors"
)

// Error sentinel values for the sensor package
var (
	// ErrMissingName is returned when a sensor is created without a name
	ErrMissingName = errors.Newf("sensor name is required").
			Component("sensor").
			Category(errors.CategoryValidation).
			Build()
)

func invalidRate(name, field string, value float64) error {
	return errors.Newf("sensor %s: %s must be a finite non-negative rate, got %v", name, field, value).
		Component("sensor").
		Category(errors.CategoryValidation).
		SensorContext(name, 0).
		Context("field", field).
		Build()
}

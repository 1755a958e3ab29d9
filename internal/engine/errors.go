package engine

import "github.com/tphakala/biosync/internal/errors"

// Sentinel errors for device registration.
var (
	ErrDeviceExists   = errors.NewStd("device already registered")
	ErrDeviceNotFound = errors.NewStd("device not registered")
)

func deviceError(sentinel error, category errors.ErrorCategory, name string) error {
	return errors.New(sentinel).
		Component("engine").
		Category(category).
		Context("device", name).
		Build()
}

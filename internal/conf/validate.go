// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateEngineSettings(&settings.Engine); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateSensorSettings(&settings.Sensor); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	seen := make(map[string]bool, len(settings.Devices))
	for i := range settings.Devices {
		d := &settings.Devices[i]
		if seen[d.Name] {
			ve.Errors = append(ve.Errors, fmt.Sprintf("duplicate device name %q", d.Name))
		}
		seen[d.Name] = true

		if err := validateDeviceConfig(d); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if err := validateTelemetrySettings(&settings.Telemetry); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}

	return nil
}

func validateEngineSettings(settings *EngineSettings) error {
	var errs []string

	if settings.TickInterval <= 0 {
		errs = append(errs, "engine tick interval must be positive")
	}

	drift := &settings.Drift
	if drift.MaxDriftUntilSync <= 0 {
		errs = append(errs, "engine.drift.maxdriftuntilsync must be positive")
	}
	if drift.MaxForwardDrift < 0 || drift.MaxBackwardDrift < 0 {
		errs = append(errs, "engine.drift forward and backward tolerances must not be negative")
	}
	if drift.MaxForwardDrift >= drift.MaxDriftUntilSync || drift.MaxBackwardDrift >= drift.MaxDriftUntilSync {
		errs = append(errs, "engine.drift tolerances must be smaller than maxdriftuntilsync")
	}

	if len(errs) > 0 {
		return fmt.Errorf("engine settings errors: %s", strings.Join(errs, ", "))
	}
	return nil
}

func validateSensorSettings(settings *SensorSettings) error {
	var errs []string

	if settings.BufferSize <= 0 {
		errs = append(errs, "sensor buffer size must be positive")
	}
	if settings.BurstWindow <= 0 {
		errs = append(errs, "sensor burst window must be positive")
	}
	if settings.InboxCapacity < 0 {
		errs = append(errs, "sensor inbox capacity must not be negative")
	}
	if !isValidResampleMode(settings.ResampleMode) {
		errs = append(errs, fmt.Sprintf("invalid resample mode %q, must be one of %v", settings.ResampleMode, resampleModes))
	}

	if len(errs) > 0 {
		return fmt.Errorf("sensor settings errors: %s", strings.Join(errs, ", "))
	}
	return nil
}

func validateDeviceConfig(device *DeviceConfig) error {
	var errs []string

	if device.Name == "" {
		errs = append(errs, "name is required")
	}
	if device.Type != DeviceTypeSimulated {
		errs = append(errs, fmt.Sprintf("unsupported type %q", device.Type))
	}
	if device.Latency < 0 || device.Jitter < 0 {
		errs = append(errs, "latency and jitter must not be negative")
	}
	if device.Timeout <= 0 {
		errs = append(errs, "timeout must be positive")
	}
	if device.LossRate < 0 || device.LossRate >= 1 {
		errs = append(errs, fmt.Sprintf("loss rate must be in [0, 1), got %g", device.LossRate))
	}
	if !slices.Contains(waveforms, device.Waveform) {
		errs = append(errs, fmt.Sprintf("invalid waveform %q, must be one of %v", device.Waveform, waveforms))
	}
	if device.BurstInterval <= 0 {
		errs = append(errs, "burst interval must be positive")
	}
	if len(device.Sensors) == 0 {
		errs = append(errs, "at least one sensor is required")
	}

	names := make(map[string]bool, len(device.Sensors))
	for i := range device.Sensors {
		s := &device.Sensors[i]
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("sensor %d has no name", i))
		} else if names[s.Name] {
			errs = append(errs, fmt.Sprintf("duplicate sensor name %q", s.Name))
		}
		names[s.Name] = true

		if s.SampleRate < 0 || s.OutputRate < 0 {
			errs = append(errs, fmt.Sprintf("sensor %q rates must not be negative", s.Name))
		}
		if s.Min > s.Max {
			errs = append(errs, fmt.Sprintf("sensor %q min %g exceeds max %g", s.Name, s.Min, s.Max))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("device %q errors: %s", device.Name, strings.Join(errs, ", "))
	}
	return nil
}

func validateTelemetrySettings(settings *TelemetrySettings) error {
	if !settings.Enabled {
		return nil
	}

	if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
		return fmt.Errorf("invalid telemetry listen address %q: %w", settings.Listen, err)
	}
	return nil
}

func isValidResampleMode(mode string) bool {
	return slices.Contains(resampleModes, mode)
}

// env.go - environment variable overrides and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. BIOSYNC_ENGINE_TICKINTERVAL.
const EnvPrefix = "BIOSYNC"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the explicitly validated environment bindings.
// Other keys are still reachable through viper.AutomaticEnv.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "BIOSYNC_DEBUG", validateEnvBool},
		{"engine.tickinterval", "BIOSYNC_ENGINE_TICKINTERVAL", validateEnvPositiveDuration},
		{"engine.autosync", "BIOSYNC_ENGINE_AUTOSYNC", validateEnvBool},
		{"engine.session.running", "BIOSYNC_ENGINE_SESSION_RUNNING", validateEnvBool},
		{"engine.drift.enabled", "BIOSYNC_ENGINE_DRIFT_ENABLED", validateEnvBool},
		{"engine.drift.maxdriftuntilsync", "BIOSYNC_ENGINE_DRIFT_MAXDRIFTUNTILSYNC", validateEnvPositiveDuration},
		{"engine.drift.maxforwarddrift", "BIOSYNC_ENGINE_DRIFT_MAXFORWARDDRIFT", validateEnvPositiveDuration},
		{"engine.drift.maxbackwarddrift", "BIOSYNC_ENGINE_DRIFT_MAXBACKWARDDRIFT", validateEnvPositiveDuration},
		{"sensor.buffersize", "BIOSYNC_SENSOR_BUFFERSIZE", validateEnvPositiveInt},
		{"sensor.resamplemode", "BIOSYNC_SENSOR_RESAMPLEMODE", validateEnvResampleMode},
		{"telemetry.enabled", "BIOSYNC_TELEMETRY_ENABLED", validateEnvBool},
		{"telemetry.listen", "BIOSYNC_TELEMETRY_LISTEN", nil},
	}
}

// bindEnvVars binds the environment overrides and returns one warning per
// variable that failed to bind or holds an invalid value.
func bindEnvVars() []string {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	return warnings
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvPositiveDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("value must be positive, got %d", n)
	}
	return nil
}

func validateEnvResampleMode(value string) error {
	if !isValidResampleMode(value) {
		return fmt.Errorf("must be one of %v", resampleModes)
	}
	return nil
}

// config.go: settings structs and loading for biosync.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/biosync/internal/errors"
	"github.com/tphakala/biosync/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// DriftSettings holds the drift correction tolerances shared by all sensors.
type DriftSettings struct {
	Enabled           bool          // master switch for drift correction
	MaxDriftUntilSync time.Duration // drift beyond this requests a full resync
	MaxForwardDrift   time.Duration // early tolerance before samples are removed
	MaxBackwardDrift  time.Duration // late tolerance before samples are added
}

// SessionSettings describes the recording session state at startup.
type SessionSettings struct {
	Running bool // sync requests are ignored while a session runs
}

// EngineSettings configures the synchronization engine.
type EngineSettings struct {
	TickInterval time.Duration // engine update period
	AutoSync     bool          // request a resync when drift exceeds MaxDriftUntilSync
	Session      SessionSettings
	Drift        DriftSettings
}

// SensorSettings holds defaults applied to every sensor.
type SensorSettings struct {
	BufferSize    int    // ring buffer capacity of input and output channels
	BurstWindow   int    // number of recent bursts used for burst statistics
	InboxCapacity int    // initial capacity of the driver-facing inbox
	ResampleMode  string // realtime, good, best or manual
}

// SensorConfig describes one sensor of a device.
type SensorConfig struct {
	Name       string
	Unit       string
	Min        float64
	Max        float64
	SampleRate float64 // nominal driver rate in Hz, 0 for irregular sensors
	OutputRate float64 // resampled rate in Hz, defaults to SampleRate
}

// DeviceConfig describes one device and its simulated driver.
type DeviceConfig struct {
	Name    string
	Type    string // only "simulated" is built in
	Enabled bool
	Latency time.Duration
	Jitter  time.Duration
	Timeout time.Duration // inactivity limit before the device enters timeout
	Sensors []SensorConfig

	// Simulation parameters
	ClockSkewPPM  float64       // driver clock error in parts per million
	BurstInterval time.Duration // driver delivers samples in bursts at this period
	LossRate      float64       // fraction of frames dropped on purpose
	Waveform      string        // sine, square or noise
	Frequency     float64       // waveform frequency in Hz
}

// TelemetrySettings configures the Prometheus endpoint.
type TelemetrySettings struct {
	Enabled bool
	Listen  string
}

// Settings is the root configuration for biosync.
type Settings struct {
	Debug     bool
	Engine    EngineSettings
	Sensor    SensorSettings
	Devices   []DeviceConfig
	Logging   logger.LoggingConfig
	Telemetry TelemetrySettings
}

// Load reads the configuration file and environment variables into a new Settings.
// An empty configFile searches the default config paths; when no file exists the
// embedded default configuration is written to the first search path.
func Load(configFile string) (*Settings, error) {
	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal-config").
			Build()
	}

	applyDeviceDefaults(settings)

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	GetLogger().Debug("configuration loaded",
		logger.String("file", viper.ConfigFileUsed()),
		logger.Int("devices", len(settings.Devices)))

	return settings, nil
}

// initViper sets defaults, environment bindings and reads the configuration file.
func initViper(configFile string) error {
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	if warnings := bindEnvVars(); len(warnings) > 0 {
		for _, w := range warnings {
			GetLogger().Warn("environment override ignored", logger.String("reason", w))
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return createDefaultConfig(configFile)
		}
		return readConfig()
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(filepath.Join(configPaths[0], "config.yaml"))
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

func readConfig() error {
	if err := viper.ReadInConfig(); err != nil {
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileIO).
			Context("operation", "read-config").
			Context("file", viper.ConfigFileUsed()).
			Build()
	}
	return nil
}

// createDefaultConfig writes the embedded default config to configPath and reads it back.
func createDefaultConfig(configPath string) error {
	defaultConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := writeFileAtomic(configPath, defaultConfig); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))

	viper.SetConfigFile(configPath)
	return readConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileIO).
			Context("operation", "read-embedded-config").
			Build()
	}
	return data, nil
}

// applyDeviceDefaults fills per-device values viper defaults cannot reach inside lists.
func applyDeviceDefaults(settings *Settings) {
	for i := range settings.Devices {
		d := &settings.Devices[i]
		if d.Type == "" {
			d.Type = DeviceTypeSimulated
		}
		if d.Timeout == 0 {
			d.Timeout = DefaultDeviceTimeout
		}
		if d.Waveform == "" {
			d.Waveform = WaveformSine
		}
		if d.BurstInterval == 0 {
			d.BurstInterval = DefaultBurstInterval
		}
		for j := range d.Sensors {
			s := &d.Sensors[j]
			if s.OutputRate == 0 {
				s.OutputRate = s.SampleRate
			}
		}
	}
}

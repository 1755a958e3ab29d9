// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/biosync/internal/logger"
)

const (
	DeviceTypeSimulated = "simulated"

	WaveformSine   = "sine"
	WaveformSquare = "square"
	WaveformNoise  = "noise"

	ResampleModeRealtime = "realtime"
	ResampleModeGood     = "good"
	ResampleModeBest     = "best"
	ResampleModeManual   = "manual"

	DefaultTickInterval      = 10 * time.Millisecond
	DefaultMaxDriftUntilSync = 2 * time.Second
	DefaultMaxForwardDrift   = 200 * time.Millisecond
	DefaultMaxBackwardDrift  = time.Second
	DefaultBufferSize        = 2048
	DefaultBurstWindow       = 200
	DefaultInboxCapacity     = 2048
	DefaultDeviceTimeout     = 5 * time.Second
	DefaultBurstInterval     = 40 * time.Millisecond
	DefaultTelemetryListen   = ":9400"
)

var (
	waveforms     = []string{WaveformSine, WaveformSquare, WaveformNoise}
	resampleModes = []string{ResampleModeRealtime, ResampleModeGood, ResampleModeBest, ResampleModeManual}
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("engine.tickinterval", DefaultTickInterval)
	viper.SetDefault("engine.autosync", true)
	viper.SetDefault("engine.session.running", false)
	viper.SetDefault("engine.drift.enabled", true)
	viper.SetDefault("engine.drift.maxdriftuntilsync", DefaultMaxDriftUntilSync)
	viper.SetDefault("engine.drift.maxforwarddrift", DefaultMaxForwardDrift)
	viper.SetDefault("engine.drift.maxbackwarddrift", DefaultMaxBackwardDrift)

	viper.SetDefault("sensor.buffersize", DefaultBufferSize)
	viper.SetDefault("sensor.burstwindow", DefaultBurstWindow)
	viper.SetDefault("sensor.inboxcapacity", DefaultInboxCapacity)
	viper.SetDefault("sensor.resamplemode", ResampleModeRealtime)

	viper.SetDefault("logging.default_level", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	viper.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", DefaultTelemetryListen)
}

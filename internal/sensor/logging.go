package sensor

import "github.com/tphakala/biosync/internal/logger"

// GetLogger returns the sensor logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("sensor")
}

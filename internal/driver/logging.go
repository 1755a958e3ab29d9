package driver

import "github.com/tphakala/biosync/internal/logger"

// GetLogger returns the driver logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("driver")
}

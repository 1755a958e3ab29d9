package device

import "github.com/tphakala/biosync/internal/logger"

// GetLogger returns the device logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("device")
}

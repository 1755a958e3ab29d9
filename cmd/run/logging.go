package run

import "github.com/tphakala/biosync/internal/logger"

// GetLogger returns the logger for the run command.
func GetLogger() logger.Logger {
	return logger.Global().Module("run")
}

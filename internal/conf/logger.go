// Package conf provides configuration management for biosync.
package conf

import "github.com/tphakala/biosync/internal/logger"

// GetLogger returns the config package logger scoped to the conf module.
// The logger is fetched from the global logger each time so it follows
// the centralized logger once it is installed at startup.
func GetLogger() logger.Logger {
	return logger.Global().Module("conf")
}

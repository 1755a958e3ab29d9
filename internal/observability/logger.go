package observability

import "github.com/tphakala/biosync/internal/logger"

// GetLogger returns the observability logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("observability")
}

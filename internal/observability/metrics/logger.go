package metrics

import "github.com/tphakala/biosync/internal/logger"

// GetLogger returns the metrics logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("observability")
}

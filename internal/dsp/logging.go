package dsp

import "github.com/tphakala/biosync/internal/logger"

// GetLogger returns the dsp logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("dsp")
}

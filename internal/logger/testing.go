package logger

import (
	"io"
	"log/slog"
	"time"
)

// NewSlogLogger returns a Logger writing JSON records to w. Intended for tests
// and for embedding the logger outside of a CentralLogger.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if tz == nil {
		tz = time.UTC
	}
	lvl := parseSlogLevel(level)
	return &moduleLogger{
		logger:   slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})),
		level:    lvl,
		timezone: tz,
	}
}

// NewDiscard returns a Logger that drops everything.
func NewDiscard() Logger {
	return NewSlogLogger(io.Discard, LogLevelError, time.UTC)
}

package logger

import (
	"io"
	"log/slog"
	"time"
)

// newTextHandler builds the console handler: text format, no record timestamp,
// TRACE level label, time-valued fields converted to tz.
func newTextHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	if tz == nil {
		tz = time.Local
	}

	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}

			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= traceLevelValue {
					return slog.String(slog.LevelKey, "TRACE")
				}
				return a
			}

			if a.Value.Kind() == slog.KindTime {
				return slog.Time(a.Key, a.Value.Time().In(tz))
			}

			return a
		},
	})
}

package logger

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

const (
	moduleKey  = "module"
	traceIDKey = "trace_id"
)

// parseSlogLevel converts a LogLevel to slog.Level, defaulting to info
func parseSlogLevel(level LogLevel) slog.Level {
	switch LogLevel(strings.ToLower(string(level))) {
	case LogLevelTrace:
		return traceLevelValue
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsValidLevel reports whether level names a known log level, ignoring case
func IsValidLevel(level string) bool {
	switch LogLevel(strings.ToLower(level)) {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// newTextHandler creates the console handler: no timestamps, TRACE rendered by name,
// time-valued attributes converted to tz.
func newTextHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	if w == nil {
		w = io.Discard
	}
	if tz == nil {
		tz = time.Local
	}

	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				return slog.Attr{}
			case slog.LevelKey:
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= traceLevelValue {
					return slog.String(slog.LevelKey, "TRACE")
				}
			default:
				if a.Value.Kind() == slog.KindTime {
					return slog.String(a.Key, a.Value.Time().In(tz).Format(time.RFC3339))
				}
			}
			return a
		},
	})
}

// NewSlogLogger creates a standalone Logger writing text records to w.
// It is meant for tests and for code paths that run before the central logger exists.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	slogLevel := parseSlogLevel(level)
	if tz == nil {
		tz = time.Local
	}

	return &moduleLogger{
		logger: slog.New(newTextHandler(w, slogLevel, tz)),
		level:  slogLevel,
	}
}

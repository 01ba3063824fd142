// Package logging builds the leveled slog loggers used by the actsim
// binary. Library packages accept a *slog.Logger and never build their own.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// LevelTrace is a custom slog level below Debug. At this level full
// snapshots and event payloads are logged.
const LevelTrace = slog.LevelDebug - 4

// Levels lists the accepted level names.
var Levels = []string{"info", "debug", "trace", "warn", "error"}

// ParseLevel maps a level name to a slog.Level (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidLevel reports whether s names a known level. Empty is valid and
// means info.
func ValidLevel(s string) bool {
	if s == "" {
		return true
	}
	s = strings.ToLower(s)
	for _, l := range Levels {
		if s == l {
			return true
		}
	}
	return false
}

// Formats lists the accepted output formats.
var Formats = []string{"text", "json"}

// ValidFormat reports whether s names a known output format. Empty is
// valid and means text.
func ValidFormat(s string) bool {
	return s == "" || s == "text" || s == "json"
}

// New creates a leveled logger writing to w in the given format.
// Anything other than "json" selects the text format.
func New(format, level string, w io.Writer) *slog.Logger {
	if format == "json" {
		return NewJSONLogger(level, w)
	}
	return NewLogger(level, w)
}

// NewLogger creates a leveled text logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, handlerOptions(level)))
}

// NewJSONLogger creates a leveled JSON-lines logger writing to w.
func NewJSONLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, handlerOptions(level)))
}

func handlerOptions(level string) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
}

// Package logging provides structured logging configuration and utilities.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LevelDisabled suppresses every record.
const LevelDisabled = slog.Level(100)

// Config holds logging configuration.
type Config struct {
	Level   string
	Pretty  bool
	NoColor bool
	// Output defaults to stderr so stdout stays reserved for probe results.
	Output io.Writer
}

// NewLogger builds a slog logger. Records are encoded as JSON using zerolog's
// field names, and rendered through zerolog.ConsoleWriter when Pretty is set.
func NewLogger(cfg Config) *slog.Logger {
	var output = cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			NoColor:    cfg.NoColor,
			TimeFormat: time.RFC3339,
		}
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level:       ParseLevel(cfg.Level),
		ReplaceAttr: zerologFields,
	})
	return slog.New(handler)
}

// ParseLevel maps a zerolog level name onto a slog level. Unknown or empty
// names fall back to info.
func ParseLevel(name string) slog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return slog.LevelInfo
	}

	switch level {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		return slog.LevelDebug
	case zerolog.WarnLevel:
		return slog.LevelWarn
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return slog.LevelError
	case zerolog.Disabled:
		return LevelDisabled
	default:
		return slog.LevelInfo
	}
}

// zerologFields renames slog's top-level keys so ConsoleWriter can render them.
func zerologFields(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}

	switch a.Key {
	case slog.MessageKey:
		a.Key = zerolog.MessageFieldName
	case slog.LevelKey:
		a.Key = zerolog.LevelFieldName
		if level, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(levelName(level))
		}
	case slog.TimeKey:
		a.Key = zerolog.TimestampFieldName
	}
	return a
}

func levelName(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return zerolog.LevelDebugValue
	case level < slog.LevelWarn:
		return zerolog.LevelInfoValue
	case level < slog.LevelError:
		return zerolog.LevelWarnValue
	default:
		return zerolog.LevelErrorValue
	}
}

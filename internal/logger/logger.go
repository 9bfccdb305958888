// Package logger configures the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogConfig controls level and output format.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	Output io.Writer
}

var base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger()

// DefaultConfig is the fallback when the configured level or format is
// rejected by Setup.
func DefaultConfig() LogConfig {
	return LogConfig{Level: "info", Format: "console"}
}

// Setup replaces the base logger. It must be called before any component
// logger is derived.
func Setup(cfg LogConfig) error {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	switch strings.ToLower(cfg.Format) {
	case "json":
	case "", "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	default:
		return fmt.Errorf("invalid log format %q", cfg.Format)
	}

	base = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return nil
}

// WithComponent returns a child logger tagged with the component name.
func WithComponent(name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// Nop returns a logger that discards everything; used by tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

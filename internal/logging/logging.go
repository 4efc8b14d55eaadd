// Package logging provides the structured logger threaded through every
// engine subsystem. There is no package-level singleton: callers construct
// a logger with New and pass it explicitly to the component that needs it.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level mirrors zerolog's levels without leaking the dependency into callers
// that only want to set a level from configuration.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how New builds a logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// New builds a component-scoped logger. Pass the same Config to every
// subsystem at startup and differentiate with WithComponent.
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		return zerolog.New(output).Level(level).With().Timestamp().Logger()
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).Level(level).With().Timestamp().Logger()
}

// WithComponent tags a child logger with a component name, e.g. "wal" or
// "lockmgr", so multiplexed output stays attributable.
func WithComponent(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}

// Nop returns a logger that discards everything, for tests and for callers
// that do not want logging wired up.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// Package logging builds the structured logger shared by every Grimoire component.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/grimoire/internal/config"
)

// Options holds logger configuration.
type Options struct {
	Level  string // debug, info, warn, error
	Pretty bool   // console output for terminals
	Output io.Writer
}

// FromConfig maps the config file's log keys onto Options.
// Logs always go to stderr: stdout carries CLI JSON and the MCP protocol.
func FromConfig(cfg *config.Config) Options {
	return Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	}
}

// ParseLevel maps a config level name to a zerolog level. Unknown names are info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// New creates a structured logger tagged with service=grimoire.
func New(opts Options) zerolog.Logger {
	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	if opts.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(output).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Str("service", "grimoire").
		Logger()
}

// Component returns a child logger for one subsystem.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

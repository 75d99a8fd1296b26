// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string    // debug, info, warn, error
	Format     string    // json, console
	TimeFormat string    // RFC3339, Unix, etc.
	Output     io.Writer // defaults to os.Stderr
}

// DefaultConfig returns the CLI logging defaults. Diagnostics go to stderr so
// stdout only carries translation progress.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		TimeFormat: time.RFC3339,
		Output:     os.Stderr,
	}
}

// Init initializes the global zerolog logger and returns it.
func Init(cfg Config) zerolog.Logger {
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(out).
		With().
		Timestamp().
		Logger()
	return log.Logger
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithSession returns a logger with session context.
func WithSession(sessionId, targetLanguage string) zerolog.Logger {
	return log.With().
		Str("sessionId", sessionId).
		Str("targetLanguage", targetLanguage).
		Logger()
}

// WithProvider returns a logger tagged with the speech provider.
func WithProvider(sessionId, provider string) zerolog.Logger {
	return log.With().
		Str("sessionId", sessionId).
		Str("sttProvider", provider).
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// Package logger provides leveled structured logging.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var base = zerolog.Nop()

// Init initializes the default logger with the specified level and format.
// Format "text" writes human-readable console lines, anything else JSON.
func Init(level string, format string) {
	InitWithWriter(level, format, os.Stderr)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(level string, format string, out io.Writer) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if strings.ToLower(format) == "text" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	base = zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// WithComponent returns a structured logger tagged with a component field.
func WithComponent(component string) zerolog.Logger {
	return base.With().Str("component", component).Caller().Logger()
}

func Debug(format string, args ...interface{}) {
	base.Debug().Msgf(format, args...)
}

func Info(format string, args ...interface{}) {
	base.Info().Msgf(format, args...)
}

func Warn(format string, args ...interface{}) {
	base.Warn().Msgf(format, args...)
}

func Error(format string, args ...interface{}) {
	base.Error().Msgf(format, args...)
}

func Fatal(format string, args ...interface{}) {
	base.WithLevel(zerolog.FatalLevel).Msgf(format, args...)
	os.Exit(1)
}

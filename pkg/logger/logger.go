// Package logger provides the structured logger used across the service.
// It is a thin wrapper over zerolog so services can carry contextual fields
// without depending on the logging backend directly.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger emits structured log records for one component.
type Logger struct {
	zl zerolog.Logger
}

// New creates a logger for the named component writing to w.
func New(w io.Writer, component string, level zerolog.Level) *Logger {
	zl := zerolog.New(w).Level(level).With().
		Timestamp().
		Str("component", component).
		Logger()
	return &Logger{zl: zl}
}

// NewDefault creates a logger for the named component writing to stderr.
// The level is taken from LOG_LEVEL when set, defaulting to info.
func NewDefault(component string) *Logger {
	return New(os.Stderr, component, levelFromEnv())
}

func levelFromEnv() zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithField returns a logger that includes the given field on every record.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithError returns a logger that includes the given error on every record.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().AnErr("error", err).Logger()}
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

// Package logging provides the structured logger every component takes as
// a constructor dependency instead of reaching for a global.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with the console-writer setup used across the
// process, plus a Component field every child carries.
type Logger struct {
	zlog zerolog.Logger
}

// New creates the root logger for a named component.
func New(component string) *Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}

	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("component", component).
		Logger()

	return &Logger{zlog: zlog}
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event { return l.zlog.Info() }

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event { return l.zlog.Warn() }

// Fatal returns a fatal level event.
func (l *Logger) Fatal() *zerolog.Event { return l.zlog.Fatal() }

// With returns a builder for deriving a child logger with extra context,
// e.g. logger.With().Str("task_id", id).Logger() wrapped back via WithLogger.
func (l *Logger) With() zerolog.Context { return l.zlog.With() }

// WithLogger wraps a zerolog.Context built from With() back into a *Logger,
// the way per-task-id and per-component child loggers are derived.
func WithLogger(ctx zerolog.Context) *Logger {
	return &Logger{zlog: ctx.Logger()}
}

// SetGlobalLevel sets the process-wide minimum log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Package logger wraps zerolog with the small set of helpers the scheduler
// needs: a process-wide logger configured once at startup, plus
// component-scoped child loggers for contexts and routines.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	// A usable default so tests and library consumers that never call Init
	// still get structured output instead of a silently discarded logger.
	Init("info", true)
}

// Init (re)configures the package-wide logger. level is parsed with
// zerolog.ParseLevel; an invalid level falls back to info. pretty selects
// the human-readable console writer over newline-delimited JSON.
func Init(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var output io.Writer = os.Stderr
	if pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}

	log = zerolog.New(output).
		With().
		Timestamp().
		Logger()
}

// Get returns the process-wide logger.
func Get() *zerolog.Logger {
	return &log
}

// WithComponent scopes the logger to a named component (e.g. "scheduler").
func WithComponent(component string) *zerolog.Logger {
	l := log.With().Str("component", component).Logger()
	return &l
}

// WithContext scopes the logger to one worker context by index.
func WithContext(contextID int) *zerolog.Logger {
	l := log.With().Int("context_id", contextID).Logger()
	return &l
}

// WithRoutine scopes the logger to one routine id.
func WithRoutine(routineID uint64) *zerolog.Logger {
	l := log.With().Uint64("routine_id", routineID).Logger()
	return &l
}

func Debug() *zerolog.Event { return log.Debug() }
func Info() *zerolog.Event  { return log.Info() }
func Warn() *zerolog.Event  { return log.Warn() }
func Error() *zerolog.Event { return log.Error() }

// Package logging centralizes zerolog setup so every worker reports through
// the same structured sink instead of ad hoc fmt.Println calls.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Init configures the global zerolog logger. Call once from cmd/shipos.
func Init(debug bool, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.DefaultContextLogger = &logger
	logger = zerolog.New(out).With().Timestamp().Logger()
}

var logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// For returns a component-scoped child logger, e.g. For("planner").
func For(component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// Package wlog provides the process-wide structured logger. Every daemon
// initializes it once at startup; other packages obtain component-scoped
// loggers from For at the point of use.
package wlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the root logger. Init replaces it; until then it writes to
// stderr at info level so packages that log before Init still produce
// output.
var Logger = zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()

// Init configures the root logger's destination and minimum level. debug
// enables debug-level output. Health handlers use Quiet (below) to avoid
// filling logs with liveness-probe noise (spec: "Logging suppressed on
// health handlers").
func Init(w io.Writer, debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// For returns a sub-logger tagged with the owning component/subsystem so
// every line it emits carries a "subsystem" field, per the one-structured-
// line-per-event convention.
func For(component string) zerolog.Logger {
	return Logger.With().Str("subsystem", component).Logger()
}

// Quiet returns a logger that drops everything below Error, used by HTTP
// health handlers so routine liveness polling never reaches the log.
func Quiet(component string) zerolog.Logger {
	return Logger.Level(zerolog.ErrorLevel).With().Str("subsystem", component).Logger()
}

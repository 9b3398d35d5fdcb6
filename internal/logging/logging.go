// Package logging configures the process-wide zerolog logger and hands out
// per-component sub-loggers, the way the teacher's main() configures
// log.Logger once and every package logs through the global.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global logger. Set pretty to true for a human-readable
// console writer (interactive use); false emits structured JSON (production
// / service use).
func Init(level string, pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	var w io.Writer = os.Stderr
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// For returns a sub-logger tagged with the owning component's name, mirroring
// the teacher's log.WithFields(log.Fields{...}) call sites but structured as
// a standing sub-logger instead of a per-call field set.
func For(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

package gokv

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger returns a zerolog.Logger writing human-readable, colored
// output to stderr when stderr is a terminal, and compact JSON
// otherwise (e.g. when piped into a log collector).
func NewLogger() zerolog.Logger {
	var w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	if fi, err := os.Stderr.Stat(); err != nil || (fi.Mode()&os.ModeCharDevice) == 0 {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

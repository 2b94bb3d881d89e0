// Package slalog configures the zerolog logger used by the cmd/sla CLI,
// mirroring the level/writer setup pattern the
// corpus's CLI tools use (structured, leveled, console-friendly by
// default).
package slalog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a zerolog.Logger writing human-readable console output to
// w, at the given level.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}

	return zerolog.New(console).Level(level).With().Timestamp().Logger()
}

// Default returns a logger writing to stderr at the Info level, suitable
// for the CLI's default invocation.
func Default() zerolog.Logger {
	return New(os.Stderr, zerolog.InfoLevel)
}

// Discard returns a logger that drops every event.
func Discard() zerolog.Logger {
	return zerolog.New(io.Discard)
}

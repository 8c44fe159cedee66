// Package build holds the small pieces of process-wide plumbing every
// subsystem logger in this module is built from: a fan-out io.Writer
// that tees log output to both the log rotator and stdout, and a
// constructor that turns a backend's logger factory into one
// subsystem's slog.Logger at a sane default level.
package build

import (
	"io"
	"os"

	"github.com/decred/slog"
)

// LogWriter muxes log output between the rotating log file and stdout.
// Its RotatorPipe is nil until the embedding daemon calls its log
// rotator initializer; until then, output only reaches stdout.
type LogWriter struct {
	RotatorPipe *io.PipeWriter
}

// Write implements io.Writer, satisfying slog.NewBackend's requirement.
func (w *LogWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if w.RotatorPipe != nil {
		return w.RotatorPipe.Write(p)
	}
	return len(p), nil
}

// NewSubLogger builds one subsystem's logger from a backend's Logger
// factory method, defaulting its level to Info.
func NewSubLogger(tag string, root func(string) slog.Logger) slog.Logger {
	logger := root(tag)
	logger.SetLevel(slog.LevelInfo)
	return logger
}

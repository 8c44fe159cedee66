package hsmd

import "github.com/decred/slog"

// log is this package's subsystem logger, wired up by the embedding
// daemon via UseLogger the same way every dcrlnd subsystem is.
var log = slog.Disabled

// UseLogger sets the package-wide logger. This should be called before
// this package performs any logging.
func UseLogger(logger slog.Logger) {
	log = logger
}

package sphinxreply

import "github.com/decred/slog"

// log is the package-wide logger. No function in this package writes to
// it: CreateReply, WrapReply and Unwrap are pure and stateless and report
// malformed replies only through their returned errors. UseLogger is
// kept so the package is wired the same way as every other subsystem.
var log = slog.Disabled

// UseLogger sets the package-wide logger. This should be called before
// this package performs any logging, normally accomplished by importing
// the main package early, which does the logger initialization for the
// entire dependency tree.
func UseLogger(logger slog.Logger) {
	log = logger
}

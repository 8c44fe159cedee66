// Package cryptocore wires together the three hard-engineering cores —
// the Sphinx reply pipeline, the HSM seed store and dispatcher, and the
// SCB engine — behind a shared logging backend.
package cryptocore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
	"github.com/lnsphinx/cryptocore/build"
	"github.com/lnsphinx/cryptocore/chanbackup"
	"github.com/lnsphinx/cryptocore/hsmd"
	"github.com/lnsphinx/cryptocore/sphinxreply"
)

// Loggers per subsystem. A single backend logger is created and every
// subsystem logger is built from it. Loggers must not be used before
// InitLogRotator has pointed logWriter at a real log file.
var (
	logWriter = &build.LogWriter{}

	// backendLog is the logging backend every subsystem logger is
	// built from.
	backendLog = slog.NewBackend(logWriter)

	// logRotator is closed on application shutdown.
	logRotator *rotator.Rotator

	cryLog  = build.NewSubLogger("CRYP", backendLog.Logger)
	sphxLog = build.NewSubLogger("SPHX", backendLog.Logger)
	hsmdLog = build.NewSubLogger("HSMD", backendLog.Logger)
	chbuLog = build.NewSubLogger("CHBU", backendLog.Logger)
)

func init() {
	sphinxreply.UseLogger(sphxLog)
	hsmd.UseLogger(hsmdLog)
	chanbackup.UseLogger(chbuLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]slog.Logger{
	"CRYP": cryLog,
	"SPHX": sphxLog,
	"HSMD": hsmdLog,
	"CHBU": chbuLog,
}

// InitLogRotator initializes the logging rotator to write logs to logFile and
// create roll files in the same directory.  It must be called before any
// subsystem logger is used.
func InitLogRotator(logFile string, maxLogFileSize, maxLogFiles int) {
	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		os.Exit(1)
	}
	r, err := rotator.New(logFile, int64(maxLogFileSize*1024), false, maxLogFiles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %v\n", err)
		os.Exit(1)
	}

	pr, pw := io.Pipe()
	go r.Run(pr)

	logWriter.RotatorPipe = pw
	logRotator = r
}

// SetLogLevel sets the logging level for provided subsystem.  Invalid
// subsystems are ignored.
func SetLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	// Defaults to info if the log level is invalid.
	level, _ := slog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the log level for all subsystem loggers to the passed
// level.
func SetLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		SetLogLevel(subsystemID, logLevel)
	}
}

// logClosure is used to provide a closure over expensive logging operations so
// don't have to be performed when the logging level doesn't warrant it.
type logClosure func() string

// String invokes the underlying function and returns the result.
func (c logClosure) String() string {
	return c()
}

// newLogClosure returns a new closure over a function that returns a string
// which itself provides a Stringer interface so that it can be used with the
// logging system.
func newLogClosure(c func() string) logClosure {
	return logClosure(c)
}

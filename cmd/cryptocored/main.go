// Command cryptocored is the process entrypoint wiring the seed store,
// HSM dispatcher, and SCB engine together over a Unix domain socket
// master connection.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/lnsphinx/cryptocore"
	"github.com/lnsphinx/cryptocore/hsmd"
)

// Process exit codes, mirroring the core's own termination taxonomy: 0
// on clean shutdown, 1 on a user-visible setup error (including a
// passphrase mismatch on seed decrypt), 2 when the master session
// disconnects, anything else on an internal, unclassified error.
const (
	exitOK                 = 0
	exitSetupError         = 1
	exitMasterDisconnected = 2
	exitInternalError      = 3
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cryptocored: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor classifies a fatal error from run into the process exit
// code the embedding supervisor is expected to observe.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, hsmd.ErrSeedDecryptFailed):
		return exitSetupError
	case errors.Is(err, hsmd.ErrMasterDisconnected):
		return exitMasterDisconnected
	case errors.Is(err, errSetup):
		return exitSetupError
	default:
		return exitInternalError
	}
}

// errSetup marks a pre-flight configuration error (bad flags, an
// unusable socket path) as the same "user-visible setup error" class
// spec assigns exit code 1 to, distinct from the internal-assertion
// catch-all exitInternalError reserves for anything unclassified.
var errSetup = errors.New("cryptocored: setup error")

func run() error {
	var (
		dataDir    = flag.String("datadir", defaultDataDir(), "directory for hsm_secret and emergency.recover")
		network    = flag.String("network", "mainnet", "chain network name")
		logLevel   = flag.String("loglevel", "info", "logging level for every subsystem")
		socketPath = flag.String("rpclisten", "", "unix socket path the master HSM client connects to")
	)
	flag.Parse()

	if *socketPath == "" {
		return fmt.Errorf("%w: -rpclisten is required", errSetup)
	}

	passphrase := os.Getenv("CRYPTOCORE_HSM_PASSPHRASE")

	os.Remove(*socketPath)
	lis, err := net.Listen("unix", *socketPath)
	if err != nil {
		return fmt.Errorf("%w: listen on %s: %v", errSetup, *socketPath, err)
	}
	defer lis.Close()

	d := cryptocore.New(cryptocore.Config{
		DataDir:        *dataDir,
		Passphrase:     passphrase,
		Network:        *network,
		LogLevel:       *logLevel,
		MaxLogFileSize: 10,
		MaxLogFiles:    3,
		MasterListener: lis,
		Backend:        noopBackend{},
	})

	return cryptocore.RunUntilSignal(d)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cryptocore"
	}
	return home + "/.cryptocore"
}

// noopBackend is a placeholder hsmd.SigningBackend: real deployments
// supply one that actually signs. This core's scope ends at routing
// the request to a backend, not performing the signing math itself.
type noopBackend struct{}

func (noopBackend) Handle(ctx context.Context, msgType hsmd.MessageType, dbID uint64, chain *hsmd.ChainParams, body []byte) ([]byte, error) {
	return nil, &hsmd.StatusError{Code: hsmd.StatusInternalError, Msg: "no signing backend configured"}
}

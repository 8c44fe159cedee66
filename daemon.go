package cryptocore

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/lnsphinx/cryptocore/chanbackup"
	"github.com/lnsphinx/cryptocore/hsmd"
)

// Config gathers the handful of knobs the daemon entrypoint needs: where
// to persist the seed and SCB file, what passphrase (if any) protects
// the seed, which network it serves, and how verbosely to log.
type Config struct {
	DataDir        string
	Passphrase     string
	Network        string
	LogLevel       string
	MaxLogFileSize int
	MaxLogFiles    int

	// MasterListener accepts the master connection (the first one
	// accepted) and up to two further infrastructure connections; any
	// later connection is closed. cmd/cryptocored and the integration
	// test both pass a listener bound to a Unix domain socket,
	// mirroring spec §4.3's "supervising master" relationship.
	MasterListener net.Listener

	// Backend performs the cryptographic work MsgInit/MsgClientHSMFD
	// do not cover. See hsmd.SigningBackend.
	Backend hsmd.SigningBackend
}

// Daemon owns the seed store, the SCB store, and the HSM dispatcher for
// one running process.
type Daemon struct {
	cfg        Config
	chain      *hsmd.ChainParams
	SeedStore  *hsmd.SeedStore
	SCBStore   *chanbackup.Store
	Dispatcher *hsmd.Dispatcher
	PeerStore  *chanbackup.PeerStore
}

// New creates a Daemon rooted at cfg.DataDir. It does not touch the
// network or the filesystem beyond what NewSeedStore/NewStore require
// (none); call Run to actually bring it up.
func New(cfg Config) *Daemon {
	seedStore := hsmd.NewSeedStore(cfg.DataDir)
	chain := &hsmd.ChainParams{Net: cfg.Network}

	return &Daemon{
		cfg:        cfg,
		chain:      chain,
		SeedStore:  seedStore,
		SCBStore:   chanbackup.NewStore(cfg.DataDir, seedStore),
		Dispatcher: hsmd.NewDispatcher(seedStore, chain, cfg.Backend),
		PeerStore:  chanbackup.NewPeerStore(),
	}
}

// Run creates the data directory, initializes logging, cleans up any
// stale SCB temp file left by a prior crash, and serves master
// connections from cfg.MasterListener until ctx is canceled or a master
// session reports a fatal disconnect (spec §5's "master disconnect is
// the daemon's disconnect" rule, surfaced here as a returned error
// instead of an immediate os.Exit so callers can control shutdown).
func (d *Daemon) Run(ctx context.Context) error {
	if err := os.MkdirAll(d.cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("cryptocore: create data dir: %w", err)
	}

	InitLogRotator(
		filepath.Join(d.cfg.DataDir, "cryptocore.log"),
		d.cfg.MaxLogFileSize, d.cfg.MaxLogFiles,
	)
	SetLogLevels(d.cfg.LogLevel)

	if err := d.SCBStore.CleanupStaleTemp(); err != nil {
		cryLog.Warnf("failed to clean up stale scb.tmp: %v", err)
	}

	cryLog.Infof("%v", newLogClosure(func() string {
		return fmt.Sprintf("starting cryptocore daemon: data_dir=%s network=%s",
			d.cfg.DataDir, d.cfg.Network)
	}))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	slot := 0

	go func() {
		for {
			conn, err := d.cfg.MasterListener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
				default:
					errCh <- fmt.Errorf("cryptocore: accept master connection: %w", err)
				}
				return
			}

			mySlot := slot
			slot++
			if mySlot > 2 {
				conn.Close()
				continue
			}

			caps := hsmd.MasterCapabilities
			if mySlot != 0 {
				// Only the master at slot 0 holds CapMaster.
				caps &^= hsmd.CapMaster
			}
			sess := &hsmd.Session{
				Caps:        caps,
				ChainParams: d.chain,
				Conn:        conn,
			}
			if err := d.Dispatcher.Sessions().PutMasterSlot(mySlot, sess); err != nil {
				conn.Close()
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				err := d.Dispatcher.ServeSession(ctx, sess, mySlot)
				if mySlot == 0 && err != nil {
					errCh <- err
				}
			}()
		}
	}()

	select {
	case <-ctx.Done():
		wg.Wait()
		return ctx.Err()
	case err := <-errCh:
		cancel()
		wg.Wait()
		return err
	}
}

// RunUntilSignal is the process-level convenience wrapper Main would
// call: it runs the daemon until SIGINT/SIGTERM or a fatal master
// disconnect, then returns whichever happened first.
func RunUntilSignal(d *Daemon) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := d.Run(ctx)
	d.SeedStore.Close()
	cryLog.Infof("shutdown complete")
	return err
}

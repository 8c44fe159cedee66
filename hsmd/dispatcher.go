package hsmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrMasterDisconnected is returned by ServeSession when the true master
// session (slot 0) loses its connection. The embedding process is
// expected to treat this as fatal: flush logs and exit with status 2,
// mirroring spec §5's "the master's disconnect is the daemon's
// disconnect" termination rule. Sessions at the two additional
// infrastructure slots, and ordinary per-peer client sessions, do not
// produce this error on disconnect — ServeSession simply returns nil and
// the caller tears the session down.
var ErrMasterDisconnected = errors.New("hsmd: master session disconnected")

// SigningBackend performs the actual cryptographic work behind every
// request type this dispatcher does not handle itself (MsgInit and
// MsgClientHSMFD): ECDH, gossip signing, commitment signing,
// per-commitment point derivation, invoice signing, and the dev-only
// memleak probe. The dispatcher treats it as an opaque black box, per
// spec §5: it forwards the request body verbatim alongside the
// session's db_id and chain params, and relays the reply verbatim.
type SigningBackend interface {
	Handle(ctx context.Context, msgType MessageType, dbID uint64, chain *ChainParams, body []byte) ([]byte, error)
}

// Dispatcher is the single logical owner of the seed store, the session
// table, and the one-at-a-time pending-descriptor staging slot used to
// hand new client sessions' file descriptors back to the master. Spec §5
// describes this as a single-threaded, cooperative event loop; this
// module reaches the same externally observable guarantee — in-order
// replies within a session, no ordering promise across sessions — with a
// goroutine per session instead, since nothing in this core's contract
// depends on there being only one OS thread.
type Dispatcher struct {
	store    *SeedStore
	sessions *SessionTable
	chain    *ChainParams
	backend  SigningBackend

	mu        sync.Mutex
	pendingFD *os.File
}

// NewDispatcher returns a Dispatcher over store, serving requests other
// than MsgInit/MsgClientHSMFD to backend. chain is the network handle
// every session borrows; NewDispatcher does not take ownership of it
// beyond storing the pointer.
func NewDispatcher(store *SeedStore, chain *ChainParams, backend SigningBackend) *Dispatcher {
	return &Dispatcher{
		store:    store,
		sessions: NewSessionTable(),
		chain:    chain,
		backend:  backend,
	}
}

// Sessions returns the dispatcher's session table, for registering the
// master session and inspecting live clients.
func (d *Dispatcher) Sessions() *SessionTable {
	return d.sessions
}

// ServeSession runs sess's request/reply loop until its connection
// closes, ctx is canceled, or a malformed frame is read. masterSlot is
// the db_id == 0 array index sess occupies (0 for the true master, 1 or
// 2 for the additional infrastructure sessions spec §3 allows), or -1
// for an ordinary nonzero-db_id client session. ServeSession removes
// sess from whichever part of the session table it was registered in
// before returning.
func (d *Dispatcher) ServeSession(ctx context.Context, sess *Session, masterSlot int) error {
	defer func() {
		if masterSlot >= 0 {
			d.sessions.RemoveMasterSlot(masterSlot, sess)
		} else {
			d.sessions.Remove(sess.DBID, sess)
		}
		sess.Conn.Close()
	}()

	// Closing the connection on cancellation unblocks a pending read.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			sess.Conn.Close()
		case <-stop:
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgType, body, err := ReadMessage(sess.Conn)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if masterSlot == 0 {
				return ErrMasterDisconnected
			}
			return nil
		}

		if !msgType.Permits(sess.Caps) {
			log.Warnf("session db_id=%d issued type %d without the required capability", sess.DBID, msgType)
			if err := WriteStatus(sess.Conn, &StatusError{
				Code: StatusBadRequest,
				Msg:  "request type not permitted for this session's capabilities",
			}); err != nil {
				return err
			}
			return closeAfterBadRequest(masterSlot)
		}

		reply, handlerErr := d.dispatch(ctx, sess, msgType, body)
		if handlerErr != nil {
			// A wrong-passphrase seed decrypt is a user-visible setup
			// error, not an ordinary bad request: it is reported to
			// the master and then surfaced unwrapped so the embedding
			// process can exit 1 without a stack trace, instead of
			// just closing this one session.
			if errors.Is(handlerErr, ErrSeedDecryptFailed) {
				log.Errorf("fatal: %v", handlerErr)
				_ = WriteStatus(sess.Conn, &StatusError{
					Code: StatusInternalError,
					Msg:  handlerErr.Error(),
				})
				return handlerErr
			}

			var statusErr *StatusError
			if errors.As(handlerErr, &statusErr) {
				if err := WriteStatus(sess.Conn, statusErr); err != nil {
					return err
				}
				return closeAfterBadRequest(masterSlot)
			}
			if err := WriteStatus(sess.Conn, &StatusError{
				Code: StatusInternalError,
				Msg:  handlerErr.Error(),
			}); err != nil {
				return err
			}
			return closeAfterBadRequest(masterSlot)
		}

		if err := WriteMessage(sess.Conn, replyTypeFor(msgType), reply); err != nil {
			return err
		}

		if msgType == MsgClientHSMFD {
			if err := d.sendPendingFD(sess.Conn); err != nil {
				log.Errorf("failed to hand off client hsmfd: %v", err)
			}
		}
	}
}

// closeAfterBadRequest reports the error ServeSession should return
// after writing a bad-request (or other non-fatal) status and closing
// the session that triggered it. An ordinary session simply closes: its
// caller returns nil and the defer in ServeSession removes it from the
// table. The master session holds no such luxury — spec's "master
// session bad request escalates to fatal" rule means closing it must be
// treated exactly like the master disconnecting outright, so this
// reuses ErrMasterDisconnected rather than inventing a second fatal
// sentinel for the same externally observable outcome.
func closeAfterBadRequest(masterSlot int) error {
	if masterSlot == 0 {
		return ErrMasterDisconnected
	}
	return nil
}

// dispatch routes one request to its handler. MsgInit and MsgClientHSMFD
// are handled in-package since they manipulate the seed store and
// session table directly; every other type is forwarded to the
// configured SigningBackend.
func (d *Dispatcher) dispatch(ctx context.Context, sess *Session, msgType MessageType, body []byte) ([]byte, error) {
	switch msgType {
	case MsgInit:
		return d.handleInit(sess, body)
	case MsgClientHSMFD:
		return d.handleClientHSMFD(sess, body)
	case MsgDevMemleak:
		if !devBuildEnabled {
			return nil, &StatusError{
				Code: StatusBadRequest,
				Msg:  "dev request types require the devrpc build tag",
			}
		}
		fallthrough
	default:
		if d.backend == nil {
			return nil, &StatusError{Code: StatusInternalError, Msg: "no signing backend configured"}
		}
		return d.backend.Handle(ctx, msgType, sess.DBID, sess.ChainParams, body)
	}
}

// handleInit creates the seed file if absent, loads it under the
// supplied passphrase (transparently upgrading a plaintext file to
// encrypted form if one was given), records the chosen network on the
// shared ChainParams, and replies with the node's extended public key.
func (d *Dispatcher) handleInit(sess *Session, body []byte) ([]byte, error) {
	req, err := decodeInitRequest(body)
	if err != nil {
		return nil, &StatusError{Code: StatusBadRequest, Msg: err.Error()}
	}
	defer zero([]byte(req.Passphrase))

	if err := d.store.MaybeCreateNew(req.Passphrase); err != nil {
		return nil, fmt.Errorf("hsmd: init: %w", err)
	}
	if err := d.store.Load(req.Passphrase); err != nil {
		if errors.Is(err, ErrPassphraseRequired) {
			return nil, &StatusError{Code: StatusBadRequest, Msg: err.Error()}
		}
		if errors.Is(err, ErrSeedDecryptFailed) {
			// Propagated unwrapped (not as a StatusError): ServeSession
			// special-cases this into the process-fatal, exit-1 path
			// spec reserves for a passphrase mismatch, rather than an
			// ordinary bad-request reply that leaves the session open.
			return nil, err
		}
		return nil, fmt.Errorf("hsmd: init: %w", err)
	}

	d.chain.Net = req.Network

	return d.store.ExtendedPublicKey(), nil
}

// handleClientHSMFD creates a connected socket pair, registers a new
// Session wrapping one end under the requested db_id and capabilities,
// stages the other end for ancillary-message handoff, and replies with
// an empty body. The caller (ServeSession) sends the staged descriptor
// over sess's connection immediately after writing that reply; master
// serializes its own requests one at a time, so at most one descriptor
// is ever staged concurrently.
func (d *Dispatcher) handleClientHSMFD(sess *Session, body []byte) ([]byte, error) {
	req, err := decodeClientHSMFDRequest(body)
	if err != nil {
		return nil, &StatusError{Code: StatusBadRequest, Msg: err.Error()}
	}
	if req.DBID == 0 {
		return nil, &StatusError{Code: StatusBadRequest, Msg: "client sessions must have a nonzero db_id"}
	}

	masterFD, clientFD, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("hsmd: create client hsmfd socketpair: %w", err)
	}

	clientFile := os.NewFile(uintptr(clientFD), "hsmfd-client")
	clientConn, err := net.FileConn(clientFile)
	clientFile.Close()
	if err != nil {
		unix.Close(masterFD)
		return nil, fmt.Errorf("hsmd: wrap client hsmfd: %w", err)
	}

	newSess := &Session{
		NodeID:      req.NodeID,
		DBID:        req.DBID,
		Caps:        req.Caps,
		ChainParams: sess.ChainParams,
		Conn:        clientConn,
	}
	d.sessions.Add(newSess)

	d.mu.Lock()
	if d.pendingFD != nil {
		// The master is expected to serialize its own requests; a
		// second pending descriptor means it issued overlapping
		// CLIENT_HSMFD requests. Close the stale one rather than
		// leak it.
		d.pendingFD.Close()
	}
	d.pendingFD = os.NewFile(uintptr(masterFD), "hsmfd-master-side")
	d.mu.Unlock()

	return nil, nil
}

// sendPendingFD transmits the staged master-side descriptor to conn via
// an SCM_RIGHTS ancillary message. conn must be the master's connection;
// it is only ever invoked immediately after replying to the
// CLIENT_HSMFD request that staged the descriptor.
func (d *Dispatcher) sendPendingFD(conn net.Conn) error {
	d.mu.Lock()
	fd := d.pendingFD
	d.pendingFD = nil
	d.mu.Unlock()

	if fd == nil {
		return errors.New("hsmd: no descriptor staged for handoff")
	}
	defer fd.Close()

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return errors.New("hsmd: master session connection is not a unix socket")
	}

	rights := unix.UnixRights(int(fd.Fd()))
	_, _, err := unixConn.WriteMsgUnix(nil, rights, nil)
	return err
}

// replyTypeFor maps a request's MessageType to its reply's MessageType.
func replyTypeFor(t MessageType) MessageType {
	switch t {
	case MsgInit:
		return MsgInitReply
	case MsgClientHSMFD:
		return MsgClientHSMFDReply
	case MsgECDH:
		return MsgECDHReply
	case MsgSignGossipMessage:
		return MsgSignGossipMessageReply
	case MsgSignCommitmentTx:
		return MsgSignCommitmentTxReply
	case MsgSignPerCommitmentPoint:
		return MsgSignPerCommitmentPointReply
	case MsgSignInvoice:
		return MsgSignInvoiceReply
	case MsgDevMemleak:
		return MsgDevMemleakReply
	default:
		return MsgStatusReply
	}
}

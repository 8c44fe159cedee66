package hsmd

import (
	"io"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v2"
)

// masterSlotCount is the size of the fixed array backing db_id == 0
// sessions: the master itself plus the at-most-two additional
// infrastructure sessions spec §3 allows to share that sentinel id.
const masterSlotCount = 3

// ChainParams is the handle sessions borrow (never copy) from the
// dispatcher; its fields describe the network this dispatcher is
// running against. Signing/ECDH handlers outside this core's scope
// consume it, but this module treats it as opaque beyond its name.
type ChainParams struct {
	Net string
}

// Session is one authenticated client connection: either the master, a
// small number of additional infrastructure connections (db_id 0), or a
// per-channel client (nonzero db_id).
type Session struct {
	// NodeID is the remote peer's node identity, when this session
	// represents a per-peer client rather than an infrastructure
	// connection.
	NodeID *secp256k1.PublicKey

	// DBID is the session's database-assigned identifier. Zero is the
	// sentinel reserved for the master and its fixed infrastructure
	// siblings; any other value must be unique across live sessions.
	DBID uint64

	// Caps is the capability bitmask this session was granted at
	// creation time.
	Caps Capability

	// ChainParams is borrowed from the dispatcher; sessions never own
	// or copy it.
	ChainParams *ChainParams

	// Conn is the session's I/O connection. Closing it tears the
	// session down.
	Conn io.ReadWriteCloser
}

// SessionTable is the dispatcher's exclusively-owned set of live
// sessions: a small fixed array for the db_id == 0 sentinel slots, and a
// map enforcing db_id uniqueness for everything else.
type SessionTable struct {
	mu          sync.Mutex
	masterSlots [masterSlotCount]*Session
	byDBID      map[uint64]*Session
}

// NewSessionTable returns an empty SessionTable.
func NewSessionTable() *SessionTable {
	return &SessionTable{byDBID: make(map[uint64]*Session)}
}

// ErrInvalidMasterSlot is returned by PutMasterSlot for an out-of-range
// slot index.
type ErrInvalidMasterSlot struct{ Slot int }

func (e *ErrInvalidMasterSlot) Error() string {
	return "hsmd: invalid master slot index"
}

// PutMasterSlot installs sess at the given db_id == 0 infrastructure
// slot (0 is the master itself; 1 and 2 are the additional
// infrastructure sessions spec §3 allows). Any incumbent at that slot
// has its connection closed first, mirroring the nonzero-db_id case's
// "incumbent closed before insert" rule.
func (t *SessionTable) PutMasterSlot(slot int, sess *Session) error {
	if slot < 0 || slot >= masterSlotCount {
		return &ErrInvalidMasterSlot{Slot: slot}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if incumbent := t.masterSlots[slot]; incumbent != nil && incumbent != sess {
		incumbent.Conn.Close()
	}
	t.masterSlots[slot] = sess
	return nil
}

// MasterSlot returns the session installed at the given slot, if any.
func (t *SessionTable) MasterSlot(slot int) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if slot < 0 || slot >= masterSlotCount {
		return nil, false
	}
	sess := t.masterSlots[slot]
	return sess, sess != nil
}

// RemoveMasterSlot clears the given slot if it currently holds sess.
func (t *SessionTable) RemoveMasterSlot(slot int, sess *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if slot < 0 || slot >= masterSlotCount {
		return
	}
	if t.masterSlots[slot] == sess {
		t.masterSlots[slot] = nil
	}
}

// Add installs sess under its nonzero db_id, closing and evicting any
// incumbent session already registered under that id.
func (t *SessionTable) Add(sess *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if incumbent, ok := t.byDBID[sess.DBID]; ok && incumbent != sess {
		incumbent.Conn.Close()
	}
	t.byDBID[sess.DBID] = sess
}

// Remove deletes the session registered under dbID, if it is still sess
// (a session replaced by a newer one with the same db_id must not
// remove the newer session's entry when its own destructor runs).
func (t *SessionTable) Remove(dbID uint64, sess *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if incumbent, ok := t.byDBID[dbID]; ok && incumbent == sess {
		delete(t.byDBID, dbID)
	}
}

// Get returns the session registered under dbID, if any.
func (t *SessionTable) Get(dbID uint64) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, ok := t.byDBID[dbID]
	return sess, ok
}

// Len returns the number of nonzero-db_id sessions currently live, for
// tests and diagnostics.
func (t *SessionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byDBID)
}

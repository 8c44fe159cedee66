package chanbackup

import (
	"errors"
	"sync"
)

// ErrPeerStorageAuthFail is returned when a peer's YOUR_PEER_STORAGE
// reply fails to authenticate under the local SCB key. Per spec §7,
// this is "debug-log only; never surfaced" to the caller as a fatal
// condition — the handler logs and discards, it does not propagate a
// crash-worthy error up the stack.
var ErrPeerStorageAuthFail = errors.New("chanbackup: peer-returned storage failed authentication")

// NodeID is a peer's compressed public key, used as the PeerStore's key.
type NodeID [33]byte

// PeerStore holds the opaque PEER_STORAGE bytes peers have asked this
// node to hold for them, keyed directly by node id. Spec §9's open
// question about double-namespacing under "chanbackup" is resolved in
// favor of this flatter scheme: this package already is the sole owner
// of this keyspace, so an extra namespace level buys nothing.
type PeerStore struct {
	mu   sync.RWMutex
	data map[NodeID][]byte
}

// NewPeerStore returns an empty PeerStore.
func NewPeerStore() *PeerStore {
	return &PeerStore{data: make(map[NodeID][]byte)}
}

// HandlePeerStorage records payload as the PEER_STORAGE bytes most
// recently received from peer. It is never decrypted or inspected: it
// is the peer's data, kept on their behalf.
func (p *PeerStore) HandlePeerStorage(peer NodeID, payload []byte) {
	stored := append([]byte(nil), payload...)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[peer] = stored
}

// Get returns the most recently stored PEER_STORAGE bytes for peer.
func (p *PeerStore) Get(peer NodeID) ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.data[peer]
	return b, ok
}

// HandleYourPeerStorage decrypts a YOUR_PEER_STORAGE payload — bytes a
// peer is returning that this node previously handed them — under the
// local SCB key. On authentication failure it logs and returns
// ErrPeerStorageAuthFail; callers must not write the result to the
// local datastore in that case, since an attacker-modified return must
// never reach local state.
func HandleYourPeerStorage(kd KeyDeriver, payload []byte) (*Multi, error) {
	m, err := Decrypt(kd, payload)
	if err != nil {
		log.Debugf("Peer altered our data")
		return nil, ErrPeerStorageAuthFail
	}
	return m, nil
}

package hsmd

// Capability is a bitmask of request classes a client session is
// authorized to issue. Exactly one session — the master — holds
// CapMaster, and only that session may issue MsgInit and
// MsgClientHSMFD.
type Capability uint32

const (
	// CapMaster authorizes the privileged, singleton master session:
	// initialization and descriptor-pair creation for new client
	// sessions.
	CapMaster Capability = 1 << iota

	// CapSignGossip authorizes signing of gossip messages (channel
	// announcements/updates) on the node's behalf.
	CapSignGossip

	// CapECDH authorizes ECDH requests, used for onion-packet shared
	// secret derivation and similar.
	CapECDH

	// CapSignCommitment authorizes signing of commitment and HTLC
	// transactions for a specific channel.
	CapSignCommitment

	// CapInvoice authorizes signing of invoices (node-identity
	// signatures over BOLT11-style payment requests).
	CapInvoice

	// CapDev authorizes development-only request types. Requests
	// gated on CapDev are further gated on the devrpc build tag: with
	// that tag absent, they always resolve to BadRequest regardless
	// of capability bits.
	CapDev
)

// MasterCapabilities is the capability mask granted to the master
// session (slot 0 of the db_id == 0 sessions). The additional
// infrastructure sessions at slots 1 and 2, which share db_id 0, are
// granted this mask without CapMaster.
const MasterCapabilities = CapMaster | CapSignGossip | CapECDH

// required maps each request type to the capability bits a session must
// hold, in full, to issue it. A session may hold bits beyond what is
// required; it may never be missing any required bit.
var required = map[MessageType]Capability{
	MsgInit:                  CapMaster,
	MsgClientHSMFD:           CapMaster,
	MsgECDH:                  CapECDH,
	MsgSignGossipMessage:     CapSignGossip,
	MsgSignCommitmentTx:      CapSignCommitment,
	MsgSignPerCommitmentPoint: CapSignCommitment,
	MsgSignInvoice:           CapInvoice,
	MsgDevMemleak:            CapDev,
}

// Permits reports whether mask carries every capability bit t requires.
// An unrecognized message type is never permitted, whatever the mask;
// this is how ServeSession rejects unknown types with BadRequest.
func (t MessageType) Permits(mask Capability) bool {
	need, ok := required[t]
	if !ok {
		return false
	}
	return need&mask == need
}

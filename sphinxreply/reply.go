// Package sphinxreply implements the reply half of the Sphinx
// onion-routing construction: wrapping, unwrapping, and authenticating
// failure messages returned hop-by-hop along a previously built payment
// route. It is the counterpart to the forward-path packet construction
// (out of scope here, see decred/lightning-onion for that half) and is
// pure and stateless — every operation is a function of its arguments
// alone.
package sphinxreply

import (
	"crypto/subtle"
	"encoding/binary"
	"errors"

	"github.com/lnsphinx/cryptocore/lncrypto"
)

// ReplyLen is the fixed wire size of an onion reply packet: a 32-byte
// HMAC prefix followed by a 132-byte inner block (2-byte payload length,
// payload, 2-byte padding length, zero padding). This matches the canonical five-hop test
// vectors in reply_vectors_test.go; a deployment free to choose its own
// hop-payload budget would replace this constant, but every wrap/unwrap
// along one reply must agree on it.
const ReplyLen = 164

// hmacLen is the width of the prefix MAC.
const hmacLen = 32

// innerLen is the width of the cleartext block the MAC covers.
const innerLen = ReplyLen - hmacLen

// MaxPayloadLen is the largest raw payload create_reply can embed: the
// inner block minus its 2-byte payload length and 2-byte padding length.
const MaxPayloadLen = innerLen - 4

// ErrPayloadTooLarge is returned by CreateReply when the caller's payload
// does not fit in the fixed-size inner block.
var ErrPayloadTooLarge = errors.New("sphinxreply: payload exceeds inner block capacity")

// ErrMalformedReply is returned by Unwrap when no shared secret in the
// chain authenticates the packet, or when an authenticated packet's
// embedded length field is out of range. Per spec, a malformed reply is
// an ordinary, expected outcome — a HTLC failure whose origin cannot be
// attributed — and is returned to the caller as an error, never panicked.
var ErrMalformedReply = errors.New("sphinxreply: no shared secret authenticates this reply")

// umLabel and ammagLabel are the fixed HMAC labels used to derive,
// respectively, the MAC key and the stream-cipher key from a hop's
// shared secret.
const (
	umLabel    = "um"
	ammagLabel = "ammag"
)

// CreateReply builds the initial onion reply packet at the failing hop.
// lastSharedSecret is the shared secret the failing hop itself holds
// (i.e. the last secret in the forward path's derivation order); payload
// is the raw, unencrypted failure message. The returned packet is always
// exactly ReplyLen bytes and is not yet obfuscated: the failing hop then
// applies WrapReply with its own shared secret, like every later hop.
func CreateReply(lastSharedSecret [32]byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, ErrPayloadTooLarge
	}

	inner := make([]byte, innerLen)
	binary.BigEndian.PutUint16(inner[:2], uint16(len(payload)))
	copy(inner[2:], payload)
	binary.BigEndian.PutUint16(inner[2+len(payload):], uint16(MaxPayloadLen-len(payload)))

	um := lncrypto.HMAC256Label(lastSharedSecret, umLabel)
	mac := lncrypto.HMAC256(um[:], inner)

	packet := make([]byte, ReplyLen)
	copy(packet[:hmacLen], mac[:])
	copy(packet[hmacLen:], inner)

	return packet, nil
}

// WrapReply applies one hop's obfuscation layer to packet on the return
// path. XOR under a ChaCha20 keystream is self-inverse, so every
// forwarding node — including the one that later unwraps the full
// chain — applies exactly this operation. The returned packet has the
// same length as the input.
func WrapReply(hopSharedSecret [32]byte, packet []byte) ([]byte, error) {
	out := make([]byte, len(packet))
	ammag := lncrypto.HMAC256Label(hopSharedSecret, ammagLabel)
	if err := lncrypto.XorChaCha20(out, packet, ammag, lncrypto.ZeroNonce12); err != nil {
		return nil, err
	}
	return out, nil
}

// Unwrap walks chain in forward-path order, peeling one obfuscation layer
// per hop and testing the embedded MAC after each peel. The first hop
// whose MAC verifies is the reply's origin; its index and the extracted
// payload are returned. If no hop's MAC verifies, Unwrap returns
// ErrMalformedReply.
//
// Every MAC comparison is constant-time; a single iteration of the loop
// performs the same work (one XOR pass, one HMAC, one compare) regardless
// of whether an earlier hop already matched, so the only caller-visible
// timing signal is which iteration returned, which is inherent to the
// protocol (the origin hop is identified by its position in the route) and
// not a side channel on secret key material.
func Unwrap(chain [][32]byte, packet []byte) (int, []byte, error) {
	if len(packet) != ReplyLen {
		return 0, nil, ErrMalformedReply
	}

	working := append([]byte(nil), packet...)

	for i, secret := range chain {
		wrapped, err := WrapReply(secret, working)
		if err != nil {
			return 0, nil, err
		}
		working = wrapped

		um := lncrypto.HMAC256Label(secret, umLabel)
		expected := lncrypto.HMAC256(um[:], working[hmacLen:])

		if subtle.ConstantTimeCompare(expected[:], working[:hmacLen]) == 1 {
			payload, ok := extractPayload(working[hmacLen:])
			if !ok {
				return 0, nil, ErrMalformedReply
			}
			return i, payload, nil
		}
	}

	return 0, nil, ErrMalformedReply
}

// extractPayload reads the leading big-endian u16 length from inner and
// slices the payload out, bounds-checking the length against the
// remaining buffer.
func extractPayload(inner []byte) ([]byte, bool) {
	if len(inner) < 2 {
		return nil, false
	}

	length := int(binary.BigEndian.Uint16(inner[:2]))
	if length > len(inner)-2 {
		return nil, false
	}

	payload := make([]byte, length)
	copy(payload, inner[2:2+length])
	return payload, true
}

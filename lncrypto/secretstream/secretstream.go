// Package secretstream implements the libsodium-equivalent authenticated
// stream cipher construction referenced throughout the Sphinx/HSM/SCB
// core: XChaCha20-Poly1305 keyed by a 32-byte secret, framed the way
// libsodium's crypto_secretstream_xchacha20poly1305 API frames it — a
// random 24-byte header produced by InitPush, followed by one or more
// Push calls each producing ciphertext plus a 16-byte Poly1305 tag, with
// a per-message "final" flag folded into the authenticated associated
// data so a truncated stream is detectable.
//
// Both the encrypted hsm_secret blob and the SCB file/peer-exchange
// format use exactly one Push call per message: HEADER ‖ CT ‖ TAG.
package secretstream

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// HeaderLen is the width of the random header InitPush emits and InitPull
// consumes, in bytes.
const HeaderLen = chacha20poly1305.NonceSizeX

// TagLen is the width of the Poly1305 authenticator appended to every
// Push output.
const TagLen = chacha20poly1305.Overhead

// Tag identifies whether a pushed message is a regular message or the
// last message in the stream, mirroring libsodium's
// crypto_secretstream_xchacha20poly1305_TAG_* constants.
type Tag byte

const (
	// TagMessage marks an ordinary message; more pushes may follow.
	TagMessage Tag = 0
	// TagFinal marks the last message in the stream.
	TagFinal Tag = 1
)

// ErrAuthFailed is returned by Pull when the ciphertext fails to
// authenticate: either the key is wrong or the bytes were tampered with
// in transit or at rest.
var ErrAuthFailed = errors.New("secretstream: message authentication failed")

type aead interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// PushState is a one-directional encryption stream bound to a single key
// and header. Each Push call advances an internal message counter that is
// mixed into the nonce so that reordering or dropping messages changes
// what the receiver must supply to Pull.
type PushState struct {
	aead   aead
	header [HeaderLen]byte
	seqNo  uint32
}

// PullState is the decryption-side counterpart of PushState.
type PullState struct {
	aead   aead
	header [HeaderLen]byte
	seqNo  uint32
}

// InitPush begins a new encryption stream under key, generating a fresh
// random header. The header must be sent ahead of the first Push output
// so the receiver can InitPull with it.
func InitPush(key [32]byte) (*PushState, [HeaderLen]byte, error) {
	a, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, [HeaderLen]byte{}, err
	}

	var header [HeaderLen]byte
	if _, err := io.ReadFull(rand.Reader, header[:]); err != nil {
		return nil, [HeaderLen]byte{}, err
	}

	return &PushState{aead: a, header: header}, header, nil
}

// Push encrypts plaintext under ad (additional authenticated data, may be
// nil) and tag, returning ciphertext ‖ tag per libsodium framing.
func (s *PushState) Push(plaintext, ad []byte, tag Tag) []byte {
	nonce := messageNonce(s.header, s.seqNo)
	out := s.aead.Seal(nil, nonce[:], plaintext, tagAD(ad, tag))
	s.seqNo++
	return out
}

// InitPull begins a decryption stream under key using the header produced
// by the sender's InitPush.
func InitPull(key [32]byte, header [HeaderLen]byte) (*PullState, error) {
	a, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}

	return &PullState{aead: a, header: header}, nil
}

// Pull decrypts and authenticates one message produced by the matching
// PushState, under the same tag the sender used. It returns
// ErrAuthFailed on any tampering, including a tag mismatch.
func (s *PullState) Pull(ciphertext, ad []byte, tag Tag) ([]byte, error) {
	nonce := messageNonce(s.header, s.seqNo)
	plain, err := s.aead.Open(nil, nonce[:], ciphertext, tagAD(ad, tag))
	if err != nil {
		return nil, ErrAuthFailed
	}
	s.seqNo++

	return plain, nil
}

// messageNonce derives the per-message XChaCha20 nonce by folding the
// big-endian sequence number into the low bytes of the stream header, so
// that every Push in a stream uses a distinct nonce under the same key.
func messageNonce(header [HeaderLen]byte, seqNo uint32) [HeaderLen]byte {
	nonce := header
	nonce[HeaderLen-4] ^= byte(seqNo >> 24)
	nonce[HeaderLen-3] ^= byte(seqNo >> 16)
	nonce[HeaderLen-2] ^= byte(seqNo >> 8)
	nonce[HeaderLen-1] ^= byte(seqNo)
	return nonce
}

// tagAD folds the message tag into the associated data so a substituted
// tag (e.g. swapping TagFinal for TagMessage to hide a truncated stream)
// fails authentication rather than silently succeeding.
func tagAD(ad []byte, tag Tag) []byte {
	out := make([]byte, len(ad)+1)
	copy(out, ad)
	out[len(ad)] = byte(tag)
	return out
}

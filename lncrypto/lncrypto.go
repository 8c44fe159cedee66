// Package lncrypto is a thin, side-effect-free facade over the primitives
// shared by the Sphinx reply pipeline, the HSM seed store and dispatcher,
// and the SCB engine: SHA-256, HMAC-SHA-256, and ChaCha20 keystream
// generation. The authenticated secret-stream construction lives in
// lncrypto/secretstream, the passphrase KDF in lncrypto/kdf, and the
// memory-locking primitive in lncrypto/memguard.
package lncrypto

import (
	"crypto/hmac"
	"crypto/sha256"

	"golang.org/x/crypto/chacha20"
)

// KeySize is the width, in bytes, of every key and secret this package
// operates on: shared secrets, HMAC keys, and ChaCha20 keys are all 32
// bytes.
const KeySize = 32

// Sha256 returns the SHA-256 digest of data.
func Sha256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// HMAC256 computes HMAC-SHA-256 over data under key.
func HMAC256(key, data []byte) [32]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)

	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// HMAC256Label computes HMAC-SHA-256 of a 32-byte shared secret, using a
// fixed ASCII label as the HMAC key. This is the "um"/"ammag"
// key-derivation used throughout the Sphinx reply pipeline: um =
// HMAC(key="um", secret), ammag = HMAC(key="ammag", secret).
func HMAC256Label(secret [32]byte, label string) [32]byte {
	return HMAC256([]byte(label), secret[:])
}

// ChaChaKeystream returns length bytes of ChaCha20 keystream generated
// under key and nonce. The caller is responsible for choosing a nonce
// that is never reused under the same key for data that must remain
// confidential; the Sphinx reply pipeline always uses the all-zero nonce,
// which is safe there because every key is itself single-use (derived
// fresh per hop via HMAC256Label).
func ChaChaKeystream(key [32]byte, nonce []byte, length int) ([]byte, error) {
	cipher, err := chacha20.NewUnauthenticatedCipher(key[:], nonce)
	if err != nil {
		return nil, err
	}

	out := make([]byte, length)
	cipher.XORKeyStream(out, out)
	return out, nil
}

// XorChaCha20 XORs src with the ChaCha20 keystream under key/nonce and
// writes the result to dst. dst and src may be the same slice.
func XorChaCha20(dst, src []byte, key [32]byte, nonce []byte) error {
	cipher, err := chacha20.NewUnauthenticatedCipher(key[:], nonce)
	if err != nil {
		return err
	}
	cipher.XORKeyStream(dst, src)
	return nil
}

// ZeroNonce12 is the all-zero 12-byte ChaCha20 nonce used by the Sphinx
// reply pipeline: every key it XORs under is itself a one-time subkey
// derived via HMAC, so nonce reuse across distinct keys is not a concern.
var ZeroNonce12 = make([]byte, chacha20.NonceSize)

// Package kdf derives a 32-byte symmetric key from a user passphrase and a
// salt using Argon2id, the memory-hard password hash recommended for this
// purpose in preference to a fast general-purpose hash. The caller
// chooses the salt: NewSalt returns a random one, while the seed store
// passes its own fixed salt. Cost parameters are fixed rather than
// configurable: the encrypted seed blob must remain decryptable by any
// build of this module.
package kdf

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/argon2"
)

// SaltLen is the width, in bytes, of the salt Derive takes.
const SaltLen = 16

// KeyLen is the width, in bytes, of the derived key.
const KeyLen = 32

// Cost parameters for Argon2id. These match the "interactive" profile
// recommended for password-unlock-on-startup use: low enough to complete
// in well under a second, high enough to make offline guessing
// expensive relative to a bare SHA-256 hash.
const (
	timeCost    = 3
	memoryCostX = 64 * 1024 // 64 MiB
	threads     = 4
)

// NewSalt returns a fresh random salt suitable for Derive.
func NewSalt() ([SaltLen]byte, error) {
	var salt [SaltLen]byte
	_, err := io.ReadFull(rand.Reader, salt[:])
	return salt, err
}

// Derive computes a 32-byte key from passphrase and salt via Argon2id.
func Derive(passphrase string, salt [SaltLen]byte) [KeyLen]byte {
	raw := argon2.IDKey(
		[]byte(passphrase), salt[:], timeCost, memoryCostX, threads,
		KeyLen,
	)

	var key [KeyLen]byte
	copy(key[:], raw)
	return key
}

// Package hsmd implements the seed store and dispatcher half of the HSM
// core: owning the 32-byte root secret on disk and in locked memory, and
// routing capability-gated, length-prefixed requests from privileged
// client sessions to their handlers.
package hsmd

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/decred/dcrd/dcrec/secp256k1/v2"
	"github.com/lnsphinx/cryptocore/lncrypto"
	"github.com/lnsphinx/cryptocore/lncrypto/kdf"
	"github.com/lnsphinx/cryptocore/lncrypto/memguard"
	"github.com/lnsphinx/cryptocore/lncrypto/secretstream"
)

// SeedFileName is the name of the on-disk seed file, relative to the
// store's data directory.
const SeedFileName = "hsm_secret"

// SeedLen is the width, in bytes, of the root seed.
const SeedLen = 32

// HeaderLen, TagLen mirror the secretstream framing constants; they are
// re-exported here so callers computing expected file sizes do not need
// to import lncrypto/secretstream directly.
const (
	HeaderLen = secretstream.HeaderLen
	TagLen    = secretstream.TagLen
)

// EncryptedSeedLen is the exact length of the encrypted on-disk seed
// blob: HEADER_LEN + 32 + TAG_LEN.
const EncryptedSeedLen = HeaderLen + SeedLen + TagLen

// encryptionKeySalt is a fixed, non-secret salt used to derive the
// passphrase encryption key via Argon2id. It is not randomized and not
// stored because the on-disk encrypted blob's length is fixed at exactly
// HEADER_LEN + 32 + TAG_LEN with no room for a per-file salt; domain
// separation against other Argon2id uses in this module comes from this
// constant alone, not from randomness.
var encryptionKeySalt = [kdf.SaltLen]byte{
	'h', 's', 'm', '-', 's', 'e', 'e', 'd',
	'-', 'e', 'n', 'c', 'r', 'y', 'p', 't',
}

// Errors returned by SeedStore. CorruptSeedFile and SeedDecryptFailed map
// directly to the error taxonomy in spec §7.
var (
	// ErrCorruptSeedFile is returned by Load when the on-disk file's
	// length matches neither the plaintext nor the encrypted seed
	// size.
	ErrCorruptSeedFile = errors.New("hsmd: hsm_secret file has an invalid length")

	// ErrSeedDecryptFailed is returned by Load when an encrypted seed
	// blob fails to authenticate under the supplied passphrase. The
	// overwhelmingly likely cause is a typo; callers at the process
	// boundary should exit 1 without a backtrace rather than
	// propagate this as an internal error.
	ErrSeedDecryptFailed = errors.New("hsmd: wrong passphrase for hsm_secret")

	// ErrPassphraseRequired is returned by Load when the on-disk file
	// is the encrypted form but the caller supplied no passphrase.
	ErrPassphraseRequired = errors.New("hsmd: hsm_secret is encrypted but no passphrase was given")
)

// SeedStore owns the root secret on disk and in locked memory for the
// lifetime of the process.
type SeedStore struct {
	path string
	seed *memguard.LockedBytes
}

// NewSeedStore returns a SeedStore rooted at dataDir. It does not touch
// the filesystem; call MaybeCreateNew followed by Load (or just Load, if
// the file is known to exist already) to populate it.
func NewSeedStore(dataDir string) *SeedStore {
	return &SeedStore{path: filepath.Join(dataDir, SeedFileName)}
}

// MaybeCreateNew attempts to create the seed file if it does not already
// exist. If the file exists, MaybeCreateNew returns nil without altering
// it or touching the in-memory seed (the caller is expected to follow up
// with Load). If created, the new seed is filled from crypto/rand,
// written under the chosen representation (plaintext, or encrypted if
// passphrase is non-empty), and both the file and its containing
// directory are fsynced before return so the write is crash-atomic.
func (s *SeedStore) MaybeCreateNew(passphrase string) error {
	fd, err := os.OpenFile(s.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0400)
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("hsmd: create hsm_secret: %w", err)
	}

	seed, err := memguard.New(SeedLen)
	if err != nil {
		fd.Close()
		s.cleanupPartial()
		return err
	}
	if _, err := io.ReadFull(rand.Reader, seed.Bytes()); err != nil {
		fd.Close()
		seed.Free()
		s.cleanupPartial()
		return fmt.Errorf("hsmd: generate seed entropy: %w", err)
	}

	var onDisk []byte
	if passphrase == "" {
		onDisk = seed.Bytes()
	} else {
		encrypted, err := encryptSeed(seed.Bytes(), passphrase)
		if err != nil {
			fd.Close()
			seed.Free()
			s.cleanupPartial()
			return err
		}
		onDisk = encrypted
	}

	if _, err := fd.Write(onDisk); err != nil {
		fd.Close()
		seed.Free()
		s.cleanupPartial()
		return fmt.Errorf("hsmd: write hsm_secret: %w", err)
	}
	if err := fd.Sync(); err != nil {
		fd.Close()
		seed.Free()
		s.cleanupPartial()
		return fmt.Errorf("hsmd: fsync hsm_secret: %w", err)
	}
	if err := fd.Close(); err != nil {
		seed.Free()
		s.cleanupPartial()
		return fmt.Errorf("hsmd: close hsm_secret: %w", err)
	}

	if err := fsyncDir(filepath.Dir(s.path)); err != nil {
		seed.Free()
		s.cleanupPartial()
		return fmt.Errorf("hsmd: fsync hsm_secret directory: %w", err)
	}

	log.Infof("created new %s seed file", map[bool]string{true: "encrypted", false: "plaintext"}[passphrase != ""])

	s.seed = seed
	return nil
}

// cleanupPartial unlinks a partially-written seed file. Best-effort: an
// unlink failure here is not itself fatal, the caller already has a more
// specific error to report.
func (s *SeedStore) cleanupPartial() {
	_ = os.Remove(s.path)
}

// Load opens the seed file, dispatches on its length, and populates the
// in-memory locked seed buffer. On a successful plaintext load when
// passphrase is non-empty, Load performs the upgrade path: it re-encrypts
// the seed, removes the plaintext file, and writes the encrypted form in
// its place, fsyncing the new file and its directory. The remove and the
// write are two separate steps, not one atomic rename.
func (s *SeedStore) Load(passphrase string) error {
	fd, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("hsmd: open hsm_secret: %w", err)
	}
	defer fd.Close()

	info, err := fd.Stat()
	if err != nil {
		return fmt.Errorf("hsmd: stat hsm_secret: %w", err)
	}

	raw := make([]byte, info.Size())
	if _, err := io.ReadFull(fd, raw); err != nil {
		return fmt.Errorf("hsmd: read hsm_secret: %w", err)
	}

	switch len(raw) {
	case SeedLen:
		seed, err := memguard.New(SeedLen)
		if err != nil {
			return err
		}
		copy(seed.Bytes(), raw)
		s.seed = seed

		if passphrase != "" {
			if err := s.upgradeToEncrypted(passphrase); err != nil {
				return err
			}
		}
		return nil

	case EncryptedSeedLen:
		if passphrase == "" {
			return ErrPassphraseRequired
		}

		plain, err := decryptSeed(raw, passphrase)
		if err != nil {
			return ErrSeedDecryptFailed
		}

		seed, err := memguard.New(SeedLen)
		if err != nil {
			return err
		}
		copy(seed.Bytes(), plain)
		s.seed = seed
		return nil

	default:
		return ErrCorruptSeedFile
	}
}

// upgradeToEncrypted re-writes a plaintext seed file as an encrypted one,
// used when Load finds a plaintext file but the caller supplied a
// passphrase.
func (s *SeedStore) upgradeToEncrypted(passphrase string) error {
	encrypted, err := encryptSeed(s.seed.Bytes(), passphrase)
	if err != nil {
		return err
	}

	if err := os.Remove(s.path); err != nil {
		return fmt.Errorf("hsmd: remove plaintext hsm_secret: %w", err)
	}

	fd, err := os.OpenFile(s.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0400)
	if err != nil {
		return fmt.Errorf("hsmd: recreate hsm_secret: %w", err)
	}
	if _, err := fd.Write(encrypted); err != nil {
		fd.Close()
		s.cleanupPartial()
		return fmt.Errorf("hsmd: write encrypted hsm_secret: %w", err)
	}
	if err := fd.Sync(); err != nil {
		fd.Close()
		s.cleanupPartial()
		return fmt.Errorf("hsmd: fsync encrypted hsm_secret: %w", err)
	}
	if err := fd.Close(); err != nil {
		s.cleanupPartial()
		return err
	}

	return fsyncDir(filepath.Dir(s.path))
}

// encryptSeed produces the HEADER ‖ CT ‖ TAG encoding of a 32-byte seed
// under a key derived from passphrase.
func encryptSeed(seed []byte, passphrase string) ([]byte, error) {
	key := kdf.Derive(passphrase, encryptionKeySalt)
	defer zero(key[:])

	push, header, err := secretstream.InitPush(key)
	if err != nil {
		return nil, err
	}
	ct := push.Push(seed, nil, secretstream.TagFinal)

	out := make([]byte, 0, HeaderLen+len(ct))
	out = append(out, header[:]...)
	out = append(out, ct...)
	return out, nil
}

// decryptSeed inverts encryptSeed, returning ErrSeedDecryptFailed on any
// authentication failure.
func decryptSeed(blob []byte, passphrase string) ([]byte, error) {
	if len(blob) != EncryptedSeedLen {
		return nil, ErrCorruptSeedFile
	}

	var header [secretstream.HeaderLen]byte
	copy(header[:], blob[:HeaderLen])
	ct := blob[HeaderLen:]

	key := kdf.Derive(passphrase, encryptionKeySalt)
	defer zero(key[:])

	pull, err := secretstream.InitPull(key, header)
	if err != nil {
		return nil, err
	}

	plain, err := pull.Pull(ct, nil, secretstream.TagFinal)
	if err != nil {
		return nil, ErrSeedDecryptFailed
	}
	return plain, nil
}

// DeriveSharedSecret computes a 32-byte secret from the root seed and a
// fixed label, the "makesecret" operation other subsystems (most notably
// the SCB engine, label "scb secret") use to derive their own key
// material without ever touching the root seed directly.
func (s *SeedStore) DeriveSharedSecret(label string) [32]byte {
	return lncrypto.HMAC256(s.seed.Bytes(), []byte(label))
}

// NodeIdentityKeyPair derives this node's identity keypair from the root
// seed. The derivation is a fixed HMAC expansion rather than a full
// BIP32 tree: this module does not implement on-chain key derivation
// (out of scope per spec §1), but the dispatcher's INIT reply needs a
// real, deterministic keypair to hand back rather than a stub.
func (s *SeedStore) NodeIdentityKeyPair() (*secp256k1.PrivateKey, *secp256k1.PublicKey) {
	expansion := lncrypto.HMAC256(s.seed.Bytes(), []byte("nodeid"))
	priv, pub := secp256k1.PrivKeyFromBytes(expansion[:])
	return priv, pub
}

// ExtendedPublicKey returns the serialized, compressed public key
// corresponding to NodeIdentityKeyPair. Spec §4.3 calls this the
// "BIP32-equivalent extended public key" returned in the INIT reply.
func (s *SeedStore) ExtendedPublicKey() []byte {
	_, pub := s.NodeIdentityKeyPair()
	return pub.SerializeCompressed()
}

// Seed returns the raw 32-byte root secret. Callers must not retain the
// returned slice past the SeedStore's lifetime; it aliases locked memory
// owned by the store.
func (s *SeedStore) Seed() []byte {
	return s.seed.Bytes()
}

// Close zeroizes and unlocks the in-memory seed. It must be called
// exactly once, at process exit.
func (s *SeedStore) Close() {
	if s.seed != nil {
		s.seed.Free()
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

package chanbackup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileName is the on-disk name of the local encrypted SCB file.
const FileName = "emergency.recover"

// tmpFileName is the sibling temporary file AtomicWrite stages its
// write through before the crash-atomic rename, per spec §4.4 "Atomic
// write".
const tmpFileName = "scb.tmp"

// Store owns the on-disk encrypted SCB file for one data directory.
type Store struct {
	dir string
	kd  KeyDeriver
}

// NewStore returns a Store rooted at dataDir, deriving its encryption
// key from kd.
func NewStore(dataDir string, kd KeyDeriver) *Store {
	return &Store{dir: dataDir, kd: kd}
}

func (s *Store) path() string    { return filepath.Join(s.dir, FileName) }
func (s *Store) tmpPath() string { return filepath.Join(s.dir, tmpFileName) }

// CleanupStaleTemp removes a leftover scb.tmp from a prior crash during
// AtomicWrite. It must be called once at startup, before the first
// AtomicWrite call. A missing tmp file is not an error.
func (s *Store) CleanupStaleTemp() error {
	err := os.Remove(s.tmpPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// AtomicWrite serializes and encrypts m, then replaces the local SCB
// file with the result: write the sibling temp file, fsync it, fsync
// the directory, then rename over the target path. A crash at any point
// before the rename leaves the previous complete file in place; a crash
// after leaves the new complete file in place — never a truncated one.
func (s *Store) AtomicWrite(m *Multi) error {
	blob, err := Encrypt(s.kd, m)
	if err != nil {
		return err
	}

	tmp := s.tmpPath()
	fd, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0400)
	if err != nil {
		return fmt.Errorf("chanbackup: create %s: %w", tmp, err)
	}

	if _, err := fd.Write(blob); err != nil {
		fd.Close()
		os.Remove(tmp)
		return fmt.Errorf("chanbackup: write %s: %w", tmp, err)
	}
	if err := fd.Sync(); err != nil {
		fd.Close()
		os.Remove(tmp)
		return fmt.Errorf("chanbackup: fsync %s: %w", tmp, err)
	}
	if err := fd.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("chanbackup: close %s: %w", tmp, err)
	}

	if err := fsyncDir(s.dir); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, s.path()); err != nil {
		return fmt.Errorf("chanbackup: rename %s over %s: %w", tmp, s.path(), err)
	}

	return fsyncDir(s.dir)
}

// Load reads, decrypts, and deserializes the local SCB file.
func (s *Store) Load() (*Multi, error) {
	fd, err := os.Open(s.path())
	if err != nil {
		return nil, fmt.Errorf("chanbackup: open %s: %w", s.path(), err)
	}
	defer fd.Close()

	blob, err := io.ReadAll(fd)
	if err != nil {
		return nil, fmt.Errorf("chanbackup: read %s: %w", s.path(), err)
	}

	return Decrypt(s.kd, blob)
}

// RawBlob reads and returns the local SCB file's raw encrypted
// contents, for handing to a peer in a PEER_STORAGE envelope without
// decrypting it first.
func (s *Store) RawBlob() ([]byte, error) {
	return os.ReadFile(s.path())
}

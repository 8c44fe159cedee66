// Package memguard provides a minimal memory-locking primitive for the
// long-lived secrets named throughout the Sphinx/HSM/SCB core: the root
// seed, the passphrase-derived key, and the SCB key must stay resident in
// non-swappable, non-core-dumpable memory from allocation to zeroization
// (spec §5 "Memory locking").
//
// There is no portable way to pin a Go slice's backing array in place —
// the garbage collector may relocate it — so LockedBytes allocates its
// buffer with an anonymous mmap rather than make(), which keeps the
// buffer off the moving heap, and then Mlocks it. The package is built
// on golang.org/x/sys/unix only; it has no fallback for non-Unix
// platforms.
package memguard

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// LockedBytes is a fixed-size byte buffer resident in locked memory for
// its entire lifetime. Callers must call Free exactly once when the
// secret is no longer needed; Free zeroizes the buffer before releasing
// the lock.
type LockedBytes struct {
	buf    []byte
	locked bool
	freed  bool
}

// New allocates a zeroed, memory-locked buffer of the given size.
func New(size int) (*LockedBytes, error) {
	buf, err := unix.Mmap(
		-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON,
	)
	if err != nil {
		return nil, fmt.Errorf("mmap secret buffer: %w", err)
	}

	lb := &LockedBytes{buf: buf}

	if err := unix.Mlock(buf); err != nil {
		unix.Munmap(buf)
		return nil, fmt.Errorf("mlock secret buffer: %w", err)
	}
	lb.locked = true

	// Best effort: exclude the region from core dumps. Not all
	// platforms support MADV_DONTDUMP; a failure here is not fatal,
	// it only weakens the no-core-dump guarantee.
	_ = unix.Madvise(buf, unix.MADV_DONTDUMP)

	return lb, nil
}

// Bytes returns the locked buffer. The returned slice is only valid until
// Free is called.
func (lb *LockedBytes) Bytes() []byte {
	return lb.buf
}

// Free zeroizes the buffer, unlocks it, and releases the backing mapping.
// Calling Free more than once is a no-op.
func (lb *LockedBytes) Free() {
	if lb.freed {
		return
	}
	lb.freed = true

	for i := range lb.buf {
		lb.buf[i] = 0
	}

	if lb.locked {
		_ = unix.Munlock(lb.buf)
	}
	_ = unix.Munmap(lb.buf)
}

package chanbackup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStoreAtomicWriteAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	kd := &fakeKeyDeriver{root: [32]byte{7}}
	store := NewStore(dir, kd)

	m := threeChannelMulti(time.Unix(1_650_000_000, 0).UTC())
	require.NoError(t, store.AtomicWrite(m))

	info, err := os.Stat(filepath.Join(dir, FileName))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0400), info.Mode().Perm())

	_, err = os.Stat(filepath.Join(dir, tmpFileName))
	require.True(t, os.IsNotExist(err), "temp file must not survive a successful write")

	got, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, m.Timestamp, got.Timestamp)
	require.Equal(t, m.Channels, got.Channels)
}

func TestStoreAtomicWriteReplacesPreviousFile(t *testing.T) {
	dir := t.TempDir()
	kd := &fakeKeyDeriver{root: [32]byte{8}}
	store := NewStore(dir, kd)

	first := threeChannelMulti(time.Unix(1, 0).UTC())
	require.NoError(t, store.AtomicWrite(first))

	second := &Multi{Timestamp: time.Unix(2, 0).UTC(), Channels: first.Channels[:1]}
	require.NoError(t, store.AtomicWrite(second))

	got, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, second.Timestamp, got.Timestamp)
	require.Len(t, got.Channels, 1)
}

func TestStoreCleanupStaleTempRemovesLeftover(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, tmpFileName), []byte("leftover"), 0400))

	store := NewStore(dir, &fakeKeyDeriver{})
	require.NoError(t, store.CleanupStaleTemp())

	_, err := os.Stat(filepath.Join(dir, tmpFileName))
	require.True(t, os.IsNotExist(err))
}

func TestStoreCleanupStaleTempNoopWhenAbsent(t *testing.T) {
	store := NewStore(t.TempDir(), &fakeKeyDeriver{})
	require.NoError(t, store.CleanupStaleTemp())
}

func TestStoreRawBlobReturnsEncryptedBytesVerbatim(t *testing.T) {
	dir := t.TempDir()
	kd := &fakeKeyDeriver{root: [32]byte{4}}
	store := NewStore(dir, kd)

	m := threeChannelMulti(time.Unix(5, 0).UTC())
	require.NoError(t, store.AtomicWrite(m))

	raw, err := store.RawBlob()
	require.NoError(t, err)

	decoded, err := Decrypt(kd, raw)
	require.NoError(t, err)
	require.Equal(t, m.Channels, decoded.Channels)
}

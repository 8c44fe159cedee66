package chanbackup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeerStoreRoundTrip(t *testing.T) {
	store := NewPeerStore()
	var peer NodeID
	peer[0] = 0xAB

	store.HandlePeerStorage(peer, []byte("opaque peer blob"))

	got, ok := store.Get(peer)
	require.True(t, ok)
	require.Equal(t, []byte("opaque peer blob"), got)
}

func TestPeerStoreOverwritesOnRepeatedStorage(t *testing.T) {
	store := NewPeerStore()
	var peer NodeID
	peer[0] = 1

	store.HandlePeerStorage(peer, []byte("first"))
	store.HandlePeerStorage(peer, []byte("second"))

	got, ok := store.Get(peer)
	require.True(t, ok)
	require.Equal(t, []byte("second"), got)
}

func TestPeerStoreUnknownPeer(t *testing.T) {
	store := NewPeerStore()
	var peer NodeID
	_, ok := store.Get(peer)
	require.False(t, ok)
}

func TestHandleYourPeerStorageRoundTrip(t *testing.T) {
	kd := &fakeKeyDeriver{root: [32]byte{6}}
	m := threeChannelMulti(time.Unix(1, 0).UTC())

	blob, err := Encrypt(kd, m)
	require.NoError(t, err)

	got, err := HandleYourPeerStorage(kd, blob)
	require.NoError(t, err)
	require.Equal(t, m.Channels, got.Channels)
}

func TestHandleYourPeerStorageTamperIsSilent(t *testing.T) {
	kd := &fakeKeyDeriver{root: [32]byte{6}}
	m := threeChannelMulti(time.Unix(1, 0).UTC())

	blob, err := Encrypt(kd, m)
	require.NoError(t, err)

	blob[len(blob)-1] ^= 0xFF

	got, err := HandleYourPeerStorage(kd, blob)
	require.ErrorIs(t, err, ErrPeerStorageAuthFail)
	require.Nil(t, got)
}

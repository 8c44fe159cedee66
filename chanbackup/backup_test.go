package chanbackup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func threeChannelMulti(ts time.Time) *Multi {
	return &Multi{
		Timestamp: ts,
		Channels: []ChannelBackup{
			{PeerID: [33]byte{1}, Point: ChannelPoint{TxID: [32]byte{1}, OutputIndex: 0}, ShortChannelID: 111, CapacityAtoms: 1000, IsInitiator: true},
			{PeerID: [33]byte{2}, Point: ChannelPoint{TxID: [32]byte{2}, OutputIndex: 1}, ShortChannelID: 222, CapacityAtoms: 2000, IsInitiator: false},
			{PeerID: [33]byte{3}, Point: ChannelPoint{TxID: [32]byte{3}, OutputIndex: 2}, ShortChannelID: 333, CapacityAtoms: 3000, IsInitiator: true},
		},
	}
}

func TestMultiSerializeDeserializeRoundTrip(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0).UTC()
	m := threeChannelMulti(ts)

	encoded := m.Serialize()
	decoded, err := DeserializeMulti(encoded)
	require.NoError(t, err)

	require.Equal(t, ts, decoded.Timestamp)
	require.Equal(t, m.Channels, decoded.Channels)
}

func TestDeserializeMultiRejectsWrongVersion(t *testing.T) {
	m := threeChannelMulti(time.Unix(1, 0))
	encoded := m.Serialize()
	encoded[7] = 2 // low byte of the big-endian u64 version

	_, err := DeserializeMulti(encoded)
	require.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestDeserializeMultiRejectsTruncatedRecord(t *testing.T) {
	m := threeChannelMulti(time.Unix(1, 0))
	encoded := m.Serialize()

	_, err := DeserializeMulti(encoded[:len(encoded)-10])
	require.ErrorIs(t, err, ErrTruncatedRecord)
}

func TestDeserializeMultiRejectsShortHeader(t *testing.T) {
	_, err := DeserializeMulti([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrTruncatedRecord)
}

func TestMultiEmptyChannelSet(t *testing.T) {
	m := &Multi{Timestamp: time.Unix(42, 0).UTC()}
	encoded := m.Serialize()

	decoded, err := DeserializeMulti(encoded)
	require.NoError(t, err)
	require.Empty(t, decoded.Channels)
	require.Equal(t, m.Timestamp, decoded.Timestamp)
}

// Package chanbackup implements the Static Channel Backup engine: it
// serializes a snapshot of channel-recovery records, encrypts it under a
// key derived from the seed store, writes it atomically, and mirrors
// the encrypted blob with channel counterparties so recovery is
// possible even if the local backup is lost. The engine runs outside
// the HSM dispatcher's process boundary; it never touches the root
// seed directly, only a key the seed store derives for it.
package chanbackup

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// CurrentVersion is the only SCB encoding version this package writes,
// and the only one it accepts on read.
const CurrentVersion uint64 = 1

// ErrIncompatibleVersion is returned by DeserializeMulti when a decoded
// SCB's version field does not match CurrentVersion.
var ErrIncompatibleVersion = errors.New("chanbackup: incompatible scb version")

// ErrTruncatedRecord is returned by DeserializeMulti when the encoded
// byte string ends mid-record.
var ErrTruncatedRecord = errors.New("chanbackup: truncated channel record")

// ChannelPoint identifies the funding transaction backing a channel: its
// txid and the output index within that transaction.
type ChannelPoint struct {
	TxID        [32]byte
	OutputIndex uint32
}

// ChannelBackup is one channel's recovery record: enough for an external
// recovery RPC to locate the channel on chain and re-establish contact
// with its counterparty. This core does not interpret these fields
// beyond serializing and encrypting them; the embedding daemon defines
// what "basic channel params" means for its own recovery RPC.
type ChannelBackup struct {
	// PeerID is the channel counterparty's compressed node public key.
	PeerID [33]byte

	// Point is the channel's funding outpoint.
	Point ChannelPoint

	// ShortChannelID is the packed block-height/tx-index/output-index
	// triple Lightning gossip uses to name the channel, zero if the
	// channel never confirmed on chain.
	ShortChannelID uint64

	// CapacityAtoms is the channel's total capacity, in the chain's
	// smallest unit.
	CapacityAtoms int64

	// IsInitiator records which side opened the channel.
	IsInitiator bool
}

const channelRecordLen = 33 + 32 + 4 + 8 + 8 + 1

func (cb *ChannelBackup) encode() []byte {
	out := make([]byte, channelRecordLen)
	copy(out[0:33], cb.PeerID[:])
	copy(out[33:65], cb.Point.TxID[:])
	binary.BigEndian.PutUint32(out[65:69], cb.Point.OutputIndex)
	binary.BigEndian.PutUint64(out[69:77], cb.ShortChannelID)
	binary.BigEndian.PutUint64(out[77:85], uint64(cb.CapacityAtoms))
	if cb.IsInitiator {
		out[85] = 1
	}
	return out
}

func decodeChannelRecord(b []byte) (ChannelBackup, error) {
	if len(b) < channelRecordLen {
		return ChannelBackup{}, ErrTruncatedRecord
	}
	var cb ChannelBackup
	copy(cb.PeerID[:], b[0:33])
	copy(cb.Point.TxID[:], b[33:65])
	cb.Point.OutputIndex = binary.BigEndian.Uint32(b[65:69])
	cb.ShortChannelID = binary.BigEndian.Uint64(b[69:77])
	cb.CapacityAtoms = int64(binary.BigEndian.Uint64(b[77:85]))
	cb.IsInitiator = b[85] != 0
	return cb, nil
}

// Multi is the full SCB record set: a version tag, a refresh timestamp,
// and the ordered list of channel records, per spec §4.4's "u64 version
// ‖ u32 unix_timestamp ‖ length-prefixed vector" encoding.
type Multi struct {
	Timestamp time.Time
	Channels  []ChannelBackup
}

// Serialize encodes m as version ‖ timestamp ‖ count ‖ records.
func (m *Multi) Serialize() []byte {
	out := make([]byte, 8+4+4, 8+4+4+len(m.Channels)*channelRecordLen)
	binary.BigEndian.PutUint64(out[0:8], CurrentVersion)
	binary.BigEndian.PutUint32(out[8:12], uint32(m.Timestamp.Unix()))
	binary.BigEndian.PutUint32(out[12:16], uint32(len(m.Channels)))
	for _, cb := range m.Channels {
		out = append(out, cb.encode()...)
	}
	return out
}

// DeserializeMulti decodes the encoding Serialize produces, rejecting
// any version other than CurrentVersion.
func DeserializeMulti(data []byte) (*Multi, error) {
	if len(data) < 16 {
		return nil, ErrTruncatedRecord
	}

	version := binary.BigEndian.Uint64(data[0:8])
	if version != CurrentVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, version, CurrentVersion)
	}

	ts := int64(binary.BigEndian.Uint32(data[8:12]))
	count := binary.BigEndian.Uint32(data[12:16])

	rest := data[16:]
	channels := make([]ChannelBackup, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(rest) < channelRecordLen {
			return nil, ErrTruncatedRecord
		}
		cb, err := decodeChannelRecord(rest[:channelRecordLen])
		if err != nil {
			return nil, err
		}
		channels = append(channels, cb)
		rest = rest[channelRecordLen:]
	}

	return &Multi{
		Timestamp: time.Unix(ts, 0).UTC(),
		Channels:  channels,
	}, nil
}

package chanbackup

import (
	"context"
	"fmt"
)

// RecoveryRPC is the external, out-of-scope collaborator Recover
// forwards each channel record to. Its concrete implementation talks to
// the host daemon's on-chain and peer-connection machinery — neither of
// which this core implements (spec §1's non-goals: "no on-chain
// transaction construction").
type RecoveryRPC interface {
	Recover(ctx context.Context, backup ChannelBackup) error
}

// LostStateChecker reports whether a channel's counterparty has
// reported it as being in a lost state, the signal spec §9's Open
// Question (a) says real deployments should gate recovery on, in place
// of the original's hardcoded debug override.
type LostStateChecker func(ChannelPoint) bool

// Recover decrypts blob, validates its version, and forwards every
// channel record for which isLost reports true to rpc. It returns the
// records it successfully forwarded; a failure partway through stops
// the walk and returns what succeeded so far alongside the error.
func Recover(ctx context.Context, kd KeyDeriver, blob []byte, rpc RecoveryRPC, isLost LostStateChecker) ([]ChannelBackup, error) {
	m, err := Decrypt(kd, blob)
	if err != nil {
		return nil, fmt.Errorf("chanbackup: recover: %w", err)
	}

	var recovered []ChannelBackup
	for _, cb := range m.Channels {
		if !isLost(cb.Point) {
			continue
		}
		if err := rpc.Recover(ctx, cb); err != nil {
			return recovered, fmt.Errorf("chanbackup: recover channel %x: %w", cb.Point.TxID, err)
		}
		recovered = append(recovered, cb)
	}
	return recovered, nil
}

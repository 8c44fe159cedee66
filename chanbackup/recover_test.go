package chanbackup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingRPC struct {
	recovered []ChannelBackup
	failOn    *ChannelPoint
}

func (r *recordingRPC) Recover(ctx context.Context, backup ChannelBackup) error {
	if r.failOn != nil && backup.Point == *r.failOn {
		return errors.New("recovery rpc unavailable")
	}
	r.recovered = append(r.recovered, backup)
	return nil
}

func TestRecoverForwardsOnlyLostChannels(t *testing.T) {
	kd := &fakeKeyDeriver{root: [32]byte{5}}
	m := threeChannelMulti(time.Unix(1, 0).UTC())
	blob, err := Encrypt(kd, m)
	require.NoError(t, err)

	lost := m.Channels[1].Point
	rpc := &recordingRPC{}
	isLost := func(cp ChannelPoint) bool { return cp == lost }

	recovered, err := Recover(context.Background(), kd, blob, rpc, isLost)
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	require.Equal(t, m.Channels[1], recovered[0])
	require.Equal(t, rpc.recovered, recovered)
}

func TestRecoverStopsOnRPCError(t *testing.T) {
	kd := &fakeKeyDeriver{root: [32]byte{5}}
	m := threeChannelMulti(time.Unix(1, 0).UTC())
	blob, err := Encrypt(kd, m)
	require.NoError(t, err)

	failAt := m.Channels[1].Point
	rpc := &recordingRPC{failOn: &failAt}
	isLost := func(cp ChannelPoint) bool { return true }

	recovered, err := Recover(context.Background(), kd, blob, rpc, isLost)
	require.Error(t, err)
	require.Len(t, recovered, 1)
	require.Equal(t, m.Channels[0], recovered[0])
}

func TestRecoverRejectsUndecryptableBlob(t *testing.T) {
	kd := &fakeKeyDeriver{root: [32]byte{5}}
	_, err := Recover(context.Background(), kd, []byte("garbage"), &recordingRPC{}, func(ChannelPoint) bool { return true })
	require.Error(t, err)
}

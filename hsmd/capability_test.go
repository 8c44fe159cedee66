package hsmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPermitsRequiresExactCapabilityBit(t *testing.T) {
	require.True(t, MsgSignGossipMessage.Permits(CapSignGossip))
	require.True(t, MsgSignGossipMessage.Permits(MasterCapabilities))
	require.False(t, MsgSignGossipMessage.Permits(CapSignCommitment))
	require.False(t, MsgSignGossipMessage.Permits(0))
}

func TestPermitsMasterOnlyTypes(t *testing.T) {
	require.True(t, MsgInit.Permits(CapMaster))
	require.True(t, MsgClientHSMFD.Permits(CapMaster))
	require.False(t, MsgInit.Permits(CapSignGossip|CapECDH|CapSignCommitment|CapInvoice))
}

func TestPermitsUnknownTypeAlwaysFalse(t *testing.T) {
	unknown := MessageType(9999)
	require.False(t, unknown.Permits(Capability(^uint32(0))))
}

func TestPermitsAcceptsSupersetMask(t *testing.T) {
	mask := CapSignCommitment | CapInvoice | CapECDH
	require.True(t, MsgSignCommitmentTx.Permits(mask))
	require.True(t, MsgSignPerCommitmentPoint.Permits(mask))
	require.True(t, MsgSignInvoice.Permits(mask))
	require.True(t, MsgECDH.Permits(mask))
	require.False(t, MsgSignGossipMessage.Permits(mask))
}

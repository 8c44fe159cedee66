package hsmd

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v2"
	"github.com/stretchr/testify/require"
)

func TestInitRequestRoundTrip(t *testing.T) {
	req := &InitRequest{Passphrase: "hunter2", Network: "mainnet"}
	body := EncodeInitRequest(req)

	got, err := decodeInitRequest(body)
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestInitRequestEmptyPassphrase(t *testing.T) {
	req := &InitRequest{Passphrase: "", Network: "testnet"}
	body := EncodeInitRequest(req)

	got, err := decodeInitRequest(body)
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestClientHSMFDRequestRoundTripWithNodeID(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	pub := (*secp256k1.PublicKey)(&priv.PublicKey)

	req := &ClientHSMFDRequest{
		DBID:   99,
		Caps:   CapSignCommitment | CapInvoice,
		NodeID: pub,
	}
	body := EncodeClientHSMFDRequest(req)

	got, err := decodeClientHSMFDRequest(body)
	require.NoError(t, err)
	require.Equal(t, req.DBID, got.DBID)
	require.Equal(t, req.Caps, got.Caps)
	require.True(t, req.NodeID.IsEqual(got.NodeID))
}

func TestClientHSMFDRequestRoundTripWithoutNodeID(t *testing.T) {
	req := &ClientHSMFDRequest{DBID: 1, Caps: MasterCapabilities}
	body := EncodeClientHSMFDRequest(req)

	got, err := decodeClientHSMFDRequest(body)
	require.NoError(t, err)
	require.Equal(t, req.DBID, got.DBID)
	require.Equal(t, req.Caps, got.Caps)
	require.Nil(t, got.NodeID)
}

func TestDecodeClientHSMFDRequestRejectsShortBody(t *testing.T) {
	_, err := decodeClientHSMFDRequest([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrMalformedRequest)
}

func TestDecodeClientHSMFDRequestRejectsTruncatedNodeID(t *testing.T) {
	body := make([]byte, clientHSMFDHeaderLen+10)
	body[12] = 1
	_, err := decodeClientHSMFDRequest(body)
	require.Error(t, err)
}

package hsmd

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v2"
)

// ErrMalformedRequest is returned by the request decoders below when a
// message body is too short or internally inconsistent for its type.
var ErrMalformedRequest = errors.New("hsmd: malformed request body")

// InitRequest is the MsgInit request body: a length-prefixed passphrase
// (empty for an unencrypted seed) followed by the chain network name.
type InitRequest struct {
	Passphrase string
	Network    string
}

func decodeInitRequest(body []byte) (*InitRequest, error) {
	if len(body) < 1 {
		return nil, ErrMalformedRequest
	}
	n := int(body[0])
	if len(body) < 1+n {
		return nil, ErrMalformedRequest
	}
	return &InitRequest{
		Passphrase: string(body[1 : 1+n]),
		Network:    string(body[1+n:]),
	}, nil
}

// EncodeInitRequest encodes req as a MsgInit request body. It is exported
// for use by HSM client implementations; the dispatcher itself only
// decodes.
func EncodeInitRequest(req *InitRequest) []byte {
	out := make([]byte, 0, 1+len(req.Passphrase)+len(req.Network))
	out = append(out, byte(len(req.Passphrase)))
	out = append(out, []byte(req.Passphrase)...)
	out = append(out, []byte(req.Network)...)
	return out
}

// ClientHSMFDRequest is the MsgClientHSMFD request body: the new client
// session's db_id, its granted capability mask, and an optional node
// identity (present for per-peer client sessions, absent for sessions
// not tied to a peer). The dispatcher rejects a db_id of 0 here: the
// db_id == 0 sessions are installed by the daemon, not through this
// request.
type ClientHSMFDRequest struct {
	DBID   uint64
	Caps   Capability
	NodeID *secp256k1.PublicKey
}

const clientHSMFDHeaderLen = 8 + 4 + 1

func decodeClientHSMFDRequest(body []byte) (*ClientHSMFDRequest, error) {
	if len(body) < clientHSMFDHeaderLen {
		return nil, ErrMalformedRequest
	}

	req := &ClientHSMFDRequest{
		DBID: binary.BigEndian.Uint64(body[0:8]),
		Caps: Capability(binary.BigEndian.Uint32(body[8:12])),
	}

	hasNode := body[12]
	if hasNode == 0 {
		return req, nil
	}

	const pubKeyLen = 33
	rest := body[clientHSMFDHeaderLen:]
	if len(rest) < pubKeyLen {
		return nil, ErrMalformedRequest
	}
	pub, err := secp256k1.ParsePubKey(rest[:pubKeyLen])
	if err != nil {
		return nil, fmt.Errorf("%w: node id: %v", ErrMalformedRequest, err)
	}
	req.NodeID = pub
	return req, nil
}

// EncodeClientHSMFDRequest encodes req as a MsgClientHSMFD request body.
// Exported for the same reason as EncodeInitRequest.
func EncodeClientHSMFDRequest(req *ClientHSMFDRequest) []byte {
	out := make([]byte, clientHSMFDHeaderLen, clientHSMFDHeaderLen+33)
	binary.BigEndian.PutUint64(out[0:8], req.DBID)
	binary.BigEndian.PutUint32(out[8:12], uint32(req.Caps))
	if req.NodeID != nil {
		out[12] = 1
		out = append(out, req.NodeID.SerializeCompressed()...)
	}
	return out
}

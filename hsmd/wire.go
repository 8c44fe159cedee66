package hsmd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MessageType is the big-endian u16 type tag that begins every HSM
// wire message (spec §6, "Wire message envelope"). It is a closed
// enumeration; dispatch is by dense match, not open-ended reflection.
type MessageType uint16

// Request and reply type tags. Values below 1000 are requests; values
// 1000 and above are the corresponding replies, mirroring the
// request/reply pairing spec §6 describes ("Replies for a given request
// type are also typed with their own tag").
const (
	MsgInit MessageType = iota + 1
	MsgClientHSMFD
	MsgECDH
	MsgSignGossipMessage
	MsgSignCommitmentTx
	MsgSignPerCommitmentPoint
	MsgSignInvoice
	MsgDevMemleak
)

const (
	MsgInitReply MessageType = iota + 1000
	MsgClientHSMFDReply
	MsgECDHReply
	MsgSignGossipMessageReply
	MsgSignCommitmentTxReply
	MsgSignPerCommitmentPointReply
	MsgSignInvoiceReply
	MsgDevMemleakReply

	// MsgStatusReply carries a StatusError back to the client in
	// place of a type-specific reply, used for BadRequest and fatal
	// conditions.
	MsgStatusReply
)

// maxMessageLen bounds a single wire message's payload, guarding against
// a malicious or buggy peer claiming an enormous length prefix.
const maxMessageLen = 1 << 20

// StatusCode classifies a MsgStatusReply.
type StatusCode uint8

const (
	// StatusBadRequest reports a malformed frame, a forbidden type
	// for the session's capabilities, or an unrecognized type.
	StatusBadRequest StatusCode = iota
	// StatusInternalError reports a fatal, internal-error condition
	// (e.g. ErrCorruptSeedFile).
	StatusInternalError
)

// StatusError is the payload of a MsgStatusReply.
type StatusError struct {
	Code StatusCode
	Msg  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hsmd: status %d: %s", e.Code, e.Msg)
}

// ErrUnknownMessageType names a type tag that matches no known
// MessageType. Nothing in this package returns it: ServeSession rejects
// unknown tags through MessageType.Permits with a BadRequest status.
var ErrUnknownMessageType = errors.New("hsmd: unknown message type")

// WriteMessage writes a length-prefixed message: a big-endian u32 total
// length, a big-endian u16 type tag, then body.
func WriteMessage(w io.Writer, msgType MessageType, body []byte) error {
	if len(body) > maxMessageLen {
		return fmt.Errorf("hsmd: message body too large: %d bytes", len(body))
	}

	frame := make([]byte, 6+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)+2))
	binary.BigEndian.PutUint16(frame[4:6], uint16(msgType))
	copy(frame[6:], body)

	_, err := w.Write(frame)
	return err
}

// ReadMessage reads one length-prefixed message, returning its type tag
// and body.
func ReadMessage(r io.Reader) (MessageType, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}

	total := binary.BigEndian.Uint32(lenBuf[:])
	if total < 2 || total > maxMessageLen+2 {
		return 0, nil, fmt.Errorf("hsmd: invalid message length %d", total)
	}

	rest := make([]byte, total)
	if _, err := io.ReadFull(r, rest); err != nil {
		return 0, nil, err
	}

	msgType := MessageType(binary.BigEndian.Uint16(rest[:2]))
	return msgType, rest[2:], nil
}

// WriteStatus writes a MsgStatusReply envelope carrying status.
func WriteStatus(w io.Writer, status *StatusError) error {
	body := append([]byte{byte(status.Code)}, []byte(status.Msg)...)
	return WriteMessage(w, MsgStatusReply, body)
}

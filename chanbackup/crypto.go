package chanbackup

import (
	"fmt"

	"github.com/lnsphinx/cryptocore/lncrypto/secretstream"
)

// scbKeyLabel is the fixed "makesecret" label the seed store uses to
// derive the SCB key, per spec §4.4 "Key derivation". The engine never
// sees the root seed itself, only this derived key.
const scbKeyLabel = "scb secret"

// KeyDeriver is the seed store's entire surface this package depends
// on. The SCB engine runs outside the HSM dispatcher's process boundary
// (spec §4.3 "Shared resources": "it shares no memory with the
// dispatcher and communicates only via typed RPC"), so this package
// never imports the hsmd package directly — only this interface, which
// an RPC-backed adapter in the embedding daemon would satisfy.
type KeyDeriver interface {
	DeriveSharedSecret(label string) [32]byte
}

func scbKey(kd KeyDeriver) [32]byte {
	return kd.DeriveSharedSecret(scbKeyLabel)
}

// Encrypt serializes m and seals it under the SCB key, returning
// HEADER ‖ CT ‖ TAG per spec §4.4 "Encryption at rest".
func Encrypt(kd KeyDeriver, m *Multi) ([]byte, error) {
	key := scbKey(kd)

	push, header, err := secretstream.InitPush(key)
	if err != nil {
		return nil, fmt.Errorf("chanbackup: init encryption stream: %w", err)
	}

	ct := push.Push(m.Serialize(), nil, secretstream.TagFinal)

	out := make([]byte, 0, secretstream.HeaderLen+len(ct))
	out = append(out, header[:]...)
	out = append(out, ct...)
	return out, nil
}

// Decrypt inverts Encrypt: it opens blob under the SCB key and decodes
// the resulting plaintext as a Multi.
func Decrypt(kd KeyDeriver, blob []byte) (*Multi, error) {
	if len(blob) < secretstream.HeaderLen+secretstream.TagLen {
		return nil, fmt.Errorf("chanbackup: scb blob too short")
	}

	var header [secretstream.HeaderLen]byte
	copy(header[:], blob[:secretstream.HeaderLen])
	ct := blob[secretstream.HeaderLen:]

	key := scbKey(kd)
	pull, err := secretstream.InitPull(key, header)
	if err != nil {
		return nil, fmt.Errorf("chanbackup: init decryption stream: %w", err)
	}

	plain, err := pull.Pull(ct, nil, secretstream.TagFinal)
	if err != nil {
		return nil, secretstream.ErrAuthFailed
	}

	return DeserializeMulti(plain)
}

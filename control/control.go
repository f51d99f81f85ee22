package control

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/opd-ai/algstream/engine"
)

// Operation direction values carried in a control message.
const (
	OpDecrypt = 0
	OpEncrypt = 1
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding. The same control message always produces identical bytes.
var encMode cbor.EncMode

// decMode rejects unknown fields so a corrupted or mismatched control
// blob fails loudly instead of silently dropping parameters.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("control: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("control: CBOR decoder initialization failed: " + err.Error())
	}
}

// Message is an out-of-band parameter update travelling alongside a
// data write. Nil fields are absent; present fields are applied
// together, before the accompanying payload is accumulated. Integer
// keys keep the wire form compact.
type Message struct {
	Op       *int   `cbor:"1,keyasint,omitempty"`
	IV       []byte `cbor:"2,keyasint,omitempty"`
	AssocLen *int   `cbor:"3,keyasint,omitempty"`
	Key      []byte `cbor:"4,keyasint,omitempty"`
	AuthSize *int   `cbor:"5,keyasint,omitempty"`
}

// Empty reports whether the message carries no parameters.
func (m *Message) Empty() bool {
	return m.Op == nil && m.IV == nil && m.AssocLen == nil &&
		m.Key == nil && m.AuthSize == nil
}

// WithOp sets the operation direction.
func (m *Message) WithOp(op int) *Message {
	m.Op = &op
	return m
}

// WithIV sets the initialization vector.
func (m *Message) WithIV(iv []byte) *Message {
	m.IV = append([]byte(nil), iv...)
	return m
}

// WithAssocLen sets the associated-data length of the next message.
func (m *Message) WithAssocLen(n int) *Message {
	m.AssocLen = &n
	return m
}

// WithKey sets the transform key.
func (m *Message) WithKey(key []byte) *Message {
	m.Key = append([]byte(nil), key...)
	return m
}

// WithAuthSize sets the authentication tag size.
func (m *Message) WithAuthSize(n int) *Message {
	m.AuthSize = &n
	return m
}

// Encode serializes the message to its deterministic CBOR form.
func (m *Message) Encode() ([]byte, error) {
	data, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode control message: %w", err)
	}
	return data, nil
}

// Decode parses a CBOR control message. Unknown fields are an error.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: malformed control message: %v", engine.ErrInvalidParameters, err)
	}
	return &m, nil
}

// Target is the surface a control message mutates. The root channel
// implements it; sessions implement the non-key subset.
type Target interface {
	SetKey(key []byte) error
	SetAuthSize(n int) error
	SetDirection(enc bool) error
	SetIV(iv []byte) error
	SetAssocLen(n int) error
}

// Apply installs every present field on t, key material first so the
// remaining parameters are validated against the keyed transform. The
// first failure aborts the rest.
func Apply(m *Message, t Target) error {
	if m == nil {
		return nil
	}
	if m.Key != nil {
		if err := t.SetKey(m.Key); err != nil {
			return err
		}
	}
	if m.AuthSize != nil {
		if err := t.SetAuthSize(*m.AuthSize); err != nil {
			return err
		}
	}
	if m.Op != nil {
		switch *m.Op {
		case OpEncrypt, OpDecrypt:
		default:
			return fmt.Errorf("%w: unknown operation %d", engine.ErrInvalidParameters, *m.Op)
		}
		if err := t.SetDirection(*m.Op == OpEncrypt); err != nil {
			return err
		}
	}
	if m.IV != nil {
		if err := t.SetIV(m.IV); err != nil {
			return err
		}
	}
	if m.AssocLen != nil {
		if err := t.SetAssocLen(*m.AssocLen); err != nil {
			return err
		}
	}
	return nil
}

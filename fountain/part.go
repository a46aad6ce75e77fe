package fountain

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Part is the on-wire unit of the fountain stream: the fragment
// metadata of the session and the XOR of the chosen fragments,
// serialized as a 5-element CBOR array.
type Part struct {
	_          struct{} `cbor:",toarray"`
	SeqNum     uint32
	SeqLen     uint32
	MessageLen uint32
	Checksum   uint32
	Data       []byte
}

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
	dm, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dm
}

// Encode returns the part in its wire form.
func (p *Part) Encode() []byte {
	b, err := encMode.Marshal(p)
	if err != nil {
		// Valid by construction.
		panic(err)
	}
	return b
}

// DecodePart deserializes and validates a wire-form part. Arity
// mismatches, wrong field types, negative integers and inconsistent
// lengths are all rejected.
func DecodePart(data []byte) (Part, error) {
	var p Part
	if err := decMode.Unmarshal(data, &p); err != nil {
		return Part{}, fmt.Errorf("%w: %v", ErrInvalidPart, err)
	}
	if err := p.validate(); err != nil {
		return Part{}, err
	}
	return p, nil
}

func (p *Part) validate() error {
	switch {
	case p.SeqNum < 1:
		return fmt.Errorf("%w: zero sequence number", ErrInvalidPart)
	case p.SeqLen < 1:
		return fmt.Errorf("%w: zero sequence length", ErrInvalidPart)
	case p.MessageLen < 1:
		return fmt.Errorf("%w: zero message length", ErrInvalidPart)
	case len(p.Data) < 1:
		return fmt.Errorf("%w: empty fragment data", ErrInvalidPart)
	}
	if fragLen := (int(p.MessageLen) + int(p.SeqLen) - 1) / int(p.SeqLen); fragLen != len(p.Data) {
		return fmt.Errorf("%w: %d fragment bytes, expected %d for message length %d over %d fragments",
			ErrInvalidPart, len(p.Data), fragLen, p.MessageLen, p.SeqLen)
	}
	return nil
}

// session captures the parameters shared by every part of one
// message; the decoder locks them in on the first valid part.
type session struct {
	seqLen     int
	messageLen int
	fragLen    int
	checksum   uint32
}

func (p *Part) session() session {
	return session{
		seqLen:     int(p.SeqLen),
		messageLen: int(p.MessageLen),
		fragLen:    len(p.Data),
		checksum:   p.Checksum,
	}
}

package ur

import (
	"fmt"

	"bcur.dev/bytewords"
	"bcur.dev/fountain"
)

// MaxURType bounds the type label length accepted by FixedDecoder.
const MaxURType = 32

// FixedDecoder is the statically bounded realization of Decoder: the
// reassembly state lives in arrays sized by the fountain package's
// capacity constants and the session type label is capped at
// MaxURType bytes. Envelope and payload parsing still use transient
// buffers; the bounds cap the retained state, not the parser.
type FixedDecoder struct {
	typ    [MaxURType]byte
	typLen int

	single    [fountain.MaxMessageLen]byte
	singleLen int

	received int

	fountain fountain.FixedDecoder
}

// Receive absorbs one UR string, with the same rejection rules as
// Decoder.Receive plus the capacity bounds.
func (d *FixedDecoder) Receive(ur string) error {
	env, err := parse(ur)
	if err != nil {
		return err
	}
	if len(env.typ) > MaxURType {
		return fmt.Errorf("%w: type %q longer than %d", fountain.ErrOutOfCapacity, env.typ, MaxURType)
	}
	if d.typLen > 0 && env.typ != string(d.typ[:d.typLen]) {
		return fmt.Errorf("%w: %q does not match %q", ErrMismatchedType, env.typ, d.typ[:d.typLen])
	}
	payload, err := bytewords.Decode(env.payload, bytewords.Minimal)
	if err != nil {
		return fmt.Errorf("ur: invalid part payload: %w", err)
	}
	if env.seqLen == 0 {
		if d.fountain.ExpectedPartCount() > 0 {
			return fmt.Errorf("%w: single-part form in a multi-part session", fountain.ErrMismatchedPart)
		}
		if len(payload) > fountain.MaxMessageLen {
			return fountain.ErrOutOfCapacity
		}
		if d.singleLen == 0 {
			d.singleLen = copy(d.single[:], payload)
		}
		d.typLen = copy(d.typ[:], env.typ)
		d.received++
		return nil
	}
	if d.singleLen > 0 {
		return fmt.Errorf("%w: multi-part form in a single-part session", fountain.ErrMismatchedPart)
	}
	p, err := fountain.DecodePart(payload)
	if err != nil {
		return err
	}
	if p.SeqNum != env.seqNum || int(p.SeqLen) != env.seqLen {
		return fmt.Errorf("%w: envelope sequence %d-%d does not match part %d-%d",
			fountain.ErrInvalidPart, env.seqNum, env.seqLen, p.SeqNum, p.SeqLen)
	}
	if err := d.fountain.Receive(p); err != nil {
		return err
	}
	d.typLen = copy(d.typ[:], env.typ)
	d.received++
	return nil
}

// Message returns the UR type and the reconstructed message once
// complete. The returned slice aliases decoder storage and is valid
// until Clear.
func (d *FixedDecoder) Message() (string, []byte, error) {
	if d.singleLen > 0 {
		return string(d.typ[:d.typLen]), d.single[:d.singleLen], nil
	}
	msg, err := d.fountain.Message()
	if err != nil {
		if err == fountain.ErrIncomplete {
			err = ErrIncomplete
		}
		return "", nil, err
	}
	return string(d.typ[:d.typLen]), msg, nil
}

// Complete reports whether the message has been fully reconstructed.
func (d *FixedDecoder) Complete() bool {
	return d.singleLen > 0 || d.fountain.Complete()
}

// EstimatedPercentComplete returns the fraction of source fragments
// recovered so far, in [0, 1].
func (d *FixedDecoder) EstimatedPercentComplete() float64 {
	if d.singleLen > 0 {
		return 1
	}
	return d.fountain.EstimatedPercentComplete()
}

// ReceivedPartCount returns the number of successfully received
// parts, duplicates included.
func (d *FixedDecoder) ReceivedPartCount() int {
	return d.received
}

// ExpectedPartCount returns the sequence count of the locked
// session, 1 for a single-part session and 0 before the first part.
func (d *FixedDecoder) ExpectedPartCount() int {
	if d.singleLen > 0 {
		return 1
	}
	return d.fountain.ExpectedPartCount()
}

// Clear resets the decoder to its initial empty state.
func (d *FixedDecoder) Clear() {
	*d = FixedDecoder{}
}

// Package ur implements the Uniform Resources (UR) encoding
// specified in [BCR-2020-005]: a textual envelope
//
//	ur:<type>[/<seq>-<count>]/<bytewords>
//
// carrying either a whole message (single-part form) or one part of
// a fountain-encoded stream (multi-part form). The payload is opaque
// to this package; registry types layer on top.
//
// [BCR-2020-005]: https://github.com/BlockchainCommons/Research/blob/master/papers/bcr-2020-005-ur.md
package ur

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bcur.dev/bytewords"
	"bcur.dev/fountain"
)

var (
	// ErrParse reports an envelope that does not match the UR
	// grammar. Parsing is strict: lower case only, no leading
	// zeros, canonical separators.
	ErrParse = errors.New("ur: malformed envelope")
	// ErrMismatchedType reports a part whose type differs from the
	// first accepted part.
	ErrMismatchedType = errors.New("ur: mismatched type")
	// ErrIncomplete is returned by Message while parts are missing.
	ErrIncomplete = errors.New("ur: message not yet complete")
)

// Encode returns the UR string carrying the part with the given
// sequence number of message split into seqLen fragments. With
// seqLen 1 the single-part form carries the message itself.
func Encode(_type string, message []byte, seqNum, seqLen int) string {
	if seqLen == 1 {
		return fmt.Sprintf("ur:%s/%s", _type, bytewords.Encode(message, bytewords.Minimal))
	}
	data := fountain.Encode(message, seqNum, seqLen)
	return fmt.Sprintf("ur:%s/%d-%d/%s", _type, seqNum, seqLen, bytewords.Encode(data, bytewords.Minimal))
}

// Encoder emits the UR part stream for a single message.
type Encoder struct {
	typ      string
	message  []byte
	fountain *fountain.Encoder
}

// NewEncoder prepares message of the given UR type for emission in
// fragments of at most maxFragmentLen bytes.
func NewEncoder(typ string, message []byte, maxFragmentLen int) (*Encoder, error) {
	if err := validateType(typ); err != nil {
		return nil, err
	}
	if len(message) == 0 {
		return nil, fmt.Errorf("%w: empty message", fountain.ErrInvalidPart)
	}
	return &Encoder{
		typ:      typ,
		message:  message,
		fountain: fountain.NewEncoder(message, maxFragmentLen),
	}, nil
}

// NextPart returns the UR string with the next sequence number.
// Messages that fit a single fragment use the single-part form for
// every emission.
func (e *Encoder) NextPart() string {
	p := e.fountain.NextPart()
	if e.fountain.SequenceCount() == 1 {
		return fmt.Sprintf("ur:%s/%s", e.typ, bytewords.Encode(e.message, bytewords.Minimal))
	}
	return fmt.Sprintf("ur:%s/%d-%d/%s", e.typ, p.SeqNum, p.SeqLen, bytewords.Encode(p.Encode(), bytewords.Minimal))
}

// SequenceCount returns the number of source fragments.
func (e *Encoder) SequenceCount() int {
	return e.fountain.SequenceCount()
}

// CurrentSequenceIndex returns the sequence number of the most
// recently emitted part, zero before the first.
func (e *Encoder) CurrentSequenceIndex() uint32 {
	return e.fountain.CurrentSequenceIndex()
}

// Decoder reconstructs a message from UR strings received in any
// order. The zero value is an empty decoder.
type Decoder struct {
	typ      string
	message  []byte
	received int

	fountain fountain.Decoder
}

// Receive absorbs one UR string. Malformed, mismatched or
// inconsistent parts are rejected without changing decoder state.
func (d *Decoder) Receive(ur string) error {
	env, err := parse(ur)
	if err != nil {
		return err
	}
	if d.typ != "" && env.typ != d.typ {
		return fmt.Errorf("%w: %q does not match %q", ErrMismatchedType, env.typ, d.typ)
	}
	payload, err := bytewords.Decode(env.payload, bytewords.Minimal)
	if err != nil {
		return fmt.Errorf("ur: invalid part payload: %w", err)
	}
	if env.seqLen == 0 {
		// Single-part form.
		if d.fountain.ExpectedPartCount() > 0 {
			return fmt.Errorf("%w: single-part form in a multi-part session", fountain.ErrMismatchedPart)
		}
		if d.message == nil {
			d.message = payload
		}
		d.typ = env.typ
		d.received++
		return nil
	}
	if d.message != nil {
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
	d.typ = env.typ
	d.received++
	return nil
}

// Message returns the UR type and the reconstructed message once
// complete, ErrIncomplete before that.
func (d *Decoder) Message() (string, []byte, error) {
	if d.message != nil {
		return d.typ, d.message, nil
	}
	msg, err := d.fountain.Message()
	if err != nil {
		if errors.Is(err, fountain.ErrIncomplete) {
			err = ErrIncomplete
		}
		return "", nil, err
	}
	return d.typ, msg, nil
}

// Complete reports whether the message has been fully reconstructed.
func (d *Decoder) Complete() bool {
	return d.message != nil || d.fountain.Complete()
}

// EstimatedPercentComplete returns the fraction of source fragments
// recovered so far, in [0, 1].
func (d *Decoder) EstimatedPercentComplete() float64 {
	if d.message != nil {
		return 1
	}
	return d.fountain.EstimatedPercentComplete()
}

// ReceivedPartCount returns the number of successfully received
// parts, duplicates included.
func (d *Decoder) ReceivedPartCount() int {
	return d.received
}

// ExpectedPartCount returns the sequence count of the locked
// session, 1 for a single-part session and 0 before the first part.
func (d *Decoder) ExpectedPartCount() int {
	if d.message != nil {
		return 1
	}
	return d.fountain.ExpectedPartCount()
}

// Clear resets the decoder to its initial empty state.
func (d *Decoder) Clear() {
	*d = Decoder{}
}

type envelope struct {
	typ     string
	seqNum  uint32
	seqLen  int
	payload string
}

func parse(ur string) (envelope, error) {
	const prefix = "ur:"
	if !strings.HasPrefix(ur, prefix) {
		return envelope{}, fmt.Errorf("%w: missing %q prefix", ErrParse, prefix)
	}
	segments := strings.Split(ur[len(prefix):], "/")
	var env envelope
	switch len(segments) {
	case 2:
		env.typ, env.payload = segments[0], segments[1]
	case 3:
		env.typ, env.payload = segments[0], segments[2]
		seqNum, seqLen, err := parseSequence(segments[1])
		if err != nil {
			return envelope{}, err
		}
		env.seqNum, env.seqLen = seqNum, seqLen
	default:
		return envelope{}, fmt.Errorf("%w: expected 2 or 3 segments, got %d", ErrParse, len(segments))
	}
	if err := validateType(env.typ); err != nil {
		return envelope{}, err
	}
	if env.payload == "" {
		return envelope{}, fmt.Errorf("%w: empty payload", ErrParse)
	}
	return env, nil
}

func parseSequence(s string) (uint32, int, error) {
	num, count, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("%w: sequence %q lacks a dash", ErrParse, s)
	}
	seqNum, err := parsePositive(num)
	if err != nil {
		return 0, 0, err
	}
	seqLen, err := parsePositive(count)
	if err != nil {
		return 0, 0, err
	}
	return seqNum, int(seqLen), nil
}

// parsePositive accepts a positive decimal integer with no sign, no
// leading zeros.
func parsePositive(s string) (uint32, error) {
	if s == "" || s[0] < '1' || s[0] > '9' {
		return 0, fmt.Errorf("%w: invalid sequence number %q", ErrParse, s)
	}
	for i := 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%w: invalid sequence number %q", ErrParse, s)
		}
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: sequence number %q out of range", ErrParse, s)
	}
	return uint32(v), nil
}

// validateType checks the UR type grammar: dash-separated groups of
// lower-case letters and digits.
func validateType(typ string) error {
	if typ == "" {
		return fmt.Errorf("%w: empty type", ErrParse)
	}
	prevDash := true
	for i := 0; i < len(typ); i++ {
		switch c := typ[i]; {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevDash = false
		case c == '-':
			if prevDash {
				return fmt.Errorf("%w: bad type %q", ErrParse, typ)
			}
			prevDash = true
		default:
			return fmt.Errorf("%w: bad type %q", ErrParse, typ)
		}
	}
	if prevDash {
		return fmt.Errorf("%w: bad type %q", ErrParse, typ)
	}
	return nil
}

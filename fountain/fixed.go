package fountain

import "fmt"

// Capacity bounds of the fixed realizations. FixedEncoder and
// FixedDecoder never allocate after construction; anything exceeding
// a bound is rejected with ErrOutOfCapacity and the instance remains
// usable.
const (
	MaxMessageLen    = 4096
	MaxFragmentLen   = 256
	MaxSequenceCount = 64
	MaxMixedParts    = 64
)

// FixedEncoder is the allocation-free realization of Encoder. The
// message is copied in on Start; parts returned by NextPart alias
// internal scratch and are valid until the next call.
type FixedEncoder struct {
	message  [MaxMessageLen]byte
	msgLen   int
	checksum uint32
	fragLen  int
	seqLen   int
	seqNum   uint32
	sampler  fixedSampler

	pool, idx [MaxSequenceCount]int
	data      [MaxFragmentLen]byte
}

// Start locks in a new message and fragment length, resetting the
// sequence number.
func (e *FixedEncoder) Start(message []byte, maxFragmentLen int) error {
	if len(message) < 1 || maxFragmentLen < 1 {
		return fmt.Errorf("%w: empty message or non-positive fragment length", ErrInvalidPart)
	}
	if len(message) > MaxMessageLen {
		return ErrOutOfCapacity
	}
	fragLen := FragmentLength(len(message), maxFragmentLen)
	if fragLen > MaxFragmentLen {
		return ErrOutOfCapacity
	}
	seqLen := SequenceLength(len(message), fragLen)
	if err := e.sampler.init(seqLen); err != nil {
		return err
	}
	copy(e.message[:], message)
	e.msgLen = len(message)
	e.checksum = Checksum(message)
	e.fragLen = fragLen
	e.seqLen = seqLen
	e.seqNum = 0
	return nil
}

// NextPart returns the part with the next sequence number. The
// part's Data aliases encoder scratch.
func (e *FixedEncoder) NextPart() Part {
	if e.seqLen == 0 {
		panic("fountain: encoder not started")
	}
	e.seqNum++
	idx := chooseInto(e.seqNum, e.seqLen, e.checksum, &e.sampler, e.pool[:0], e.idx[:0])
	data := e.data[:e.fragLen]
	for i := range data {
		data[i] = 0
	}
	for _, i := range idx {
		xorFragment(data, e.message[:e.msgLen], i)
	}
	return Part{
		SeqNum:     e.seqNum,
		SeqLen:     uint32(e.seqLen),
		MessageLen: uint32(e.msgLen),
		Checksum:   e.checksum,
		Data:       data,
	}
}

// SequenceCount returns the number of source fragments.
func (e *FixedEncoder) SequenceCount() int {
	return e.seqLen
}

// CurrentSequenceIndex returns the sequence number of the most
// recently emitted part, zero before the first.
func (e *FixedEncoder) CurrentSequenceIndex() uint32 {
	return e.seqNum
}

// fixedMixture is a mixture with array backing. Only the first n
// indices and the first fragment length bytes of residual are live.
type fixedMixture struct {
	indices  [MaxSequenceCount]int
	n        int
	residual [MaxFragmentLen]byte
}

// FixedDecoder is the allocation-free realization of Decoder,
// semantically identical within its capacity bounds.
type FixedDecoder struct {
	params   session
	locked   bool
	received int

	sampler fixedSampler

	have      [MaxSequenceCount]bool
	fragments [MaxSequenceCount][MaxFragmentLen]byte
	haveCount int

	mixed    [MaxMixedParts]fixedMixture
	mixedLen int

	pool, idx [MaxSequenceCount]int
	scratch   fixedMixture

	message  [MaxMessageLen]byte
	complete bool
	fatal    error
}

// Receive absorbs one part, with the same rejection rules as
// Decoder.Receive plus the capacity bounds.
func (d *FixedDecoder) Receive(p Part) error {
	if d.fatal != nil {
		return d.fatal
	}
	if err := p.validate(); err != nil {
		return err
	}
	if int(p.SeqLen) > MaxSequenceCount || len(p.Data) > MaxFragmentLen || int(p.MessageLen) > MaxMessageLen {
		return ErrOutOfCapacity
	}
	if d.locked {
		if d.params != p.session() {
			return fmt.Errorf("%w: sequence length, message length or checksum differ from the locked session", ErrMismatchedPart)
		}
	} else {
		d.params = p.session()
		d.locked = true
		if err := d.sampler.init(d.params.seqLen); err != nil {
			return err
		}
	}
	if d.complete {
		d.received++
		return nil
	}
	m := &d.scratch
	idx := chooseInto(p.SeqNum, d.params.seqLen, d.params.checksum, &d.sampler, d.pool[:0], d.idx[:0])
	m.n = copy(m.indices[:], idx)
	copy(m.residual[:], p.Data)
	d.reduceByKnown(m)
	switch {
	case m.n == 0:
		if !allZero(m.residual[:d.params.fragLen]) {
			return ErrInconsistentPart
		}
		d.received++
		return nil
	case m.n == 1:
		d.received++
		d.record(m.indices[0], m.residual[:d.params.fragLen])
		d.propagate()
	default:
		if slot := d.findEqual(m); slot >= 0 {
			// Same constraint already parked.
			d.received++
			return nil
		}
		if d.mixedLen == MaxMixedParts {
			return ErrOutOfCapacity
		}
		d.received++
		d.mixed[d.mixedLen] = *m
		d.mixedLen++
		d.propagate()
	}
	if d.haveCount == d.params.seqLen && !d.complete {
		if err := d.assemble(); err != nil {
			d.fatal = err
			return err
		}
	}
	return nil
}

// propagate reduces the parked mixtures to a fixed point against the
// known fragments and against strict subsets among each other,
// recording every fragment that shakes loose.
func (d *FixedDecoder) propagate() {
	fragLen := d.params.fragLen
	for changed := true; changed; {
		changed = false
		for i := 0; i < d.mixedLen; {
			m := &d.mixed[i]
			d.reduceByKnown(m)
			for j := 0; j < d.mixedLen; j++ {
				if j != i && subtractSubset(m, &d.mixed[j], fragLen) {
					changed = true
				}
			}
			switch m.n {
			case 0:
				d.removeMixed(i)
				changed = true
			case 1:
				d.record(m.indices[0], m.residual[:fragLen])
				d.removeMixed(i)
				changed = true
			default:
				i++
			}
		}
	}
}

func (d *FixedDecoder) record(idx int, frag []byte) {
	if d.have[idx] {
		return
	}
	copy(d.fragments[idx][:], frag)
	d.have[idx] = true
	d.haveCount++
}

func (d *FixedDecoder) reduceByKnown(m *fixedMixture) {
	fragLen := d.params.fragLen
	kept := 0
	for k := 0; k < m.n; k++ {
		idx := m.indices[k]
		if !d.have[idx] {
			m.indices[kept] = idx
			kept++
			continue
		}
		for i := 0; i < fragLen; i++ {
			m.residual[i] ^= d.fragments[idx][i]
		}
	}
	m.n = kept
}

func (d *FixedDecoder) removeMixed(i int) {
	d.mixedLen--
	if i != d.mixedLen {
		d.mixed[i] = d.mixed[d.mixedLen]
	}
}

func (d *FixedDecoder) findEqual(m *fixedMixture) int {
	for i := 0; i < d.mixedLen; i++ {
		if equalSet(&d.mixed[i], m) {
			return i
		}
	}
	return -1
}

// subtractSubset subtracts b from a if b's index set is a strict
// subset of a's, and reports whether it did.
func subtractSubset(a, b *fixedMixture, fragLen int) bool {
	if b.n >= a.n {
		return false
	}
	for k := 0; k < b.n; k++ {
		if !containsIndex(a, b.indices[k]) {
			return false
		}
	}
	kept := 0
	for k := 0; k < a.n; k++ {
		if !containsIndex(b, a.indices[k]) {
			a.indices[kept] = a.indices[k]
			kept++
		}
	}
	a.n = kept
	for i := 0; i < fragLen; i++ {
		a.residual[i] ^= b.residual[i]
	}
	return true
}

func containsIndex(m *fixedMixture, idx int) bool {
	for k := 0; k < m.n; k++ {
		if m.indices[k] == idx {
			return true
		}
	}
	return false
}

func equalSet(a, b *fixedMixture) bool {
	if a.n != b.n {
		return false
	}
	for k := 0; k < a.n; k++ {
		if !containsIndex(b, a.indices[k]) {
			return false
		}
	}
	return true
}

func (d *FixedDecoder) assemble() error {
	msgLen, fragLen := d.params.messageLen, d.params.fragLen
	off := 0
	for i := 0; i < d.params.seqLen && off < msgLen; i++ {
		n := fragLen
		if off+n > msgLen {
			n = msgLen - off
		}
		copy(d.message[off:off+n], d.fragments[i][:n])
		off += n
	}
	if Checksum(d.message[:msgLen]) != d.params.checksum {
		return ErrChecksum
	}
	d.complete = true
	return nil
}

// Complete reports whether the message has been fully reconstructed.
func (d *FixedDecoder) Complete() bool {
	return d.complete
}

// Message returns the reconstructed message. The returned slice
// aliases decoder storage and is valid until Clear.
func (d *FixedDecoder) Message() ([]byte, error) {
	if d.fatal != nil {
		return nil, d.fatal
	}
	if !d.complete {
		return nil, ErrIncomplete
	}
	return d.message[:d.params.messageLen], nil
}

// EstimatedPercentComplete returns the fraction of source fragments
// recovered so far, in [0, 1].
func (d *FixedDecoder) EstimatedPercentComplete() float64 {
	if d.complete {
		return 1
	}
	if !d.locked {
		return 0
	}
	return float64(d.haveCount) / float64(d.params.seqLen)
}

// ReceivedPartCount returns the number of successfully received
// parts, duplicates included.
func (d *FixedDecoder) ReceivedPartCount() int {
	return d.received
}

// ExpectedPartCount returns the sequence count of the locked
// session, or zero before the first part.
func (d *FixedDecoder) ExpectedPartCount() int {
	return d.params.seqLen
}

// Clear resets the decoder to its initial empty state.
func (d *FixedDecoder) Clear() {
	*d = FixedDecoder{}
}

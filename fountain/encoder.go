package fountain

// Encoder emits the unbounded part stream for a single message. The
// message is borrowed, not copied, for the lifetime of the encoder.
type Encoder struct {
	message  []byte
	checksum uint32
	fragLen  int
	seqLen   int
	seqNum   uint32
	sampler  *sampler

	pool, idx []int
}

// NewEncoder prepares message for transmission in fragments of at
// most maxFragmentLen bytes. The message must not be empty.
func NewEncoder(message []byte, maxFragmentLen int) *Encoder {
	fragLen := FragmentLength(len(message), maxFragmentLen)
	seqLen := SequenceLength(len(message), fragLen)
	return &Encoder{
		message:  message,
		checksum: Checksum(message),
		fragLen:  fragLen,
		seqLen:   seqLen,
		sampler:  newSampler(seqLen),
		pool:     make([]int, 0, seqLen),
		idx:      make([]int, 0, seqLen),
	}
}

// NextPart returns the part with the next sequence number. The first
// SequenceCount parts carry the source fragments in order; emission
// continues indefinitely with redundant combinations after that.
func (e *Encoder) NextPart() Part {
	e.seqNum++
	e.idx = chooseInto(e.seqNum, e.seqLen, e.checksum, e.sampler, e.pool, e.idx)
	data := make([]byte, e.fragLen)
	for _, i := range e.idx {
		xorFragment(data, e.message, i)
	}
	return Part{
		SeqNum:     e.seqNum,
		SeqLen:     uint32(e.seqLen),
		MessageLen: uint32(len(e.message)),
		Checksum:   e.checksum,
		Data:       data,
	}
}

// SequenceCount returns the number of source fragments.
func (e *Encoder) SequenceCount() int {
	return e.seqLen
}

// CurrentSequenceIndex returns the sequence number of the most
// recently emitted part, zero before the first.
func (e *Encoder) CurrentSequenceIndex() uint32 {
	return e.seqNum
}

// Encode returns the wire form of the part with the given sequence
// number for message split into seqLen fragments. For a single
// fragment the message itself is the wire form. Stateless; every
// call derives the combination from scratch.
func Encode(message []byte, seqNum, seqLen int) []byte {
	if seqLen == 1 {
		return message
	}
	sn := uint32(seqNum)
	if int(sn) != seqNum || seqNum < 1 {
		panic("fountain: sequence number out of range")
	}
	checksum := Checksum(message)
	fragLen := (len(message) + seqLen - 1) / seqLen
	data := make([]byte, fragLen)
	for _, i := range ChooseFragments(sn, seqLen, checksum) {
		xorFragment(data, message, i)
	}
	p := Part{
		SeqNum:     sn,
		SeqLen:     uint32(seqLen),
		MessageLen: uint32(len(message)),
		Checksum:   checksum,
		Data:       data,
	}
	return p.Encode()
}

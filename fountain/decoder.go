package fountain

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Decoder reconstructs a message from parts received in any order,
// tolerating losses and duplicates. The zero value is an empty
// decoder; the parameters of the first valid part lock in the
// session.
type Decoder struct {
	params   session
	locked   bool
	received int

	sampler *sampler
	pool    []int

	completed map[int][]byte
	mixed     map[string]*mixture
	queue     []*mixture

	message []byte
	fatal   error
}

// mixture is an in-flight constraint: the XOR of the fragments named
// by indices equals residual. A mixture with a single index is pure
// and yields that fragment directly.
type mixture struct {
	indices  []int
	residual []byte
}

// Receive absorbs one part. Parts that are invalid, inconsistent or
// that mismatch the locked session are rejected without changing
// decoder state; receiving a part twice changes nothing the second
// time except the received-part count.
func (d *Decoder) Receive(p Part) error {
	if d.fatal != nil {
		return d.fatal
	}
	if err := p.validate(); err != nil {
		return err
	}
	if d.locked {
		if d.params != p.session() {
			return fmt.Errorf("%w: sequence length, message length or checksum differ from the locked session", ErrMismatchedPart)
		}
	} else {
		d.params = p.session()
		d.locked = true
		d.sampler = newSampler(d.params.seqLen)
		d.pool = make([]int, 0, d.params.seqLen)
		d.completed = make(map[int][]byte)
		d.mixed = make(map[string]*mixture)
	}
	if d.message != nil {
		// Already complete; extra parts carry no information.
		d.received++
		return nil
	}
	m := &mixture{
		indices:  chooseInto(p.SeqNum, d.params.seqLen, d.params.checksum, d.sampler, d.pool, nil),
		residual: slices.Clone(p.Data),
	}
	// Reduce the incoming mixture by the recovered fragments before
	// touching any state, so that contradictory parts are rejected
	// with no effect.
	d.reduceByCompleted(m)
	if len(m.indices) == 0 {
		if !allZero(m.residual) {
			return ErrInconsistentPart
		}
		d.received++
		return nil
	}
	d.received++
	d.integrate(m)
	if len(d.completed) == d.params.seqLen {
		if err := d.assemble(); err != nil {
			d.fatal = err
			return err
		}
	}
	return nil
}

// integrate runs the reduction loop to its fixed point: pure
// mixtures record fragments and revisit every parked mixture they
// shrink; mixed ones are reduced by known fragments and parked
// subsets, then parked.
func (d *Decoder) integrate(m *mixture) {
	d.queue = append(d.queue, m)
	for len(d.queue) > 0 {
		m := d.queue[len(d.queue)-1]
		d.queue = d.queue[:len(d.queue)-1]
		d.reduceByCompleted(m)
		switch len(m.indices) {
		case 0:
			// Redundant derivation.
		case 1:
			idx := m.indices[0]
			if _, ok := d.completed[idx]; ok {
				break
			}
			d.completed[idx] = m.residual
			d.revisitMixed(m)
		default:
			for _, other := range d.mixed {
				reduceMixture(m, other)
			}
			if len(m.indices) == 1 {
				d.queue = append(d.queue, m)
				break
			}
			d.revisitMixed(m)
			d.mixed[mixtureKey(m.indices)] = m
		}
	}
}

// revisitMixed reduces every parked mixture by m, requeueing the
// ones that collapse to a single unknown.
func (d *Decoder) revisitMixed(m *mixture) {
	for k, other := range d.mixed {
		delete(d.mixed, k)
		reduceMixture(other, m)
		if len(other.indices) == 1 {
			d.queue = append(d.queue, other)
		} else {
			d.mixed[mixtureKey(other.indices)] = other
		}
	}
}

// reduceByCompleted XORs every already recovered fragment out of m.
func (d *Decoder) reduceByCompleted(m *mixture) {
	kept := m.indices[:0]
	for _, idx := range m.indices {
		frag, ok := d.completed[idx]
		if !ok {
			kept = append(kept, idx)
			continue
		}
		for i := range m.residual {
			m.residual[i] ^= frag[i]
		}
	}
	m.indices = kept
}

// reduceMixture subtracts b from a if b's index set is a strict
// subset of a's.
func reduceMixture(a, b *mixture) {
	if len(b.indices) >= len(a.indices) {
		return
	}
	rest := make(map[int]bool, len(a.indices))
	for _, f := range a.indices {
		rest[f] = true
	}
	for _, f := range b.indices {
		if !rest[f] {
			return
		}
		delete(rest, f)
	}
	a.indices = a.indices[:0]
	for f := range rest {
		a.indices = append(a.indices, f)
	}
	for i := range a.residual {
		a.residual[i] ^= b.residual[i]
	}
}

func mixtureKey(indices []int) string {
	sort.Ints(indices)
	strs := make([]string, len(indices))
	for i, idx := range indices {
		strs[i] = strconv.Itoa(idx)
	}
	return strings.Join(strs, "|")
}

func (d *Decoder) assemble() error {
	msg := make([]byte, 0, d.params.seqLen*d.params.fragLen)
	for i := 0; i < d.params.seqLen; i++ {
		msg = append(msg, d.completed[i]...)
	}
	msg = msg[:d.params.messageLen]
	if Checksum(msg) != d.params.checksum {
		return ErrChecksum
	}
	d.message = msg
	return nil
}

// Complete reports whether the message has been fully reconstructed.
func (d *Decoder) Complete() bool {
	return d.message != nil
}

// Message returns the reconstructed message, ErrIncomplete while
// fragments are missing, or the fatal error that ended the session.
func (d *Decoder) Message() ([]byte, error) {
	if d.fatal != nil {
		return nil, d.fatal
	}
	if d.message == nil {
		return nil, ErrIncomplete
	}
	return d.message, nil
}

// EstimatedPercentComplete returns the fraction of source fragments
// recovered so far, in [0, 1].
func (d *Decoder) EstimatedPercentComplete() float64 {
	if d.message != nil {
		return 1
	}
	if !d.locked {
		return 0
	}
	return float64(len(d.completed)) / float64(d.params.seqLen)
}

// ReceivedPartCount returns the number of successfully received
// parts, duplicates included.
func (d *Decoder) ReceivedPartCount() int {
	return d.received
}

// ExpectedPartCount returns the sequence count of the locked
// session, or zero before the first part.
func (d *Decoder) ExpectedPartCount() int {
	return d.params.seqLen
}

// Clear resets the decoder to its initial empty state.
func (d *Decoder) Clear() {
	*d = Decoder{}
}

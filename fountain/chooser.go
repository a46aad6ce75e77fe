package fountain

import (
	"encoding/binary"

	"bcur.dev/xoshiro256"
)

// ChooseFragments returns the 0-based indices of the fragments XOR'd
// together in the part with the given sequence number. Sequence
// numbers 1 through seqLen yield the source fragments in order;
// later numbers derive a pseudo-random combination from the message
// checksum, identically at both ends of the channel.
func ChooseFragments(seqNum uint32, seqLen int, checksum uint32) []int {
	pool := make([]int, 0, seqLen)
	return chooseInto(seqNum, seqLen, checksum, newSampler(seqLen), pool, nil)
}

// chooseInto is the shared chooser core. pool is scratch space for
// the shuffled index pool, out receives the selected indices; both
// need capacity seqLen. The per-part generator is seeded with the
// SHA-256 digest of the big-endian sequence number and checksum.
func chooseInto(seqNum uint32, seqLen int, checksum uint32, sampler degreeSampler, pool, out []int) []int {
	if seqNum <= uint32(seqLen) {
		return append(out[:0], int(seqNum-1))
	}
	var seed [8]byte
	binary.BigEndian.PutUint32(seed[:4], seqNum)
	binary.BigEndian.PutUint32(seed[4:], checksum)
	rng := xoshiro256.New(seed[:])
	degree := sampler.pick(rng)
	pool = pool[:0]
	for i := 0; i < seqLen; i++ {
		pool = append(pool, i)
	}
	// Shuffle the whole pool and keep its first degree entries. The
	// full shuffle consumes the same draws regardless of degree,
	// keeping the generator aligned with the reference.
	out = out[:0]
	for len(pool) > 0 {
		j := rng.Intn(len(pool))
		out = append(out, pool[j])
		pool = append(pool[:j], pool[j+1:]...)
	}
	return out[:degree]
}

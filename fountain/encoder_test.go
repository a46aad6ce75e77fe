package fountain

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

func TestEncoderSequence(t *testing.T) {
	message := testMessage(t, 1000)
	enc := NewEncoder(message, 100)
	if got := enc.CurrentSequenceIndex(); got != 0 {
		t.Errorf("CurrentSequenceIndex() = %d before the first part", got)
	}
	if got := enc.SequenceCount(); got != 10 {
		t.Errorf("SequenceCount() = %d, want 10", got)
	}
	for i := uint32(1); i <= 30; i++ {
		p := enc.NextPart()
		if p.SeqNum != i {
			t.Fatalf("part %d has sequence number %d", i, p.SeqNum)
		}
		if got := enc.CurrentSequenceIndex(); got != i {
			t.Fatalf("CurrentSequenceIndex() = %d after part %d", got, i)
		}
		if p.SeqLen != 10 || int(p.MessageLen) != len(message) || len(p.Data) != 100 {
			t.Fatalf("part %d has inconsistent geometry: %d-%d/%d", i, p.SeqLen, p.MessageLen, len(p.Data))
		}
	}
}

func TestEncoderPureParts(t *testing.T) {
	// The first SequenceCount parts carry the source fragments in
	// order, the last zero-padded.
	message := []byte("squeamish ossifrage")
	enc := NewEncoder(message, 8)
	seqLen := enc.SequenceCount()
	var assembled []byte
	for i := 0; i < seqLen; i++ {
		assembled = append(assembled, enc.NextPart().Data...)
	}
	if !bytes.Equal(assembled[:len(message)], message) {
		t.Errorf("pure parts assemble to %q, want %q", assembled[:len(message)], message)
	}
	for _, b := range assembled[len(message):] {
		if b != 0 {
			t.Errorf("final fragment padding is not zero: %v", assembled[len(message):])
			break
		}
	}
}

func TestEncoderRealizationsAgree(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msgLen := rapid.IntRange(1, 1000).Draw(t, "msgLen")
		maxFragLen := rapid.IntRange(20, 200).Draw(t, "maxFragLen")
		message := rapid.SliceOfN(rapid.Byte(), msgLen, msgLen).Draw(t, "message")
		heap := NewEncoder(message, maxFragLen)
		var fixed FixedEncoder
		if err := fixed.Start(message, maxFragLen); err != nil {
			t.Fatal(err)
		}
		if heap.SequenceCount() != fixed.SequenceCount() {
			t.Fatalf("sequence counts disagree: %d != %d", heap.SequenceCount(), fixed.SequenceCount())
		}
		for i := 0; i < heap.SequenceCount()+10; i++ {
			hp, fp := heap.NextPart(), fixed.NextPart()
			if hp.SeqNum != fp.SeqNum || hp.SeqLen != fp.SeqLen ||
				hp.MessageLen != fp.MessageLen || hp.Checksum != fp.Checksum ||
				!bytes.Equal(hp.Data, fp.Data) {
				t.Fatalf("part %d differs between realizations", i+1)
			}
		}
	})
}

func TestEncoderMatchesStatelessEncode(t *testing.T) {
	message := testMessage(t, 777)
	enc := NewEncoder(message, 100)
	seqLen := enc.SequenceCount()
	for i := 1; i <= seqLen+10; i++ {
		p := enc.NextPart()
		if !bytes.Equal(p.Encode(), Encode(message, i, seqLen)) {
			t.Fatalf("part %d differs between Encoder and Encode", i)
		}
	}
}

func TestFixedEncoderRestart(t *testing.T) {
	var e FixedEncoder
	first := testMessage(t, 300)
	if err := e.Start(first, 100); err != nil {
		t.Fatal(err)
	}
	e.NextPart()
	second := []byte("a different message entirely")
	if err := e.Start(second, 10); err != nil {
		t.Fatal(err)
	}
	if got := e.CurrentSequenceIndex(); got != 0 {
		t.Errorf("CurrentSequenceIndex() = %d after restart", got)
	}
	var d Decoder
	for !d.Complete() {
		p := e.NextPart()
		// Wire round trip so the decoder owns its copy; fixed
		// encoder parts alias scratch.
		pp, err := DecodePart(p.Encode())
		if err != nil {
			t.Fatal(err)
		}
		if err := d.Receive(pp); err != nil {
			t.Fatal(err)
		}
	}
	got, err := d.Message()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, second) {
		t.Error("restarted encoder produced the wrong message")
	}
}

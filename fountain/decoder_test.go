package fountain

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"pgregory.net/rapid"
)

// partDecoder lets the heap and fixed decoders run the same suite.
type partDecoder interface {
	Receive(Part) error
	Complete() bool
	Message() ([]byte, error)
	EstimatedPercentComplete() float64
	ReceivedPartCount() int
	ExpectedPartCount() int
}

func decoders() map[string]func() partDecoder {
	return map[string]func() partDecoder{
		"heap":  func() partDecoder { return new(Decoder) },
		"fixed": func() partDecoder { return new(FixedDecoder) },
	}
}

func testMessage(t testing.TB, n int) []byte {
	t.Helper()
	msg := make([]byte, n)
	rand.New(rand.NewSource(42)).Read(msg)
	return msg
}

func TestDecodeInOrder(t *testing.T) {
	for name, newDecoder := range decoders() {
		t.Run(name, func(t *testing.T) {
			message := testMessage(t, 2500)
			enc := NewEncoder(message, 100)
			if enc.SequenceCount() != 25 {
				t.Fatalf("sequence count %d, want 25", enc.SequenceCount())
			}
			d := newDecoder()
			for i := 1; i <= 25; i++ {
				if d.Complete() {
					t.Fatalf("complete before part %d", i)
				}
				if err := d.Receive(enc.NextPart()); err != nil {
					t.Fatalf("part %d: %v", i, err)
				}
			}
			if !d.Complete() {
				t.Fatal("not complete after all pure parts")
			}
			if got := d.EstimatedPercentComplete(); got != 1 {
				t.Errorf("EstimatedPercentComplete() = %v, want 1", got)
			}
			if got := d.ExpectedPartCount(); got != 25 {
				t.Errorf("ExpectedPartCount() = %d, want 25", got)
			}
			if got := d.ReceivedPartCount(); got != 25 {
				t.Errorf("ReceivedPartCount() = %d, want 25", got)
			}
			got, err := d.Message()
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, message) {
				t.Error("reconstructed message differs from the original")
			}
		})
	}
}

func TestDecodeLossy(t *testing.T) {
	for name, newDecoder := range decoders() {
		t.Run(name, func(t *testing.T) {
			message := testMessage(t, 2500)
			enc := NewEncoder(message, 100)
			d := newDecoder()
			const limit = 200
			for i := 1; i <= limit && !d.Complete(); i++ {
				p := enc.NextPart()
				if i == 7 || i == 13 {
					continue // lost in the channel
				}
				if err := d.Receive(p); err != nil {
					t.Fatalf("part %d: %v", i, err)
				}
			}
			if !d.Complete() {
				t.Fatalf("not complete after %d parts with 2 losses", limit)
			}
			got, err := d.Message()
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, message) {
				t.Error("reconstructed message differs from the original")
			}
		})
	}
}

func TestDecodeShuffledWithDuplicates(t *testing.T) {
	for name, newDecoder := range decoders() {
		t.Run(name, func(t *testing.T) {
			message := testMessage(t, 2500)
			enc := NewEncoder(message, 100)
			var parts []Part
			for i := 0; i < 30; i++ {
				parts = append(parts, enc.NextPart())
			}
			parts = append(parts, parts[2], parts[16])
			rand.New(rand.NewSource(7)).Shuffle(len(parts), func(i, j int) {
				parts[i], parts[j] = parts[j], parts[i]
			})
			d := newDecoder()
			for i, p := range parts {
				if err := d.Receive(p); err != nil {
					t.Fatalf("part %d: %v", i, err)
				}
			}
			if !d.Complete() {
				t.Fatal("not complete after 30 shuffled parts")
			}
			got, err := d.Message()
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, message) {
				t.Error("reconstructed message differs from the original")
			}
		})
	}
}

func TestDecodePermutationInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msgLen := rapid.IntRange(1, 300).Draw(t, "msgLen")
		// Keep the sequence count within the fixed decoder's bound.
		maxFragLen := rapid.IntRange(5, 64).Draw(t, "maxFragLen")
		message := rapid.SliceOfN(rapid.Byte(), msgLen, msgLen).Draw(t, "message")
		enc := NewEncoder(message, maxFragLen)
		count := enc.SequenceCount() + rapid.IntRange(0, 10).Draw(t, "extra")
		var parts []Part
		for i := 0; i < count; i++ {
			parts = append(parts, enc.NextPart())
		}
		seed := rapid.Int64().Draw(t, "shuffleSeed")
		rand.New(rand.NewSource(seed)).Shuffle(len(parts), func(i, j int) {
			parts[i], parts[j] = parts[j], parts[i]
		})
		var heap Decoder
		var fixed FixedDecoder
		for _, p := range parts {
			herr, ferr := heap.Receive(p), fixed.Receive(p)
			if (herr == nil) != (ferr == nil) {
				t.Fatalf("realizations disagree: heap %v, fixed %v", herr, ferr)
			}
		}
		if heap.Complete() != fixed.Complete() {
			t.Fatalf("completion disagrees: heap %v, fixed %v", heap.Complete(), fixed.Complete())
		}
		if !heap.Complete() {
			return
		}
		hmsg, err := heap.Message()
		if err != nil {
			t.Fatal(err)
		}
		fmsg, err := fixed.Message()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(hmsg, message) || !bytes.Equal(fmsg, message) {
			t.Fatal("reconstructed message differs from the original")
		}
	})
}

func TestDecodeIdempotent(t *testing.T) {
	for name, newDecoder := range decoders() {
		t.Run(name, func(t *testing.T) {
			message := testMessage(t, 700)
			enc := NewEncoder(message, 100)
			d := newDecoder()
			var parts []Part
			for i := 0; i < 4; i++ {
				parts = append(parts, enc.NextPart())
			}
			for _, p := range parts {
				if err := d.Receive(p); err != nil {
					t.Fatal(err)
				}
			}
			progress := d.EstimatedPercentComplete()
			// A second delivery of every part must change nothing but
			// the received counter.
			for _, p := range parts {
				if err := d.Receive(p); err != nil {
					t.Fatal(err)
				}
			}
			if got := d.EstimatedPercentComplete(); got != progress {
				t.Errorf("progress moved from %v to %v on duplicates", progress, got)
			}
			if got := d.ReceivedPartCount(); got != 8 {
				t.Errorf("ReceivedPartCount() = %d, want 8", got)
			}
			for i := 5; !d.Complete() && i < 100; i++ {
				if err := d.Receive(enc.NextPart()); err != nil {
					t.Fatal(err)
				}
			}
			got, err := d.Message()
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, message) {
				t.Error("reconstructed message differs from the original")
			}
		})
	}
}

func TestDecodeRejectsMismatchedPart(t *testing.T) {
	for name, newDecoder := range decoders() {
		t.Run(name, func(t *testing.T) {
			message := testMessage(t, 500)
			other := append([]byte(nil), message...)
			other[0] ^= 0xff
			encA := NewEncoder(message, 100)
			encB := NewEncoder(other, 100)
			d := newDecoder()
			if err := d.Receive(encA.NextPart()); err != nil {
				t.Fatal(err)
			}
			progress := d.EstimatedPercentComplete()
			received := d.ReceivedPartCount()
			encB.NextPart()
			if err := d.Receive(encB.NextPart()); !errors.Is(err, ErrMismatchedPart) {
				t.Fatalf("foreign part: got %v, want ErrMismatchedPart", err)
			}
			if d.EstimatedPercentComplete() != progress || d.ReceivedPartCount() != received {
				t.Error("rejected part changed decoder state")
			}
			for !d.Complete() {
				if err := d.Receive(encA.NextPart()); err != nil {
					t.Fatal(err)
				}
			}
			got, err := d.Message()
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, message) {
				t.Error("reconstructed message differs from the original")
			}
		})
	}
}

func TestDecodeRejectsInconsistentPart(t *testing.T) {
	for name, newDecoder := range decoders() {
		t.Run(name, func(t *testing.T) {
			message := testMessage(t, 500)
			enc := NewEncoder(message, 100)
			d := newDecoder()
			first := enc.NextPart()
			if err := d.Receive(first); err != nil {
				t.Fatal(err)
			}
			// Same header and sequence number, corrupted payload: the
			// residual against the known fragment is non-zero.
			corrupt := first
			corrupt.Data = append([]byte(nil), first.Data...)
			corrupt.Data[0] ^= 0x01
			if err := d.Receive(corrupt); !errors.Is(err, ErrInconsistentPart) {
				t.Fatalf("corrupted part: got %v, want ErrInconsistentPart", err)
			}
			if got := d.ReceivedPartCount(); got != 1 {
				t.Errorf("ReceivedPartCount() = %d, want 1", got)
			}
		})
	}
}

func TestDecodeMessageBeforeComplete(t *testing.T) {
	for name, newDecoder := range decoders() {
		t.Run(name, func(t *testing.T) {
			d := newDecoder()
			if _, err := d.Message(); !errors.Is(err, ErrIncomplete) {
				t.Fatalf("empty decoder: got %v, want ErrIncomplete", err)
			}
			enc := NewEncoder(testMessage(t, 300), 100)
			if err := d.Receive(enc.NextPart()); err != nil {
				t.Fatal(err)
			}
			if _, err := d.Message(); !errors.Is(err, ErrIncomplete) {
				t.Fatalf("partial decoder: got %v, want ErrIncomplete", err)
			}
		})
	}
}

func TestDecoderClear(t *testing.T) {
	messageA := testMessage(t, 300)
	messageB := append([]byte(nil), messageA...)
	messageB[10] ^= 0x40
	var d Decoder
	encA := NewEncoder(messageA, 100)
	for !d.Complete() {
		if err := d.Receive(encA.NextPart()); err != nil {
			t.Fatal(err)
		}
	}
	d.Clear()
	if d.Complete() || d.ReceivedPartCount() != 0 || d.ExpectedPartCount() != 0 {
		t.Fatal("Clear did not reset the decoder")
	}
	encB := NewEncoder(messageB, 100)
	for !d.Complete() {
		if err := d.Receive(encB.NextPart()); err != nil {
			t.Fatal(err)
		}
	}
	got, err := d.Message()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, messageB) {
		t.Error("decoder reused after Clear returned the wrong message")
	}
}

func TestFixedDecoderCapacity(t *testing.T) {
	var d FixedDecoder
	// 100 fragments exceed MaxSequenceCount.
	big := Part{SeqNum: 1, SeqLen: 100, MessageLen: 1000, Checksum: 1, Data: make([]byte, 10)}
	if err := d.Receive(big); !errors.Is(err, ErrOutOfCapacity) {
		t.Fatalf("oversized part: got %v, want ErrOutOfCapacity", err)
	}
	// The decoder remains usable.
	message := testMessage(t, 500)
	enc := NewEncoder(message, 100)
	for !d.Complete() {
		if err := d.Receive(enc.NextPart()); err != nil {
			t.Fatal(err)
		}
	}
	got, err := d.Message()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, message) {
		t.Error("reconstructed message differs from the original")
	}
}

func TestFixedEncoderCapacity(t *testing.T) {
	var e FixedEncoder
	if err := e.Start(make([]byte, MaxMessageLen+1), 100); !errors.Is(err, ErrOutOfCapacity) {
		t.Errorf("oversized message: got %v, want ErrOutOfCapacity", err)
	}
	if err := e.Start(make([]byte, 100), MaxFragmentLen+1); err != nil {
		// A large maximum is fine as long as the chosen fragment
		// length fits.
		t.Errorf("large maxFragmentLen: %v", err)
	}
	if err := e.Start(make([]byte, MaxMessageLen), 1); !errors.Is(err, ErrOutOfCapacity) {
		t.Errorf("oversized sequence count: got %v, want ErrOutOfCapacity", err)
	}
}

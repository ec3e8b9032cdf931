package qpack

import (
	"bytes"
	"testing"
)

func TestStaticOnlyRoundTrip(t *testing.T) {
	enc := NewEncoder(0, 0)
	dec := NewDecoder(0)

	fields := []HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "example.com"},
		{Name: "user-agent", Value: "test"},
	}

	block, err := enc.WriteHeaderBlock(4, fields)
	if err != nil {
		t.Fatal(err)
	}

	got, blocked, err := dec.Submit(4, block)
	if err != nil {
		t.Fatal(err)
	}
	if blocked {
		t.Fatal("static-only block should never block")
	}
	assertFieldsEqual(t, got, fields)
}

func TestDynamicTableRoundTripWithBlocking(t *testing.T) {
	enc := NewEncoder(4096, 16)
	dec := NewDecoder(16)

	// The decoder's table starts at capacity 0; give it the same capacity
	// the encoder was created with before any insert reaches it.
	if _, err := dec.ApplyEncoderInstruction(bytes.NewReader(appendSetDynamicTableCapacity(nil, 4096))); err != nil {
		t.Fatal(err)
	}

	fields := []HeaderField{
		{Name: ":status", Value: "200"},
		{Name: "x-custom-name", Value: "custom-value"},
	}

	block, err := enc.WriteHeaderBlock(0, fields)
	if err != nil {
		t.Fatal(err)
	}
	encInstr := enc.DrainInstructions()
	if len(encInstr) == 0 {
		t.Fatal("expected an insert instruction on the encoder stream")
	}

	// Decoder receives the HEADERS frame before the encoder-stream
	// insert: it must park, not error.
	_, blocked, err := dec.Submit(0, block)
	if err != nil {
		t.Fatal(err)
	}
	if !blocked {
		t.Fatal("expected the block to park pending the dynamic table insert")
	}

	results, err := dec.ApplyEncoderInstruction(bytes.NewReader(encInstr))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 unblocked result, got %d", len(results))
	}
	if results[0].Err != nil {
		t.Fatal(results[0].Err)
	}
	assertFieldsEqual(t, results[0].Fields, fields)

	// The decoder must have queued a Section Acknowledgement.
	decInstr := dec.DrainInstructions()
	if len(decInstr) == 0 {
		t.Fatal("expected a section acknowledgement on the decoder stream")
	}
	if err := enc.ApplyDecoderInstruction(bytes.NewReader(decInstr)); err != nil {
		t.Fatal(err)
	}
}

func TestBlockedStreamsBoundExceeded(t *testing.T) {
	// The encoder is allowed two blocked streams so that it produces two
	// blocking blocks; the decoder advertised a bound of one.
	enc := NewEncoder(4096, 2)
	dec := NewDecoder(1)

	block1, err := enc.WriteHeaderBlock(0, []HeaderField{{Name: "x-one", Value: "v1"}})
	if err != nil {
		t.Fatal(err)
	}
	block2, err := enc.WriteHeaderBlock(4, []HeaderField{{Name: "x-two", Value: "v2"}})
	if err != nil {
		t.Fatal(err)
	}

	_, blocked, err := dec.Submit(0, block1)
	if err != nil || !blocked {
		t.Fatalf("first block: blocked=%v err=%v", blocked, err)
	}

	_, _, err = dec.Submit(4, block2)
	if err != ErrDecompressionFailed {
		t.Fatalf("expected ErrDecompressionFailed for the (K+1)th blocked stream, got %v", err)
	}
}

func TestSensitiveFieldNeverIndexed(t *testing.T) {
	enc := NewEncoder(4096, 16)
	fields := []HeaderField{{Name: "authorization", Value: "secret", Sensitive: true}}
	block, err := enc.WriteHeaderBlock(0, fields)
	if err != nil {
		t.Fatal(err)
	}
	if len(enc.DrainInstructions()) != 0 {
		t.Fatal("sensitive field must never be inserted into the dynamic table")
	}

	dec := NewDecoder(16)
	got, blocked, err := dec.Submit(0, block)
	if err != nil || blocked {
		t.Fatalf("blocked=%v err=%v", blocked, err)
	}
	assertFieldsEqual(t, got, fields)
}

func TestPseudoHeaderOrderValidated(t *testing.T) {
	enc := NewEncoder(0, 0)
	_, err := enc.WriteHeaderBlock(0, []HeaderField{
		{Name: "user-agent", Value: "x"},
		{Name: ":path", Value: "/"},
	})
	if err == nil {
		t.Fatal("expected an error for a pseudo-header following a regular header")
	}
}

func assertFieldsEqual(t *testing.T, got, want []HeaderField) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d fields, want %d (%v vs %v)", len(got), len(want), got, want)
	}
	for i := range want {
		if got[i].Name != want[i].Name || got[i].Value != want[i].Value {
			t.Fatalf("field %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

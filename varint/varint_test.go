package varint_test

import (
	"bytes"
	"testing"

	"github.com/hnakamur/h3quic/varint"
)

func TestRoundTrip(t *testing.T) {
	boundaries := []uint64{
		0, 1, 37, 63, 64, 100,
		16383, 16384, 16385,
		1073741823, 1073741824, 1073741825,
		varint.Max - 1, varint.Max,
	}
	for _, n := range boundaries {
		enc := varint.Encode(n)
		got, err := varint.Read(bytes.NewReader(enc))
		if err != nil {
			t.Fatalf("Read(Encode(%d)): %v", n, err)
		}
		if got != n {
			t.Fatalf("round trip mismatch: got %d, want %d", got, n)
		}
	}
}

func TestMinimalLengthClass(t *testing.T) {
	cases := []struct {
		n    uint64
		want int
	}{
		{0, 1}, {63, 1},
		{64, 2}, {16383, 2},
		{16384, 4}, {1073741823, 4},
		{1073741824, 8}, {varint.Max, 8},
	}
	for _, c := range cases {
		if got := len(varint.Encode(c.n)); got != c.want {
			t.Errorf("Encode(%d): got length %d, want %d", c.n, got, c.want)
		}
		if got := varint.Len(c.n); got != c.want {
			t.Errorf("Len(%d): got %d, want %d", c.n, got, c.want)
		}
	}
}

func TestReadTruncated(t *testing.T) {
	// 0x80 selects the 4-byte class but only one byte is supplied.
	_, err := varint.Read(bytes.NewReader([]byte{0x80}))
	if err != varint.ErrTruncated {
		t.Fatalf("got %v, want ErrTruncated", err)
	}
}

func TestParseConsumed(t *testing.T) {
	enc := varint.Append(varint.Append(nil, 37), 15293)
	n, consumed, err := varint.Parse(enc)
	if err != nil {
		t.Fatal(err)
	}
	if n != 37 || consumed != 1 {
		t.Fatalf("got n=%d consumed=%d, want 37,1", n, consumed)
	}
	n, consumed, err = varint.Parse(enc[consumed:])
	if err != nil {
		t.Fatal(err)
	}
	if n != 15293 || consumed != 2 {
		t.Fatalf("got n=%d consumed=%d, want 15293,2", n, consumed)
	}
}

func TestEncodeOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for value > Max")
		}
	}()
	varint.Encode(varint.Max + 1)
}

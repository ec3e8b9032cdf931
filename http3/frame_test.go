package http3

import (
	"bytes"
	"testing"
)

func TestFrameHeaderRoundTrip(t *testing.T) {
	cases := []frameHeader{
		{Type: FrameTypeData, Length: 0},
		{Type: FrameTypeData, Length: 1},
		{Type: FrameTypeHeaders, Length: 16383},
		{Type: FrameTypeSettings, Length: 1 << 20},
	}
	for _, c := range cases {
		buf := appendFrameHeader(nil, c.Type, c.Length)
		got, err := readFrameHeader(bytes.NewReader(buf))
		if err != nil {
			t.Fatalf("%+v: %v", c, err)
		}
		if got != c {
			t.Fatalf("got %+v, want %+v", got, c)
		}
	}
}

func TestFrameHeaderSkipsGrease(t *testing.T) {
	// Grease frame type 0x21, with a payload, followed by a real DATA
	// frame header: the grease frame and its payload must be consumed
	// transparently.
	var buf []byte
	buf = appendFrameHeader(buf, FrameType(0x21), 3)
	buf = append(buf, 0xff, 0xff, 0xff)
	buf = appendFrameHeader(buf, FrameTypeData, 5)

	got, err := readFrameHeader(bytes.NewReader(buf))
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != FrameTypeData || got.Length != 5 {
		t.Fatalf("got %+v, want DATA/5", got)
	}
}

func TestIsReservedGrease(t *testing.T) {
	for _, id := range []uint64{0x21, 0x40, 0x5f, 0x1f21} {
		if !isReservedGrease(FrameType(id)) {
			t.Errorf("%#x should be a grease type", id)
		}
	}
	for _, id := range []uint64{0x0, 0x1, 0x4, 0x7, 0x20, 0x22} {
		if isReservedGrease(FrameType(id)) {
			t.Errorf("%#x should not be a grease type", id)
		}
	}
}

func TestFrameLengthErrorRejectsOversizedPayload(t *testing.T) {
	h := frameHeader{Type: FrameTypeSettings, Length: 100}
	_, err := readFramePayload(bytes.NewReader(make([]byte, 100)), h, 10)
	if _, ok := err.(*FrameLengthError); !ok {
		t.Fatalf("expected *FrameLengthError, got %v", err)
	}
}

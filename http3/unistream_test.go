package http3

import (
	"bytes"
	"testing"

	"github.com/hnakamur/h3quic/varint"
)

// byteReaderStream adapts a bytes.Reader to transport.ReceiveStream for
// tests that only exercise the read path.
type byteReaderStream struct {
	*bytes.Reader
}

func (byteReaderStream) StreamID() int64        { return 0 }
func (byteReaderStream) CancelRead(code uint64) {}

func TestIdentifyUniStream(t *testing.T) {
	buf := varint.Append(nil, uint64(StreamTypeQPACKDecoder))
	got, err := identifyUniStream(byteReaderStream{bytes.NewReader(buf)})
	if err != nil {
		t.Fatal(err)
	}
	if got != StreamTypeQPACKDecoder {
		t.Fatalf("got %v, want %v", got, StreamTypeQPACKDecoder)
	}
}

func TestIdentifyUniStreamSkipsGrease(t *testing.T) {
	var buf []byte
	buf = varint.Append(buf, 0x21) // grease stream type
	buf = varint.Append(buf, uint64(StreamTypeControl))
	got, err := identifyUniStream(byteReaderStream{bytes.NewReader(buf)})
	if err != nil {
		t.Fatal(err)
	}
	if got != StreamTypeControl {
		t.Fatalf("got %v, want %v", got, StreamTypeControl)
	}
}

func TestIsReservedGreaseStream(t *testing.T) {
	for _, id := range []uint64{0x21, 0x40, 0x1f21} {
		if !isReservedGreaseStream(StreamType(id)) {
			t.Errorf("%#x should be a grease stream type", id)
		}
	}
	for _, id := range []uint64{0x0, 0x1, 0x2, 0x3, 0x22} {
		if isReservedGreaseStream(StreamType(id)) {
			t.Errorf("%#x should not be a grease stream type", id)
		}
	}
}

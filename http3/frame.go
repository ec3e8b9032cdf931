package http3

import (
	"fmt"
	"io"

	"github.com/hnakamur/h3quic/varint"
)

// FrameType is an HTTP/3 frame type (RFC 9114 §7.2).
type FrameType uint64

const (
	FrameTypeData         FrameType = 0x0
	FrameTypeHeaders      FrameType = 0x1
	FrameTypeCancelPush   FrameType = 0x3
	FrameTypeSettings     FrameType = 0x4
	FrameTypePushPromise  FrameType = 0x5
	FrameTypeGoaway       FrameType = 0x7
	FrameTypeMaxPushID    FrameType = 0xd
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeData:
		return "DATA"
	case FrameTypeHeaders:
		return "HEADERS"
	case FrameTypeCancelPush:
		return "CANCEL_PUSH"
	case FrameTypeSettings:
		return "SETTINGS"
	case FrameTypePushPromise:
		return "PUSH_PROMISE"
	case FrameTypeGoaway:
		return "GOAWAY"
	case FrameTypeMaxPushID:
		return "MAX_PUSH_ID"
	default:
		return fmt.Sprintf("frame type %#x", uint64(t))
	}
}

// isReservedGrease reports whether t is one of the "grease" frame types
// reserved by RFC 9114 §7.2.8 (0x1f * N + 0x21), which a conforming
// implementation must skip rather than treat as a protocol error.
func isReservedGrease(t FrameType) bool {
	return uint64(t) >= 0x21 && (uint64(t)-0x21)%0x1f == 0
}

// frameHeader is a parsed frame type and payload length, as it appears
// at the start of every HTTP/3 frame (RFC 9114 §7.1).
type frameHeader struct {
	Type   FrameType
	Length uint64
}

// appendFrameHeader appends a frame header for a payload of the given
// length.
func appendFrameHeader(dst []byte, t FrameType, length uint64) []byte {
	dst = varint.Append(dst, uint64(t))
	return varint.Append(dst, length)
}

// readFrameHeader reads the next frame header from r. It loops past
// any grease frame types, consuming and discarding their payloads,
// since those never carry meaning on their own (RFC 9114 §7.2.8).
func readFrameHeader(r io.Reader) (frameHeader, error) {
	br := asByteReader(r)
	for {
		t, err := varint.Read(br)
		if err != nil {
			return frameHeader{}, err
		}
		l, err := varint.Read(br)
		if err != nil {
			return frameHeader{}, err
		}
		ft := FrameType(t)
		if isReservedGrease(ft) {
			if _, err := io.CopyN(io.Discard, r, int64(l)); err != nil {
				return frameHeader{}, err
			}
			continue
		}
		return frameHeader{Type: ft, Length: l}, nil
	}
}

// readFramePayload reads exactly h.Length bytes, rejecting frames whose
// declared length exceeds max (used to bound SETTINGS and GOAWAY
// payloads on the control stream without an unbounded allocation).
func readFramePayload(r io.Reader, h frameHeader, max uint64) ([]byte, error) {
	if h.Length > max {
		return nil, &FrameLengthError{Type: h.Type, Len: h.Length, Max: max}
	}
	buf := make([]byte, h.Length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// byteReader adapts an io.Reader without ReadByte to one, one byte at a
// time; varint.Read only needs io.ByteReader.
type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.buf[:]); err != nil {
		return 0, err
	}
	return b.buf[0], nil
}

func asByteReader(r io.Reader) io.ByteReader {
	if br, ok := r.(io.ByteReader); ok {
		return br
	}
	return &byteReader{r: r}
}

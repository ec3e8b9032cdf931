package qpack

import "io"

// RFC 7541 §5.1 "N-bit prefix integer" encoding, reused verbatim by
// QPACK's instruction streams and field-section prefixes. Unlike the
// QUIC varint in package varint, the continuation signal here is one bit
// per following byte (MSB set = more bytes follow), and the prefix width
// varies per instruction or representation (3 to 8 bits).

// appendPrefixInt appends n encoded with an N-bit prefix, OR'ing the
// high (8-n) bits of the first byte with flagBits (already shifted into
// place by the caller).
func appendPrefixInt(dst []byte, flagBits byte, n int, value uint64) []byte {
	max := uint64(1)<<uint(n) - 1
	if value < max {
		return append(dst, flagBits|byte(value))
	}
	dst = append(dst, flagBits|byte(max))
	value -= max
	for value >= 128 {
		dst = append(dst, byte(value&0x7f|0x80))
		value >>= 7
	}
	return append(dst, byte(value))
}

// readPrefixInt decodes an N-bit prefix integer given the already-read
// first byte (with flag bits still present) and the prefix width n.
func readPrefixInt(first byte, n int, r io.ByteReader) (uint64, error) {
	max := uint64(1)<<uint(n) - 1
	value := uint64(first) & max
	if value < max {
		return value, nil
	}
	var m uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, ErrTruncatedInstruction
		}
		value += uint64(b&0x7f) << m
		if b&0x80 == 0 {
			return value, nil
		}
		m += 7
		if m > 62 {
			return 0, ErrIntegerOverflow
		}
	}
}

package qpack

import "io"

// appendStringOp appends a QPACK string literal: an H-bit (Huffman flag)
// in the bit just above an N-bit prefix length, followed by the
// string bytes (Huffman-coded if that's shorter, raw otherwise). opcode
// carries any additional fixed bits (e.g. an instruction opcode) that
// share the first byte with the H-bit and length prefix.
func appendStringOp(dst []byte, opcode byte, n int, s string) []byte {
	huffLen := huffmanEncodedLen(s)
	if huffLen < len(s) {
		hBit := byte(1) << uint(n)
		dst = appendPrefixInt(dst, opcode|hBit, n, uint64(huffLen))
		return huffmanAppend(dst, s)
	}
	dst = appendPrefixInt(dst, opcode, n, uint64(len(s)))
	return append(dst, s...)
}

func appendString(dst []byte, n int, s string) []byte {
	return appendStringOp(dst, 0, n, s)
}

func readString(first byte, n int, r io.ByteReader) (string, error) {
	huff := first&(1<<uint(n)) != 0
	l, err := readPrefixInt(first, n, r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, l)
	for i := range buf {
		b, err := r.ReadByte()
		if err != nil {
			return "", ErrTruncatedInstruction
		}
		buf[i] = b
	}
	if huff {
		return huffmanDecode(buf)
	}
	return string(buf), nil
}

// Encoder-stream instructions (this endpoint's encoder -> peer's decoder).

func appendSetDynamicTableCapacity(dst []byte, capacity int) []byte {
	return appendPrefixInt(dst, 0x20, 5, uint64(capacity))
}

func appendInsertWithNameReference(dst []byte, nameIdx int, static bool, value string) []byte {
	flag := byte(0x80)
	if static {
		flag |= 0x40
	}
	dst = appendPrefixInt(dst, flag, 6, uint64(nameIdx))
	return appendString(dst, 7, value)
}

func appendInsertWithoutNameReference(dst []byte, name, value string) []byte {
	dst = appendStringOp(dst, 0x40, 5, name)
	return appendString(dst, 7, value)
}

func appendDuplicate(dst []byte, idx int) []byte {
	return appendPrefixInt(dst, 0x00, 5, uint64(idx))
}

// encoderInstructionKind identifies a decoded encoder-stream instruction.
type encoderInstructionKind int

const (
	insInsertWithNameRef encoderInstructionKind = iota
	insInsertWithoutNameRef
	insDuplicate
	insSetCapacity
)

type encoderInstruction struct {
	kind     encoderInstructionKind
	nameIdx  int
	static   bool
	name     string
	value    string
	dupIdx   int
	capacity int
}

// readEncoderInstruction parses one instruction from the encoder side
// stream.
func readEncoderInstruction(r io.ByteReader) (encoderInstruction, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return encoderInstruction{}, err
	}
	switch {
	case b0&0x80 != 0: // 1Tiiiiii: Insert With Name Reference
		static := b0&0x40 != 0
		idx, err := readPrefixInt(b0, 6, r)
		if err != nil {
			return encoderInstruction{}, ErrEncoderStreamError
		}
		val, err := readValueString(r)
		if err != nil {
			return encoderInstruction{}, ErrEncoderStreamError
		}
		return encoderInstruction{kind: insInsertWithNameRef, nameIdx: int(idx), static: static, value: val}, nil
	case b0&0x40 != 0: // 01Hnnnnn: Insert Without Name Reference
		name, err := readString(b0, 5, r)
		if err != nil {
			return encoderInstruction{}, ErrEncoderStreamError
		}
		val, err := readValueString(r)
		if err != nil {
			return encoderInstruction{}, ErrEncoderStreamError
		}
		return encoderInstruction{kind: insInsertWithoutNameRef, name: name, value: val}, nil
	case b0&0x20 != 0: // 001nnnnn: Set Dynamic Table Capacity
		cap, err := readPrefixInt(b0, 5, r)
		if err != nil {
			return encoderInstruction{}, ErrEncoderStreamError
		}
		return encoderInstruction{kind: insSetCapacity, capacity: int(cap)}, nil
	default: // 000nnnnn: Duplicate
		idx, err := readPrefixInt(b0, 5, r)
		if err != nil {
			return encoderInstruction{}, ErrEncoderStreamError
		}
		return encoderInstruction{kind: insDuplicate, dupIdx: int(idx)}, nil
	}
}

func readValueString(r io.ByteReader) (string, error) {
	b, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	return readString(b, 7, r)
}

// Decoder-stream instructions (this endpoint's decoder -> peer's encoder).

func appendSectionAcknowledgement(dst []byte, streamID uint64) []byte {
	return appendPrefixInt(dst, 0x80, 7, streamID)
}

func appendStreamCancellation(dst []byte, streamID uint64) []byte {
	return appendPrefixInt(dst, 0x40, 6, streamID)
}

func appendInsertCountIncrement(dst []byte, increment uint64) []byte {
	return appendPrefixInt(dst, 0x00, 6, increment)
}

type decoderInstructionKind int

const (
	insSectionAck decoderInstructionKind = iota
	insStreamCancellation
	insInsertCountIncrement
)

type decoderInstruction struct {
	kind      decoderInstructionKind
	streamID  uint64
	increment uint64
}

func readDecoderInstruction(r io.ByteReader) (decoderInstruction, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return decoderInstruction{}, err
	}
	switch {
	case b0&0x80 != 0:
		id, err := readPrefixInt(b0, 7, r)
		if err != nil {
			return decoderInstruction{}, ErrDecoderStreamError
		}
		return decoderInstruction{kind: insSectionAck, streamID: id}, nil
	case b0&0x40 != 0:
		id, err := readPrefixInt(b0, 6, r)
		if err != nil {
			return decoderInstruction{}, ErrDecoderStreamError
		}
		return decoderInstruction{kind: insStreamCancellation, streamID: id}, nil
	default:
		inc, err := readPrefixInt(b0, 6, r)
		if err != nil {
			return decoderInstruction{}, ErrDecoderStreamError
		}
		return decoderInstruction{kind: insInsertCountIncrement, increment: inc}, nil
	}
}

package qpack

import "io"

// Header field line representations within a HEADERS frame payload,
// RFC 9204 §4.5.2-§4.5.6. Distinct from the side-channel instructions in
// instructions.go.

func appendIndexed(dst []byte, static bool, idx int) []byte {
	flag := byte(0x80)
	if static {
		flag |= 0x40
	}
	return appendPrefixInt(dst, flag, 6, uint64(idx))
}

func appendIndexedPostBase(dst []byte, idx int) []byte {
	return appendPrefixInt(dst, 0x10, 4, uint64(idx))
}

func appendLiteralWithNameRef(dst []byte, never bool, static bool, idx int, value string) []byte {
	flag := byte(0x40)
	if never {
		flag |= 0x20
	}
	if static {
		flag |= 0x10
	}
	dst = appendPrefixInt(dst, flag, 4, uint64(idx))
	return appendString(dst, 7, value)
}

func appendLiteralWithPostBaseNameRef(dst []byte, never bool, idx int, value string) []byte {
	flag := byte(0)
	if never {
		flag = 0x08
	}
	dst = appendPrefixInt(dst, flag, 3, uint64(idx))
	return appendString(dst, 7, value)
}

func appendLiteralWithLiteralName(dst []byte, never bool, name, value string) []byte {
	flag := byte(0x20)
	if never {
		flag |= 0x10
	}
	dst = appendStringOp(dst, flag, 3, name)
	return appendString(dst, 7, value)
}

// fieldRepr is the parsed form of one representation, resolved against
// the static table and/or the caller's dynamic-table lookup.
type fieldRepr struct {
	indexed      bool
	static       bool
	postBase     bool
	index        int
	name         string // set when not a name-indexed form
	value        string
	hasName      bool
	never        bool
}

func readFieldRepr(r io.ByteReader) (fieldRepr, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return fieldRepr{}, err
	}
	switch {
	case b0&0x80 != 0: // Indexed Field Line
		static := b0&0x40 != 0
		idx, err := readPrefixInt(b0, 6, r)
		if err != nil {
			return fieldRepr{}, ErrDecompressionFailed
		}
		return fieldRepr{indexed: true, static: static, index: int(idx)}, nil
	case b0&0x40 != 0: // Literal Field Line With Name Reference
		never := b0&0x20 != 0
		static := b0&0x10 != 0
		idx, err := readPrefixInt(b0, 4, r)
		if err != nil {
			return fieldRepr{}, ErrDecompressionFailed
		}
		val, err := readValueString(r)
		if err != nil {
			return fieldRepr{}, ErrDecompressionFailed
		}
		return fieldRepr{static: static, index: int(idx), value: val, never: never}, nil
	case b0&0x20 != 0: // Literal Field Line With Literal Name
		never := b0&0x10 != 0
		name, err := readString(b0, 3, r)
		if err != nil {
			return fieldRepr{}, ErrDecompressionFailed
		}
		val, err := readValueString(r)
		if err != nil {
			return fieldRepr{}, ErrDecompressionFailed
		}
		return fieldRepr{hasName: true, name: name, value: val, never: never}, nil
	case b0&0x10 != 0: // Indexed Field Line With Post-Base Index
		idx, err := readPrefixInt(b0, 4, r)
		if err != nil {
			return fieldRepr{}, ErrDecompressionFailed
		}
		return fieldRepr{indexed: true, postBase: true, index: int(idx)}, nil
	default: // Literal Field Line With Post-Base Name Reference
		never := b0&0x08 != 0
		idx, err := readPrefixInt(b0, 3, r)
		if err != nil {
			return fieldRepr{}, ErrDecompressionFailed
		}
		val, err := readValueString(r)
		if err != nil {
			return fieldRepr{}, ErrDecompressionFailed
		}
		return fieldRepr{postBase: true, index: int(idx), value: val, never: never}, nil
	}
}

package qpack

import "io"

// sectionPrefix is the two-field prefix (RFC 9204 §4.5.1) that begins
// every HEADERS-frame payload: an encoded Required Insert Count and a
// signed Base (relative to the insert count, used for post-base
// references).
type sectionPrefix struct {
	requiredInsertCount uint64
	base                uint64
}

// encodeRequiredInsertCount applies RFC 9204 §4.5.1.1's wraparound so a
// small field fits regardless of how large the real insertion counter
// has grown.
func encodeRequiredInsertCount(ric uint64, maxEntries int) uint64 {
	if ric == 0 {
		return 0
	}
	if maxEntries == 0 {
		// No dynamic table in play; ric should never be nonzero here.
		return ric + 1
	}
	fullRange := uint64(2 * maxEntries)
	return ric%fullRange + 1
}

// decodeRequiredInsertCount reverses encodeRequiredInsertCount given the
// decoder's current total insert count and table MaxEntries.
func decodeRequiredInsertCount(encoded uint64, maxEntries int, totalInserts uint64) (uint64, error) {
	if encoded == 0 {
		return 0, nil
	}
	if maxEntries == 0 {
		return 0, ErrDecompressionFailed
	}
	fullRange := uint64(2 * maxEntries)
	if encoded > fullRange {
		return 0, ErrDecompressionFailed
	}
	maxValue := totalInserts + uint64(maxEntries)
	maxWrapped := (maxValue / fullRange) * fullRange
	ric := maxWrapped + encoded - 1
	if ric > maxValue {
		if ric < fullRange {
			return 0, ErrDecompressionFailed
		}
		ric -= fullRange
	}
	if ric == 0 {
		return 0, ErrDecompressionFailed
	}
	return ric, nil
}

func appendSectionPrefix(dst []byte, p sectionPrefix) []byte {
	dst = appendPrefixInt(dst, 0, 8, p.requiredInsertCount)
	// Base is always encoded non-negative here: this implementation
	// never emits post-base indices (base is the table's insert count
	// when the block is encoded, never below the required insert count),
	// so the sign bit (top bit of the second byte) is always 0 and
	// DeltaBase == base - requiredInsertCount when base >= ric.
	if p.base >= p.requiredInsertCount {
		delta := p.base - p.requiredInsertCount
		return appendPrefixInt(dst, 0, 7, delta)
	}
	delta := p.requiredInsertCount - p.base - 1
	return appendPrefixInt(dst, 0x80, 7, delta)
}

func readSectionPrefix(r io.ByteReader) (sectionPrefix, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return sectionPrefix{}, err
	}
	ric, err := readPrefixInt(b0, 8, r)
	if err != nil {
		return sectionPrefix{}, err
	}
	b1, err := r.ReadByte()
	if err != nil {
		return sectionPrefix{}, err
	}
	sign := b1&0x80 != 0
	delta, err := readPrefixInt(b1, 7, r)
	if err != nil {
		return sectionPrefix{}, err
	}
	var base uint64
	if !sign {
		base = ric + delta
	} else {
		if delta+1 > ric {
			return sectionPrefix{}, ErrDecompressionFailed
		}
		base = ric - delta - 1
	}
	return sectionPrefix{requiredInsertCount: ric, base: base}, nil
}

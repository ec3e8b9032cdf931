package qpack

import "errors"

// These map onto RFC 9204 §8.1's three QPACK application error codes,
// each a connection error at the http3 layer.
var (
	// ErrDecompressionFailed covers a malformed header block, and
	// resource exhaustion (blocked-streams bound exceeded, table
	// overflow).
	ErrDecompressionFailed = errors.New("qpack: decompression failed")
	// ErrEncoderStreamError covers a malformed instruction arriving on
	// the encoder side stream.
	ErrEncoderStreamError = errors.New("qpack: encoder stream error")
	// ErrDecoderStreamError covers a malformed instruction arriving on
	// the decoder side stream.
	ErrDecoderStreamError = errors.New("qpack: decoder stream error")

	ErrTruncatedInstruction = errors.New("qpack: truncated instruction")
	ErrIntegerOverflow      = errors.New("qpack: integer overflow")
	ErrUnknownIndex         = errors.New("qpack: reference to unknown table index")
)

// ErrBlocked describes a block whose required insert count has not yet
// been satisfied by the encoder stream. Decoder.Submit does not return
// it: Submit reports that case through its blocked result and parks the
// block itself.
type ErrBlocked struct {
	RequiredInsertCount uint64
}

func (e *ErrBlocked) Error() string {
	return "qpack: blocked on required insert count"
}

package qpack

import (
	"bytes"
	"io"
)

// UnblockedResult is returned by ApplyEncoderInstruction (which calls
// the unexported release after every applied instruction) for each
// previously-parked block that can now be decoded.
type UnblockedResult struct {
	StreamID uint64
	Fields   []HeaderField
	Err      error
}

type parkedBlock struct {
	streamID            uint64
	payload             []byte
	requiredInsertCount uint64
	base                uint64
}

// Decoder is this endpoint's QPACK decoder: it applies instructions from
// the peer's encoder stream and decodes HEADERS frame payloads arriving
// on request streams, parking those that arrive before the dynamic
// table has caught up.
type Decoder struct {
	table             *Table
	maxBlockedStreams int // this endpoint's advertised QPACK_BLOCKED_STREAMS
	parked            []parkedBlock
	instrBuf          []byte
}

// NewDecoder creates a decoder whose dynamic table starts at capacity 0;
// call SetMaxBlockedStreams once local settings are known.
func NewDecoder(maxBlockedStreams int) *Decoder {
	return &Decoder{table: NewTable(0), maxBlockedStreams: maxBlockedStreams}
}

// SetMaxBlockedStreams updates the decoder's own blocked-stream bound.
func (d *Decoder) SetMaxBlockedStreams(n int) { d.maxBlockedStreams = n }

// DrainInstructions returns and clears bytes queued for the decoder side
// stream (section acknowledgements, stream cancellations, insert-count
// increments).
func (d *Decoder) DrainInstructions() []byte {
	b := d.instrBuf
	d.instrBuf = nil
	return b
}

// ApplyEncoderInstruction reads and applies exactly one instruction from
// the peer's encoder stream, then attempts to release any blocks that
// instruction unblocked.
func (d *Decoder) ApplyEncoderInstruction(r io.ByteReader) ([]UnblockedResult, error) {
	ins, err := readEncoderInstruction(r)
	if err != nil {
		return nil, err
	}
	switch ins.kind {
	case insSetCapacity:
		if !d.table.SetCapacity(ins.capacity) {
			return nil, ErrEncoderStreamError
		}
	case insInsertWithNameRef:
		var name string
		if ins.static {
			if ins.nameIdx < 0 || ins.nameIdx >= len(staticTable) {
				return nil, ErrEncoderStreamError
			}
			name = staticTable[ins.nameIdx].Name
		} else {
			abs := d.table.InsertCount() - 1 - ins.nameIdx
			e, ok := d.table.entryByAbsolute(abs)
			if !ok {
				return nil, ErrEncoderStreamError
			}
			name = e.Name
		}
		if !d.table.Insert(name, ins.value) {
			return nil, ErrEncoderStreamError
		}
	case insInsertWithoutNameRef:
		if !d.table.Insert(ins.name, ins.value) {
			return nil, ErrEncoderStreamError
		}
	case insDuplicate:
		abs := d.table.InsertCount() - 1 - ins.dupIdx
		e, ok := d.table.entryByAbsolute(abs)
		if !ok {
			return nil, ErrEncoderStreamError
		}
		if !d.table.Insert(e.Name, e.Value) {
			return nil, ErrEncoderStreamError
		}
	}
	return d.release(), nil
}

// Submit decodes a HEADERS frame payload for streamID. If the block's
// required insert count has not yet been satisfied it is parked and
// (blocked=true, err=nil) is returned; the eventual result surfaces
// later as an UnblockedResult from ApplyEncoderInstruction. If the
// connection-wide blocked-stream bound
// would be exceeded, it returns ErrDecompressionFailed instead of
// parking (RFC 9204 §2.1.2).
func (d *Decoder) Submit(streamID uint64, payload []byte) (fields []HeaderField, blocked bool, err error) {
	r := bytes.NewReader(payload)
	prefix, err := readSectionPrefix(r)
	if err != nil {
		return nil, false, ErrDecompressionFailed
	}
	rest := payload[len(payload)-r.Len():]

	if prefix.requiredInsertCount > uint64(d.table.InsertCount()) {
		if len(d.parked) >= d.maxBlockedStreams {
			return nil, false, ErrDecompressionFailed
		}
		d.parked = append(d.parked, parkedBlock{
			streamID:            streamID,
			payload:             rest,
			requiredInsertCount: prefix.requiredInsertCount,
			base:                prefix.base,
		})
		return nil, true, nil
	}

	fields, err = d.decodeFields(rest, prefix.base)
	if err == nil {
		d.acknowledgeSection(streamID)
	}
	return fields, false, err
}

// release scans the parked list for blocks now satisfied by the current
// insertion counter and decodes them, in FIFO (arrival) order.
func (d *Decoder) release() []UnblockedResult {
	if len(d.parked) == 0 {
		return nil
	}
	var results []UnblockedResult
	remaining := d.parked[:0:0]
	for _, p := range d.parked {
		if p.requiredInsertCount > uint64(d.table.InsertCount()) {
			remaining = append(remaining, p)
			continue
		}
		fields, err := d.decodeFields(p.payload, p.base)
		if err == nil {
			d.acknowledgeSection(p.streamID)
		}
		results = append(results, UnblockedResult{StreamID: p.streamID, Fields: fields, Err: err})
	}
	d.parked = remaining
	return results
}

func (d *Decoder) acknowledgeSection(streamID uint64) {
	d.instrBuf = appendSectionAcknowledgement(d.instrBuf, streamID)
}

// CancelStream must be called when a request stream is reset before its
// header block was decoded, so the peer encoder can stop tracking
// references it made for that stream.
func (d *Decoder) CancelStream(streamID uint64) {
	d.instrBuf = appendStreamCancellation(d.instrBuf, streamID)
	remaining := d.parked[:0:0]
	for _, p := range d.parked {
		if p.streamID != streamID {
			remaining = append(remaining, p)
		}
	}
	d.parked = remaining
}

func (d *Decoder) decodeFields(payload []byte, base uint64) ([]HeaderField, error) {
	r := bytes.NewReader(payload)
	var fields []HeaderField
	for r.Len() > 0 {
		repr, err := readFieldRepr(r)
		if err != nil {
			return nil, ErrDecompressionFailed
		}
		f, err := d.resolve(repr, base)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	if err := ValidateFieldOrder(fields); err != nil {
		return nil, ErrDecompressionFailed
	}
	return fields, nil
}

func (d *Decoder) resolve(repr fieldRepr, base uint64) (HeaderField, error) {
	if repr.indexed {
		if repr.static {
			if repr.index < 0 || repr.index >= len(staticTable) {
				return HeaderField{}, ErrDecompressionFailed
			}
			return staticTable[repr.index], nil
		}
		abs, err := resolveAbsolute(base, repr.index, repr.postBase)
		if err != nil {
			return HeaderField{}, err
		}
		e, ok := d.table.entryByAbsolute(abs)
		if !ok {
			return HeaderField{}, ErrDecompressionFailed
		}
		return e.HeaderField, nil
	}
	if repr.hasName {
		return HeaderField{Name: repr.name, Value: repr.value, Sensitive: repr.never}, nil
	}
	if repr.static {
		if repr.index < 0 || repr.index >= len(staticTable) {
			return HeaderField{}, ErrDecompressionFailed
		}
		return HeaderField{Name: staticTable[repr.index].Name, Value: repr.value, Sensitive: repr.never}, nil
	}
	abs, err := resolveAbsolute(base, repr.index, repr.postBase)
	if err != nil {
		return HeaderField{}, err
	}
	e, ok := d.table.entryByAbsolute(abs)
	if !ok {
		return HeaderField{}, ErrDecompressionFailed
	}
	return HeaderField{Name: e.Name, Value: repr.value, Sensitive: repr.never}, nil
}

func resolveAbsolute(base uint64, idx int, postBase bool) (int, error) {
	if postBase {
		return int(base) + idx, nil
	}
	abs := int(base) - 1 - idx
	if abs < 0 {
		return 0, ErrDecompressionFailed
	}
	return abs, nil
}

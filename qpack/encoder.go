package qpack

import "io"

type blockUsage struct {
	streamID            uint64
	refs                []int
	requiredInsertCount uint64
}

// Encoder is this endpoint's QPACK encoder: it compresses outgoing
// field sections against a dynamic table synchronized with the peer's
// decoder over the encoder side stream, and tracks acknowledgements
// arriving on the decoder side stream so it knows when it is safe to
// evict referenced entries.
type Encoder struct {
	table             *Table
	maxBlockedStreams int // peer's advertised QPACK_BLOCKED_STREAMS
	knownReceived     uint64
	blockedStreams    int
	pending           map[uint64][]blockUsage // per-stream FIFO of unacknowledged blocks
	instrBuf          []byte
}

// NewEncoder creates an encoder with the given dynamic table capacity
// (min(local_max, peer_max), RFC 9204 §3.2.2) and blocked-stream bound.
func NewEncoder(capacity, maxBlockedStreams int) *Encoder {
	return &Encoder{
		table:             NewTable(capacity),
		maxBlockedStreams: maxBlockedStreams,
		pending:           make(map[uint64][]blockUsage),
	}
}

// SetMaxBlockedStreams updates the peer-advertised bound (e.g. once the
// peer's SETTINGS frame is observed).
func (e *Encoder) SetMaxBlockedStreams(n int) { e.maxBlockedStreams = n }

// SetCapacity resizes the dynamic table and queues a
// Set-Dynamic-Table-Capacity instruction if it succeeded.
func (e *Encoder) SetCapacity(c int) bool {
	if !e.table.SetCapacity(c) {
		return false
	}
	e.instrBuf = appendSetDynamicTableCapacity(e.instrBuf, c)
	return true
}

// DrainInstructions returns and clears bytes queued for the encoder side
// stream.
func (e *Encoder) DrainInstructions() []byte {
	b := e.instrBuf
	e.instrBuf = nil
	return b
}

// WriteHeaderBlock compresses fields for streamID and returns the
// HEADERS frame payload (section prefix + representations). Any table
// insertions needed are queued internally; call DrainInstructions to
// obtain the bytes that must reach the encoder side stream before (or
// interleaved with, so long as it precedes) the HEADERS frame on the
// wire.
func (e *Encoder) WriteHeaderBlock(streamID uint64, fields []HeaderField) ([]byte, error) {
	if err := ValidateFieldOrder(fields); err != nil {
		return nil, err
	}

	type pick struct {
		repr func(base uint64) []byte
		abs  int // -1 if no dynamic reference used
	}
	picks := make([]pick, len(fields))
	largestAbs := -1

	for i, h := range fields {
		if h.Sensitive {
			picks[i] = pick{abs: -1, repr: makeLiteralLiteralRepr(true, h.Name, h.Value)}
			continue
		}

		if idx, ok := lookupStaticFull(h.Name, h.Value); ok {
			picks[i] = pick{abs: -1, repr: makeIndexedStaticRepr(idx)}
			continue
		}

		if abs, ok := e.findDynamicFull(h.Name, h.Value); ok {
			if abs > largestAbs {
				largestAbs = abs
			}
			picks[i] = pick{abs: abs, repr: makeIndexedDynamicRepr(abs)}
			continue
		}

		nameAbs, nameStatic, nameIdx, hasName := e.findName(h.Name)

		allowBlocking := e.blockedStreams < e.maxBlockedStreams
		canInsert := h.size() <= e.table.Capacity() && (allowBlocking || e.wouldBeAcknowledged())
		if canInsert && e.insertEntry(h, nameAbs, nameStatic, nameIdx, hasName) {
			abs := e.table.InsertCount() - 1
			if abs > largestAbs {
				largestAbs = abs
			}
			picks[i] = pick{abs: abs, repr: makeIndexedDynamicRepr(abs)}
			continue
		}

		if hasName {
			if nameStatic {
				picks[i] = pick{abs: -1, repr: makeLiteralNameRefStaticRepr(nameIdx, h.Value)}
			} else {
				if nameAbs > largestAbs {
					largestAbs = nameAbs
				}
				abs := nameAbs
				picks[i] = pick{abs: abs, repr: makeLiteralNameRefDynamicRepr(abs, h.Value)}
			}
			continue
		}

		picks[i] = pick{abs: -1, repr: makeLiteralLiteralRepr(false, h.Name, h.Value)}
	}

	base := uint64(e.table.InsertCount())
	var requiredInsertCount uint64
	if largestAbs >= 0 {
		requiredInsertCount = uint64(largestAbs + 1)
	}

	payload := appendSectionPrefix(nil, sectionPrefix{requiredInsertCount: requiredInsertCount, base: base})
	var usedAbs []int
	for _, p := range picks {
		payload = append(payload, p.repr(base)...)
		if p.abs >= 0 {
			e.table.addRef(p.abs)
			usedAbs = append(usedAbs, p.abs)
		}
	}

	wasBlocking := requiredInsertCount > e.knownReceived
	if wasBlocking {
		e.blockedStreams++
	}
	e.pending[streamID] = append(e.pending[streamID], blockUsage{
		streamID:            streamID,
		refs:                usedAbs,
		requiredInsertCount: requiredInsertCount,
	})

	return payload, nil
}

// wouldBeAcknowledged reports whether inserting one more entry right now
// would still keep the block non-blocking, i.e. whether the insert
// itself becomes visible to the peer before this block needs it. This
// implementation takes the conservative position that any *new* insert
// always requires at least one round trip, so it only returns true when
// there is no blocking budget concern at all (delegated to the
// allowBlocking check at the call site); kept as a seam for a future,
// less conservative policy.
func (e *Encoder) wouldBeAcknowledged() bool { return false }

func (e *Encoder) findDynamicFull(name, value string) (int, bool) {
	for i := len(e.table.entries) - 1; i >= 0; i-- {
		en := e.table.entries[i]
		if en.Name == name && en.Value == value {
			return en.index, true
		}
	}
	return 0, false
}

// findName looks for a name-only match, preferring the static table
// (it never blocks or gets evicted).
func (e *Encoder) findName(name string) (abs int, static bool, idx int, ok bool) {
	if idx, ok := lookupStaticName(name); ok {
		return 0, true, idx, true
	}
	for i := len(e.table.entries) - 1; i >= 0; i-- {
		en := e.table.entries[i]
		if en.Name == name {
			return en.index, false, 0, true
		}
	}
	return 0, false, 0, false
}

func (e *Encoder) insertEntry(h HeaderField, nameAbs int, nameStatic bool, nameIdx int, hasName bool) bool {
	if !e.table.Insert(h.Name, h.Value) {
		return false
	}
	if !hasName {
		e.instrBuf = appendInsertWithoutNameReference(e.instrBuf, h.Name, h.Value)
		return true
	}
	if nameStatic {
		e.instrBuf = appendInsertWithNameReference(e.instrBuf, nameIdx, true, h.Value)
		return true
	}
	base := uint64(e.table.InsertCount() - 1) // exclude the entry we just inserted
	rel := int(base) - 1 - nameAbs
	e.instrBuf = appendInsertWithNameReference(e.instrBuf, rel, false, h.Value)
	return true
}

func makeIndexedStaticRepr(idx int) func(uint64) []byte {
	return func(uint64) []byte { return appendIndexed(nil, true, idx) }
}

func makeIndexedDynamicRepr(abs int) func(uint64) []byte {
	return func(base uint64) []byte {
		rel := int(base) - 1 - abs
		return appendIndexed(nil, false, rel)
	}
}

func makeLiteralNameRefStaticRepr(idx int, value string) func(uint64) []byte {
	return func(uint64) []byte { return appendLiteralWithNameRef(nil, false, true, idx, value) }
}

func makeLiteralNameRefDynamicRepr(abs int, value string) func(uint64) []byte {
	return func(base uint64) []byte {
		rel := int(base) - 1 - abs
		return appendLiteralWithNameRef(nil, false, false, rel, value)
	}
}

func makeLiteralLiteralRepr(never bool, name, value string) func(uint64) []byte {
	return func(uint64) []byte { return appendLiteralWithLiteralName(nil, never, name, value) }
}

// ApplyDecoderInstruction reads and applies one instruction from the
// peer's decoder stream, releasing table references as blocks are
// acknowledged or cancelled.
func (e *Encoder) ApplyDecoderInstruction(r io.ByteReader) error {
	ins, err := readDecoderInstruction(r)
	if err != nil {
		return err
	}
	switch ins.kind {
	case insSectionAck:
		list := e.pending[ins.streamID]
		if len(list) == 0 {
			return ErrDecoderStreamError
		}
		bu := list[0]
		e.pending[ins.streamID] = list[1:]
		for _, abs := range bu.refs {
			e.table.release(abs)
		}
		if bu.requiredInsertCount > e.knownReceived {
			e.knownReceived = bu.requiredInsertCount
		}
	case insStreamCancellation:
		list := e.pending[ins.streamID]
		delete(e.pending, ins.streamID)
		for _, bu := range list {
			for _, abs := range bu.refs {
				e.table.release(abs)
			}
		}
	case insInsertCountIncrement:
		newCount := e.knownReceived + ins.increment
		if ins.increment == 0 || newCount > uint64(e.table.InsertCount()) {
			return ErrDecoderStreamError
		}
		e.knownReceived = newCount
	}
	e.recomputeBlockedStreams()
	return nil
}

func (e *Encoder) recomputeBlockedStreams() {
	n := 0
	for _, list := range e.pending {
		for _, bu := range list {
			if bu.requiredInsertCount > e.knownReceived {
				n++
			}
		}
	}
	e.blockedStreams = n
}

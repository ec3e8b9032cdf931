package qpack

// entry is one row of the dynamic table. index is its absolute insertion
// index (the first entry ever inserted is index 0); refs counts
// in-flight header blocks that reference it and have not yet been
// acknowledged: the encoder must never emit a dynamic reference whose
// referenced entry could be evicted before the peer decoder
// acknowledges it (RFC 9204 §2.1.1).
type entry struct {
	index int
	HeaderField
	refs int
}

// Table is the QPACK dynamic table. The same type backs both the
// encoder's table (this endpoint's inserts) and the decoder's mirror of
// the peer's table (inserts applied from peer instructions); whichever
// side owns it is the only one allowed to call Insert/SetCapacity.
type Table struct {
	entries  []entry // oldest first
	capacity int     // octets, min(local_max, peer_max)
	size     int     // sum of entry sizes currently held
	inserted int      // total number of successful inserts ever made
}

// NewTable creates an empty dynamic table with the given capacity.
func NewTable(capacity int) *Table {
	return &Table{capacity: capacity}
}

// Capacity returns the table's current capacity in octets.
func (t *Table) Capacity() int { return t.capacity }

// InsertCount is the number of successful insertions made so far
// (RFC 9204's "Insert Count").
func (t *Table) InsertCount() int { return t.inserted }

// SetCapacity changes the table's capacity, evicting from the oldest end
// until size fits. It refuses (returns false) if eviction would require
// removing a still-referenced entry, matching the no-evict-while-
// referenced invariant.
func (t *Table) SetCapacity(c int) bool {
	if !t.evictTo(c) {
		return false
	}
	t.capacity = c
	return true
}

func (t *Table) evictTo(targetCapacity int) bool {
	i := 0
	size := t.size
	for size > targetCapacity && i < len(t.entries) {
		if t.entries[i].refs > 0 {
			return false
		}
		size -= t.entries[i].size()
		i++
	}
	if size > targetCapacity {
		return false
	}
	t.entries = t.entries[i:]
	t.size = size
	return true
}

// Insert adds a new entry, evicting older unreferenced entries as
// needed to make room. It returns false if the entry does not fit even
// after evicting everything evictable (caller must fall back to a
// literal representation).
func (t *Table) Insert(name, value string) bool {
	f := HeaderField{Name: name, Value: value}
	need := f.size()
	if need > t.capacity {
		return false
	}
	if !t.evictTo(t.capacity - need) {
		return false
	}
	t.entries = append(t.entries, entry{index: t.inserted, HeaderField: f})
	t.size += need
	t.inserted++
	return true
}

// entryByAbsolute returns the entry with the given absolute index, or
// false if it has already been evicted or was never inserted.
func (t *Table) entryByAbsolute(idx int) (*entry, bool) {
	if len(t.entries) == 0 {
		return nil, false
	}
	base := t.entries[0].index
	pos := idx - base
	if pos < 0 || pos >= len(t.entries) {
		return nil, false
	}
	return &t.entries[pos], true
}

// addRef/release track outstanding references for the eviction
// tie-break; release is called once a block referencing the entry has
// been acknowledged by the peer (or the block is abandoned).
func (t *Table) addRef(idx int) {
	if e, ok := t.entryByAbsolute(idx); ok {
		e.refs++
	}
}

func (t *Table) release(idx int) {
	if e, ok := t.entryByAbsolute(idx); ok && e.refs > 0 {
		e.refs--
	}
}

// maxEntries is the table's "MaxEntries" per RFC 9204 §4.5.1.1, used by
// the required-insert-count wraparound arithmetic.
func (t *Table) maxEntries() int {
	return t.capacity / 32
}

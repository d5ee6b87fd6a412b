package heap

import "github.com/clarete/golox/internal/value"

const tableMaxLoad = 0.75

type tableEntry struct {
	key   *String
	value value.Value
}

// Table is an open-addressed hash map keyed by interned-string
// references, with tombstones for deletion, a 0.75 max load factor
// and linear probing modulo a power-of-two capacity. It backs global
// variables, class method tables, instance field tables, and the
// heap's string interner.
type Table struct {
	count   int
	entries []tableEntry
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{}
}

func isEmptyEntry(e tableEntry) bool {
	return e.key == nil && e.value.IsNil()
}

func isTombstone(e tableEntry) bool {
	return e.key == nil && e.value.IsBool() && e.value.AsBool()
}

// findEntry returns the slot key should occupy: either the existing
// entry for key, the first tombstone seen along the probe sequence,
// or the first truly empty slot.
func findEntry(entries []tableEntry, capacity int, key *String) *tableEntry {
	index := int(key.Hash) & (capacity - 1)
	var tombstone *tableEntry
	for {
		e := &entries[index]
		if e.key == nil {
			if isEmptyEntry(*e) {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key == key {
			return e
		}
		index = (index + 1) & (capacity - 1)
	}
}

func (t *Table) adjustCapacity(capacity int) {
	entries := make([]tableEntry, capacity)
	t.count = 0
	for _, e := range t.entries {
		if e.key == nil {
			continue
		}
		dst := findEntry(entries, capacity, e.key)
		dst.key = e.key
		dst.value = e.value
		t.count++
	}
	t.entries = entries
}

func growCapacity(capacity int) int {
	if capacity < 8 {
		return 8
	}
	return capacity * 2
}

// Get looks up key, returning its value and whether it was present.
func (t *Table) Get(key *String) (value.Value, bool) {
	if t.count == 0 {
		return value.Nil(), false
	}
	e := findEntry(t.entries, len(t.entries), key)
	if e.key == nil {
		return value.Nil(), false
	}
	return e.value, true
}

// Set inserts or overwrites key's value, returning true if this
// created a brand new entry.
func (t *Table) Set(key *String, v value.Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.adjustCapacity(growCapacity(len(t.entries)))
	}
	e := findEntry(t.entries, len(t.entries), key)
	isNew := e.key == nil
	if isNew && isEmptyEntry(*e) {
		t.count++
	}
	e.key = key
	e.value = v
	return isNew
}

// Delete removes key, leaving a tombstone behind so later probe
// sequences that passed through this slot remain valid.
func (t *Table) Delete(key *String) bool {
	if t.count == 0 {
		return false
	}
	e := findEntry(t.entries, len(t.entries), key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = value.Bool(true)
	return true
}

// AddAll copies every entry of from into t, overwriting existing keys.
// Used by OP_INHERIT to seed a subclass's method table from its
// superclass.
func (t *Table) AddAll(from *Table) {
	for _, e := range from.entries {
		if e.key != nil {
			t.Set(e.key, e.value)
		}
	}
}

// FindString looks up an interned string by its raw bytes and
// precomputed hash without needing a *String to compare against --
// the one operation the generic key-by-reference table can't express,
// used exclusively by the heap's interner before it allocates a new
// String.
func (t *Table) FindString(b []byte, hash uint32) *String {
	if t.count == 0 {
		return nil
	}
	capacity := len(t.entries)
	index := int(hash) & (capacity - 1)
	for {
		e := &t.entries[index]
		if e.key == nil {
			if isEmptyEntry(*e) {
				return nil
			}
		} else if e.key.Hash == hash && len(e.key.Bytes) == len(b) && string(e.key.Bytes) == string(b) {
			return e.key
		}
		index = (index + 1) & (capacity - 1)
	}
}

// Each calls fn for every live key/value pair in the table.
func (t *Table) Each(fn func(key *String, v value.Value)) {
	for _, e := range t.entries {
		if e.key != nil {
			fn(e.key, e.value)
		}
	}
}

// DeleteUnmarkedKeys removes every entry whose key is not marked --
// the weak-reference sweep the interner needs before the collector
// frees unreachable strings (called from Heap.Collect before sweep).
func (t *Table) DeleteUnmarkedKeys() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !e.key.Marked {
			e.key = nil
			e.value = value.Bool(true)
		}
	}
}

// Count returns the number of occupied slots that the load factor is
// checked against: live entries plus tombstones left since the last
// resize.
func (t *Table) Count() int { return t.count }

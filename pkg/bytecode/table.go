package bytecode

// Table is an open-addressed hash table with linear probing, used for
// globals, instance fields, class methods and the string intern pool.
//
// Keys are Values compared with the identity-for-heap rule, which is
// sound because strings are interned. Deletion leaves a tombstone (empty
// key, true value) so probe sequences continue past deleted slots; on
// growth tombstones are dropped and the live count recomputed.
//
// The zero value is an empty table ready for use.
type Table struct {
	count   int // live entries plus tombstones
	entries []entry
}

type entry struct {
	key   Value
	value Value
}

const (
	tableMaxLoad     = 0.75
	tableMinCapacity = 8
)

// isEmptyKey reports whether a slot has no key. Nil is never a valid key,
// so it doubles as the empty marker; a tombstone is an empty key with a
// true value.
func isEmptyKey(k Value) bool {
	return k.Type == ValNil
}

// Count returns the number of live entries plus tombstones
func (t *Table) Count() int { return t.count }

// Len returns the number of live entries
func (t *Table) Len() int {
	n := 0
	for i := range t.entries {
		if !isEmptyKey(t.entries[i].key) {
			n++
		}
	}
	return n
}

// findEntry locates the slot for key: either the entry holding it, or the
// slot an insert should use (the first tombstone on the probe path if one
// was passed, otherwise the first empty slot).
func (t *Table) findEntry(entries []entry, key Value) *entry {
	index := hashValue(key) & uint32(len(entries)-1)
	var tombstone *entry
	for {
		e := &entries[index]
		if isEmptyKey(e.key) {
			if e.value.IsNil() {
				// Truly empty
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			// Tombstone: keep probing, remember the first one
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key.Equals(key) {
			return e
		}
		index = (index + 1) & uint32(len(entries)-1)
	}
}

// adjustCapacity rehashes every live entry into a new slot array,
// dropping tombstones.
func (t *Table) adjustCapacity(capacity int) {
	entries := make([]entry, capacity)
	count := 0
	for i := range t.entries {
		e := &t.entries[i]
		if isEmptyKey(e.key) {
			continue
		}
		dest := t.findEntry(entries, e.key)
		*dest = *e
		count++
	}
	t.entries = entries
	t.count = count
}

// grow ensures there is room for one more entry within the load factor
func (t *Table) grow() {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		capacity := len(t.entries) * 2
		if capacity < tableMinCapacity {
			capacity = tableMinCapacity
		}
		t.adjustCapacity(capacity)
	}
}

// Set inserts or updates key and reports whether the key was new
func (t *Table) Set(key, value Value) bool {
	t.grow()
	e := t.findEntry(t.entries, key)
	isNew := isEmptyKey(e.key)
	if isNew && e.value.IsNil() {
		// Fresh slot, not a recycled tombstone
		t.count++
	}
	e.key = key
	e.value = value
	return isNew
}

// Get looks up key and reports whether it was present
func (t *Table) Get(key Value) (Value, bool) {
	if t.count == 0 {
		return NilValue(), false
	}
	e := t.findEntry(t.entries, key)
	if isEmptyKey(e.key) {
		return NilValue(), false
	}
	return e.value, true
}

// Delete removes key, leaving a tombstone, and reports whether it existed
func (t *Table) Delete(key Value) bool {
	if t.count == 0 {
		return false
	}
	e := t.findEntry(t.entries, key)
	if isEmptyKey(e.key) {
		return false
	}
	e.key = NilValue()
	e.value = BoolValue(true)
	return true
}

// AddAll copies every live entry from src into t. Inherit uses this to
// seed a subclass's method table.
func (t *Table) AddAll(src *Table) {
	for i := range src.entries {
		e := &src.entries[i]
		if !isEmptyKey(e.key) {
			t.Set(e.key, e.value)
		}
	}
}

// FindString probes by byte content and precomputed hash rather than key
// identity. The intern pool uses this to bootstrap identity: it is the
// one lookup that must compare bytes, everything downstream compares
// pointers.
func (t *Table) FindString(s string, hash uint32) *ObjString {
	if t.count == 0 {
		return nil
	}
	index := hash & uint32(len(t.entries)-1)
	for {
		e := &t.entries[index]
		if isEmptyKey(e.key) {
			if e.value.IsNil() {
				return nil
			}
			// Tombstone: keep probing
		} else if str := e.key.AsString(); str != nil &&
			str.Hash == hash && str.Value == s {
			return str
		}
		index = (index + 1) & uint32(len(t.entries)-1)
	}
}

// Each calls fn for every live entry. Used by the collector to mark
// table contents and by heap dumps.
func (t *Table) Each(fn func(key, value Value)) {
	for i := range t.entries {
		e := &t.entries[i]
		if !isEmptyKey(e.key) {
			fn(e.key, e.value)
		}
	}
}

// DeleteUnmarked removes entries whose key object is unmarked. The heap
// runs this on the intern pool between marking and sweeping so the pool
// does not keep dead strings alive (or dangle after they are freed).
func (t *Table) DeleteUnmarked() {
	for i := range t.entries {
		e := &t.entries[i]
		if !isEmptyKey(e.key) && e.key.IsObj() && !e.key.AsObj().Header().Marked {
			t.Delete(e.key)
		}
	}
}

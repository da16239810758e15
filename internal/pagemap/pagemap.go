// Package pagemap provides a fast hash map from page id (uint64) to an
// arbitrary page record pointer.
//
// It is the uint64-keyed, pointer-valued counterpart of gdbx's
// fastmap.Uint32Map: open addressing with linear probing, sized to a
// power of two, and fibonacci hashing for good distribution of the
// sequential ids a page store hands out.
package pagemap

import "unsafe"

// Map is an open-addressed hash map from a uint64 page id to a pointer.
type Map struct {
	buckets []bucket
	count   int
	mask    uint64
}

type bucket struct {
	key   uint64
	value unsafe.Pointer
	used  bool // needed because key 0 is a valid page id slot in this map
}

// fibHash64 is 2^64 / golden ratio, rounded to the nearest odd integer.
const fibHash64 = 11400714819323198485

func (m *Map) hash(key uint64) uint64 {
	return key * fibHash64
}

// Get returns the stored value for key, or nil if key is absent.
func (m *Map) Get(key uint64) unsafe.Pointer {
	if len(m.buckets) == 0 {
		return nil
	}
	idx := m.hash(key) & m.mask
	for {
		b := &m.buckets[idx]
		if !b.used {
			return nil
		}
		if b.key == key {
			return b.value
		}
		idx = (idx + 1) & m.mask
	}
}

// Set stores value under key, replacing any prior value.
func (m *Map) Set(key uint64, value unsafe.Pointer) {
	if len(m.buckets) == 0 {
		m.buckets = make([]bucket, 16)
		m.mask = 15
	} else if m.count >= len(m.buckets)*3/4 {
		m.grow()
	}

	idx := m.hash(key) & m.mask
	for {
		b := &m.buckets[idx]
		if !b.used {
			b.key = key
			b.value = value
			b.used = true
			m.count++
			return
		}
		if b.key == key {
			b.value = value
			return
		}
		idx = (idx + 1) & m.mask
	}
}

// Delete removes key from the map, if present.
func (m *Map) Delete(key uint64) {
	if len(m.buckets) == 0 {
		return
	}
	idx := m.hash(key) & m.mask
	for {
		b := &m.buckets[idx]
		if !b.used {
			return
		}
		if b.key == key {
			m.deleteAt(idx)
			return
		}
		idx = (idx + 1) & m.mask
	}
}

// deleteAt removes the entry at idx and re-inserts the probe chain that
// follows it, since linear probing cannot tolerate holes.
func (m *Map) deleteAt(idx uint64) {
	m.buckets[idx] = bucket{}
	m.count--

	next := (idx + 1) & m.mask
	for m.buckets[next].used {
		b := m.buckets[next]
		m.buckets[next] = bucket{}
		m.count--
		m.Set(b.key, b.value)
		next = (next + 1) & m.mask
	}
}

func (m *Map) grow() {
	old := m.buckets
	newSize := len(old) * 2
	m.buckets = make([]bucket, newSize)
	m.mask = uint64(newSize - 1)
	m.count = 0

	for i := range old {
		if old[i].used {
			m.Set(old[i].key, old[i].value)
		}
	}
}

// Len returns the number of stored entries.
func (m *Map) Len() int {
	return m.count
}

// ForEach calls fn once per stored entry, in unspecified order.
func (m *Map) ForEach(fn func(key uint64, value unsafe.Pointer)) {
	for i := range m.buckets {
		if m.buckets[i].used {
			fn(m.buckets[i].key, m.buckets[i].value)
		}
	}
}

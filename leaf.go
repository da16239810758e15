package datatree

import "encoding/binary"

// Leaf page wire layout (spec §3, §6), all integers little-endian:
//
//	tag(1) | entry_count(8) | data_start_offset(8) | data_used_bytes(8) |
//	prev_page_id(8) | next_page_id(8) | (key(8), value_length(8))·count |
//	values·concat | zero-pad
const (
	leafHeaderSize = 41
	leafSlotSize   = 16
)

// leafEntry is one (key, value) slot. Entries are kept in insertion
// order, exactly as the slot directory requires — there is no ordering
// by key within a leaf page.
type leafEntry struct {
	Key   uint64
	Value []byte
}

// LeafPage is the in-memory form of a leaf page: a slot directory of
// (key, value) entries plus the doubly-linked overflow chain pointers.
type LeafPage struct {
	PayloadSize uint32
	Entries     []leafEntry
	PrevPageID  uint64
	NextPageID  uint64
}

// NewLeafPage returns an empty leaf page sized for payloadSize bytes
// (the page_size minus the store's 4-byte trailing CRC).
func NewLeafPage(payloadSize uint32) *LeafPage {
	return &LeafPage{PayloadSize: payloadSize}
}

// LeafMaxValueSize returns the largest value length that could ever fit
// in a single, otherwise-empty leaf page of the given payload size —
// the "value too large for any leaf" gate used by the tree layer (spec
// §6's limits: page_size − 4 − header(41) − one_slot(16) − safety).
func LeafMaxValueSize(payloadSize uint32) int {
	max := int(payloadSize) - leafHeaderSize - leafSlotSize
	if max < 0 {
		return 0
	}
	return max
}

// Get returns the value stored for key, if present.
func (p *LeafPage) Get(key uint64) ([]byte, bool) {
	for i := range p.Entries {
		if p.Entries[i].Key == key {
			return p.Entries[i].Value, true
		}
	}
	return nil, false
}

// Put inserts or updates key's value. It returns false, leaving the
// page unmodified, when the new entry would not fit (spec §4.1's
// leaf Put algorithm):
//
//   - existing key, value no longer than the old one: overwritten in
//     place, slot position unchanged.
//   - existing key, larger value: old slot removed, new entry appended
//     at the end, subject to the fit check below.
//   - new key: appended at the end, subject to the fit check.
//
// Fit check: header + (entry_count+1)·16 + data_used_bytes + len(value)
// <= payload size, where entry_count and data_used_bytes are computed
// after any removal of the key's old slot.
func (p *LeafPage) Put(key uint64, value []byte) bool {
	idx := -1
	for i := range p.Entries {
		if p.Entries[i].Key == key {
			idx = i
			break
		}
	}

	if idx >= 0 && len(value) <= len(p.Entries[idx].Value) {
		stored := make([]byte, len(value))
		copy(stored, value)
		p.Entries[idx].Value = stored
		return true
	}

	remaining := p.Entries
	if idx >= 0 {
		remaining = make([]leafEntry, 0, len(p.Entries)-1)
		remaining = append(remaining, p.Entries[:idx]...)
		remaining = append(remaining, p.Entries[idx+1:]...)
	}

	usedBytes := 0
	for _, e := range remaining {
		usedBytes += len(e.Value)
	}
	required := leafHeaderSize + (len(remaining)+1)*leafSlotSize + usedBytes + len(value)
	if required > int(p.PayloadSize) {
		return false
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	p.Entries = append(remaining, leafEntry{Key: key, Value: stored})
	return true
}

// Delete removes key's entry, if present, compacting the slot
// directory (since Entries is a slice, removal is the compaction).
func (p *LeafPage) Delete(key uint64) bool {
	for i := range p.Entries {
		if p.Entries[i].Key == key {
			p.Entries = append(p.Entries[:i], p.Entries[i+1:]...)
			return true
		}
	}
	return false
}

// Serialize produces the page's logical payload: exactly PayloadSize
// bytes, zero-padded after the live content.
func (p *LeafPage) Serialize() []byte {
	buf := make([]byte, p.PayloadSize)

	count := uint64(len(p.Entries))
	dataStart := leafHeaderSize + len(p.Entries)*leafSlotSize
	usedBytes := 0
	for _, e := range p.Entries {
		usedBytes += len(e.Value)
	}

	buf[0] = byte(PageLeaf)
	binary.LittleEndian.PutUint64(buf[1:9], count)
	binary.LittleEndian.PutUint64(buf[9:17], uint64(dataStart))
	binary.LittleEndian.PutUint64(buf[17:25], uint64(usedBytes))
	binary.LittleEndian.PutUint64(buf[25:33], p.PrevPageID)
	binary.LittleEndian.PutUint64(buf[33:41], p.NextPageID)

	slotOff := leafHeaderSize
	dataOff := dataStart
	for _, e := range p.Entries {
		binary.LittleEndian.PutUint64(buf[slotOff:slotOff+8], e.Key)
		binary.LittleEndian.PutUint64(buf[slotOff+8:slotOff+16], uint64(len(e.Value)))
		slotOff += leafSlotSize
		copy(buf[dataOff:dataOff+len(e.Value)], e.Value)
		dataOff += len(e.Value)
	}

	return buf
}

// DeserializeLeafPage parses buf as a leaf page's logical payload.
// Deserialize is total: a buffer shorter than the header, or truncated
// mid-directory or mid-data, yields as much of the page as the bytes
// support rather than erroring — mirroring the reference decoder this
// store's wire format was distilled from.
func DeserializeLeafPage(buf []byte) *LeafPage {
	p := &LeafPage{PayloadSize: uint32(len(buf))}
	if len(buf) < leafHeaderSize {
		return p
	}

	count := binary.LittleEndian.Uint64(buf[1:9])
	dataStart := int(binary.LittleEndian.Uint64(buf[9:17]))
	p.PrevPageID = binary.LittleEndian.Uint64(buf[25:33])
	p.NextPageID = binary.LittleEndian.Uint64(buf[33:41])

	entries := make([]leafEntry, 0, count)
	offset := leafHeaderSize
	dataOff := dataStart
	for i := uint64(0); i < count; i++ {
		if offset+leafSlotSize > len(buf) {
			break
		}
		key := binary.LittleEndian.Uint64(buf[offset : offset+8])
		valLen := int(binary.LittleEndian.Uint64(buf[offset+8 : offset+16]))
		offset += leafSlotSize

		end := dataOff + valLen
		if dataOff > len(buf) {
			dataOff = len(buf)
		}
		if end > len(buf) {
			end = len(buf)
		}
		value := append([]byte(nil), buf[dataOff:end]...)
		entries = append(entries, leafEntry{Key: key, Value: value})
		dataOff = end
	}
	p.Entries = entries
	return p
}

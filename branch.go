package datatree

import (
	"encoding/binary"
	"sort"
)

// Branch page wire layout (spec §3, §6):
//
//	tag(1) | entry_count(8) | prev_page_id(8) | next_page_id(8) |
//	(child_page_id(8), first_key(8))·count | zero-pad
const (
	branchHeaderSize = 33
	branchEntrySize  = 16
)

// branchEntry routes keys >= FirstKey (and < the next entry's FirstKey,
// or unbounded for the last entry) to ChildPageID.
type branchEntry struct {
	ChildPageID uint64
	FirstKey    uint64
}

// BranchPage is the in-memory form of a branch page. Entries are kept
// sorted strictly ascending by FirstKey. The current single-level
// design keeps PrevPageID/NextPageID at 0; they are reserved fields
// that must still round-trip (spec §3, §9).
type BranchPage struct {
	PayloadSize uint32
	Entries     []branchEntry
	PrevPageID  uint64
	NextPageID  uint64
}

// NewBranchPage returns an empty branch page sized for payloadSize
// bytes.
func NewBranchPage(payloadSize uint32) *BranchPage {
	return &BranchPage{PayloadSize: payloadSize}
}

// Insert places a (childPageID, firstKey) entry at the position that
// keeps Entries sorted ascending by FirstKey. Ties keep the new entry
// at the insertion position found by the search; any stable choice is
// correct here since the tree layer never generates duplicate
// first-keys.
func (p *BranchPage) Insert(childPageID, firstKey uint64) {
	pos := sort.Search(len(p.Entries), func(i int) bool {
		return p.Entries[i].FirstKey >= firstKey
	})
	p.Entries = append(p.Entries, branchEntry{})
	copy(p.Entries[pos+1:], p.Entries[pos:])
	p.Entries[pos] = branchEntry{ChildPageID: childPageID, FirstKey: firstKey}
}

// FindPageID returns the child page id routing key k: the entry with
// the largest FirstKey <= k, or the first entry if k precedes every
// entry. With zero entries, ok is false.
func (p *BranchPage) FindPageID(k uint64) (pageID uint64, ok bool) {
	if len(p.Entries) == 0 {
		return 0, false
	}
	if k < p.Entries[0].FirstKey {
		return p.Entries[0].ChildPageID, true
	}
	// sort.Search finds the first entry with FirstKey > k; the entry
	// just before it is the largest FirstKey <= k.
	pos := sort.Search(len(p.Entries), func(i int) bool {
		return p.Entries[i].FirstKey > k
	})
	return p.Entries[pos-1].ChildPageID, true
}

// Serialize produces the page's logical payload: exactly PayloadSize
// bytes, zero-padded after the live content.
func (p *BranchPage) Serialize() []byte {
	buf := make([]byte, p.PayloadSize)

	buf[0] = byte(PageBranch)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(len(p.Entries)))
	binary.LittleEndian.PutUint64(buf[9:17], p.PrevPageID)
	binary.LittleEndian.PutUint64(buf[17:25], p.NextPageID)

	off := branchHeaderSize
	for _, e := range p.Entries {
		binary.LittleEndian.PutUint64(buf[off:off+8], e.ChildPageID)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], e.FirstKey)
		off += branchEntrySize
	}
	return buf
}

// DeserializeBranchPage parses buf as a branch page's logical payload.
// Like the leaf codec, it is total over short or truncated buffers.
func DeserializeBranchPage(buf []byte) *BranchPage {
	p := &BranchPage{PayloadSize: uint32(len(buf))}
	if len(buf) < branchHeaderSize {
		return p
	}

	count := binary.LittleEndian.Uint64(buf[1:9])
	p.PrevPageID = binary.LittleEndian.Uint64(buf[9:17])
	p.NextPageID = binary.LittleEndian.Uint64(buf[17:25])

	entries := make([]branchEntry, 0, count)
	off := branchHeaderSize
	for i := uint64(0); i < count; i++ {
		if off+branchEntrySize > len(buf) {
			break
		}
		entries = append(entries, branchEntry{
			ChildPageID: binary.LittleEndian.Uint64(buf[off : off+8]),
			FirstKey:    binary.LittleEndian.Uint64(buf[off+8 : off+16]),
		})
		off += branchEntrySize
	}
	p.Entries = entries
	return p
}

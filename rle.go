package datatree

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// RLE leaf page wire layout (spec §3, §6): same header as a leaf page,
// but the slot directory holds runs instead of single-key slots:
//
//	tag(1) | entry_count(8) | data_start_offset(8) | data_used_bytes(8) |
//	prev_page_id(8) | next_page_id(8) |
//	(start_key(8), end_key(8), value_offset(8), value_length(8))·count |
//	values | zero-pad
const (
	rleHeaderSize  = 41
	rleEntrySize   = 32
	rleSafetyBytes = 16
)

// rleRun asserts that every key in [StartKey, EndKey] maps to the byte
// string at Data[ValueOffset:ValueOffset+ValueLength]. Distinct runs
// may share a value range (value deduplication by offset).
type rleRun struct {
	StartKey    uint64
	EndKey      uint64
	ValueOffset int
	ValueLength int
}

// RlePage is the in-memory form of a run-length-encoded leaf page.
// Runs are kept sorted ascending by StartKey and non-overlapping;
// adjacent runs carrying byte-equal values are always merged.
type RlePage struct {
	PayloadSize uint32
	Runs        []rleRun
	Data        []byte
	PrevPageID  uint64
	NextPageID  uint64
}

// NewRlePage returns an empty RLE leaf page sized for payloadSize bytes.
func NewRlePage(payloadSize uint32) *RlePage {
	return &RlePage{PayloadSize: payloadSize}
}

func (p *RlePage) valueOf(r rleRun) []byte {
	return p.Data[r.ValueOffset : r.ValueOffset+r.ValueLength]
}

func (p *RlePage) sortRuns() {
	sort.Slice(p.Runs, func(i, j int) bool { return p.Runs[i].StartKey < p.Runs[j].StartKey })
}

// findRun returns the index of the run containing key, if any.
func (p *RlePage) findRun(key uint64) (int, bool) {
	for i, r := range p.Runs {
		if key >= r.StartKey && key <= r.EndKey {
			return i, true
		}
	}
	return -1, false
}

// findValueOffset scans existing runs for a byte-equal value of the
// same length, implementing the value-dedup rule from spec §4.1: a new
// run's ValueOffset points at already-stored bytes when possible,
// instead of appending a duplicate.
func (p *RlePage) findValueOffset(value []byte) (int, bool) {
	for _, r := range p.Runs {
		if r.ValueLength == len(value) && bytes.Equal(p.valueOf(r), value) {
			return r.ValueOffset, true
		}
	}
	return 0, false
}

// RunCount returns the number of runs, used by tests asserting the
// merge property (spec §8, property 9).
func (p *RlePage) RunCount() int {
	return len(p.Runs)
}

// Get returns the value mapped to key by the run containing it, if any.
func (p *RlePage) Get(key uint64) ([]byte, bool) {
	if idx, ok := p.findRun(key); ok {
		return p.valueOf(p.Runs[idx]), true
	}
	return nil, false
}

// Put implements spec §4.1's four-way RLE insert rule: no-op on an
// exact value match within a run, split on a value mismatch within a
// run, extend-and-maybe-merge when key is adjacent to a run of the
// same value, or a brand-new singleton run otherwise.
func (p *RlePage) Put(key uint64, value []byte) bool {
	if idx, ok := p.findRun(key); ok {
		if bytes.Equal(p.valueOf(p.Runs[idx]), value) {
			return true
		}
		return p.splitRunAndInsert(idx, key, value)
	}

	beforeIdx, afterIdx := -1, -1
	for i, r := range p.Runs {
		if key == r.EndKey+1 {
			beforeIdx = i
		}
		if key+1 == r.StartKey {
			afterIdx = i
		}
	}

	if beforeIdx >= 0 && bytes.Equal(p.valueOf(p.Runs[beforeIdx]), value) {
		p.Runs[beforeIdx].EndKey = key
		if afterIdx >= 0 && bytes.Equal(p.valueOf(p.Runs[afterIdx]), value) {
			p.Runs[beforeIdx].EndKey = p.Runs[afterIdx].EndKey
			p.Runs = append(p.Runs[:afterIdx], p.Runs[afterIdx+1:]...)
		}
		p.sortRuns()
		return true
	}

	if afterIdx >= 0 && bytes.Equal(p.valueOf(p.Runs[afterIdx]), value) {
		p.Runs[afterIdx].StartKey = key
		return true
	}

	return p.insertSingleton(key, value)
}

// insertSingleton appends a new one-key run, subject to the fit check:
// header + (entry_count+1)·32 + data_used_bytes + (len(value) unless
// deduped) <= payload size.
func (p *RlePage) insertSingleton(key uint64, value []byte) bool {
	offset, exists := p.findValueOffset(value)
	extra := 0
	if !exists {
		extra = len(value)
	}
	required := rleHeaderSize + (len(p.Runs)+1)*rleEntrySize + len(p.Data) + extra
	if required > int(p.PayloadSize) {
		return false
	}
	if !exists {
		offset = len(p.Data)
		p.Data = append(p.Data, value...)
	}
	p.Runs = append(p.Runs, rleRun{StartKey: key, EndKey: key, ValueOffset: offset, ValueLength: len(value)})
	p.sortRuns()
	return true
}

// splitRunAndInsert replaces the run at idx with up to three runs: the
// part before key, a new singleton for key, and the part after key —
// whichever of the first and third exist given key's position in the
// original run. The new singleton is then merged with any neighbouring
// run that carries the same value.
func (p *RlePage) splitRunAndInsert(idx int, key uint64, value []byte) bool {
	run := p.Runs[idx]
	hasBefore := key > run.StartKey
	hasAfter := key < run.EndKey

	additional := 1
	if hasBefore && hasAfter {
		additional = 2
	}

	offset, exists := p.findValueOffset(value)
	extra := 0
	if !exists {
		extra = len(value)
	}
	newCount := len(p.Runs) + additional
	required := rleHeaderSize + newCount*rleEntrySize + len(p.Data) + extra
	if required > int(p.PayloadSize) {
		return false
	}
	if !exists {
		offset = len(p.Data)
		p.Data = append(p.Data, value...)
	}

	replacement := make([]rleRun, 0, 3)
	if hasBefore {
		replacement = append(replacement, rleRun{StartKey: run.StartKey, EndKey: key - 1, ValueOffset: run.ValueOffset, ValueLength: run.ValueLength})
	}
	replacement = append(replacement, rleRun{StartKey: key, EndKey: key, ValueOffset: offset, ValueLength: len(value)})
	if hasAfter {
		replacement = append(replacement, rleRun{StartKey: key + 1, EndKey: run.EndKey, ValueOffset: run.ValueOffset, ValueLength: run.ValueLength})
	}

	p.Runs = append(p.Runs[:idx], p.Runs[idx+1:]...)
	p.Runs = append(p.Runs, replacement...)
	p.sortRuns()

	merged := p.Runs[:1]
	for _, r := range p.Runs[1:] {
		last := &merged[len(merged)-1]
		if last.EndKey+1 == r.StartKey && bytes.Equal(p.valueOf(*last), p.valueOf(r)) {
			last.EndKey = r.EndKey
			continue
		}
		merged = append(merged, r)
	}
	p.Runs = merged
	return true
}

// Delete removes key from whichever run contains it: dropping a
// singleton run, shrinking a run at its boundary, or splitting a run
// when key falls in the middle (the two halves keep sharing the
// original value offset). A bookkeeping pass compacts the data region
// once live bytes drop below 75% of its length.
func (p *RlePage) Delete(key uint64) bool {
	idx, ok := p.findRun(key)
	if !ok {
		return false
	}
	run := p.Runs[idx]

	switch {
	case run.StartKey == key && run.EndKey == key:
		p.Runs = append(p.Runs[:idx], p.Runs[idx+1:]...)
	case run.StartKey == key:
		p.Runs[idx].StartKey = key + 1
	case run.EndKey == key:
		p.Runs[idx].EndKey = key - 1
	default:
		right := rleRun{StartKey: key + 1, EndKey: run.EndKey, ValueOffset: run.ValueOffset, ValueLength: run.ValueLength}
		p.Runs[idx].EndKey = key - 1
		p.Runs = append(p.Runs, right)
		p.sortRuns()
	}

	p.compactIfNeeded()
	return true
}

// compactIfNeeded rebuilds the data region when less than 75% of its
// bytes are still referenced by a run.
func (p *RlePage) compactIfNeeded() {
	live := 0
	seen := map[int]bool{}
	for _, r := range p.Runs {
		if !seen[r.ValueOffset] {
			seen[r.ValueOffset] = true
			live += r.ValueLength
		}
	}
	if len(p.Data) > 0 && live*4 < len(p.Data)*3 {
		p.compactData()
	}
}

// compactData rewrites the data region keeping exactly one copy of
// each distinct value still referenced by a run, remapping offsets.
func (p *RlePage) compactData() {
	if len(p.Runs) == 0 {
		p.Data = nil
		return
	}
	newData := make([]byte, 0, len(p.Data))
	remap := map[int]int{}
	for i, r := range p.Runs {
		newOffset, ok := remap[r.ValueOffset]
		if !ok {
			newOffset = len(newData)
			newData = append(newData, p.valueOf(r)...)
			remap[r.ValueOffset] = newOffset
		}
		p.Runs[i].ValueOffset = newOffset
	}
	p.Data = newData
}

// IsFull reports whether inserting value would exceed the page's
// capacity in the worst case, where the value does not dedupe against
// an existing run (spec §4.1's conservative "would fit" gate, used by
// callers that want a cheap pre-check instead of attempting Put).
func (p *RlePage) IsFull(value []byte) bool {
	required := rleHeaderSize + (len(p.Runs)+1)*rleEntrySize + len(p.Data) + len(value) + rleSafetyBytes
	return required > int(p.PayloadSize)
}

// RleMaxValueSize returns the largest value length for which IsFull
// reports false on an otherwise-empty RLE leaf page of the given payload
// size. It includes IsFull's safety margin, so Put itself accepts values
// up to rleSafetyBytes longer.
func RleMaxValueSize(payloadSize uint32) int {
	max := int(payloadSize) - rleHeaderSize - rleEntrySize - rleSafetyBytes
	if max < 0 {
		return 0
	}
	return max
}

// Serialize produces the page's logical payload: exactly PayloadSize
// bytes, zero-padded after the live content.
func (p *RlePage) Serialize() []byte {
	buf := make([]byte, p.PayloadSize)

	dataStart := rleHeaderSize + len(p.Runs)*rleEntrySize

	buf[0] = byte(PageRleLeaf)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(len(p.Runs)))
	binary.LittleEndian.PutUint64(buf[9:17], uint64(dataStart))
	binary.LittleEndian.PutUint64(buf[17:25], uint64(len(p.Data)))
	binary.LittleEndian.PutUint64(buf[25:33], p.PrevPageID)
	binary.LittleEndian.PutUint64(buf[33:41], p.NextPageID)

	off := rleHeaderSize
	for _, r := range p.Runs {
		binary.LittleEndian.PutUint64(buf[off:off+8], r.StartKey)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], r.EndKey)
		binary.LittleEndian.PutUint64(buf[off+16:off+24], uint64(r.ValueOffset))
		binary.LittleEndian.PutUint64(buf[off+24:off+32], uint64(r.ValueLength))
		off += rleEntrySize
	}
	copy(buf[dataStart:], p.Data)

	return buf
}

// DeserializeRlePage parses buf as an RLE leaf page's logical payload.
// Like the other codecs, it is total over short or truncated buffers.
func DeserializeRlePage(buf []byte) *RlePage {
	p := &RlePage{PayloadSize: uint32(len(buf))}
	if len(buf) < rleHeaderSize {
		return p
	}

	count := binary.LittleEndian.Uint64(buf[1:9])
	dataStart := int(binary.LittleEndian.Uint64(buf[9:17]))
	usedBytes := int(binary.LittleEndian.Uint64(buf[17:25]))
	p.PrevPageID = binary.LittleEndian.Uint64(buf[25:33])
	p.NextPageID = binary.LittleEndian.Uint64(buf[33:41])

	runs := make([]rleRun, 0, count)
	off := rleHeaderSize
	for i := uint64(0); i < count; i++ {
		if off+rleEntrySize > len(buf) {
			break
		}
		runs = append(runs, rleRun{
			StartKey:    binary.LittleEndian.Uint64(buf[off : off+8]),
			EndKey:      binary.LittleEndian.Uint64(buf[off+8 : off+16]),
			ValueOffset: int(binary.LittleEndian.Uint64(buf[off+16 : off+24])),
			ValueLength: int(binary.LittleEndian.Uint64(buf[off+24 : off+32])),
		})
		off += rleEntrySize
	}
	p.Runs = runs

	if dataStart >= 0 && dataStart < len(buf) {
		end := dataStart + usedBytes
		if end > len(buf) {
			end = len(buf)
		}
		p.Data = append([]byte(nil), buf[dataStart:end]...)
	}
	return p
}

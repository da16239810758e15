package datatree

import (
	"hash/crc32"
	"unsafe"

	"github.com/keyspan/datatree/internal/bitset"
	"github.com/keyspan/datatree/internal/pagemap"
)

// crcTable is the Castagnoli (CRC-32C) polynomial table, the same
// construction tinySQL's pager uses for its page checksums. The spec's
// reference implementation used the `crc` crate's CRC_32_ISCSI profile,
// which is CRC-32C under a different name; hash/crc32 in the standard
// library already ships the identical table, so no third-party crc
// package earns a place here (see DESIGN.md).
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// PageStore is the storage abstraction DataTree operates on: fixed-size
// pages addressed by id, with CRC-32C integrity carried on get/put and
// a dirty set for callers that batch writes before Flush.
//
// Implementations need not be durable — the only implementation here,
// InMemoryPageStore, never persists past process lifetime, matching
// spec §9's exclusion of file/mmap-backed backends.
type PageStore interface {
	// AllocatePage reserves a new page id and returns it. The page
	// starts out holding an empty leaf page image and is marked dirty.
	AllocatePage() uint64
	// FreePage releases id, making it eligible for GetPageBytes to
	// report ErrPageNotFound and for a future allocator to reuse it.
	FreePage(id uint64) error
	// GetPageBytes returns id's stored payload (CRC-32C already
	// verified and stripped). Returns ErrPageNotFound if id was never
	// written or has been freed, ErrPageCorruption if the checksum does
	// not match.
	GetPageBytes(id uint64) ([]byte, error)
	// PutPageBytes stores payload under id, appending a fresh CRC-32C
	// trailer, and marks id dirty. Returns ErrPageOversize if
	// len(payload)+4 exceeds the store's page size.
	PutPageBytes(id uint64, payload []byte) error
	// PageExists reports whether id currently has a stored payload.
	PageExists(id uint64) bool
	// GetNextPageID returns the next-page link held in id's stored
	// image, whether LinkPages or PutPageBytes wrote it, or 0 if none.
	GetNextPageID(id uint64) uint64
	// GetPrevPageID returns the prev-page link held in id's stored
	// image, whether LinkPages or PutPageBytes wrote it, or 0 if none.
	GetPrevPageID(id uint64) uint64
	// LinkPages records that next follows prev in an overflow chain. A
	// zero argument clears that side of the link.
	LinkPages(prev, next uint64)
	// PageSize returns the page size this store was constructed with
	// (payload + 4-byte CRC trailer).
	PageSize() uint32
	// GetPageCount returns the number of pages currently stored (not
	// counting freed ids).
	GetPageCount() int
	// DirtyPages returns the ids written since the last ClearDirtyPages,
	// in unspecified order.
	DirtyPages() []uint64
	// ClearDirtyPages empties the dirty set without altering stored
	// pages.
	ClearDirtyPages()
	// Flush is this store's durability hook. InMemoryPageStore's Flush
	// only clears the dirty set, since there is nowhere to persist to.
	Flush() error
}

// pageRecord is what pagemap.Map stores per page id. Chain links are
// not duplicated here: GetNextPageID/GetPrevPageID parse them out of
// the stored image itself, the same page every GetPageBytes caller
// sees, so there is exactly one place a link can live.
type pageRecord struct {
	payload []byte
}

// InMemoryPageStore is a PageStore kept entirely in process memory,
// indexed by internal/pagemap.Map and tracked by two internal/bitset
// sets (liveness and dirty). It is the store DataTree is exercised
// against in this module's tests and the one a caller would wrap with
// its own persistence if durability were ever added.
type InMemoryPageStore struct {
	pageSize uint32
	nextID   uint64
	pages    pagemap.Map
	live     *bitset.Set
	dirty    *bitset.Set

	// Logger, if set, receives a line of diagnostic text for each
	// allocate/free/corruption event — the pluggable callback gdbx uses
	// in place of a logging library (see SPEC_FULL.md's ambient stack).
	Logger func(msg string, args ...any)
}

// NewInMemoryPageStore returns an empty store using pageSize-byte pages
// (payload + CRC trailer). Page ids are allocated starting at 1; 0 is
// reserved as the "no page" sentinel.
func NewInMemoryPageStore(pageSize uint32) *InMemoryPageStore {
	return &InMemoryPageStore{
		pageSize: pageSize,
		nextID:   1,
		live:     bitset.New(64),
		dirty:    bitset.New(64),
	}
}

// NewDefaultInMemoryPageStore returns an empty store using
// DefaultPageSize-byte pages, echoing gdbx.Open's page-size default.
func NewDefaultInMemoryPageStore() *InMemoryPageStore {
	return NewInMemoryPageStore(DefaultPageSize)
}

func (s *InMemoryPageStore) log(msg string, args ...any) {
	if s.Logger != nil {
		s.Logger(msg, args...)
	}
}

// AllocatePage reserves a new page id and initializes its image with an
// empty leaf page (correct tag, zero counts), marking it dirty — spec
// §4.2's allocation contract. Callers that mean to use the id as
// something other than a plain leaf (a branch root, an RLE leaf)
// overwrite this image with their own PutPageBytes before anyone reads
// it.
func (s *InMemoryPageStore) AllocatePage() uint64 {
	id := s.nextID
	s.nextID++
	empty := NewLeafPage(s.pageSize - 4)
	// Cannot fail: a freshly constructed, otherwise-empty leaf page
	// always serializes to exactly pageSize-4 bytes.
	_ = s.PutPageBytes(id, empty.Serialize())
	s.log("page allocated", "id", id)
	return id
}

// FreePage releases id. Infallible: freeing an id that is already free,
// or was never allocated, is a no-op (spec §4.2).
func (s *InMemoryPageStore) FreePage(id uint64) error {
	if !s.live.Contains(id) {
		return nil
	}
	s.live.Remove(id)
	s.dirty.Remove(id)
	s.pages.Delete(id)
	s.log("page freed", "id", id)
	return nil
}

func (s *InMemoryPageStore) record(id uint64) *pageRecord {
	p := s.pages.Get(id)
	if p == nil {
		return nil
	}
	return (*pageRecord)(p)
}

// GetPageBytes verifies and strips the CRC-32C trailer appended by
// PutPageBytes, per spec §5: integrity is the store's responsibility,
// not the codec's.
func (s *InMemoryPageStore) GetPageBytes(id uint64) ([]byte, error) {
	rec := s.record(id)
	if rec == nil || !s.live.Contains(id) {
		return nil, NewError(ErrPageNotFound)
	}
	stored := rec.payload
	if len(stored) < 4 {
		return nil, NewError(ErrPageCorruption)
	}
	payload := stored[:len(stored)-4]
	wantCRC := crc32.Checksum(payload, crcTable)
	gotCRC := le32(stored[len(stored)-4:])
	if wantCRC != gotCRC {
		s.log("page corruption detected", "id", id)
		return nil, NewError(ErrPageCorruption)
	}
	return payload, nil
}

func (s *InMemoryPageStore) PutPageBytes(id uint64, payload []byte) error {
	if uint32(len(payload))+4 > s.pageSize {
		return NewError(ErrPageOversize)
	}
	rec := s.record(id)
	if rec == nil {
		rec = &pageRecord{}
		s.pages.Set(id, unsafe.Pointer(rec))
		s.live.Add(id)
	}
	sum := crc32.Checksum(payload, crcTable)
	stored := make([]byte, len(payload)+4)
	copy(stored, payload)
	putLE32(stored[len(payload):], sum)
	rec.payload = stored
	s.dirty.Add(id)
	return nil
}

func (s *InMemoryPageStore) PageExists(id uint64) bool {
	return s.live.Contains(id)
}

// GetNextPageID reads id's image, parses it as a leaf-shaped page, and
// returns its next-page link (spec §4.2). Returns 0 if id is absent or
// its stored payload is too short to carry a header.
func (s *InMemoryPageStore) GetNextPageID(id uint64) uint64 {
	node := s.loadLinkedNode(id)
	if node == nil {
		return nullPageID
	}
	return nextLinkOf(node)
}

// GetPrevPageID reads id's image, parses it as a leaf-shaped page, and
// returns its prev-page link (spec §4.2).
func (s *InMemoryPageStore) GetPrevPageID(id uint64) uint64 {
	node := s.loadLinkedNode(id)
	if node == nil {
		return nullPageID
	}
	return prevLinkOf(node)
}

func (s *InMemoryPageStore) loadLinkedNode(id uint64) leafNode {
	rec := s.record(id)
	if rec == nil || len(rec.payload) < 4 {
		return nil
	}
	return decodeLeafNode(rec.payload[:len(rec.payload)-4])
}

// LinkPages records that next follows prev by rewriting the relevant
// header field directly in each endpoint's stored image — the same
// image GetNextPageID/GetPrevPageID/GetPageBytes read, so there is a
// single source of truth for chain links rather than parallel
// bookkeeping. Marks whichever endpoints exist as dirty, via the
// PutPageBytes this performs internally (spec §9).
func (s *InMemoryPageStore) LinkPages(prev, next uint64) {
	if prev != nullPageID {
		s.rewriteLink(prev, func(n leafNode) { setNextLink(n, next) })
	}
	if next != nullPageID {
		s.rewriteLink(next, func(n leafNode) { setPrevLink(n, prev) })
	}
}

func (s *InMemoryPageStore) rewriteLink(id uint64, mutate func(leafNode)) {
	node := s.loadLinkedNode(id)
	if node == nil {
		return
	}
	mutate(node)
	_ = s.PutPageBytes(id, node.Serialize())
}

func (s *InMemoryPageStore) PageSize() uint32 {
	return s.pageSize
}

func (s *InMemoryPageStore) GetPageCount() int {
	return s.live.Len()
}

func (s *InMemoryPageStore) DirtyPages() []uint64 {
	ids := make([]uint64, 0, s.dirty.Len())
	s.dirty.Each(func(id uint64) { ids = append(ids, id) })
	return ids
}

func (s *InMemoryPageStore) ClearDirtyPages() {
	s.dirty.Clear()
}

func (s *InMemoryPageStore) Flush() error {
	s.log("flush", "dirty_count", s.dirty.Len())
	s.dirty.Clear()
	return nil
}

// CorruptPage flips every bit of id's stored payload, for tests that
// exercise GetPageBytes's CRC-32C verification path (spec §8, S5).
func (s *InMemoryPageStore) CorruptPage(id uint64) {
	rec := s.record(id)
	if rec == nil {
		return
	}
	for i := range rec.payload {
		rec.payload[i] ^= 0xFF
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

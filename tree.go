package datatree

// leafNode is satisfied by both *LeafPage and *RlePage: the two page
// variants DataTree can find at the far end of a branch route. A chain
// may freely mix the two — nothing requires every leaf in an overflow
// chain to share an encoding.
type leafNode interface {
	Get(key uint64) ([]byte, bool)
	Put(key uint64, value []byte) bool
	Delete(key uint64) bool
	Serialize() []byte
}

func decodeLeafNode(buf []byte) leafNode {
	tag := byte(PageLeaf)
	if len(buf) > 0 {
		tag = buf[0]
	}
	if decodePageType(tag) == PageRleLeaf {
		return DeserializeRlePage(buf)
	}
	return DeserializeLeafPage(buf)
}

func isEmptyNode(n leafNode) bool {
	switch v := n.(type) {
	case *LeafPage:
		return len(v.Entries) == 0
	case *RlePage:
		return len(v.Runs) == 0
	}
	return false
}

func setNextLink(n leafNode, next uint64) {
	switch v := n.(type) {
	case *LeafPage:
		v.NextPageID = next
	case *RlePage:
		v.NextPageID = next
	}
}

func setPrevLink(n leafNode, prev uint64) {
	switch v := n.(type) {
	case *LeafPage:
		v.PrevPageID = prev
	case *RlePage:
		v.PrevPageID = prev
	}
}

func nextLinkOf(n leafNode) uint64 {
	switch v := n.(type) {
	case *LeafPage:
		return v.NextPageID
	case *RlePage:
		return v.NextPageID
	}
	return nullPageID
}

func prevLinkOf(n leafNode) uint64 {
	switch v := n.(type) {
	case *LeafPage:
		return v.PrevPageID
	case *RlePage:
		return v.PrevPageID
	}
	return nullPageID
}

// DataTree is the operation layer routing u64-keyed get/put/delete
// calls through a single-level branch root to a chain of leaf pages
// (spec §4.2). The branch root never splits in this design: exactly
// one branch page maps the key space to one anchor leaf per entry, and
// each anchor's own overflow chain absorbs growth past one page.
type DataTree struct {
	store      PageStore
	rootPageID uint64
}

// NewDataTree allocates a fresh root branch page routing every key to
// a single anchor leaf, and returns a tree built on top of store.
func NewDataTree(store PageStore) (*DataTree, error) {
	payloadSize := store.PageSize() - 4

	rootID := store.AllocatePage()
	// AllocatePage already wrote anchorID's image as an empty leaf page,
	// which is exactly the anchor this tree wants — nothing further to
	// write for it.
	anchorID := store.AllocatePage()

	root := NewBranchPage(payloadSize)
	root.Insert(anchorID, 0)
	if err := store.PutPageBytes(rootID, root.Serialize()); err != nil {
		return nil, err
	}

	return &DataTree{store: store, rootPageID: rootID}, nil
}

// DataTreeFromExisting wraps an already-populated store whose root
// page is known to be rootPageID, without writing anything.
func DataTreeFromExisting(store PageStore, rootPageID uint64) *DataTree {
	return &DataTree{store: store, rootPageID: rootPageID}
}

// RootPageID returns the tree's branch root page id.
func (t *DataTree) RootPageID() uint64 {
	return t.rootPageID
}

// Store returns the underlying PageStore.
func (t *DataTree) Store() PageStore {
	return t.store
}

func (t *DataTree) loadRoot() (*BranchPage, error) {
	buf, err := t.store.GetPageBytes(t.rootPageID)
	if err != nil {
		return nil, err
	}
	if decodePageType(buf[0]) != PageBranch {
		return nil, NewError(ErrRootNotBranch)
	}
	return DeserializeBranchPage(buf), nil
}

func (t *DataTree) loadNode(id uint64) (leafNode, error) {
	buf, err := t.store.GetPageBytes(id)
	if err != nil {
		return nil, err
	}
	return decodeLeafNode(buf), nil
}

func (t *DataTree) writeNode(id uint64, n leafNode) error {
	return t.store.PutPageBytes(id, n.Serialize())
}

// Get looks up key, walking the anchor leaf's overflow chain until it
// is found or the chain ends.
func (t *DataTree) Get(key uint64) ([]byte, bool, error) {
	root, err := t.loadRoot()
	if err != nil {
		return nil, false, err
	}
	anchor, ok := root.FindPageID(key)
	if !ok {
		return nil, false, NewError(ErrInvariantViolation)
	}

	for id := anchor; id != nullPageID; id = t.store.GetNextPageID(id) {
		node, err := t.loadNode(id)
		if err != nil {
			return nil, false, err
		}
		if v, found := node.Get(key); found {
			return v, true, nil
		}
	}
	return nil, false, nil
}

// Put routes key to its anchor leaf, walking the overflow chain until
// some page in it accepts the write; if every existing page is full,
// Put allocates a fresh leaf page and links it onto the end of the
// chain (spec §4.2). Any copy of key already in the chain is removed
// before that walk, so the chain never holds two entries for one key. A
// value that could never fit any single leaf page is rejected upfront
// with ErrValueTooLarge, independent of current occupancy.
func (t *DataTree) Put(key uint64, value []byte) error {
	payloadSize := t.store.PageSize() - 4
	if len(value) > LeafMaxValueSize(payloadSize) {
		return NewError(ErrValueTooLarge)
	}

	root, err := t.loadRoot()
	if err != nil {
		return err
	}
	anchor, ok := root.FindPageID(key)
	if !ok {
		return NewError(ErrInvariantViolation)
	}

	for id := anchor; id != nullPageID; id = t.store.GetNextPageID(id) {
		node, err := t.loadNode(id)
		if err != nil {
			return err
		}
		if node.Delete(key) {
			if err := t.writeNode(id, node); err != nil {
				return err
			}
			break
		}
	}

	id := anchor
	for {
		node, err := t.loadNode(id)
		if err != nil {
			return err
		}
		if node.Put(key, value) {
			return t.writeNode(id, node)
		}

		next := t.store.GetNextPageID(id)
		if next == nullPageID {
			newID := t.store.AllocatePage()
			newLeaf := NewLeafPage(payloadSize)
			if !newLeaf.Put(key, value) {
				return NewError(ErrInvariantViolation)
			}
			if err := t.writeNode(newID, newLeaf); err != nil {
				return err
			}
			// LinkPages rewrites both id's and newID's stored images in
			// place, so id's unchanged content needn't be written again.
			t.store.LinkPages(id, newID)
			return nil
		}
		id = next
	}
}

// Delete removes key, if present, from whichever page in its anchor's
// chain holds it. An emptied non-anchor page is unlinked from the
// chain and freed; the anchor leaf is never freed, since the branch
// root always needs a reachable child for its key range.
func (t *DataTree) Delete(key uint64) (bool, error) {
	root, err := t.loadRoot()
	if err != nil {
		return false, err
	}
	anchor, ok := root.FindPageID(key)
	if !ok {
		return false, NewError(ErrInvariantViolation)
	}

	for id := anchor; id != nullPageID; id = t.store.GetNextPageID(id) {
		node, err := t.loadNode(id)
		if err != nil {
			return false, err
		}
		if !node.Delete(key) {
			continue
		}
		if err := t.writeNode(id, node); err != nil {
			return false, err
		}
		if err := t.collapseIfEmpty(id, node, anchor); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (t *DataTree) collapseIfEmpty(id uint64, node leafNode, anchor uint64) error {
	if id == anchor || !isEmptyNode(node) {
		return nil
	}

	// LinkPages splices prev and next together by rewriting their
	// stored images directly; id's own image is about to be freed, so
	// it needs no update.
	prev := t.store.GetPrevPageID(id)
	next := t.store.GetNextPageID(id)
	t.store.LinkPages(prev, next)

	return t.store.FreePage(id)
}

// Flush delegates to the underlying store's Flush.
func (t *DataTree) Flush() error {
	return t.store.Flush()
}

// DirtyPages delegates to the underlying store's DirtyPages.
func (t *DataTree) DirtyPages() []uint64 {
	return t.store.DirtyPages()
}

// Package datatree implements an embedded, ordered key-value store keyed
// by 64-bit unsigned integers with opaque byte-string values.
//
// Its durable representation is a collection of fixed-size pages; its
// in-memory representation is a shallow tree whose root is a single
// branch page indexing a chain of leaf pages. The store exposes get,
// put, delete, an explicit flush, and the set of pages modified since
// the last flush so that an outer layer may persist them.
//
// The package is organized the way gdbx organizes its mdbx-compatible
// engine, scaled down to a single in-memory backend: a page codec
// (leaf.go, branch.go, rle.go) that serializes the three page variants
// bit-exactly, a PageStore abstraction (store.go) that owns page images
// and their integrity, and a tree operation layer (tree.go) that routes
// key operations through the codec and the store.
//
// The core is single-threaded: neither DataTree nor InMemoryPageStore
// does any locking. Callers needing concurrent access must provide their
// own mutual exclusion.
package datatree

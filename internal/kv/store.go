// Package kv defines the narrow key-value store contract the rest of
// sqlkv programs against: ordered keyed trees with atomic batch writes,
// iteration, and durable flush. Two concrete implementations back it: a
// bbolt-backed one for real persistence (internal/kv/bboltstore) and an
// in-memory one for tests that must not touch disk (internal/kv/memstore).
package kv

// Tree is one ordered, named bucket of byte keys to byte values.
type Tree interface {
	Get(key []byte) ([]byte, bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error

	// Iterate walks every key in ascending order, calling fn for each.
	// fn returns false to stop iteration early.
	Iterate(fn func(key, value []byte) (bool, error)) error

	// IteratePrefix walks every key with the given prefix in ascending order.
	IteratePrefix(prefix []byte, fn func(key, value []byte) (bool, error)) error
}

// Batch is a Tree-like handle over one or more trees whose writes are
// staged and applied atomically on Commit.
type Batch interface {
	// Tree returns the staged view of the named tree within this batch.
	Tree(name string) (Tree, error)
	Commit() error
	Discard()
}

// Store is the top-level handle to the persistent key-value store: the
// collection of named trees plus batch and flush primitives.
type Store interface {
	Tree(name string) (Tree, error)
	DropTree(name string) error
	ListTrees() ([]string, error)

	// Batch opens an atomic write batch touching the named trees.
	Batch(names ...string) (Batch, error)

	// Flush durably persists all committed writes. The engine issues a
	// flush after every executed statement.
	Flush() error

	Close() error
}

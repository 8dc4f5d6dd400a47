package table

import "sqlkv/internal/kv"

// Tx is the atomic unit of work a mutating statement runs inside: a single
// kv.Batch spanning every tree the statement, and any constraint cascade it
// triggers, might touch. Handlers opened against the same Tx share one
// all-or-nothing commit, so a cascade that writes to several tables either
// lands entirely or not at all, even though none of those writes commit
// until the whole statement finishes.
type Tx struct {
	batch kv.Batch
	cache map[string]kv.Tree
}

// NewTx wraps an already-open kv.Batch.
func NewTx(batch kv.Batch) *Tx {
	return &Tx{batch: batch, cache: make(map[string]kv.Tree)}
}

// Tree returns (and memoizes) the named tree within this transaction's
// batch. name must have been included when the batch was opened.
func (tx *Tx) Tree(name string) (kv.Tree, error) {
	if t, ok := tx.cache[name]; ok {
		return t, nil
	}
	t, err := tx.batch.Tree(name)
	if err != nil {
		return nil, err
	}
	tx.cache[name] = t
	return t, nil
}

// Commit finalizes every write made through this Tx.
func (tx *Tx) Commit() error { return tx.batch.Commit() }

// Discard abandons every write made through this Tx.
func (tx *Tx) Discard() { tx.batch.Discard() }

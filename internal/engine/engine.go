// Package engine wires the catalog, key-value store, and statement executor
// behind a single database handle: Open/OpenTemp/Close/Execute. The handle
// owns its Store, dispatches each statement to the executor, and flushes
// the underlying batch after every statement so callers open it once and
// defer Close.
package engine

import (
	"os"
	"path/filepath"

	"sqlkv/internal/ast"
	"sqlkv/internal/catalog"
	"sqlkv/internal/dberr"
	"sqlkv/internal/executor"
	"sqlkv/internal/fkregistry"
	"sqlkv/internal/kv"
	"sqlkv/internal/kv/bboltstore"
	"sqlkv/internal/relation"
	"sqlkv/internal/sqlfront"
	"sqlkv/internal/table"
)

// DB is sqlkv's database handle: one key-value store plus the machinery to
// run statements against it. Every exported method is safe only from a
// single goroutine at a time; concurrent access to one handle is the
// caller's responsibility to serialize.
type DB struct {
	store   kv.Store
	tempDir string // non-empty when this handle owns a scratch directory to remove on Close
}

// Open opens (creating if absent) a database at path, backed by bbolt.
func Open(path string) (*DB, error) {
	store, err := bboltstore.Open(path)
	if err != nil {
		return nil, &dberr.StorageError{Err: err}
	}
	return &DB{store: store}, nil
}

// OpenTemp creates a database under a unique directory inside the system
// temp directory, removed entirely on Close.
func OpenTemp() (*DB, error) {
	dir, err := os.MkdirTemp("", "sqlkv-*")
	if err != nil {
		return nil, &dberr.StorageError{Err: err}
	}
	store, err := bboltstore.Open(filepath.Join(dir, "sqlkv.db"))
	if err != nil {
		os.RemoveAll(dir)
		return nil, &dberr.StorageError{Err: err}
	}
	return &DB{store: store, tempDir: dir}, nil
}

// OpenWithStore wraps an already-open kv.Store, used by tests that want an
// in-memory store (internal/kv/memstore) without touching disk.
func OpenWithStore(store kv.Store) *DB {
	return &DB{store: store}
}

// Close releases the underlying store, and removes the scratch directory
// for a handle opened with OpenTemp.
func (db *DB) Close() error {
	err := db.store.Close()
	if db.tempDir != "" {
		os.RemoveAll(db.tempDir)
	}
	if err != nil {
		return &dberr.StorageError{Err: err}
	}
	return nil
}

// Execute parses sql as one or more semicolon-delimited statements and runs
// each in turn, returning one Relation per statement in order.
// Non-query statements return an empty (zero-column, zero-row) Relation.
// Execution stops at the first statement that errors; Relations already
// produced by prior statements in the call are still returned alongside
// the error.
func (db *DB) Execute(sql string) ([]*relation.Relation, error) {
	stmts, err := sqlfront.Parse(sql)
	if err != nil {
		return nil, err
	}
	results := make([]*relation.Relation, 0, len(stmts))
	for _, stmt := range stmts {
		rel, err := db.executeOne(stmt)
		if err != nil {
			return results, err
		}
		results = append(results, rel)
	}
	return results, nil
}

// executeOne runs a single statement inside its own batch spanning the
// catalog, the FK registry, and every existing user table (plus a new
// table's own tree for CREATE TABLE): FK cascades may reach any table
// transitively, and the batch must already cover anything the statement's
// constraint phase might touch.
func (db *DB) executeOne(stmt ast.Statement) (*relation.Relation, error) {
	names, err := db.battableTrees(stmt)
	if err != nil {
		return nil, err
	}
	batch, err := db.store.Batch(names...)
	if err != nil {
		return nil, &dberr.StorageError{Err: err}
	}
	tx := table.NewTx(batch)
	ex := executor.New(tx)

	rel, err := ex.Execute(stmt)
	if err != nil {
		batch.Discard()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, &dberr.StorageError{Err: err}
	}
	if err := db.store.Flush(); err != nil {
		return nil, &dberr.StorageError{Err: err}
	}
	return rel, nil
}

func (db *DB) battableTrees(stmt ast.Statement) ([]string, error) {
	tablesTree, err := db.store.Tree(catalog.TablesTree)
	if err != nil {
		return nil, &dberr.StorageError{Err: err}
	}
	names, err := catalog.ListNames(tablesTree)
	if err != nil {
		return nil, err
	}

	trees := make([]string, 0, len(names)+3)
	trees = append(trees, catalog.TablesTree, fkregistry.Tree)
	for _, n := range names {
		trees = append(trees, executor.TreeName(n))
	}
	if ct, ok := stmt.(ast.CreateTable); ok {
		trees = append(trees, executor.TreeName(ct.Name))
	}
	return trees, nil
}

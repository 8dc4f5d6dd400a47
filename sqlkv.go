// Package sqlkv is an embedded relational database engine: a SQL front
// end, a row codec, a table catalog and constraint engine, a join
// iterator, and an expression evaluator, layered over a pluggable
// key-value store. This file is the module's public surface; the
// implementation lives under internal/.
package sqlkv

import (
	"sqlkv/internal/engine"
	"sqlkv/internal/kv"
	"sqlkv/internal/relation"
)

// DB is an open database handle. The zero value is not usable; construct
// one with Open or OpenTemp.
type DB struct {
	eng *engine.DB
}

// Open opens (creating if absent) a database file at path.
func Open(path string) (*DB, error) {
	eng, err := engine.Open(path)
	if err != nil {
		return nil, err
	}
	return &DB{eng: eng}, nil
}

// OpenTemp opens a database under a unique directory below the system
// temp directory. The directory and its contents are removed on Close.
func OpenTemp() (*DB, error) {
	eng, err := engine.OpenTemp()
	if err != nil {
		return nil, err
	}
	return &DB{eng: eng}, nil
}

// openWithStore is used by tests that want a DB over an in-memory store.
func openWithStore(store kv.Store) *DB {
	return &DB{eng: engine.OpenWithStore(store)}
}

// Execute runs one or more semicolon-delimited SQL statements and returns
// one Relation per statement, in order. A non-query statement (CREATE
// TABLE, INSERT, UPDATE, DELETE, DROP TABLE) returns an empty Relation.
func (db *DB) Execute(sql string) ([]*relation.Relation, error) {
	return db.eng.Execute(sql)
}

// Close releases the database handle's resources.
func (db *DB) Close() error {
	return db.eng.Close()
}

// Relation re-exports internal/relation.Relation so callers can name the
// query-result type without importing an internal package directly.
type Relation = relation.Relation

// Package bboltstore implements kv.Store over go.etcd.io/bbolt: bbolt
// buckets stand in for sqlkv's trees, an Update transaction provides the
// atomic write batch, and db.Sync provides the durable flush required
// after every executed statement.
package bboltstore

import (
	"fmt"

	"go.etcd.io/bbolt"

	"sqlkv/internal/kv"
)

// Store wraps an open *bbolt.DB.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) a bbolt database file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("bboltstore: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Tree(name string) (kv.Tree, error) {
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	}); err != nil {
		return nil, fmt.Errorf("bboltstore: create tree %s: %w", name, err)
	}
	return &tree{db: s.db, name: name}, nil
}

func (s *Store) DropTree(name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket([]byte(name))
		if err == bbolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
}

func (s *Store) ListTrees() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bboltstore: list trees: %w", err)
	}
	return names, nil
}

func (s *Store) Batch(names ...string) (kv.Batch, error) {
	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("bboltstore: begin batch: %w", err)
	}
	for _, name := range names {
		if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("bboltstore: open tree %s in batch: %w", name, err)
		}
	}
	return &batch{tx: tx}, nil
}

func (s *Store) Flush() error {
	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("bboltstore: flush: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("bboltstore: close: %w", err)
	}
	return nil
}

type batch struct {
	tx *bbolt.Tx
}

func (b *batch) Tree(name string) (kv.Tree, error) {
	bucket := b.tx.Bucket([]byte(name))
	if bucket == nil {
		return nil, fmt.Errorf("bboltstore: tree %q not opened in this batch", name)
	}
	return &batchTree{bucket: bucket}, nil
}

func (b *batch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("bboltstore: commit batch: %w", err)
	}
	return nil
}

func (b *batch) Discard() {
	_ = b.tx.Rollback()
}

// tree is a standalone (auto-committing) view of one bucket, used outside
// of an explicit Batch.
type tree struct {
	db   *bbolt.DB
	name string
}

func (t *tree) Get(key []byte) ([]byte, bool, error) {
	var out []byte
	err := t.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(t.name))
		if b == nil {
			return nil
		}
		if v := b.Get(key); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("bboltstore: get: %w", err)
	}
	return out, out != nil, nil
}

func (t *tree) Put(key, value []byte) error {
	err := t.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(t.name))
		if err != nil {
			return err
		}
		return b.Put(key, value)
	})
	if err != nil {
		return fmt.Errorf("bboltstore: put: %w", err)
	}
	return nil
}

func (t *tree) Delete(key []byte) error {
	err := t.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(t.name))
		if b == nil {
			return nil
		}
		return b.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("bboltstore: delete: %w", err)
	}
	return nil
}

func (t *tree) Iterate(fn func(key, value []byte) (bool, error)) error {
	return iterate(t.db, t.name, nil, fn)
}

func (t *tree) IteratePrefix(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	return iterate(t.db, t.name, prefix, fn)
}

func iterate(db *bbolt.DB, name string, prefix []byte, fn func(key, value []byte) (bool, error)) error {
	return db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(name))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		var k, v []byte
		if prefix == nil {
			k, v = c.First()
		} else {
			k, v = c.Seek(prefix)
		}
		for ; k != nil; k, v = c.Next() {
			if prefix != nil && !hasPrefix(k, prefix) {
				break
			}
			cont, err := fn(append([]byte(nil), k...), append([]byte(nil), v...))
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	})
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// batchTree is a bucket view scoped to one open write transaction.
type batchTree struct {
	bucket *bbolt.Bucket
}

func (t *batchTree) Get(key []byte) ([]byte, bool, error) {
	v := t.bucket.Get(key)
	if v == nil {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (t *batchTree) Put(key, value []byte) error {
	return t.bucket.Put(key, value)
}

func (t *batchTree) Delete(key []byte) error {
	return t.bucket.Delete(key)
}

func (t *batchTree) Iterate(fn func(key, value []byte) (bool, error)) error {
	c := t.bucket.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		cont, err := fn(k, v)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (t *batchTree) IteratePrefix(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	c := t.bucket.Cursor()
	for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
		cont, err := fn(k, v)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// Package memstore is an in-memory implementation of kv.Store, used by
// engine and catalog unit tests that must not touch disk.
package memstore

import (
	"bytes"
	"fmt"
	"sort"

	"sqlkv/internal/kv"
)

// Store is a process-local, non-persistent kv.Store.
type Store struct {
	trees map[string]*tree
}

// New returns an empty Store.
func New() *Store {
	return &Store{trees: make(map[string]*tree)}
}

func (s *Store) Tree(name string) (kv.Tree, error) {
	return s.treeFor(name), nil
}

func (s *Store) treeFor(name string) *tree {
	t, ok := s.trees[name]
	if !ok {
		t = &tree{data: make(map[string][]byte)}
		s.trees[name] = t
	}
	return t
}

func (s *Store) DropTree(name string) error {
	delete(s.trees, name)
	return nil
}

func (s *Store) ListTrees() ([]string, error) {
	names := make([]string, 0, len(s.trees))
	for name := range s.trees {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Batch(names ...string) (kv.Batch, error) {
	b := &batch{store: s, staged: make(map[string]*tree, len(names))}
	for _, name := range names {
		src := s.treeFor(name)
		b.staged[name] = src.clone()
	}
	return b, nil
}

func (s *Store) Flush() error { return nil }

func (s *Store) Close() error { return nil }

type tree struct {
	data map[string][]byte
}

func (t *tree) clone() *tree {
	cp := &tree{data: make(map[string][]byte, len(t.data))}
	for k, v := range t.data {
		cp.data[k] = append([]byte(nil), v...)
	}
	return cp
}

func (t *tree) Get(key []byte) ([]byte, bool, error) {
	v, ok := t.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (t *tree) Put(key, value []byte) error {
	t.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (t *tree) Delete(key []byte) error {
	delete(t.data, string(key))
	return nil
}

func (t *tree) sortedKeys() []string {
	keys := make([]string, 0, len(t.data))
	for k := range t.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t *tree) Iterate(fn func(key, value []byte) (bool, error)) error {
	for _, k := range t.sortedKeys() {
		cont, err := fn([]byte(k), t.data[k])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (t *tree) IteratePrefix(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	for _, k := range t.sortedKeys() {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		cont, err := fn([]byte(k), t.data[k])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

type batch struct {
	store  *Store
	staged map[string]*tree
}

func (b *batch) Tree(name string) (kv.Tree, error) {
	t, ok := b.staged[name]
	if !ok {
		return nil, fmt.Errorf("memstore: tree %q not opened in this batch", name)
	}
	return t, nil
}

func (b *batch) Commit() error {
	for name, t := range b.staged {
		b.store.trees[name] = t
	}
	return nil
}

func (b *batch) Discard() {
	b.staged = nil
}

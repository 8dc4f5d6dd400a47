// Package fkregistry implements sqlkv's foreign key metadata store: every
// declared foreign key is recorded as a row in a dedicated internal tree
// instead of scattering per-table state, keyed so both the owning table's
// outgoing constraints and a referenced table's incoming constraints can be
// looked up directly. Each record holds a name, owning table, local
// columns, referred table, referred columns, and the ON DELETE/ON UPDATE
// actions; composite column lists are pipe-delimited.
package fkregistry

import (
	"fmt"
	"strings"

	"sqlkv/internal/ast"
	"sqlkv/internal/kv"
	"sqlkv/internal/rowcodec"
	"sqlkv/internal/value"
)

// Tree is the name of the internal tree holding every declared foreign key.
const Tree = "@foreign_keys"

// Record is one declared foreign key, as persisted in the meta-table.
type Record struct {
	Name             string
	Table            string
	Columns          []string
	ReferredTable    string
	ReferredColumns  []string
	OnDelete         ast.ReferentialAction
	OnUpdate         ast.ReferentialAction
}

// schema returns the meta-table's fixed row layout. It is rebuilt on every
// call since rowcodec.Columns carries no exported constructor from a
// literal, but the layout is tiny and only ever used internally.
func schema() *rowcodec.Columns {
	cols := rowcodec.NewColumns()
	for _, c := range []struct {
		name string
		typ  value.Type
	}{
		{"name", value.TypeString},
		{"table", value.TypeString},
		{"columns", value.TypeString},
		{"referred_table", value.TypeString},
		{"referred_columns", value.TypeString},
		{"on_delete", value.TypeInteger},
		{"on_update", value.TypeInteger},
	} {
		if _, err := cols.AddColumn(c.name, c.typ); err != nil {
			panic("fkregistry: internal: " + err.Error())
		}
	}
	return cols
}

func encode(rec Record) ([]byte, error) {
	row := []value.Value{
		value.String(rec.Name),
		value.String(rec.Table),
		value.String(strings.Join(rec.Columns, "|")),
		value.String(rec.ReferredTable),
		value.String(strings.Join(rec.ReferredColumns, "|")),
		value.Integer(int64(rec.OnDelete)),
		value.Integer(int64(rec.OnUpdate)),
	}
	return schema().Encode(row)
}

func decode(data []byte) (Record, error) {
	row, err := schema().Decode(data)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Name:            row[0].Str(),
		Table:           row[1].Str(),
		Columns:         splitNonEmpty(row[2].Str()),
		ReferredTable:   row[3].Str(),
		ReferredColumns: splitNonEmpty(row[4].Str()),
		OnDelete:        ast.ReferentialAction(row[5].Int()),
		OnUpdate:        ast.ReferentialAction(row[6].Int()),
	}, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "|")
}

// Add persists a newly declared foreign key. Names are unique across the
// whole database (they double as the row key).
func Add(tree kv.Tree, rec Record) error {
	if _, found, err := tree.Get([]byte(rec.Name)); err != nil {
		return err
	} else if found {
		return fmt.Errorf("fkregistry: foreign key %q already exists", rec.Name)
	}
	data, err := encode(rec)
	if err != nil {
		return err
	}
	return tree.Put([]byte(rec.Name), data)
}

// All returns every declared foreign key.
func All(tree kv.Tree) ([]Record, error) {
	var out []Record
	err := tree.Iterate(func(_, v []byte) (bool, error) {
		rec, err := decode(v)
		if err != nil {
			return false, err
		}
		out = append(out, rec)
		return true, nil
	})
	return out, err
}

// ChildConstraints returns the foreign keys declared on childTable — the
// constraints to validate whenever a row is inserted into, or updated
// within, childTable.
func ChildConstraints(tree kv.Tree, childTable string) ([]Record, error) {
	all, err := All(tree)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range all {
		if r.Table == childTable {
			out = append(out, r)
		}
	}
	return out, nil
}

// ParentActions returns the foreign keys that reference parentTable — the
// cascading actions to apply whenever a row is deleted from, or updated
// within, parentTable.
func ParentActions(tree kv.Tree, parentTable string) ([]Record, error) {
	all, err := All(tree)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range all {
		if r.ReferredTable == parentTable {
			out = append(out, r)
		}
	}
	return out, nil
}

// Remove deletes a declared foreign key by name.
func Remove(tree kv.Tree, name string) error {
	return tree.Delete([]byte(name))
}

// ReferencesTable reports whether any foreign key references table as its
// parent, other than ones table itself declares — used by DROP TABLE to
// refuse dropping a table while another table's foreign key still depends
// on it.
func ReferencesTable(tree kv.Tree, table string) (bool, string, error) {
	actions, err := ParentActions(tree, table)
	if err != nil {
		return false, "", err
	}
	for _, r := range actions {
		if r.Table != table {
			return true, r.Name, nil
		}
	}
	return false, "", nil
}

// RemoveOwnedBy deletes every foreign key declared by table (its outgoing
// references), used when table itself is dropped.
func RemoveOwnedBy(tree kv.Tree, table string) error {
	recs, err := ChildConstraints(tree, table)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if err := Remove(tree, r.Name); err != nil {
			return err
		}
	}
	return nil
}

package catalog

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"sqlkv/internal/expr"
	"sqlkv/internal/kv"
	"sqlkv/internal/rowcodec"
	"sqlkv/internal/value"
)

func init() {
	gob.Register(expr.Lit{})
	gob.Register(expr.Ident{})
	gob.Register(expr.BoolExpr{})
	gob.Register(expr.Not{})
	gob.Register(expr.CompareExpr{})
	gob.Register(expr.MathExpr{})
}

// TablesTree is the name of the internal tree holding every table's
// persisted TableDefinition, so the catalog lives in the key-value store
// itself rather than purely in memory.
const TablesTree = "@tables"

// wireTableDefinition is the gob-serializable shadow of TableDefinition.
// Columns round-trip as parallel name/type slices since rowcodec.Columns
// exposes no exported fields; Checks/defaults carry expr.Node/value.Value
// through gob's interface encoding, relying on the Register calls above.
type wireTableDefinition struct {
	Name         string
	ColumnNames  []string
	ColumnTypes  []value.Type
	NotNulls     []int
	Uniques      []UniqueConstraint
	PrimaryKey   *PrimaryKeyConstraint
	Checks       []CheckConstraint
	DefaultKeys  []int
	DefaultVals  []value.Value
}

func toWire(td *TableDefinition) wireTableDefinition {
	names := td.Columns.Names()
	types := make([]value.Type, len(names))
	for i := range names {
		types[i] = td.Columns.Type(i)
	}
	var notNulls []int
	for idx := range td.NotNulls {
		notNulls = append(notNulls, idx)
	}
	var defKeys []int
	var defVals []value.Value
	for idx, v := range td.Defaults {
		defKeys = append(defKeys, idx)
		defVals = append(defVals, v)
	}
	return wireTableDefinition{
		Name:        td.Name,
		ColumnNames: names,
		ColumnTypes: types,
		NotNulls:    notNulls,
		Uniques:     td.Uniques,
		PrimaryKey:  td.PrimaryKey,
		Checks:      td.Checks,
		DefaultKeys: defKeys,
		DefaultVals: defVals,
	}
}

func fromWire(w wireTableDefinition) (*TableDefinition, error) {
	td := &TableDefinition{
		Name:       w.Name,
		NotNulls:   make(map[int]bool),
		Uniques:    w.Uniques,
		PrimaryKey: w.PrimaryKey,
		Checks:     w.Checks,
		Defaults:   make(map[int]value.Value),
	}
	cols, err := newColumnsFrom(w.ColumnNames, w.ColumnTypes)
	if err != nil {
		return nil, err
	}
	td.Columns = cols
	for _, idx := range w.NotNulls {
		td.NotNulls[idx] = true
	}
	for i, idx := range w.DefaultKeys {
		td.Defaults[idx] = w.DefaultVals[i]
	}
	return td, nil
}

// newColumnsFrom rebuilds a rowcodec.Columns from a persisted name/type
// list; AddColumn only fails on a duplicate name, which cannot occur here
// since names were already unique at table-creation time.
func newColumnsFrom(names []string, types []value.Type) (*rowcodec.Columns, error) {
	cols := rowcodec.NewColumns()
	for i, n := range names {
		if _, err := cols.AddColumn(n, types[i]); err != nil {
			return nil, fmt.Errorf("catalog: rebuild columns: %w", err)
		}
	}
	return cols, nil
}

// Encode serializes a TableDefinition for storage in TablesTree.
func Encode(td *TableDefinition) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(toWire(td)); err != nil {
		return nil, fmt.Errorf("catalog: encode %q: %w", td.Name, err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes a TableDefinition previously written by Encode.
func Decode(data []byte) (*TableDefinition, error) {
	var w wireTableDefinition
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	return fromWire(w)
}

// Save persists td into tree under its own name.
func Save(tree kv.Tree, td *TableDefinition) error {
	data, err := Encode(td)
	if err != nil {
		return err
	}
	return tree.Put([]byte(td.Name), data)
}

// Load reads and decodes the TableDefinition named name from tree. The
// second return reports whether it was present.
func Load(tree kv.Tree, name string) (*TableDefinition, bool, error) {
	data, ok, err := tree.Get([]byte(name))
	if err != nil || !ok {
		return nil, ok, err
	}
	td, err := Decode(data)
	return td, true, err
}

// Remove deletes the persisted TableDefinition named name from tree.
func Remove(tree kv.Tree, name string) error {
	return tree.Delete([]byte(name))
}

// ListNames returns every table name persisted in tree.
func ListNames(tree kv.Tree) ([]string, error) {
	var names []string
	err := tree.Iterate(func(key, _ []byte) (bool, error) {
		names = append(names, string(key))
		return true, nil
	})
	return names, err
}

// Package catalog implements sqlkv's table catalog and constraint
// metadata: TableDefinition, the NOT NULL/UNIQUE/CHECK/PRIMARY KEY
// metadata attached to it, and the synthesis of that metadata from a
// CREATE TABLE statement's column-level shortcuts (PRIMARY KEY, UNIQUE,
// NOT NULL, CHECK, REFERENCES) plus its table-level constraints.
// Column-level CHECKs come first, then table-level constraints in
// declaration order, then the column-level PRIMARY KEY; the primary key's
// UNIQUE constraint is appended next, followed by column-level UNIQUEs.
package catalog

import (
	"fmt"
	"sort"

	"sqlkv/internal/ast"
	"sqlkv/internal/colset"
	"sqlkv/internal/dberr"
	"sqlkv/internal/expr"
	"sqlkv/internal/rowcodec"
	"sqlkv/internal/value"
)

// UniqueConstraint names a set of columns (by index) that must be unique
// across all rows of a table.
type UniqueConstraint struct {
	Name    string
	Columns []int
}

// PrimaryKeyConstraint is a table's (at most one) primary key.
type PrimaryKeyConstraint struct {
	Name    string
	Columns []int
}

// CheckConstraint is a resolved CHECK expression evaluated against a
// candidate row.
type CheckConstraint struct {
	Name string
	Expr expr.Node
}

// TableDefinition is a table's schema plus its constraint metadata (spec
// §3). PrimaryKey's columns are additionally present in NotNulls and as a
// UniqueConstraint in Uniques — callers never need to special-case it.
type TableDefinition struct {
	Name       string
	Columns    *rowcodec.Columns
	NotNulls   map[int]bool
	Uniques    []UniqueConstraint
	PrimaryKey *PrimaryKeyConstraint
	Checks     []CheckConstraint
	Defaults   map[int]value.Value
}

// ColumnIndex returns a column's index by name, or an error if absent.
func (t *TableDefinition) ColumnIndex(name string) (int, error) {
	idx := t.Columns.IndexOf(name)
	if idx < 0 {
		return -1, &dberr.SchemaError{Kind: dberr.ColumnNotFound, Subject: name}
	}
	return idx, nil
}

// ColumnSet builds the single-table colset.Set used to resolve
// expressions (WHERE, CHECK, defaults, SET assignments) against this
// table alone. alias defaults to the table's own name when empty.
func (t *TableDefinition) ColumnSet(alias string) *colset.Set {
	if alias == "" {
		alias = t.Name
	}
	names := t.Columns.Names()
	types := make([]value.Type, len(names))
	for i := range names {
		types[i] = t.Columns.Type(i)
	}
	return colset.FromColumns(alias, names, types)
}

// ForeignKeyDecl is a foreign key declared alongside a CREATE TABLE,
// pending validation against its parent table and insertion into the FK
// registry.
type ForeignKeyDecl struct {
	Name          string
	ChildColumns  []string
	ParentTable   string
	ParentColumns []string
	OnDelete      ast.ReferentialAction
	OnUpdate      ast.ReferentialAction
}

// BuildTableDefinition synthesizes a TableDefinition and its pending
// foreign key declarations from a parsed CREATE TABLE statement. Column
// defaults are resolved against an empty column set, so a default that
// references any identifier is rejected immediately: defaults must be
// constant expressions.
func BuildTableDefinition(ct ast.CreateTable) (*TableDefinition, []ForeignKeyDecl, error) {
	td := &TableDefinition{
		Name:     ct.Name,
		Columns:  rowcodec.NewColumns(),
		NotNulls: make(map[int]bool),
		Defaults: make(map[int]value.Value),
	}

	var pkColsFromColumns []int
	var uniqueColsFromColumns []int
	var fks []ForeignKeyDecl

	for _, c := range ct.Columns {
		idx, err := td.Columns.AddColumn(c.Name, c.Type)
		if err != nil {
			return nil, nil, &dberr.SchemaError{Kind: dberr.ColumnExists, Subject: c.Name}
		}
		if c.NotNull {
			td.NotNulls[idx] = true
		}
		if c.PrimaryKey {
			if len(pkColsFromColumns) > 0 {
				return nil, nil, &dberr.SchemaError{Kind: dberr.MultiplePrimaryKeys, Subject: ct.Name}
			}
			pkColsFromColumns = append(pkColsFromColumns, idx)
		}
		if c.Unique {
			uniqueColsFromColumns = append(uniqueColsFromColumns, idx)
		}
		if c.Default != nil {
			v, err := resolveConstant(c.Default)
			if err != nil {
				return nil, nil, fmt.Errorf("column %q default: %w", c.Name, err)
			}
			td.Defaults[idx] = v
		}
		if c.References != nil {
			fks = append(fks, ForeignKeyDecl{
				Name:          autoFKName(ct.Name, c.References.Table),
				ChildColumns:  []string{c.Name},
				ParentTable:   c.References.Table,
				ParentColumns: []string{c.References.Column},
				OnDelete:      c.References.OnDelete,
				OnUpdate:      c.References.OnUpdate,
			})
		}
	}

	checkSet := td.ColumnSet(ct.Name)
	for _, c := range ct.Columns {
		if c.Check == nil {
			continue
		}
		node, err := checkSet.ResolveExpr(c.Check)
		if err != nil {
			return nil, nil, fmt.Errorf("column %q check: %w", c.Name, err)
		}
		td.Checks = append(td.Checks, CheckConstraint{Name: autoCheckName(ct.Name, c.Name), Expr: node})
	}

	for _, con := range ct.TableConstraints {
		switch con.Kind {
		case ast.TCPrimaryKey:
			idxs, err := columnIndices(td.Columns, con.Columns)
			if err != nil {
				return nil, nil, err
			}
			if td.PrimaryKey != nil || len(pkColsFromColumns) > 0 {
				return nil, nil, &dberr.SchemaError{Kind: dberr.MultiplePrimaryKeys, Subject: ct.Name}
			}
			name := con.Name
			if name == "" {
				name = autoPKName(ct.Name)
			}
			td.PrimaryKey = &PrimaryKeyConstraint{Name: name, Columns: idxs}
		case ast.TCUnique:
			idxs, err := columnIndices(td.Columns, con.Columns)
			if err != nil {
				return nil, nil, err
			}
			name := con.Name
			if name == "" {
				name = autoUniqueName(ct.Name, con.Columns)
			}
			td.Uniques = append(td.Uniques, UniqueConstraint{Name: name, Columns: idxs})
		case ast.TCCheck:
			node, err := checkSet.ResolveExpr(con.Check)
			if err != nil {
				return nil, nil, fmt.Errorf("check %q: %w", con.Name, err)
			}
			name := con.Name
			if name == "" {
				name = autoCheckName(ct.Name, "table")
			}
			td.Checks = append(td.Checks, CheckConstraint{Name: name, Expr: node})
		case ast.TCForeignKey:
			if len(con.Columns) != len(con.ReferencedColumns) {
				return nil, nil, fmt.Errorf("foreign key %q: column count mismatch", con.Name)
			}
			name := con.Name
			if name == "" {
				name = autoFKName(ct.Name, con.ReferencedTable)
			}
			fks = append(fks, ForeignKeyDecl{
				Name:          name,
				ChildColumns:  con.Columns,
				ParentTable:   con.ReferencedTable,
				ParentColumns: con.ReferencedColumns,
				OnDelete:      con.OnDelete,
				OnUpdate:      con.OnUpdate,
			})
		}
	}

	if len(pkColsFromColumns) > 0 {
		if td.PrimaryKey != nil {
			return nil, nil, &dberr.SchemaError{Kind: dberr.MultiplePrimaryKeys, Subject: ct.Name}
		}
		td.PrimaryKey = &PrimaryKeyConstraint{Name: autoPKName(ct.Name), Columns: pkColsFromColumns}
	}

	// Primary key columns imply NOT NULL and UNIQUE.
	if td.PrimaryKey != nil {
		for _, idx := range td.PrimaryKey.Columns {
			td.NotNulls[idx] = true
		}
		td.Uniques = append(td.Uniques, UniqueConstraint{Name: td.PrimaryKey.Name, Columns: td.PrimaryKey.Columns})
	}

	for _, idx := range uniqueColsFromColumns {
		name := autoUniqueName(ct.Name, []string{td.Columns.Names()[idx]})
		td.Uniques = append(td.Uniques, UniqueConstraint{Name: name, Columns: []int{idx}})
	}

	if err := validateConstraintNames(td); err != nil {
		return nil, nil, err
	}

	return td, fks, nil
}

func resolveConstant(e ast.Expr) (value.Value, error) {
	node, err := colset.New().ResolveExpr(e)
	if err != nil {
		return value.Null, err
	}
	return node.Eval(expr.EmptyRow{})
}

func columnIndices(cols *rowcodec.Columns, names []string) ([]int, error) {
	idxs := make([]int, len(names))
	for i, n := range names {
		idx := cols.IndexOf(n)
		if idx < 0 {
			return nil, &dberr.SchemaError{Kind: dberr.ColumnNotFound, Subject: n}
		}
		idxs[i] = idx
	}
	return idxs, nil
}

func validateConstraintNames(td *TableDefinition) error {
	seen := make(map[string]bool)
	add := func(name string) error {
		if name == "" {
			return nil
		}
		if seen[name] {
			return fmt.Errorf("duplicate constraint name %q", name)
		}
		seen[name] = true
		return nil
	}
	for _, u := range td.Uniques {
		if err := add(u.Name); err != nil {
			return err
		}
	}
	for _, c := range td.Checks {
		if err := add(c.Name); err != nil {
			return err
		}
	}
	return nil
}

func autoPKName(table string) string       { return fmt.Sprintf("pk_%s", table) }
func autoCheckName(table, col string) string { return fmt.Sprintf("chk_%s_%s", table, col) }
func autoFKName(table, parent string) string { return fmt.Sprintf("fk_%s_%s", table, parent) }
func autoUniqueName(table string, cols []string) string {
	joined := ""
	for i, c := range cols {
		if i > 0 {
			joined += "_"
		}
		joined += c
	}
	return fmt.Sprintf("uq_%s_%s", table, joined)
}

// SortedColumnSet returns a copy of cols sorted ascending, used wherever
// the spec calls for a "sorted column-index set" (UNIQUE/PRIMARY KEY
// identity for matching).
func SortedColumnSet(cols []int) []int {
	out := append([]int(nil), cols...)
	sort.Ints(out)
	return out
}

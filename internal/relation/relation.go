// Package relation holds the result of a query: a fixed list of column
// names and the rows produced for them, plus the ORDER BY sort.
package relation

import (
	"fmt"
	"sort"
	"strings"

	"sqlkv/internal/ast"
	"sqlkv/internal/dberr"
	"sqlkv/internal/value"
)

// Relation is a query result: column names plus the rows under them.
type Relation struct {
	columns []string
	rows    [][]value.Value
}

// New returns an empty Relation with the given column names.
func New(columns []string) *Relation {
	return &Relation{columns: append([]string(nil), columns...)}
}

// AddRow appends row, which must have exactly as many cells as there are
// columns.
func (r *Relation) AddRow(row []value.Value) error {
	if len(row) != len(r.columns) {
		return &dberr.ValueError{Expected: len(r.columns), Actual: len(row)}
	}
	r.rows = append(r.rows, row)
	return nil
}

// Columns returns the relation's column names.
func (r *Relation) Columns() []string { return append([]string(nil), r.columns...) }

// NumColumns reports the number of columns.
func (r *Relation) NumColumns() int { return len(r.columns) }

// NumRows reports the number of rows.
func (r *Relation) NumRows() int { return len(r.rows) }

// Rows returns every row, in current order.
func (r *Relation) Rows() [][]value.Value { return r.rows }

// Cell returns the value at (row, column) by index.
func (r *Relation) Cell(row, column int) value.Value { return r.rows[row][column] }

// CellByName returns the value at (row, columnName), or an error if the
// relation has no such column.
func (r *Relation) CellByName(row int, columnName string) (value.Value, error) {
	for i, c := range r.columns {
		if c == columnName {
			return r.rows[row][i], nil
		}
	}
	return value.Null, &dberr.SchemaError{Kind: dberr.ColumnNotFound, Subject: columnName}
}

// Sort reorders rows by the ORDER BY terms: Null compares greater than
// every non-Null value (smaller when NullsFirst is set), ties fall through
// to later terms, and Desc reverses the whole comparison for that term
// only, Null placement included, so a Desc term without NullsFirst puts
// Null first.
func (r *Relation) Sort(terms []ast.OrderTerm) error {
	if len(terms) == 0 {
		return nil
	}
	type resolved struct {
		index      int
		desc       bool
		nullsFirst bool
	}
	resolvedTerms := make([]resolved, len(terms))
	for i, term := range terms {
		idx := -1
		for j, c := range r.columns {
			if c == term.Column {
				idx = j
				break
			}
		}
		if idx < 0 {
			return &dberr.SchemaError{Kind: dberr.ColumnNotFound, Subject: term.Column}
		}
		resolvedTerms[i] = resolved{index: idx, desc: term.Desc, nullsFirst: term.NullsFirst}
	}

	sort.SliceStable(r.rows, func(i, j int) bool {
		a, b := r.rows[i], r.rows[j]
		for _, t := range resolvedTerms {
			av, bv := a[t.index], b[t.index]
			cmp := compareForSort(av, bv, t.nullsFirst)
			if t.desc {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	return nil
}

// compareForSort returns -1/0/1, treating Null specially per nullsFirst
// since value.Compare's three-valued result has no ordering for Null.
func compareForSort(a, b value.Value, nullsFirst bool) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		if nullsFirst {
			return -1
		}
		return 1
	case b.IsNull():
		if nullsFirst {
			return 1
		}
		return -1
	}
	switch {
	case value.Compare(a, value.OpLt, b) == value.True:
		return -1
	case value.Compare(a, value.OpGt, b) == value.True:
		return 1
	default:
		return 0
	}
}

// String renders the relation pipe-delimited, header then rows — used by
// the REPL/CLI to print query results.
func (r *Relation) String() string {
	if len(r.columns) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintln(&b, strings.Join(r.columns, "|"))
	for _, row := range r.rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = v.String()
		}
		fmt.Fprintln(&b, strings.Join(cells, "|"))
	}
	return b.String()
}

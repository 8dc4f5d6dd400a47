// Package colset resolves unresolved column references (internal/ast's
// Expr tree, as the parser would produce it) against the particular set of
// columns visible at a point in a statement — a single table, a join's
// combined column list, or the empty set used for CREATE TABLE default
// expressions — turning them into internal/expr's resolved tree (spec
// §4.1 "Resolution").
package colset

import (
	"fmt"

	"sqlkv/internal/ast"
	"sqlkv/internal/dberr"
	"sqlkv/internal/expr"
	"sqlkv/internal/value"
)

// Column describes one visible column: its owning table/alias, its name,
// and its type. Hidden marks the right-side copy of a NATURAL/USING join
// column: still addressable by qualified name or explicit qualified
// wildcard, but left out of an unqualified wildcard expansion and out of
// unqualified-name ambiguity resolution, so each shared column appears
// exactly once.
type Column struct {
	Table  string
	Name   string
	Type   value.Type
	Hidden bool
}

// Set is an ordered list of visible columns, addressable by position. The
// position assigned here must match the position a RowView will use at
// evaluation time.
type Set struct {
	cols []Column
}

// New returns an empty Set.
func New() *Set { return &Set{} }

// Add appends a column and returns its index.
func (s *Set) Add(table, name string, t value.Type) int {
	s.cols = append(s.cols, Column{Table: table, Name: name, Type: t})
	return len(s.cols) - 1
}

// AddColumn appends a copy of an existing Column (preserving Hidden) and
// returns its index, used when combining two Sets into a join's column
// list.
func (s *Set) AddColumn(c Column) int {
	s.cols = append(s.cols, c)
	return len(s.cols) - 1
}

// HideColumn marks the column at index as hidden from unqualified wildcard
// expansion and unqualified-name resolution, the NATURAL/USING rule that
// excludes a join's right-side duplicate columns.
func (s *Set) HideColumn(index int) {
	s.cols[index].Hidden = true
}

// Columns returns the visible columns in order.
func (s *Set) Columns() []Column { return s.cols }

// Len reports how many columns are visible.
func (s *Set) Len() int { return len(s.cols) }

// Resolve looks up a column reference: a qualified reference must match
// exactly one column with that table/alias and name; an unqualified
// reference must match exactly one column by name across every visible
// table, failing with "no column" (zero matches) or "ambiguous name" (two
// or more).
func (s *Set) Resolve(table, name string) (expr.ResolvedColumn, error) {
	if table != "" {
		for i, c := range s.cols {
			if c.Table == table && c.Name == name {
				return expr.ResolvedColumn{Table: table, Name: name, Index: i}, nil
			}
		}
		return expr.ResolvedColumn{}, &dberr.SchemaError{Kind: dberr.ColumnNotFound, Subject: table + "." + name}
	}

	matchIdx := -1
	matchCount := 0
	for i, c := range s.cols {
		if c.Name == name && !c.Hidden {
			matchCount++
			matchIdx = i
		}
	}
	switch matchCount {
	case 0:
		return expr.ResolvedColumn{}, &dberr.SchemaError{Kind: dberr.ColumnNotFound, Subject: name}
	case 1:
		return expr.ResolvedColumn{Table: s.cols[matchIdx].Table, Name: name, Index: matchIdx}, nil
	default:
		return expr.ResolvedColumn{}, &dberr.SchemaError{Kind: dberr.AmbiguousColumn, Subject: name}
	}
}

// ResolveExpr lowers an unresolved ast.Expr into internal/expr's resolved
// tree against this Set.
func (s *Set) ResolveExpr(e ast.Expr) (expr.Node, error) {
	switch n := e.(type) {
	case ast.Literal:
		return expr.Lit{Value: n.Value}, nil
	case ast.ColumnRef:
		col, err := s.Resolve(n.Table, n.Column)
		if err != nil {
			return nil, err
		}
		return expr.Ident{Column: col}, nil
	case ast.Not:
		operand, err := s.ResolveExpr(n.Operand)
		if err != nil {
			return nil, err
		}
		return expr.Not{Operand: operand}, nil
	case ast.BinaryOp:
		left, err := s.ResolveExpr(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := s.ResolveExpr(n.Right)
		if err != nil {
			return nil, err
		}
		return resolveBinaryOp(n.Op, left, right)
	default:
		return nil, fmt.Errorf("colset: internal: unknown expression node %T", e)
	}
}

func resolveBinaryOp(op ast.BinOp, left, right expr.Node) (expr.Node, error) {
	switch op {
	case ast.OpAnd:
		return expr.BoolExpr{Op: expr.And, Left: left, Right: right}, nil
	case ast.OpOr:
		return expr.BoolExpr{Op: expr.Or, Left: left, Right: right}, nil
	case ast.OpEq:
		return expr.CompareExpr{Op: value.OpEq, Left: left, Right: right}, nil
	case ast.OpNotEq:
		return expr.CompareExpr{Op: value.OpNotEq, Left: left, Right: right}, nil
	case ast.OpLt:
		return expr.CompareExpr{Op: value.OpLt, Left: left, Right: right}, nil
	case ast.OpGt:
		return expr.CompareExpr{Op: value.OpGt, Left: left, Right: right}, nil
	case ast.OpLtEq:
		return expr.CompareExpr{Op: value.OpLtEq, Left: left, Right: right}, nil
	case ast.OpGtEq:
		return expr.CompareExpr{Op: value.OpGtEq, Left: left, Right: right}, nil
	case ast.OpAdd:
		return expr.MathExpr{Op: value.OpAdd, Left: left, Right: right}, nil
	case ast.OpSub:
		return expr.MathExpr{Op: value.OpSub, Left: left, Right: right}, nil
	case ast.OpMul:
		return expr.MathExpr{Op: value.OpMul, Left: left, Right: right}, nil
	case ast.OpDiv:
		return expr.MathExpr{Op: value.OpDiv, Left: left, Right: right}, nil
	case ast.OpMod:
		return expr.MathExpr{Op: value.OpMod, Left: left, Right: right}, nil
	default:
		return nil, fmt.Errorf("colset: internal: unknown binary op %v", op)
	}
}

// FromColumns builds a single-table Set from a table name/alias and its
// column names/types in schema order — used to resolve CHECK constraints
// and column defaults at CREATE TABLE time.
func FromColumns(table string, names []string, types []value.Type) *Set {
	s := New()
	for i, n := range names {
		s.Add(table, n, types[i])
	}
	return s
}

// Package expr implements sqlkv's resolved expression tree and evaluator:
// Value/Identifier/BinaryOp nodes evaluated against a RowView, with SQL
// three-valued comparison, null propagation, and string/integer coercion.
// The evaluator is pure and deterministic; it never mutates the row view
// it reads from.
//
// Many different row shapes (a single table's row, a joined row, an empty
// row for default-expression evaluation) all implement the same
// one-method RowView interface, so the evaluator never needs to know which
// kind of row it's looking at.
package expr

import (
	"fmt"

	"sqlkv/internal/value"
)

// ResolvedColumn identifies a column's position within whatever RowView an
// expression is evaluated against. Table is carried only for diagnostics.
type ResolvedColumn struct {
	Table string
	Name  string
	Index int
}

// RowView exposes a single row's values by resolved column position.
type RowView interface {
	Get(col ResolvedColumn) (value.Value, error)
}

// Node is a resolved expression tree node.
type Node interface {
	Eval(row RowView) (value.Value, error)
}

// Lit is a literal value node.
type Lit struct {
	Value value.Value
}

func (n Lit) Eval(RowView) (value.Value, error) { return n.Value, nil }

// Ident reads a single resolved column from the row view.
type Ident struct {
	Column ResolvedColumn
}

func (n Ident) Eval(row RowView) (value.Value, error) {
	return row.Get(n.Column)
}

// BoolOp is a Kleene boolean connective.
type BoolOp int

const (
	And BoolOp = iota
	Or
)

// BoolExpr is an AND/OR node, evaluated with three-valued Kleene logic.
type BoolExpr struct {
	Op          BoolOp
	Left, Right Node
}

func (n BoolExpr) Eval(row RowView) (value.Value, error) {
	l, err := n.Left.Eval(row)
	if err != nil {
		return value.Null, err
	}
	r, err := n.Right.Eval(row)
	if err != nil {
		return value.Null, err
	}
	lt, rt := value.ToTruth(l), value.ToTruth(r)
	var t value.Truth
	switch n.Op {
	case And:
		t = lt.And(rt)
	case Or:
		t = lt.Or(rt)
	default:
		return value.Null, fmt.Errorf("expr: internal: unknown bool op %v", n.Op)
	}
	return truthToValue(t), nil
}

// Not negates its operand's three-valued truth.
type Not struct {
	Operand Node
}

func (n Not) Eval(row RowView) (value.Value, error) {
	v, err := n.Operand.Eval(row)
	if err != nil {
		return value.Null, err
	}
	return truthToValue(value.ToTruth(v).Not()), nil
}

// CompareExpr is a comparison node (=, <>, <, >, <=, >=).
type CompareExpr struct {
	Op          value.CompareOp
	Left, Right Node
}

func (n CompareExpr) Eval(row RowView) (value.Value, error) {
	l, err := n.Left.Eval(row)
	if err != nil {
		return value.Null, err
	}
	r, err := n.Right.Eval(row)
	if err != nil {
		return value.Null, err
	}
	return truthToValue(value.Compare(l, n.Op, r)), nil
}

// MathExpr is an arithmetic node (+, -, *, /, %).
type MathExpr struct {
	Op          value.MathOp
	Left, Right Node
}

func (n MathExpr) Eval(row RowView) (value.Value, error) {
	l, err := n.Left.Eval(row)
	if err != nil {
		return value.Null, err
	}
	r, err := n.Right.Eval(row)
	if err != nil {
		return value.Null, err
	}
	return value.Arith(l, n.Op, r), nil
}

// truthToValue represents a Truth as a Value so comparisons and boolean
// connectives compose: True/False become Integer(1)/Integer(0), Unknown
// becomes Null. EvalTruth below is the inverse used at WHERE/ON/CHECK
// boundaries.
func truthToValue(t value.Truth) value.Value {
	switch t {
	case value.True:
		return value.Integer(1)
	case value.False:
		return value.Integer(0)
	default:
		return value.Null
	}
}

// EvalTruth evaluates n and reduces the result straight to a Truth value,
// for use in boolean contexts (WHERE, JOIN ON, CHECK) where Unknown must be
// treated as false.
func EvalTruth(n Node, row RowView) (value.Truth, error) {
	v, err := n.Eval(row)
	if err != nil {
		return value.Unknown, err
	}
	return value.ToTruth(v), nil
}

// EmptyRow is a RowView with no columns, used to evaluate CREATE TABLE
// column defaults: they must be constant expressions, so any Ident lookup
// against EmptyRow fails.
type EmptyRow struct{}

func (EmptyRow) Get(col ResolvedColumn) (value.Value, error) {
	return value.Null, fmt.Errorf("expr: identifier %q is not constant", col.Name)
}

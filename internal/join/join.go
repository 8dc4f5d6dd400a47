// Package join builds and evaluates sqlkv's FROM-clause join tree: a
// binary tree of table handlers combined by nested-loop Inner/Left/Right
// joins with NATURAL, USING, ON, or no constraint at all.
//
// NATURAL synthesizes an AND-chain of equalities over every column name
// common to both sides; USING builds the same AND-chain restricted to the
// named columns. Rows eagerly materializes the joined relation rather than
// streaming it — at sqlkv's embedded scale, a materializing nested loop is
// simpler to read than a resumable lazy iterator while preserving the same
// Inner/Left/Right semantics.
package join

import (
	"sqlkv/internal/ast"
	"sqlkv/internal/colset"
	"sqlkv/internal/dberr"
	"sqlkv/internal/expr"
	"sqlkv/internal/table"
	"sqlkv/internal/value"
)

// Tree is a built, column-resolved FROM-clause join tree.
type Tree struct {
	leaf *table.Handler

	left, right *Tree
	kind        ast.JoinKind
	on          expr.Node // nil only for a cross join

	columns *colset.Set
	width   int
}

// Columns is the combined, resolved column set this tree's rows expose.
func (t *Tree) Columns() *colset.Set { return t.columns }

// Build constructs a Tree from a FROM-clause item, opening leaf tables
// through opener. names tracks every alias/table name seen so far across
// the whole FROM clause, to reject duplicates.
func Build(item ast.FromItem, opener table.Opener, names map[string]bool) (*Tree, error) {
	switch n := item.(type) {
	case ast.TableRef:
		h, err := opener(n.Table)
		if err != nil {
			return nil, err
		}
		if n.Alias != "" {
			h = h.WithAlias(n.Alias)
		}
		visible := h.AliasOrName()
		if names[visible] {
			return nil, &dberr.SchemaError{Kind: dberr.DuplicateTableAlias, Subject: visible}
		}
		names[visible] = true
		cols := h.ColumnSet()
		return &Tree{leaf: h, columns: cols, width: cols.Len()}, nil

	case ast.Join:
		left, err := Build(n.Left, opener, names)
		if err != nil {
			return nil, err
		}
		right, err := Build(n.Right, opener, names)
		if err != nil {
			return nil, err
		}
		combined := combineColumns(left.columns, right.columns)

		on, err := synthesizeConstraint(n, left, right, combined)
		if err != nil {
			return nil, err
		}

		switch {
		case n.Natural:
			hideRightDuplicates(commonColumnNames(left.columns, right.columns), left.columns, combined)
		case len(n.Using) > 0:
			hideRightDuplicates(n.Using, left.columns, combined)
		}

		return &Tree{
			left: left, right: right, kind: n.Kind, on: on,
			columns: combined, width: left.width + right.width,
		}, nil

	default:
		return nil, &dberr.SchemaError{Kind: dberr.NoTablesSpecified}
	}
}

func combineColumns(left, right *colset.Set) *colset.Set {
	s := colset.New()
	for _, c := range left.Columns() {
		s.AddColumn(c)
	}
	for _, c := range right.Columns() {
		s.AddColumn(c)
	}
	return s
}

// commonColumnNames returns every column name appearing in both left and
// right, used to synthesize a NATURAL join's equality constraint and to
// decide which right-side columns to hide from unqualified expansion.
// Hidden columns (already-collapsed duplicates from an earlier NATURAL/
// USING join further down a left-deep join tree) are skipped on both
// sides, so a three-way NATURAL JOIN chain matches each shared name
// exactly once instead of resurrecting an already-hidden copy.
func commonColumnNames(left, right *colset.Set) []string {
	rightByName := make(map[string]bool)
	for _, c := range right.Columns() {
		if !c.Hidden {
			rightByName[c.Name] = true
		}
	}
	var common []string
	for _, c := range left.Columns() {
		if !c.Hidden && rightByName[c.Name] {
			common = append(common, c.Name)
		}
	}
	return common
}

// hideRightDuplicates marks, within combined, the right-side occurrence of
// each name in names as Hidden, excluding a NATURAL/USING join's right-side
// duplicate columns from unqualified wildcard expansion. leftLen is the
// offset at which right's columns begin within combined.
func hideRightDuplicates(names []string, left *colset.Set, combined *colset.Set) {
	leftLen := left.Len()
	cols := combined.Columns()
	for _, name := range names {
		for i := leftLen; i < len(cols); i++ {
			if cols[i].Name == name && !cols[i].Hidden {
				combined.HideColumn(i)
				break
			}
		}
	}
}

func synthesizeConstraint(n ast.Join, left, right *Tree, combined *colset.Set) (expr.Node, error) {
	switch {
	case n.Natural:
		return naturalConstraint(left.columns, right.columns, combined)
	case len(n.Using) > 0:
		return usingConstraint(n.Using, left.columns, right.columns, combined)
	case n.On != nil:
		return combined.ResolveExpr(n.On)
	default:
		if n.Kind != ast.InnerJoin {
			return nil, &dberr.SchemaError{Kind: dberr.NoColumnsOnJoin}
		}
		return nil, nil
	}
}

func naturalConstraint(left, right *colset.Set, combined *colset.Set) (expr.Node, error) {
	common := commonColumnNames(left, right)
	if len(common) == 0 {
		return expr.Lit{Value: value.Integer(1)}, nil
	}
	return andEqualChain(common, combined)
}

func usingConstraint(cols []string, left, right *colset.Set, combined *colset.Set) (expr.Node, error) {
	for _, name := range cols {
		if _, err := left.Resolve("", name); err != nil {
			return nil, err
		}
		if _, err := right.Resolve("", name); err != nil {
			return nil, err
		}
	}
	return andEqualChain(cols, combined)
}

// andEqualChain builds left.col = right.col AND left.col2 = right.col2...
// for each unqualified name, resolved against the full combined set so it
// picks out exactly one column from each side.
func andEqualChain(names []string, combined *colset.Set) (expr.Node, error) {
	var chain expr.Node = expr.Lit{Value: value.Integer(1)}
	for _, name := range names {
		matches := columnsNamed(combined, name)
		if len(matches) != 2 {
			return nil, &dberr.SchemaError{Kind: dberr.ColumnNotFound, Subject: name}
		}
		eq := expr.CompareExpr{
			Op:   value.OpEq,
			Left: expr.Ident{Column: matches[0]}, Right: expr.Ident{Column: matches[1]},
		}
		chain = expr.BoolExpr{Op: expr.And, Left: chain, Right: eq}
	}
	return chain, nil
}

// columnsNamed finds every currently-visible column named name. Already-
// hidden duplicates from an earlier join in a left-deep chain are skipped,
// so a later NATURAL/USING join still finds exactly the two live columns
// it means to equate.
func columnsNamed(s *colset.Set, name string) []expr.ResolvedColumn {
	var out []expr.ResolvedColumn
	for i, c := range s.Columns() {
		if c.Name == name && !c.Hidden {
			out = append(out, expr.ResolvedColumn{Table: c.Table, Name: name, Index: i})
		}
	}
	return out
}

// combinedRowView evaluates a resolved column against a flat []value.Value
// whose columns are ordered as Tree.Columns() enumerates them.
type combinedRowView []value.Value

func (r combinedRowView) Get(col expr.ResolvedColumn) (value.Value, error) {
	return r[col.Index], nil
}

func nullRow(width int) []value.Value {
	out := make([]value.Value, width)
	for i := range out {
		out[i] = value.Null
	}
	return out
}

// Rows evaluates the join tree, returning every combined row: Inner keeps
// only matches, Left/Right null-extend the unmatched side.
func (t *Tree) Rows() ([][]value.Value, error) {
	if t.leaf != nil {
		var rows [][]value.Value
		err := t.leaf.Iterate(func(r table.Row) (bool, error) {
			rows = append(rows, r.Values)
			return true, nil
		})
		return rows, err
	}

	leftRows, err := t.left.Rows()
	if err != nil {
		return nil, err
	}
	rightRows, err := t.right.Rows()
	if err != nil {
		return nil, err
	}

	switch t.kind {
	case ast.LeftJoin:
		return t.nestedLoopOuter(leftRows, rightRows, false)
	case ast.RightJoin:
		return t.nestedLoopOuter(rightRows, leftRows, true)
	default:
		return t.nestedLoopInner(leftRows, rightRows)
	}
}

func (t *Tree) matches(combined []value.Value) (bool, error) {
	if t.on == nil {
		return true, nil
	}
	truth, err := expr.EvalTruth(t.on, combinedRowView(combined))
	if err != nil {
		return false, err
	}
	return truth == value.True, nil
}

func (t *Tree) nestedLoopInner(leftRows, rightRows [][]value.Value) ([][]value.Value, error) {
	var out [][]value.Value
	for _, l := range leftRows {
		for _, r := range rightRows {
			combined := concat(l, r)
			ok, err := t.matches(combined)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, combined)
			}
		}
	}
	return out, nil
}

// nestedLoopOuter implements LEFT (swapped=false) and RIGHT (swapped=true)
// joins: outerRows is the preserved side, innerRows the null-extended one.
// When swapped, the outer side is the right table and the inner side the
// left, so the concatenation order is flipped back to left-then-right
// (inner values first) before matching/emitting.
func (t *Tree) nestedLoopOuter(outerRows, innerRows [][]value.Value, swapped bool) ([][]value.Value, error) {
	combine := func(o, i []value.Value) []value.Value {
		if swapped {
			return concat(i, o)
		}
		return concat(o, i)
	}
	var out [][]value.Value
	for _, o := range outerRows {
		matched := false
		for _, i := range innerRows {
			combined := combine(o, i)
			ok, err := t.matches(combined)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, combined)
				matched = true
			}
		}
		if !matched {
			innerWidth := t.width - len(o)
			out = append(out, combine(o, nullRow(innerWidth)))
		}
	}
	return out, nil
}

func concat(a, b []value.Value) []value.Value {
	out := make([]value.Value, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

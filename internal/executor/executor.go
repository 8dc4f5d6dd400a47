// Package executor dispatches a parsed internal/ast.Statement against a
// transaction, running CREATE TABLE / INSERT / SELECT / UPDATE / DELETE /
// DROP TABLE and producing an internal/relation.Relation.
//
// Each statement kind gets its own execute function. INSERT's column-list
// mapping is name-based rather than a positional subsequence match against
// schema order, since a SQL column list need not follow schema order.
package executor

import (
	"fmt"

	"sqlkv/internal/ast"
	"sqlkv/internal/catalog"
	"sqlkv/internal/colset"
	"sqlkv/internal/dberr"
	"sqlkv/internal/expr"
	"sqlkv/internal/fkregistry"
	"sqlkv/internal/join"
	"sqlkv/internal/relation"
	"sqlkv/internal/table"
	"sqlkv/internal/value"
)

// Executor runs statements against a single transaction.
type Executor struct {
	tx *table.Tx
}

// New returns an Executor bound to tx. tx's batch must already span every
// table tree the statement (and any constraint cascade it triggers) might
// touch, plus catalog.TablesTree and fkregistry.Tree.
func New(tx *table.Tx) *Executor {
	return &Executor{tx: tx}
}

func treeName(table string) string { return "t_" + table }

// TreeName returns the name of the kv tree backing a user table's rows,
// exported so internal/engine can compute a statement's batch span
// without duplicating the "t_" convention.
func TreeName(table string) string { return treeName(table) }

func (e *Executor) tablesTree() (interface {
	Get([]byte) ([]byte, bool, error)
	Put([]byte, []byte) error
	Delete([]byte) error
	Iterate(func([]byte, []byte) (bool, error)) error
	IteratePrefix([]byte, func([]byte, []byte) (bool, error)) error
}, error) {
	return e.tx.Tree(catalog.TablesTree)
}

func (e *Executor) fkTree() (interface {
	Get([]byte) ([]byte, bool, error)
	Put([]byte, []byte) error
	Delete([]byte) error
	Iterate(func([]byte, []byte) (bool, error)) error
	IteratePrefix([]byte, func([]byte, []byte) (bool, error)) error
}, error) {
	return e.tx.Tree(fkregistry.Tree)
}

func (e *Executor) loadDef(name string) (*catalog.TableDefinition, error) {
	tr, err := e.tablesTree()
	if err != nil {
		return nil, err
	}
	def, ok, err := catalog.Load(tr, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &dberr.SchemaError{Kind: dberr.TableNotFound, Subject: name}
	}
	return def, nil
}

// opener resolves a table name to a Handler bound to e's Tx, used both for
// the FROM clause and for foreign key cascades reaching other tables.
func (e *Executor) opener() table.Opener {
	var op table.Opener
	op = func(name string) (*table.Handler, error) {
		def, err := e.loadDef(name)
		if err != nil {
			return nil, err
		}
		return table.NewHandler(e.tx, op, treeName(name), name, "", def), nil
	}
	return op
}

// Execute runs one statement and returns its result relation.
func (e *Executor) Execute(stmt ast.Statement) (*relation.Relation, error) {
	switch s := stmt.(type) {
	case ast.CreateTable:
		return e.executeCreateTable(s)
	case ast.DropTable:
		return e.executeDropTable(s)
	case ast.Insert:
		return e.executeInsert(s)
	case ast.Select:
		return e.executeSelect(s)
	case ast.Update:
		return e.executeUpdate(s)
	case ast.Delete:
		return e.executeDelete(s)
	default:
		return nil, fmt.Errorf("executor: unsupported statement %T", stmt)
	}
}

func empty() *relation.Relation { return relation.New(nil) }

// --- CREATE TABLE ---

func (e *Executor) executeCreateTable(ct ast.CreateTable) (*relation.Relation, error) {
	tr, err := e.tablesTree()
	if err != nil {
		return nil, err
	}
	_, exists, err := catalog.Load(tr, ct.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		if ct.IfNotExists {
			return empty(), nil
		}
		return nil, &dberr.SchemaError{Kind: dberr.TableExists, Subject: ct.Name}
	}

	td, fks, err := catalog.BuildTableDefinition(ct)
	if err != nil {
		return nil, err
	}

	fkTree, err := e.fkTree()
	if err != nil {
		return nil, err
	}
	for _, fk := range fks {
		parent, err := e.loadDef(fk.ParentTable)
		if err != nil {
			return nil, err
		}
		parentIdxs := make([]int, len(fk.ParentColumns))
		for i, c := range fk.ParentColumns {
			idx, err := parent.ColumnIndex(c)
			if err != nil {
				return nil, err
			}
			parentIdxs[i] = idx
		}
		if !hasUniqueOver(parent, parentIdxs) {
			return nil, &dberr.ConstraintError{Kind: dberr.ForeignKeyNotUnique, Name: fk.Name}
		}
		for i, c := range fk.ChildColumns {
			childIdx, err := td.ColumnIndex(c)
			if err != nil {
				return nil, err
			}
			if td.Columns.Type(childIdx) != parent.Columns.Type(parentIdxs[i]) {
				return nil, &dberr.ConstraintError{Kind: dberr.ForeignKeyTypeMismatch, Name: fk.Name}
			}
		}
		if err := fkregistry.Add(fkTree, fkregistry.Record{
			Name: fk.Name, Table: ct.Name, Columns: fk.ChildColumns,
			ReferredTable: fk.ParentTable, ReferredColumns: fk.ParentColumns,
			OnDelete: fk.OnDelete, OnUpdate: fk.OnUpdate,
		}); err != nil {
			return nil, err
		}
	}

	if err := catalog.Save(tr, td); err != nil {
		return nil, err
	}
	if _, err := e.tx.Tree(treeName(ct.Name)); err != nil {
		return nil, err
	}
	return empty(), nil
}

// hasUniqueOver reports whether cols (any order) is exactly some declared
// UNIQUE or the PRIMARY KEY of def, enforcing that a foreign key may only
// reference a unique column set.
func hasUniqueOver(def *catalog.TableDefinition, cols []int) bool {
	target := catalog.SortedColumnSet(cols)
	matches := func(other []int) bool {
		o := catalog.SortedColumnSet(other)
		if len(o) != len(target) {
			return false
		}
		for i := range o {
			if o[i] != target[i] {
				return false
			}
		}
		return true
	}
	if def.PrimaryKey != nil && matches(def.PrimaryKey.Columns) {
		return true
	}
	for _, u := range def.Uniques {
		if matches(u.Columns) {
			return true
		}
	}
	return false
}

// --- DROP TABLE ---

func (e *Executor) executeDropTable(dt ast.DropTable) (*relation.Relation, error) {
	tr, err := e.tablesTree()
	if err != nil {
		return nil, err
	}
	_, exists, err := catalog.Load(tr, dt.Name)
	if err != nil {
		return nil, err
	}
	if !exists {
		if dt.IfExists {
			return empty(), nil
		}
		return nil, &dberr.SchemaError{Kind: dberr.TableNotFound, Subject: dt.Name}
	}

	fkTree, err := e.fkTree()
	if err != nil {
		return nil, err
	}
	referenced, fkName, err := fkregistry.ReferencesTable(fkTree, dt.Name)
	if err != nil {
		return nil, err
	}
	if referenced {
		return nil, &dberr.ConstraintError{Kind: dberr.ForeignKeyDependencyOnDrop, Name: fkName}
	}
	if err := fkregistry.RemoveOwnedBy(fkTree, dt.Name); err != nil {
		return nil, err
	}

	rowTree, err := e.tx.Tree(treeName(dt.Name))
	if err != nil {
		return nil, err
	}
	if err := clearTree(rowTree); err != nil {
		return nil, err
	}

	if err := catalog.Remove(tr, dt.Name); err != nil {
		return nil, err
	}
	return empty(), nil
}

func clearTree(tr interface {
	Iterate(func([]byte, []byte) (bool, error)) error
	Delete([]byte) error
}) error {
	var keys [][]byte
	err := tr.Iterate(func(k, _ []byte) (bool, error) {
		keys = append(keys, append([]byte(nil), k...))
		return true, nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := tr.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// --- INSERT ---

func (e *Executor) executeInsert(ins ast.Insert) (*relation.Relation, error) {
	def, err := e.loadDef(ins.Table)
	if err != nil {
		return nil, err
	}
	handler := table.NewHandler(e.tx, e.opener(), treeName(ins.Table), ins.Table, "", def)

	var rows [][]value.Value
	if ins.Select != nil {
		rel, err := e.executeSelect(*ins.Select)
		if err != nil {
			return nil, err
		}
		rows = rel.Rows()
	} else {
		empty := colset.New()
		for _, exprRow := range ins.Rows {
			row := make([]value.Value, len(exprRow))
			for i, e := range exprRow {
				node, err := empty.ResolveExpr(e)
				if err != nil {
					return nil, err
				}
				v, err := node.Eval(expr.EmptyRow{})
				if err != nil {
					return nil, err
				}
				row[i] = v
			}
			rows = append(rows, row)
		}
	}

	names := def.Columns.Names()
	targetCols := ins.Columns
	if len(targetCols) == 0 {
		targetCols = names
	}
	if err := validateColumnList(def, targetCols); err != nil {
		return nil, err
	}

	for _, row := range rows {
		if len(row) != len(targetCols) {
			return nil, &dberr.ValueError{Expected: len(targetCols), Actual: len(row)}
		}
		byName := make(map[string]value.Value, len(targetCols))
		for i, c := range targetCols {
			byName[c] = row[i]
		}
		full := make([]value.Value, len(names))
		for i, n := range names {
			if v, ok := byName[n]; ok {
				full[i] = v
			} else if v, ok := def.Defaults[i]; ok {
				full[i] = v
			} else {
				full[i] = value.Null
			}
		}
		if _, err := handler.Insert(full); err != nil {
			return nil, err
		}
	}
	return empty(), nil
}

func validateColumnList(def *catalog.TableDefinition, cols []string) error {
	for _, c := range cols {
		if _, err := def.ColumnIndex(c); err != nil {
			return err
		}
	}
	return nil
}

// --- SELECT ---

// flatRowView adapts a flat []value.Value, laid out per a colset.Set's
// column order, to expr.RowView.
type flatRowView []value.Value

func (r flatRowView) Get(col expr.ResolvedColumn) (value.Value, error) {
	if col.Index < 0 || col.Index >= len(r) {
		return value.Null, fmt.Errorf("executor: internal: column index %d out of range", col.Index)
	}
	return r[col.Index], nil
}

func (e *Executor) executeSelect(sel ast.Select) (*relation.Relation, error) {
	var cols *colset.Set
	var rows [][]value.Value

	if sel.From == nil {
		cols = colset.New()
		rows = [][]value.Value{{}}
	} else {
		tree, err := join.Build(sel.From, e.opener(), make(map[string]bool))
		if err != nil {
			return nil, err
		}
		cols = tree.Columns()
		rows, err = tree.Rows()
		if err != nil {
			return nil, err
		}
	}

	var where expr.Node
	if sel.Where != nil {
		node, err := cols.ResolveExpr(sel.Where)
		if err != nil {
			return nil, err
		}
		where = node
	}

	columnNames, projections, err := resolveProjections(sel.Projections, cols)
	if err != nil {
		return nil, err
	}

	result := relation.New(columnNames)
	for _, row := range rows {
		view := flatRowView(row)
		if where != nil {
			truth, err := expr.EvalTruth(where, view)
			if err != nil {
				return nil, err
			}
			if truth != value.True {
				continue
			}
		}
		out := make([]value.Value, len(projections))
		for i, p := range projections {
			v, err := p.Eval(view)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		if err := result.AddRow(out); err != nil {
			return nil, err
		}
	}

	if len(sel.OrderBy) > 0 {
		if err := result.Sort(sel.OrderBy); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func resolveProjections(projections []ast.Projection, cols *colset.Set) ([]string, []expr.Node, error) {
	var names []string
	var nodes []expr.Node
	for _, p := range projections {
		if p.Wildcard {
			for i, c := range cols.Columns() {
				if p.WildcardTable != "" {
					if c.Table != p.WildcardTable {
						continue
					}
				} else if c.Hidden {
					// Bare SELECT * collapses a NATURAL/USING join's shared
					// column to its one visible copy; a qualified wildcard
					// (table.*) still sees it.
					continue
				}
				names = append(names, c.Name)
				nodes = append(nodes, expr.Ident{Column: expr.ResolvedColumn{Table: c.Table, Name: c.Name, Index: i}})
			}
			continue
		}
		node, err := cols.ResolveExpr(p.Expr)
		if err != nil {
			return nil, nil, err
		}
		name := p.Alias
		if name == "" {
			name = exprText(p.Expr)
		}
		names = append(names, name)
		nodes = append(nodes, node)
	}
	return names, nodes, nil
}

// exprText renders an unresolved expression as its default (unaliased)
// projection column name, the way a literal or arithmetic expression in a
// SELECT list is named when no AS clause gives it one.
func exprText(e ast.Expr) string {
	switch n := e.(type) {
	case ast.Literal:
		return n.Value.String()
	case ast.ColumnRef:
		if n.Table != "" {
			return n.Table + "." + n.Column
		}
		return n.Column
	case ast.Not:
		return "NOT " + exprText(n.Operand)
	case ast.BinaryOp:
		return exprText(n.Left) + " " + binOpText(n.Op) + " " + exprText(n.Right)
	default:
		return "?column?"
	}
}

func binOpText(op ast.BinOp) string {
	switch op {
	case ast.OpAnd:
		return "AND"
	case ast.OpOr:
		return "OR"
	case ast.OpEq:
		return "="
	case ast.OpNotEq:
		return "<>"
	case ast.OpLt:
		return "<"
	case ast.OpGt:
		return ">"
	case ast.OpLtEq:
		return "<="
	case ast.OpGtEq:
		return ">="
	case ast.OpAdd:
		return "+"
	case ast.OpSub:
		return "-"
	case ast.OpMul:
		return "*"
	case ast.OpDiv:
		return "/"
	case ast.OpMod:
		return "%"
	default:
		return "?"
	}
}

// --- UPDATE ---

func (e *Executor) executeUpdate(upd ast.Update) (*relation.Relation, error) {
	def, err := e.loadDef(upd.Table)
	if err != nil {
		return nil, err
	}
	handler := table.NewHandler(e.tx, e.opener(), treeName(upd.Table), upd.Table, "", def)
	cols := handler.ColumnSet()

	type assignment struct {
		index int
		value expr.Node
	}
	assignments := make([]assignment, len(upd.Assignments))
	for i, a := range upd.Assignments {
		idx, err := def.ColumnIndex(a.Column)
		if err != nil {
			return nil, err
		}
		node, err := cols.ResolveExpr(a.Value)
		if err != nil {
			return nil, err
		}
		assignments[i] = assignment{index: idx, value: node}
	}

	var where expr.Node
	if upd.Where != nil {
		where, err = cols.ResolveExpr(upd.Where)
		if err != nil {
			return nil, err
		}
	}

	type pending struct {
		key     []byte
		oldRow  []value.Value
		newRow  []value.Value
	}
	var targets []pending

	err = handler.Iterate(func(r table.Row) (bool, error) {
		if where != nil {
			truth, err := expr.EvalTruth(where, flatRowView(r.Values))
			if err != nil {
				return false, err
			}
			if truth != value.True {
				return true, nil
			}
		}
		newRow := append([]value.Value(nil), r.Values...)
		for _, a := range assignments {
			v, err := a.value.Eval(flatRowView(r.Values))
			if err != nil {
				return false, err
			}
			newRow[a.index] = v
		}
		targets = append(targets, pending{key: r.Key, oldRow: r.Values, newRow: newRow})
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	for _, t := range targets {
		if err := handler.Update(t.key, t.oldRow, t.newRow); err != nil {
			return nil, err
		}
	}
	return empty(), nil
}

// --- DELETE ---

func (e *Executor) executeDelete(del ast.Delete) (*relation.Relation, error) {
	def, err := e.loadDef(del.Table)
	if err != nil {
		return nil, err
	}
	handler := table.NewHandler(e.tx, e.opener(), treeName(del.Table), del.Table, "", def)
	cols := handler.ColumnSet()

	var where expr.Node
	if del.Where != nil {
		where, err = cols.ResolveExpr(del.Where)
		if err != nil {
			return nil, err
		}
	}

	var targets []table.Row
	err = handler.Iterate(func(r table.Row) (bool, error) {
		if where != nil {
			truth, err := expr.EvalTruth(where, flatRowView(r.Values))
			if err != nil {
				return false, err
			}
			if truth != value.True {
				return true, nil
			}
		}
		targets = append(targets, r)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range targets {
		if err := handler.Delete(r.Key, r.Values); err != nil {
			return nil, err
		}
	}
	return empty(), nil
}

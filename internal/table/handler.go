// Package table implements sqlkv's table handler: per-row constraint
// checking and the foreign key cascade engine. Each insert and update
// validates in CHECK, then NOT NULL, then UNIQUE, then FOREIGN KEY order,
// and row keys are monotonically increasing u64s derived from the tree's
// current last key. Foreign keys are split into two concerns: checking a
// table's own outgoing references on write, and cascading DELETE/UPDATE
// actions out to the tables that reference it.
package table

import (
	"encoding/binary"
	"fmt"

	"sqlkv/internal/ast"
	"sqlkv/internal/catalog"
	"sqlkv/internal/colset"
	"sqlkv/internal/dberr"
	"sqlkv/internal/expr"
	"sqlkv/internal/fkregistry"
	"sqlkv/internal/kv"
	"sqlkv/internal/value"
)

// Opener resolves a table name to a Handler bound to the same Tx, so a
// foreign key cascade can reach tables other than the one it started in.
type Opener func(table string) (*Handler, error)

// Handler is one table, bound to a transaction and an alias.
type Handler struct {
	treeName string
	name     string
	alias    string
	def      *catalog.TableDefinition
	tx       *Tx
	opener   Opener
}

// NewHandler constructs a Handler for table name/alias, backed by treeName
// within tx, using opener to reach other tables during constraint checks.
func NewHandler(tx *Tx, opener Opener, treeName, name, alias string, def *catalog.TableDefinition) *Handler {
	return &Handler{treeName: treeName, name: name, alias: alias, def: def, tx: tx, opener: opener}
}

// Name is the table's declared name.
func (h *Handler) Name() string { return h.name }

// WithAlias returns a shallow copy of h under a FROM-clause alias, used
// when the same statement needs a table visible under a different name
// than its own.
func (h *Handler) WithAlias(alias string) *Handler {
	cp := *h
	cp.alias = alias
	return &cp
}

// ColumnSet builds the colset.Set this handler's columns resolve against,
// under its alias (or its own name if unaliased).
func (h *Handler) ColumnSet() *colset.Set {
	return h.def.ColumnSet(h.AliasOrName())
}

// AliasOrName is the name a column reference should resolve against: the
// alias if one was given, else the table's own name.
func (h *Handler) AliasOrName() string {
	if h.alias != "" {
		return h.alias
	}
	return h.name
}

// Definition returns the table's schema and constraint metadata.
func (h *Handler) Definition() *catalog.TableDefinition { return h.def }

func (h *Handler) tree() (kv.Tree, error) { return h.tx.Tree(h.treeName) }

func (h *Handler) fkTree() (kv.Tree, error) { return h.tx.Tree(fkregistry.Tree) }

// valuesRowView adapts a plain candidate row to expr.RowView for CHECK
// constraint evaluation.
type valuesRowView []value.Value

func (r valuesRowView) Get(col expr.ResolvedColumn) (value.Value, error) {
	if col.Index < 0 || col.Index >= len(r) {
		return value.Null, fmt.Errorf("table: internal: column index %d out of range", col.Index)
	}
	return r[col.Index], nil
}

// Get returns one column's value from an already-decoded row.
func (h *Handler) Get(row []value.Value, col expr.ResolvedColumn) (value.Value, error) {
	return valuesRowView(row).Get(col)
}

// Row is one decoded row together with its storage key.
type Row struct {
	Key    []byte
	Values []value.Value
}

// Iterate visits every row in table order. fn returning false stops
// iteration early.
func (h *Handler) Iterate(fn func(Row) (bool, error)) error {
	tr, err := h.tree()
	if err != nil {
		return err
	}
	return tr.Iterate(func(k, v []byte) (bool, error) {
		values, err := h.def.Columns.Decode(v)
		if err != nil {
			return false, err
		}
		return fn(Row{Key: append([]byte(nil), k...), Values: values})
	})
}

func encodeKey(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func (h *Handler) nextKey() ([]byte, error) {
	tr, err := h.tree()
	if err != nil {
		return nil, err
	}
	var max uint64
	var any bool
	err = tr.Iterate(func(k, _ []byte) (bool, error) {
		if len(k) == 8 {
			n := binary.BigEndian.Uint64(k)
			if !any || n > max {
				max, any = n, true
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !any {
		return encodeKey(0), nil
	}
	return encodeKey(max + 1), nil
}

func columnIndices(def *catalog.TableDefinition, names []string) ([]int, error) {
	idxs := make([]int, len(names))
	for i, n := range names {
		idx, err := def.ColumnIndex(n)
		if err != nil {
			return nil, err
		}
		idxs[i] = idx
	}
	return idxs, nil
}

func valuesEqual(a, b value.Value) bool {
	if a.IsNull() || b.IsNull() {
		return false
	}
	return value.Compare(a, value.OpEq, b) == value.True
}

// Insert validates values against every constraint and, if they pass,
// appends a new row under a fresh monotonic key.
func (h *Handler) Insert(values []value.Value) ([]byte, error) {
	if err := h.validateRow(values, nil); err != nil {
		return nil, err
	}
	key, err := h.nextKey()
	if err != nil {
		return nil, err
	}
	data, err := h.def.Columns.Encode(values)
	if err != nil {
		return nil, err
	}
	tr, err := h.tree()
	if err != nil {
		return nil, err
	}
	if err := tr.Put(key, data); err != nil {
		return nil, fmt.Errorf("table: insert into %q: %w", h.name, err)
	}
	return key, nil
}

// validateRow runs the CHECK, NOT NULL, UNIQUE and outgoing-FOREIGN-KEY
// phases, in that order. excludeKey, if non-nil, is the key of the row
// being updated — it is excluded from the UNIQUE scan so a row does not
// conflict with its own prior values.
func (h *Handler) validateRow(values []value.Value, excludeKey []byte) error {
	for _, c := range h.def.Checks {
		t, err := expr.EvalTruth(c.Expr, valuesRowView(values))
		if err != nil {
			return err
		}
		if t != value.True {
			return &dberr.ConstraintError{Kind: dberr.CheckFailed, Name: c.Name}
		}
	}

	for idx := range h.def.NotNulls {
		if values[idx].IsNull() {
			return &dberr.ConstraintError{Kind: dberr.NotNullFailed, Name: fmt.Sprintf("%s.%s", h.name, h.def.Columns.Names()[idx])}
		}
	}

	if err := h.checkUniques(values, excludeKey); err != nil {
		return err
	}

	return h.checkOutgoingForeignKeys(values)
}

func (h *Handler) checkUniques(values []value.Value, excludeKey []byte) error {
	if len(h.def.Uniques) == 0 {
		return nil
	}
	tr, err := h.tree()
	if err != nil {
		return err
	}
	var violated *dberr.ConstraintError
	err = tr.Iterate(func(k, v []byte) (bool, error) {
		if excludeKey != nil && string(k) == string(excludeKey) {
			return true, nil
		}
		other, err := h.def.Columns.Decode(v)
		if err != nil {
			return false, err
		}
		for _, u := range h.def.Uniques {
			identical := true
			for _, idx := range u.Columns {
				if !valuesEqual(values[idx], other[idx]) {
					identical = false
					break
				}
			}
			if identical {
				violated = &dberr.ConstraintError{Kind: dberr.UniqueFailed, Name: u.Name}
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if violated != nil {
		return violated
	}
	return nil
}

func (h *Handler) checkOutgoingForeignKeys(values []value.Value) error {
	fkTree, err := h.fkTree()
	if err != nil {
		return err
	}
	recs, err := fkregistry.ChildConstraints(fkTree, h.name)
	if err != nil {
		return err
	}
	for _, r := range recs {
		childIdxs, err := columnIndices(h.def, r.Columns)
		if err != nil {
			return err
		}
		anyNull := false
		for _, idx := range childIdxs {
			if values[idx].IsNull() {
				anyNull = true
				break
			}
		}
		if anyNull {
			// MATCH SIMPLE: a null in any referencing column exempts the row.
			continue
		}
		parent, err := h.opener(r.ReferredTable)
		if err != nil {
			return err
		}
		parentIdxs, err := columnIndices(parent.def, r.ReferredColumns)
		if err != nil {
			return err
		}
		found := false
		if r.ReferredTable == h.name {
			// A row may satisfy a self-referencing foreign key by itself.
			found = true
			for i, pidx := range parentIdxs {
				if !valuesEqual(values[childIdxs[i]], values[pidx]) {
					found = false
					break
				}
			}
		}
		ptr, err := parent.tree()
		if err != nil {
			return err
		}
		err = ptr.Iterate(func(_, v []byte) (bool, error) {
			prow, err := parent.def.Columns.Decode(v)
			if err != nil {
				return false, err
			}
			match := true
			for i, pidx := range parentIdxs {
				if !valuesEqual(values[childIdxs[i]], prow[pidx]) {
					match = false
					break
				}
			}
			if match {
				found = true
				return false, nil
			}
			return true, nil
		})
		if err != nil {
			return err
		}
		if !found {
			return &dberr.ConstraintError{Kind: dberr.ForeignKeyFailed, Name: r.Name}
		}
	}
	return nil
}

// rawUpdate writes newRow at key without re-running CHECK/UNIQUE/FK
// validation — used internally while applying a SET NULL/SET DEFAULT
// action during a foreign key cascade, where only the NOT NULL invariant
// still applies.
func (h *Handler) rawUpdate(key []byte, row []value.Value) error {
	for idx := range h.def.NotNulls {
		if row[idx].IsNull() {
			return &dberr.ConstraintError{Kind: dberr.NotNullFailed, Name: fmt.Sprintf("%s.%s", h.name, h.def.Columns.Names()[idx])}
		}
	}
	data, err := h.def.Columns.Encode(row)
	if err != nil {
		return err
	}
	tr, err := h.tree()
	if err != nil {
		return err
	}
	return tr.Put(key, data)
}

func defaultOrNull(def *catalog.TableDefinition, idx int) value.Value {
	if v, ok := def.Defaults[idx]; ok {
		return v
	}
	return value.Null
}

func visitKey(table string, key []byte) string {
	return table + "\x00" + string(key)
}

// Delete removes the row at key (whose decoded values are row), first
// applying every ON DELETE action of a foreign key that references this
// table. CASCADE leaves no dangling child row; the whole cascade succeeds
// or fails together since every write lands in the same Tx batch.
func (h *Handler) Delete(key []byte, row []value.Value) error {
	return h.deleteCascade(key, row, make(map[string]bool))
}

func (h *Handler) deleteCascade(key []byte, row []value.Value, visited map[string]bool) error {
	vk := visitKey(h.name, key)
	if visited[vk] {
		return nil
	}
	visited[vk] = true

	fkTree, err := h.fkTree()
	if err != nil {
		return err
	}
	actions, err := fkregistry.ParentActions(fkTree, h.name)
	if err != nil {
		return err
	}
	for _, r := range actions {
		if err := h.applyDeleteAction(r, row, visited); err != nil {
			return err
		}
	}

	tr, err := h.tree()
	if err != nil {
		return err
	}
	return tr.Delete(key)
}

func (h *Handler) applyDeleteAction(r fkregistry.Record, parentRow []value.Value, visited map[string]bool) error {
	child, err := h.opener(r.Table)
	if err != nil {
		return err
	}
	childIdxs, err := columnIndices(child.def, r.Columns)
	if err != nil {
		return err
	}
	parentIdxs, err := columnIndices(h.def, r.ReferredColumns)
	if err != nil {
		return err
	}

	matches, err := child.matchingRows(childIdxs, parentRow, parentIdxs)
	if err != nil {
		return err
	}
	for _, m := range matches {
		switch r.OnDelete {
		case ast.NoAction:
			return &dberr.ConstraintError{Kind: dberr.ForeignKeyFailed, Name: r.Name}
		case ast.Cascade:
			if err := child.deleteCascade(m.Key, m.Values, visited); err != nil {
				return err
			}
		case ast.SetNull:
			newRow := append([]value.Value(nil), m.Values...)
			for _, idx := range childIdxs {
				newRow[idx] = value.Null
			}
			if err := child.rawUpdate(m.Key, newRow); err != nil {
				return err
			}
		case ast.SetDefault:
			newRow := append([]value.Value(nil), m.Values...)
			for _, idx := range childIdxs {
				newRow[idx] = defaultOrNull(child.def, idx)
			}
			if err := child.rawUpdate(m.Key, newRow); err != nil {
				return err
			}
		}
	}
	return nil
}

// matchingRows returns every row whose values at childIdxs equal parentRow
// at parentIdxs (MATCH SIMPLE: a null anywhere in the comparison exempts
// that row).
func (h *Handler) matchingRows(childIdxs []int, parentRow []value.Value, parentIdxs []int) ([]Row, error) {
	var out []Row
	err := h.Iterate(func(row Row) (bool, error) {
		match := true
		for i, cidx := range childIdxs {
			if !valuesEqual(row.Values[cidx], parentRow[parentIdxs[i]]) {
				match = false
				break
			}
		}
		if match {
			out = append(out, row)
		}
		return true, nil
	})
	return out, err
}

// Update validates newRow and rewrites the row at key (whose previous
// decoded values were oldRow) in place, cascading ON UPDATE actions for
// any foreign key that references this table and whose referenced columns
// actually changed.
func (h *Handler) Update(key []byte, oldRow, newRow []value.Value) error {
	if err := h.validateRow(newRow, key); err != nil {
		return err
	}
	return h.updateCascade(key, oldRow, newRow, make(map[string]bool))
}

func (h *Handler) updateCascade(key []byte, oldRow, newRow []value.Value, visited map[string]bool) error {
	vk := visitKey(h.name, key)
	if visited[vk] {
		return nil
	}
	visited[vk] = true

	fkTree, err := h.fkTree()
	if err != nil {
		return err
	}
	actions, err := fkregistry.ParentActions(fkTree, h.name)
	if err != nil {
		return err
	}
	for _, r := range actions {
		parentIdxs, err := columnIndices(h.def, r.ReferredColumns)
		if err != nil {
			return err
		}
		changed := false
		for _, idx := range parentIdxs {
			if !valuesEqual(oldRow[idx], newRow[idx]) {
				changed = true
				break
			}
		}
		if !changed {
			continue
		}
		if err := h.applyUpdateAction(r, oldRow, newRow, parentIdxs, visited); err != nil {
			return err
		}
	}

	data, err := h.def.Columns.Encode(newRow)
	if err != nil {
		return err
	}
	tr, err := h.tree()
	if err != nil {
		return err
	}
	return tr.Put(key, data)
}

func (h *Handler) applyUpdateAction(r fkregistry.Record, oldParentRow, newParentRow []value.Value, parentIdxs []int, visited map[string]bool) error {
	child, err := h.opener(r.Table)
	if err != nil {
		return err
	}
	childIdxs, err := columnIndices(child.def, r.Columns)
	if err != nil {
		return err
	}
	matches, err := child.matchingRows(childIdxs, oldParentRow, parentIdxs)
	if err != nil {
		return err
	}
	for _, m := range matches {
		switch r.OnUpdate {
		case ast.NoAction:
			return &dberr.ConstraintError{Kind: dberr.ForeignKeyFailed, Name: r.Name}
		case ast.Cascade:
			newChildRow := append([]value.Value(nil), m.Values...)
			for i, cidx := range childIdxs {
				newChildRow[cidx] = newParentRow[parentIdxs[i]]
			}
			if err := child.updateCascade(m.Key, m.Values, newChildRow, visited); err != nil {
				return err
			}
		case ast.SetNull:
			newChildRow := append([]value.Value(nil), m.Values...)
			for _, cidx := range childIdxs {
				newChildRow[cidx] = value.Null
			}
			if err := child.rawUpdate(m.Key, newChildRow); err != nil {
				return err
			}
		case ast.SetDefault:
			newChildRow := append([]value.Value(nil), m.Values...)
			for _, cidx := range childIdxs {
				newChildRow[cidx] = defaultOrNull(child.def, cidx)
			}
			if err := child.rawUpdate(m.Key, newChildRow); err != nil {
				return err
			}
		}
	}
	return nil
}

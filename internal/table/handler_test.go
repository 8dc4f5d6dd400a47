package table

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sqlkv/internal/ast"
	"sqlkv/internal/catalog"
	"sqlkv/internal/dberr"
	"sqlkv/internal/fkregistry"
	"sqlkv/internal/kv"
	"sqlkv/internal/kv/memstore"
	"sqlkv/internal/value"
)

// testDB wires a minimal multi-table environment over memstore, mimicking
// what internal/engine will do: one Tx per statement, an Opener that binds
// every Handler to the same Tx.
type testDB struct {
	store *memstore.Store
	defs  map[string]*catalog.TableDefinition
}

func newTestDB() *testDB {
	return &testDB{store: memstore.New(), defs: make(map[string]*catalog.TableDefinition)}
}

func (db *testDB) createTable(t *testing.T, ct ast.CreateTable) *catalog.TableDefinition {
	t.Helper()
	def, fks, err := catalog.BuildTableDefinition(ct)
	require.NoError(t, err)
	db.defs[ct.Name] = def

	batch, err := db.store.Batch(fkregistry.Tree)
	require.NoError(t, err)
	fkTree, err := batch.Tree(fkregistry.Tree)
	require.NoError(t, err)
	for _, fk := range fks {
		require.NoError(t, fkregistry.Add(fkTree, fkregistry.Record{
			Name: fk.Name, Table: ct.Name, Columns: fk.ChildColumns,
			ReferredTable: fk.ParentTable, ReferredColumns: fk.ParentColumns,
			OnDelete: fk.OnDelete, OnUpdate: fk.OnUpdate,
		}))
	}
	require.NoError(t, batch.Commit())
	return def
}

func treeName(table string) string { return "t_" + table }

func (db *testDB) newTx(tables ...string) *Tx {
	names := append([]string{fkregistry.Tree}, func() []string {
		out := make([]string, len(tables))
		for i, tb := range tables {
			out[i] = treeName(tb)
		}
		return out
	}()...)
	b, err := db.store.Batch(names...)
	if err != nil {
		panic(err)
	}
	return NewTx(b)
}

func (db *testDB) open(tx *Tx) Opener {
	var opener Opener
	opener = func(name string) (*Handler, error) {
		def, ok := db.defs[name]
		if !ok {
			return nil, &dberr.SchemaError{Kind: dberr.TableNotFound, Subject: name}
		}
		return NewHandler(tx, opener, treeName(name), name, "", def), nil
	}
	return opener
}

func (db *testDB) handler(tx *Tx, table string) *Handler {
	opener := db.open(tx)
	h, err := opener(table)
	if err != nil {
		panic(err)
	}
	return h
}

func vals(vs ...value.Value) []value.Value { return vs }

func TestInsertRejectsDuplicatePrimaryKey(t *testing.T) {
	db := newTestDB()
	db.createTable(t, ast.CreateTable{
		Name: "users",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: value.TypeInteger, PrimaryKey: true},
			{Name: "name", Type: value.TypeString},
		},
	})

	tx := db.newTx("users")
	h := db.handler(tx, "users")
	_, err := h.Insert(vals(value.Integer(1), value.String("a")))
	require.NoError(t, err)
	_, err = h.Insert(vals(value.Integer(1), value.String("b")))
	require.Error(t, err)
	var ce *dberr.ConstraintError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, dberr.UniqueFailed, ce.Kind)
}

func TestInsertRejectsNotNullViolation(t *testing.T) {
	db := newTestDB()
	db.createTable(t, ast.CreateTable{
		Name: "users",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: value.TypeInteger, PrimaryKey: true},
			{Name: "name", Type: value.TypeString, NotNull: true},
		},
	})
	tx := db.newTx("users")
	h := db.handler(tx, "users")
	_, err := h.Insert(vals(value.Integer(1), value.Null))
	require.Error(t, err)
	var ce *dberr.ConstraintError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, dberr.NotNullFailed, ce.Kind)
}

func TestInsertRejectsCheckViolation(t *testing.T) {
	db := newTestDB()
	db.createTable(t, ast.CreateTable{
		Name: "accounts",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: value.TypeInteger, PrimaryKey: true},
			{Name: "balance", Type: value.TypeInteger},
		},
		TableConstraints: []ast.TableConstraint{{
			Kind: ast.TCCheck,
			Check: ast.BinaryOp{
				Op:    ast.OpGtEq,
				Left:  ast.ColumnRef{Column: "balance"},
				Right: ast.Literal{Value: value.Integer(0)},
			},
		}},
	})
	tx := db.newTx("accounts")
	h := db.handler(tx, "accounts")
	_, err := h.Insert(vals(value.Integer(1), value.Integer(-5)))
	require.Error(t, err)
	var ce *dberr.ConstraintError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, dberr.CheckFailed, ce.Kind)

	_, err = h.Insert(vals(value.Integer(2), value.Integer(5)))
	require.NoError(t, err)
}

func setupParentChild(t *testing.T, db *testDB, onDelete ast.ReferentialAction) {
	db.createTable(t, ast.CreateTable{
		Name: "users",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: value.TypeInteger, PrimaryKey: true},
		},
	})
	db.createTable(t, ast.CreateTable{
		Name: "orders",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: value.TypeInteger, PrimaryKey: true},
			{Name: "user_id", Type: value.TypeInteger, References: &ast.ColumnReference{
				Table: "users", Column: "id", OnDelete: onDelete,
			}},
		},
	})
}

func TestForeignKeyRejectsInsertWithoutParent(t *testing.T) {
	db := newTestDB()
	setupParentChild(t, db, ast.NoAction)
	tx := db.newTx("users", "orders")
	orders := db.handler(tx, "orders")
	_, err := orders.Insert(vals(value.Integer(1), value.Integer(99)))
	require.Error(t, err)
	var ce *dberr.ConstraintError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, dberr.ForeignKeyFailed, ce.Kind)
}

func TestForeignKeyNullExemptsRow(t *testing.T) {
	db := newTestDB()
	setupParentChild(t, db, ast.NoAction)
	tx := db.newTx("users", "orders")
	orders := db.handler(tx, "orders")
	_, err := orders.Insert(vals(value.Integer(1), value.Null))
	require.NoError(t, err)
}

func TestCascadeDeleteLeavesNoDanglingChild(t *testing.T) {
	db := newTestDB()
	setupParentChild(t, db, ast.Cascade)
	tx := db.newTx("users", "orders")
	users := db.handler(tx, "users")
	orders := db.handler(tx, "orders")

	_, err := users.Insert(vals(value.Integer(1)))
	require.NoError(t, err)
	_, err = orders.Insert(vals(value.Integer(10), value.Integer(1)))
	require.NoError(t, err)

	var userRow Row
	require.NoError(t, users.Iterate(func(r Row) (bool, error) {
		userRow = r
		return false, nil
	}))
	require.NoError(t, users.Delete(userRow.Key, userRow.Values))

	var remaining int
	require.NoError(t, orders.Iterate(func(Row) (bool, error) {
		remaining++
		return true, nil
	}))
	require.Equal(t, 0, remaining)
}

func TestSetNullDeleteIsAllOrNothing(t *testing.T) {
	db := newTestDB()
	db.createTable(t, ast.CreateTable{
		Name: "users",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: value.TypeInteger, PrimaryKey: true},
		},
	})
	db.createTable(t, ast.CreateTable{
		Name: "orders",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: value.TypeInteger, PrimaryKey: true},
			{Name: "user_id", Type: value.TypeInteger, NotNull: true, References: &ast.ColumnReference{
				Table: "users", Column: "id", OnDelete: ast.SetNull,
			}},
		},
	})
	tx := db.newTx("users", "orders")
	users := db.handler(tx, "users")
	orders := db.handler(tx, "orders")
	_, err := users.Insert(vals(value.Integer(1)))
	require.NoError(t, err)
	_, err = orders.Insert(vals(value.Integer(10), value.Integer(1)))
	require.NoError(t, err)

	var userRow Row
	require.NoError(t, users.Iterate(func(r Row) (bool, error) {
		userRow = r
		return false, nil
	}))
	err = users.Delete(userRow.Key, userRow.Values)
	require.Error(t, err)

	var order Row
	require.NoError(t, orders.Iterate(func(r Row) (bool, error) {
		order = r
		return false, nil
	}))
	require.False(t, order.Values[1].IsNull())
}

func setupParentChildOnUpdate(t *testing.T, db *testDB, onUpdate ast.ReferentialAction) {
	db.createTable(t, ast.CreateTable{
		Name: "users",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: value.TypeInteger, PrimaryKey: true},
		},
	})
	db.createTable(t, ast.CreateTable{
		Name: "orders",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: value.TypeInteger, PrimaryKey: true},
			{Name: "user_id", Type: value.TypeInteger, References: &ast.ColumnReference{
				Table: "users", Column: "id", OnUpdate: onUpdate,
			}},
		},
	})
}

func TestCascadeUpdatePropagatesToChild(t *testing.T) {
	db := newTestDB()
	setupParentChildOnUpdate(t, db, ast.Cascade)
	tx := db.newTx("users", "orders")
	users := db.handler(tx, "users")
	orders := db.handler(tx, "orders")

	_, err := users.Insert(vals(value.Integer(1)))
	require.NoError(t, err)
	_, err = orders.Insert(vals(value.Integer(10), value.Integer(1)))
	require.NoError(t, err)

	var userRow Row
	require.NoError(t, users.Iterate(func(r Row) (bool, error) {
		userRow = r
		return false, nil
	}))
	newUserRow := vals(value.Integer(2))
	require.NoError(t, users.Update(userRow.Key, userRow.Values, newUserRow))

	var order Row
	require.NoError(t, orders.Iterate(func(r Row) (bool, error) {
		order = r
		return false, nil
	}))
	require.Equal(t, value.Integer(2), order.Values[1])
}

// TestCascadeUpdateSelfReferenceTerminates exercises a self-referencing
// foreign key (a row whose own foreign key column points at itself) with
// ON UPDATE CASCADE. The cascade reaches the row being updated, and the
// already-visited guard in updateCascade keeps that row from being
// rewritten a second time within the same update.
func TestCascadeUpdateSelfReferenceTerminates(t *testing.T) {
	db := newTestDB()
	db.createTable(t, ast.CreateTable{
		Name: "nodes",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: value.TypeInteger, PrimaryKey: true},
			{Name: "parent_id", Type: value.TypeInteger, References: &ast.ColumnReference{
				Table: "nodes", Column: "id", OnUpdate: ast.Cascade,
			}},
		},
	})
	tx := db.newTx("nodes")
	nodes := db.handler(tx, "nodes")

	_, err := nodes.Insert(vals(value.Integer(1), value.Integer(1)))
	require.NoError(t, err)

	var row Row
	require.NoError(t, nodes.Iterate(func(r Row) (bool, error) {
		row = r
		return false, nil
	}))
	require.NoError(t, nodes.Update(row.Key, row.Values, vals(value.Integer(2), value.Integer(1))))
}

var _ kv.Store = (*memstore.Store)(nil)

package join

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sqlkv/internal/ast"
	"sqlkv/internal/catalog"
	"sqlkv/internal/fkregistry"
	"sqlkv/internal/kv/memstore"
	"sqlkv/internal/table"
	"sqlkv/internal/value"
)

type fixture struct {
	store *memstore.Store
	defs  map[string]*catalog.TableDefinition
}

func newFixture(t *testing.T) *fixture {
	return &fixture{store: memstore.New(), defs: make(map[string]*catalog.TableDefinition)}
}

func (f *fixture) createTable(t *testing.T, ct ast.CreateTable) {
	t.Helper()
	def, _, err := catalog.BuildTableDefinition(ct)
	require.NoError(t, err)
	f.defs[ct.Name] = def
}

func treeName(name string) string { return "t_" + name }

func (f *fixture) newTx(t *testing.T, tables ...string) *table.Tx {
	t.Helper()
	names := []string{fkregistry.Tree}
	for _, tb := range tables {
		names = append(names, treeName(tb))
	}
	b, err := f.store.Batch(names...)
	require.NoError(t, err)
	return table.NewTx(b)
}

func (f *fixture) opener(tx *table.Tx) table.Opener {
	var opener table.Opener
	opener = func(name string) (*table.Handler, error) {
		def := f.defs[name]
		return table.NewHandler(tx, opener, treeName(name), name, "", def), nil
	}
	return opener
}

func TestInnerJoinOnEquality(t *testing.T) {
	f := newFixture(t)
	f.createTable(t, ast.CreateTable{Name: "users", Columns: []ast.ColumnDef{
		{Name: "id", Type: value.TypeInteger, PrimaryKey: true},
	}})
	f.createTable(t, ast.CreateTable{Name: "orders", Columns: []ast.ColumnDef{
		{Name: "id", Type: value.TypeInteger, PrimaryKey: true},
		{Name: "user_id", Type: value.TypeInteger},
	}})

	tx := f.newTx(t, "users", "orders")
	opener := f.opener(tx)
	users, _ := opener("users")
	orders, _ := opener("orders")
	_, err := users.Insert([]value.Value{value.Integer(1)})
	require.NoError(t, err)
	_, err = users.Insert([]value.Value{value.Integer(2)})
	require.NoError(t, err)
	_, err = orders.Insert([]value.Value{value.Integer(100), value.Integer(1)})
	require.NoError(t, err)

	from := ast.Join{
		Left:  ast.TableRef{Table: "users"},
		Right: ast.TableRef{Table: "orders"},
		Kind:  ast.InnerJoin,
		On: ast.BinaryOp{
			Op:    ast.OpEq,
			Left:  ast.ColumnRef{Table: "users", Column: "id"},
			Right: ast.ColumnRef{Table: "orders", Column: "user_id"},
		},
	}
	tree, err := Build(from, f.opener(tx), make(map[string]bool))
	require.NoError(t, err)
	rows, err := tree.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, value.Integer(1), rows[0][0])
}

func TestLeftJoinNullExtendsUnmatched(t *testing.T) {
	f := newFixture(t)
	f.createTable(t, ast.CreateTable{Name: "users", Columns: []ast.ColumnDef{
		{Name: "id", Type: value.TypeInteger, PrimaryKey: true},
	}})
	f.createTable(t, ast.CreateTable{Name: "orders", Columns: []ast.ColumnDef{
		{Name: "id", Type: value.TypeInteger, PrimaryKey: true},
		{Name: "user_id", Type: value.TypeInteger},
	}})

	tx := f.newTx(t, "users", "orders")
	opener := f.opener(tx)
	users, _ := opener("users")
	_, err := users.Insert([]value.Value{value.Integer(1)})
	require.NoError(t, err)
	_, err = users.Insert([]value.Value{value.Integer(2)})
	require.NoError(t, err)

	from := ast.Join{
		Left:  ast.TableRef{Table: "users"},
		Right: ast.TableRef{Table: "orders"},
		Kind:  ast.LeftJoin,
		On: ast.BinaryOp{
			Op:    ast.OpEq,
			Left:  ast.ColumnRef{Table: "users", Column: "id"},
			Right: ast.ColumnRef{Table: "orders", Column: "user_id"},
		},
	}
	tree, err := Build(from, f.opener(tx), make(map[string]bool))
	require.NoError(t, err)
	rows, err := tree.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.True(t, r[1].IsNull())
		require.True(t, r[2].IsNull())
	}
}

func TestNaturalJoinSharedColumn(t *testing.T) {
	f := newFixture(t)
	f.createTable(t, ast.CreateTable{Name: "users", Columns: []ast.ColumnDef{
		{Name: "id", Type: value.TypeInteger, PrimaryKey: true},
	}})
	f.createTable(t, ast.CreateTable{Name: "profiles", Columns: []ast.ColumnDef{
		{Name: "id", Type: value.TypeInteger},
		{Name: "bio", Type: value.TypeString},
	}})

	tx := f.newTx(t, "users", "profiles")
	opener := f.opener(tx)
	users, _ := opener("users")
	profiles, _ := opener("profiles")
	_, err := users.Insert([]value.Value{value.Integer(1)})
	require.NoError(t, err)
	_, err = profiles.Insert([]value.Value{value.Integer(1), value.String("hi")})
	require.NoError(t, err)

	from := ast.Join{
		Left:    ast.TableRef{Table: "users"},
		Right:   ast.TableRef{Table: "profiles"},
		Kind:    ast.InnerJoin,
		Natural: true,
	}
	tree, err := Build(from, f.opener(tx), make(map[string]bool))
	require.NoError(t, err)
	rows, err := tree.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var visible int
	for _, c := range tree.Columns().Columns() {
		if !c.Hidden {
			visible++
		}
	}
	require.Equal(t, 2, visible, "shared column id must appear once under unqualified SELECT *")
}

func TestDuplicateAliasRejected(t *testing.T) {
	f := newFixture(t)
	f.createTable(t, ast.CreateTable{Name: "users", Columns: []ast.ColumnDef{
		{Name: "id", Type: value.TypeInteger},
	}})
	tx := f.newTx(t, "users")
	from := ast.Join{
		Left:  ast.TableRef{Table: "users"},
		Right: ast.TableRef{Table: "users"},
		Kind:  ast.InnerJoin,
		On:    ast.Literal{Value: value.Integer(1)},
	}
	_, err := Build(from, f.opener(tx), make(map[string]bool))
	require.Error(t, err)
}

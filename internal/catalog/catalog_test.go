package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sqlkv/internal/ast"
	"sqlkv/internal/dberr"
	"sqlkv/internal/kv/memstore"
	"sqlkv/internal/value"
)

func intCol(name string, opts ...func(*ast.ColumnDef)) ast.ColumnDef {
	c := ast.ColumnDef{Name: name, Type: value.TypeInteger}
	for _, o := range opts {
		o(&c)
	}
	return c
}

func strCol(name string, opts ...func(*ast.ColumnDef)) ast.ColumnDef {
	c := ast.ColumnDef{Name: name, Type: value.TypeString}
	for _, o := range opts {
		o(&c)
	}
	return c
}

func notNull(c *ast.ColumnDef)    { c.NotNull = true }
func primaryKey(c *ast.ColumnDef) { c.PrimaryKey = true }
func unique(c *ast.ColumnDef)     { c.Unique = true }

func TestPrimaryKeyImpliesNotNullAndUnique(t *testing.T) {
	ct := ast.CreateTable{
		Name: "users",
		Columns: []ast.ColumnDef{
			intCol("id", primaryKey),
			strCol("name"),
		},
	}
	td, fks, err := BuildTableDefinition(ct)
	require.NoError(t, err)
	require.Empty(t, fks)
	require.NotNil(t, td.PrimaryKey)
	require.Equal(t, []int{0}, td.PrimaryKey.Columns)
	require.True(t, td.NotNulls[0])
	require.Len(t, td.Uniques, 1)
	require.Equal(t, []int{0}, td.Uniques[0].Columns)
}

func TestDuplicatePrimaryKeyRejected(t *testing.T) {
	ct := ast.CreateTable{
		Name: "t",
		Columns: []ast.ColumnDef{
			intCol("a", primaryKey),
			intCol("b", primaryKey),
		},
	}
	_, _, err := BuildTableDefinition(ct)
	require.Error(t, err)
	var se *dberr.SchemaError
	require.ErrorAs(t, err, &se)
	require.Equal(t, dberr.MultiplePrimaryKeys, se.Kind)
}

func TestColumnLevelUniqueShortcut(t *testing.T) {
	ct := ast.CreateTable{
		Name: "t",
		Columns: []ast.ColumnDef{
			intCol("id", primaryKey),
			strCol("email", unique, notNull),
		},
	}
	td, _, err := BuildTableDefinition(ct)
	require.NoError(t, err)
	require.Len(t, td.Uniques, 2)
	require.True(t, td.NotNulls[1])
}

func TestTableLevelCheckResolvesAgainstOwnColumns(t *testing.T) {
	ct := ast.CreateTable{
		Name: "accounts",
		Columns: []ast.ColumnDef{
			intCol("id", primaryKey),
			intCol("balance"),
		},
		TableConstraints: []ast.TableConstraint{
			{
				Kind: ast.TCCheck,
				Check: ast.BinaryOp{
					Op:    ast.OpGtEq,
					Left:  ast.ColumnRef{Column: "balance"},
					Right: ast.Literal{Value: value.Integer(0)},
				},
			},
		},
	}
	td, _, err := BuildTableDefinition(ct)
	require.NoError(t, err)
	require.Len(t, td.Checks, 1)
}

func TestCheckReferencingUnknownColumnFails(t *testing.T) {
	ct := ast.CreateTable{
		Name: "t",
		Columns: []ast.ColumnDef{
			intCol("id"),
		},
		TableConstraints: []ast.TableConstraint{
			{
				Kind: ast.TCCheck,
				Check: ast.BinaryOp{
					Op:    ast.OpGtEq,
					Left:  ast.ColumnRef{Column: "nope"},
					Right: ast.Literal{Value: value.Integer(0)},
				},
			},
		},
	}
	_, _, err := BuildTableDefinition(ct)
	require.Error(t, err)
}

func TestConstantDefaultResolves(t *testing.T) {
	ct := ast.CreateTable{
		Name: "t",
		Columns: []ast.ColumnDef{
			intCol("id", primaryKey),
			intCol("score", func(c *ast.ColumnDef) { c.Default = ast.Literal{Value: value.Integer(100)} }),
		},
	}
	td, _, err := BuildTableDefinition(ct)
	require.NoError(t, err)
	require.Equal(t, value.Integer(100), td.Defaults[1])
}

func TestNonConstantDefaultRejected(t *testing.T) {
	ct := ast.CreateTable{
		Name: "t",
		Columns: []ast.ColumnDef{
			intCol("id", primaryKey),
			intCol("score", func(c *ast.ColumnDef) { c.Default = ast.ColumnRef{Column: "id"} }),
		},
	}
	_, _, err := BuildTableDefinition(ct)
	require.Error(t, err)
}

func TestColumnLevelForeignKeyShortcutCollected(t *testing.T) {
	ct := ast.CreateTable{
		Name: "orders",
		Columns: []ast.ColumnDef{
			intCol("id", primaryKey),
			intCol("user_id", func(c *ast.ColumnDef) {
				c.References = &ast.ColumnReference{Table: "users", Column: "id", OnDelete: ast.Cascade}
			}),
		},
	}
	_, fks, err := BuildTableDefinition(ct)
	require.NoError(t, err)
	require.Len(t, fks, 1)
	require.Equal(t, "users", fks[0].ParentTable)
	require.Equal(t, ast.Cascade, fks[0].OnDelete)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ct := ast.CreateTable{
		Name: "accounts",
		Columns: []ast.ColumnDef{
			intCol("id", primaryKey),
			strCol("name", notNull),
			intCol("balance", func(c *ast.ColumnDef) { c.Default = ast.Literal{Value: value.Integer(0)} }),
		},
		TableConstraints: []ast.TableConstraint{
			{
				Kind: ast.TCCheck,
				Check: ast.BinaryOp{
					Op:    ast.OpGtEq,
					Left:  ast.ColumnRef{Column: "balance"},
					Right: ast.Literal{Value: value.Integer(0)},
				},
			},
		},
	}
	td, _, err := BuildTableDefinition(ct)
	require.NoError(t, err)

	store := memstore.New()
	tree, err := store.Tree(TablesTree)
	require.NoError(t, err)
	require.NoError(t, Save(tree, td))

	got, ok, err := Load(tree, "accounts")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, td.Name, got.Name)
	require.Equal(t, td.Columns.Names(), got.Columns.Names())
	require.Equal(t, value.Integer(0), got.Defaults[2])
	require.Len(t, got.Checks, 1)

	names, err := ListNames(tree)
	require.NoError(t, err)
	require.Equal(t, []string{"accounts"}, names)

	require.NoError(t, Remove(tree, "accounts"))
	_, ok, err = Load(tree, "accounts")
	require.NoError(t, err)
	require.False(t, ok)
}

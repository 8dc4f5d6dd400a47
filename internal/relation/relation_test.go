package relation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sqlkv/internal/ast"
	"sqlkv/internal/value"
)

func TestAddRowRejectsWrongArity(t *testing.T) {
	r := New([]string{"a", "b"})
	err := r.AddRow([]value.Value{value.Integer(1)})
	require.Error(t, err)
}

func TestCellByName(t *testing.T) {
	r := New([]string{"id", "name"})
	require.NoError(t, r.AddRow([]value.Value{value.Integer(1), value.String("a")}))
	v, err := r.CellByName(0, "name")
	require.NoError(t, err)
	require.Equal(t, value.String("a"), v)
}

func TestSortNullsFirstAndDescending(t *testing.T) {
	r := New([]string{"n"})
	require.NoError(t, r.AddRow([]value.Value{value.Integer(3)}))
	require.NoError(t, r.AddRow([]value.Value{value.Null}))
	require.NoError(t, r.AddRow([]value.Value{value.Integer(1)}))

	require.NoError(t, r.Sort([]ast.OrderTerm{{Column: "n", NullsFirst: true}}))
	got := r.Rows()
	require.True(t, got[0][0].IsNull())
	require.Equal(t, value.Integer(1), got[1][0])
	require.Equal(t, value.Integer(3), got[2][0])

	require.NoError(t, r.Sort([]ast.OrderTerm{{Column: "n", Desc: true, NullsFirst: false}}))
	got = r.Rows()
	require.True(t, got[0][0].IsNull())
	require.Equal(t, value.Integer(3), got[1][0])
	require.Equal(t, value.Integer(1), got[2][0])
}

package rowcodec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sqlkv/internal/value"
)

func mustColumns(t *testing.T, spec ...struct {
	name string
	typ  value.Type
}) *Columns {
	t.Helper()
	c := NewColumns()
	for _, s := range spec {
		_, err := c.AddColumn(s.name, s.typ)
		require.NoError(t, err)
	}
	return c
}

func col(name string, typ value.Type) struct {
	name string
	typ  value.Type
} {
	return struct {
		name string
		typ  value.Type
	}{name, typ}
}

func TestRoundTripMixedSchema(t *testing.T) {
	c := mustColumns(t, col("id", value.TypeInteger), col("name", value.TypeString), col("note", value.TypeString), col("age", value.TypeInteger))

	rows := [][]value.Value{
		{value.Integer(1), value.String("alice"), value.String("hello world"), value.Integer(30)},
		{value.Null, value.Null, value.Null, value.Null},
		{value.Integer(-5), value.String(""), value.Null, value.Integer(0)},
	}

	for _, row := range rows {
		enc, err := c.Encode(row)
		require.NoError(t, err)
		dec, err := c.Decode(enc)
		require.NoError(t, err)
		require.Equal(t, len(row), len(dec))
		for i := range row {
			require.Truef(t, row[i].Equal(dec[i]), "column %d: want %v got %v", i, row[i], dec[i])
		}
	}
}

func TestRoundTripAllFixed(t *testing.T) {
	c := mustColumns(t, col("a", value.TypeInteger), col("b", value.TypeInteger))
	row := []value.Value{value.Integer(42), value.Null}
	enc, err := c.Encode(row)
	require.NoError(t, err)
	dec, err := c.Decode(enc)
	require.NoError(t, err)
	require.True(t, row[0].Equal(dec[0]))
	require.True(t, row[1].Equal(dec[1]))
}

func TestRoundTripAllVariable(t *testing.T) {
	c := mustColumns(t, col("a", value.TypeString), col("b", value.TypeString), col("c", value.TypeString))
	row := []value.Value{value.String("x"), value.Null, value.String("zzz")}
	enc, err := c.Encode(row)
	require.NoError(t, err)
	dec, err := c.Decode(enc)
	require.NoError(t, err)
	for i := range row {
		require.True(t, row[i].Equal(dec[i]))
	}
}

func TestEncodeWrongColumnCount(t *testing.T) {
	c := mustColumns(t, col("a", value.TypeInteger))
	_, err := c.Encode([]value.Value{value.Integer(1), value.Integer(2)})
	require.Error(t, err)
}

func TestDuplicateColumnNameRejected(t *testing.T) {
	c := NewColumns()
	_, err := c.AddColumn("a", value.TypeInteger)
	require.NoError(t, err)
	_, err = c.AddColumn("a", value.TypeString)
	require.Error(t, err)
}

package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCastToIntegerBoundaries(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"-1", -1},
		{"010", 10},
		{"-010", -10},
		{"hello", 0},
		{"10hello", 10},
		{"-10hello", -10},
		{"", 0},
		{"99999999999999999999999999", 9223372036854775807},
		{"-99999999999999999999999999", -9223372036854775808},
	}
	for _, c := range cases {
		got := CastToInteger(String(c.in))
		assert.Equalf(t, c.want, got.Int(), "cast_to_integer(%q)", c.in)
	}
	assert.True(t, CastToInteger(Null).IsNull())
	assert.Equal(t, int64(5), CastToInteger(Integer(5)).Int())
}

func TestCastToString(t *testing.T) {
	assert.True(t, CastToString(Null).IsNull())
	assert.Equal(t, "42", CastToString(Integer(42)).Str())
	assert.Equal(t, "-7", CastToString(Integer(-7)).Str())
	assert.Equal(t, "abc", CastToString(String("abc")).Str())
}

func TestToTruth(t *testing.T) {
	assert.Equal(t, Unknown, ToTruth(Null))
	assert.Equal(t, True, ToTruth(Integer(1)))
	assert.Equal(t, False, ToTruth(Integer(0)))
	assert.Equal(t, False, ToTruth(Integer(-5)))
	assert.Equal(t, False, ToTruth(String("hello")))
	assert.Equal(t, True, ToTruth(String("10hello")))
}

func TestThreeValuedComparison(t *testing.T) {
	assert.Equal(t, Unknown, Compare(Null, OpEq, Null))
	assert.Equal(t, Unknown, Compare(Null, OpEq, Integer(5)))
	assert.Equal(t, True, Compare(Integer(5), OpEq, String("5")))
	assert.Equal(t, True, Compare(String("HELLO"), OpLt, Integer(5)))
}

func TestKleeneConnectives(t *testing.T) {
	assert.Equal(t, True, True.And(True))
	assert.Equal(t, False, True.And(False))
	assert.Equal(t, False, False.And(Unknown))
	assert.Equal(t, Unknown, True.And(Unknown))

	assert.Equal(t, True, True.Or(Unknown))
	assert.Equal(t, False, False.Or(False))
	assert.Equal(t, Unknown, False.Or(Unknown))
}

func TestArithNullAndDivModByZero(t *testing.T) {
	assert.True(t, Arith(Null, OpAdd, Integer(1)).IsNull())
	assert.True(t, Arith(Integer(1), OpDiv, Integer(0)).IsNull())
	assert.True(t, Arith(Integer(1), OpMod, Integer(0)).IsNull())
	assert.Equal(t, int64(6), Arith(Integer(2), OpMul, Integer(3)).Int())
}

package mindb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareValueListsNullOrdering(t *testing.T) {
	c, err := CompareValueLists([]Value{nil, int64(1)}, []Value{int64(5), int64(1)}, ExactLength)
	require.NoError(t, err)
	require.Negative(t, c, "null should sort before any non-null value")

	c, err = CompareValueLists([]Value{int64(5)}, []Value{nil}, ExactLength)
	require.NoError(t, err)
	require.Positive(t, c)

	c, err = CompareValueLists([]Value{nil}, []Value{nil}, ExactLength)
	require.NoError(t, err)
	require.Zero(t, c)
}

func TestCompareValueListsExactLengthMismatch(t *testing.T) {
	_, err := CompareValueLists([]Value{int64(1)}, []Value{int64(1), int64(2)}, ExactLength)
	require.Error(t, err)
}

func TestCompareValueListsIgnoreLength(t *testing.T) {
	c, err := CompareValueLists([]Value{int64(1), int64(2)}, []Value{int64(1)}, IgnoreLength)
	require.NoError(t, err)
	require.Zero(t, c, "IgnoreLength compares only the shared prefix")
}

func TestCompareValueListsShorterIsLess(t *testing.T) {
	c, err := CompareValueLists([]Value{int64(1)}, []Value{int64(1), int64(2)}, ShorterIsLess)
	require.NoError(t, err)
	require.Negative(t, c, "equal shared prefix, shorter list sorts first")
}

func TestTupleComparatorMultiKeyAndDesc(t *testing.T) {
	schema := NewSchema()
	require.NoError(t, schema.AddColumn(ColumnInfo{Name: "a", Type: ColumnType{Base: INTEGER}}))
	require.NoError(t, schema.AddColumn(ColumnInfo{Name: "b", Type: ColumnType{Base: INTEGER}}))

	t1 := NewLiteralTuple(schema, []Value{int64(1), int64(10)})
	t2 := NewLiteralTuple(schema, []Value{int64(1), int64(20)})

	cmp := &TupleComparator{Keys: []OrderItem{
		{Expr: &ColumnExpr{Column: "a"}},
		{Expr: &ColumnExpr{Column: "b"}, Desc: true},
	}}
	c, err := cmp.Compare(t1, t2)
	require.NoError(t, err)
	require.Positive(t, c, "a ties, b DESC means the larger b sorts first")
}

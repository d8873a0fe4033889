package mindb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func coerceSchema(t *testing.T) *Schema {
	t.Helper()
	schema := NewSchema()
	require.NoError(t, schema.AddColumn(ColumnInfo{Name: "id", Type: ColumnType{Base: BIGINT}}))
	require.NoError(t, schema.AddColumn(ColumnInfo{Name: "price", Type: ColumnType{Base: DOUBLE}}))
	require.NoError(t, schema.AddColumn(ColumnInfo{Name: "name", Type: ColumnType{Base: VARCHAR, Length: 32}}))
	require.NoError(t, schema.AddColumn(ColumnInfo{Name: "code", Type: ColumnType{Base: CHAR, Length: 4}}))
	return schema
}

func TestCoerceToSchemaConverts(t *testing.T) {
	schema := coerceSchema(t)
	raw := NewLiteralTuple(schema, []Value{"42", int64(10), "widget", "ab"})

	out, err := CoerceToSchema(raw, schema)
	require.NoError(t, err)
	require.Equal(t, int64(42), out.Values[0])
	require.Equal(t, 10.0, out.Values[1])
	require.Equal(t, "widget", out.Values[2])
	require.Equal(t, "ab  ", out.Values[3], "CHAR(4) is space-padded")
}

func TestCoerceToSchemaIsIdempotent(t *testing.T) {
	schema := coerceSchema(t)
	raw := NewLiteralTuple(schema, []Value{"7", "3.5", "x", "y"})

	once, err := CoerceToSchema(raw, schema)
	require.NoError(t, err)
	twice, err := CoerceToSchema(once, schema)
	require.NoError(t, err)
	require.Equal(t, once.Values, twice.Values)
}

func TestCoerceToSchemaNullPassesThrough(t *testing.T) {
	schema := coerceSchema(t)
	raw := NewLiteralTuple(schema, []Value{nil, nil, nil, nil})
	out, err := CoerceToSchema(raw, schema)
	require.NoError(t, err)
	for _, v := range out.Values {
		require.Nil(t, v)
	}
}

func TestCoerceToSchemaArityMismatch(t *testing.T) {
	schema := coerceSchema(t)
	raw := NewLiteralTuple(schema, []Value{int64(1)})
	_, err := CoerceToSchema(raw, schema)
	require.Error(t, err)
}

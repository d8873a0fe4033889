package mindb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCatalogCreateDropAndPersist(t *testing.T) {
	dir := t.TempDir()
	sc := NewSystemCatalog(dir)
	require.NoError(t, sc.Load())

	schema := NewSchema()
	require.NoError(t, schema.AddColumn(ColumnInfo{Name: "id", Type: ColumnType{Base: BIGINT}}))
	require.NoError(t, sc.CreateTable("widgets", schema, "widgets.heap", 0))
	require.NoError(t, sc.Save())

	reloaded := NewSystemCatalog(dir)
	require.NoError(t, reloaded.Load())
	got, err := reloaded.Schema("widgets")
	require.NoError(t, err)
	require.Len(t, got.Columns, 1)
	require.Equal(t, "id", got.Columns[0].Name)
}

func TestCatalogCreateTableDuplicateFails(t *testing.T) {
	sc := NewSystemCatalog(t.TempDir())
	schema := NewSchema()
	require.NoError(t, sc.CreateTable("widgets", schema, "widgets.heap", 0))
	err := sc.CreateTable("widgets", schema, "widgets2.heap", 0)
	require.Error(t, err)
}

func TestCatalogReferencingTables(t *testing.T) {
	sc := NewSystemCatalog(t.TempDir())
	parent := NewSchema()
	require.NoError(t, parent.AddColumn(ColumnInfo{Name: "id", Type: ColumnType{Base: BIGINT}}))
	require.NoError(t, sc.CreateTable("users", parent, "users.heap", 0))

	child := NewSchema()
	require.NoError(t, child.AddColumn(ColumnInfo{Name: "user_id", Type: ColumnType{Base: BIGINT}}))
	child.ForeignKeys = append(child.ForeignKeys, ForeignKey{LocalColumns: []int{0}, RefTable: "users", RefColumns: []int{0}})
	require.NoError(t, sc.CreateTable("orders", child, "orders.heap", 0))

	require.Equal(t, []string{"orders"}, sc.ReferencingTables("users"))

	require.NoError(t, sc.DropTable("orders"))
	require.Empty(t, sc.ReferencingTables("users"))
}

func TestCatalogDropTableUnknown(t *testing.T) {
	sc := NewSystemCatalog(t.TempDir())
	err := sc.DropTable("ghost")
	require.Error(t, err)
}

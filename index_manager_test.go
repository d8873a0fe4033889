package mindb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func createAccountsTable(t *testing.T, e *Engine) {
	t.Helper()
	_, err := e.Execute(&Statement{
		Kind:      StmtCreateTable,
		TableName: "accounts",
		Columns: []ColumnInfo{
			{Name: "acctno", Type: ColumnType{Base: INTEGER}},
			{Name: "balance", Type: ColumnType{Base: DOUBLE}},
		},
	})
	require.NoError(t, err)
}

func insertAccount(t *testing.T, e *Engine, acctno int64, balance float64) {
	t.Helper()
	_, err := e.Execute(&Statement{
		Kind: StmtInsert, InsertTable: "accounts", InsertColumns: []string{"acctno", "balance"},
		InsertValues: [][]Expression{{&LiteralExpr{Value: acctno}, &LiteralExpr{Value: balance}}},
	})
	require.NoError(t, err)
}

// TestCreateIndexDropIndex covers the CREATE/DROP INDEX DDL surface:
// building a secondary index, confirming the catalog records it, and
// removing it again.
func TestCreateIndexDropIndex(t *testing.T) {
	e := newTestEngine(t)
	createAccountsTable(t, e)
	insertAccount(t, e, 1, 100)
	insertAccount(t, e, 2, 200)

	_, err := e.Execute(&Statement{
		Kind: StmtCreateIndex, TableName: "accounts", IndexName: "acctno_idx",
		IndexColumn: "acctno", IndexKind: IndexBTree, IndexUnique: true,
	})
	require.NoError(t, err)

	meta, err := e.catalog.Index("accounts", "acctno_idx")
	require.NoError(t, err)
	require.Equal(t, "acctno", meta.Column)
	require.True(t, meta.Unique)

	_, err = e.Execute(&Statement{Kind: StmtDropIndex, TableName: "accounts", IndexName: "acctno_idx"})
	require.NoError(t, err)
	_, err = e.catalog.Index("accounts", "acctno_idx")
	require.Error(t, err)
}

// TestIndexScanSelectedForEqualityPredicate covers the planner's
// equality-predicate-on-indexed-column access path: MakeSimplePlan should
// pick an IndexScanNode over a FileScanNode once an index exists.
func TestIndexScanSelectedForEqualityPredicate(t *testing.T) {
	e := newTestEngine(t)
	createAccountsTable(t, e)
	insertAccount(t, e, 1, 100)
	insertAccount(t, e, 2, 200)
	insertAccount(t, e, 3, 300)

	_, err := e.Execute(&Statement{
		Kind: StmtCreateIndex, TableName: "accounts", IndexName: "acctno_idx",
		IndexColumn: "acctno", IndexKind: IndexBTree,
	})
	require.NoError(t, err)

	sel := &SelectClause{
		SelectItems: []SelectItem{{Expr: &ColumnExpr{Column: "acctno"}}, {Expr: &ColumnExpr{Column: "balance"}}},
		FromClause:  []FromItem{{TableName: "accounts"}},
		WhereClause: &CompareExpr{Op: OpEQ, Left: &ColumnExpr{Column: "acctno"}, Right: &LiteralExpr{Value: int64(2)}},
	}
	plan, err := MakeSimplePlan(sel, e.tm, e.sess)
	require.NoError(t, err)

	filter, ok := plan.(*SimpleFilterNode)
	require.True(t, ok, "expected the WHERE clause to still wrap the scan in a SimpleFilterNode")
	_, ok = filter.Child.(*IndexScanNode)
	require.True(t, ok, "expected an equality predicate on an indexed column to select an IndexScanNode")

	require.NoError(t, plan.Initialize())
	defer plan.CleanUp()
	tup, err := plan.GetNextTuple()
	require.NoError(t, err)
	require.NotNil(t, tup)
	require.Equal(t, int64(2), tup.Values[0])
	require.Equal(t, 200.0, tup.Values[1])
	tup.Unpin()
	tup, err = plan.GetNextTuple()
	require.NoError(t, err)
	require.Nil(t, tup)
}

// TestIndexMirrorsUpdateAndDelete covers the index manager's
// AfterUpdate/AfterDelete hooks keeping a secondary index's mirrored copy
// in sync with the main table.
func TestIndexMirrorsUpdateAndDelete(t *testing.T) {
	e := newTestEngine(t)
	createAccountsTable(t, e)
	insertAccount(t, e, 1, 100)
	insertAccount(t, e, 2, 200)

	_, err := e.Execute(&Statement{
		Kind: StmtCreateIndex, TableName: "accounts", IndexName: "acctno_idx",
		IndexColumn: "acctno", IndexKind: IndexHash,
	})
	require.NoError(t, err)

	_, err = e.Execute(&Statement{
		Kind: StmtUpdate, UpdateTable: "accounts",
		UpdateSets: map[string]Expression{"balance": &LiteralExpr{Value: 150.0}},
		UpdateWhere: &CompareExpr{Op: OpEQ, Left: &ColumnExpr{Column: "acctno"}, Right: &LiteralExpr{Value: int64(1)}},
	})
	require.NoError(t, err)

	idx, _, err := e.idxMgr.OpenIndex("accounts", "acctno_idx")
	require.NoError(t, err)
	hashIdx, ok := idx.(HashedTupleFile)
	require.True(t, ok)
	matches, err := hashIdx.FindEqual(e.sess, int64(1))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, 150.0, matches[0].Values[1])
	matches[0].Unpin()

	_, err = e.Execute(&Statement{
		Kind: StmtDelete, DeleteTable: "accounts",
		DeleteWhere: &CompareExpr{Op: OpEQ, Left: &ColumnExpr{Column: "acctno"}, Right: &LiteralExpr{Value: int64(2)}},
	})
	require.NoError(t, err)
	matches, err = hashIdx.FindEqual(e.sess, int64(2))
	require.NoError(t, err)
	require.Len(t, matches, 0)
}

// TestUtilityCommands covers ANALYZE/VERIFY/SET/DUMP TABLE/EXPLAIN being
// reachable through Engine.Execute rather than as side-door methods.
func TestUtilityCommands(t *testing.T) {
	e := newTestEngine(t)
	createAccountsTable(t, e)
	insertAccount(t, e, 1, 100)

	out, err := e.Execute(&Statement{Kind: StmtAnalyze, TableName: "accounts"})
	require.NoError(t, err)
	require.Contains(t, out, "analyzed")

	out, err = e.Execute(&Statement{Kind: StmtVerify, TableName: "accounts"})
	require.NoError(t, err)
	require.Contains(t, out, "no inconsistencies")

	out, err = e.Execute(&Statement{Kind: StmtSet, SetProperty: "mindb.enableIndexes", SetValue: "false"})
	require.NoError(t, err)
	require.Contains(t, out, "set to")
	require.False(t, e.Config.EnableIndexes)

	out, err = e.Execute(&Statement{Kind: StmtDumpTable, TableName: "accounts"})
	require.NoError(t, err)
	require.Contains(t, out, "acctno=1")

	out, err = e.Execute(&Statement{Kind: StmtExplain, Explain: &Statement{
		Kind: StmtSelect,
		Select: &SelectClause{
			SelectItems: []SelectItem{{Expr: &ColumnExpr{Column: "acctno"}}, {Expr: &ColumnExpr{Column: "balance"}}},
			FromClause:  []FromItem{{TableName: "accounts"}},
		},
	}})
	require.NoError(t, err)
	require.Contains(t, out, "FileScan")
}

// TestAlterTableAddDropColumn covers the ALTER TABLE ADD/DROP COLUMN
// surface delegating to the catalog.
func TestAlterTableAddDropColumn(t *testing.T) {
	e := newTestEngine(t)
	createAccountsTable(t, e)

	_, err := e.Execute(&Statement{
		Kind: StmtAlterTable, TableName: "accounts", Alter: AlterAddColumn,
		AlterColumn: ColumnInfo{Name: "opened", Type: ColumnType{Base: BOOLEAN}},
	})
	require.NoError(t, err)
	schema, err := e.catalog.Schema("accounts")
	require.NoError(t, err)
	require.Equal(t, 2, schema.ColumnIndex("", "opened"))

	_, err = e.Execute(&Statement{Kind: StmtAlterTable, TableName: "accounts", Alter: AlterDropColumn, AlterDropName: "opened"})
	require.NoError(t, err)
	schema, err = e.catalog.Schema("accounts")
	require.NoError(t, err)
	require.Equal(t, -1, schema.ColumnIndex("", "opened"))
}

// TestDropTableIfExists covers DROP TABLE IF EXISTS tolerating a missing
// table instead of erroring.
func TestDropTableIfExists(t *testing.T) {
	e := newTestEngine(t)
	out, err := e.Execute(&Statement{Kind: StmtDropTable, TableName: "ghost", DropTableIfExists: true})
	require.NoError(t, err)
	require.Contains(t, out, "does not exist")

	_, err = e.Execute(&Statement{Kind: StmtDropTable, TableName: "ghost"})
	require.Error(t, err)
}

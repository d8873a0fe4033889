package mindb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseDirectory = t.TempDir()
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	return e
}

func createUsersTable(t *testing.T, e *Engine) {
	t.Helper()
	_, err := e.Execute(&Statement{
		Kind:       StmtCreateTable,
		TableName:  "users",
		Columns:    []ColumnInfo{{Name: "id", Type: ColumnType{Base: BIGINT}}, {Name: "name", Type: ColumnType{Base: VARCHAR, Length: 32}}},
		NotNull:    []string{"id", "name"},
		PrimaryKey: []string{"id"},
	})
	require.NoError(t, err)
}

func insertUser(e *Engine, id int64, name string) (string, error) {
	return e.Execute(&Statement{
		Kind:          StmtInsert,
		InsertTable:   "users",
		InsertColumns: []string{"id", "name"},
		InsertValues:  [][]Expression{{&LiteralExpr{Value: id}, &LiteralExpr{Value: name}}},
	})
}

// TestCreateInsertSelectOrderBy covers spec.md §8 scenario 1.
func TestCreateInsertSelectOrderBy(t *testing.T) {
	e := newTestEngine(t)
	createUsersTable(t, e)

	_, err := insertUser(e, 2, "bob")
	require.NoError(t, err)
	_, err = insertUser(e, 1, "alice")
	require.NoError(t, err)

	sel := &SelectClause{
		SelectItems: []SelectItem{{Expr: &ColumnExpr{Column: "id"}}, {Expr: &ColumnExpr{Column: "name"}}},
		FromClause:  []FromItem{{TableName: "users"}},
		OrderBy:     []OrderItem{{Expr: &ColumnExpr{Column: "id"}}},
	}
	plan, err := MakeSimplePlan(sel, e.tm, e.sess)
	require.NoError(t, err)
	require.NoError(t, plan.Initialize())
	defer plan.CleanUp()

	var names []string
	for {
		tup, err := plan.GetNextTuple()
		require.NoError(t, err)
		if tup == nil {
			break
		}
		names = append(names, tup.Values[1].(string))
		tup.Unpin()
	}
	require.Equal(t, []string{"alice", "bob"}, names)
}

// TestPrimaryKeyUniquenessViolation covers spec.md §8 scenario 2.
func TestPrimaryKeyUniquenessViolation(t *testing.T) {
	e := newTestEngine(t)
	createUsersTable(t, e)

	_, err := insertUser(e, 1, "alice")
	require.NoError(t, err)

	_, err = insertUser(e, 1, "duplicate")
	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, KindConstraintViolation, ee.Kind)
}

// TestForeignKeyCascadeDelete covers spec.md §8 scenario 3.
func TestForeignKeyCascadeDelete(t *testing.T) {
	e := newTestEngine(t)
	createUsersTable(t, e)
	_, err := insertUser(e, 1, "alice")
	require.NoError(t, err)

	_, err = e.Execute(&Statement{
		Kind:      StmtCreateTable,
		TableName: "orders",
		Columns: []ColumnInfo{
			{Name: "id", Type: ColumnType{Base: BIGINT}},
			{Name: "user_id", Type: ColumnType{Base: BIGINT}},
		},
		NotNull:    []string{"id"},
		PrimaryKey: []string{"id"},
		ForeignKeys: []ForeignKeyDef{{
			LocalColumns: []string{"user_id"}, RefTable: "users", RefColumns: []string{"id"}, OnDelete: Cascade,
		}},
	})
	require.NoError(t, err)

	_, err = e.Execute(&Statement{
		Kind:          StmtInsert,
		InsertTable:   "orders",
		InsertColumns: []string{"id", "user_id"},
		InsertValues:  [][]Expression{{&LiteralExpr{Value: int64(100)}, &LiteralExpr{Value: int64(1)}}},
	})
	require.NoError(t, err)

	_, err = e.Execute(&Statement{Kind: StmtDelete, DeleteTable: "users",
		DeleteWhere: &CompareExpr{Op: OpEQ, Left: &ColumnExpr{Column: "id"}, Right: &LiteralExpr{Value: int64(1)}}})
	require.NoError(t, err)

	ordersFile, err := e.tm.Open("orders")
	require.NoError(t, err)
	remaining, err := ordersFile.FirstTuple(e.sess)
	require.NoError(t, err)
	require.Nil(t, remaining, "the cascaded delete should have removed the order row, leaving none to scan")
}

// TestLeftOuterJoin covers spec.md §8 scenario 5.
func TestLeftOuterJoin(t *testing.T) {
	e := newTestEngine(t)
	createUsersTable(t, e)
	_, err := insertUser(e, 1, "alice")
	require.NoError(t, err)
	_, err = insertUser(e, 2, "bob")
	require.NoError(t, err)

	_, err = e.Execute(&Statement{
		Kind:      StmtCreateTable,
		TableName: "orders",
		Columns: []ColumnInfo{
			{Name: "id", Type: ColumnType{Base: BIGINT}},
			{Name: "user_id", Type: ColumnType{Base: BIGINT}},
		},
	})
	require.NoError(t, err)
	_, err = e.Execute(&Statement{
		Kind: StmtInsert, InsertTable: "orders", InsertColumns: []string{"id", "user_id"},
		InsertValues: [][]Expression{{&LiteralExpr{Value: int64(1)}, &LiteralExpr{Value: int64(1)}}},
	})
	require.NoError(t, err)

	sel := &SelectClause{
		SelectItems: []SelectItem{{Expr: &ColumnExpr{Table: "users", Column: "name"}}, {Expr: &ColumnExpr{Table: "orders", Column: "id"}}},
		FromClause: []FromItem{
			{TableName: "users"},
			{TableName: "orders", Join: &JoinItem{
				Kind: JoinLeftOuter,
				On: &CompareExpr{Op: OpEQ,
					Left:  &ColumnExpr{Table: "users", Column: "id"},
					Right: &ColumnExpr{Table: "orders", Column: "user_id"}},
			}},
		},
		OrderBy: []OrderItem{{Expr: &ColumnExpr{Table: "users", Column: "name"}}},
	}
	plan, err := MakeSimplePlan(sel, e.tm, e.sess)
	require.NoError(t, err)
	require.NoError(t, plan.Initialize())
	defer plan.CleanUp()

	var rows [][]Value
	for {
		tup, err := plan.GetNextTuple()
		require.NoError(t, err)
		if tup == nil {
			break
		}
		rows = append(rows, append([]Value{}, tup.Values...))
		tup.Unpin()
	}
	require.Len(t, rows, 2)
	require.Equal(t, "alice", rows[0][0])
	require.Equal(t, int64(1), rows[0][1])
	require.Equal(t, "bob", rows[1][0])
	require.Nil(t, rows[1][1], "bob has no matching order, so the right side is null-padded")
}

// TestGroupAggregate covers spec.md §8 scenario 4.
func TestGroupAggregate(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Execute(&Statement{
		Kind: StmtCreateTable, TableName: "sales",
		Columns: []ColumnInfo{
			{Name: "region", Type: ColumnType{Base: VARCHAR, Length: 16}},
			{Name: "amount", Type: ColumnType{Base: DOUBLE}},
		},
	})
	require.NoError(t, err)

	rows := []struct {
		region string
		amount float64
	}{{"east", 10}, {"east", 20}, {"west", 5}}
	for _, r := range rows {
		_, err := e.Execute(&Statement{
			Kind: StmtInsert, InsertTable: "sales", InsertColumns: []string{"region", "amount"},
			InsertValues: [][]Expression{{&LiteralExpr{Value: r.region}, &LiteralExpr{Value: r.amount}}},
		})
		require.NoError(t, err)
	}

	sel := &SelectClause{
		SelectItems: []SelectItem{
			{Expr: &ColumnExpr{Column: "region"}},
			{Expr: &FuncCallExpr{Name: "SUM", Kind: FuncAggregate, Args: []Expression{&ColumnExpr{Column: "amount"}}}},
		},
		FromClause: []FromItem{{TableName: "sales"}},
		GroupBy:    []Expression{&ColumnExpr{Column: "region"}},
		OrderBy:    []OrderItem{{Expr: &ColumnExpr{Column: "region"}}},
	}
	plan, err := MakeSimplePlan(sel, e.tm, e.sess)
	require.NoError(t, err)
	require.NoError(t, plan.Initialize())
	defer plan.CleanUp()

	var totals []float64
	for {
		tup, err := plan.GetNextTuple()
		require.NoError(t, err)
		if tup == nil {
			break
		}
		totals = append(totals, tup.Values[1].(float64))
		tup.Unpin()
	}
	require.Equal(t, []float64{30, 5}, totals)
}

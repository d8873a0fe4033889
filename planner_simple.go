package mindb

// MakeSimplePlan performs spec.md §4.6's deterministic structural
// translation of a SelectClause into a plan tree: FROM, then WHERE, then
// aggregation, then ORDER BY, then (non-trivial) projection, then DISTINCT,
// then LIMIT/OFFSET, then Prepare the root.
//
// Grounded on no single teacher file (the source has no separate planner,
// building query plans ad hoc inside its query executor); the seven-step
// pipeline is specified directly from spec.md §4.6.
func MakeSimplePlan(sel *SelectClause, tm *TableManager, sess *SessionHandle) (PlanNode, error) {
	plan, err := planFromClause(sel.FromClause, sel.WhereClause, tm, sess)
	if err != nil {
		return nil, err
	}

	if sel.WhereClause != nil {
		if ContainsAggregate(sel.WhereClause) {
			return nil, NewError(KindInvalidSQL, "WHERE clause cannot contain an aggregate function")
		}
		plan = NewSimpleFilterNode(plan, sel.WhereClause)
	}

	selectExprs := make([]Expression, len(sel.SelectItems))
	for i, item := range sel.SelectItems {
		selectExprs[i] = item.Expr
	}
	if err := ValidateGroupedSelect(sel.SelectItems, sel.Having, sel.GroupBy); err != nil {
		return nil, err
	}
	toExtract := append(append([]Expression{}, selectExprs...), sel.Having)
	rewritten, aggs, err := ExtractAggregates(toExtract)
	if err != nil {
		return nil, err
	}
	rewrittenSelect := rewritten[:len(selectExprs)]
	rewrittenHaving := rewritten[len(selectExprs)]

	if len(sel.GroupBy) > 0 || len(aggs) > 0 {
		plan = NewHashedGroupAggregateNode(plan, sel.GroupBy, aggs)
		selectExprs = rewrittenSelect
		if rewrittenHaving != nil {
			plan = NewSimpleFilterNode(plan, rewrittenHaving)
		}
	}

	if len(sel.OrderBy) > 0 {
		plan = NewSortNode(plan, sel.OrderBy)
	}

	items := make([]SelectItem, len(sel.SelectItems))
	for i, item := range sel.SelectItems {
		items[i] = SelectItem{Expr: selectExprs[i], As: item.As}
	}
	if err := plan.Prepare(); err != nil {
		return nil, err
	}
	if !isTrivialProjection(items, plan.Schema()) {
		plan = NewProjectNode(plan, items)
	}

	if sel.Distinct {
		plan = NewTupleBagNode(plan, true)
	}

	if sel.Limit != nil || sel.Offset != nil {
		limit, offset := -1, 0
		if sel.Limit != nil {
			limit = *sel.Limit
		}
		if sel.Offset != nil {
			offset = *sel.Offset
		}
		plan = NewLimitOffsetNode(plan, limit, offset)
	}

	if err := plan.Prepare(); err != nil {
		return nil, err
	}
	return plan, nil
}

func isTrivialProjection(items []SelectItem, schema *Schema) bool {
	if len(items) != len(schema.Columns) {
		return false
	}
	for i, item := range items {
		col, ok := item.Expr.(*ColumnExpr)
		if !ok || col.Wildcard || col.Column != schema.Columns[i].Name {
			return false
		}
	}
	return true
}

// planFromClause translates a FROM-clause item list left to right,
// nesting each subsequent item as a NestedLoopJoinNode over the
// accumulated plan, per spec.md §4.6 step 1. where is passed through (not
// consumed here — SimpleFilterNode above still applies it in full) solely
// so a base table scan can be swapped for an index-assisted access path
// when where carries a usable equality conjunct on an indexed column.
func planFromClause(items []FromItem, where Expression, tm *TableManager, sess *SessionHandle) (PlanNode, error) {
	if len(items) == 0 {
		return nil, NewError(KindInvalidSQL, "FROM clause must name at least one table")
	}
	acc, err := planFromItem(items[0], where, tm, sess)
	if err != nil {
		return nil, err
	}
	for _, item := range items[1:] {
		right, err := planFromItem(item, where, tm, sess)
		if err != nil {
			return nil, err
		}
		kind, on := JoinInner, Expression(nil)
		if item.Join != nil {
			kind, on = item.Join.Kind, item.Join.On
		}
		acc = NewNestedLoopJoinNode(acc, right, kind, on)
	}
	return acc, nil
}

func planFromItem(item FromItem, where Expression, tm *TableManager, sess *SessionHandle) (PlanNode, error) {
	var plan PlanNode
	if item.Subquery != nil {
		sub, err := MakeSimplePlan(item.Subquery, tm, sess)
		if err != nil {
			return nil, err
		}
		plan = sub
	} else {
		tf, err := tm.Open(item.TableName)
		if err != nil {
			return nil, err
		}
		scanName := item.TableName
		if item.Alias != "" {
			scanName = item.Alias
		}
		idxPlan, err := indexScanForTable(where, scanName, item.TableName, tm, sess)
		if err != nil {
			return nil, err
		}
		if idxPlan != nil {
			plan = idxPlan
		} else {
			plan = NewFileScanNode(tf, item.TableName, sess)
		}
	}
	if item.Alias != "" {
		plan = NewRenameNode(plan, item.Alias)
	}
	return plan, nil
}

// indexScanForTable looks for a top-level (possibly AND-nested) equality
// conjunct in where of the form tableRef.col = <literal> (or reversed)
// naming table (by its in-query name, alias or bare), and if an index
// exists on that column builds an IndexScanNode for it. The WHERE clause
// is still applied in full by the SimpleFilterNode wrapping the whole
// plan above — this is a redundant-but-correct access-path choice, not a
// substitute for filtering, so partial/multi-column conjuncts need no
// special handling here.
func indexScanForTable(where Expression, tableRef, tableName string, tm *TableManager, sess *SessionHandle) (PlanNode, error) {
	if where == nil {
		return nil, nil
	}
	for _, conjunct := range andConjuncts(where) {
		cmp, ok := conjunct.(*CompareExpr)
		if !ok || cmp.Right == nil {
			continue
		}
		col, lit, op := matchColumnLiteral(cmp, tableRef)
		if col == nil {
			continue
		}
		plan, err := tm.indexScanFor(sess, tableName, op, col, lit)
		if err != nil {
			return nil, err
		}
		if plan != nil {
			return plan, nil
		}
	}
	return nil, nil
}

// andConjuncts flattens a top-level n-ary AND into its operands (a bare
// non-AND expression is its own single conjunct).
func andConjuncts(e Expression) []Expression {
	if b, ok := e.(*BoolExpr); ok && b.Op == OpAnd {
		var out []Expression
		for _, operand := range b.Operands {
			out = append(out, andConjuncts(operand)...)
		}
		return out
	}
	return []Expression{e}
}

// matchColumnLiteral recognizes cmp as tableRef.col <op> <literal> or the
// reversed <literal> <op> tableRef.col, returning the column/literal/op
// (normalized so op always reads left-to-right as column-op-literal) if
// cmp references tableRef; otherwise returns a nil column.
func matchColumnLiteral(cmp *CompareExpr, tableRef string) (*ColumnExpr, *LiteralExpr, CompareOp) {
	if col, ok := cmp.Left.(*ColumnExpr); ok && !col.Wildcard && (col.Table == "" || col.Table == tableRef) {
		if lit, ok := cmp.Right.(*LiteralExpr); ok {
			return col, lit, cmp.Op
		}
	}
	if col, ok := cmp.Right.(*ColumnExpr); ok && !col.Wildcard && (col.Table == "" || col.Table == tableRef) {
		if lit, ok := cmp.Left.(*LiteralExpr); ok {
			return col, lit, reverseCompareOp(cmp.Op)
		}
	}
	return nil, nil, 0
}

func reverseCompareOp(op CompareOp) CompareOp {
	switch op {
	case OpLT:
		return OpGT
	case OpLE:
		return OpGE
	case OpGT:
		return OpLT
	case OpGE:
		return OpLE
	default:
		return op
	}
}

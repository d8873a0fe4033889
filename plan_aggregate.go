package mindb

import (
	"fmt"
	"strings"
)

// aggAccumulator folds a stream of per-row values for one aggregate call
// within one group.
type aggAccumulator interface {
	Add(v Value) error
	Result() Value
}

func newAccumulator(name string) (aggAccumulator, error) {
	switch strings.ToUpper(name) {
	case "COUNT":
		return &countAcc{}, nil
	case "SUM":
		return &sumAcc{}, nil
	case "AVG":
		return &avgAcc{}, nil
	case "MIN":
		return &minMaxAcc{wantMax: false}, nil
	case "MAX":
		return &minMaxAcc{wantMax: true}, nil
	default:
		return nil, NewError(KindExpression, "unknown aggregate function %s", name)
	}
}

type countAcc struct{ n int64 }

func (a *countAcc) Add(v Value) error {
	if v != nil {
		a.n++
	}
	return nil
}
func (a *countAcc) Result() Value { return a.n }

type sumAcc struct {
	acc  Value
	seen bool
}

func (a *sumAcc) Add(v Value) error {
	if v == nil {
		return nil
	}
	if !a.seen {
		a.acc = v
		a.seen = true
		return nil
	}
	sum, err := evalArith(OpAdd, a.acc, v)
	if err != nil {
		return err
	}
	a.acc = sum
	return nil
}
func (a *sumAcc) Result() Value {
	if !a.seen {
		return nil
	}
	return a.acc
}

type avgAcc struct {
	sum   Value
	count int64
	seen  bool
}

func (a *avgAcc) Add(v Value) error {
	if v == nil {
		return nil
	}
	if !a.seen {
		a.sum = v
		a.seen = true
	} else {
		sum, err := evalArith(OpAdd, a.sum, v)
		if err != nil {
			return err
		}
		a.sum = sum
	}
	a.count++
	return nil
}
func (a *avgAcc) Result() Value {
	if !a.seen || a.count == 0 {
		return nil
	}
	sum, ok := asFloat(a.sum)
	if !ok {
		return nil
	}
	return sum / float64(a.count)
}

type minMaxAcc struct {
	wantMax bool
	val     Value
	seen    bool
}

func (a *minMaxAcc) Add(v Value) error {
	if v == nil {
		return nil
	}
	if !a.seen {
		a.val = v
		a.seen = true
		return nil
	}
	c, err := CompareScalars(v, a.val)
	if err != nil {
		return err
	}
	if (a.wantMax && c > 0) || (!a.wantMax && c < 0) {
		a.val = v
	}
	return nil
}
func (a *minMaxAcc) Result() Value {
	if !a.seen {
		return nil
	}
	return a.val
}

type aggGroup struct {
	groupValues []Value
	accs        []aggAccumulator
	distinctSet []map[string]bool
}

// HashedGroupAggregateNode computes GROUP BY aggregates by materializing
// its child into an in-memory hash table keyed on the group-by values,
// per spec.md §4.5/§4.6. With no GROUP BY keys, it produces exactly one
// group covering the whole input, and still emits that one row when the
// input is empty (the SQL "aggregate over empty input returns one row"
// behavior).
//
// Grounded on no single teacher file (the source has no GROUP BY
// support); built directly from spec.md's HashedGroupAggregateNode
// description and the extraction contract in expr_traverse.go.
type HashedGroupAggregateNode struct {
	basePlanNode
	Child   PlanNode
	GroupBy []Expression
	Aggs    []*FuncCallExpr

	order []string
	groups map[string]*aggGroup
	rows   []*Tuple
	pos    int
	marked int
}

func NewHashedGroupAggregateNode(child PlanNode, groupBy []Expression, aggs []*FuncCallExpr) *HashedGroupAggregateNode {
	return &HashedGroupAggregateNode{Child: child, GroupBy: groupBy, Aggs: aggs}
}

func (n *HashedGroupAggregateNode) Prepare() error {
	if err := n.Child.Prepare(); err != nil {
		return err
	}
	childSchema := n.Child.Schema()
	out := NewSchema()
	for _, g := range n.GroupBy {
		out.Columns = append(out.Columns, ColumnInfo{Name: g.String(), Type: inferExprType(g, childSchema)})
	}
	for i, call := range n.Aggs {
		out.Columns = append(out.Columns, ColumnInfo{Name: aggColumnName(i), Type: aggResultType(call.Name)})
	}
	n.schema = out
	childCost := n.Child.Cost()
	groupsEst := childCost.NumTuples
	if len(n.GroupBy) > 0 && groupsEst > 1 {
		groupsEst = groupsEst / 2
	} else if len(n.GroupBy) == 0 {
		groupsEst = 1
	}
	n.cost = PlanCost{
		NumTuples:   groupsEst,
		NumBlockIOs: childCost.NumBlockIOs,
		CPUCost:     childCost.CPUCost + childCost.NumTuples,
	}
	return nil
}

func aggResultType(name string) ColumnType {
	if strings.EqualFold(name, "COUNT") {
		return ColumnType{Base: BIGINT}
	}
	return ColumnType{Base: DOUBLE}
}

func (n *HashedGroupAggregateNode) Initialize() error {
	n.releaseRows()
	if err := n.Child.Initialize(); err != nil {
		return err
	}
	n.groups = map[string]*aggGroup{}
	n.order = nil

	for {
		t, err := n.Child.GetNextTuple()
		if err != nil {
			return err
		}
		if t == nil {
			break
		}
		env := NewEnvironment(n.Child.Schema(), t)
		keyVals := make([]Value, len(n.GroupBy))
		for i, g := range n.GroupBy {
			v, err := g.Evaluate(env)
			if err != nil {
				t.Unpin()
				return err
			}
			keyVals[i] = v
		}
		key := groupKey(keyVals)
		grp, ok := n.groups[key]
		if !ok {
			grp = &aggGroup{groupValues: keyVals}
			for _, call := range n.Aggs {
				acc, err := newAccumulator(call.Name)
				if err != nil {
					t.Unpin()
					return err
				}
				grp.accs = append(grp.accs, acc)
				grp.distinctSet = append(grp.distinctSet, map[string]bool{})
			}
			n.groups[key] = grp
			n.order = append(n.order, key)
		}
		for i, call := range n.Aggs {
			v, err := aggArgValue(call, env)
			if err != nil {
				t.Unpin()
				return err
			}
			if call.Distinct {
				dk := fmt.Sprintf("%T|%v", v, v)
				if v == nil || grp.distinctSet[i][dk] {
					continue
				}
				grp.distinctSet[i][dk] = true
			}
			if err := grp.accs[i].Add(v); err != nil {
				t.Unpin()
				return err
			}
		}
		t.Unpin()
	}

	if len(n.order) == 0 && len(n.GroupBy) == 0 {
		grp := &aggGroup{}
		for _, call := range n.Aggs {
			acc, _ := newAccumulator(call.Name)
			grp.accs = append(grp.accs, acc)
		}
		n.groups[""] = grp
		n.order = []string{""}
	}

	for _, key := range n.order {
		grp := n.groups[key]
		values := append([]Value{}, grp.groupValues...)
		for _, acc := range grp.accs {
			values = append(values, acc.Result())
		}
		n.rows = append(n.rows, NewLiteralTuple(n.schema, values))
	}
	n.pos = 0
	return nil
}

func aggArgValue(call *FuncCallExpr, env *Environment) (Value, error) {
	if strings.EqualFold(call.Name, "COUNT") && len(call.Args) == 0 {
		return true, nil
	}
	if len(call.Args) == 0 {
		return nil, nil
	}
	return call.Args[0].Evaluate(env)
}

func groupKey(vals []Value) string {
	var b strings.Builder
	for _, v := range vals {
		fmt.Fprintf(&b, "%T|%v\x1f", v, v)
	}
	return b.String()
}

func (n *HashedGroupAggregateNode) releaseRows() {
	for _, t := range n.rows {
		t.Unpin()
	}
	n.rows = nil
	n.pos = 0
}

func (n *HashedGroupAggregateNode) GetNextTuple() (*Tuple, error) {
	if n.pos >= len(n.rows) {
		return nil, nil
	}
	t := n.rows[n.pos]
	n.pos++
	return t, nil
}

func (n *HashedGroupAggregateNode) MarkCurrentPosition() error { n.marked = n.pos; return nil }
func (n *HashedGroupAggregateNode) ResetToLastMark() error     { n.pos = n.marked; return nil }

func (n *HashedGroupAggregateNode) CleanUp() error {
	n.releaseRows()
	return n.Child.CleanUp()
}

func (n *HashedGroupAggregateNode) AddParentEnvironmentToPlanTree(env *Environment) error {
	return n.Child.AddParentEnvironmentToPlanTree(env)
}

func (n *HashedGroupAggregateNode) String() string { return "HashedGroupAggregate" }

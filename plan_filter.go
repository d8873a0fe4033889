package mindb

// SimpleFilterNode passes through child's tuples for which Predicate
// evaluates true (null/false are dropped), per spec.md §4.5. Grounded on
// the per-row WHERE-evaluation loop the teacher inlines in
// engine_adapter.go's SELECT handling, generalized into a standalone
// pull-based node.
type SimpleFilterNode struct {
	basePlanNode
	Child     PlanNode
	Predicate Expression
	env       *Environment
}

func NewSimpleFilterNode(child PlanNode, predicate Expression) *SimpleFilterNode {
	return &SimpleFilterNode{Child: child, Predicate: predicate}
}

func (n *SimpleFilterNode) Prepare() error {
	if err := n.Child.Prepare(); err != nil {
		return err
	}
	n.schema = n.Child.Schema()
	childCost := n.Child.Cost()
	sel := EstimateFilterSelectivity(n.Predicate, n.schema, n.Child)
	n.cost = PlanCost{
		NumTuples:   childCost.NumTuples * sel,
		NumBlockIOs: childCost.NumBlockIOs,
		CPUCost:     childCost.CPUCost + childCost.NumTuples,
	}
	n.ordered = n.Child.ResultsOrderedBy()
	return nil
}

func (n *SimpleFilterNode) Initialize() error { return n.Child.Initialize() }

func (n *SimpleFilterNode) GetNextTuple() (*Tuple, error) {
	for {
		t, err := n.Child.GetNextTuple()
		if err != nil || t == nil {
			return t, err
		}
		env := NewEnvironment(n.schema, t)
		if n.env != nil {
			env.parent = n.env
		}
		v, err := n.Predicate.Evaluate(env)
		if err != nil {
			t.Unpin()
			return nil, err
		}
		if b, ok := v.(bool); ok && b {
			return t, nil
		}
		t.Unpin()
	}
}

func (n *SimpleFilterNode) MarkCurrentPosition() error { return n.Child.MarkCurrentPosition() }
func (n *SimpleFilterNode) ResetToLastMark() error     { return n.Child.ResetToLastMark() }
func (n *SimpleFilterNode) CleanUp() error             { return n.Child.CleanUp() }

func (n *SimpleFilterNode) AddParentEnvironmentToPlanTree(env *Environment) error {
	n.env = env
	return n.Child.AddParentEnvironmentToPlanTree(env)
}

func (n *SimpleFilterNode) String() string { return "Filter(" + n.Predicate.String() + ")" }

package mindb

// LimitOffsetNode skips Offset tuples then returns at most Limit tuples
// from its child, per spec.md §4.5. A negative Limit means unbounded.
type LimitOffsetNode struct {
	basePlanNode
	Child  PlanNode
	Limit  int
	Offset int

	returned int
	skipped  bool
}

func NewLimitOffsetNode(child PlanNode, limit, offset int) *LimitOffsetNode {
	return &LimitOffsetNode{Child: child, Limit: limit, Offset: offset}
}

func (n *LimitOffsetNode) Prepare() error {
	if err := n.Child.Prepare(); err != nil {
		return err
	}
	n.schema = n.Child.Schema()
	childCost := n.Child.Cost()
	bound := childCost.NumTuples
	if n.Limit >= 0 && float64(n.Limit+n.Offset) < bound {
		bound = float64(n.Limit + n.Offset)
	}
	n.cost = PlanCost{NumTuples: bound, NumBlockIOs: childCost.NumBlockIOs, CPUCost: bound}
	n.ordered = n.Child.ResultsOrderedBy()
	return nil
}

func (n *LimitOffsetNode) Initialize() error {
	n.returned = 0
	n.skipped = false
	return n.Child.Initialize()
}

func (n *LimitOffsetNode) GetNextTuple() (*Tuple, error) {
	if !n.skipped {
		for i := 0; i < n.Offset; i++ {
			t, err := n.Child.GetNextTuple()
			if err != nil {
				return nil, err
			}
			if t == nil {
				break
			}
			t.Unpin()
		}
		n.skipped = true
	}
	if n.Limit >= 0 && n.returned >= n.Limit {
		return nil, nil
	}
	t, err := n.Child.GetNextTuple()
	if err != nil || t == nil {
		return t, err
	}
	n.returned++
	return t, nil
}

func (n *LimitOffsetNode) MarkCurrentPosition() error { return n.Child.MarkCurrentPosition() }
func (n *LimitOffsetNode) ResetToLastMark() error     { return n.Child.ResetToLastMark() }
func (n *LimitOffsetNode) CleanUp() error             { return n.Child.CleanUp() }

func (n *LimitOffsetNode) AddParentEnvironmentToPlanTree(env *Environment) error {
	return n.Child.AddParentEnvironmentToPlanTree(env)
}

func (n *LimitOffsetNode) String() string { return "LimitOffset" }

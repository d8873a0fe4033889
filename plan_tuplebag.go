package mindb

// TupleBagNode materializes its child's entire output once, then replays
// it, per spec.md §4.5. The planners use it for the DISTINCT pass;
// NestedLoopJoinNode materializes its own inner side instead.
//
// Distinct, when set, suppresses duplicate rows (by their encoded
// value list) on first materialization rather than on every replay.
type TupleBagNode struct {
	basePlanNode
	Child    PlanNode
	Distinct bool

	rows   []*Tuple
	pos    int
	marked int
}

func NewTupleBagNode(child PlanNode, distinct bool) *TupleBagNode {
	return &TupleBagNode{Child: child, Distinct: distinct}
}

func (n *TupleBagNode) Prepare() error {
	if err := n.Child.Prepare(); err != nil {
		return err
	}
	n.schema = n.Child.Schema()
	childCost := n.Child.Cost()
	n.cost = childCost
	n.ordered = n.Child.ResultsOrderedBy()
	return nil
}

func (n *TupleBagNode) Initialize() error {
	n.releaseRows()
	if err := n.Child.Initialize(); err != nil {
		return err
	}
	seen := map[string]bool{}
	for {
		t, err := n.Child.GetNextTuple()
		if err != nil {
			return err
		}
		if t == nil {
			break
		}
		if n.Distinct {
			key := groupKey(t.Values)
			if seen[key] {
				t.Unpin()
				continue
			}
			seen[key] = true
		}
		n.rows = append(n.rows, t)
	}
	n.pos = 0
	return nil
}

func (n *TupleBagNode) releaseRows() {
	for _, t := range n.rows {
		t.Unpin()
	}
	n.rows = nil
	n.pos = 0
}

func (n *TupleBagNode) GetNextTuple() (*Tuple, error) {
	if n.pos >= len(n.rows) {
		return nil, nil
	}
	t := n.rows[n.pos]
	n.pos++
	return t, nil
}

func (n *TupleBagNode) MarkCurrentPosition() error { n.marked = n.pos; return nil }
func (n *TupleBagNode) ResetToLastMark() error     { n.pos = n.marked; return nil }

func (n *TupleBagNode) CleanUp() error {
	n.releaseRows()
	return n.Child.CleanUp()
}

func (n *TupleBagNode) AddParentEnvironmentToPlanTree(env *Environment) error {
	return n.Child.AddParentEnvironmentToPlanTree(env)
}

func (n *TupleBagNode) String() string { return "TupleBag" }

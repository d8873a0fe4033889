package mindb

import "sort"

// SortNode materializes its child's output and orders it by a list of
// ORDER BY keys, per spec.md §4.5. Grounded on the teacher's in-memory
// `sort.Slice` usage for ORDER BY in engine_adapter.go, generalized into
// a standalone pull-based node sitting above any child plan.
type SortNode struct {
	basePlanNode
	Child PlanNode
	Keys  []OrderItem

	cmp     *TupleComparator
	rows    []*Tuple
	pos     int
	marked  int
	sortErr error
}

func NewSortNode(child PlanNode, keys []OrderItem) *SortNode {
	return &SortNode{Child: child, Keys: keys, cmp: &TupleComparator{Keys: keys}}
}

func (n *SortNode) Prepare() error {
	if err := n.Child.Prepare(); err != nil {
		return err
	}
	n.schema = n.Child.Schema()
	childCost := n.Child.Cost()
	logN := 1.0
	if childCost.NumTuples > 1 {
		logN = childCost.NumTuples
	}
	n.cost = PlanCost{
		NumTuples:   childCost.NumTuples,
		NumBlockIOs: childCost.NumBlockIOs,
		CPUCost:     childCost.CPUCost + childCost.NumTuples*logN,
	}
	n.ordered = n.Keys
	return nil
}

func (n *SortNode) Initialize() error {
	n.releaseRows()
	if err := n.Child.Initialize(); err != nil {
		return err
	}
	for {
		t, err := n.Child.GetNextTuple()
		if err != nil {
			n.sortErr = err
			return err
		}
		if t == nil {
			break
		}
		n.rows = append(n.rows, t)
	}
	var sortErr error
	sort.SliceStable(n.rows, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		c, err := n.cmp.Compare(n.rows[i], n.rows[j])
		if err != nil {
			sortErr = err
			return false
		}
		return c < 0
	})
	if sortErr != nil {
		return sortErr
	}
	n.pos = 0
	return nil
}

func (n *SortNode) releaseRows() {
	for _, t := range n.rows {
		t.Unpin()
	}
	n.rows = nil
	n.pos = 0
}

func (n *SortNode) GetNextTuple() (*Tuple, error) {
	if n.pos >= len(n.rows) {
		return nil, nil
	}
	t := n.rows[n.pos]
	n.pos++
	return t, nil
}

func (n *SortNode) MarkCurrentPosition() error { n.marked = n.pos; return nil }
func (n *SortNode) ResetToLastMark() error     { n.pos = n.marked; return nil }

func (n *SortNode) CleanUp() error {
	n.releaseRows()
	return n.Child.CleanUp()
}

func (n *SortNode) AddParentEnvironmentToPlanTree(env *Environment) error {
	return n.Child.AddParentEnvironmentToPlanTree(env)
}

func (n *SortNode) String() string { return "Sort" }

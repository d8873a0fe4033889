package mindb

// RenameNode re-qualifies every column in its child's schema under a new
// table alias, without touching tuple values — used to give a derived
// table or a self-join side a distinct name for column resolution, per
// spec.md §4.5.
type RenameNode struct {
	basePlanNode
	Child   PlanNode
	NewName string
}

func NewRenameNode(child PlanNode, newName string) *RenameNode {
	return &RenameNode{Child: child, NewName: newName}
}

func (n *RenameNode) Prepare() error {
	if err := n.Child.Prepare(); err != nil {
		return err
	}
	childSchema := n.Child.Schema()
	out := childSchema.Clone()
	for i := range out.Columns {
		out.Columns[i].TableName = n.NewName
	}
	n.schema = out
	n.cost = n.Child.Cost()
	n.ordered = n.Child.ResultsOrderedBy()
	return nil
}

func (n *RenameNode) Initialize() error { return n.Child.Initialize() }

func (n *RenameNode) GetNextTuple() (*Tuple, error) {
	t, err := n.Child.GetNextTuple()
	if err != nil || t == nil {
		return t, err
	}
	renamed := NewLiteralTuple(n.schema, t.Values)
	t.Unpin()
	return renamed, nil
}

func (n *RenameNode) MarkCurrentPosition() error { return n.Child.MarkCurrentPosition() }
func (n *RenameNode) ResetToLastMark() error     { return n.Child.ResetToLastMark() }
func (n *RenameNode) CleanUp() error             { return n.Child.CleanUp() }

func (n *RenameNode) AddParentEnvironmentToPlanTree(env *Environment) error {
	return n.Child.AddParentEnvironmentToPlanTree(env)
}

func (n *RenameNode) String() string { return "Rename(" + n.NewName + ")" }

package mindb

import "strings"

// explainTree renders node and its subtree as an indented text plan, the
// EXPLAIN command of spec.md §4.8a. Grounded on PlanNode's own String()
// per node (plan_scan.go, plan_filter.go, etc.); since PlanNode carries no
// generic child accessor, children are found by a type switch over the
// concrete node types defined across plan_*.go.
func explainTree(node PlanNode, depth int) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(node.String())
	b.WriteString("\n")
	for _, child := range planChildren(node) {
		b.WriteString(explainTree(child, depth+1))
	}
	return b.String()
}

func planChildren(node PlanNode) []PlanNode {
	switch n := node.(type) {
	case *SimpleFilterNode:
		return []PlanNode{n.Child}
	case *ProjectNode:
		return []PlanNode{n.Child}
	case *RenameNode:
		return []PlanNode{n.Child}
	case *SortNode:
		return []PlanNode{n.Child}
	case *LimitOffsetNode:
		return []PlanNode{n.Child}
	case *TupleBagNode:
		return []PlanNode{n.Child}
	case *HashedGroupAggregateNode:
		return []PlanNode{n.Child}
	case *NestedLoopJoinNode:
		return []PlanNode{n.Left, n.Right}
	default:
		return nil
	}
}

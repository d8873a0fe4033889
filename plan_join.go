package mindb

// NestedLoopJoinNode implements inner, left-outer, right-outer, and
// full-outer joins per spec.md §4.5, by materializing the right-hand
// side once and re-scanning it per left tuple. Grounded on
// the teacher's join.go JoinExecutor nested-loop structure, generalized
// from its inner-join-only behavior to all four join kinds and to the
// pull-based PlanNode protocol.
//
// Mark/reset captures the outer tuple, the Left child's own mark and the
// inner/trailing positions, so ResetToLastMark replays the same inner
// rows without re-querying Right (resolved design question: the inner
// side is materialized exactly once per Initialize, never per outer
// tuple, so "generation" is just whether that materialization still
// holds — it always does within one Initialize/CleanUp cycle).
type NestedLoopJoinNode struct {
	basePlanNode
	Left, Right PlanNode
	Kind        JoinKind
	On          Expression
	env         *Environment

	leftSchema, rightSchema *Schema

	innerRows    []*Tuple
	innerMatched []bool

	outer         *Tuple
	outerMatched  bool
	innerPos      int
	leftExhausted bool

	trailing    bool
	trailingPos int

	markOuter    *Tuple
	markInnerPos int
	markTrailing bool
	markTrailPos int
}

func NewNestedLoopJoinNode(left, right PlanNode, kind JoinKind, on Expression) *NestedLoopJoinNode {
	return &NestedLoopJoinNode{Left: left, Right: right, Kind: kind, On: on}
}

func (n *NestedLoopJoinNode) Prepare() error {
	if err := n.Left.Prepare(); err != nil {
		return err
	}
	if err := n.Right.Prepare(); err != nil {
		return err
	}
	n.leftSchema = n.Left.Schema()
	n.rightSchema = n.Right.Schema()
	out := NewSchema()
	out.Columns = append(out.Columns, n.leftSchema.Columns...)
	out.Columns = append(out.Columns, n.rightSchema.Columns...)
	n.schema = out

	lc, rc := n.Left.Cost(), n.Right.Cost()
	n.cost = PlanCost{
		NumTuples:   lc.NumTuples * rc.NumTuples * 0.1,
		NumBlockIOs: lc.NumBlockIOs + lc.NumTuples*rc.NumBlockIOs,
		CPUCost:     lc.CPUCost + lc.NumTuples*rc.CPUCost,
	}
	return nil
}

func (n *NestedLoopJoinNode) Initialize() error {
	n.releaseInner()
	if err := n.Left.Initialize(); err != nil {
		return err
	}
	if err := n.Right.Initialize(); err != nil {
		return err
	}
	for {
		t, err := n.Right.GetNextTuple()
		if err != nil {
			return err
		}
		if t == nil {
			break
		}
		n.innerRows = append(n.innerRows, t)
	}
	n.innerMatched = make([]bool, len(n.innerRows))
	n.trailing = false
	n.trailingPos = 0
	n.leftExhausted = false
	return n.advanceOuter()
}

func (n *NestedLoopJoinNode) advanceOuter() error {
	if n.outer != nil {
		n.outer.Unpin()
		n.outer = nil
	}
	t, err := n.Left.GetNextTuple()
	if err != nil {
		return err
	}
	n.outer = t
	n.outerMatched = false
	n.innerPos = 0
	if t == nil {
		n.leftExhausted = true
	}
	return nil
}

func (n *NestedLoopJoinNode) releaseInner() {
	for _, t := range n.innerRows {
		t.Unpin()
	}
	n.innerRows = nil
	n.innerMatched = nil
}

func (n *NestedLoopJoinNode) evalOn(left, right *Tuple) (bool, error) {
	if n.On == nil {
		return true, nil
	}
	joined := NewLiteralTuple(n.schema, append(append([]Value{}, left.Values...), right.Values...))
	env := NewEnvironment(n.schema, joined)
	if n.env != nil {
		env.parent = n.env
	}
	v, err := n.On.Evaluate(env)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	return ok && b, nil
}

func (n *NestedLoopJoinNode) combine(left, right *Tuple) *Tuple {
	leftVals := left.Values
	rightVals := right.Values
	vals := make([]Value, 0, len(leftVals)+len(rightVals))
	vals = append(vals, leftVals...)
	vals = append(vals, rightVals...)
	return NewLiteralTuple(n.schema, vals)
}

func nullPaddedTuple(schema *Schema) *Tuple {
	vals := make([]Value, len(schema.Columns))
	return NewLiteralTuple(schema, vals)
}

func (n *NestedLoopJoinNode) GetNextTuple() (*Tuple, error) {
	if n.trailing {
		for n.trailingPos < len(n.innerRows) {
			idx := n.trailingPos
			n.trailingPos++
			if !n.innerMatched[idx] {
				return n.combine(nullPaddedTuple(n.leftSchema), n.innerRows[idx]), nil
			}
		}
		return nil, nil
	}

	for {
		if n.leftExhausted {
			if n.Kind == JoinRightOuter || n.Kind == JoinFullOuter {
				n.trailing = true
				return n.GetNextTuple()
			}
			return nil, nil
		}
		for n.innerPos < len(n.innerRows) {
			idx := n.innerPos
			n.innerPos++
			ok, err := n.evalOn(n.outer, n.innerRows[idx])
			if err != nil {
				return nil, err
			}
			if ok {
				n.outerMatched = true
				n.innerMatched[idx] = true
				return n.combine(n.outer, n.innerRows[idx]), nil
			}
		}
		emitUnmatchedLeft := !n.outerMatched && (n.Kind == JoinLeftOuter || n.Kind == JoinFullOuter)
		cur := n.outer
		matched := n.outerMatched
		if err := n.advanceOuter(); err != nil {
			return nil, err
		}
		if emitUnmatchedLeft && !matched {
			return n.combine(cur, nullPaddedTuple(n.rightSchema)), nil
		}
	}
}

func (n *NestedLoopJoinNode) MarkCurrentPosition() error {
	if err := n.Left.MarkCurrentPosition(); err != nil {
		return err
	}
	n.markOuter = n.outer
	n.markInnerPos = n.innerPos
	n.markTrailing = n.trailing
	n.markTrailPos = n.trailingPos
	return nil
}

func (n *NestedLoopJoinNode) ResetToLastMark() error {
	if err := n.Left.ResetToLastMark(); err != nil {
		return err
	}
	n.outer = n.markOuter
	n.innerPos = n.markInnerPos
	n.trailing = n.markTrailing
	n.trailingPos = n.markTrailPos
	n.leftExhausted = n.outer == nil && !n.trailing
	return nil
}

func (n *NestedLoopJoinNode) CleanUp() error {
	n.releaseInner()
	if n.outer != nil {
		n.outer.Unpin()
		n.outer = nil
	}
	if err := n.Left.CleanUp(); err != nil {
		return err
	}
	return n.Right.CleanUp()
}

func (n *NestedLoopJoinNode) AddParentEnvironmentToPlanTree(env *Environment) error {
	n.env = env
	if err := n.Left.AddParentEnvironmentToPlanTree(env); err != nil {
		return err
	}
	return n.Right.AddParentEnvironmentToPlanTree(env)
}

func (n *NestedLoopJoinNode) String() string { return "NestedLoopJoin" }

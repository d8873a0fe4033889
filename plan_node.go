package mindb

// PlanNode is the pull-based iterator every executable plan tree is
// built from, per spec.md §4.5. Grounded on no single teacher file (the
// source evaluates queries ad hoc); the protocol itself is specified
// directly from spec.md: prepare once per plan shape, initialize per
// execution, pull one tuple at a time, mark/reset for nested-loop joins
// that need to replay the inner side, clean up to release pins.
type PlanNode interface {
	// Prepare computes this node's output schema and cost/stats estimate,
	// recursing into children; called once before Initialize.
	Prepare() error

	// Initialize (re)starts iteration from the first tuple.
	Initialize() error

	// GetNextTuple returns the next output tuple, or (nil, nil) when
	// exhausted. The returned tuple pins whatever page(s) back it until
	// the caller unpins it or advances past it.
	GetNextTuple() (*Tuple, error)

	// MarkCurrentPosition records the position GetNextTuple is about to
	// return next, so ResetToLastMark can replay from there.
	MarkCurrentPosition() error
	ResetToLastMark() error

	// CleanUp releases any resources (pins, subplans) this node holds.
	CleanUp() error

	// Schema returns this node's output schema; valid only after Prepare.
	Schema() *Schema

	// Cost returns this node's estimated cost/stats; valid only after
	// Prepare.
	Cost() PlanCost

	// ResultsOrderedBy reports the ORDER BY keys the node's output is
	// already sorted by (nil when none are known). The planners do not
	// consult it; they add a SortNode for every ORDER BY.
	ResultsOrderedBy() []OrderItem

	// AddParentEnvironmentToPlanTree attaches env as the environment
	// chain's outer frame for every correlated subquery in this subtree,
	// per spec.md §4.4/§9 — called once, lazily, by SubqueryOp.Evaluate.
	AddParentEnvironmentToPlanTree(env *Environment) error

	String() string
}

// PlanCost is the cost/stats triple the planner propagates bottom-up and
// compares when choosing between alternative plans, per spec.md §4.6.
type PlanCost struct {
	NumTuples   float64
	NumBlockIOs float64
	CPUCost     float64
}

// Combined returns the single scalar the cost-based planner minimizes:
// CPU cost plus blockIOWeight times block I/Os, matching
// spec.md §4.6/§9's `cpuCost + c·numBlockIOs` formula.
func (c PlanCost) Combined(blockIOWeight float64) float64 {
	return c.CPUCost + blockIOWeight*c.NumBlockIOs
}

// basePlanNode factors the Schema/Cost/ResultsOrderedBy bookkeeping every
// concrete node shares, matching the teacher's habit of embedding a small
// struct for repeated fields rather than re-declaring them per type.
type basePlanNode struct {
	schema  *Schema
	cost    PlanCost
	ordered []OrderItem
}

func (b *basePlanNode) Schema() *Schema              { return b.schema }
func (b *basePlanNode) Cost() PlanCost                { return b.cost }
func (b *basePlanNode) ResultsOrderedBy() []OrderItem { return b.ordered }

// StatisticsUpdater estimates a comparison predicate's selectivity from
// column NDV (number of distinct values) statistics, per spec.md §9's
// resolved open question: `=` uses 1/NDV (falling back to 1/10 when NDV
// is unknown), `<`/`<=`/`>`/`>=` use 1/3, `<>` uses 1-1/NDV.
type StatisticsUpdater struct{}

// Selectivity returns the fraction of rows a CompareExpr is expected to
// pass, given ndv (pass 0 when the column's distinct-value count is
// unknown).
func (StatisticsUpdater) Selectivity(op CompareOp, ndv int) float64 {
	if ndv <= 0 {
		ndv = 10
	}
	switch op {
	case OpEQ:
		return 1.0 / float64(ndv)
	case OpNE:
		return 1.0 - 1.0/float64(ndv)
	case OpLT, OpLE, OpGT, OpGE:
		return 1.0 / 3.0
	case OpIsNull, OpIsNotNull:
		return 1.0 / 3.0
	default:
		return 1.0
	}
}

// EstimateFilterSelectivity inspects pred for the common "column op
// literal" shape and looks up the column's NDV from child's stats (when
// child is a scan node exposing one); anything else falls back to a flat
// 1/3 estimate, matching the teacher's habit of a conservative default
// over a half-derived one.
func EstimateFilterSelectivity(pred Expression, schema *Schema, child PlanNode) float64 {
	cmp, ok := pred.(*CompareExpr)
	if !ok || cmp.Right == nil {
		return 0.33
	}
	col, ok := cmp.Left.(*ColumnExpr)
	if !ok {
		col, ok = cmp.Right.(*ColumnExpr)
		if !ok {
			return 0.33
		}
	}
	idx := schema.ColumnIndex(col.Table, col.Column)
	if idx < 0 {
		return 0.33
	}
	ndv := ndvForColumn(child, idx)
	return StatisticsUpdater{}.Selectivity(cmp.Op, ndv)
}

func ndvForColumn(node PlanNode, idx int) int {
	switch scan := node.(type) {
	case *FileScanNode:
		return scan.File.Stats().NumDistinctByColumn[idx]
	case *IndexScanNode:
		return fileStatsOf(scan).NumDistinctByColumn[idx]
	default:
		return 0
	}
}

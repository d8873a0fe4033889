package mindb

// TableFunction is the Go-side contract a table-valued function
// implements; spec.md explicitly excludes the bodies of such functions
// from scope, so this package supplies only the interface and the
// driving plan node, not any concrete function.
type TableFunction interface {
	Schema() *Schema
	Open(args []Value) (TableFunctionCursor, error)
}

// TableFunctionCursor iterates the rows a TableFunction call produces.
type TableFunctionCursor interface {
	Next() ([]Value, error)
	Close() error
}

// TableFunctionScanNode evaluates Args once per Initialize (against any
// outer-query environment bound via AddParentEnvironmentToPlanTree, so a
// correlated call like a per-row function argument works) and pulls rows
// from the resulting cursor, per spec.md §4.5.
type TableFunctionScanNode struct {
	basePlanNode
	Func Args
	env  *Environment

	cursor TableFunctionCursor
}

// Args bundles a TableFunction with its (possibly correlated) argument
// expressions.
type Args struct {
	Function TableFunction
	Exprs    []Expression
}

func NewTableFunctionScanNode(fn TableFunction, argExprs []Expression) *TableFunctionScanNode {
	return &TableFunctionScanNode{Func: Args{Function: fn, Exprs: argExprs}}
}

func (n *TableFunctionScanNode) Prepare() error {
	n.schema = n.Func.Function.Schema()
	n.cost = PlanCost{NumTuples: 100, NumBlockIOs: 1, CPUCost: 100}
	return nil
}

func (n *TableFunctionScanNode) Initialize() error {
	if n.cursor != nil {
		n.cursor.Close()
		n.cursor = nil
	}
	args := make([]Value, len(n.Func.Exprs))
	for i, e := range n.Func.Exprs {
		v, err := e.Evaluate(n.env)
		if err != nil {
			return err
		}
		args[i] = v
	}
	cur, err := n.Func.Function.Open(args)
	if err != nil {
		return err
	}
	n.cursor = cur
	return nil
}

func (n *TableFunctionScanNode) GetNextTuple() (*Tuple, error) {
	values, err := n.cursor.Next()
	if err != nil {
		return nil, err
	}
	if values == nil {
		return nil, nil
	}
	return NewLiteralTuple(n.schema, values), nil
}

func (n *TableFunctionScanNode) MarkCurrentPosition() error {
	return NewError(KindExecution, "table function results cannot be marked/reset")
}
func (n *TableFunctionScanNode) ResetToLastMark() error {
	return NewError(KindExecution, "table function results cannot be marked/reset")
}

func (n *TableFunctionScanNode) CleanUp() error {
	if n.cursor != nil {
		err := n.cursor.Close()
		n.cursor = nil
		return err
	}
	return nil
}

func (n *TableFunctionScanNode) AddParentEnvironmentToPlanTree(env *Environment) error {
	n.env = env
	return nil
}

func (n *TableFunctionScanNode) String() string { return "TableFunctionScan" }

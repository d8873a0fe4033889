package mindb

import "fmt"

// Expression is the tagged-variant-plus-behavior-trait spec.md §9
// prescribes in place of the source's deep expression-class hierarchy:
// each concrete type below implements this small interface.
type Expression interface {
	Evaluate(env *Environment) (Value, error)
	// Traverse calls visit on every child first (post-order "leave"
	// behavior is the caller's responsibility via the returned
	// replacement), then on this node, returning a possibly-substituted
	// expression as spec.md §4.4 requires of every expression's
	// enter/leave visitor contract.
	Traverse(visit Visitor) (Expression, error)
	String() string
}

// Visitor is called once per node during a Traverse walk. Returning a
// non-nil replacement substitutes that node; returning nil keeps the
// original (after its children have already been substituted).
type Visitor func(Expression) (Expression, error)

// ArithOp enumerates spec.md §4.4's binary arithmetic operators.
type ArithOp int

const (
	OpAdd ArithOp = iota
	OpSubtract
	OpMultiply
	OpDivide
	OpRemainder
	OpPower
)

// CompareOp enumerates spec.md §4.4's comparison operators.
type CompareOp int

const (
	OpEQ CompareOp = iota
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
	OpIsNull
	OpIsNotNull
)

// BoolOp enumerates the n-ary boolean connectives.
type BoolOp int

const (
	OpAnd BoolOp = iota
	OpOr
	OpNot
)

// LiteralExpr wraps a constant value.
type LiteralExpr struct{ Value Value }

func (e *LiteralExpr) Evaluate(*Environment) (Value, error) { return e.Value, nil }
func (e *LiteralExpr) Traverse(visit Visitor) (Expression, error) { return visitLeaf(e, visit) }
func (e *LiteralExpr) String() string { return fmt.Sprintf("%v", e.Value) }

// ColumnExpr references a (optional table-qualified) column, or "*"/
// "table.*" for wildcards (resolved by the planner before evaluation;
// Evaluate on a wildcard is a planner bug, not a runtime case).
type ColumnExpr struct {
	Table    string
	Column   string
	Wildcard bool
}

func (e *ColumnExpr) Evaluate(env *Environment) (Value, error) {
	if e.Wildcard {
		return nil, NewError(KindExpression, "cannot evaluate wildcard column reference")
	}
	v, ok := env.Lookup(e.Table, e.Column)
	if !ok {
		return nil, NewError(KindExpression, "unresolved column reference %s", e.String())
	}
	return v, nil
}
func (e *ColumnExpr) Traverse(visit Visitor) (Expression, error) { return visitLeaf(e, visit) }
func (e *ColumnExpr) String() string {
	if e.Wildcard {
		if e.Table != "" {
			return e.Table + ".*"
		}
		return "*"
	}
	if e.Table != "" {
		return e.Table + "." + e.Column
	}
	return e.Column
}

// ArithExpr is a binary arithmetic expression with type-promotion rules
// per spec.md §4.4.
type ArithExpr struct {
	Op          ArithOp
	Left, Right Expression
}

func (e *ArithExpr) Evaluate(env *Environment) (Value, error) {
	l, err := e.Left.Evaluate(env)
	if err != nil {
		return nil, err
	}
	r, err := e.Right.Evaluate(env)
	if err != nil {
		return nil, err
	}
	return evalArith(e.Op, l, r)
}
func (e *ArithExpr) Traverse(visit Visitor) (Expression, error) {
	return visitBinary(e, e.Left, e.Right, visit, func(l, r Expression) Expression {
		return &ArithExpr{Op: e.Op, Left: l, Right: r}
	})
}
func (e *ArithExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left.String(), arithOpSymbol(e.Op), e.Right.String())
}

func arithOpSymbol(op ArithOp) string {
	switch op {
	case OpAdd:
		return "+"
	case OpSubtract:
		return "-"
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	case OpRemainder:
		return "%"
	case OpPower:
		return "^"
	default:
		return "?"
	}
}

// NegateExpr is unary arithmetic negation.
type NegateExpr struct{ Operand Expression }

func (e *NegateExpr) Evaluate(env *Environment) (Value, error) {
	v, err := e.Operand.Evaluate(env)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return negateNumeric(v)
}
func (e *NegateExpr) Traverse(visit Visitor) (Expression, error) {
	child, err := e.Operand.Traverse(visit)
	if err != nil {
		return nil, err
	}
	return visitSelf(&NegateExpr{Operand: child}, visit)
}
func (e *NegateExpr) String() string { return "-" + e.Operand.String() }

// CompareExpr is a binary comparison, or a unary IS [NOT] NULL test when
// Op is OpIsNull/OpIsNotNull (Right is nil in that case).
type CompareExpr struct {
	Op          CompareOp
	Left, Right Expression
}

func (e *CompareExpr) Evaluate(env *Environment) (Value, error) {
	l, err := e.Left.Evaluate(env)
	if err != nil {
		return nil, err
	}
	if e.Op == OpIsNull {
		return l == nil, nil
	}
	if e.Op == OpIsNotNull {
		return l != nil, nil
	}
	r, err := e.Right.Evaluate(env)
	if err != nil {
		return nil, err
	}
	return evalCompare(e.Op, l, r)
}
func (e *CompareExpr) Traverse(visit Visitor) (Expression, error) {
	if e.Right == nil {
		child, err := e.Left.Traverse(visit)
		if err != nil {
			return nil, err
		}
		return visitSelf(&CompareExpr{Op: e.Op, Left: child}, visit)
	}
	return visitBinary(e, e.Left, e.Right, visit, func(l, r Expression) Expression {
		return &CompareExpr{Op: e.Op, Left: l, Right: r}
	})
}
func (e *CompareExpr) String() string {
	if e.Right == nil {
		return fmt.Sprintf("(%s %s)", e.Left.String(), compareOpSymbol(e.Op))
	}
	return fmt.Sprintf("(%s %s %s)", e.Left.String(), compareOpSymbol(e.Op), e.Right.String())
}

func compareOpSymbol(op CompareOp) string {
	switch op {
	case OpEQ:
		return "="
	case OpNE:
		return "<>"
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	default:
		return "?"
	}
}

// BoolExpr is an n-ary AND/OR, or unary NOT (single Operand).
type BoolExpr struct {
	Op       BoolOp
	Operands []Expression
}

func (e *BoolExpr) Evaluate(env *Environment) (Value, error) {
	switch e.Op {
	case OpNot:
		v, err := e.Operands[0].Evaluate(env)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
		b, ok := v.(bool)
		if !ok {
			return nil, NewError(KindTypeCast, "NOT requires boolean operand, got %T", v)
		}
		return !b, nil
	case OpAnd:
		return evalAndOr(env, e.Operands, true)
	case OpOr:
		return evalAndOr(env, e.Operands, false)
	}
	return nil, NewError(KindExpression, "unrecognized boolean operator")
}

// evalAndOr implements SQL three-valued AND/OR short-circuiting: for AND,
// a false operand makes the whole expression false even if another
// operand is null; for OR, a true operand makes it true even amid nulls.
func evalAndOr(env *Environment, operands []Expression, isAnd bool) (Value, error) {
	sawNull := false
	for _, op := range operands {
		v, err := op.Evaluate(env)
		if err != nil {
			return nil, err
		}
		if v == nil {
			sawNull = true
			continue
		}
		b, ok := v.(bool)
		if !ok {
			return nil, NewError(KindTypeCast, "AND/OR requires boolean operands, got %T", v)
		}
		if isAnd && !b {
			return false, nil
		}
		if !isAnd && b {
			return true, nil
		}
	}
	if sawNull {
		return nil, nil
	}
	return isAnd, nil
}

func (e *BoolExpr) Traverse(visit Visitor) (Expression, error) {
	newOperands := make([]Expression, len(e.Operands))
	for i, op := range e.Operands {
		child, err := op.Traverse(visit)
		if err != nil {
			return nil, err
		}
		newOperands[i] = child
	}
	return visitSelf(&BoolExpr{Op: e.Op, Operands: newOperands}, visit)
}
func (e *BoolExpr) String() string {
	if e.Op == OpNot {
		return "NOT " + e.Operands[0].String()
	}
	sep := " AND "
	if e.Op == OpOr {
		sep = " OR "
	}
	s := ""
	for i, op := range e.Operands {
		if i > 0 {
			s += sep
		}
		s += op.String()
	}
	return "(" + s + ")"
}

// InExpr is `expr IN (list)`.
type InExpr struct {
	Operand Expression
	List    []Expression
}

func (e *InExpr) Evaluate(env *Environment) (Value, error) {
	lv, err := e.Operand.Evaluate(env)
	if err != nil {
		return nil, err
	}
	sawNull := lv == nil
	for _, item := range e.List {
		rv, err := item.Evaluate(env)
		if err != nil {
			return nil, err
		}
		if rv == nil {
			sawNull = true
			continue
		}
		if lv == nil {
			continue
		}
		eq, err := evalCompare(OpEQ, lv, rv)
		if err != nil {
			return nil, err
		}
		if b, _ := eq.(bool); b {
			return true, nil
		}
	}
	if sawNull {
		return nil, nil
	}
	return false, nil
}
func (e *InExpr) Traverse(visit Visitor) (Expression, error) {
	operand, err := e.Operand.Traverse(visit)
	if err != nil {
		return nil, err
	}
	list := make([]Expression, len(e.List))
	for i, item := range e.List {
		c, err := item.Traverse(visit)
		if err != nil {
			return nil, err
		}
		list[i] = c
	}
	return visitSelf(&InExpr{Operand: operand, List: list}, visit)
}
func (e *InExpr) String() string {
	s := e.Operand.String() + " IN ("
	for i, item := range e.List {
		if i > 0 {
			s += ", "
		}
		s += item.String()
	}
	return s + ")"
}

// SubqueryOp is one of `IN (subquery)`, `EXISTS (subquery)`, or a scalar
// subquery, carrying the parsed SelectClause AST and, once the subquery
// planning processor has run, the resulting PlanNode (spec.md §4.4).
type SubqueryOp struct {
	Kind     SubqueryKind
	Operand  Expression // nil for EXISTS
	Select   *SelectClause
	Plan     PlanNode
	ParentEnv *Environment
}

// SubqueryKind distinguishes the three subquery-operator flavors.
type SubqueryKind int

const (
	SubqueryScalar SubqueryKind = iota
	SubqueryIn
	SubqueryExists
)

func (e *SubqueryOp) Evaluate(env *Environment) (Value, error) {
	if e.Plan == nil {
		return nil, NewError(KindExpression, "subquery was never planned")
	}
	if e.ParentEnv == nil {
		e.Plan.AddParentEnvironmentToPlanTree(env)
		e.ParentEnv = env
	}
	if err := e.Plan.Initialize(); err != nil {
		return nil, err
	}
	defer e.Plan.CleanUp()

	switch e.Kind {
	case SubqueryExists:
		t, err := e.Plan.GetNextTuple()
		if err != nil {
			return nil, err
		}
		return t != nil, nil
	case SubqueryIn:
		lv, err := e.Operand.Evaluate(env)
		if err != nil {
			return nil, err
		}
		sawNull := lv == nil
		for {
			t, err := e.Plan.GetNextTuple()
			if err != nil {
				return nil, err
			}
			if t == nil {
				break
			}
			rv := t.Get(0)
			t.Unpin()
			if rv == nil {
				sawNull = true
				continue
			}
			if lv == nil {
				continue
			}
			eq, err := evalCompare(OpEQ, lv, rv)
			if err != nil {
				return nil, err
			}
			if b, _ := eq.(bool); b {
				return true, nil
			}
		}
		if sawNull {
			return nil, nil
		}
		return false, nil
	default: // scalar subquery
		t, err := e.Plan.GetNextTuple()
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, nil
		}
		v := t.Get(0)
		t.Unpin()
		return v, nil
	}
}
func (e *SubqueryOp) Traverse(visit Visitor) (Expression, error) { return visitSelf(e, visit) }
func (e *SubqueryOp) String() string {
	switch e.Kind {
	case SubqueryExists:
		return "EXISTS (subquery)"
	case SubqueryIn:
		return e.Operand.String() + " IN (subquery)"
	default:
		return "(subquery)"
	}
}

// FuncKind tells the planner/aggregation-extraction processor whether a
// FuncCallExpr is scalar, aggregate, or table-valued.
type FuncKind int

const (
	FuncScalar FuncKind = iota
	FuncAggregate
	FuncTable
)

// FuncCallExpr is a scalar, aggregate, or table function call.
type FuncCallExpr struct {
	Kind FuncKind
	Name string
	Args []Expression
	// Distinct applies to aggregates like COUNT(DISTINCT x).
	Distinct bool
}

func (e *FuncCallExpr) Evaluate(env *Environment) (Value, error) {
	if e.Kind == FuncAggregate {
		return nil, NewError(KindExpression, "aggregate %s must be extracted before evaluation", e.Name)
	}
	args := make([]Value, len(e.Args))
	for i, a := range e.Args {
		v, err := a.Evaluate(env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return callScalarFunction(e.Name, args)
}
func (e *FuncCallExpr) Traverse(visit Visitor) (Expression, error) {
	args := make([]Expression, len(e.Args))
	for i, a := range e.Args {
		c, err := a.Traverse(visit)
		if err != nil {
			return nil, err
		}
		args[i] = c
	}
	return visitSelf(&FuncCallExpr{Kind: e.Kind, Name: e.Name, Args: args, Distinct: e.Distinct}, visit)
}
func (e *FuncCallExpr) String() string {
	s := e.Name + "("
	if e.Distinct {
		s += "DISTINCT "
	}
	for i, a := range e.Args {
		if i > 0 {
			s += ", "
		}
		s += a.String()
	}
	return s + ")"
}

// CaseExpr implements CASE WHEN ... THEN ... ELSE ... END.
type CaseExpr struct {
	Whens []CaseWhen
	Else  Expression // nil for no ELSE (-> NULL)
}

// CaseWhen is one WHEN/THEN arm of a CaseExpr.
type CaseWhen struct {
	When Expression
	Then Expression
}

func (e *CaseExpr) Evaluate(env *Environment) (Value, error) {
	for _, w := range e.Whens {
		cond, err := w.When.Evaluate(env)
		if err != nil {
			return nil, err
		}
		if b, ok := cond.(bool); ok && b {
			return w.Then.Evaluate(env)
		}
	}
	if e.Else != nil {
		return e.Else.Evaluate(env)
	}
	return nil, nil
}
func (e *CaseExpr) Traverse(visit Visitor) (Expression, error) {
	whens := make([]CaseWhen, len(e.Whens))
	for i, w := range e.Whens {
		when, err := w.When.Traverse(visit)
		if err != nil {
			return nil, err
		}
		then, err := w.Then.Traverse(visit)
		if err != nil {
			return nil, err
		}
		whens[i] = CaseWhen{When: when, Then: then}
	}
	var elseExpr Expression
	if e.Else != nil {
		c, err := e.Else.Traverse(visit)
		if err != nil {
			return nil, err
		}
		elseExpr = c
	}
	return visitSelf(&CaseExpr{Whens: whens, Else: elseExpr}, visit)
}
func (e *CaseExpr) String() string { return "CASE ... END" }

// CoalesceExpr returns the first non-null argument.
type CoalesceExpr struct{ Args []Expression }

func (e *CoalesceExpr) Evaluate(env *Environment) (Value, error) {
	for _, a := range e.Args {
		v, err := a.Evaluate(env)
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v, nil
		}
	}
	return nil, nil
}
func (e *CoalesceExpr) Traverse(visit Visitor) (Expression, error) {
	args := make([]Expression, len(e.Args))
	for i, a := range e.Args {
		c, err := a.Traverse(visit)
		if err != nil {
			return nil, err
		}
		args[i] = c
	}
	return visitSelf(&CoalesceExpr{Args: args}, visit)
}
func (e *CoalesceExpr) String() string { return "COALESCE(...)" }

// visitLeaf runs visit on a node with no children.
func visitLeaf(e Expression, visit Visitor) (Expression, error) {
	replacement, err := visit(e)
	if err != nil {
		return nil, err
	}
	if replacement != nil {
		return replacement, nil
	}
	return e, nil
}

// visitSelf runs visit on e after its children have already been
// rewritten into e.
func visitSelf(e Expression, visit Visitor) (Expression, error) {
	replacement, err := visit(e)
	if err != nil {
		return nil, err
	}
	if replacement != nil {
		return replacement, nil
	}
	return e, nil
}

func visitBinary(self Expression, left, right Expression, visit Visitor, rebuild func(l, r Expression) Expression) (Expression, error) {
	l, err := left.Traverse(visit)
	if err != nil {
		return nil, err
	}
	r, err := right.Traverse(visit)
	if err != nil {
		return nil, err
	}
	return visitSelf(rebuild(l, r), visit)
}

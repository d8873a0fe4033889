package mindb

// PartialCompareMode controls how CompareValueLists treats two value
// lists of different lengths — needed when comparing a join/group key
// prefix against a full tuple rather than two same-shaped rows.
type PartialCompareMode int

const (
	// ExactLength requires both lists have the same length; a mismatch is
	// an error rather than a silent truncation.
	ExactLength PartialCompareMode = iota
	// IgnoreLength compares only the first min(len(a),len(b)) entries.
	IgnoreLength
	// ShorterIsLess compares the shared prefix like IgnoreLength, but if
	// that prefix ties, the shorter list sorts first.
	ShorterIsLess
)

// CompareValueLists orders two value slices entry by entry using
// CompareScalars, with SQL NULL-ordering: null sorts before any non-null
// value regardless of comparison direction (callers negate the result
// for DESC keys). Grounded on no single teacher file (the source never
// needed a general multi-key comparator); built directly from spec.md
// §4.5/§4.6's ORDER BY and GROUP BY key-comparison requirements.
func CompareValueLists(a, b []Value, mode PartialCompareMode) (int, error) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if mode == ExactLength && len(a) != len(b) {
		return 0, NewError(KindExpression, "comparator: mismatched arity %d vs %d", len(a), len(b))
	}
	for i := 0; i < n; i++ {
		c, err := compareNullable(a[i], b[i])
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return c, nil
		}
	}
	if mode == ShorterIsLess {
		switch {
		case len(a) < len(b):
			return -1, nil
		case len(a) > len(b):
			return 1, nil
		}
	}
	return 0, nil
}

func compareNullable(a, b Value) (int, error) {
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil:
		return -1, nil
	case b == nil:
		return 1, nil
	}
	return CompareScalars(a, b)
}

// TupleComparator orders tuples by a list of (expression, descending)
// keys, evaluated fresh per comparison — used by SortNode.
type TupleComparator struct {
	Keys []OrderItem
}

// Compare returns <0, 0, or >0 as t1 sorts before, equal to, or after t2.
func (tc *TupleComparator) Compare(t1, t2 *Tuple) (int, error) {
	for _, key := range tc.Keys {
		env1 := NewEnvironment(t1.Schema, t1)
		env2 := NewEnvironment(t2.Schema, t2)
		v1, err := key.Expr.Evaluate(env1)
		if err != nil {
			return 0, err
		}
		v2, err := key.Expr.Evaluate(env2)
		if err != nil {
			return 0, err
		}
		c, err := compareNullable(v1, v2)
		if err != nil {
			return 0, err
		}
		if key.Desc {
			c = -c
		}
		if c != 0 {
			return c, nil
		}
	}
	return 0, nil
}

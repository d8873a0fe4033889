package mindb

// Environment is a linked chain of (schema, tuple) bindings used during
// expression evaluation, per spec.md §3/§4.4/§9. A child environment
// consults its own binding first and delegates to its parent on lookup
// miss — this is the whole mechanism correlated subqueries use to reach
// outer columns; there is no dynamic runtime binding beyond walking this
// chain.
type Environment struct {
	schema *Schema
	tuple  *Tuple
	parent *Environment
}

// NewEnvironment creates a root environment bound to (schema, tuple).
func NewEnvironment(schema *Schema, tuple *Tuple) *Environment {
	return &Environment{schema: schema, tuple: tuple}
}

// Child creates a new frame in front of env, used when a plan node
// attaches its parent's environment at plan-construction time
// (AddParentEnvironmentToPlanTree).
func (env *Environment) Child(schema *Schema, tuple *Tuple) *Environment {
	return &Environment{schema: schema, tuple: tuple, parent: env}
}

// Lookup resolves (table, column) by consulting this frame then walking
// outward through parents.
func (env *Environment) Lookup(table, column string) (Value, bool) {
	for e := env; e != nil; e = e.parent {
		if e.schema == nil || e.tuple == nil {
			continue
		}
		if idx := e.schema.ColumnIndex(table, column); idx >= 0 {
			return e.tuple.Get(idx), true
		}
	}
	return nil, false
}

// Tuple returns this frame's bound tuple (not walking to parents).
func (env *Environment) Tuple() *Tuple { return env.tuple }

// Schema returns this frame's bound schema (not walking to parents).
func (env *Environment) Schema() *Schema { return env.schema }

// Parent returns the enclosing environment, or nil at the root.
func (env *Environment) Parent() *Environment { return env.parent }

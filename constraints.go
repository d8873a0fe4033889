package mindb

import "github.com/rs/zerolog/log"

// RowMutator is the nested-DML callback the constraint enforcer issues
// CASCADE/SET_NULL propagation through, implemented by command.go. Kept
// as a narrow interface (rather than a direct command.go import) so
// constraints.go has no dependency on the command-dispatch layer, only
// on the planner/catalog it already needs for EXISTS checks.
type RowMutator interface {
	ExecuteUpdate(table string, sets map[int]Value, predicate Expression) (int, error)
	ExecuteDelete(table string, predicate Expression) (int, error)
}

// ConstraintEnforcer is the row-event listener spec.md §4.7 describes:
// registered on insert/update/delete, it validates NOT NULL/candidate-key/
// foreign-key constraints via internal EXISTS subquery plans (so indexes
// are exploited transparently) and propagates CASCADE/SET_NULL through
// RowMutator.
//
// Grounded on teacher's src/core/constraints.go (ConstraintValidator's
// NOT-NULL/uniqueness/FK validation structure), generalized from direct
// row-map/B-tree checks into the planner-driven EXISTS-subquery design
// spec.md §4.7 requires, and extended from "insert-only" validation to
// the full before-insert/before-update/before-delete/cascade lifecycle.
type ConstraintEnforcer struct {
	catalog *SystemCatalog
	tm      *TableManager
	sess    *SessionHandle
	mutator RowMutator
}

// NewConstraintEnforcer builds an enforcer bound to catalog/tm/sess.
// SetMutator must be called once command.go constructs the dispatcher,
// before any CASCADE/SET_NULL-triggering DML runs.
func NewConstraintEnforcer(catalog *SystemCatalog, tm *TableManager, sess *SessionHandle) *ConstraintEnforcer {
	return &ConstraintEnforcer{catalog: catalog, tm: tm, sess: sess}
}

func (ce *ConstraintEnforcer) SetMutator(m RowMutator) { ce.mutator = m }

// BeforeInsert validates NOT NULL, candidate keys, and foreign keys for
// a row about to be inserted into table.
func (ce *ConstraintEnforcer) BeforeInsert(table string, schema *Schema, values []Value) error {
	if err := ce.checkNotNull(schema, values); err != nil {
		return err
	}
	if err := ce.checkCandidateKeys(table, schema, values, nil); err != nil {
		return err
	}
	return ce.checkForeignKeys(schema, values)
}

// BeforeUpdate validates the same constraints for a row's new values
// (excluding its own current pointer from candidate-key uniqueness
// checks) before an UPDATE is applied, and propagates the change to
// dependent tables when one of its candidate-key columns is changing.
func (ce *ConstraintEnforcer) BeforeUpdate(table string, schema *Schema, oldValues, newValues []Value, self FilePointer) error {
	if err := ce.checkNotNull(schema, newValues); err != nil {
		return err
	}
	if err := ce.checkCandidateKeys(table, schema, newValues, &self); err != nil {
		return err
	}
	if err := ce.checkForeignKeys(schema, newValues); err != nil {
		return err
	}
	return ce.propagateKeyChange(table, schema, oldValues, newValues)
}

// BeforeDelete enforces RESTRICT/CASCADE/SET_NULL on every table
// referencing table before a row is deleted.
func (ce *ConstraintEnforcer) BeforeDelete(table string, schema *Schema, oldValues []Value) error {
	return ce.propagateDelete(table, schema, oldValues)
}

func (ce *ConstraintEnforcer) checkNotNull(schema *Schema, values []Value) error {
	for idx := range schema.NotNull {
		if idx < len(values) && values[idx] == nil {
			return NewError(KindConstraintViolation, "column %s cannot be null", schema.Columns[idx].Name)
		}
	}
	return nil
}

func (ce *ConstraintEnforcer) checkCandidateKeys(table string, schema *Schema, values []Value, exclude *FilePointer) error {
	for _, ck := range schema.CandidateKeys {
		anyNull := false
		pred := Expression(nil)
		for _, colIdx := range ck.Columns {
			v := values[colIdx]
			if v == nil {
				anyNull = true
				break
			}
			eq := &CompareExpr{Op: OpEQ, Left: &ColumnExpr{Column: schema.Columns[colIdx].Name}, Right: &LiteralExpr{Value: v}}
			if pred == nil {
				pred = eq
			} else {
				pred = &BoolExpr{Op: OpAnd, Operands: []Expression{pred, eq}}
			}
		}
		if anyNull {
			continue // a null key column never collides, SQL's usual candidate-key null handling
		}
		exists, hitPtr, err := ce.existsWithPointer(table, pred)
		if err != nil {
			return err
		}
		if exists && (exclude == nil || hitPtr != *exclude) {
			kind := "UNIQUE"
			if ck.IsPrimary {
				kind = "PRIMARY KEY"
			}
			return NewError(KindConstraintViolation, "%s constraint %q violated on table %s", kind, ck.Name, table)
		}
	}
	return nil
}

func (ce *ConstraintEnforcer) checkForeignKeys(schema *Schema, values []Value) error {
	for _, fk := range schema.ForeignKeys {
		anyNull := false
		for _, colIdx := range fk.LocalColumns {
			if values[colIdx] == nil {
				anyNull = true
				break
			}
		}
		if anyNull {
			continue
		}
		refSchema, err := ce.catalog.Schema(fk.RefTable)
		if err != nil {
			return err
		}
		var pred Expression
		for i, colIdx := range fk.LocalColumns {
			refCol := refSchema.Columns[fk.RefColumns[i]].Name
			eq := &CompareExpr{Op: OpEQ, Left: &ColumnExpr{Column: refCol}, Right: &LiteralExpr{Value: values[colIdx]}}
			if pred == nil {
				pred = eq
			} else {
				pred = &BoolExpr{Op: OpAnd, Operands: []Expression{pred, eq}}
			}
		}
		exists, _, err := ce.existsWithPointer(fk.RefTable, pred)
		if err != nil {
			return err
		}
		if !exists {
			return NewError(KindConstraintViolation, "foreign key violation: referenced row does not exist in %s", fk.RefTable)
		}
	}
	return nil
}

// propagateDelete applies RESTRICT/CASCADE/SET_NULL to every table whose
// FK points at table, for the row identified by oldValues, recursing
// through nested DML (bounded only by the schema graph's depth, per
// spec.md §4.7's documented no-cycle-detection caveat).
func (ce *ConstraintEnforcer) propagateDelete(table string, schema *Schema, oldValues []Value) error {
	for _, childName := range ce.catalog.ReferencingTables(table) {
		childSchema, err := ce.catalog.Schema(childName)
		if err != nil {
			return err
		}
		for _, fk := range childSchema.ForeignKeys {
			if fk.RefTable != table {
				continue
			}
			pred, ok := fkMatchPredicate(childSchema, fk, oldValues)
			if !ok {
				continue
			}
			switch fk.OnDelete {
			case Restrict:
				exists, _, err := ce.existsWithPointer(childName, pred)
				if err != nil {
					return err
				}
				if exists {
					return NewError(KindConstraintViolation, "cannot delete from %s: referenced by %s", table, childName)
				}
			case Cascade:
				log.Info().Str("table", childName).Msg("constraints: cascading delete")
				if ce.mutator == nil {
					return NewError(KindExecution, "constraint enforcer has no mutator bound for CASCADE")
				}
				if _, err := ce.mutator.ExecuteDelete(childName, pred); err != nil {
					return err
				}
			case SetNull:
				sets := map[int]Value{}
				for _, colIdx := range fk.LocalColumns {
					sets[colIdx] = nil
				}
				if ce.mutator == nil {
					return NewError(KindExecution, "constraint enforcer has no mutator bound for SET NULL")
				}
				if _, err := ce.mutator.ExecuteUpdate(childName, sets, pred); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// propagateKeyChange re-runs propagateDelete's RESTRICT/CASCADE/SET_NULL
// logic when an UPDATE changes any column a candidate key covers,
// matching spec.md §4.7's "before-update" cascade hook (ON UPDATE is
// handled the same way ON DELETE is, just triggered by a changing key
// rather than a vanishing row).
func (ce *ConstraintEnforcer) propagateKeyChange(table string, schema *Schema, oldValues, newValues []Value) error {
	for _, ck := range schema.CandidateKeys {
		changed := false
		for _, idx := range ck.Columns {
			if !valuesEqual(oldValues[idx], newValues[idx]) {
				changed = true
				break
			}
		}
		if !changed {
			continue
		}
		return ce.propagateDelete(table, schema, oldValues)
	}
	return nil
}

func valuesEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	c, err := CompareScalars(a, b)
	return err == nil && c == 0
}

// fkMatchPredicate builds the "child row's FK columns equal this parent
// row's key values" predicate against childSchema (fk.LocalColumns index
// into it; fk.RefColumns index into the parent row parentValues was read
// from), or ok=false if any referenced value is null (a null key can't
// be the target of an FK match).
func fkMatchPredicate(childSchema *Schema, fk ForeignKey, parentValues []Value) (Expression, bool) {
	var pred Expression
	for i, refIdx := range fk.RefColumns {
		v := parentValues[refIdx]
		if v == nil {
			return nil, false
		}
		localName := childSchema.Columns[fk.LocalColumns[i]].Name
		eq := &CompareExpr{Op: OpEQ, Left: &ColumnExpr{Column: localName}, Right: &LiteralExpr{Value: v}}
		if pred == nil {
			pred = eq
		} else {
			pred = &BoolExpr{Op: OpAnd, Operands: []Expression{pred, eq}}
		}
	}
	return pred, true
}

// existsWithPointer runs an EXISTS-shaped plan against table and returns
// the first matching row's FilePointer. The projection lists every real
// column by name (rather than a literal or a wildcard) so the simple
// planner recognizes it as trivial and elides the Project node — the
// only way the returned tuple keeps its FilePointer, which the
// uniqueness-excluding-self check needs.
func (ce *ConstraintEnforcer) existsWithPointer(table string, pred Expression) (bool, FilePointer, error) {
	schema, err := ce.catalog.Schema(table)
	if err != nil {
		return false, FilePointer{}, err
	}
	items := make([]SelectItem, len(schema.Columns))
	for i, col := range schema.Columns {
		items[i] = SelectItem{Expr: &ColumnExpr{Column: col.Name}}
	}
	sel := &SelectClause{
		SelectItems: items,
		FromClause:  []FromItem{{TableName: table}},
		WhereClause: pred,
	}
	plan, err := MakeSimplePlan(sel, ce.tm, ce.sess)
	if err != nil {
		return false, FilePointer{}, err
	}
	if err := plan.Initialize(); err != nil {
		return false, FilePointer{}, err
	}
	defer plan.CleanUp()
	t, err := plan.GetNextTuple()
	if err != nil {
		return false, FilePointer{}, err
	}
	if t == nil {
		return false, FilePointer{}, nil
	}
	ptr := t.Pointer
	t.Unpin()
	return true, ptr, nil
}

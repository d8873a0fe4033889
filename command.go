package mindb

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
)

// Engine is the top-level façade each command binds a parsed Statement
// to: catalog for DDL, planner + constraint enforcer for DML, plan tree
// for SELECT, per spec.md §4.8. Grounded on teacher's engine_adapter.go
// (EngineAdapter.Execute's switch-over-statement-type dispatch),
// generalized to drive the plan tree and constraint enforcer instead of
// mutating a PagedTable map directly.
type Engine struct {
	Config  *Config
	fm      *FileManager
	bufMgr  *BufferManager
	catalog *SystemCatalog
	tm      *TableManager
	idxMgr  *IndexManager
	wal     *WALManager
	enforce *ConstraintEnforcer
	sess    *SessionHandle
}

// NewEngine opens (or creates) a database directory per cfg and wires
// every layer together, matching the teacher's NewPagedEngineWithWAL
// bring-up sequence (file manager, then buffer manager + WAL observer,
// then catalog).
func NewEngine(cfg *Config) (*Engine, error) {
	fm, err := NewFileManager(cfg.BaseDirectory)
	if err != nil {
		return nil, err
	}
	bufMgr := NewBufferManager(cfg.PageCacheSize, cfg.PageCachePolicy)
	wal, err := NewWALManager(cfg.BaseDirectory)
	if err != nil {
		return nil, err
	}
	bufMgr.AddObserver(wal)

	catalog := NewSystemCatalog(cfg.BaseDirectory)
	if err := catalog.Load(); err != nil {
		return nil, err
	}
	tm := NewTableManager(catalog, fm, bufMgr, cfg.PageSize)
	idxMgr := NewIndexManager(catalog, fm, bufMgr, cfg.PageSize, tm)
	tm.SetIndexManager(idxMgr)
	tm.SetIndexesEnabled(cfg.EnableIndexes)
	sess := NewSessionHandle("default")
	enforcer := NewConstraintEnforcer(catalog, tm, sess)

	e := &Engine{Config: cfg, fm: fm, bufMgr: bufMgr, catalog: catalog, tm: tm, idxMgr: idxMgr, wal: wal, enforce: enforcer, sess: sess}
	enforcer.SetMutator(e)
	return e, nil
}

// Close flushes and releases every open table and the buffer cache.
func (e *Engine) Close() error {
	if err := e.idxMgr.Close(); err != nil {
		return err
	}
	if err := e.tm.CloseAll(); err != nil {
		return err
	}
	if err := e.bufMgr.FlushAll(); err != nil {
		return err
	}
	return e.wal.Close()
}

// Execute dispatches a parsed Statement to its handler, per spec.md
// §4.8's DDL/DML/SELECT/UTILITY command-façade split. Whatever happens,
// every page this command's session still holds pinned when it returns
// (including on an error path mid-scan) is force-released through
// UnpinAllSessionPages, so a failed command never leaks pins.
func (e *Engine) Execute(stmt *Statement) (result string, err error) {
	defer e.bufMgr.UnpinAllSessionPages(e.sess)
	switch stmt.Kind {
	case StmtCreateTable:
		return e.createTable(stmt)
	case StmtDropTable:
		return e.dropTable(stmt)
	case StmtCreateIndex:
		return e.createIndex(stmt)
	case StmtDropIndex:
		return e.dropIndex(stmt)
	case StmtAlterTable:
		return e.alterTable(stmt)
	case StmtInsert:
		return e.insert(stmt)
	case StmtUpdate:
		return e.update(stmt)
	case StmtDelete:
		return e.delete(stmt)
	case StmtSelect:
		return e.selectRows(stmt.Select)
	case StmtAnalyze:
		return e.Analyze(stmt.TableName)
	case StmtVerify:
		return e.Verify(stmt.TableName)
	case StmtSet:
		return e.Set(stmt.SetProperty, stmt.SetValue)
	case StmtDumpTable:
		return e.dumpTable(stmt.TableName)
	case StmtDumpIndex:
		return e.dumpIndex(stmt.TableName, stmt.IndexName)
	case StmtExplain:
		return e.explain(stmt.Explain)
	default:
		return "", NewError(KindInvalidSQL, "unsupported statement kind")
	}
}

func (e *Engine) createTable(stmt *Statement) (string, error) {
	schema := NewSchema()
	for _, col := range stmt.Columns {
		if err := schema.AddColumn(col); err != nil {
			return "", AsExecutionError(err)
		}
	}
	for _, name := range stmt.NotNull {
		idx := schema.ColumnIndex("", name)
		if idx < 0 {
			return "", NewError(KindInvalidSQL, "NOT NULL references unknown column %q", name)
		}
		schema.NotNull[idx] = true
	}
	if len(stmt.PrimaryKey) > 0 {
		cols := make([]int, len(stmt.PrimaryKey))
		for i, name := range stmt.PrimaryKey {
			idx := schema.ColumnIndex("", name)
			if idx < 0 {
				return "", NewError(KindInvalidSQL, "PRIMARY KEY references unknown column %q", name)
			}
			cols[i] = idx
			schema.NotNull[idx] = true
		}
		schema.CandidateKeys = append(schema.CandidateKeys, CandidateKey{Columns: cols, IsPrimary: true, Name: stmt.TableName + "_pkey"})
	}
	for _, fkDef := range stmt.ForeignKeys {
		refSchema, err := e.catalog.Schema(fkDef.RefTable)
		if err != nil {
			return "", AsExecutionError(err)
		}
		local := make([]int, len(fkDef.LocalColumns))
		for i, name := range fkDef.LocalColumns {
			idx := schema.ColumnIndex("", name)
			if idx < 0 {
				return "", NewError(KindInvalidSQL, "FOREIGN KEY references unknown local column %q", name)
			}
			local[i] = idx
		}
		ref := make([]int, len(fkDef.RefColumns))
		for i, name := range fkDef.RefColumns {
			idx := refSchema.ColumnIndex("", name)
			if idx < 0 {
				return "", NewError(KindInvalidSQL, "FOREIGN KEY references unknown column %q on %s", name, fkDef.RefTable)
			}
			ref[i] = idx
		}
		schema.ForeignKeys = append(schema.ForeignKeys, ForeignKey{
			LocalColumns: local, RefTable: fkDef.RefTable, RefColumns: ref,
			OnUpdate: fkDef.OnUpdate, OnDelete: fkDef.OnDelete,
		})
	}

	dataFile := stmt.TableName + ".heap"
	if err := e.catalog.CreateTable(stmt.TableName, schema, dataFile, time.Now().Unix()); err != nil {
		return "", AsExecutionError(err)
	}
	if err := e.catalog.Save(); err != nil {
		return "", AsExecutionError(err)
	}
	log.Info().Str("table", stmt.TableName).Msg("command: table created")

	// mindb.createIndexesOnKeys (spec.md §6): a single-column PRIMARY KEY
	// gets a unique B-tree index for free, the way most of the teacher's
	// peers in the pack auto-index their declared primary keys.
	if e.Config.EnableIndexes && e.Config.CreateIndexesOnKeys {
		if pk := schema.PrimaryKey(); pk != nil && len(pk.Columns) == 1 {
			col := schema.Columns[pk.Columns[0]].Name
			name := stmt.TableName + "_" + col + "_pkidx"
			if err := e.idxMgr.CreateIndex(e.sess, stmt.TableName, name, col, IndexBTree, true); err != nil {
				return "", AsExecutionError(err)
			}
			if err := e.catalog.Save(); err != nil {
				return "", AsExecutionError(err)
			}
		}
	}
	return fmt.Sprintf("table %q created", stmt.TableName), nil
}

func (e *Engine) dropTable(stmt *Statement) (string, error) {
	if stmt.DropTableIfExists {
		found := false
		for _, name := range e.catalog.ListTables() {
			if name == stmt.TableName {
				found = true
				break
			}
		}
		if !found {
			return fmt.Sprintf("table %q does not exist, skipped", stmt.TableName), nil
		}
	}
	if len(e.catalog.ReferencingTables(stmt.TableName)) > 0 {
		return "", NewError(KindConstraintViolation, "cannot drop %q: referenced by foreign keys", stmt.TableName)
	}
	if err := e.catalog.DropTable(stmt.TableName); err != nil {
		return "", AsExecutionError(err)
	}
	if err := e.catalog.Save(); err != nil {
		return "", AsExecutionError(err)
	}
	return fmt.Sprintf("table %q dropped", stmt.TableName), nil
}

// createIndex builds a new secondary index via the index manager and
// persists its catalog entry, the CREATE [UNIQUE] INDEX command of
// spec.md §4.8.
func (e *Engine) createIndex(stmt *Statement) (string, error) {
	if !e.Config.EnableIndexes {
		return "", NewError(KindInvalidSQL, "indexes are disabled (mindb.enableIndexes=false)")
	}
	kind := stmt.IndexKind
	if kind == "" {
		kind = IndexBTree
	}
	if err := e.idxMgr.CreateIndex(e.sess, stmt.TableName, stmt.IndexName, stmt.IndexColumn, kind, stmt.IndexUnique); err != nil {
		return "", AsExecutionError(err)
	}
	if err := e.catalog.Save(); err != nil {
		return "", AsExecutionError(err)
	}
	return fmt.Sprintf("index %q created on %s(%s)", stmt.IndexName, stmt.TableName, stmt.IndexColumn), nil
}

// dropIndex removes a secondary index, the DROP INDEX command of
// spec.md §4.8.
func (e *Engine) dropIndex(stmt *Statement) (string, error) {
	if err := e.idxMgr.DropIndex(stmt.TableName, stmt.IndexName); err != nil {
		return "", AsExecutionError(err)
	}
	if err := e.catalog.Save(); err != nil {
		return "", AsExecutionError(err)
	}
	return fmt.Sprintf("index %q dropped", stmt.IndexName), nil
}

// alterTable applies an ADD COLUMN or DROP COLUMN against table's schema,
// the ALTER command of spec.md §4.8 ("ALTER delegates to the catalog").
func (e *Engine) alterTable(stmt *Statement) (string, error) {
	switch stmt.Alter {
	case AlterAddColumn:
		if err := e.catalog.AddColumn(stmt.TableName, stmt.AlterColumn); err != nil {
			return "", AsExecutionError(err)
		}
		if err := e.catalog.Save(); err != nil {
			return "", AsExecutionError(err)
		}
		return fmt.Sprintf("column %q added to %q", stmt.AlterColumn.Name, stmt.TableName), nil
	case AlterDropColumn:
		if err := e.catalog.DropColumn(stmt.TableName, stmt.AlterDropName); err != nil {
			return "", AsExecutionError(err)
		}
		if err := e.catalog.Save(); err != nil {
			return "", AsExecutionError(err)
		}
		return fmt.Sprintf("column %q dropped from %q", stmt.AlterDropName, stmt.TableName), nil
	default:
		return "", NewError(KindInvalidSQL, "unsupported ALTER TABLE form")
	}
}

func (e *Engine) insert(stmt *Statement) (string, error) {
	schema, err := e.catalog.Schema(stmt.InsertTable)
	if err != nil {
		return "", AsExecutionError(err)
	}
	tf, err := e.tm.Open(stmt.InsertTable)
	if err != nil {
		return "", AsExecutionError(err)
	}

	count := 0
	for _, row := range stmt.InsertValues {
		values, err := buildInsertRow(schema, stmt.InsertColumns, row)
		if err != nil {
			return "", AsExecutionError(err)
		}
		coercedTuple, err := CoerceToSchema(NewLiteralTuple(schema, values), schema)
		if err != nil {
			return "", AsExecutionError(err)
		}
		coerced := coercedTuple.Values
		if err := e.enforce.BeforeInsert(stmt.InsertTable, schema, coerced); err != nil {
			return "", err
		}
		t, err := tf.AddTuple(e.sess, coerced)
		if err != nil {
			return "", AsExecutionError(err)
		}
		t.Unpin()
		if err := e.idxMgr.AfterInsert(e.sess, stmt.InsertTable, coerced); err != nil {
			return "", AsExecutionError(err)
		}
		count++
	}
	return fmt.Sprintf("%d row(s) inserted", count), nil
}

// buildInsertRow evaluates one INSERT VALUES row's expressions and
// places them at the right schema positions, filling any column absent
// from an explicit column list with its DEFAULT expression (or null).
func buildInsertRow(schema *Schema, columns []string, row []Expression) ([]Value, error) {
	values := make([]Value, len(schema.Columns))
	filled := make([]bool, len(schema.Columns))
	targets := columns
	if len(targets) == 0 {
		for _, c := range schema.Columns {
			targets = append(targets, c.Name)
		}
	}
	if len(targets) != len(row) {
		return nil, NewError(KindInvalidSQL, "INSERT column count %d does not match value count %d", len(targets), len(row))
	}
	for i, name := range targets {
		idx := schema.ColumnIndex("", name)
		if idx < 0 {
			return nil, NewError(KindInvalidSQL, "unknown column %q", name)
		}
		v, err := row[i].Evaluate(nil)
		if err != nil {
			return nil, err
		}
		values[idx] = v
		filled[idx] = true
	}
	for i, col := range schema.Columns {
		if filled[i] {
			continue
		}
		if col.Default != nil {
			v, err := col.Default.Evaluate(nil)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
	}
	return values, nil
}

func (e *Engine) update(stmt *Statement) (string, error) {
	schema, err := e.catalog.Schema(stmt.UpdateTable)
	if err != nil {
		return "", AsExecutionError(err)
	}
	sets := make(map[int]Value, len(stmt.UpdateSets))
	for name, expr := range stmt.UpdateSets {
		idx := schema.ColumnIndex("", name)
		if idx < 0 {
			return "", NewError(KindInvalidSQL, "unknown column %q", name)
		}
		v, err := expr.Evaluate(nil)
		if err != nil {
			return "", AsExecutionError(err)
		}
		sets[idx] = v
	}
	n, err := e.ExecuteUpdate(stmt.UpdateTable, sets, stmt.UpdateWhere)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d row(s) updated", n), nil
}

func (e *Engine) delete(stmt *Statement) (string, error) {
	n, err := e.ExecuteDelete(stmt.DeleteTable, stmt.DeleteWhere)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d row(s) deleted", n), nil
}

// ExecuteUpdate implements RowMutator for direct UPDATE statements and
// for CASCADE/SET_NULL's nested updates: scans table for predicate
// matches and rewrites each matched row's sets columns in place, firing
// the constraint enforcer's before-update hook (and therefore any
// further nested cascades) per row.
func (e *Engine) ExecuteUpdate(table string, sets map[int]Value, predicate Expression) (int, error) {
	schema, err := e.catalog.Schema(table)
	if err != nil {
		return 0, err
	}
	tf, err := e.tm.Open(table)
	if err != nil {
		return 0, err
	}
	plan := scanPlanFor(tf, table, predicate, e.sess)
	if err := plan.Prepare(); err != nil {
		return 0, err
	}
	if err := plan.Initialize(); err != nil {
		return 0, err
	}
	defer plan.CleanUp()

	count := 0
	for {
		t, err := plan.GetNextTuple()
		if err != nil {
			return count, err
		}
		if t == nil {
			break
		}
		oldValues := append([]Value{}, t.Values...)
		newValues := append([]Value{}, t.Values...)
		for idx, v := range sets {
			newValues[idx] = v
		}
		coercedTuple, err := CoerceToSchema(NewLiteralTuple(schema, newValues), schema)
		if err != nil {
			t.Unpin()
			return count, err
		}
		newValues = coercedTuple.Values
		if err := e.enforce.BeforeUpdate(table, schema, oldValues, newValues, t.Pointer); err != nil {
			t.Unpin()
			return count, err
		}
		ptr := t.Pointer
		t.Unpin()
		if err := tf.UpdateTuple(e.sess, ptr, newValues); err != nil {
			return count, err
		}
		if err := e.idxMgr.AfterUpdate(e.sess, table, oldValues, newValues); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// ExecuteDelete implements RowMutator for direct DELETE statements and
// for CASCADE's nested deletes.
func (e *Engine) ExecuteDelete(table string, predicate Expression) (int, error) {
	schema, err := e.catalog.Schema(table)
	if err != nil {
		return 0, err
	}
	tf, err := e.tm.Open(table)
	if err != nil {
		return 0, err
	}
	plan := scanPlanFor(tf, table, predicate, e.sess)
	if err := plan.Prepare(); err != nil {
		return 0, err
	}
	if err := plan.Initialize(); err != nil {
		return 0, err
	}
	defer plan.CleanUp()

	var toDelete []FilePointer
	var toDeleteValues [][]Value
	for {
		t, err := plan.GetNextTuple()
		if err != nil {
			return 0, err
		}
		if t == nil {
			break
		}
		toDelete = append(toDelete, t.Pointer)
		toDeleteValues = append(toDeleteValues, append([]Value{}, t.Values...))
		t.Unpin()
	}

	count := 0
	for i, ptr := range toDelete {
		if err := e.enforce.BeforeDelete(table, schema, toDeleteValues[i]); err != nil {
			return count, err
		}
		if err := tf.DeleteTuple(e.sess, ptr); err != nil {
			return count, err
		}
		if err := e.idxMgr.AfterDelete(e.sess, table, toDeleteValues[i]); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func scanPlanFor(tf TupleFile, alias string, predicate Expression, sess *SessionHandle) PlanNode {
	var plan PlanNode = NewFileScanNode(tf, alias, sess)
	if predicate != nil {
		plan = NewSimpleFilterNode(plan, predicate)
	}
	return plan
}

func (e *Engine) selectRows(sel *SelectClause) (string, error) {
	plan, err := MakeSimplePlan(sel, e.tm, e.sess)
	if err != nil {
		return "", err
	}
	if err := plan.Initialize(); err != nil {
		return "", err
	}
	defer plan.CleanUp()

	rows := 0
	for {
		t, err := plan.GetNextTuple()
		if err != nil {
			return "", err
		}
		if t == nil {
			break
		}
		rows++
		t.Unpin()
	}
	return fmt.Sprintf("%s row(s) selected", humanize.Comma(int64(rows))), nil
}

// Analyze recomputes per-table statistics, the ANALYZE administrative
// command of spec.md §4.8a.
func (e *Engine) Analyze(table string) (string, error) {
	tf, err := e.tm.Open(table)
	if err != nil {
		return "", err
	}
	if err := tf.Analyze(e.sess); err != nil {
		return "", err
	}
	stats := tf.Stats()
	return fmt.Sprintf("table %q analyzed: %s rows across %s pages", table,
		humanize.Comma(int64(stats.NumTuples)), humanize.Comma(int64(stats.NumPages))), nil
}

// Verify runs a tuple file's internal consistency diagnostics, the
// VERIFY administrative command of spec.md §4.8a.
func (e *Engine) Verify(table string) (string, error) {
	tf, err := e.tm.Open(table)
	if err != nil {
		return "", err
	}
	errs := tf.Verify(e.sess)
	if len(errs) == 0 {
		return fmt.Sprintf("table %q: no inconsistencies found", table), nil
	}
	msg := fmt.Sprintf("table %q: %d inconsistencies found", table, len(errs))
	for _, err := range errs {
		log.Warn().Str("table", table).Err(err).Msg("verify: inconsistency")
	}
	return msg, nil
}

// Set applies a runtime `SET property = value` administrative command.
func (e *Engine) Set(property, value string) (string, error) {
	if err := e.Config.Set(property, value); err != nil {
		return "", err
	}
	e.tm.SetIndexesEnabled(e.Config.EnableIndexes)
	return fmt.Sprintf("%s set to %s", property, value), nil
}

// dumpTable renders every row of table as text, the DUMP TABLE
// administrative command of spec.md §4.8a.
func (e *Engine) dumpTable(table string) (string, error) {
	tf, err := e.tm.Open(table)
	if err != nil {
		return "", AsExecutionError(err)
	}
	return dumpTupleFile(e.sess, tf, table)
}

// dumpIndex renders every row of one of table's secondary indexes as
// text, the DUMP INDEX administrative command of spec.md §4.8a.
func (e *Engine) dumpIndex(table, indexName string) (string, error) {
	tf, _, err := e.idxMgr.OpenIndex(table, indexName)
	if err != nil {
		return "", AsExecutionError(err)
	}
	return dumpTupleFile(e.sess, tf, table+"."+indexName)
}

func dumpTupleFile(sess *SessionHandle, tf TupleFile, label string) (string, error) {
	schema := tf.Schema()
	var b strings.Builder
	rows := 0
	cur, err := tf.FirstTuple(sess)
	if err != nil {
		return "", AsExecutionError(err)
	}
	for cur != nil {
		for i, v := range cur.Values {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("%s=%v", schema.Columns[i].Name, v))
		}
		b.WriteString("\n")
		rows++
		next, err := tf.NextTuple(sess, cur)
		cur.Unpin()
		if err != nil {
			return "", AsExecutionError(err)
		}
		cur = next
	}
	return fmt.Sprintf("%q (%d rows):\n%s", label, rows, b.String()), nil
}

// explain builds stmt's plan (without executing it) and renders it as an
// indented text tree, the EXPLAIN command of spec.md §4.8a.
func (e *Engine) explain(stmt *Statement) (string, error) {
	if stmt == nil || stmt.Kind != StmtSelect {
		return "", NewError(KindInvalidSQL, "EXPLAIN only supports SELECT statements")
	}
	plan, err := MakeSimplePlan(stmt.Select, e.tm, e.sess)
	if err != nil {
		return "", err
	}
	return explainTree(plan, 0), nil
}

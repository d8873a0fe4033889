package mindb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// tableMetadata is catalog.json's persisted shape for one table: the
// schema plus the name of its backing heap/B-tree/hash tuple file.
// Grounded on teacher's catalog.go TableMetadata, generalized from a flat
// []Column list to the full Schema (candidate keys, FKs, back-refs).
type tableMetadata struct {
	Name      string                `json:"name"`
	Schema    *Schema               `json:"schema"`
	DataFile  string                `json:"data_file"`
	CreatedAt int64                 `json:"created_at"`
	Indexes   map[string]*IndexMeta `json:"indexes,omitempty"`
}

type catalogData struct {
	Tables map[string]*tableMetadata `json:"tables"`
}

// SystemCatalog is the JSON-persisted table/schema registry for one
// database directory, grounded on teacher's catalog.go (atomic
// temp-file-then-rename save, map[name]*TableMetadata shape). Unlike the
// teacher, schemas track candidate keys and FK lists with on-update/
// on-delete policy, and back-references are stored by table name only
// (spec.md §9 design note), never as a *TableManager handle embedded in
// a Schema.
type SystemCatalog struct {
	mu       sync.RWMutex
	baseDir  string
	tables   map[string]*tableMetadata
}

// NewSystemCatalog creates an empty catalog rooted at baseDir.
func NewSystemCatalog(baseDir string) *SystemCatalog {
	return &SystemCatalog{baseDir: baseDir, tables: make(map[string]*tableMetadata)}
}

func (sc *SystemCatalog) catalogPath() string {
	return filepath.Join(sc.baseDir, "catalog.json")
}

// Load reads catalog.json, leaving the catalog empty if it doesn't exist
// yet (a fresh database directory).
func (sc *SystemCatalog) Load() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	data, err := os.ReadFile(sc.catalogPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return WrapError(KindFileSystem, err, "reading catalog")
	}
	var cd catalogData
	if err := json.Unmarshal(data, &cd); err != nil {
		return WrapError(KindDataFormat, err, "parsing catalog")
	}
	if cd.Tables == nil {
		cd.Tables = make(map[string]*tableMetadata)
	}
	sc.tables = cd.Tables
	return nil
}

// Save writes the catalog to disk atomically (write to a temp file, then
// rename), matching teacher's catalog.go save idiom.
func (sc *SystemCatalog) Save() error {
	sc.mu.RLock()
	cd := catalogData{Tables: sc.tables}
	sc.mu.RUnlock()

	data, err := json.MarshalIndent(cd, "", "  ")
	if err != nil {
		return WrapError(KindDataFormat, err, "marshaling catalog")
	}
	path := sc.catalogPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return WrapError(KindFileSystem, err, "writing catalog")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return WrapError(KindFileSystem, err, "renaming catalog into place")
	}
	return nil
}

// CreateTable registers a new table's schema, wiring the non-owning
// back-reference on every table schema's FKs point at (spec.md §9).
func (sc *SystemCatalog) CreateTable(name string, schema *Schema, dataFile string, createdAt int64) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if _, exists := sc.tables[name]; exists {
		return NewError(KindTable, "table %q already exists", name)
	}
	for _, fk := range schema.ForeignKeys {
		if ref, ok := sc.tables[fk.RefTable]; ok {
			ref.Schema.ReferencingTables = appendIfMissing(ref.Schema.ReferencingTables, name)
		}
	}
	sc.tables[name] = &tableMetadata{Name: name, Schema: schema, DataFile: dataFile, CreatedAt: createdAt}
	log.Info().Str("table", name).Msg("catalog: table created")
	return nil
}

func appendIfMissing(list []string, name string) []string {
	for _, s := range list {
		if s == name {
			return list
		}
	}
	return append(list, name)
}

// DropTable removes a table, clearing its name from referencing-table
// back-reference lists it was named in.
func (sc *SystemCatalog) DropTable(name string) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if _, exists := sc.tables[name]; !exists {
		return NewError(KindTable, "table %q does not exist", name)
	}
	for _, tbl := range sc.tables {
		filtered := tbl.Schema.ReferencingTables[:0]
		for _, ref := range tbl.Schema.ReferencingTables {
			if ref != name {
				filtered = append(filtered, ref)
			}
		}
		tbl.Schema.ReferencingTables = filtered
	}
	delete(sc.tables, name)
	return nil
}

// AddIndex registers a new secondary index's metadata against table,
// keeping Schema.Indexes (the planner-facing name -> column-position map)
// in sync.
func (sc *SystemCatalog) AddIndex(table string, meta *IndexMeta) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	tbl, exists := sc.tables[table]
	if !exists {
		return NewError(KindTable, "table %q does not exist", table)
	}
	if tbl.Indexes == nil {
		tbl.Indexes = make(map[string]*IndexMeta)
	}
	if _, exists := tbl.Indexes[meta.Name]; exists {
		return NewError(KindTable, "index %q already exists on %q", meta.Name, table)
	}
	tbl.Indexes[meta.Name] = meta
	tbl.Schema.Indexes[meta.Name] = []int{meta.ColumnIdx}
	log.Info().Str("table", table).Str("index", meta.Name).Msg("catalog: index created")
	return nil
}

// RemoveIndex deregisters name from table's index metadata.
func (sc *SystemCatalog) RemoveIndex(table, name string) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	tbl, exists := sc.tables[table]
	if !exists {
		return NewError(KindTable, "table %q does not exist", table)
	}
	if _, exists := tbl.Indexes[name]; !exists {
		return NewError(KindTable, "index %q does not exist on %q", name, table)
	}
	delete(tbl.Indexes, name)
	delete(tbl.Schema.Indexes, name)
	return nil
}

// Index returns one table's index metadata by name.
func (sc *SystemCatalog) Index(table, name string) (*IndexMeta, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	tbl, exists := sc.tables[table]
	if !exists {
		return nil, NewError(KindTable, "table %q does not exist", table)
	}
	meta, exists := tbl.Indexes[name]
	if !exists {
		return nil, NewError(KindTable, "index %q does not exist on %q", name, table)
	}
	return meta, nil
}

// IndexesFor returns every index registered on table, in no particular
// order.
func (sc *SystemCatalog) IndexesFor(table string) []*IndexMeta {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	tbl, exists := sc.tables[table]
	if !exists {
		return nil
	}
	out := make([]*IndexMeta, 0, len(tbl.Indexes))
	for _, meta := range tbl.Indexes {
		out = append(out, meta)
	}
	return out
}

// AddColumn appends a new column to table's schema (ALTER TABLE ADD
// COLUMN); existing rows are not rewritten, so the column must allow
// null or carry a DEFAULT, matching spec.md §4.8's "ALTER delegates to
// the catalog" scope — ALTER does not rewrite heap storage.
func (sc *SystemCatalog) AddColumn(table string, col ColumnInfo) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	tbl, exists := sc.tables[table]
	if !exists {
		return NewError(KindTable, "table %q does not exist", table)
	}
	return tbl.Schema.AddColumn(col)
}

// DropColumn removes a column from table's schema by name. Existing
// rows still carry the dropped column's encoded value; readers that
// resolve columns by name/position through the (now shorter) schema
// simply stop seeing it.
func (sc *SystemCatalog) DropColumn(table, name string) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	tbl, exists := sc.tables[table]
	if !exists {
		return NewError(KindTable, "table %q does not exist", table)
	}
	idx := tbl.Schema.ColumnIndex("", name)
	if idx < 0 {
		return NewError(KindInvalidSQL, "column %q does not exist on %q", name, table)
	}
	tbl.Schema.Columns = append(tbl.Schema.Columns[:idx], tbl.Schema.Columns[idx+1:]...)
	shifted := make(map[int]bool, len(tbl.Schema.NotNull))
	for i, notNull := range tbl.Schema.NotNull {
		switch {
		case i == idx:
			// dropped
		case i > idx:
			shifted[i-1] = notNull
		default:
			shifted[i] = notNull
		}
	}
	tbl.Schema.NotNull = shifted
	return nil
}

// Table returns name's metadata, or a KindTable error if absent.
func (sc *SystemCatalog) Table(name string) (*tableMetadata, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	t, exists := sc.tables[name]
	if !exists {
		return nil, NewError(KindTable, "table %q does not exist", name)
	}
	return t, nil
}

// Schema is a convenience accessor returning just name's schema.
func (sc *SystemCatalog) Schema(name string) (*Schema, error) {
	t, err := sc.Table(name)
	if err != nil {
		return nil, err
	}
	return t.Schema, nil
}

// ListTables returns every registered table name.
func (sc *SystemCatalog) ListTables() []string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	names := make([]string, 0, len(sc.tables))
	for name := range sc.tables {
		names = append(names, name)
	}
	return names
}

// ReferencingTables returns the names of tables whose foreign keys point
// at name, resolved by name rather than stored handle (spec.md §9).
func (sc *SystemCatalog) ReferencingTables(name string) []string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	t, ok := sc.tables[name]
	if !ok {
		return nil
	}
	return append([]string{}, t.Schema.ReferencingTables...)
}

// TableManager binds a SystemCatalog to the open tuple files backing
// each table, resolving tuple-file opens lazily and caching them for
// reuse across commands within one process lifetime.
type TableManager struct {
	mu             sync.Mutex
	catalog        *SystemCatalog
	fm             *FileManager
	bufMgr         *BufferManager
	pageSize       int
	open           map[string]TupleFile
	indexMgr       *IndexManager
	indexesEnabled bool
}

// SetIndexManager wires im into tm so the planner can consider index-scan
// access paths; mirrors ConstraintEnforcer.SetMutator's post-construction
// wiring pattern, since Engine builds tm and im from the same catalog/
// storage layer and needs both before either is usable.
func (tm *TableManager) SetIndexManager(im *IndexManager) { tm.indexMgr = im }

// SetIndexesEnabled gates whether the planner may substitute an
// IndexScanNode for a base table scan, mirroring mindb.enableIndexes
// (spec.md §6). This flag only withholds the access path from the
// planner; with mindb.enableIndexes false, Engine.createIndex separately
// refuses CREATE INDEX, while DROP INDEX and DML mirroring still run.
func (tm *TableManager) SetIndexesEnabled(enabled bool) { tm.indexesEnabled = enabled }

// indexScanFor returns an IndexScanNode over one of table's indexes whose
// column matches key's Column, if one is registered and usable for the
// given comparison op (equality only, for both BTREE and HASH indexes).
// Returns (nil, nil) when no such index exists.
func (tm *TableManager) indexScanFor(sess *SessionHandle, table string, op CompareOp, col *ColumnExpr, lit *LiteralExpr) (PlanNode, error) {
	if tm.indexMgr == nil || !tm.indexesEnabled || op != OpEQ {
		return nil, nil
	}
	for _, meta := range tm.indexMgr.IndexesFor(table) {
		if meta.Column != col.Column {
			continue
		}
		tf, _, err := tm.indexMgr.OpenIndex(table, meta.Name)
		if err != nil {
			return nil, err
		}
		return NewEqualityIndexScan(tf, lit.Value, sess)
	}
	return nil, nil
}

// NewTableManager binds catalog to the given storage layer.
func NewTableManager(catalog *SystemCatalog, fm *FileManager, bufMgr *BufferManager, pageSize int) *TableManager {
	return &TableManager{catalog: catalog, fm: fm, bufMgr: bufMgr, pageSize: pageSize, open: make(map[string]TupleFile)}
}

// Open returns name's tuple file, opening its backing heap storage on
// first use.
func (tm *TableManager) Open(name string) (TupleFile, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tf, ok := tm.open[name]; ok {
		return tf, nil
	}
	meta, err := tm.catalog.Table(name)
	if err != nil {
		return nil, err
	}
	tf, err := OpenHeapTupleFile(tm.fm, tm.bufMgr, meta.DataFile, meta.Schema, tm.pageSize)
	if err != nil {
		return nil, err
	}
	tm.open[name] = tf
	return tf, nil
}

// CloseAll closes every open tuple file, flushing dirty pages first.
func (tm *TableManager) CloseAll() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for name, tf := range tm.open {
		if err := tf.Close(); err != nil {
			return WrapError(KindFileSystem, err, "closing table %s", name)
		}
		delete(tm.open, name)
	}
	return nil
}

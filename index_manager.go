package mindb

import (
	"fmt"
	"os"
	"path/filepath"
)

// IndexKind selects which TupleFile implementation backs a secondary
// index: an ordered B+-tree (equality and range lookups) or a hash
// bucket map (equality only), per spec.md §4.3's index-file variants.
type IndexKind string

const (
	IndexBTree IndexKind = "BTREE"
	IndexHash  IndexKind = "HASH"
)

// IndexMeta is catalog.json's persisted shape for one secondary index.
// Its DataFile is a full mirrored copy of the table's tuples organized
// for lookup on Column, not a pointer-only index: btree_file.go and
// hash_file.go's tuple-file implementations each own their backing heap
// storage outright, so a secondary index here is a kept-in-sync replica
// rather than a (key -> FilePointer-into-main-heap) side table.
type IndexMeta struct {
	Name      string    `json:"name"`
	Table     string    `json:"table"`
	Column    string    `json:"column"`
	ColumnIdx int       `json:"column_idx"`
	Kind      IndexKind `json:"kind"`
	Unique    bool      `json:"unique"`
	DataFile  string    `json:"data_file"`
}

// IndexManager owns every open secondary index's tuple file: building
// one from a table's current contents on CREATE INDEX, mirroring DML the
// engine applies to a table's heap into each of its indexes, and serving
// the planner's index-scan candidates via IndexesFor. Grounded directly
// on spec.md §4.3/§4.8's CREATE/DROP INDEX surface; the teacher ships no
// index DDL to generalize from, only the already-implemented (until now
// unwired) btree_file.go/hash_file.go storage this type is a caller for.
type IndexManager struct {
	catalog  *SystemCatalog
	fm       *FileManager
	bufMgr   *BufferManager
	pageSize int
	tm       *TableManager

	open map[string]map[string]TupleFile // table -> index name -> file
}

// NewIndexManager binds an IndexManager to the same storage layer and
// catalog the engine's TableManager already uses.
func NewIndexManager(catalog *SystemCatalog, fm *FileManager, bufMgr *BufferManager, pageSize int, tm *TableManager) *IndexManager {
	return &IndexManager{catalog: catalog, fm: fm, bufMgr: bufMgr, pageSize: pageSize, tm: tm, open: make(map[string]map[string]TupleFile)}
}

// CreateIndex builds a new secondary index over table.column, copying
// every tuple currently in the table's heap into the index's own
// backing file, then registers it in the catalog.
func (im *IndexManager) CreateIndex(sess *SessionHandle, table, name, column string, kind IndexKind, unique bool) error {
	schema, err := im.catalog.Schema(table)
	if err != nil {
		return err
	}
	colIdx := schema.ColumnIndex("", column)
	if colIdx < 0 {
		return NewError(KindInvalidSQL, "index column %q not found on %q", column, table)
	}

	dataFile := fmt.Sprintf("%s__idx_%s.heap", table, name)
	idx, err := im.openBacking(dataFile, schema, colIdx, kind)
	if err != nil {
		return err
	}

	tf, err := im.tm.Open(table)
	if err != nil {
		idx.Close()
		return err
	}
	if err := im.populate(sess, idx, tf, colIdx, unique); err != nil {
		idx.Close()
		return err
	}

	meta := &IndexMeta{Name: name, Table: table, Column: column, ColumnIdx: colIdx, Kind: kind, Unique: unique, DataFile: dataFile}
	if err := im.catalog.AddIndex(table, meta); err != nil {
		idx.Close()
		return err
	}
	if im.open[table] == nil {
		im.open[table] = make(map[string]TupleFile)
	}
	im.open[table][name] = idx
	return nil
}

func (im *IndexManager) openBacking(dataFile string, schema *Schema, colIdx int, kind IndexKind) (TupleFile, error) {
	if kind == IndexHash {
		return OpenHashTupleFile(im.fm, im.bufMgr, dataFile, schema, colIdx, im.pageSize)
	}
	return OpenBTreeTupleFile(im.fm, im.bufMgr, dataFile, schema, colIdx, im.pageSize)
}

func (im *IndexManager) populate(sess *SessionHandle, idx, tf TupleFile, colIdx int, unique bool) error {
	seen := make(map[string]bool)
	cur, err := tf.FirstTuple(sess)
	if err != nil {
		return err
	}
	for cur != nil {
		if unique {
			key := fmt.Sprintf("%v", cur.Values[colIdx])
			if seen[key] {
				cur.Unpin()
				return NewError(KindConstraintViolation, "duplicate value %v for unique index column", cur.Values[colIdx])
			}
			seen[key] = true
		}
		t, err := idx.AddTuple(sess, append([]Value{}, cur.Values...))
		if err != nil {
			cur.Unpin()
			return err
		}
		t.Unpin()
		next, err := tf.NextTuple(sess, cur)
		cur.Unpin()
		if err != nil {
			return err
		}
		cur = next
	}
	return nil
}

// DropIndex closes and deletes name's backing file and catalog entry.
func (im *IndexManager) DropIndex(table, name string) error {
	meta, err := im.catalog.Index(table, name)
	if err != nil {
		return err
	}
	if tbl, ok := im.open[table]; ok {
		if idx, ok := tbl[name]; ok {
			idx.Close()
			delete(tbl, name)
		}
	}
	if err := im.catalog.RemoveIndex(table, name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(im.fm.baseDir, meta.DataFile)); err != nil && !os.IsNotExist(err) {
		return WrapError(KindFileSystem, err, "deleting index file %s", meta.DataFile)
	}
	return nil
}

// OpenIndex returns (opening on first use) table's secondary index named
// name, alongside its metadata.
func (im *IndexManager) OpenIndex(table, name string) (TupleFile, *IndexMeta, error) {
	meta, err := im.catalog.Index(table, name)
	if err != nil {
		return nil, nil, err
	}
	if tbl, ok := im.open[table]; ok {
		if idx, ok := tbl[name]; ok {
			return idx, meta, nil
		}
	}
	schema, err := im.catalog.Schema(table)
	if err != nil {
		return nil, nil, err
	}
	idx, err := im.openBacking(meta.DataFile, schema, meta.ColumnIdx, meta.Kind)
	if err != nil {
		return nil, nil, err
	}
	if im.open[table] == nil {
		im.open[table] = make(map[string]TupleFile)
	}
	im.open[table][name] = idx
	return idx, meta, nil
}

// IndexesFor returns every index registered on table.
func (im *IndexManager) IndexesFor(table string) []*IndexMeta {
	return im.catalog.IndexesFor(table)
}

// AfterInsert mirrors a newly inserted row into every index on table.
func (im *IndexManager) AfterInsert(sess *SessionHandle, table string, values []Value) error {
	for _, meta := range im.IndexesFor(table) {
		idx, _, err := im.OpenIndex(table, meta.Name)
		if err != nil {
			return err
		}
		t, err := idx.AddTuple(sess, append([]Value{}, values...))
		if err != nil {
			return err
		}
		t.Unpin()
	}
	return nil
}

// AfterUpdate mirrors an updated row into every index on table, locating
// the mirrored copy via its pre-update key value.
func (im *IndexManager) AfterUpdate(sess *SessionHandle, table string, oldValues, newValues []Value) error {
	for _, meta := range im.IndexesFor(table) {
		idx, meta, err := im.OpenIndex(table, meta.Name)
		if err != nil {
			return err
		}
		ptr, found, err := locateInIndex(sess, idx, meta, oldValues)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if err := idx.UpdateTuple(sess, ptr, append([]Value{}, newValues...)); err != nil {
			return err
		}
	}
	return nil
}

// AfterDelete removes a deleted row's mirror from every index on table.
func (im *IndexManager) AfterDelete(sess *SessionHandle, table string, oldValues []Value) error {
	for _, meta := range im.IndexesFor(table) {
		idx, meta, err := im.OpenIndex(table, meta.Name)
		if err != nil {
			return err
		}
		ptr, found, err := locateInIndex(sess, idx, meta, oldValues)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if err := idx.DeleteTuple(sess, ptr); err != nil {
			return err
		}
	}
	return nil
}

// locateInIndex finds the FilePointer (scoped to idx's own backing file)
// of the mirrored row matching values, disambiguating rows that share a
// key by comparing the full value list.
func locateInIndex(sess *SessionHandle, idx TupleFile, meta *IndexMeta, values []Value) (FilePointer, bool, error) {
	key := values[meta.ColumnIdx]
	var candidates []*Tuple
	if meta.Kind == IndexHash {
		found, err := idx.(HashedTupleFile).FindEqual(sess, key)
		if err != nil {
			return FilePointer{}, false, err
		}
		candidates = found
	} else {
		t, err := idx.(SequentialTupleFile).FindFirstEqual(sess, key)
		if err != nil {
			return FilePointer{}, false, err
		}
		for t != nil {
			candidates = append(candidates, t)
			next, err := idx.NextTuple(sess, t)
			if err != nil || next == nil {
				break
			}
			if c, cerr := CompareScalars(next.Get(meta.ColumnIdx), key); cerr != nil || c != 0 {
				next.Unpin()
				break
			}
			t = next
		}
	}

	var matchPtr FilePointer
	found := false
	for _, c := range candidates {
		if !found && rowsEqual(c.Values, values) {
			matchPtr = c.Pointer
			found = true
		}
		c.Unpin()
	}
	return matchPtr, found, nil
}

func rowsEqual(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		c, err := CompareScalars(a[i], b[i])
		if err != nil || c != 0 {
			return false
		}
	}
	return true
}

// Close closes every open index file.
func (im *IndexManager) Close() error {
	for _, tbl := range im.open {
		for _, idx := range tbl {
			if err := idx.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}

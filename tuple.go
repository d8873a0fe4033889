package mindb

import (
	"fmt"
	"time"
)

// BaseType enumerates the column base types of spec.md §3.
type BaseType int

const (
	TINYINT BaseType = iota
	SMALLINT
	INTEGER
	BIGINT
	FLOAT
	DOUBLE
	NUMERIC
	CHAR
	VARCHAR
	DATE
	TIME
	DATETIME
	TIMESTAMP
	INTERVAL
	FILE_POINTER
	NULLTYPE
	BOOLEAN
)

// numericRank orders the numeric types from narrowest to widest for
// arithmetic promotion (spec.md §4.4): NUMERIC > DOUBLE > FLOAT > BIGINT
// > INTEGER > SMALLINT > TINYINT.
var numericRank = map[BaseType]int{
	TINYINT:  0,
	SMALLINT: 1,
	INTEGER:  2,
	BIGINT:   3,
	FLOAT:    4,
	DOUBLE:   5,
	NUMERIC:  6,
}

func isNumeric(t BaseType) bool { _, ok := numericRank[t]; return ok }

// ColumnType carries base type plus the modifiers that apply to it.
type ColumnType struct {
	Base      BaseType
	Length    int // CHAR/VARCHAR
	Precision int // NUMERIC
	Scale     int // NUMERIC
}

func (t ColumnType) String() string {
	switch t.Base {
	case CHAR, VARCHAR:
		return fmt.Sprintf("%s(%d)", baseTypeName(t.Base), t.Length)
	case NUMERIC:
		return fmt.Sprintf("NUMERIC(%d,%d)", t.Precision, t.Scale)
	default:
		return baseTypeName(t.Base)
	}
}

func baseTypeName(b BaseType) string {
	names := [...]string{"TINYINT", "SMALLINT", "INTEGER", "BIGINT", "FLOAT", "DOUBLE",
		"NUMERIC", "CHAR", "VARCHAR", "DATE", "TIME", "DATETIME", "TIMESTAMP",
		"INTERVAL", "FILE_POINTER", "NULL", "BOOLEAN"}
	if int(b) < len(names) {
		return names[b]
	}
	return "UNKNOWN"
}

// OnAction is a foreign key's ON UPDATE/ON DELETE policy.
type OnAction int

const (
	Restrict OnAction = iota
	Cascade
	SetNull
)

// ColumnInfo is one column's descriptor within a Schema.
type ColumnInfo struct {
	Name          string
	TableName     string // optional qualifier
	Type          ColumnType
	AutoIncrement bool       // supplemented from original_source: DDL DEFAULT/AUTO_INCREMENT support
	Default       Expression `json:"-"` // supplemented: DEFAULT clause, nil if none; not catalog-persisted (see DESIGN.md)
}

// ForeignKey describes one FK constraint, referencing tables and columns
// by name (never by handle) per spec.md §9's non-owning-indirection note.
type ForeignKey struct {
	LocalColumns      []int
	RefTable          string
	RefColumns        []int
	OnUpdate, OnDelete OnAction
}

// CandidateKey is a set of column indexes that must be unique together;
// at most one may be the primary key.
type CandidateKey struct {
	Columns   []int
	IsPrimary bool
	Name      string
}

// Schema is the ordered column list plus constraint metadata of
// spec.md §3. Back-references to other tables are stored as names only
// (ReferencingTables), resolved through the catalog on demand — this is
// how the schema-cycle (child tracks parent FKs, parent tracks
// referencing children) is broken per spec.md §9.
type Schema struct {
	Columns          []ColumnInfo
	NotNull          map[int]bool
	CandidateKeys    []CandidateKey
	ForeignKeys      []ForeignKey
	ReferencingTables []string // names of tables whose FKs point at this one
	Indexes          map[string][]int // index name -> indexed column positions
}

// NewSchema builds an empty schema ready to have columns appended.
func NewSchema() *Schema {
	return &Schema{
		NotNull: make(map[int]bool),
		Indexes: make(map[string][]int),
	}
}

// ColumnIndex finds a column by optional table qualifier and name,
// returning -1 if absent. Enforces the "(tableName, colName) unique
// within a schema" invariant only at AddColumn time, not on lookup.
func (s *Schema) ColumnIndex(table, name string) int {
	for i, c := range s.Columns {
		if c.Name == name && (table == "" || c.TableName == "" || c.TableName == table) {
			return i
		}
	}
	return -1
}

// AddColumn appends a column, rejecting a duplicate (tableName, colName)
// pair per spec.md §3's schema invariant.
func (s *Schema) AddColumn(col ColumnInfo) error {
	for _, c := range s.Columns {
		if c.Name == col.Name && c.TableName == col.TableName {
			return NewError(KindInvalidSQL, "duplicate column %s.%s", col.TableName, col.Name)
		}
	}
	s.Columns = append(s.Columns, col)
	return nil
}

// PrimaryKey returns the schema's primary candidate key, or nil.
func (s *Schema) PrimaryKey() *CandidateKey {
	for i := range s.CandidateKeys {
		if s.CandidateKeys[i].IsPrimary {
			return &s.CandidateKeys[i]
		}
	}
	return nil
}

// Merge concatenates other's columns onto s, used by joins/renames to
// build a combined output schema.
func (s *Schema) Merge(other *Schema) *Schema {
	merged := NewSchema()
	merged.Columns = append(append([]ColumnInfo{}, s.Columns...), other.Columns...)
	return merged
}

// Clone returns a deep-enough copy for rename/project to mutate safely.
func (s *Schema) Clone() *Schema {
	c := NewSchema()
	c.Columns = append([]ColumnInfo{}, s.Columns...)
	for k, v := range s.NotNull {
		c.NotNull[k] = v
	}
	c.CandidateKeys = append([]CandidateKey{}, s.CandidateKeys...)
	c.ForeignKeys = append([]ForeignKey{}, s.ForeignKeys...)
	c.ReferencingTables = append([]string{}, s.ReferencingTables...)
	for k, v := range s.Indexes {
		c.Indexes[k] = v
	}
	return c
}

// FilePointer is {pageNo, slot}, uniquely identifying a row within a
// tuple file (spec.md §3 glossary).
type FilePointer struct {
	PageNo PageID
	Slot   uint16
}

func (fp FilePointer) String() string { return fmt.Sprintf("(%d,%d)", fp.PageNo, fp.Slot) }

// Value is the dynamic runtime value carried in a Tuple column: one of
// nil (SQL NULL), int64, float64, string, bool, time.Time (DATE/TIME/
// DATETIME/TIMESTAMP), or Interval.
type Value = interface{}

// Interval is a signed calendar offset, per spec.md §4.4's
// "<signed-int> <unit>[s]" grammar.
type Interval struct {
	Years, Months, Days             int
	Hours, Minutes, Seconds int
}

// Tuple is an ordered vector of typed column values, per spec.md §3.
// Disk-backed tuples hold a FilePointer and pin their underlying page
// while live; literal tuples are caller-owned and ignore pin/unpin.
type Tuple struct {
	Schema *Schema
	Values []Value

	// disk-backed fields; File/Pointer are zero-valued for literal tuples
	File    TupleFile
	Pointer FilePointer
	page    *DBPage
	pinned  bool

	// bufMgr/dbFile/sess let Unpin() release the pin through the buffer
	// manager's own bookkeeping (BufferManager.pins) instead of poking
	// the page directly, so UnpinAllSessionPages sees an accurate count.
	bufMgr *BufferManager
	dbFile *DBFile
	sess   *SessionHandle
}

// NewLiteralTuple builds a caller-owned tuple with no disk backing.
func NewLiteralTuple(schema *Schema, values []Value) *Tuple {
	return &Tuple{Schema: schema, Values: values}
}

// newDiskTuple builds a tuple backed by page. page must already be pinned
// by the caller (typically via BufferManager.GetPage, which recorded the
// pin against sess); ownership of that pin transfers to the tuple,
// released through bufMgr by a later Unpin() call. Used only by TupleFile
// implementations.
func newDiskTuple(schema *Schema, values []Value, file TupleFile, ptr FilePointer, page *DBPage, bufMgr *BufferManager, dbFile *DBFile, sess *SessionHandle) *Tuple {
	t := &Tuple{Schema: schema, Values: values, File: file, Pointer: ptr, page: page, bufMgr: bufMgr, dbFile: dbFile, sess: sess}
	if page != nil {
		t.pinned = true
	}
	return t
}

// IsDiskBacked reports whether this tuple pins an underlying page.
func (t *Tuple) IsDiskBacked() bool { return t.page != nil }

// Unpin releases the page pin a disk-backed tuple holds, through the
// owning BufferManager so its per-session pin count stays accurate. A
// no-op for literal tuples.
func (t *Tuple) Unpin() {
	if !t.pinned || t.page == nil {
		return
	}
	if t.bufMgr != nil && t.dbFile != nil {
		t.bufMgr.UnpinPage(t.dbFile, t.Pointer.PageNo, false, t.sess)
	} else {
		t.page.unpin()
	}
	t.pinned = false
}

// Get returns the value at column index i, or nil if out of range.
func (t *Tuple) Get(i int) Value {
	if i < 0 || i >= len(t.Values) {
		return nil
	}
	return t.Values[i]
}

// GetByName looks up a value by optional table qualifier and column
// name via the tuple's schema.
func (t *Tuple) GetByName(table, name string) (Value, bool) {
	idx := t.Schema.ColumnIndex(table, name)
	if idx < 0 {
		return nil, false
	}
	return t.Get(idx), true
}

// Clone makes a detached literal copy, useful once a disk-backed tuple's
// page is about to be unpinned but the caller still needs its values.
func (t *Tuple) Clone() *Tuple {
	vals := make([]Value, len(t.Values))
	copy(vals, t.Values)
	return NewLiteralTuple(t.Schema, vals)
}

// CoerceToSchema converts each value in t to the corresponding column's
// declared type in schema, producing a new literal tuple. Idempotent:
// CoerceToSchema(CoerceToSchema(t,S),S) == CoerceToSchema(t,S), the
// round-trip property spec.md §8 requires.
func CoerceToSchema(t *Tuple, schema *Schema) (*Tuple, error) {
	if len(t.Values) != len(schema.Columns) {
		return nil, NewError(KindTypeCast, "tuple has %d values, schema has %d columns", len(t.Values), len(schema.Columns))
	}
	out := make([]Value, len(t.Values))
	for i, col := range schema.Columns {
		v, err := coerceValue(t.Values[i], col.Type)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return NewLiteralTuple(schema, out), nil
}

func coerceValue(v Value, ct ColumnType) (Value, error) {
	if v == nil {
		return nil, nil
	}
	switch ct.Base {
	case TINYINT, SMALLINT, INTEGER, BIGINT:
		switch x := v.(type) {
		case int64:
			return x, nil
		case float64:
			return int64(x), nil
		case string:
			return parseIntLiteral(x)
		}
	case FLOAT, DOUBLE, NUMERIC:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		case string:
			return parseFloatLiteral(x)
		}
	case CHAR, VARCHAR:
		switch x := v.(type) {
		case string:
			if ct.Length > 0 && ct.Base == CHAR {
				return padChar(x, ct.Length), nil
			}
			return x, nil
		default:
			return fmt.Sprintf("%v", x), nil
		}
	case BOOLEAN:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case DATE, TIME, DATETIME, TIMESTAMP:
		if tm, ok := v.(time.Time); ok {
			return tm, nil
		}
		if s, ok := v.(string); ok {
			return parseTemporal(s, ct.Base)
		}
	}
	return nil, NewError(KindTypeCast, "cannot coerce %v (%T) to %s", v, v, ct)
}

func padChar(s string, length int) string {
	if len(s) >= length {
		return s[:length]
	}
	buf := make([]byte, length)
	copy(buf, s)
	for i := len(s); i < length; i++ {
		buf[i] = ' '
	}
	return string(buf)
}

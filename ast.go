package mindb

// The statement AST below is the shape the (out-of-scope) SQL lexer/
// parser is expected to hand the planner and command layer: minimal,
// un-analyzed, built directly from spec.md §4.6/§4.8's description of
// what a SELECT/INSERT/UPDATE/DELETE/DDL statement carries. No lexing or
// parsing logic lives in this package.

// SelectClause is one (possibly correlated, possibly subquery-nested)
// SELECT statement.
type SelectClause struct {
	Distinct    bool
	SelectItems []SelectItem
	FromClause  []FromItem
	WhereClause Expression
	GroupBy     []Expression
	Having      Expression
	OrderBy     []OrderItem
	Limit       *int
	Offset      *int
}

// SelectItem is one projected output column: either Expr aliased As, or
// a bare wildcard when Expr is a *ColumnExpr with Wildcard set.
type SelectItem struct {
	Expr Expression
	As   string
}

// FromItem is one source in the FROM clause: a base table, a derived
// subquery, or the right side of an explicit JOIN chained via Join.
type FromItem struct {
	TableName string
	Alias     string
	Subquery  *SelectClause
	Join      *JoinItem
}

// JoinItem describes how FromItem's Subquery/TableName combines with the
// previous FROM item.
type JoinItem struct {
	Kind JoinKind
	On   Expression
}

// JoinKind enumerates the join forms spec.md §4.5's NestedLoopJoinNode
// must support.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeftOuter
	JoinRightOuter
	JoinFullOuter
)

// OrderItem is one ORDER BY key.
type OrderItem struct {
	Expr Expression
	Desc bool
}

// StatementKind tags what kind of top-level statement a Statement holds.
type StatementKind int

const (
	StmtSelect StatementKind = iota
	StmtInsert
	StmtUpdate
	StmtDelete
	StmtCreateTable
	StmtDropTable
	StmtCreateIndex
	StmtDropIndex
	StmtAlterTable
	StmtAnalyze
	StmtVerify
	StmtSet
	StmtDumpTable
	StmtDumpIndex
	StmtExplain
)

// AlterKind distinguishes the two ALTER TABLE forms spec.md §4.8's
// "ALTER delegates to the catalog" line covers.
type AlterKind int

const (
	AlterAddColumn AlterKind = iota
	AlterDropColumn
)

// Statement is the top-level parsed unit command.go dispatches on.
type Statement struct {
	Kind StatementKind

	Select *SelectClause // StmtSelect

	// StmtInsert
	InsertTable   string
	InsertColumns []string
	InsertValues  [][]Expression

	// StmtUpdate
	UpdateTable string
	UpdateSets  map[string]Expression
	UpdateWhere Expression

	// StmtDelete
	DeleteTable string
	DeleteWhere Expression

	// StmtCreateTable / StmtDropTable
	TableName         string
	Columns           []ColumnInfo
	NotNull           []string
	PrimaryKey        []string
	ForeignKeys       []ForeignKeyDef
	DropTableIfExists bool

	// StmtCreateIndex / StmtDropIndex; TableName names the indexed table
	IndexName    string
	IndexColumn  string
	IndexKind    IndexKind
	IndexUnique  bool

	// StmtAlterTable; TableName names the altered table
	Alter          AlterKind
	AlterColumn    ColumnInfo // AlterAddColumn
	AlterDropName  string     // AlterDropColumn

	// StmtAnalyze / StmtVerify / StmtDumpTable; TableName names the table

	// StmtDumpIndex; TableName + IndexName name the index

	// StmtSet
	SetProperty string
	SetValue    string

	// StmtExplain wraps the statement (a SELECT) being explained
	Explain *Statement
}

// ForeignKeyDef is the DDL-facing shape of a foreign key, resolved to a
// ForeignKey (column indexes instead of names) once the referenced
// table's schema is known.
type ForeignKeyDef struct {
	LocalColumns []string
	RefTable     string
	RefColumns   []string
	OnUpdate     OnAction
	OnDelete     OnAction
}

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	mindb "github.com/sausheong/mindb"
)

// main is a minimal smoke-test entry point, not the interactive shell:
// a SQL lexer/parser and line-editing REPL are out of scope (see
// SPEC_FULL.md §1). It wires Config -> Engine exactly as teacher's
// main.go did, then runs the fixed create/insert/select Statement
// sequence from smokeTestStatements to exercise the dispatcher end to
// end; the -data and -verbose flags only pick the data directory and
// the log level.
func main() {
	dataDir := flag.String("data", "./mindb_data", "data directory for persistent storage")
	verbose := flag.Bool("verbose", false, "enable debug-level logging")
	flag.Parse()

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg := mindb.DefaultConfig()
	cfg.BaseDirectory = *dataDir

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("creating data directory")
	}

	engine, err := mindb.NewEngine(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("initializing engine")
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Error().Err(err).Msg("closing engine")
		}
	}()

	fmt.Printf("mindb: database initialized at %s\n", *dataDir)

	for _, stmt := range smokeTestStatements() {
		result, err := engine.Execute(stmt)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Println(result)
	}
}

// smokeTestStatements builds the hand-authored equivalent of spec.md
// §8's worked "create table, insert a few rows, select with an order
// by" scenario, standing in for what a SQL front end would otherwise
// parse.
func smokeTestStatements() []*mindb.Statement {
	idCol := mindb.ColumnInfo{Name: "id", Type: mindb.ColumnType{Base: mindb.BIGINT}}
	nameCol := mindb.ColumnInfo{Name: "name", Type: mindb.ColumnType{Base: mindb.VARCHAR, Length: 64}}

	create := &mindb.Statement{
		Kind:       mindb.StmtCreateTable,
		TableName:  "greeting",
		Columns:    []mindb.ColumnInfo{idCol, nameCol},
		NotNull:    []string{"id"},
		PrimaryKey: []string{"id"},
	}

	insert := &mindb.Statement{
		Kind:          mindb.StmtInsert,
		InsertTable:   "greeting",
		InsertColumns: []string{"id", "name"},
		InsertValues: [][]mindb.Expression{
			{&mindb.LiteralExpr{Value: int64(1)}, &mindb.LiteralExpr{Value: "hello"}},
			{&mindb.LiteralExpr{Value: int64(2)}, &mindb.LiteralExpr{Value: "world"}},
		},
	}

	sel := &mindb.Statement{
		Kind: mindb.StmtSelect,
		Select: &mindb.SelectClause{
			SelectItems: []mindb.SelectItem{
				{Expr: &mindb.ColumnExpr{Column: "id"}},
				{Expr: &mindb.ColumnExpr{Column: "name"}},
			},
			FromClause: []mindb.FromItem{{TableName: "greeting"}},
			OrderBy:    []mindb.OrderItem{{Expr: &mindb.ColumnExpr{Column: "id"}}},
		},
	}

	return []*mindb.Statement{create, insert, sel}
}

// Package main is the sqlkv CLI: exec a statement file, run an
// interactive REPL, or bulk-import a live MySQL schema. Each subcommand
// gets its own flag struct and a RunE closure, with context timeouts and
// deferred Close cleanup where a connection is involved.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sqlkv/internal/config"
	"sqlkv/internal/importer"
	"sqlkv/internal/relation"
	"sqlkv"
)

type execFlags struct {
	db     string
	file   string
	format string
}

type replFlags struct {
	db string
}

type importFlags struct {
	db        string
	dsn       string
	tables    string
	batchSize int
	timeout   int
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "sqlkv",
		Short: "Embedded relational database over a key-value store",
	}

	rootCmd.AddCommand(execCmd())
	rootCmd.AddCommand(replCmd())
	rootCmd.AddCommand(importCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func execCmd() *cobra.Command {
	flags := &execFlags{}
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute a file of SQL statements against a database",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runExec(flags)
		},
	}
	cmd.Flags().StringVar(&flags.db, "db", "", "Path to the database file (required)")
	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "Path to a file of SQL statements (required)")
	cmd.Flags().StringVar(&flags.format, "format", "table", "Output format: table or json")
	return cmd
}

func runExec(flags *execFlags) error {
	if flags.db == "" {
		return fmt.Errorf("--db is required")
	}
	if flags.file == "" {
		return fmt.Errorf("--file is required")
	}

	content, err := os.ReadFile(flags.file)
	if err != nil {
		return fmt.Errorf("failed to read statement file: %w", err)
	}

	db, err := sqlkv.Open(flags.db)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	results, err := db.Execute(string(content))
	if err != nil {
		return err
	}
	return printResults(results, flags.format)
}

func replCmd() *cobra.Command {
	flags := &replFlags{}
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive read-eval-print loop against a database",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runRepl(flags)
		},
	}
	cmd.Flags().StringVar(&flags.db, "db", "", "Path to the database file (required)")
	return cmd
}

func runRepl(flags *replFlags) error {
	if flags.db == "" {
		return fmt.Errorf("--db is required")
	}

	db, err := sqlkv.Open(flags.db)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprint(os.Stdout, "sqlkv> ")
	for scanner.Scan() {
		stmt := strings.TrimSpace(scanner.Text())
		if stmt == "" {
			fmt.Fprint(os.Stdout, "sqlkv> ")
			continue
		}
		if stmt == "exit" || stmt == "quit" {
			break
		}

		results, err := db.Execute(stmt)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		} else if err := printResults(results, "table"); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		fmt.Fprint(os.Stdout, "sqlkv> ")
	}
	fmt.Fprintln(os.Stdout)
	return scanner.Err()
}

func importCmd() *cobra.Command {
	flags := &importFlags{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a live MySQL schema and its rows into a sqlkv database",
		Long: `Connects to a MySQL database, introspects its tables (or the subset
named by --tables), and replays them as CREATE TABLE and INSERT
statements against the sqlkv database at --db.

Examples:
  sqlkv import --db app.db --mysql-dsn "user:pass@tcp(localhost:3306)/app"
  sqlkv import --db app.db --mysql-dsn "user:pass@tcp(localhost:3306)/app" --tables users,orders`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runImport(flags)
		},
	}
	cmd.Flags().StringVar(&flags.db, "db", "", "Path to the destination database file (required)")
	cmd.Flags().StringVar(&flags.dsn, "mysql-dsn", "", "Source MySQL connection string (required)")
	cmd.Flags().StringVar(&flags.tables, "tables", "", "Comma-separated list of tables to import (default: all base tables)")
	cmd.Flags().IntVar(&flags.batchSize, "batch-size", 0, "Rows per INSERT batch (default: from config, or 500)")
	cmd.Flags().IntVar(&flags.timeout, "timeout", 300, "Connection timeout in seconds")
	return cmd
}

func runImport(flags *importFlags) error {
	if flags.db == "" {
		return fmt.Errorf("--db is required")
	}
	if flags.dsn == "" {
		return fmt.Errorf("--mysql-dsn is required")
	}

	cfg := config.Default()
	batchSize := flags.batchSize
	if batchSize <= 0 {
		batchSize = cfg.ImportBatchSize
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(flags.timeout)*time.Second)
	defer cancel()

	fmt.Println("connecting to source database")
	im, err := importer.Open(ctx, flags.dsn, batchSize)
	if err != nil {
		return err
	}
	defer func() {
		_ = im.Close()
	}()

	names, err := tableNames(ctx, im, flags.tables)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("no tables to import")
		return nil
	}

	db, err := sqlkv.Open(flags.db)
	if err != nil {
		return fmt.Errorf("failed to open destination database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	for _, name := range names {
		if err := importTable(ctx, im, db, name); err != nil {
			return fmt.Errorf("importing %q: %w", name, err)
		}
	}
	return nil
}

func tableNames(ctx context.Context, im *importer.Importer, requested string) ([]string, error) {
	if requested == "" {
		return im.ListTables(ctx)
	}
	var names []string
	for _, n := range strings.Split(requested, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names, nil
}

func importTable(ctx context.Context, im *importer.Importer, db *sqlkv.DB, name string) error {
	tbl, err := im.IntrospectTable(ctx, name)
	if err != nil {
		return err
	}

	fmt.Printf("creating table %s (%d columns)\n", tbl.Name, len(tbl.Columns))
	if _, err := db.Execute(tbl.CreateTableSQL()); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	batches := 0
	err = im.InsertBatches(ctx, tbl, func(insertSQL string) error {
		if _, err := db.Execute(insertSQL); err != nil {
			return fmt.Errorf("insert batch %d: %w", batches, err)
		}
		batches++
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("imported %s in %d batch(es)\n", tbl.Name, batches)
	return nil
}

func printResults(results []*relation.Relation, format string) error {
	if strings.EqualFold(format, "json") {
		return printResultsJSON(os.Stdout, results)
	}
	for _, r := range results {
		if s := r.String(); s != "" {
			fmt.Print(s)
		}
	}
	return nil
}

func printResultsJSON(w io.Writer, results []*relation.Relation) error {
	type jsonRelation struct {
		Columns []string   `json:"columns"`
		Rows    [][]string `json:"rows"`
	}
	out := make([]jsonRelation, 0, len(results))
	for _, r := range results {
		rows := make([][]string, r.NumRows())
		for i, row := range r.Rows() {
			cells := make([]string, len(row))
			for j, v := range row {
				cells[j] = v.String()
			}
			rows[i] = cells
		}
		out = append(out, jsonRelation{Columns: r.Columns(), Rows: rows})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

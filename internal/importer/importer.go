// Package importer introspects a live MySQL database via database/sql and
// replays its schema and rows as sqlkv CREATE TABLE/INSERT statements,
// giving the embedded engine a bulk-load path from an existing MySQL
// schema.
//
// A single *sql.DB is opened and pinged up front and owned for the
// importer's lifetime. Schema introspection reads information_schema
// directly; column types are collapsed to sqlkv's two scalar types by a
// tolerant, case-insensitive substring match, erroring on anything that
// doesn't map cleanly rather than guessing.
package importer

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"sqlkv/internal/value"
)

// Column is one introspected MySQL column, collapsed to sqlkv's type
// model. Columns MySQL can express but sqlkv cannot (DATE, FLOAT, BLOB,
// ...) are reported as an error rather than silently coerced — the
// importer never guesses.
type Column struct {
	Name       string
	Type       value.Type
	NotNull    bool
	PrimaryKey bool
}

// Table is one introspected table: its columns, in ordinal-position order,
// plus any single-column UNIQUE indexes (multi-column uniques and foreign
// keys are out of scope for the importer's first pass).
type Table struct {
	Name    string
	Columns []Column
	Unique  []string
}

// Importer owns a connection to a source MySQL database.
type Importer struct {
	db        *sql.DB
	batchSize int
}

// Open connects to dsn and pings it to confirm the connection is live.
func Open(ctx context.Context, dsn string, batchSize int) (*Importer, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("importer: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("importer: ping: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Importer{db: db, batchSize: batchSize}, nil
}

// Close releases the source connection.
func (im *Importer) Close() error {
	return im.db.Close()
}

// ListTables returns every base table name in the connected schema.
func (im *Importer) ListTables(ctx context.Context) ([]string, error) {
	rows, err := im.db.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("importer: list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// IntrospectTable reads a table's columns and single-column unique indexes.
func (im *Importer) IntrospectTable(ctx context.Context, name string) (*Table, error) {
	cols, err := im.introspectColumns(ctx, name)
	if err != nil {
		return nil, err
	}
	uniques, err := im.introspectUniques(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Table{Name: name, Columns: cols, Unique: uniques}, nil
}

func (im *Importer) introspectColumns(ctx context.Context, name string) ([]Column, error) {
	rows, err := im.db.QueryContext(ctx, `
		SELECT column_name, column_type, is_nullable, column_key
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`, name)
	if err != nil {
		return nil, fmt.Errorf("importer: introspect columns of %q: %w", name, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var colName, colType, nullable, key sql.NullString
		if err := rows.Scan(&colName, &colType, &nullable, &key); err != nil {
			return nil, err
		}
		typ, err := classifyColumnType(colType.String)
		if err != nil {
			return nil, fmt.Errorf("importer: table %q column %q: %w", name, colName.String, err)
		}
		cols = append(cols, Column{
			Name:       colName.String,
			Type:       typ,
			NotNull:    nullable.String == "NO",
			PrimaryKey: key.String == "PRI",
		})
	}
	return cols, rows.Err()
}

func (im *Importer) introspectUniques(ctx context.Context, name string) ([]string, error) {
	rows, err := im.db.QueryContext(ctx, `
		SELECT s.column_name FROM information_schema.statistics s
		WHERE s.table_schema = DATABASE() AND s.table_name = ? AND s.non_unique = 0 AND s.seq_in_index = 1 AND s.index_name <> 'PRIMARY'
			AND NOT EXISTS (SELECT 1 FROM information_schema.statistics s2
				WHERE s2.table_schema = s.table_schema AND s2.table_name = s.table_name
				AND s2.index_name = s.index_name AND s2.seq_in_index > 1)`, name)
	if err != nil {
		return nil, fmt.Errorf("importer: introspect unique indexes of %q: %w", name, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// classifyColumnType collapses a MySQL COLUMN_TYPE string (e.g.
// "varchar(255)", "int(11) unsigned") to sqlkv's two scalar types by a
// case-insensitive substring match, narrowed to Integer/String and erroring
// on everything else.
func classifyColumnType(raw string) (value.Type, error) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(lower, "int") && !strings.Contains(lower, "point"):
		return value.TypeInteger, nil
	case strings.Contains(lower, "char"), strings.Contains(lower, "text"):
		return value.TypeString, nil
	default:
		return 0, fmt.Errorf("unsupported column type %q", raw)
	}
}

// CreateTableSQL renders t as a sqlkv CREATE TABLE statement.
func (t *Table) CreateTableSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (", t.Name)
	uniqueSet := make(map[string]bool, len(t.Unique))
	for _, u := range t.Unique {
		uniqueSet[u] = true
	}
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s", c.Name, sqlTypeName(c.Type))
		if c.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		} else {
			if c.NotNull {
				b.WriteString(" NOT NULL")
			}
			if uniqueSet[c.Name] {
				b.WriteString(" UNIQUE")
			}
		}
	}
	b.WriteString(")")
	return b.String()
}

func sqlTypeName(t value.Type) string {
	if t == value.TypeInteger {
		return "INT"
	}
	return "VARCHAR(255)"
}

// InsertBatches streams name's rows from the source database and renders
// them as INSERT statements in groups of the importer's configured batch
// size, calling emit once per batch. Rows are read via database/sql.Rows
// directly rather than materialized all at once, since a source table may
// be far larger than sqlkv's own in-memory result-set model tolerates for
// a single query.
func (im *Importer) InsertBatches(ctx context.Context, t *Table, emit func(insertSQL string) error) error {
	colNames := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		colNames[i] = c.Name
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(colNames, ", "), t.Name)
	rows, err := im.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("importer: select from %q: %w", t.Name, err)
	}
	defer rows.Close()

	scanDest := make([]any, len(t.Columns))
	scanVals := make([]sql.NullString, len(t.Columns))
	for i := range scanVals {
		scanDest[i] = &scanVals[i]
	}

	var batch []string
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", t.Name, strings.Join(colNames, ", "), strings.Join(batch, ", "))
		batch = batch[:0]
		return emit(stmt)
	}

	for rows.Next() {
		if err := rows.Scan(scanDest...); err != nil {
			return err
		}
		tuple := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			tuple[i] = literalSQL(c.Type, scanVals[i])
		}
		batch = append(batch, "("+strings.Join(tuple, ", ")+")")
		if len(batch) >= im.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return flush()
}

func literalSQL(t value.Type, v sql.NullString) string {
	if !v.Valid {
		return "NULL"
	}
	if t == value.TypeInteger {
		if _, err := strconv.ParseInt(v.String, 10, 64); err != nil {
			return "NULL"
		}
		return v.String
	}
	return "'" + strings.ReplaceAll(v.String, "'", "''") + "'"
}

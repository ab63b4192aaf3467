// Package duckdb hosts an in-memory DuckDB database on one pinned connection.
// Loaded sheets and every intermediate frame live there as plain tables.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	driver "github.com/marcboeker/go-duckdb/v2"
)

type Column struct {
	Name string
	Type string
}

type Rows struct {
	Columns []Column
	Values  [][]any
}

type Engine struct {
	db   *sql.DB
	conn *sql.Conn
	seq  int
}

// Open starts an empty in-memory database. Close releases it and everything
// loaded into it.
func Open(ctx context.Context) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pin duckdb connection: %w", err)
	}
	// A single thread keeps scan order stable for positional operations.
	if _, err := conn.ExecContext(ctx, "SET threads TO 1"); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, fmt.Errorf("configure duckdb: %w", err)
	}
	return &Engine{db: db, conn: conn}, nil
}

func (e *Engine) Close() error {
	connErr := e.conn.Close()
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("close duckdb: %w", err)
	}
	if connErr != nil {
		return fmt.Errorf("close duckdb connection: %w", connErr)
	}
	return nil
}

// NewTableName returns a table name that has not been handed out before.
func (e *Engine) NewTableName(prefix string) string {
	e.seq++
	return prefix + "_" + strconv.Itoa(e.seq)
}

func (e *Engine) Exec(ctx context.Context, statement string, args ...any) error {
	if _, err := e.conn.ExecContext(ctx, statement, args...); err != nil {
		return fmt.Errorf("execute statement: %w", err)
	}
	return nil
}

func (e *Engine) Query(ctx context.Context, statement string, args ...any) (Rows, error) {
	rows, err := e.conn.QueryContext(ctx, stripTrailingSemicolons(statement), args...)
	if err != nil {
		return Rows{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	types, err := rows.ColumnTypes()
	if err != nil {
		return Rows{}, fmt.Errorf("query columns: %w", err)
	}
	columns := make([]Column, len(types))
	for i, columnType := range types {
		columns[i] = Column{Name: columnType.Name(), Type: columnType.DatabaseTypeName()}
	}

	values := make([][]any, 0)
	for rows.Next() {
		row := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range row {
			scanTargets[i] = &row[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Rows{}, fmt.Errorf("scan row: %w", err)
		}
		values = append(values, normalizeValues(row))
	}
	if err := rows.Err(); err != nil {
		return Rows{}, fmt.Errorf("iterate rows: %w", err)
	}
	return Rows{Columns: columns, Values: values}, nil
}

// QueryValue returns the single value of a one-row, one-column query.
func (e *Engine) QueryValue(ctx context.Context, statement string, args ...any) (any, Column, error) {
	rows, err := e.Query(ctx, statement, args...)
	if err != nil {
		return nil, Column{}, err
	}
	if len(rows.Columns) == 0 {
		return nil, Column{}, fmt.Errorf("query returned no columns")
	}
	if len(rows.Values) == 0 {
		return nil, rows.Columns[0], nil
	}
	return rows.Values[0][0], rows.Columns[0], nil
}

func (e *Engine) Describe(ctx context.Context, table string) ([]Column, error) {
	rows, err := e.Query(ctx, "DESCRIBE "+QuoteIdent(table))
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	return describedColumns(rows), nil
}

// DescribeQuery reports the result columns of a SELECT without running it.
func (e *Engine) DescribeQuery(ctx context.Context, selectSQL string) ([]Column, error) {
	rows, err := e.Query(ctx, "DESCRIBE "+stripTrailingSemicolons(selectSQL))
	if err != nil {
		return nil, err
	}
	return describedColumns(rows), nil
}

func describedColumns(rows Rows) []Column {
	columns := make([]Column, 0, len(rows.Values))
	for _, row := range rows.Values {
		if len(row) < 2 {
			continue
		}
		columns = append(columns, Column{Name: fmt.Sprint(row[0]), Type: fmt.Sprint(row[1])})
	}
	return columns
}

// Materialize stores the result of a SELECT as a new table.
func (e *Engine) Materialize(ctx context.Context, selectSQL string) (string, []Column, error) {
	table := e.NewTableName("f")
	if err := e.Exec(ctx, "CREATE TABLE "+QuoteIdent(table)+" AS "+stripTrailingSemicolons(selectSQL)); err != nil {
		return "", nil, err
	}
	columns, err := e.Describe(ctx, table)
	if err != nil {
		return "", nil, err
	}
	return table, columns, nil
}

// LoadStrings creates table from text cells, typing each column by what all
// of its non-empty cells parse as. Empty cells load as NULL.
func (e *Engine) LoadStrings(ctx context.Context, table string, names []string, cells [][]string) ([]Column, error) {
	columns := make([]Column, len(names))
	for i, name := range names {
		values := make([]string, 0, len(cells))
		for _, row := range cells {
			if i < len(row) {
				values = append(values, row[i])
			}
		}
		columns[i] = Column{Name: name, Type: InferType(values)}
	}
	rows := make([][]any, len(cells))
	for r, row := range cells {
		converted := make([]any, len(columns))
		for i, column := range columns {
			if i < len(row) {
				converted[i] = convertCell(row[i], column.Type)
			}
		}
		rows[r] = converted
	}
	if err := e.create(ctx, table, columns, rows); err != nil {
		return nil, err
	}
	return columns, nil
}

// LoadValues creates table from Go values such as rows read from another
// database.
func (e *Engine) LoadValues(ctx context.Context, table string, names []string, rows [][]any) ([]Column, error) {
	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{Name: name, Type: inferValueType(rows, i)}
	}
	converted := make([][]any, len(rows))
	for r, row := range rows {
		out := make([]any, len(columns))
		for i, column := range columns {
			if i < len(row) {
				out[i] = convertValue(row[i], column.Type)
			}
		}
		converted[r] = out
	}
	if err := e.create(ctx, table, columns, converted); err != nil {
		return nil, err
	}
	return columns, nil
}

// LoadParquet exposes a parquet file as a view scanned in place.
func (e *Engine) LoadParquet(ctx context.Context, table, path string) ([]Column, error) {
	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, QuoteIdent(table), QuoteString(path))
	if err := e.Exec(ctx, viewSQL); err != nil {
		return nil, fmt.Errorf("create view for %q: %w", path, err)
	}
	return e.Describe(ctx, table)
}

func (e *Engine) create(ctx context.Context, table string, columns []Column, rows [][]any) error {
	definitions := make([]string, 0, len(columns))
	for _, column := range columns {
		definitions = append(definitions, QuoteIdent(column.Name)+" "+column.Type)
	}
	if len(definitions) == 0 {
		definitions = append(definitions, QuoteIdent(EmptyColumn)+" INTEGER")
	}
	if err := e.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", QuoteIdent(table), strings.Join(definitions, ", "))); err != nil {
		return fmt.Errorf("create table %q: %w", table, err)
	}
	if len(rows) == 0 || len(columns) == 0 {
		return nil
	}

	tx, err := e.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load of %q: %w", table, err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", QuoteIdent(table), placeholders))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare load of %q: %w", table, err)
	}
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("load row into %q: %w", table, err)
		}
	}
	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("finish load of %q: %w", table, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit load of %q: %w", table, err)
	}
	return nil
}

// EmptyColumn is the placeholder column of a table loaded without columns.
const EmptyColumn = "__empty"

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case driver.Decimal:
			normalized[i] = typed.Float64()
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func QuoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

package executor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nlquery/nlquery/internal/query"
)

// Querier is satisfied by *sql.Conn, *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn is a Querier that can open transactions, such as *sql.Conn or *sql.DB.
type Conn interface {
	Querier
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// SplitStatements splits on semicolons outside quotes and comments and drops
// empty statements. Comments are replaced by a single space.
func SplitStatements(sqlText string) []string {
	var (
		out     []string
		current strings.Builder
	)
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			out = append(out, stmt)
		}
		current.Reset()
	}
	for _, tok := range lexSQL(sqlText) {
		switch tok.kind {
		case tokenSemicolon:
			flush()
		case tokenComment:
			current.WriteByte(' ')
		default:
			current.WriteString(tok.text)
		}
	}
	flush()
	return out
}

// Keyword returns the leading keyword of stmt in upper case.
func Keyword(stmt string) string {
	for _, tok := range lexSQL(stmt) {
		switch tok.kind {
		case tokenWord:
			return strings.ToUpper(tok.text)
		case tokenSpace, tokenComment:
		default:
			if tok.text != "(" {
				return ""
			}
		}
	}
	return ""
}

// IsWrite reports whether stmt is refused when writes are disabled.
func IsWrite(stmt string) bool {
	return newStatementGuard().check(stmt) != nil
}

// RunStatements executes every statement of sqlText in order and returns the
// rows of the last one. Unless allowWrites is set, every statement must pass
// the read guard before anything runs, and the batch runs in a read-only
// transaction that is rolled back afterwards.
func RunStatements(ctx context.Context, conn Conn, sqlText string, allowWrites bool) ([]string, [][]any, error) {
	statements := SplitStatements(sqlText)
	if len(statements) == 0 {
		return nil, nil, fmt.Errorf("no SQL statement to execute")
	}
	if allowWrites {
		return runAll(ctx, conn, statements)
	}

	guard := newStatementGuard()
	for _, stmt := range statements {
		if err := guard.check(stmt); err != nil {
			return nil, nil, err
		}
	}
	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return runAll(ctx, tx, statements)
}

func runAll(ctx context.Context, q Querier, statements []string) ([]string, [][]any, error) {
	last := len(statements) - 1
	for _, stmt := range statements[:last] {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return nil, nil, err
		}
	}
	return QueryRows(ctx, q, statements[last])
}

// QueryRows runs one statement and returns its normalized rows.
func QueryRows(ctx context.Context, q Querier, stmt string) ([]string, [][]any, error) {
	rows, err := q.QueryContext(ctx, stmt)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	dbTypes := make([]string, len(columns))
	if columnTypes, err := rows.ColumnTypes(); err == nil {
		for i, columnType := range columnTypes {
			if i < len(dbTypes) {
				dbTypes[i] = columnType.DatabaseTypeName()
			}
		}
	}

	out := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, nil, err
		}
		out = append(out, query.NormalizeRow(values, dbTypes))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, out, nil
}

package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nlquery/nlquery/internal/connector"
	"github.com/nlquery/nlquery/internal/source"
	"github.com/nlquery/nlquery/internal/workbook"
)

type Introspector interface {
	Relational(ctx context.Context, cfg source.RelationalConfig) (Description, error)
	Tabular(ctx context.Context, cfg source.TabularConfig) (Description, error)
}

// LiveIntrospector reads schemas from the live sources through the resolver.
type LiveIntrospector struct {
	Resolver *connector.Resolver
}

func (l *LiveIntrospector) Relational(ctx context.Context, cfg source.RelationalConfig) (Description, error) {
	db, err := l.Resolver.Relational(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	return IntrospectDB(ctx, db, cfg.DriverName())
}

func (l *LiveIntrospector) Tabular(_ context.Context, cfg source.TabularConfig) (Description, error) {
	path, err := l.Resolver.Tabular(cfg)
	if err != nil {
		return nil, err
	}
	book, err := workbook.Load(path)
	if err != nil {
		return nil, err
	}
	return Description(book.Headers()), nil
}

func IntrospectDB(ctx context.Context, db *sql.DB, driver string) (Description, error) {
	if driver == source.DriverPostgres {
		return introspectPostgres(ctx, db)
	}
	return introspectMySQL(ctx, db)
}

func introspectMySQL(ctx context.Context, db *sql.DB) (Description, error) {
	tables, err := queryFirstColumn(ctx, db, "SHOW TABLES")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	out := make(Description, len(tables))
	for _, table := range tables {
		columns, err := queryFirstColumn(ctx, db, "DESCRIBE "+QuoteMySQLIdent(table))
		if err != nil {
			return nil, fmt.Errorf("describe table %q: %w", table, err)
		}
		out[table] = columns
	}
	return out, nil
}

const postgresColumnsSQL = `SELECT c.table_name, c.column_name
FROM information_schema.columns c
JOIN information_schema.tables t ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = current_schema() AND t.table_type IN ('BASE TABLE', 'VIEW')
ORDER BY c.table_name, c.ordinal_position`

func introspectPostgres(ctx context.Context, db *sql.DB) (Description, error) {
	rows, err := db.QueryContext(ctx, postgresColumnsSQL)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := Description{}
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		out[table] = append(out[table], column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return out, nil
}

// queryFirstColumn returns the first column of every row, whatever the
// statement's width.
func queryFirstColumn(ctx context.Context, db *sql.DB, statement string) ([]string, error) {
	rows, err := db.QueryContext(ctx, statement)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []string{}
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		out = append(out, asString(values[0]))
	}
	return out, rows.Err()
}

func asString(value any) string {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	case string:
		return typed
	case nil:
		return ""
	default:
		return fmt.Sprint(typed)
	}
}

func QuoteMySQLIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

package executor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nlquery/nlquery/internal/framescript"
	"github.com/nlquery/nlquery/internal/query"
	"github.com/nlquery/nlquery/internal/query/duckdb"
	"github.com/nlquery/nlquery/internal/source"
	"github.com/nlquery/nlquery/internal/workbook"
)

const resultName = "result"

func (e *Executor) tabular(ctx context.Context, cfg source.Config, artifact string) (query.Result, error) {
	if cfg.Tabular == nil {
		err := fmt.Errorf("%w: tabular settings are missing", source.ErrInvalidConfig)
		return query.Failure(err.Error()), err
	}
	path, err := e.resolver.Tabular(*cfg.Tabular)
	if err != nil {
		return query.Failure("Failed to get Excel file path: " + err.Error()), fmt.Errorf("%w: %w", ErrConnection, err)
	}
	result, err := e.runScript(ctx, path, nil, artifact)
	if err != nil {
		return query.Failure("Excel Query Execution Error: " + err.Error()), fmt.Errorf("%w: %w", ErrExecution, err)
	}
	return result, nil
}

func (e *Executor) combined(ctx context.Context, cfg source.Config, artifact string) (query.Result, error) {
	if cfg.Relational == nil || cfg.Tabular == nil {
		return query.Failure(ErrBothSourcesRequired.Error()), ErrBothSourcesRequired
	}
	db, err := e.resolver.Relational(ctx, *cfg.Relational)
	if err != nil {
		return query.Failure(ErrBothSourcesRequired.Error()), fmt.Errorf("%w: %w", ErrBothSourcesRequired, err)
	}
	defer db.Close()
	path, err := e.resolver.Tabular(*cfg.Tabular)
	if err != nil {
		return query.Failure(ErrBothSourcesRequired.Error()), fmt.Errorf("%w: %w", ErrBothSourcesRequired, err)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return query.Failure(ErrBothSourcesRequired.Error()), fmt.Errorf("%w: %w", ErrBothSourcesRequired, err)
	}
	defer conn.Close()

	result, err := e.runScript(ctx, path, conn, artifact)
	if err != nil {
		return query.Failure("Combined query execution error: " + err.Error()), fmt.Errorf("%w: %w", ErrExecution, err)
	}
	return result, nil
}

// runScript loads every sheet of path into a fresh in-memory engine, runs the
// script and turns its namespace into a result. conn is bound for read_sql
// when set.
func (e *Executor) runScript(ctx context.Context, path string, conn *sql.Conn, artifact string) (query.Result, error) {
	book, err := workbook.Load(path)
	if err != nil {
		return query.Result{}, err
	}
	engine, err := duckdb.Open(ctx)
	if err != nil {
		return query.Result{}, err
	}
	defer engine.Close()

	rt := framescript.New(engine)
	if err := bindSheets(ctx, rt, book); err != nil {
		return query.Result{}, err
	}
	rt.Bind("excel_file", path)
	rt.Bind(resultName, nil)
	if conn != nil {
		rt.Bind("conn", &framescript.Connection{})
		rt.SetReadSQL(func(ctx context.Context, statement string) ([]string, [][]any, error) {
			return RunStatements(ctx, conn, statement, e.opts.AllowWrites)
		})
	}

	if err := rt.Exec(ctx, artifact); err != nil {
		return query.Result{}, err
	}
	return collect(ctx, rt)
}

// bindSheets exposes each sheet under its sanitized name and its load
// position, and all of them through excel_data.
func bindSheets(ctx context.Context, rt *framescript.Runtime, book *workbook.Workbook) error {
	sheets := framescript.NewDict()
	for i, sheet := range book.Sheets {
		var (
			frame *framescript.Frame
			err   error
		)
		if sheet.ParquetPath != "" {
			frame, err = rt.LoadParquet(ctx, sheet.ParquetPath)
		} else {
			frame, err = rt.LoadTable(ctx, sheet.Columns, sheet.Rows)
		}
		if err != nil {
			return fmt.Errorf("load sheet %q: %w", sheet.Name, err)
		}
		rt.Bind(workbook.SanitizeName(sheet.Name), frame)
		rt.Bind(workbook.PositionalAlias(i), frame)
		sheets.Set(sheet.Name, frame)
	}
	rt.Bind("excel_data", sheets)
	return nil
}

// collect reads the outcome of a script run: a frame result becomes rows, a
// scalar one row, anything else its printed form; without a result the
// captured print output is returned.
func collect(ctx context.Context, rt *framescript.Runtime) (query.Result, error) {
	value, _ := rt.Lookup(resultName)
	switch v := value.(type) {
	case nil:
	case *framescript.Frame:
		columns, rows, err := rt.Records(ctx, v)
		if err != nil {
			return query.Result{}, err
		}
		return query.FromValues(columns, rows), nil
	default:
		if framescript.IsScalar(v) {
			return query.Scalar(v), nil
		}
		text, err := rt.String(ctx, v)
		if err != nil {
			return query.Result{}, err
		}
		return query.Scalar(text), nil
	}
	if output := rt.Output(); len(output) > 0 {
		return query.Output(output), nil
	}
	return query.Empty(), nil
}

// Package executor runs generated artifacts against the live source: SQL
// statements on a relational connection, data-frame scripts on a freshly
// loaded spreadsheet, or a script that reads from both.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nlquery/nlquery/internal/observability"
	"github.com/nlquery/nlquery/internal/query"
	"github.com/nlquery/nlquery/internal/source"
)

var (
	ErrConnection          = errors.New("connection error")
	ErrExecution           = errors.New("execution error")
	ErrBothSourcesRequired = errors.New("Both relational and tabular sources are required for combined execution")
	ErrWriteNotAllowed     = errors.New("write statements are not allowed")
)

// Resolver is the part of connector.Resolver the executor needs.
type Resolver interface {
	Relational(ctx context.Context, cfg source.RelationalConfig) (*sql.DB, error)
	Tabular(cfg source.TabularConfig) (string, error)
}

type Options struct {
	AllowWrites bool
	Logger      *slog.Logger
}

type Executor struct {
	resolver Resolver
	opts     Options
}

func New(resolver Resolver, opts Options) *Executor {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{resolver: resolver, opts: opts}
}

// Execute runs artifact against cfg. A failure is reported twice: as the
// error-tagged result shown to the user and as an error for the caller to log.
func (e *Executor) Execute(ctx context.Context, cfg source.Config, artifact string) (query.Result, error) {
	start := time.Now()
	var (
		result query.Result
		err    error
	)
	switch cfg.Kind {
	case source.KindRelational:
		result, err = e.runSQL(ctx, cfg.Relational, artifact)
	case source.KindTabular:
		result, err = e.tabular(ctx, cfg, artifact)
	case source.KindCombined:
		result, err = e.combined(ctx, cfg, artifact)
	default:
		err = fmt.Errorf("%w: unknown source kind %q", source.ErrInvalidConfig, cfg.Kind)
		result = query.Failure(err.Error())
	}
	result.Duration = time.Since(start)
	observability.ObserveExecution(string(cfg.Kind), result.RowCount(), result.Failed(), result.Duration)
	if err != nil {
		e.opts.Logger.WarnContext(ctx, "artifact execution failed",
			slog.String("kind", string(cfg.Kind)),
			slog.String("session_id", observability.SessionIDFromContext(ctx)),
			slog.String("error", observability.Mask(err.Error())),
		)
	}
	return result, err
}

func (e *Executor) runSQL(ctx context.Context, cfg *source.RelationalConfig, artifact string) (query.Result, error) {
	if cfg == nil {
		err := fmt.Errorf("%w: relational settings are missing", source.ErrInvalidConfig)
		return query.Failure(err.Error()), err
	}
	db, err := e.resolver.Relational(ctx, *cfg)
	if err != nil {
		return query.Failure("Failed to establish database connection: " + err.Error()), fmt.Errorf("%w: %w", ErrConnection, err)
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return query.Failure("Failed to establish database connection: " + err.Error()), fmt.Errorf("%w: %w", ErrConnection, err)
	}
	defer conn.Close()

	columns, rows, err := RunStatements(ctx, conn, artifact, e.opts.AllowWrites)
	if err != nil {
		return query.Failure("SQL Execution Error: " + err.Error()), fmt.Errorf("%w: %w", ErrExecution, err)
	}
	return query.FromValues(columns, rows), nil
}

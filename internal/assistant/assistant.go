// Package assistant runs the question pipeline for a session: schema, prompt,
// generation and execution. Every failure ends up in the returned result;
// nothing here panics or aborts the caller.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nlquery/nlquery/internal/generator"
	"github.com/nlquery/nlquery/internal/observability"
	"github.com/nlquery/nlquery/internal/prompt"
	"github.com/nlquery/nlquery/internal/query"
	"github.com/nlquery/nlquery/internal/schema"
	"github.com/nlquery/nlquery/internal/session"
	"github.com/nlquery/nlquery/internal/source"
	"github.com/nlquery/nlquery/internal/workbook"
)

const (
	msgNoSchema       = "Cannot generate query without a database schema. Please connect to a database first."
	msgEmptyQuestion  = "Please enter a question."
	msgNotConnected   = "No data source connected. Please connect to a database first."
	errPrefixGenerate = "Error generating query: "
	errPrefixCombined = "Error generating combined query: "
	errPrefixSchema   = "Error fetching schema: "
)

var ErrNoSchema = errors.New("empty schema")

type SchemaSource interface {
	Get(ctx context.Context, cfg source.Config) (schema.Description, error)
	Refresh(ctx context.Context, cfg source.Config) (schema.Description, error)
	GetCombined(ctx context.Context, cfg source.Config) (schema.Combined, error)
	RefreshCombined(ctx context.Context, cfg source.Config) (schema.Combined, error)
}

type Runner interface {
	Execute(ctx context.Context, cfg source.Config, artifact string) (query.Result, error)
}

type Options struct {
	Prompt prompt.Options
	Logger *slog.Logger
	// ListSheets reports the load order of a spreadsheet; workbook.ListSheets
	// when nil.
	ListSheets func(path string) ([]string, error)
	// Connector opens live sources for freshness checks.
	Connector Connector
}

type Assistant struct {
	schemas   SchemaSource
	generator generator.Generator
	runner    Runner
	opts      Options
}

type Answer struct {
	Question string                 `json:"question"`
	Artifact string                 `json:"artifact,omitempty"`
	Kind     generator.ArtifactKind `json:"kind,omitempty"`
	Result   query.Result           `json:"result"`
	Provider string                 `json:"provider,omitempty"`
	Model    string                 `json:"model,omitempty"`
	Duration time.Duration          `json:"-"`
}

func New(schemas SchemaSource, gen generator.Generator, runner Runner, opts Options) *Assistant {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.ListSheets == nil {
		opts.ListSheets = workbook.ListSheets
	}
	return &Assistant{schemas: schemas, generator: gen, runner: runner, opts: opts}
}

// Schema returns the session's schema, a schema.Description for single
// sources or a schema.Combined, and remembers it on the session.
func (a *Assistant) Schema(ctx context.Context, s *session.Session, refresh bool) (any, error) {
	cfg, err := s.Source()
	if err != nil {
		return nil, err
	}
	var out any
	if cfg.Kind == source.KindCombined {
		get := a.schemas.GetCombined
		if refresh {
			get = a.schemas.RefreshCombined
		}
		out, err = get(ctx, cfg)
	} else {
		get := a.schemas.Get
		if refresh {
			get = a.schemas.Refresh
		}
		out, err = get(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}
	s.SetSchema(out)
	return out, nil
}

// Ask turns a question into an artifact and runs it.
func (a *Assistant) Ask(ctx context.Context, s *session.Session, question string) Answer {
	start := time.Now()
	answer := a.ask(ctx, s, question)
	answer.Duration = time.Since(start)
	a.opts.Logger.InfoContext(ctx, "question answered",
		slog.String("session_id", s.ID),
		slog.String("kind", string(answer.Kind)),
		slog.Bool("failed", answer.Result.Failed()),
		slog.Int("rows", answer.Result.RowCount()),
		slog.Duration("duration", answer.Duration),
	)
	return answer
}

func (a *Assistant) ask(ctx context.Context, s *session.Session, question string) Answer {
	answer := Answer{Question: question}
	question = strings.TrimSpace(question)
	if question == "" {
		answer.Result = query.Failure(msgEmptyQuestion)
		return answer
	}
	cfg, err := s.Source()
	if err != nil {
		answer.Result = query.Failure(msgNotConnected)
		return answer
	}

	promptText, err := a.buildPrompt(ctx, s, cfg, question)
	if err != nil {
		if errors.Is(err, ErrNoSchema) {
			answer.Result = query.Failure(msgNoSchema)
		} else {
			answer.Result = query.Failure(errPrefixSchema + err.Error())
		}
		a.logFailure(ctx, s, "schema", err)
		return answer
	}

	answer.Kind = generator.ArtifactScript
	if cfg.Kind == source.KindRelational {
		answer.Kind = generator.ArtifactSQL
	}
	generated, err := a.generate(ctx, generator.Request{Prompt: promptText, Kind: answer.Kind})
	if err != nil {
		prefix := errPrefixGenerate
		if cfg.Kind == source.KindCombined {
			prefix = errPrefixCombined
		}
		answer.Result = query.Failure(prefix + err.Error())
		a.logFailure(ctx, s, "generate", err)
		return answer
	}
	answer.Artifact = generated.Artifact
	answer.Provider = generated.Provider
	answer.Model = generated.Model

	answer.Result, _ = a.runner.Execute(ctx, cfg, generated.Artifact)
	return answer
}

// Execute runs an artifact the caller already has, skipping generation.
func (a *Assistant) Execute(ctx context.Context, s *session.Session, artifact string) query.Result {
	cfg, err := s.Source()
	if err != nil {
		return query.Failure(msgNotConnected)
	}
	if strings.TrimSpace(artifact) == "" {
		return query.Failure("Nothing to execute.")
	}
	result, _ := a.runner.Execute(ctx, cfg, artifact)
	return result
}

// DescribeSchema asks the model for an overview of the schema and a few
// example questions.
func (a *Assistant) DescribeSchema(ctx context.Context, s *session.Session) (string, error) {
	cfg, err := s.Source()
	if err != nil {
		return "", err
	}
	value, err := a.Schema(ctx, s, false)
	if err != nil {
		return "", err
	}
	var description schema.Description
	switch typed := value.(type) {
	case schema.Description:
		description = typed
	case schema.Combined:
		description = make(schema.Description, len(typed.Relational)+len(typed.Tabular))
		for name, columns := range typed.Relational {
			description[name+" (database table)"] = columns
		}
		for name, columns := range typed.Tabular {
			description[name+" (spreadsheet sheet)"] = columns
		}
	}
	if len(description) == 0 {
		return "", ErrNoSchema
	}
	generated, err := a.generate(ctx, generator.Request{
		Prompt: prompt.BuildDescribe(description, string(cfg.Kind)),
		Kind:   generator.ArtifactText,
	})
	if err != nil {
		a.logFailure(ctx, s, "describe", err)
		return "", err
	}
	return generated.Artifact, nil
}

func (a *Assistant) buildPrompt(ctx context.Context, s *session.Session, cfg source.Config, question string) (string, error) {
	value, err := a.Schema(ctx, s, false)
	if err != nil {
		return "", err
	}
	opts := a.promptOptions(cfg)
	switch typed := value.(type) {
	case schema.Combined:
		if len(typed.Relational) == 0 && len(typed.Tabular) == 0 {
			return "", ErrNoSchema
		}
		return prompt.BuildCombined(question, typed, opts), nil
	case schema.Description:
		if len(typed) == 0 {
			return "", ErrNoSchema
		}
		return prompt.Build(question, typed, cfg.Kind, opts)
	}
	return "", fmt.Errorf("unexpected schema type %T", value)
}

func (a *Assistant) promptOptions(cfg source.Config) prompt.Options {
	opts := a.opts.Prompt
	if cfg.Relational != nil {
		opts.Dialect = prompt.DialectFor(cfg.Relational.DriverName())
	}
	if cfg.Tabular != nil {
		if order, err := a.opts.ListSheets(cfg.Tabular.Path); err == nil {
			opts.SheetOrder = order
		}
	}
	return opts
}

func (a *Assistant) generate(ctx context.Context, req generator.Request) (generator.Result, error) {
	start := time.Now()
	result, err := a.generator.Generate(ctx, req)
	provider := result.Provider
	var genErr *generator.Error
	if errors.As(err, &genErr) {
		provider = genErr.Provider
	}
	observability.ObserveGeneration(provider, err, time.Since(start))
	return result, err
}

func (a *Assistant) logFailure(ctx context.Context, s *session.Session, stage string, err error) {
	a.opts.Logger.WarnContext(ctx, "question pipeline failed",
		slog.String("session_id", s.ID),
		slog.String("stage", stage),
		slog.String("error", observability.Mask(err.Error())),
	)
}

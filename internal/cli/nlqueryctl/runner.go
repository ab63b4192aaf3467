// Package nlqueryctl is the command line front end: one-shot questions,
// artifact runs and schema inspection against a named source profile.
package nlqueryctl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/nlquery/nlquery/internal/assistant"
	"github.com/nlquery/nlquery/internal/config"
	"github.com/nlquery/nlquery/internal/observability"
	"github.com/nlquery/nlquery/internal/query"
	"github.com/nlquery/nlquery/internal/session"
	"github.com/nlquery/nlquery/internal/source"
)

type Pipeline interface {
	Schema(ctx context.Context, s *session.Session, refresh bool) (any, error)
	DescribeSchema(ctx context.Context, s *session.Session) (string, error)
	Ask(ctx context.Context, s *session.Session, question string) assistant.Answer
	Execute(ctx context.Context, s *session.Session, artifact string) query.Result
}

type PipelineFactory func(ctx context.Context, cfg config.Config, logger *slog.Logger) (Pipeline, error)

type Options struct {
	Stdout     io.Writer
	Stderr     io.Writer
	Stdin      io.Reader
	Lookup     config.LookupFunc
	HTTPClient *http.Client
	// NewPipeline builds the question pipeline; assistant.FromConfig when nil.
	NewPipeline PipelineFactory
}

type cli struct {
	Sources string `help:"Source profile file." default:"sources.yaml" env:"NLQUERY_SOURCES"`
	Source  string `help:"Source profile to use; optional when the file has one profile." short:"s" env:"NLQUERY_SOURCE"`
	JSON    bool   `help:"Print results as JSON."`
	Verbose bool   `help:"Log pipeline progress to stderr." short:"v"`

	Ask      askCmd      `cmd:"" help:"Ask a question in natural language."`
	Exec     execCmd     `cmd:"" help:"Run a SQL statement or data-frame script. Use - to read it from stdin."`
	Schema   schemaCmd   `cmd:"" help:"Show tables or sheets with their columns."`
	Describe describeCmd `cmd:"" help:"Describe the schema and suggest questions."`
	Profiles profilesCmd `cmd:"" help:"List source profiles."`
	Health   healthCmd   `cmd:"" help:"Check a running API server."`
}

type runContext struct {
	ctx    context.Context
	cli    *cli
	opts   Options
	stdout io.Writer
	stderr io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	if defaults.Stdin == nil {
		defaults.Stdin = strings.NewReader("")
	}
	if defaults.Lookup == nil {
		defaults.Lookup = os.LookupEnv
	}

	var (
		c        cli
		exited   bool
		exitCode int
	)
	parser, err := kong.New(&c,
		kong.Name("nlqueryctl"),
		kong.Description("Ask questions about a database or spreadsheet in plain language."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) {
			exited = true
			exitCode = code
		}),
		kong.Resolvers(envResolver(defaults.Lookup)),
	)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "cli setup failed: %v\n", err)
		return 2
	}
	kctx, err := parser.Parse(args)
	if exited {
		return exitCode
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	rc := &runContext{ctx: ctx, cli: &c, opts: defaults, stdout: stdout, stderr: stderr}
	if err := kctx.Run(rc); err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", observability.Mask(err.Error()))
		return 1
	}
	return 0
}

// envResolver fills flags tagged env:"..." from the injected lookup so tests
// never read the process environment.
func envResolver(lookup config.LookupFunc) kong.Resolver {
	return kong.ResolverFunc(func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		for _, name := range flag.Envs {
			if value, ok := lookup(name); ok && value != "" {
				return value, nil
			}
		}
		return nil, nil
	})
}

// session loads the profile, builds the pipeline and connects a fresh
// in-memory session to the source.
func (rc *runContext) session() (Pipeline, *session.Session, error) {
	cfg, err := rc.profile()
	if err != nil {
		return nil, nil, err
	}
	appCfg, err := config.Load("nlqueryctl", rc.opts.Lookup)
	if err != nil {
		return nil, nil, err
	}
	if !rc.cli.Verbose {
		appCfg.Observability.LogLevel = slog.LevelWarn
	}
	logger := observability.NewLogger(appCfg, rc.stderr)

	factory := rc.opts.NewPipeline
	if factory == nil {
		factory = buildPipeline
	}
	pipeline, err := factory(rc.ctx, appCfg, logger)
	if err != nil {
		return nil, nil, err
	}
	manager := session.NewManager()
	s := manager.Create()
	if _, err := manager.Connect(s.ID, cfg); err != nil {
		return nil, nil, err
	}
	return pipeline, s, nil
}

func (rc *runContext) profiles() (source.Profiles, error) {
	data, err := os.ReadFile(rc.cli.Sources)
	if err != nil {
		return nil, fmt.Errorf("read source profiles: %w", err)
	}
	return source.ParseProfiles(data, rc.opts.Lookup)
}

func (rc *runContext) profile() (source.Config, error) {
	profiles, err := rc.profiles()
	if err != nil {
		return source.Config{}, err
	}
	name := strings.TrimSpace(rc.cli.Source)
	if name == "" {
		names := profiles.Names()
		if len(names) != 1 {
			return source.Config{}, fmt.Errorf("--source is required, profiles in %s: %s", rc.cli.Sources, strings.Join(names, ", "))
		}
		name = names[0]
	}
	return profiles.Get(name)
}

func buildPipeline(ctx context.Context, cfg config.Config, logger *slog.Logger) (Pipeline, error) {
	stack, err := assistant.FromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return stack.Assistant, nil
}

func (rc *runContext) httpClient(timeout time.Duration) *http.Client {
	if rc.opts.HTTPClient != nil {
		return rc.opts.HTTPClient
	}
	return &http.Client{Timeout: timeout}
}

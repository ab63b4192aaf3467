package assistant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nlquery/nlquery/internal/config"
	"github.com/nlquery/nlquery/internal/connector"
	"github.com/nlquery/nlquery/internal/executor"
	"github.com/nlquery/nlquery/internal/generator"
	"github.com/nlquery/nlquery/internal/prompt"
	"github.com/nlquery/nlquery/internal/schema"
	"github.com/nlquery/nlquery/internal/storage"
	fsstore "github.com/nlquery/nlquery/internal/storage/fs"
	s3store "github.com/nlquery/nlquery/internal/storage/s3"
)

// Stack is the assistant plus the resolver it was built on; binaries hand the
// resolver to the API for source checks.
type Stack struct {
	Assistant *Assistant
	Resolver  *connector.Resolver
}

func FromConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Stack, error) {
	blobs, err := openSchemaBlobs(ctx, cfg)
	if err != nil {
		return nil, err
	}
	gen, err := generator.New(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("init generator: %w", err)
	}

	resolver := connector.New(cfg.Executor.ConnectTimeout)
	cache := schema.NewCache(schema.NewRecordStore(blobs), &schema.LiveIntrospector{Resolver: resolver}, logger)
	runner := executor.New(resolver, executor.Options{AllowWrites: cfg.Executor.AllowWrites, Logger: logger})
	a := New(cache, gen, runner, Options{
		Prompt: prompt.Options{
			DefaultRowLimit:    cfg.Prompt.DefaultRowLimit,
			MaxColumnsPerTable: cfg.Prompt.MaxColumnsPerTable,
		},
		Logger:    logger,
		Connector: resolver,
	})
	return &Stack{Assistant: a, Resolver: resolver}, nil
}

func openSchemaBlobs(ctx context.Context, cfg config.Config) (storage.Blobs, error) {
	switch cfg.SchemaCache.Backend {
	case config.SchemaBackendObject:
		store, err := s3store.New(ctx, s3store.ConfigFrom(cfg.ObjectStore))
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
		return store, nil
	default:
		store, err := fsstore.New(cfg.SchemaCache.Dir)
		if err != nil {
			return nil, fmt.Errorf("init schema dir: %w", err)
		}
		return store, nil
	}
}

package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nlquery/nlquery/internal/observability"
	"github.com/nlquery/nlquery/internal/source"
)

// Cache serves schema descriptions, introspecting the live source only when
// the persisted record belongs to a different source identity.
type Cache struct {
	Store        Store
	Introspector Introspector
	Logger       *slog.Logger
}

func NewCache(store Store, introspector Introspector, logger *slog.Logger) *Cache {
	return &Cache{Store: store, Introspector: introspector, Logger: logger}
}

// Get returns the description of a relational or tabular source.
func (c *Cache) Get(ctx context.Context, cfg source.Config) (Description, error) {
	return c.get(ctx, cfg, false)
}

// Refresh introspects the live source and overwrites the persisted record.
func (c *Cache) Refresh(ctx context.Context, cfg source.Config) (Description, error) {
	return c.get(ctx, cfg, true)
}

func (c *Cache) GetCombined(ctx context.Context, cfg source.Config) (Combined, error) {
	return c.getCombined(ctx, cfg, false)
}

func (c *Cache) RefreshCombined(ctx context.Context, cfg source.Config) (Combined, error) {
	return c.getCombined(ctx, cfg, true)
}

func (c *Cache) get(ctx context.Context, cfg source.Config, force bool) (Description, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case source.KindRelational:
		return c.relational(ctx, *cfg.Relational, force)
	case source.KindTabular:
		return c.tabular(ctx, *cfg.Tabular, force)
	case source.KindCombined:
		return nil, fmt.Errorf("%w: combined sources expose two descriptions", source.ErrInvalidConfig)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", source.ErrInvalidConfig, cfg.Kind)
	}
}

func (c *Cache) getCombined(ctx context.Context, cfg source.Config, force bool) (Combined, error) {
	if err := cfg.Validate(); err != nil {
		return Combined{}, err
	}
	if cfg.Kind != source.KindCombined {
		return Combined{}, fmt.Errorf("%w: %s source is not combined", source.ErrInvalidConfig, cfg.Kind)
	}
	relational, err := c.relational(ctx, *cfg.Relational, force)
	if err != nil {
		return Combined{}, err
	}
	tabular, err := c.tabular(ctx, *cfg.Tabular, force)
	if err != nil {
		return Combined{}, err
	}
	return Combined{Relational: relational, Tabular: tabular}, nil
}

func (c *Cache) relational(ctx context.Context, cfg source.RelationalConfig, force bool) (Description, error) {
	return c.lookup(ctx, cfg.Identity(), force, func(ctx context.Context) (Description, error) {
		return c.Introspector.Relational(ctx, cfg)
	})
}

func (c *Cache) tabular(ctx context.Context, cfg source.TabularConfig, force bool) (Description, error) {
	return c.lookup(ctx, cfg.Identity(), force, func(ctx context.Context) (Description, error) {
		return c.Introspector.Tabular(ctx, cfg)
	})
}

func (c *Cache) lookup(ctx context.Context, id source.Identity, force bool, compute func(context.Context) (Description, error)) (Description, error) {
	kind := string(id.Kind)
	if !force {
		record, err := c.Store.Load(ctx, id.Kind)
		switch {
		case err == nil && record.Database == id.Name && record.DBType == kind && record.Location == id.Location:
			observability.ObserveSchemaLookup(kind, true)
			return record.Schema.Clone(), nil
		case err != nil && !errors.Is(err, ErrRecordNotFound):
			c.logWarn(ctx, "schema_cache_load_failed", id, err)
		}
	}
	observability.ObserveSchemaLookup(kind, false)

	description, err := compute(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect %s source %q: %w", kind, id.Name, err)
	}
	description = description.Clone()
	if err := c.Store.Save(ctx, Record{Database: id.Name, DBType: kind, Location: id.Location, Schema: description}); err != nil {
		c.logWarn(ctx, "schema_cache_save_failed", id, err)
	}
	return description, nil
}

func (c *Cache) logWarn(ctx context.Context, msg string, id source.Identity, err error) {
	if c.Logger == nil {
		return
	}
	c.Logger.WarnContext(ctx, msg,
		slog.String("source", id.Name),
		slog.String("kind", string(id.Kind)),
		slog.String("error", err.Error()),
	)
}

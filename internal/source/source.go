package source

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

type Kind string

const (
	KindRelational Kind = "relational"
	KindTabular    Kind = "tabular"
	KindCombined   Kind = "combined"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

var ErrInvalidConfig = errors.New("invalid data source config")

// Config is the active data source. Exactly the sub-configs required by Kind
// are populated.
type Config struct {
	Kind       Kind              `json:"kind" yaml:"kind"`
	Relational *RelationalConfig `json:"relational,omitempty" yaml:"relational,omitempty"`
	Tabular    *TabularConfig    `json:"tabular,omitempty" yaml:"tabular,omitempty"`
}

type RelationalConfig struct {
	Driver   string `json:"driver,omitempty" yaml:"driver,omitempty"`
	Host     string `json:"host" yaml:"host"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Database string `json:"database" yaml:"database"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
}

type TabularConfig struct {
	Path string `json:"path" yaml:"path"`
}

// Identity is the cache key of a single-kind source.
// Identity keys a cached schema. Name is what users see. Location tells
// same-named sources apart: driver://host:port/database or the absolute path.
type Identity struct {
	Name     string
	Kind     Kind
	Location string
}

func NewRelational(cfg RelationalConfig) Config {
	return Config{Kind: KindRelational, Relational: &cfg}
}

func NewTabular(path string) Config {
	return Config{Kind: KindTabular, Tabular: &TabularConfig{Path: path}}
}

func NewCombined(relational RelationalConfig, path string) Config {
	return Config{Kind: KindCombined, Relational: &relational, Tabular: &TabularConfig{Path: path}}
}

func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "relational", "mysql", "postgres":
		return KindRelational, nil
	case "tabular", "excel", "csv", "parquet":
		return KindTabular, nil
	case "combined":
		return KindCombined, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidConfig, raw)
	}
}

func (c Config) Validate() error {
	switch c.Kind {
	case KindRelational:
		if c.Tabular != nil {
			return fmt.Errorf("%w: relational source must not carry a tabular config", ErrInvalidConfig)
		}
		return validateRelational(c.Relational)
	case KindTabular:
		if c.Relational != nil {
			return fmt.Errorf("%w: tabular source must not carry a relational config", ErrInvalidConfig)
		}
		return validateTabular(c.Tabular)
	case KindCombined:
		if err := validateRelational(c.Relational); err != nil {
			return err
		}
		return validateTabular(c.Tabular)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidConfig, c.Kind)
	}
}

func validateRelational(cfg *RelationalConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: relational config is required", ErrInvalidConfig)
	}
	var missing []string
	if strings.TrimSpace(cfg.Host) == "" {
		missing = append(missing, "host")
	}
	if strings.TrimSpace(cfg.User) == "" {
		missing = append(missing, "user")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		missing = append(missing, "database")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required parameters: %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	switch cfg.DriverName() {
	case DriverMySQL, DriverPostgres:
	default:
		return fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, cfg.Port)
	}
	return nil
}

func validateTabular(cfg *TabularConfig) error {
	if cfg == nil || strings.TrimSpace(cfg.Path) == "" {
		return fmt.Errorf("%w: missing required parameter: path", ErrInvalidConfig)
	}
	return nil
}

func (r RelationalConfig) DriverName() string {
	driver := strings.ToLower(strings.TrimSpace(r.Driver))
	if driver == "" {
		return DriverMySQL
	}
	return driver
}

func (r RelationalConfig) PortOrDefault() int {
	if r.Port > 0 {
		return r.Port
	}
	if r.DriverName() == DriverPostgres {
		return 5432
	}
	return 3306
}

func (r RelationalConfig) Identity() Identity {
	return Identity{
		Name:     r.Database,
		Kind:     KindRelational,
		Location: fmt.Sprintf("%s://%s:%d/%s", r.DriverName(), strings.ToLower(strings.TrimSpace(r.Host)), r.PortOrDefault(), r.Database),
	}
}

func (t TabularConfig) Identity() Identity {
	location := filepath.Clean(t.Path)
	if abs, err := filepath.Abs(t.Path); err == nil {
		location = abs
	}
	return Identity{
		Name:     filepath.Base(filepath.ToSlash(t.Path)),
		Kind:     KindTabular,
		Location: filepath.ToSlash(location),
	}
}

// Identities lists the cache keys of every sub-source in a stable order.
func (c Config) Identities() []Identity {
	var out []Identity
	switch c.Kind {
	case KindRelational:
		if c.Relational != nil {
			out = append(out, c.Relational.Identity())
		}
	case KindTabular:
		if c.Tabular != nil {
			out = append(out, c.Tabular.Identity())
		}
	case KindCombined:
		if c.Relational != nil {
			out = append(out, c.Relational.Identity())
		}
		if c.Tabular != nil {
			out = append(out, c.Tabular.Identity())
		}
	}
	return out
}

func (c Config) DisplayName() string {
	ids := c.Identities()
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, id.Name)
	}
	return strings.Join(names, " + ")
}

// Redacted returns a copy safe for logs and API responses.
func (c Config) Redacted() Config {
	out := c
	if c.Relational != nil {
		rel := *c.Relational
		if rel.Password != "" {
			rel.Password = "***"
		}
		out.Relational = &rel
	}
	if c.Tabular != nil {
		tab := *c.Tabular
		out.Tabular = &tab
	}
	return out
}

package source

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/goccy/go-yaml"
)

type Profiles map[string]Config

type profileFile struct {
	Sources map[string]Config `yaml:"sources"`
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func LoadProfiles(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source profiles: %w", err)
	}
	return ParseProfiles(data, os.LookupEnv)
}

// ParseProfiles decodes a profile document. ${VAR} references are expanded
// through lookup before decoding so credentials can stay out of the file.
func ParseProfiles(data []byte, lookup func(string) (string, bool)) (Profiles, error) {
	expanded := envRefPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		name := match[2 : len(match)-1]
		if lookup == nil {
			return ""
		}
		value, _ := lookup(name)
		return value
	})

	var doc profileFile
	if err := yaml.UnmarshalWithOptions([]byte(expanded), &doc, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("parse source profiles: %w", err)
	}
	if len(doc.Sources) == 0 {
		return nil, fmt.Errorf("%w: no sources defined", ErrInvalidConfig)
	}
	for name, cfg := range doc.Sources {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("source %q: %w", name, err)
		}
	}
	return Profiles(doc.Sources), nil
}

func (p Profiles) Get(name string) (Config, error) {
	cfg, ok := p[name]
	if !ok {
		return Config{}, fmt.Errorf("%w: unknown source profile %q", ErrInvalidConfig, name)
	}
	return cfg, nil
}

func (p Profiles) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

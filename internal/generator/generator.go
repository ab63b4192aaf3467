// Package generator turns prompts into query artifacts through a hosted
// language model.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nlquery/nlquery/internal/config"
)

type ArtifactKind string

const (
	ArtifactSQL    ArtifactKind = "sql"
	ArtifactScript ArtifactKind = "script"
	// ArtifactText is free-form model output returned without sanitizing.
	ArtifactText ArtifactKind = "text"
)

var ErrEmptyArtifact = errors.New("model returned an empty artifact")

type Request struct {
	Prompt string       `json:"prompt"`
	Kind   ArtifactKind `json:"kind"`
}

type Result struct {
	Artifact string `json:"artifact"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// Error is returned for every failed generation call.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status=%d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds the generator for the configured provider.
func New(cfg config.AIConfig) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case config.ProviderOpenAI, "":
		return NewOpenAIGenerator(cfg)
	case config.ProviderGemini:
		return NewGeminiGenerator(cfg)
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}

// finish sanitizes model output according to the requested kind.
func finish(provider, model string, kind ArtifactKind, raw string) (Result, error) {
	artifact := strings.TrimSpace(raw)
	if kind != ArtifactText {
		artifact = Sanitize(artifact)
	}
	if artifact == "" {
		return Result{}, &Error{Provider: provider, Message: "no usable output", Err: ErrEmptyArtifact}
	}
	return Result{Artifact: artifact, Provider: provider, Model: model}, nil
}

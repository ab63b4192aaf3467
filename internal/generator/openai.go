package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nlquery/nlquery/internal/config"
)

const providerOpenAI = "openai-compatible"

type OpenAIGenerator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewOpenAIGenerator(cfg config.AIConfig) (*OpenAIGenerator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5"
	}
	return &OpenAIGenerator{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: clientTimeout(cfg.Timeout)},
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(g.payload(req))
	if err != nil {
		return Result{}, &Error{Provider: providerOpenAI, Message: "marshal chat payload", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, &Error{Provider: providerOpenAI, Message: "build chat request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Result{}, &Error{Provider: providerOpenAI, Message: "request chat completion", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &Error{Provider: providerOpenAI, Message: "read chat response body", Err: err}
	}
	if resp.StatusCode >= 400 {
		return Result{}, &Error{
			Provider:   providerOpenAI,
			StatusCode: resp.StatusCode,
			Message:    "chat completion failed: " + truncate(string(rawRespBody), 512),
		}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Result{}, &Error{Provider: providerOpenAI, Message: "decode chat completion response", Err: err}
	}
	if len(parsed.Choices) == 0 {
		return Result{}, &Error{Provider: providerOpenAI, Message: "empty chat completion choices", Err: ErrEmptyArtifact}
	}
	return finish(providerOpenAI, g.model, req.Kind, parsed.Choices[0].Message.Content)
}

func (g *OpenAIGenerator) payload(req Request) map[string]any {
	return map[string]any{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt(req.Kind)},
			{"role": "user", "content": req.Prompt},
		},
		"temperature": g.temperature,
	}
}

func systemPrompt(kind ArtifactKind) string {
	switch kind {
	case ArtifactSQL:
		return "You convert natural language analytics requests into SQL. Return ONLY SQL. No markdown, no explanation."
	case ArtifactScript:
		return "You convert natural language analytics requests into pandas code. Return ONLY code. No markdown, no explanation."
	default:
		return "You are a helpful database expert."
	}
}

func clientTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 30 * time.Second
	}
	return timeout
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}

package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nlquery/nlquery/internal/config"
)

const providerGemini = "gemini"

// GeminiGenerator calls the generateContent REST endpoint.
type GeminiGenerator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewGeminiGenerator(cfg config.AIConfig) (*GeminiGenerator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiGenerator{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: clientTimeout(cfg.Timeout)},
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	payload := map[string]any{
		"systemInstruction": geminiContent{Parts: []geminiPart{{Text: systemPrompt(req.Kind)}}},
		"contents":          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
		"generationConfig":  map[string]any{"temperature": g.temperature},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, &Error{Provider: providerGemini, Message: "marshal generate payload", Err: err}
	}

	endpoint := g.baseURL + "/v1beta/models/" + url.PathEscape(g.model) + ":generateContent"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, &Error{Provider: providerGemini, Message: "build generate request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Result{}, &Error{Provider: providerGemini, Message: "request generate content", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &Error{Provider: providerGemini, Message: "read generate response body", Err: err}
	}
	if resp.StatusCode >= 400 {
		return Result{}, &Error{
			Provider:   providerGemini,
			StatusCode: resp.StatusCode,
			Message:    "generate content failed: " + truncate(string(rawRespBody), 512),
		}
	}

	var parsed struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
		PromptFeedback struct {
			BlockReason string `json:"blockReason"`
		} `json:"promptFeedback"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Result{}, &Error{Provider: providerGemini, Message: "decode generate response", Err: err}
	}
	if parsed.PromptFeedback.BlockReason != "" {
		return Result{}, &Error{Provider: providerGemini, Message: "prompt blocked: " + parsed.PromptFeedback.BlockReason}
	}
	if len(parsed.Candidates) == 0 {
		return Result{}, &Error{Provider: providerGemini, Message: "empty candidates", Err: ErrEmptyArtifact}
	}
	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return finish(providerGemini, g.model, req.Kind, text.String())
}

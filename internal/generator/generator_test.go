package generator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nlquery/nlquery/internal/config"
)

func TestOpenAIGeneratorSanitizesArtifact(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Fatalf("Authorization = %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` + "```sql\\nSELECT COUNT(*) FROM orders;\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	gen, err := NewOpenAIGenerator(config.AIConfig{BaseURL: srv.URL + "/", APIKey: "test-key", Model: "gpt-test", Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator() error = %v", err)
	}
	result, err := gen.Generate(context.Background(), Request{Prompt: "count orders", Kind: ArtifactSQL})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Artifact != "SELECT COUNT(*) FROM orders;" {
		t.Fatalf("Artifact = %q", result.Artifact)
	}
	if result.Provider != "openai-compatible" || result.Model != "gpt-test" {
		t.Fatalf("result = %#v", result)
	}
	if gotBody["model"] != "gpt-test" {
		t.Fatalf("request model = %v", gotBody["model"])
	}
	messages, _ := gotBody["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %#v", gotBody["messages"])
	}
	user, _ := messages[1].(map[string]any)
	if user["content"] != "count orders" {
		t.Fatalf("user message = %#v", user)
	}
}

func TestOpenAIGeneratorKeepsTextVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"## Overview\n* **orders** table"}}]}`))
	}))
	defer srv.Close()

	gen, err := NewOpenAIGenerator(config.AIConfig{BaseURL: srv.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator() error = %v", err)
	}
	result, err := gen.Generate(context.Background(), Request{Prompt: "describe", Kind: ArtifactText})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Artifact != "## Overview\n* **orders** table" {
		t.Fatalf("Artifact = %q", result.Artifact)
	}
}

func TestOpenAIGeneratorFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantEmpty  bool
	}{
		{name: "http error", status: http.StatusTooManyRequests, body: `{"error":"slow down"}`, wantStatus: http.StatusTooManyRequests},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, wantEmpty: true},
		{name: "blank artifact", status: http.StatusOK, body: `{"choices":[{"message":{"content":"` + "```sql\\n```" + `"}}]}`, wantEmpty: true},
		{name: "bad json", status: http.StatusOK, body: `not json`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			gen, err := NewOpenAIGenerator(config.AIConfig{BaseURL: srv.URL, APIKey: "k"})
			if err != nil {
				t.Fatalf("NewOpenAIGenerator() error = %v", err)
			}
			_, err = gen.Generate(context.Background(), Request{Prompt: "p", Kind: ArtifactSQL})
			var genErr *Error
			if !errors.As(err, &genErr) {
				t.Fatalf("Generate() error = %v, want *Error", err)
			}
			if genErr.StatusCode != tc.wantStatus {
				t.Fatalf("StatusCode = %d, want %d", genErr.StatusCode, tc.wantStatus)
			}
			if tc.wantEmpty != errors.Is(err, ErrEmptyArtifact) {
				t.Fatalf("errors.Is(ErrEmptyArtifact) = %v for %v", !tc.wantEmpty, err)
			}
		})
	}
}

func TestGeminiGeneratorCallsGenerateContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-1.5-flash:generateContent" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "g-key" {
			t.Fatalf("api key header = %q", r.Header.Get("x-goog-api-key"))
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "revenue by city") {
			t.Fatalf("request body = %s", body)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"` + "```python\\n" + `"},{"text":"result = df_0.groupby('city')['revenue'].sum().reset_index()\n` + "```" + `"}]}}]}`))
	}))
	defer srv.Close()

	gen, err := New(config.AIConfig{Provider: config.ProviderGemini, BaseURL: srv.URL, APIKey: "g-key"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	result, err := gen.Generate(context.Background(), Request{Prompt: "revenue by city", Kind: ArtifactScript})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Artifact != "result = df_0.groupby('city')['revenue'].sum().reset_index()" {
		t.Fatalf("Artifact = %q", result.Artifact)
	}
	if result.Provider != "gemini" || result.Model != "gemini-1.5-flash" {
		t.Fatalf("result = %#v", result)
	}
}

func TestGeminiGeneratorReportsBlockedPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	gen, err := NewGeminiGenerator(config.AIConfig{BaseURL: srv.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewGeminiGenerator() error = %v", err)
	}
	_, err = gen.Generate(context.Background(), Request{Prompt: "p", Kind: ArtifactSQL})
	if err == nil || !strings.Contains(err.Error(), "SAFETY") {
		t.Fatalf("Generate() error = %v", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(config.AIConfig{Provider: "llama", BaseURL: "http://x", APIKey: "k"}); err == nil {
		t.Fatal("New() expected error for unknown provider")
	}
	if _, err := New(config.AIConfig{Provider: config.ProviderOpenAI, BaseURL: "http://x"}); err == nil {
		t.Fatal("New() expected error for missing api key")
	}
	if _, err := NewGeminiGenerator(config.AIConfig{APIKey: "k"}); err == nil {
		t.Fatal("NewGeminiGenerator() expected error for missing base URL")
	}
}

package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{"NLQUERY_AI_API_KEY": "k"})
	cfg, err := Load("nlquery-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.AI.Provider != ProviderOpenAI {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.Model != "gpt-5" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.SchemaCache.Backend != SchemaBackendFile || cfg.SchemaCache.Dir != ".nlquery" {
		t.Fatalf("SchemaCache = %#v", cfg.SchemaCache)
	}
	if cfg.Prompt.DefaultRowLimit != 5 {
		t.Fatalf("Prompt.DefaultRowLimit = %d", cfg.Prompt.DefaultRowLimit)
	}
	if cfg.Prompt.MaxColumnsPerTable != 0 {
		t.Fatalf("Prompt.MaxColumnsPerTable = %d", cfg.Prompt.MaxColumnsPerTable)
	}
	if cfg.Executor.AllowWrites {
		t.Fatal("Executor.AllowWrites should default to false")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"NLQUERY_PROFILE": "prod", "NLQUERY_AI_API_KEY": "k"})
	cfg, err := Load("nlquery-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
}

func TestLoadGeminiProviderDefaults(t *testing.T) {
	cfg, err := Load("nlquery-api", mapLookup(map[string]string{
		"NLQUERY_AI_PROVIDER": "Gemini",
		"NLQUERY_AI_API_KEY":  "k",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.Provider != ProviderGemini {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.BaseURL != "https://generativelanguage.googleapis.com" {
		t.Fatalf("AI.BaseURL = %q", cfg.AI.BaseURL)
	}
	if cfg.AI.Model != "gemini-1.5-flash" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"NLQUERY_PROFILE":                      "test",
		"NLQUERY_HTTP_ADDR":                    ":9999",
		"NLQUERY_HTTP_READ_TIMEOUT":            "2s",
		"NLQUERY_LOG_LEVEL":                    "error",
		"NLQUERY_AUTH_REQUIRED":                "true",
		"NLQUERY_AUTH_STATIC_KEYS":             "k1:analyst",
		"NLQUERY_SERVICE_NAME":                 "nlquery-custom",
		"NLQUERY_AI_BASE_URL":                  "https://api.example.com",
		"NLQUERY_AI_API_KEY":                   "secret-key",
		"NLQUERY_AI_MODEL":                     "gpt-5.2",
		"NLQUERY_AI_TEMPERATURE":               "0.3",
		"NLQUERY_AI_TIMEOUT":                   "21s",
		"NLQUERY_SCHEMA_CACHE_BACKEND":         "s3",
		"NLQUERY_OBJECTSTORE_BUCKET":           "schemas",
		"NLQUERY_OBJECTSTORE_PREFIX":           "tenant-a",
		"NLQUERY_EXECUTOR_ALLOW_WRITES":        "true",
		"NLQUERY_EXECUTOR_CONNECT_TIMEOUT":     "3s",
		"NLQUERY_PROMPT_DEFAULT_ROW_LIMIT":     "10",
		"NLQUERY_PROMPT_MAX_COLUMNS_PER_TABLE": "40",
	})
	cfg, err := Load("nlquery-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "nlquery-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required || cfg.Auth.StaticKeys != "k1:analyst" {
		t.Fatalf("Auth = %#v", cfg.Auth)
	}
	if cfg.AI.BaseURL != "https://api.example.com" {
		t.Fatalf("AI.BaseURL = %q", cfg.AI.BaseURL)
	}
	if cfg.AI.APIKey != "secret-key" {
		t.Fatalf("AI.APIKey = %q", cfg.AI.APIKey)
	}
	if cfg.AI.Model != "gpt-5.2" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.Temperature != 0.3 {
		t.Fatalf("AI.Temperature = %f", cfg.AI.Temperature)
	}
	if cfg.AI.Timeout != 21*time.Second {
		t.Fatalf("AI.Timeout = %s", cfg.AI.Timeout)
	}
	if cfg.SchemaCache.Backend != SchemaBackendObject {
		t.Fatalf("SchemaCache.Backend = %q", cfg.SchemaCache.Backend)
	}
	if cfg.ObjectStore.Bucket != "schemas" || cfg.ObjectStore.Prefix != "tenant-a" {
		t.Fatalf("ObjectStore = %#v", cfg.ObjectStore)
	}
	if !cfg.Executor.AllowWrites {
		t.Fatal("Executor.AllowWrites = false, want true")
	}
	if cfg.Executor.ConnectTimeout != 3*time.Second {
		t.Fatalf("Executor.ConnectTimeout = %s", cfg.Executor.ConnectTimeout)
	}
	if cfg.Prompt.DefaultRowLimit != 10 || cfg.Prompt.MaxColumnsPerTable != 40 {
		t.Fatalf("Prompt = %#v", cfg.Prompt)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	_, err := Load("nlquery-api", mapLookup(map[string]string{}))
	if err == nil {
		t.Fatal("Load() expected error when API key is missing")
	}
	if !strings.Contains(err.Error(), "NLQUERY_AI_API_KEY") {
		t.Fatalf("error = %v", err)
	}

	_, err = Load("nlquery-api", mapLookup(map[string]string{"NLQUERY_AI_API_KEY": "   "}))
	if err == nil {
		t.Fatal("Load() expected error for blank API key")
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"NLQUERY_PROFILE": "oops"},
		{"NLQUERY_HTTP_READ_TIMEOUT": "NaN"},
		{"NLQUERY_AI_TEMPERATURE": "bad"},
		{"NLQUERY_AI_PROVIDER": "llama"},
		{"NLQUERY_AUTH_REQUIRED": "not-bool"},
		{"NLQUERY_LOG_LEVEL": "verbose"},
		{"NLQUERY_SCHEMA_CACHE_BACKEND": "redis"},
		{"NLQUERY_SCHEMA_CACHE_DIR": ""},
		{"NLQUERY_PROMPT_DEFAULT_ROW_LIMIT": "0"},
		{"NLQUERY_PROMPT_MAX_COLUMNS_PER_TABLE": "-1"},
		{"NLQUERY_EXECUTOR_ALLOW_WRITES": "maybe"},
	}
	for _, env := range tests {
		env["NLQUERY_AI_API_KEY"] = "k"
		_, err := Load("nlquery-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

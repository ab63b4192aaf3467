package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nlquery/nlquery/internal/assistant"
	"github.com/nlquery/nlquery/internal/auth"
	"github.com/nlquery/nlquery/internal/config"
	"github.com/nlquery/nlquery/internal/connector"
	"github.com/nlquery/nlquery/internal/generator"
	"github.com/nlquery/nlquery/internal/query"
	"github.com/nlquery/nlquery/internal/schema"
	"github.com/nlquery/nlquery/internal/session"
	"github.com/nlquery/nlquery/internal/source"
)

type fakePipeline struct {
	mu        sync.Mutex
	schema    any
	schemaErr error
	refreshes int
	describe  string
	answer    assistant.Answer
	result    query.Result
	artifacts []string
	started   chan struct{}
	block     chan struct{}
}

func (f *fakePipeline) Schema(_ context.Context, _ *session.Session, refresh bool) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if refresh {
		f.refreshes++
	}
	return f.schema, f.schemaErr
}

func (f *fakePipeline) DescribeSchema(context.Context, *session.Session) (string, error) {
	return f.describe, f.schemaErr
}

func (f *fakePipeline) Ask(_ context.Context, _ *session.Session, question string) assistant.Answer {
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	answer := f.answer
	answer.Question = question
	return answer
}

func (f *fakePipeline) Execute(_ context.Context, _ *session.Session, artifact string) query.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifacts = append(f.artifacts, artifact)
	return f.result
}

func (f *fakePipeline) CheckFreshness(context.Context, *session.Session) (assistant.FreshnessReport, error) {
	changed := true
	return assistant.FreshnessReport{Changed: true, FileChanged: &changed}, nil
}

type fakeSources struct {
	err     error
	checked []source.Config
}

func (f *fakeSources) Check(_ context.Context, cfg source.Config) error {
	f.checked = append(f.checked, cfg)
	return f.err
}

func loadConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	values := map[string]string{"NLQUERY_AI_API_KEY": "k"}
	for key, value := range env {
		values[key] = value
	}
	cfg, err := config.Load("nlquery-api", mapLookup(values))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func do(t *testing.T, h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v body=%s", err, rr.Body.String())
	}
	return body
}

func createSession(t *testing.T, h http.Handler, headers ...string) string {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/v1/sessions", "", headers...)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rr.Code, rr.Body.String())
	}
	id, _ := decode(t, rr)["session_id"].(string)
	if id == "" {
		t.Fatalf("missing session_id in %s", rr.Body.String())
	}
	return id
}

func newTestHandler(t *testing.T, pipeline *fakePipeline, sources *fakeSources) http.Handler {
	t.Helper()
	return NewHandler(loadConfig(t, nil), Dependencies{
		Sessions:  session.NewManager(),
		Assistant: pipeline,
		Sources:   sources,
	})
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := do(t, h, http.MethodGet, "/v1/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if decode(t, rr)["service"] != "nlquery-api" {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := do(t, h, http.MethodGet, "/v1/ready", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decode(t, rr)
	if body["error_code"] != "NOT_READY" || body["retryable"] != true {
		t.Fatalf("body = %#v", body)
	}
	if body["trace_id"] == "" {
		t.Fatal("expected trace_id on error responses")
	}
}

func TestSessionSourceLifecycle(t *testing.T) {
	pipeline := &fakePipeline{schema: schema.Description{"orders": {"id", "amount"}}}
	sources := &fakeSources{}
	h := newTestHandler(t, pipeline, sources)
	id := createSession(t, h)

	rr := do(t, h, http.MethodGet, "/v1/sessions/"+id+"/schema", "")
	if rr.Code != http.StatusConflict || decode(t, rr)["error_code"] != "SOURCE_NOT_CONNECTED" {
		t.Fatalf("schema before connect: status = %d body=%s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodPut, "/v1/sessions/"+id+"/source",
		`{"kind":"postgres","relational":{"host":"db","user":"app","password":"hunter2","database":"shop"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("connect status = %d body=%s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "hunter2") {
		t.Fatalf("password leaked in %s", rr.Body.String())
	}
	if len(sources.checked) != 1 {
		t.Fatalf("sources checked = %d", len(sources.checked))
	}
	checked := sources.checked[0]
	if checked.Kind != source.KindRelational || checked.Relational.Driver != source.DriverPostgres {
		t.Fatalf("checked config = %#v", checked)
	}

	rr = do(t, h, http.MethodGet, "/v1/sessions/"+id+"/schema?refresh=true", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("schema status = %d body=%s", rr.Code, rr.Body.String())
	}
	tables, _ := decode(t, rr)["schema"].(map[string]any)
	if _, ok := tables["orders"]; !ok || pipeline.refreshes != 1 {
		t.Fatalf("schema body = %s refreshes=%d", rr.Body.String(), pipeline.refreshes)
	}

	rr = do(t, h, http.MethodGet, "/v1/sessions/"+id+"/schema?refresh=maybe", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad refresh status = %d", rr.Code)
	}

	rr = do(t, h, http.MethodDelete, "/v1/sessions/"+id, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/v1/sessions/"+id, "")
	if rr.Code != http.StatusNotFound || decode(t, rr)["error_code"] != "SESSION_NOT_FOUND" {
		t.Fatalf("get after delete: status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestConnectSourceRejectsInvalidConfig(t *testing.T) {
	sources := &fakeSources{}
	h := newTestHandler(t, &fakePipeline{}, sources)
	id := createSession(t, h)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "unknown kind", body: `{"kind":"oracle"}`, status: http.StatusUnprocessableEntity, code: "INVALID_SOURCE"},
		{name: "missing tabular", body: `{"kind":"excel"}`, status: http.StatusUnprocessableEntity, code: "INVALID_SOURCE"},
		{name: "combined without database", body: `{"kind":"combined","tabular":{"path":"/tmp/a.xlsx"}}`, status: http.StatusUnprocessableEntity, code: "INVALID_SOURCE"},
		{name: "unknown field", body: `{"kind":"excel","file":"x"}`, status: http.StatusBadRequest, code: "INVALID_JSON"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPut, "/v1/sessions/"+id+"/source", tc.body)
			if rr.Code != tc.status || decode(t, rr)["error_code"] != tc.code {
				t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
			}
		})
	}
	if len(sources.checked) != 0 {
		t.Fatalf("invalid configs should not reach the resolver, got %d checks", len(sources.checked))
	}
}

func TestConnectSourceMapsResolverErrors(t *testing.T) {
	tests := []struct {
		err       error
		status    int
		code      string
		retryable bool
	}{
		{err: fmt.Errorf("%w: dial tcp", connector.ErrUnreachable), status: http.StatusBadGateway, code: "SOURCE_UNREACHABLE", retryable: true},
		{err: fmt.Errorf("%w: access denied", connector.ErrAuthentication), status: http.StatusUnprocessableEntity, code: "SOURCE_AUTH_FAILED"},
		{err: connector.ErrUnsupportedFormat, status: http.StatusUnprocessableEntity, code: "INVALID_SOURCE"},
		{err: connector.ErrPathNotFound, status: http.StatusUnprocessableEntity, code: "INVALID_SOURCE"},
	}
	for _, tc := range tests {
		h := newTestHandler(t, &fakePipeline{}, &fakeSources{err: tc.err})
		id := createSession(t, h)
		rr := do(t, h, http.MethodPut, "/v1/sessions/"+id+"/source", `{"kind":"tabular","tabular":{"path":"/data/notes.txt"}}`)
		body := decode(t, rr)
		if rr.Code != tc.status || body["error_code"] != tc.code || body["retryable"] != tc.retryable {
			t.Fatalf("%v: status = %d body=%#v", tc.err, rr.Code, body)
		}
		rr = do(t, h, http.MethodGet, "/v1/sessions/"+id, "")
		if _, connected := decode(t, rr)["source"]; connected {
			t.Fatalf("%v: failed check should leave the session unconnected", tc.err)
		}
	}
}

func TestAskAndExecute(t *testing.T) {
	pipeline := &fakePipeline{
		answer: assistant.Answer{
			Artifact: "SELECT COUNT(*) AS cnt FROM orders;",
			Kind:     generator.ArtifactSQL,
			Result:   query.FromValues([]string{"cnt"}, [][]any{{int64(7)}}),
		},
		result: query.Failure("SQL Execution Error: table missing"),
	}
	h := newTestHandler(t, pipeline, &fakeSources{})
	id := createSession(t, h)
	if rr := do(t, h, http.MethodPut, "/v1/sessions/"+id+"/source", `{"kind":"excel","tabular":{"path":"/data/sales.xlsx"}}`); rr.Code != http.StatusOK {
		t.Fatalf("connect status = %d body=%s", rr.Code, rr.Body.String())
	}

	rr := do(t, h, http.MethodPost, "/v1/sessions/"+id+"/ask", `{"question":"how many orders?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("ask status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	if body["question"] != "how many orders?" || body["artifact"] != "SELECT COUNT(*) AS cnt FROM orders;" {
		t.Fatalf("ask body = %#v", body)
	}
	result, _ := body["result"].(map[string]any)
	rows, _ := result["rows"].([]any)
	if len(rows) != 1 {
		t.Fatalf("result = %#v", result)
	}

	rr = do(t, h, http.MethodPost, "/v1/sessions/"+id+"/execute", `{"artifact":"SELECT * FROM missing"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("execute status = %d body=%s", rr.Code, rr.Body.String())
	}
	result, _ = decode(t, rr)["result"].(map[string]any)
	if result["error"] != "SQL Execution Error: table missing" {
		t.Fatalf("execute result = %#v", result)
	}
	if len(pipeline.artifacts) != 1 || pipeline.artifacts[0] != "SELECT * FROM missing" {
		t.Fatalf("artifacts = %#v", pipeline.artifacts)
	}

	rr = do(t, h, http.MethodPost, "/v1/sessions/"+id+"/execute", `{"artifact":"  "}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty artifact status = %d", rr.Code)
	}

	rr = do(t, h, http.MethodGet, "/v1/sessions/"+id+"/freshness", "")
	if rr.Code != http.StatusOK || decode(t, rr)["changed"] != true {
		t.Fatalf("freshness status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestDescribeSchemaErrors(t *testing.T) {
	pipeline := &fakePipeline{schemaErr: &generator.Error{Provider: "openai", StatusCode: 429, Message: "rate limited"}}
	h := newTestHandler(t, pipeline, &fakeSources{})
	id := createSession(t, h)
	do(t, h, http.MethodPut, "/v1/sessions/"+id+"/source", `{"kind":"csv","tabular":{"path":"/data/a.csv"}}`)

	rr := do(t, h, http.MethodGet, "/v1/sessions/"+id+"/schema/description", "")
	body := decode(t, rr)
	if rr.Code != http.StatusBadGateway || body["error_code"] != "GENERATION_FAILED" || body["retryable"] != true {
		t.Fatalf("status = %d body=%#v", rr.Code, body)
	}

	pipeline.schemaErr = fmt.Errorf("build prompt: %w", assistant.ErrNoSchema)
	rr = do(t, h, http.MethodGet, "/v1/sessions/"+id+"/schema/description", "")
	if rr.Code != http.StatusUnprocessableEntity || decode(t, rr)["error_code"] != "EMPTY_SCHEMA" {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestBusySessionRejectsConcurrentRequest(t *testing.T) {
	pipeline := &fakePipeline{started: make(chan struct{}), block: make(chan struct{})}
	h := newTestHandler(t, pipeline, &fakeSources{})
	id := createSession(t, h)
	do(t, h, http.MethodPut, "/v1/sessions/"+id+"/source", `{"kind":"csv","tabular":{"path":"/data/a.csv"}}`)

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+id+"/ask", strings.NewReader(`{"question":"slow"}`))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		done <- rr
	}()

	<-pipeline.started
	busy := do(t, h, http.MethodGet, "/v1/sessions/"+id+"/schema", "")
	close(pipeline.block)
	first := <-done

	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d", first.Code)
	}
	body := decode(t, busy)
	if busy.Code != http.StatusConflict || body["error_code"] != "SESSION_BUSY" || body["retryable"] != true {
		t.Fatalf("concurrent request status = %d body=%#v", busy.Code, body)
	}
}

func TestProtectedRoutesRequireAuthAndScopeSessions(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"NLQUERY_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("alice:analyst,bob:analyst,ops:operator")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Sessions:       session.NewManager(),
		Assistant:      &fakePipeline{},
		Sources:        &fakeSources{},
	})

	if rr := do(t, h, http.MethodPost, "/v1/sessions", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/v1/health", ""); rr.Code != http.StatusOK {
		t.Fatalf("health should stay public, status = %d", rr.Code)
	}

	id := createSession(t, h, "X-API-Key", "alice")
	if rr := do(t, h, http.MethodGet, "/v1/sessions/"+id, "", "X-API-Key", "alice"); rr.Code != http.StatusOK {
		t.Fatalf("owner status = %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/v1/sessions/"+id, "", "X-API-Key", "bob"); rr.Code != http.StatusNotFound {
		t.Fatalf("other caller status = %d, want 404", rr.Code)
	}
	rr := do(t, h, http.MethodPost, "/v1/sessions/"+id+"/execute", `{"artifact":"SELECT 1"}`, "X-API-Key", "alice")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("analyst execute status = %d, want 403", rr.Code)
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"NLQUERY_AUTH_REQUIRED": "true"})
	h := NewHandler(cfg, Dependencies{Sessions: session.NewManager()})
	rr := do(t, h, http.MethodPost, "/v1/sessions", "")
	if rr.Code != http.StatusInternalServerError || decode(t, rr)["error_code"] != "AUTH_MIDDLEWARE_MISSING" {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestConfigReadinessChecks(t *testing.T) {
	cfg := loadConfig(t, nil)
	if err := CheckGeneratorConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("CheckGeneratorConfig() error = %v", err)
	}
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("file backend should not need an object store: %v", err)
	}
	cfg.SchemaCache.Backend = config.SchemaBackendObject
	cfg.ObjectStore.Bucket = ""
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected object store check to fail without a bucket")
	}
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

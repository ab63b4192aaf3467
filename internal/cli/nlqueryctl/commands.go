package nlqueryctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nlquery/nlquery/internal/query"
	"github.com/nlquery/nlquery/internal/schema"
)

var errResultFailed = errors.New("query failed")

type askCmd struct {
	Question  []string `arg:"" help:"Question to ask."`
	ShowQuery bool     `help:"Print the generated query before the result." name:"show-query"`
}

func (cmd *askCmd) Run(rc *runContext) error {
	question := strings.TrimSpace(strings.Join(cmd.Question, " "))
	pipeline, s, err := rc.session()
	if err != nil {
		return err
	}
	answer := pipeline.Ask(rc.ctx, s, question)
	if rc.cli.JSON {
		return writeJSONResult(rc.stdout, answer, answer.Result)
	}
	if cmd.ShowQuery && answer.Artifact != "" {
		_, _ = fmt.Fprintf(rc.stdout, "%s\n\n", answer.Artifact)
	}
	return renderResult(rc.stdout, answer.Result)
}

type execCmd struct {
	Artifact string `arg:"" help:"SQL statement or data-frame script, or - for stdin."`
}

func (cmd *execCmd) Run(rc *runContext) error {
	artifact := cmd.Artifact
	if artifact == "-" {
		raw, err := io.ReadAll(rc.opts.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		artifact = string(raw)
	}
	if strings.TrimSpace(artifact) == "" {
		return errors.New("nothing to execute")
	}
	pipeline, s, err := rc.session()
	if err != nil {
		return err
	}
	result := pipeline.Execute(rc.ctx, s, artifact)
	if rc.cli.JSON {
		return writeJSONResult(rc.stdout, result, result)
	}
	return renderResult(rc.stdout, result)
}

type schemaCmd struct {
	Refresh bool `help:"Ignore the cached schema and introspect the source again."`
}

func (cmd *schemaCmd) Run(rc *runContext) error {
	pipeline, s, err := rc.session()
	if err != nil {
		return err
	}
	value, err := pipeline.Schema(rc.ctx, s, cmd.Refresh)
	if err != nil {
		return err
	}
	if rc.cli.JSON {
		return writeJSON(rc.stdout, value)
	}
	switch typed := value.(type) {
	case schema.Combined:
		_, _ = fmt.Fprintln(rc.stdout, "Database tables:")
		renderSchema(rc.stdout, typed.Relational)
		_, _ = fmt.Fprintln(rc.stdout, "\nSpreadsheet sheets:")
		renderSchema(rc.stdout, typed.Tabular)
	case schema.Description:
		renderSchema(rc.stdout, typed)
	}
	return nil
}

type describeCmd struct{}

func (cmd *describeCmd) Run(rc *runContext) error {
	pipeline, s, err := rc.session()
	if err != nil {
		return err
	}
	description, err := pipeline.DescribeSchema(rc.ctx, s)
	if err != nil {
		return err
	}
	if rc.cli.JSON {
		return writeJSON(rc.stdout, map[string]string{"description": description})
	}
	_, _ = fmt.Fprintln(rc.stdout, strings.TrimSpace(description))
	return nil
}

type profilesCmd struct{}

func (cmd *profilesCmd) Run(rc *runContext) error {
	profiles, err := rc.profiles()
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(profiles))
	for _, name := range profiles.Names() {
		cfg := profiles[name]
		detail := cfg.DisplayName()
		if cfg.Tabular != nil {
			if info, err := os.Stat(cfg.Tabular.Path); err == nil {
				detail += " (" + humanize.Bytes(uint64(info.Size())) + ")"
			}
		}
		rows = append(rows, []string{name, string(cfg.Kind), detail})
	}
	renderTable(rc.stdout, []string{"profile", "kind", "source"}, rows)
	return nil
}

type healthCmd struct {
	BaseURL string        `help:"API base URL." default:"http://localhost:8080" name:"base-url" env:"NLQUERY_API_URL"`
	Timeout time.Duration `help:"HTTP timeout." default:"10s"`
}

func (cmd *healthCmd) Run(rc *runContext) error {
	client := rc.httpClient(cmd.Timeout)
	for _, path := range []string{"/v1/health", "/v1/ready"} {
		endpoint := strings.TrimRight(cmd.BaseURL, "/") + path
		code, body, err := doRequest(rc.ctx, client, http.MethodGet, endpoint)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if code >= 400 {
			return fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(body)))
		}
		if pretty, ok := prettyJSON(body); ok {
			_, _ = fmt.Fprintln(rc.stdout, pretty)
		}
	}
	return nil
}

func doRequest(ctx context.Context, client *http.Client, method, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeJSONResult(w io.Writer, value any, result query.Result) error {
	if err := writeJSON(w, value); err != nil {
		return err
	}
	if result.Failed() {
		return errResultFailed
	}
	return nil
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

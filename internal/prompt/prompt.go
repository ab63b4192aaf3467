// Package prompt renders the instructions sent to the query generator. Every
// function here is a pure template over its inputs.
package prompt

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nlquery/nlquery/internal/schema"
	"github.com/nlquery/nlquery/internal/source"
	"github.com/nlquery/nlquery/internal/workbook"
)

const (
	DialectMySQL    = "MySQL"
	DialectPostgres = "PostgreSQL"

	// ResultVariable is the name a generated script binds its answer to.
	ResultVariable = "result"

	defaultRowLimit = 5
)

type Options struct {
	// DefaultRowLimit caps relational results when the question names no limit.
	DefaultRowLimit int
	// MaxColumnsPerTable truncates wide tables with an explicit marker. Zero
	// renders every column.
	MaxColumnsPerTable int
	Dialect            string
	// SheetOrder is the load order of a tabular source; it decides the df_<i>
	// aliases. Sorted names are used when empty.
	SheetOrder []string
}

// DialectFor names the SQL dialect of a relational driver.
func DialectFor(driver string) string {
	if driver == source.DriverPostgres {
		return DialectPostgres
	}
	return DialectMySQL
}

// Build renders the prompt for a single relational or tabular source.
func Build(question string, description schema.Description, kind source.Kind, opts Options) (string, error) {
	switch kind {
	case source.KindRelational:
		return buildRelational(question, description, opts), nil
	case source.KindTabular:
		return buildTabular(question, description, opts), nil
	case source.KindCombined:
		return "", fmt.Errorf("%w: combined sources need BuildCombined", source.ErrInvalidConfig)
	default:
		return "", fmt.Errorf("%w: unknown kind %q", source.ErrInvalidConfig, kind)
	}
}

// RenderSchema flattens a description to one "<label> <name>: a, b" line per
// table, in name order.
func RenderSchema(label string, description schema.Description, maxColumns int) string {
	return renderNamed(label, description, description.Names(), maxColumns)
}

func renderNamed(label string, description schema.Description, names []string, maxColumns int) string {
	if len(names) == 0 {
		return "(no " + strings.ToLower(label) + "s found)"
	}
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%s %s: %s", label, name, joinColumns(description[name], maxColumns)))
	}
	return strings.Join(lines, "\n")
}

func joinColumns(columns []string, maxColumns int) string {
	if maxColumns <= 0 || len(columns) <= maxColumns {
		return strings.Join(columns, ", ")
	}
	hidden := len(columns) - maxColumns
	return strings.Join(columns[:maxColumns], ", ") + fmt.Sprintf(" (+%d more columns)", hidden)
}

func rowLimit(opts Options) int {
	if opts.DefaultRowLimit > 0 {
		return opts.DefaultRowLimit
	}
	return defaultRowLimit
}

// sheetOrder keeps the requested order for sheets present in the description
// and appends any others by name.
func sheetOrder(description schema.Description, order []string) []string {
	out := make([]string, 0, len(description))
	seen := make(map[string]struct{}, len(description))
	for _, name := range order {
		if _, ok := description[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	rest := make([]string, 0)
	for name := range description {
		if _, ok := seen[name]; !ok {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = strconv.Quote(name)
	}
	return strings.Join(quoted, ", ")
}

func aliasLines(names []string) string {
	lines := make([]string, 0, len(names))
	for i, name := range names {
		line := fmt.Sprintf("%s = excel_data[%s]", workbook.PositionalAlias(i), strconv.Quote(name))
		if sanitized := workbook.SanitizeName(name); isIdentifier(sanitized) {
			line += fmt.Sprintf("  (also bound as %s)", sanitized)
		}
		lines = append(lines, "   "+line)
	}
	return strings.Join(lines, "\n")
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

const outputRules = `### CRITICAL OUTPUT FORMAT RULES:
1. Return ONLY the %s, nothing else
2. NO explanations, NO comments, NO markdown formatting
3. NO code blocks (` + "```" + ` fences of any kind)
4. NO text before or after the %s
5. It must be executable as-is`

package query

import (
	"time"
)

const NoResultsMessage = "Query executed but no results returned"

// Result is either an ordered list of rows or, when Error is set, a failed
// execution carrying a human readable message.
type Result struct {
	Columns  []string         `json:"columns,omitempty"`
	Rows     []map[string]any `json:"rows"`
	Error    string           `json:"error,omitempty"`
	Duration time.Duration    `json:"-"`
}

func (r Result) Failed() bool {
	return r.Error != ""
}

func (r Result) RowCount() int {
	return len(r.Rows)
}

// Values returns row values in column order, which is what table renderers need.
func (r Result) Values() [][]any {
	out := make([][]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		values := make([]any, len(r.Columns))
		for i, column := range r.Columns {
			values[i] = row[column]
		}
		out = append(out, values)
	}
	return out
}

func Failure(message string) Result {
	return Result{Rows: []map[string]any{}, Error: message}
}

func FromValues(columns []string, rows [][]any) Result {
	out := Result{Columns: append([]string(nil), columns...), Rows: make([]map[string]any, 0, len(rows))}
	for _, values := range rows {
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			if i < len(values) {
				row[column] = values[i]
			} else {
				row[column] = nil
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func Scalar(value any) Result {
	return FromValues([]string{"result"}, [][]any{{NormalizeValue(value, "")}})
}

func Output(lines []string) Result {
	rows := make([][]any, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, []any{line})
	}
	return FromValues([]string{"output"}, rows)
}

func Empty() Result {
	return FromValues([]string{"message"}, [][]any{{NoResultsMessage}})
}

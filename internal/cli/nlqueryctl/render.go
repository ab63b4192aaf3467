package nlqueryctl

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/olekukonko/tablewriter"

	"github.com/nlquery/nlquery/internal/query"
	"github.com/nlquery/nlquery/internal/schema"
)

// renderResult prints rows as a table followed by a row count. A failed
// result prints nothing and comes back as the error.
func renderResult(w io.Writer, result query.Result) error {
	if result.Failed() {
		return errors.New(result.Error)
	}
	if len(result.Columns) == 0 {
		_, _ = fmt.Fprintln(w, "No results.")
		return nil
	}
	rows := make([][]string, 0, len(result.Rows))
	for _, values := range result.Values() {
		row := make([]string, len(values))
		for i, value := range values {
			row[i] = cellText(value)
		}
		rows = append(rows, row)
	}
	renderTable(w, result.Columns, rows)
	_, _ = fmt.Fprintf(w, "(%s)\n", rowCount(len(rows)))
	return nil
}

func renderSchema(w io.Writer, description schema.Description) {
	rows := make([][]string, 0, len(description))
	for _, name := range description.Names() {
		columns := description[name]
		rows = append(rows, []string{name, english.Plural(len(columns), "column", ""), strings.Join(columns, ", ")})
	}
	renderTable(w, []string{"name", "size", "columns"}, rows)
}

func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
}

func rowCount(n int) string {
	return humanize.Comma(int64(n)) + " " + english.PluralWord(n, "row", "")
}

func cellText(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case time.Time:
		if typed.Hour() == 0 && typed.Minute() == 0 && typed.Second() == 0 && typed.Nanosecond() == 0 {
			return typed.Format("2006-01-02")
		}
		return typed.Format("2006-01-02 15:04:05")
	case []byte:
		return string(typed)
	default:
		return fmt.Sprint(typed)
	}
}

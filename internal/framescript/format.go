package framescript

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/nlquery/nlquery/internal/query/duckdb"
)

const (
	maxDisplayRows = 60
	edgeRows       = 5
)

// String renders v the way print() shows it.
func (rt *Runtime) String(ctx context.Context, v Value) (string, error) {
	return rt.str(ctx, v)
}

func (rt *Runtime) str(ctx context.Context, v Value) (string, error) {
	switch t := v.(type) {
	case *Frame:
		return rt.frameString(ctx, t)
	case *Series:
		return rt.seriesString(ctx, t)
	case *Row:
		return rt.rowString(ctx, t)
	case *List:
		return rt.listString(ctx, t)
	case *Dict:
		parts := make([]string, 0, t.Len())
		for _, key := range t.Keys() {
			value, _ := t.Get(key)
			k, err := rt.repr(ctx, key)
			if err != nil {
				return "", err
			}
			r, err := rt.repr(ctx, value)
			if err != nil {
				return "", err
			}
			parts = append(parts, k+": "+r)
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	case *GroupBy:
		return "<pandas.core.groupby.generic." + typeName(t) + " object>", nil
	case *boundMethod:
		return "<bound method " + t.name + " of " + typeName(t.recv) + ">", nil
	}
	if text, ok := scalarStr(v); ok {
		return text, nil
	}
	return "<" + typeName(v) + " object>", nil
}

func (rt *Runtime) repr(ctx context.Context, v Value) (string, error) {
	switch t := v.(type) {
	case string:
		return quotePy(t), nil
	case time.Time:
		return "Timestamp('" + t.Format("2006-01-02 15:04:05") + "')", nil
	}
	return rt.str(ctx, v)
}

func (rt *Runtime) listString(ctx context.Context, l *List) (string, error) {
	parts := make([]string, len(l.Items))
	for i, item := range l.Items {
		text, err := rt.repr(ctx, item)
		if err != nil {
			return "", err
		}
		parts[i] = text
	}
	if !l.Tuple {
		return "[" + strings.Join(parts, ", ") + "]", nil
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)", nil
	}
	return "(" + strings.Join(parts, ", ") + ")", nil
}

// displayValue renders one cell of a frame or series.
func displayValue(v Value, typ string) string {
	switch t := v.(type) {
	case nil:
		switch {
		case duckdb.IsNumeric(typ):
			return "NaN"
		case duckdb.IsTemporal(typ):
			return "NaT"
		}
		return "None"
	case float64:
		if math.IsNaN(t) {
			return "NaN"
		}
		return formatFloat(t)
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04:05")
	}
	text, ok := scalarStr(v)
	if !ok {
		return fmt.Sprint(v)
	}
	return text
}

// renderPlain lays out label/value rows with the labels left aligned.
func renderPlain(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	align := make([]int, len(rows[0]))
	for i := range align {
		align[i] = tablewriter.ALIGN_RIGHT
	}
	align[0] = tablewriter.ALIGN_LEFT
	return renderTable(nil, rows, align)
}

func renderTable(header []string, rows [][]string, align []int) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetRowLine(false)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_RIGHT)
	table.SetColumnAlignment(align)
	if header != nil {
		table.SetHeader(header)
	}
	table.AppendBulk(rows)
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	indent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lead := len(line) - len(strings.TrimLeft(line, " "))
		if indent < 0 || lead < indent {
			indent = lead
		}
	}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, " ")
		if len(line) >= indent && indent > 0 {
			line = line[indent:]
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// displayWindow picks the rows worth printing: everything up to
// maxDisplayRows, otherwise the first and last edgeRows.
func displayWindow(n int64) (string, bool) {
	if n <= maxDisplayRows {
		return "", false
	}
	return fmt.Sprintf("WHERE %s <= %d OR %s > %d", q(posColumn), edgeRows, q(posColumn), n-edgeRows), true
}

func (rt *Runtime) frameString(ctx context.Context, f *Frame) (string, error) {
	n, err := rt.frameLen(ctx, f)
	if err != nil {
		return "", err
	}
	names := f.columnNames()
	if n == 0 {
		return "Empty DataFrame\nColumns: [" + strings.Join(names, ", ") + "]\nIndex: []", nil
	}
	where, truncated := displayWindow(n)
	rows, err := rt.engine.Query(ctx, fmt.Sprintf("SELECT %s, %s - 1 FROM %s %s ORDER BY %s",
		f.selectAll(), q(posColumn), positioned(f.table, f.physical()), where, q(posColumn)))
	if err != nil {
		return "", err
	}

	labels := len(f.index)
	if labels == 0 {
		labels = 1
	}
	header := make([]string, 0, labels+len(names))
	for _, column := range f.index {
		header = append(header, column.Name)
	}
	if len(f.index) == 0 {
		header = append(header, "")
	}
	header = append(header, names...)

	var types []string
	for _, column := range f.index {
		types = append(types, column.Type)
	}
	for _, column := range f.columns {
		types = append(types, column.Type)
	}

	body := make([][]string, 0, len(rows.Values)+1)
	for r, row := range rows.Values {
		if truncated && r == edgeRows {
			gap := make([]string, len(header))
			for i := range gap {
				gap[i] = "..."
			}
			body = append(body, gap)
		}
		line := make([]string, 0, len(header))
		if len(f.index) == 0 {
			line = append(line, displayValue(fromSQL(row[len(row)-1]), duckdb.TypeBigint))
		}
		for i := 0; i < len(row)-1; i++ {
			line = append(line, displayValue(fromSQL(row[i]), types[i]))
		}
		body = append(body, line)
	}

	align := make([]int, len(header))
	for i := range align {
		align[i] = tablewriter.ALIGN_RIGHT
	}
	for i := 0; i < labels; i++ {
		align[i] = tablewriter.ALIGN_LEFT
	}
	text := renderTable(header, body, align)
	if truncated {
		text += fmt.Sprintf("\n\n[%d rows x %d columns]", n, len(names))
	}
	return text, nil
}

func (rt *Runtime) seriesString(ctx context.Context, s *Series) (string, error) {
	typ, err := rt.seriesType(ctx, s)
	if err != nil {
		return "", err
	}
	n, err := rt.seriesLen(ctx, s)
	if err != nil {
		return "", err
	}
	footer := "dtype: " + dtypeName(typ)
	if s.name != "" {
		footer = "Name: " + s.name + ", " + footer
	}
	if n == 0 {
		return "Series([], " + footer + ")", nil
	}

	where, truncated := displayWindow(n)
	items := append(quotedList(indexPhysical(s.index)), s.expr+" AS "+q("__shown"))
	rows, err := rt.engine.Query(ctx, fmt.Sprintf("SELECT *, %s - 1 FROM (SELECT %s, row_number() OVER () AS %s FROM %s) %s ORDER BY %s",
		q(posColumn), strings.Join(items, ", "), q(posColumn), q(s.table), where, q(posColumn)))
	if err != nil {
		return "", err
	}

	body := make([][]string, 0, len(rows.Values)+1)
	for r, row := range rows.Values {
		if truncated && r == edgeRows {
			body = append(body, []string{"...", ""})
		}
		var label string
		if len(s.index) == 0 {
			label = displayValue(fromSQL(row[len(row)-1]), duckdb.TypeBigint)
		} else {
			parts := make([]string, len(s.index))
			for i, column := range s.index {
				parts[i] = displayValue(fromSQL(row[i]), column.Type)
			}
			label = strings.Join(parts, " ")
		}
		body = append(body, []string{label, displayValue(fromSQL(row[len(s.index)]), typ)})
	}
	text := renderPlain(body)
	if truncated {
		footer += fmt.Sprintf(", length: %d", n)
	}
	return text + "\n" + footer, nil
}

package framescript

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nlquery/nlquery/internal/query"
	"github.com/nlquery/nlquery/internal/query/duckdb"
)

// Frame is a DataFrame backed by a DuckDB table. Index columns are stored
// under indexPrefix; any other column whose name starts with "__" is
// scratch space and never visible.
type Frame struct {
	table   string
	index   []duckdb.Column
	columns []duckdb.Column
}

func frameFromTable(table string, physical []duckdb.Column) *Frame {
	f := &Frame{table: table}
	for _, column := range physical {
		switch {
		case strings.HasPrefix(column.Name, indexPrefix):
			f.index = append(f.index, duckdb.Column{Name: strings.TrimPrefix(column.Name, indexPrefix), Type: column.Type})
		case strings.HasPrefix(column.Name, "__"):
		default:
			f.columns = append(f.columns, column)
		}
	}
	return f
}

func (f *Frame) column(name string) (duckdb.Column, bool) {
	for _, column := range f.columns {
		if column.Name == name {
			return column, true
		}
	}
	return duckdb.Column{}, false
}

func (f *Frame) indexLabel(name string) (duckdb.Column, bool) {
	for _, column := range f.index {
		if column.Name == name && name != "" {
			return column, true
		}
	}
	return duckdb.Column{}, false
}

func (f *Frame) columnNames() []string {
	names := make([]string, len(f.columns))
	for i, column := range f.columns {
		names[i] = column.Name
	}
	return names
}

func indexPhysical(index []duckdb.Column) []string {
	names := make([]string, len(index))
	for i, column := range index {
		names[i] = indexColumn(column.Name)
	}
	return names
}

// physical lists the index columns followed by the visible columns.
func (f *Frame) physical() []string {
	return append(indexPhysical(f.index), f.columnNames()...)
}

func (f *Frame) selectAll() string {
	return strings.Join(quotedList(f.physical()), ", ")
}

func (f *Frame) series(column duckdb.Column) *Series {
	return &Series{table: f.table, index: f.index, expr: q(column.Name), name: column.Name, typ: column.Type}
}

func (f *Frame) indexSeries(column duckdb.Column) *Series {
	return &Series{table: f.table, index: f.index, expr: q(indexColumn(column.Name)), name: column.Name, typ: column.Type}
}

func (f *Frame) keyError(name string) error {
	return fmt.Errorf("KeyError: %s", quotePy(name))
}

func (rt *Runtime) materialize(ctx context.Context, selectSQL string) (*Frame, error) {
	table, columns, err := rt.engine.Materialize(ctx, selectSQL)
	if err != nil {
		return nil, err
	}
	return frameFromTable(table, columns), nil
}

// LoadTable registers text cells as a new frame named after the sheet.
func (rt *Runtime) LoadTable(ctx context.Context, columns []string, cells [][]string) (*Frame, error) {
	table := rt.engine.NewTableName("sheet")
	loaded, err := rt.engine.LoadStrings(ctx, table, columns, cells)
	if err != nil {
		return nil, err
	}
	return &Frame{table: table, columns: loaded}, nil
}

func (rt *Runtime) LoadParquet(ctx context.Context, path string) (*Frame, error) {
	table := rt.engine.NewTableName("sheet")
	loaded, err := rt.engine.LoadParquet(ctx, table, path)
	if err != nil {
		return nil, err
	}
	return frameFromTable(table, loaded), nil
}

func (rt *Runtime) loadValues(ctx context.Context, names []string, rows [][]any) (*Frame, error) {
	table := rt.engine.NewTableName("v")
	loaded, err := rt.engine.LoadValues(ctx, table, names, rows)
	if err != nil {
		return nil, err
	}
	return frameFromTable(table, loaded), nil
}

// Records returns the visible columns of f and its rows with the index
// dropped, values normalized for JSON.
func (rt *Runtime) Records(ctx context.Context, f *Frame) ([]string, [][]any, error) {
	names := f.columnNames()
	if len(names) == 0 {
		return names, [][]any{}, nil
	}
	rows, err := rt.engine.Query(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(quotedList(names), ", "), q(f.table)))
	if err != nil {
		return nil, nil, err
	}
	types := make([]string, len(rows.Columns))
	for i, column := range rows.Columns {
		types[i] = column.Type
	}
	out := make([][]any, len(rows.Values))
	for i, row := range rows.Values {
		out[i] = query.NormalizeRow(row, types)
	}
	return names, out, nil
}

func (rt *Runtime) frameLen(ctx context.Context, f *Frame) (int64, error) {
	value, _, err := rt.engine.QueryValue(ctx, "SELECT COUNT(*) FROM "+q(f.table))
	if err != nil {
		return 0, err
	}
	n, _ := toInt(fromSQL(value))
	return n, nil
}

func (rt *Runtime) frameGetItem(ctx context.Context, f *Frame, key Value) (Value, error) {
	switch k := key.(type) {
	case string:
		column, ok := f.column(k)
		if !ok {
			return nil, f.keyError(k)
		}
		return f.series(column), nil
	case *List:
		names, err := stringList(k)
		if err != nil {
			return nil, err
		}
		return f.project(names)
	case *Series:
		return rt.filterFrame(ctx, f, k)
	case *sliceValue:
		return rt.sliceFrame(ctx, f, k)
	default:
		return nil, fmt.Errorf("%w: DataFrame key of type %s", ErrUnsupported, typeName(key))
	}
}

func stringList(list *List) ([]string, error) {
	out := make([]string, 0, len(list.Items))
	for _, item := range list.Items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("TypeError: expected column names, got %s", typeName(item))
		}
		out = append(out, s)
	}
	return out, nil
}

// stringsArg accepts a single name or a list of names.
func stringsArg(v Value) ([]string, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case *List:
		return stringList(t)
	default:
		return nil, fmt.Errorf("TypeError: expected a column name or list of names, got %s", typeName(v))
	}
}

// project keeps the named columns without copying the table.
func (f *Frame) project(names []string) (*Frame, error) {
	out := &Frame{table: f.table, index: f.index}
	for _, name := range names {
		column, ok := f.column(name)
		if !ok {
			return nil, f.keyError(name)
		}
		out.columns = append(out.columns, column)
	}
	return out, nil
}

// align returns a frame equivalent to f and an SQL expression over its table
// holding the values of s. Series from another table are matched by position.
func (rt *Runtime) align(ctx context.Context, f *Frame, s *Series) (*Frame, string, error) {
	if s.table == f.table {
		return f, s.expr, nil
	}
	joined := fmt.Sprintf("SELECT %s, b.%s FROM %s AS a POSITIONAL JOIN (SELECT %s AS %s FROM %s) AS b",
		strings.Join(qualified("a", f.physical()), ", "), q("__aligned"), q(f.table), s.expr, q("__aligned"), q(s.table))
	table, _, err := rt.engine.Materialize(ctx, joined)
	if err != nil {
		return nil, "", err
	}
	return &Frame{table: table, index: f.index, columns: f.columns}, q("__aligned"), nil
}

func (rt *Runtime) filterFrame(ctx context.Context, f *Frame, mask *Series) (*Frame, error) {
	typ, err := rt.seriesType(ctx, mask)
	if err != nil {
		return nil, err
	}
	if typ != duckdb.TypeBoolean {
		return nil, fmt.Errorf("%w: indexing a DataFrame with a %s Series", ErrUnsupported, dtypeName(typ))
	}
	base, cond, err := rt.align(ctx, f, mask)
	if err != nil {
		return nil, err
	}
	return rt.materialize(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s", base.selectAll(), q(base.table), cond))
}

func (rt *Runtime) sliceFrame(ctx context.Context, f *Frame, s *sliceValue) (*Frame, error) {
	if s.step != nil && s.step.(int64) != 1 {
		return nil, fmt.Errorf("%w: slice step", ErrUnsupported)
	}
	n, err := rt.frameLen(ctx, f)
	if err != nil {
		return nil, err
	}
	lo, hi, _, err := s.bounds(int(n))
	if err != nil {
		return nil, err
	}
	return rt.rowRange(ctx, f, lo, hi)
}

// rowRange keeps rows lo through hi-1 by position.
func (rt *Runtime) rowRange(ctx context.Context, f *Frame, lo, hi int) (*Frame, error) {
	if hi < lo {
		hi = lo
	}
	return rt.materialize(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s > %d AND %s <= %d ORDER BY %s",
		f.selectAll(), positioned(f.table, f.physical()), q(posColumn), lo, q(posColumn), hi, q(posColumn)))
}

func (rt *Runtime) setColumn(ctx context.Context, f *Frame, name string, value Value) error {
	var base *Frame
	var valueSQL string
	switch v := value.(type) {
	case *Series:
		var err error
		base, valueSQL, err = rt.align(ctx, f, v)
		if err != nil {
			return err
		}
	case *List:
		n, err := rt.frameLen(ctx, f)
		if err != nil {
			return err
		}
		if int64(len(v.Items)) != n {
			return fmt.Errorf("ValueError: Length of values (%d) does not match length of index (%d)", len(v.Items), n)
		}
		s, err := rt.seriesFromValues(ctx, name, v.Items)
		if err != nil {
			return err
		}
		base, valueSQL, err = rt.align(ctx, f, s)
		if err != nil {
			return err
		}
	default:
		text, _, err := literal(value)
		if err != nil {
			return err
		}
		base, valueSQL = f, text
	}

	items := quotedList(indexPhysical(base.index))
	replaced := false
	for _, column := range base.columns {
		if column.Name == name {
			items = append(items, valueSQL+" AS "+q(name))
			replaced = true
			continue
		}
		items = append(items, q(column.Name))
	}
	if !replaced {
		items = append(items, valueSQL+" AS "+q(name))
	}
	out, err := rt.materialize(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(items, ", "), q(base.table)))
	if err != nil {
		return err
	}
	*f = *out
	return nil
}

func (rt *Runtime) setColumns(ctx context.Context, f *Frame, value Value) error {
	names, err := iterStrings(value)
	if err != nil {
		return err
	}
	if len(names) != len(f.columns) {
		return fmt.Errorf("ValueError: Length mismatch: Expected axis has %d elements, new values have %d elements", len(f.columns), len(names))
	}
	mapping := make(map[string]string, len(names))
	for i, column := range f.columns {
		mapping[column.Name] = names[i]
	}
	out, err := rt.renameColumns(ctx, f, mapping)
	if err != nil {
		return err
	}
	*f = *out
	return nil
}

func iterStrings(value Value) ([]string, error) {
	list, ok := value.(*List)
	if !ok {
		return nil, fmt.Errorf("TypeError: expected a list of column names, got %s", typeName(value))
	}
	out := make([]string, len(list.Items))
	for i, item := range list.Items {
		s, ok := scalarStr(item)
		if !ok {
			return nil, fmt.Errorf("TypeError: column names must be scalars")
		}
		out[i] = s
	}
	return out, nil
}

func (rt *Runtime) renameColumns(ctx context.Context, f *Frame, mapping map[string]string) (*Frame, error) {
	items := quotedList(indexPhysical(f.index))
	seen := make(map[string]bool, len(f.columns))
	for _, column := range f.columns {
		name := column.Name
		if renamed, ok := mapping[name]; ok {
			name = renamed
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate column name %q", ErrUnsupported, name)
		}
		seen[name] = true
		items = append(items, q(column.Name)+" AS "+q(name))
	}
	return rt.materialize(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(items, ", "), q(f.table)))
}

var frameMethods = map[string]bool{
	"head": true, "tail": true, "sort_values": true, "groupby": true, "reset_index": true,
	"nlargest": true, "nsmallest": true, "query": true, "dropna": true, "drop_duplicates": true,
	"rename": true, "merge": true, "fillna": true, "copy": true, "set_index": true, "drop": true,
	"sum": true, "mean": true, "min": true, "max": true, "count": true, "median": true,
	"std": true, "nunique": true, "astype": true, "isna": true, "notna": true, "isnull": true,
	"notnull": true, "to_dict": true,
}

func (rt *Runtime) frameAttr(ctx context.Context, f *Frame, name string) (Value, error) {
	switch name {
	case "columns":
		return &List{Items: stringValues(f.columnNames())}, nil
	case "empty":
		n, err := rt.frameLen(ctx, f)
		if err != nil {
			return nil, err
		}
		return n == 0 || len(f.columns) == 0, nil
	case "shape":
		n, err := rt.frameLen(ctx, f)
		if err != nil {
			return nil, err
		}
		return &List{Items: []Value{n, int64(len(f.columns))}, Tuple: true}, nil
	case "size":
		n, err := rt.frameLen(ctx, f)
		if err != nil {
			return nil, err
		}
		return n * int64(len(f.columns)), nil
	case "loc", "iloc":
		return &indexer{owner: f, positional: name == "iloc"}, nil
	case "index":
		return rt.frameIndex(ctx, f)
	}
	if frameMethods[name] {
		return &boundMethod{recv: f, name: name}, nil
	}
	if column, ok := f.column(name); ok {
		return f.series(column), nil
	}
	return nil, fmt.Errorf("%w: 'DataFrame' object has no attribute '%s'", ErrUnsupported, name)
}

func (rt *Runtime) frameIndex(ctx context.Context, f *Frame) (Value, error) {
	if len(f.index) == 0 {
		n, err := rt.frameLen(ctx, f)
		if err != nil {
			return nil, err
		}
		items := make([]Value, n)
		for i := range items {
			items[i] = int64(i)
		}
		return &List{Items: items}, nil
	}
	if len(f.index) > 1 {
		return nil, fmt.Errorf("%w: multi-level index values", ErrUnsupported)
	}
	return rt.seriesValues(ctx, f.indexSeries(f.index[0]))
}

func (rt *Runtime) frameMethod(ctx context.Context, f *Frame, name string, args callArgs) (Value, error) {
	switch name {
	case "head", "tail":
		if err := args.allow(name, 1, "n"); err != nil {
			return nil, err
		}
		n, err := args.intArg(0, "n", 5)
		if err != nil {
			return nil, err
		}
		total, err := rt.frameLen(ctx, f)
		if err != nil {
			return nil, err
		}
		lo, hi := headBounds(name, int(n), int(total))
		return rt.rowRange(ctx, f, lo, hi)
	case "copy":
		return &Frame{table: f.table, index: f.index, columns: f.columns}, nil
	case "sort_values":
		if err := args.allow(name, 2, "by", "ascending", "inplace", "na_position", "kind", "ignore_index"); err != nil {
			return nil, err
		}
		by, ok := args.get(0, "by")
		if !ok {
			return nil, errors.New("TypeError: sort_values() missing required argument: 'by'")
		}
		keys, err := stringsArg(by)
		if err != nil {
			return nil, err
		}
		ascending, err := ascendingArg(args, 1, len(keys))
		if err != nil {
			return nil, err
		}
		out, err := rt.sortFrame(ctx, f, keys, ascending, args.boolKw("ignore_index", false))
		if err != nil {
			return nil, err
		}
		return rt.inplace(f, out, args)
	case "nlargest", "nsmallest":
		if err := args.allow(name, 2, "n", "columns", "keep"); err != nil {
			return nil, err
		}
		n, err := args.intArg(0, "n", 5)
		if err != nil {
			return nil, err
		}
		by, ok := args.get(1, "columns")
		if !ok {
			return nil, fmt.Errorf("TypeError: %s() missing required argument: 'columns'", name)
		}
		keys, err := stringsArg(by)
		if err != nil {
			return nil, err
		}
		ascending := make([]bool, len(keys))
		for i := range ascending {
			ascending[i] = name == "nsmallest"
		}
		sorted, err := rt.sortFrame(ctx, f, keys, ascending, false)
		if err != nil {
			return nil, err
		}
		return rt.rowRange(ctx, sorted, 0, int(max(n, 0)))
	case "groupby":
		return rt.groupBy(ctx, f, args)
	case "reset_index":
		if err := args.allow(name, 0, "drop", "inplace", "name"); err != nil {
			return nil, err
		}
		out, err := rt.resetFrameIndex(ctx, f, args.boolKw("drop", false))
		if err != nil {
			return nil, err
		}
		return rt.inplace(f, out, args)
	case "set_index":
		if err := args.allow(name, 1, "keys", "drop", "inplace"); err != nil {
			return nil, err
		}
		keysArg, ok := args.get(0, "keys")
		if !ok {
			return nil, errors.New("TypeError: set_index() missing required argument: 'keys'")
		}
		keys, err := stringsArg(keysArg)
		if err != nil {
			return nil, err
		}
		out, err := rt.setFrameIndex(ctx, f, keys, args.boolKw("drop", true))
		if err != nil {
			return nil, err
		}
		return rt.inplace(f, out, args)
	case "query":
		if err := args.allow(name, 1, "expr", "inplace", "engine"); err != nil {
			return nil, err
		}
		text, ok := args.get(0, "expr")
		source, isString := text.(string)
		if !ok || !isString {
			return nil, errors.New("TypeError: query() expects an expression string")
		}
		out, err := rt.queryFrameExpr(ctx, f, source)
		if err != nil {
			return nil, err
		}
		return rt.inplace(f, out, args)
	case "dropna":
		if err := args.allow(name, 0, "subset", "how", "inplace", "axis"); err != nil {
			return nil, err
		}
		out, err := rt.dropNA(ctx, f, args)
		if err != nil {
			return nil, err
		}
		return rt.inplace(f, out, args)
	case "drop_duplicates":
		if err := args.allow(name, 1, "subset", "keep", "inplace", "ignore_index"); err != nil {
			return nil, err
		}
		out, err := rt.dropDuplicates(ctx, f, args)
		if err != nil {
			return nil, err
		}
		return rt.inplace(f, out, args)
	case "rename":
		if err := args.allow(name, 0, "columns", "inplace"); err != nil {
			return nil, err
		}
		mappingArg, ok := args.kw["columns"].(*Dict)
		if !ok {
			return nil, fmt.Errorf("%w: rename without a columns mapping", ErrUnsupported)
		}
		mapping := make(map[string]string, mappingArg.Len())
		for _, key := range mappingArg.Keys() {
			value, _ := mappingArg.Get(key)
			from, ok1 := key.(string)
			to, ok2 := scalarStr(value)
			if !ok1 || !ok2 {
				return nil, errors.New("TypeError: rename mapping must map column names to names")
			}
			mapping[from] = to
		}
		out, err := rt.renameColumns(ctx, f, mapping)
		if err != nil {
			return nil, err
		}
		return rt.inplace(f, out, args)
	case "drop":
		if err := args.allow(name, 1, "columns", "labels", "axis", "inplace", "errors"); err != nil {
			return nil, err
		}
		target, ok := args.kw["columns"]
		if !ok {
			if axis := args.kw["axis"]; !equalScalars(axis, int64(1)) && axis != "columns" {
				return nil, fmt.Errorf("%w: dropping rows by label", ErrUnsupported)
			}
			target, ok = args.get(0, "labels")
		}
		if !ok {
			return nil, errors.New("TypeError: drop() needs columns to drop")
		}
		names, err := stringsArg(target)
		if err != nil {
			return nil, err
		}
		out, err := f.without(names, args.kw["errors"] != "ignore")
		if err != nil {
			return nil, err
		}
		return rt.inplace(f, out, args)
	case "merge":
		if len(args.pos) == 0 {
			return nil, errors.New("TypeError: merge() missing required argument: 'right'")
		}
		rest := callArgs{pos: append([]Value{f}, args.pos...), kw: args.kw, kwOrder: args.kwOrder}
		return rt.merge(ctx, rest)
	case "fillna":
		if err := args.allow(name, 1, "value", "inplace"); err != nil {
			return nil, err
		}
		value, _ := args.get(0, "value")
		out, err := rt.fillFrame(ctx, f, value)
		if err != nil {
			return nil, err
		}
		return rt.inplace(f, out, args)
	case "astype":
		if err := args.allow(name, 1, "dtype"); err != nil {
			return nil, err
		}
		return rt.astypeFrame(ctx, f, args.pos)
	case "isna", "isnull", "notna", "notnull":
		if err := args.allow(name, 0); err != nil {
			return nil, err
		}
		items := quotedList(indexPhysical(f.index))
		for _, column := range f.columns {
			s, err := rt.seriesMissing(ctx, f.series(column), name == "notna" || name == "notnull")
			if err != nil {
				return nil, err
			}
			items = append(items, s.expr+" AS "+q(column.Name))
		}
		return rt.materialize(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(items, ", "), q(f.table)))
	case "to_dict":
		return rt.frameToDict(ctx, f, args)
	case "sum", "mean", "min", "max", "count", "median", "std", "nunique":
		if err := args.allow(name, 0, "numeric_only", "axis"); err != nil {
			return nil, err
		}
		return rt.frameAggregate(ctx, f, name, args.boolKw("numeric_only", numericOnly(name)))
	}
	return nil, fmt.Errorf("%w: DataFrame.%s", ErrUnsupported, name)
}

func headBounds(name string, n, total int) (int, int) {
	if name == "head" {
		if n < 0 {
			return 0, max(total+n, 0)
		}
		return 0, min(n, total)
	}
	if n < 0 {
		return min(-n, total), total
	}
	return max(total-n, 0), total
}

// inplace honours inplace=True by rebinding f and returning None.
func (rt *Runtime) inplace(f, out *Frame, args callArgs) (Value, error) {
	if args.boolKw("inplace", false) {
		*f = *out
		return nil, nil
	}
	return out, nil
}

func ascendingArg(args callArgs, position, n int) ([]bool, error) {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	value, ok := args.get(position, "ascending")
	if !ok {
		return out, nil
	}
	switch v := value.(type) {
	case bool:
		for i := range out {
			out[i] = v
		}
	case *List:
		if len(v.Items) != n {
			return nil, fmt.Errorf("ValueError: Length of ascending (%d) != length of by (%d)", len(v.Items), n)
		}
		for i, item := range v.Items {
			b, err := truthy(item)
			if err != nil {
				return nil, err
			}
			out[i] = b
		}
	default:
		b, err := truthy(value)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = b
		}
	}
	return out, nil
}

// keyExpr resolves a sort or group key against the columns and then the
// index labels of f.
func (f *Frame) keyExpr(name string) (string, error) {
	if _, ok := f.column(name); ok {
		return q(name), nil
	}
	if _, ok := f.indexLabel(name); ok {
		return q(indexColumn(name)), nil
	}
	return "", f.keyError(name)
}

func (rt *Runtime) sortFrame(ctx context.Context, f *Frame, keys []string, ascending []bool, ignoreIndex bool) (*Frame, error) {
	terms := make([]string, 0, len(keys)+1)
	for i, key := range keys {
		keySQL, err := f.keyExpr(key)
		if err != nil {
			return nil, err
		}
		terms = append(terms, orderTerm(keySQL, ascending[i]))
	}
	terms = append(terms, q(posColumn))
	selected := f.selectAll()
	if ignoreIndex {
		selected = strings.Join(quotedList(f.columnNames()), ", ")
	}
	return rt.materialize(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		selected, positioned(f.table, f.physical()), strings.Join(terms, ", ")))
}

func (rt *Runtime) resetFrameIndex(ctx context.Context, f *Frame, drop bool) (*Frame, error) {
	var items []string
	if !drop {
		if len(f.index) == 0 {
			items = append(items, fmt.Sprintf("CAST(row_number() OVER () - 1 AS BIGINT) AS %s", q("index")))
		}
		for _, column := range f.index {
			label := column.Name
			if label == "" {
				label = "index"
			}
			if _, clash := f.column(label); clash {
				return nil, fmt.Errorf("ValueError: cannot insert %s, already exists", label)
			}
			items = append(items, q(indexColumn(column.Name))+" AS "+q(label))
		}
	}
	items = append(items, quotedList(f.columnNames())...)
	if len(items) == 0 {
		return &Frame{table: f.table}, nil
	}
	return rt.materialize(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(items, ", "), q(f.table)))
}

func (rt *Runtime) setFrameIndex(ctx context.Context, f *Frame, keys []string, drop bool) (*Frame, error) {
	items := make([]string, 0, len(keys)+len(f.columns))
	isKey := make(map[string]bool, len(keys))
	for _, key := range keys {
		if _, ok := f.column(key); !ok {
			return nil, f.keyError(key)
		}
		isKey[key] = true
		items = append(items, q(key)+" AS "+q(indexColumn(key)))
	}
	for _, column := range f.columns {
		if drop && isKey[column.Name] {
			continue
		}
		items = append(items, q(column.Name))
	}
	return rt.materialize(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(items, ", "), q(f.table)))
}

func (f *Frame) without(names []string, strict bool) (*Frame, error) {
	drop := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := f.column(name); !ok && strict {
			return nil, fmt.Errorf("KeyError: \"%s not found in axis\"", quotePy(name))
		}
		drop[name] = true
	}
	out := &Frame{table: f.table, index: f.index}
	for _, column := range f.columns {
		if !drop[column.Name] {
			out.columns = append(out.columns, column)
		}
	}
	return out, nil
}

func (rt *Runtime) queryFrameExpr(ctx context.Context, f *Frame, source string) (*Frame, error) {
	e, err := parseExpression(source, true)
	if err != nil {
		return nil, err
	}
	previous := rt.queryFrame
	rt.queryFrame = f
	value, err := rt.eval(ctx, e)
	rt.queryFrame = previous
	if err != nil {
		return nil, err
	}
	mask, ok := value.(*Series)
	if !ok {
		return nil, fmt.Errorf("ValueError: query expression %q did not produce a boolean mask", source)
	}
	return rt.filterFrame(ctx, f, mask)
}

func (rt *Runtime) dropNA(ctx context.Context, f *Frame, args callArgs) (*Frame, error) {
	if axis, ok := args.kw["axis"]; ok && !equalScalars(axis, int64(0)) && axis != "index" {
		return nil, fmt.Errorf("%w: dropna on columns", ErrUnsupported)
	}
	names := f.columnNames()
	if subset, ok := args.kw["subset"]; ok && subset != nil {
		var err error
		if names, err = stringsArg(subset); err != nil {
			return nil, err
		}
	}
	joiner := " AND "
	if how, _ := args.kw["how"].(string); how == "all" {
		joiner = " OR "
	}
	conds := make([]string, 0, len(names))
	for _, name := range names {
		column, ok := f.column(name)
		if !ok {
			return nil, f.keyError(name)
		}
		present, err := rt.seriesMissing(ctx, f.series(column), true)
		if err != nil {
			return nil, err
		}
		conds = append(conds, present.expr)
	}
	if len(conds) == 0 {
		return f, nil
	}
	return rt.materialize(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s", f.selectAll(), q(f.table), strings.Join(conds, joiner)))
}

func (rt *Runtime) dropDuplicates(ctx context.Context, f *Frame, args callArgs) (*Frame, error) {
	names := f.columnNames()
	if subset, ok := args.get(0, "subset"); ok && subset != nil {
		var err error
		if names, err = stringsArg(subset); err != nil {
			return nil, err
		}
	}
	for _, name := range names {
		if _, ok := f.column(name); !ok {
			return nil, f.keyError(name)
		}
	}
	order := "ASC"
	switch keep := args.kw["keep"]; keep {
	case nil, "first":
	case "last":
		order = "DESC"
	default:
		return nil, fmt.Errorf("%w: drop_duplicates keep=%v", ErrUnsupported, keep)
	}
	selected := f.selectAll()
	if args.boolKw("ignore_index", false) {
		selected = strings.Join(quotedList(f.columnNames()), ", ")
	}
	return rt.materialize(ctx, fmt.Sprintf(
		"SELECT %s FROM (SELECT *, row_number() OVER (PARTITION BY %s ORDER BY %s %s) AS %s FROM %s) WHERE %s = 1 ORDER BY %s",
		selected, strings.Join(quotedList(names), ", "), q(posColumn), order, q("__dup"),
		positioned(f.table, f.physical()), q("__dup"), q(posColumn)))
}

func (rt *Runtime) fillFrame(ctx context.Context, f *Frame, value Value) (*Frame, error) {
	perColumn, _ := value.(*Dict)
	items := quotedList(indexPhysical(f.index))
	for _, column := range f.columns {
		fill := value
		if perColumn != nil {
			v, ok := perColumn.Get(column.Name)
			if !ok {
				items = append(items, q(column.Name))
				continue
			}
			fill = v
		}
		filled, err := rt.fillSeries(ctx, f.series(column), fill)
		if err != nil {
			return nil, err
		}
		items = append(items, filled.expr+" AS "+q(column.Name))
	}
	return rt.materialize(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(items, ", "), q(f.table)))
}

func (rt *Runtime) astypeFrame(ctx context.Context, f *Frame, pos []Value) (*Frame, error) {
	if len(pos) == 0 {
		return nil, errors.New("TypeError: astype() missing required argument: 'dtype'")
	}
	perColumn, _ := pos[0].(*Dict)
	items := quotedList(indexPhysical(f.index))
	for _, column := range f.columns {
		target := pos[0]
		if perColumn != nil {
			v, ok := perColumn.Get(column.Name)
			if !ok {
				items = append(items, q(column.Name))
				continue
			}
			target = v
		}
		name, ok := target.(string)
		if !ok {
			return nil, fmt.Errorf("%w: astype with %s", ErrUnsupported, typeName(target))
		}
		typ, err := castType(name)
		if err != nil {
			return nil, err
		}
		items = append(items, fmt.Sprintf("CAST(%s AS %s) AS %s", q(column.Name), typ, q(column.Name)))
	}
	return rt.materialize(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(items, ", "), q(f.table)))
}

// frameAggregate reduces every column to one value, giving a Series indexed
// by column name.
func (rt *Runtime) frameAggregate(ctx context.Context, f *Frame, fn string, numeric bool) (Value, error) {
	var names, exprs []string
	for _, column := range f.columns {
		if numeric && !duckdb.IsNumeric(column.Type) && column.Type != duckdb.TypeBoolean {
			continue
		}
		aggregate, _, err := aggregateSQL(fn, q(column.Name), column.Type)
		if err != nil {
			return nil, err
		}
		names = append(names, column.Name)
		exprs = append(exprs, aggregate)
	}
	rows := make([][]any, 0, len(names))
	if len(exprs) > 0 {
		result, err := rt.engine.Query(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), q(f.table)))
		if err != nil {
			return nil, err
		}
		for i, name := range names {
			rows = append(rows, []any{name, fromSQL(result.Values[0][i])})
		}
	}
	out, err := rt.loadValues(ctx, []string{indexColumn(""), "__value"}, rows)
	if err != nil {
		return nil, err
	}
	return &Series{table: out.table, index: out.index, expr: q("__value")}, nil
}

func (rt *Runtime) frameToDict(ctx context.Context, f *Frame, args callArgs) (Value, error) {
	orient, _ := args.get(0, "orient")
	if orient != "records" && orient != "list" {
		return nil, fmt.Errorf("%w: to_dict orient %v", ErrUnsupported, orient)
	}
	names, rows, err := rt.Records(ctx, f)
	if err != nil {
		return nil, err
	}
	if orient == "list" {
		d := NewDict()
		for i, name := range names {
			items := make([]Value, len(rows))
			for r, row := range rows {
				items[r] = fromSQL(row[i])
			}
			d.Set(name, &List{Items: items})
		}
		return d, nil
	}
	out := &List{}
	for _, row := range rows {
		d := NewDict()
		for i, name := range names {
			d.Set(name, fromSQL(row[i]))
		}
		out.Items = append(out.Items, d)
	}
	return out, nil
}

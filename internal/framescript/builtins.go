package framescript

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type callArgs struct {
	pos     []Value
	kw      map[string]Value
	kwOrder []string
}

// get returns the argument given at position i or by keyword name.
func (c callArgs) get(i int, name string) (Value, bool) {
	if i >= 0 && i < len(c.pos) {
		return c.pos[i], true
	}
	if name == "" {
		return nil, false
	}
	v, ok := c.kw[name]
	return v, ok
}

func (c callArgs) pos0() Value {
	if len(c.pos) == 0 {
		return nil
	}
	return c.pos[0]
}

// allow rejects extra positional arguments and unknown keywords.
func (c callArgs) allow(fn string, maxPositional int, names ...string) error {
	if len(c.pos) > maxPositional {
		return fmt.Errorf("TypeError: %s() takes at most %d positional arguments but %d were given", fn, maxPositional, len(c.pos))
	}
	for _, name := range c.kwOrder {
		known := false
		for _, allowed := range names {
			if name == allowed {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("TypeError: %s() got an unexpected keyword argument '%s'", fn, name)
		}
	}
	return nil
}

func (c callArgs) boolKw(name string, def bool) bool {
	v, ok := c.kw[name]
	if !ok {
		return def
	}
	b, err := truthy(v)
	if err != nil {
		return def
	}
	return b
}

func (c callArgs) intArg(i int, name string, def int64) (int64, error) {
	v, ok := c.get(i, name)
	if !ok || v == nil {
		return def, nil
	}
	n, ok := toInt64Strict(v)
	if !ok {
		return 0, fmt.Errorf("TypeError: %s must be an integer, not %s", name, typeName(v))
	}
	return n, nil
}

func (c callArgs) floatArg(i int, name string, def float64) (float64, error) {
	v, ok := c.get(i, name)
	if !ok || v == nil {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("TypeError: %s must be a number, not %s", name, typeName(v))
	}
	return f, nil
}

func (rt *Runtime) call(ctx context.Context, fn Value, args callArgs) (Value, error) {
	switch f := fn.(type) {
	case *builtinFunc:
		return rt.callBuiltin(ctx, f.name, args)
	case *boundMethod:
		switch recv := f.recv.(type) {
		case *Frame:
			return rt.frameMethod(ctx, recv, f.name, args)
		case *Series:
			return rt.seriesMethod(ctx, recv, f.name, args)
		case *GroupBy:
			return rt.groupMethod(ctx, recv, f.name, args)
		case *accessor:
			return rt.accessorMethod(recv, f.name, args)
		case *module:
			if recv.name == "numpy" {
				return rt.numpyFunc(ctx, f.name, args)
			}
			return rt.pandasFunc(ctx, f.name, args)
		case string:
			return stringMethod(recv, f.name, args)
		case *List:
			return rt.listMethod(ctx, recv, f.name, args)
		case *Dict:
			return dictMethod(recv, f.name, args)
		case time.Time:
			return timeMethod(recv, f.name, args)
		}
	}
	return nil, fmt.Errorf("TypeError: '%s' object is not callable", typeName(fn))
}

func (rt *Runtime) attr(ctx context.Context, owner Value, name string) (Value, error) {
	switch o := owner.(type) {
	case *Frame:
		return rt.frameAttr(ctx, o, name)
	case *Series:
		return rt.seriesAttr(ctx, o, name)
	case *GroupBy:
		return rt.groupAttr(o, name)
	case *accessor:
		return rt.accessorAttr(o, name)
	case *module:
		return moduleAttr(o, name)
	case *Row:
		if name == "name" {
			return o.name, nil
		}
		return o.get(name)
	case string:
		if stringMethodNames[name] {
			return &boundMethod{recv: o, name: name}, nil
		}
	case *List:
		if name == "append" || name == "count" || name == "index" || name == "extend" {
			return &boundMethod{recv: o, name: name}, nil
		}
	case *Dict:
		if name == "keys" || name == "values" || name == "items" || name == "get" {
			return &boundMethod{recv: o, name: name}, nil
		}
	case time.Time:
		switch name {
		case "year":
			return int64(o.Year()), nil
		case "month":
			return int64(o.Month()), nil
		case "day":
			return int64(o.Day()), nil
		case "hour":
			return int64(o.Hour()), nil
		case "minute":
			return int64(o.Minute()), nil
		case "strftime", "date":
			return &boundMethod{recv: o, name: name}, nil
		}
	}
	return nil, fmt.Errorf("%w: '%s' object has no attribute '%s'", ErrUnsupported, typeName(owner), name)
}

var pandasFuncs = map[string]bool{
	"read_sql": true, "read_sql_query": true, "merge": true, "concat": true, "to_datetime": true,
	"read_excel": true, "DataFrame": true, "Series": true, "isna": true, "notna": true,
	"isnull": true, "notnull": true, "to_numeric": true,
}

var numpyFuncs = map[string]bool{"where": true, "round": true, "abs": true, "isnan": true}

func moduleAttr(m *module, name string) (Value, error) {
	if m.name == "numpy" {
		switch name {
		case "nan", "NaN":
			return math.NaN(), nil
		case "inf":
			return math.Inf(1), nil
		}
		if numpyFuncs[name] {
			return &boundMethod{recv: m, name: name}, nil
		}
	} else {
		if name == "NA" || name == "NaT" {
			return nil, nil
		}
		if pandasFuncs[name] {
			return &boundMethod{recv: m, name: name}, nil
		}
	}
	short := map[string]string{"pandas": "pd", "numpy": "np"}[m.name]
	return nil, fmt.Errorf("%w: %s.%s", ErrUnsupported, short, name)
}

func (rt *Runtime) callBuiltin(ctx context.Context, name string, args callArgs) (Value, error) {
	switch name {
	case "print":
		if err := args.allow(name, len(args.pos), "sep", "end", "flush"); err != nil {
			return nil, err
		}
		sep := " "
		if v, ok := args.kw["sep"].(string); ok {
			sep = v
		}
		parts := make([]string, len(args.pos))
		for i, arg := range args.pos {
			text, err := rt.str(ctx, arg)
			if err != nil {
				return nil, err
			}
			parts[i] = text
		}
		rt.output = append(rt.output, strings.Join(parts, sep))
		return nil, nil
	case "sorted":
		if err := args.allow(name, 1, "reverse"); err != nil {
			return nil, err
		}
		items, err := rt.iterate(ctx, args.pos0())
		if err != nil {
			return nil, err
		}
		out := append([]Value(nil), items...)
		var sortErr error
		sort.SliceStable(out, func(i, j int) bool {
			less, err := compareScalars("<", out[i], out[j])
			if err != nil {
				sortErr = err
				return false
			}
			return less.(bool)
		})
		if sortErr != nil {
			return nil, sortErr
		}
		if args.boolKw("reverse", false) {
			for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
				out[i], out[j] = out[j], out[i]
			}
		}
		return &List{Items: out}, nil
	}

	if len(args.kwOrder) > 0 && name != "round" {
		return nil, fmt.Errorf("TypeError: %s() takes no keyword arguments", name)
	}
	if len(args.pos) == 0 {
		switch name {
		case "str":
			return "", nil
		case "int":
			return int64(0), nil
		case "float":
			return 0.0, nil
		case "bool":
			return false, nil
		case "list":
			return &List{}, nil
		}
		return nil, fmt.Errorf("TypeError: %s expected at least 1 argument, got 0", name)
	}
	arg := args.pos[0]
	switch name {
	case "len":
		switch v := arg.(type) {
		case *Frame:
			return rt.frameLen(ctx, v)
		case *Series:
			return rt.seriesLen(ctx, v)
		case string:
			return int64(len([]rune(v))), nil
		case *List:
			return int64(len(v.Items)), nil
		case *Dict:
			return int64(v.Len()), nil
		case *Row:
			return int64(len(v.values)), nil
		}
		return nil, fmt.Errorf("TypeError: object of type '%s' has no len()", typeName(arg))
	case "str":
		return rt.str(ctx, arg)
	case "bool":
		return truthy(arg)
	case "int":
		switch v := arg.(type) {
		case int64:
			return v, nil
		case bool:
			n, _ := toInt64Strict(v)
			return n, nil
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.New("ValueError: cannot convert float NaN or infinity to integer")
			}
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(strings.ReplaceAll(v, "_", "")), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("ValueError: invalid literal for int() with base 10: %s", quotePy(v))
			}
			return n, nil
		}
	case "float":
		switch v := arg.(type) {
		case int64, float64, bool:
			f, _ := toFloat(v)
			return f, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("ValueError: could not convert string to float: %s", quotePy(v))
			}
			return f, nil
		}
	case "abs":
		switch v := arg.(type) {
		case int64:
			if v < 0 {
				return -v, nil
			}
			return v, nil
		case float64:
			return math.Abs(v), nil
		case *Series:
			return rt.seriesMethod(ctx, v, "abs", callArgs{})
		}
	case "round":
		digits, err := args.intArg(1, "ndigits", 0)
		if err != nil {
			return nil, err
		}
		_, hasDigits := args.get(1, "ndigits")
		return rt.round(ctx, arg, digits, hasDigits)
	case "list":
		items, err := rt.iterate(ctx, arg)
		if err != nil {
			return nil, err
		}
		return &List{Items: append([]Value(nil), items...)}, nil
	case "sum":
		if s, ok := arg.(*Series); ok {
			return rt.seriesAggregate(ctx, s, "sum")
		}
		items, err := rt.iterate(ctx, arg)
		if err != nil {
			return nil, err
		}
		var total Value = int64(0)
		for _, item := range items {
			if total, err = binaryScalars("+", total, item); err != nil {
				return nil, err
			}
		}
		return total, nil
	case "min", "max":
		if s, ok := arg.(*Series); ok && len(args.pos) == 1 {
			return rt.seriesAggregate(ctx, s, name)
		}
		items := args.pos
		if len(args.pos) == 1 {
			var err error
			if items, err = rt.iterate(ctx, arg); err != nil {
				return nil, err
			}
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("ValueError: %s() arg is an empty sequence", name)
		}
		op := "<"
		if name == "max" {
			op = ">"
		}
		best := items[0]
		for _, item := range items[1:] {
			better, err := compareScalars(op, item, best)
			if err != nil {
				return nil, err
			}
			if better.(bool) {
				best = item
			}
		}
		return best, nil
	}
	return nil, fmt.Errorf("TypeError: %s() argument must be a number or string, not '%s'", name, typeName(arg))
}

// round rounds half to even like Python.
func (rt *Runtime) round(ctx context.Context, v Value, digits int64, hasDigits bool) (Value, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case bool:
		n, _ := toInt64Strict(t)
		return n, nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			if hasDigits {
				return t, nil
			}
			return nil, errors.New("ValueError: cannot convert float NaN or infinity to integer")
		}
		if !hasDigits {
			return int64(math.RoundToEven(t)), nil
		}
		rounded, err := strconv.ParseFloat(strconv.FormatFloat(t, 'f', int(digits), 64), 64)
		if err != nil || digits < 0 {
			scale := math.Pow(10, float64(digits))
			return math.RoundToEven(t*scale) / scale, nil
		}
		return rounded, nil
	case *Series:
		return rt.roundSeries(ctx, t, digits)
	}
	return nil, fmt.Errorf("TypeError: type %s doesn't define __round__ method", typeName(v))
}

func (rt *Runtime) pandasFunc(ctx context.Context, name string, args callArgs) (Value, error) {
	switch name {
	case "read_sql", "read_sql_query":
		statement, ok := args.pos0().(string)
		if !ok {
			statement, ok = args.kw["sql"].(string)
		}
		if !ok {
			return nil, fmt.Errorf("TypeError: %s() expects an SQL string", name)
		}
		if rt.readSQL == nil {
			return nil, errors.New("no relational connection is available to read_sql")
		}
		columns, rows, err := rt.readSQL(ctx, statement)
		if err != nil {
			return nil, err
		}
		return rt.loadValues(ctx, columns, rows)
	case "merge":
		return rt.merge(ctx, args)
	case "concat":
		return rt.concat(ctx, args)
	case "read_excel":
		return rt.readExcel(ctx, args)
	case "to_datetime":
		return rt.toDatetime(ctx, args)
	case "to_numeric":
		s, ok := args.pos0().(*Series)
		if !ok {
			return nil, fmt.Errorf("%w: to_numeric of %s", ErrUnsupported, typeName(args.pos0()))
		}
		cast := "CAST"
		if args.kw["errors"] == "coerce" {
			cast = "TRY_CAST"
		}
		return s.derive(cast+"("+s.expr+" AS DOUBLE)", "DOUBLE"), nil
	case "isna", "isnull", "notna", "notnull":
		present := name == "notna" || name == "notnull"
		if s, ok := args.pos0().(*Series); ok {
			return rt.seriesMissing(ctx, s, present)
		}
		missing := args.pos0() == nil
		if f, ok := args.pos0().(float64); ok && math.IsNaN(f) {
			missing = true
		}
		return missing != present, nil
	case "DataFrame":
		return rt.newDataFrame(ctx, args)
	case "Series":
		if err := args.allow(name, 1, "data", "name"); err != nil {
			return nil, err
		}
		data, _ := args.get(0, "data")
		items, err := rt.iterate(ctx, data)
		if err != nil {
			return nil, err
		}
		label, _ := args.kw["name"].(string)
		return rt.seriesFromValues(ctx, label, items)
	}
	return nil, fmt.Errorf("%w: pd.%s", ErrUnsupported, name)
}

func (rt *Runtime) readExcel(ctx context.Context, args callArgs) (Value, error) {
	sheets, ok := rt.globals["excel_data"].(*Dict)
	if !ok {
		return nil, errors.New("no spreadsheet is loaded")
	}
	sheet, given := args.get(1, "sheet_name")
	switch s := sheet.(type) {
	case nil:
		if !given {
			keys := sheets.Keys()
			if len(keys) == 0 {
				return nil, errors.New("ValueError: Worksheet index 0 is invalid, 0 worksheets found")
			}
			first, _ := sheets.Get(keys[0])
			return first, nil
		}
		return sheets, nil
	case string:
		frame, ok := sheets.Get(s)
		if !ok {
			return nil, fmt.Errorf("ValueError: Worksheet named %s not found", quotePy(s))
		}
		return frame, nil
	case int64:
		keys := sheets.Keys()
		i, err := listIndex(s, len(keys))
		if err != nil {
			return nil, fmt.Errorf("IndexError: Worksheet index %d is invalid, %d worksheets found", s, len(keys))
		}
		frame, _ := sheets.Get(keys[i])
		return frame, nil
	}
	return nil, fmt.Errorf("%w: read_excel sheet_name of type %s", ErrUnsupported, typeName(sheet))
}

var datetimeLayouts = []string{
	"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02", "2006/01/02", "01/02/2006", "2006-01",
}

func (rt *Runtime) toDatetime(ctx context.Context, args callArgs) (Value, error) {
	if err := args.allow("to_datetime", 1, "arg", "errors", "format", "dayfirst"); err != nil {
		return nil, err
	}
	arg, _ := args.get(0, "arg")
	coerce := args.kw["errors"] == "coerce"
	format, _ := args.kw["format"].(string)
	switch v := arg.(type) {
	case *Series:
		typ, err := rt.seriesType(ctx, v)
		if err != nil {
			return nil, err
		}
		if format != "" && typ == "VARCHAR" {
			fn := "strptime"
			if coerce {
				fn = "try_strptime"
			}
			return v.derive(fmt.Sprintf("CAST(%s(%s, %s) AS TIMESTAMP)", fn, v.expr, literalString(format)), "TIMESTAMP"), nil
		}
		expr, err := timestampExpr(v.expr, typ)
		if err != nil {
			return nil, err
		}
		if typ == "VARCHAR" && !coerce {
			expr = "CAST(" + v.expr + " AS TIMESTAMP)"
		}
		return v.derive(expr, "TIMESTAMP"), nil
	case string:
		for _, layout := range datetimeLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return t, nil
			}
		}
		if coerce {
			return nil, nil
		}
		return nil, fmt.Errorf("ValueError: could not parse datetime %s", quotePy(v))
	case time.Time:
		return v, nil
	}
	return nil, fmt.Errorf("%w: to_datetime of %s", ErrUnsupported, typeName(arg))
}

func literalString(s string) string {
	text, _, _ := literal(s)
	return text
}

// newDataFrame builds a frame from a dict of columns or a list of row dicts.
func (rt *Runtime) newDataFrame(ctx context.Context, args callArgs) (Value, error) {
	if err := args.allow("DataFrame", 1, "data", "columns"); err != nil {
		return nil, err
	}
	data, _ := args.get(0, "data")
	var names []string
	var rows [][]any
	switch d := data.(type) {
	case nil:
	case *Dict:
		length := -1
		columns := make([][]Value, 0, d.Len())
		for _, key := range d.Keys() {
			name, ok := scalarStr(key)
			if !ok {
				return nil, errors.New("TypeError: column names must be scalars")
			}
			value, _ := d.Get(key)
			items := []Value{value}
			if !cellValue(value) {
				var err error
				if items, err = rt.iterate(ctx, value); err != nil {
					return nil, err
				}
			}
			if length >= 0 && len(items) != length {
				return nil, errors.New("ValueError: All arrays must be of the same length")
			}
			length = len(items)
			names = append(names, name)
			columns = append(columns, items)
		}
		for r := 0; r < max(length, 0); r++ {
			row := make([]any, len(columns))
			for c := range columns {
				row[c] = columns[c][r]
			}
			rows = append(rows, row)
		}
	case *List:
		index := make(map[string]int)
		for _, item := range d.Items {
			record, ok := item.(*Dict)
			if !ok {
				return nil, fmt.Errorf("%w: DataFrame rows of type %s", ErrUnsupported, typeName(item))
			}
			for _, key := range record.Keys() {
				name, _ := scalarStr(key)
				if _, seen := index[name]; !seen {
					index[name] = len(names)
					names = append(names, name)
				}
			}
		}
		for _, item := range d.Items {
			record := item.(*Dict)
			row := make([]any, len(names))
			for _, key := range record.Keys() {
				name, _ := scalarStr(key)
				row[index[name]], _ = record.Get(key)
			}
			rows = append(rows, row)
		}
	default:
		return nil, fmt.Errorf("%w: DataFrame from %s", ErrUnsupported, typeName(data))
	}
	for _, row := range rows {
		for _, v := range row {
			if !cellValue(v) {
				return nil, fmt.Errorf("TypeError: cannot store %s in a DataFrame cell", typeName(v))
			}
		}
	}
	f, err := rt.loadValues(ctx, names, rows)
	if err != nil {
		return nil, err
	}
	if columns, ok := args.kw["columns"].(*List); ok {
		selected, err := stringList(columns)
		if err != nil {
			return nil, err
		}
		return f.project(selected)
	}
	return f, nil
}

func cellValue(v Value) bool {
	if _, ok := v.(time.Time); ok {
		return true
	}
	return v == nil || IsScalar(v)
}

func (rt *Runtime) numpyFunc(ctx context.Context, name string, args callArgs) (Value, error) {
	switch name {
	case "where":
		if len(args.pos) != 3 {
			return nil, errors.New("TypeError: where() takes exactly 3 arguments")
		}
		cond, ok := args.pos[0].(*Series)
		if !ok {
			ok, err := truthy(args.pos[0])
			if err != nil {
				return nil, err
			}
			if ok {
				return args.pos[1], nil
			}
			return args.pos[2], nil
		}
		return rt.where(ctx, cond, args.pos[1], args.pos[2])
	case "round":
		digits, err := args.intArg(1, "decimals", 0)
		if err != nil {
			return nil, err
		}
		if f, ok := args.pos0().(float64); ok {
			return rt.round(ctx, f, digits, true)
		}
		return rt.round(ctx, args.pos0(), digits, true)
	case "abs":
		return rt.callBuiltin(ctx, "abs", callArgs{pos: args.pos})
	case "isnan":
		if s, ok := args.pos0().(*Series); ok {
			return rt.seriesMissing(ctx, s, false)
		}
		f, ok := toFloat(args.pos0())
		if !ok {
			return nil, errors.New("TypeError: ufunc 'isnan' not supported for the input types")
		}
		return math.IsNaN(f), nil
	}
	return nil, fmt.Errorf("%w: np.%s", ErrUnsupported, name)
}

// where is np.where over a boolean series; either branch may be a series or
// a scalar.
func (rt *Runtime) where(ctx context.Context, cond *Series, then, otherwise Value) (Value, error) {
	branch := func(v Value) (string, error) {
		if s, ok := v.(*Series); ok {
			if s.table != cond.table {
				return "", fmt.Errorf("%w: np.where across different frames", ErrUnsupported)
			}
			return s.expr, nil
		}
		text, _, err := literal(v)
		return text, err
	}
	thenSQL, err := branch(then)
	if err != nil {
		return nil, err
	}
	elseSQL, err := branch(otherwise)
	if err != nil {
		return nil, err
	}
	out := cond.derive(fmt.Sprintf("CASE WHEN %s THEN %s ELSE %s END", cond.expr, thenSQL, elseSQL), "")
	out.name = ""
	return out, nil
}

var stringMethodNames = map[string]bool{
	"upper": true, "lower": true, "strip": true, "title": true, "replace": true,
	"startswith": true, "endswith": true, "split": true, "join": true, "format": true,
	"capitalize": true, "lstrip": true, "rstrip": true,
}

func stringMethod(s, name string, args callArgs) (Value, error) {
	switch name {
	case "upper":
		return strings.ToUpper(s), nil
	case "lower":
		return strings.ToLower(s), nil
	case "strip", "lstrip", "rstrip":
		cutset := " \t\n\r"
		if c, ok := args.pos0().(string); ok {
			cutset = c
		}
		switch name {
		case "lstrip":
			return strings.TrimLeft(s, cutset), nil
		case "rstrip":
			return strings.TrimRight(s, cutset), nil
		}
		return strings.Trim(s, cutset), nil
	case "title":
		words := strings.Fields(s)
		for i, w := range words {
			words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		}
		return strings.Join(words, " "), nil
	case "capitalize":
		if s == "" {
			return s, nil
		}
		return strings.ToUpper(s[:1]) + strings.ToLower(s[1:]), nil
	case "replace":
		from, ok1 := args.get(0, "old")
		to, ok2 := args.get(1, "new")
		fromText, isText1 := from.(string)
		toText, isText2 := to.(string)
		if !ok1 || !ok2 || !isText1 || !isText2 {
			return nil, errors.New("TypeError: replace() arguments must be str")
		}
		return strings.ReplaceAll(s, fromText, toText), nil
	case "startswith", "endswith":
		prefix, ok := args.pos0().(string)
		if !ok {
			return nil, fmt.Errorf("TypeError: %s first arg must be str", name)
		}
		if name == "startswith" {
			return strings.HasPrefix(s, prefix), nil
		}
		return strings.HasSuffix(s, prefix), nil
	case "split":
		var parts []string
		if sep, ok := args.pos0().(string); ok {
			parts = strings.Split(s, sep)
		} else {
			parts = strings.Fields(s)
		}
		return &List{Items: stringValues(parts)}, nil
	case "join":
		list, ok := args.pos0().(*List)
		if !ok {
			return nil, errors.New("TypeError: can only join an iterable")
		}
		parts := make([]string, len(list.Items))
		for i, item := range list.Items {
			text, isText := item.(string)
			if !isText {
				return nil, fmt.Errorf("TypeError: sequence item %d: expected str instance, %s found", i, typeName(item))
			}
			parts[i] = text
		}
		return strings.Join(parts, s), nil
	case "format":
		return formatMethod(s, args)
	}
	return nil, fmt.Errorf("%w: str.%s", ErrUnsupported, name)
}

// formatMethod implements str.format for {} {0} {name} and {:spec} fields.
func formatMethod(s string, args callArgs) (Value, error) {
	var b strings.Builder
	next := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '{' && i+1 < len(s) && s[i+1] == '{' {
			b.WriteByte('{')
			i++
			continue
		}
		if c == '}' && i+1 < len(s) && s[i+1] == '}' {
			b.WriteByte('}')
			i++
			continue
		}
		if c != '{' {
			b.WriteByte(c)
			continue
		}
		end := strings.IndexByte(s[i:], '}')
		if end < 0 {
			return nil, errors.New("ValueError: Single '{' encountered in format string")
		}
		field := s[i+1 : i+end]
		i += end
		name, spec, _ := strings.Cut(field, ":")
		var value Value
		switch {
		case name == "":
			if next >= len(args.pos) {
				return nil, errors.New("IndexError: Replacement index out of range")
			}
			value = args.pos[next]
			next++
		default:
			if n, err := strconv.Atoi(name); err == nil {
				if n >= len(args.pos) {
					return nil, errors.New("IndexError: Replacement index out of range")
				}
				value = args.pos[n]
			} else {
				v, ok := args.kw[name]
				if !ok {
					return nil, fmt.Errorf("KeyError: %s", quotePy(name))
				}
				value = v
			}
		}
		text, err := applyFormatSpec(value, spec)
		if err != nil {
			return nil, err
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

func (rt *Runtime) listMethod(ctx context.Context, l *List, name string, args callArgs) (Value, error) {
	switch name {
	case "append":
		if l.Tuple {
			break
		}
		l.Items = append(l.Items, args.pos0())
		return nil, nil
	case "extend":
		if l.Tuple {
			break
		}
		items, err := rt.iterate(ctx, args.pos0())
		if err != nil {
			return nil, err
		}
		l.Items = append(l.Items, items...)
		return nil, nil
	case "count":
		n := int64(0)
		for _, item := range l.Items {
			if equalScalars(item, args.pos0()) {
				n++
			}
		}
		return n, nil
	case "index":
		for i, item := range l.Items {
			if equalScalars(item, args.pos0()) {
				return int64(i), nil
			}
		}
		return nil, errors.New("ValueError: value is not in list")
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrUnsupported, typeName(l), name)
}

func dictMethod(d *Dict, name string, args callArgs) (Value, error) {
	switch name {
	case "keys":
		return &List{Items: d.Keys()}, nil
	case "values":
		out := &List{}
		for _, key := range d.Keys() {
			v, _ := d.Get(key)
			out.Items = append(out.Items, v)
		}
		return out, nil
	case "items":
		out := &List{}
		for _, key := range d.Keys() {
			v, _ := d.Get(key)
			out.Items = append(out.Items, &List{Items: []Value{key, v}, Tuple: true})
		}
		return out, nil
	case "get":
		if v, ok := d.Get(args.pos0()); ok {
			return v, nil
		}
		if len(args.pos) > 1 {
			return args.pos[1], nil
		}
		return nil, nil
	}
	return nil, fmt.Errorf("%w: dict.%s", ErrUnsupported, name)
}

var strftimeDirectives = map[byte]string{
	'Y': "2006", 'm': "01", 'd': "02", 'H': "15", 'M': "04", 'S': "05",
	'B': "January", 'b': "Jan", 'A': "Monday", 'a': "Mon", 'y': "06", 'p': "PM", 'I': "03",
}

func timeMethod(t time.Time, name string, args callArgs) (Value, error) {
	switch name {
	case "date":
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()), nil
	case "strftime":
		format, ok := args.pos0().(string)
		if !ok {
			return nil, errors.New("TypeError: strftime() argument 1 must be str")
		}
		var b strings.Builder
		for i := 0; i < len(format); i++ {
			if format[i] != '%' || i+1 >= len(format) {
				b.WriteByte(format[i])
				continue
			}
			i++
			if layout, ok := strftimeDirectives[format[i]]; ok {
				b.WriteString(t.Format(layout))
			} else if format[i] == '%' {
				b.WriteByte('%')
			} else {
				b.WriteByte('%')
				b.WriteByte(format[i])
			}
		}
		return b.String(), nil
	}
	return nil, fmt.Errorf("%w: Timestamp.%s", ErrUnsupported, name)
}

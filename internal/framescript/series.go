package framescript

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nlquery/nlquery/internal/query/duckdb"
)

// Series is one SQL expression evaluated over the rows of a table. Series
// taken from the same table line up row by row without any copying.
type Series struct {
	table string
	index []duckdb.Column
	expr  string
	name  string
	typ   string
}

func (s *Series) derive(expr, typ string) *Series {
	return &Series{table: s.table, index: s.index, expr: expr, name: s.name, typ: typ}
}

func (rt *Runtime) seriesType(ctx context.Context, s *Series) (string, error) {
	if s.typ != "" {
		return s.typ, nil
	}
	columns, err := rt.engine.DescribeQuery(ctx, fmt.Sprintf("SELECT %s AS v FROM %s", s.expr, q(s.table)))
	if err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "", errors.New("cannot determine series type")
	}
	s.typ = columns[0].Type
	return s.typ, nil
}

func (rt *Runtime) seriesValues(ctx context.Context, s *Series) ([]Value, error) {
	rows, err := rt.engine.Query(ctx, fmt.Sprintf("SELECT %s FROM %s", s.expr, q(s.table)))
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(rows.Values))
	for i, row := range rows.Values {
		out[i] = fromSQL(row[0])
	}
	return out, nil
}

func (rt *Runtime) seriesLen(ctx context.Context, s *Series) (int64, error) {
	value, _, err := rt.engine.QueryValue(ctx, "SELECT COUNT(*) FROM "+q(s.table))
	if err != nil {
		return 0, err
	}
	n, _ := toInt(fromSQL(value))
	return n, nil
}

func (rt *Runtime) indexLabels(ctx context.Context, s *Series) ([]Value, error) {
	if len(s.index) == 0 {
		n, err := rt.seriesLen(ctx, s)
		if err != nil {
			return nil, err
		}
		out := make([]Value, n)
		for i := range out {
			out[i] = int64(i)
		}
		return out, nil
	}
	if len(s.index) > 1 {
		return nil, fmt.Errorf("%w: multi-level index values", ErrUnsupported)
	}
	return rt.seriesValues(ctx, &Series{table: s.table, expr: q(indexColumn(s.index[0].Name))})
}

// seriesFromValues loads script values as a new unnamed-index series.
func (rt *Runtime) seriesFromValues(ctx context.Context, name string, values []Value) (*Series, error) {
	rows := make([][]any, len(values))
	for i, v := range values {
		if !IsScalar(v) && v != nil {
			return nil, fmt.Errorf("TypeError: cannot store %s in a Series", typeName(v))
		}
		rows[i] = []any{v}
	}
	f, err := rt.loadValues(ctx, []string{"__value"}, rows)
	if err != nil {
		return nil, err
	}
	return &Series{table: f.table, expr: q("__value"), name: name}, nil
}

func (rt *Runtime) seriesToFrame(ctx context.Context, s *Series, name string) (*Frame, error) {
	if name == "" {
		name = s.name
	}
	if name == "" {
		name = "0"
	}
	items := append(quotedList(indexPhysical(s.index)), s.expr+" AS "+q(name))
	return rt.materialize(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(items, ", "), q(s.table)))
}

// alignSeries brings two series onto one table, pairing rows by position
// when they come from different tables.
func (rt *Runtime) alignSeries(ctx context.Context, a, b *Series) (*Series, *Series, error) {
	if a.table == b.table {
		return a, b, nil
	}
	left := append(quotedList(indexPhysical(a.index)), a.expr+" AS "+q("__l"))
	table, _, err := rt.engine.Materialize(ctx, fmt.Sprintf("SELECT * FROM (SELECT %s FROM %s) POSITIONAL JOIN (SELECT %s AS %s FROM %s)",
		strings.Join(left, ", "), q(a.table), b.expr, q("__r"), q(b.table)))
	if err != nil {
		return nil, nil, err
	}
	return &Series{table: table, index: a.index, expr: q("__l"), name: a.name, typ: a.typ},
		&Series{table: table, index: a.index, expr: q("__r"), name: b.name, typ: b.typ}, nil
}

var sqlComparisons = map[string]string{"==": "=", "!=": "<>", "<": "<", "<=": "<=", ">": ">", ">=": ">="}

func (rt *Runtime) seriesBinary(ctx context.Context, op string, s *Series, other Value, reflected bool) (Value, error) {
	base := s
	var otherSQL, otherType string
	switch o := other.(type) {
	case *Series:
		a, b, err := rt.alignSeries(ctx, s, o)
		if err != nil {
			return nil, err
		}
		base = a
		otherSQL = b.expr
		if otherType, err = rt.seriesType(ctx, b); err != nil {
			return nil, err
		}
		if a.name != b.name {
			base = base.derive(base.expr, base.typ)
			base.name = ""
		}
	case *Frame:
		return nil, fmt.Errorf("%w: arithmetic between a Series and a DataFrame", ErrUnsupported)
	default:
		var err error
		otherSQL, otherType, err = literal(other)
		if err != nil {
			return nil, err
		}
	}
	selfType, err := rt.seriesType(ctx, base)
	if err != nil {
		return nil, err
	}
	l, r, leftType, rightType := base.expr, otherSQL, selfType, otherType
	if reflected {
		l, r, leftType, rightType = r, l, rightType, leftType
	}

	if cmp, ok := sqlComparisons[op]; ok {
		fallback := "false"
		if op == "!=" {
			fallback = "true"
		}
		return base.derive(fmt.Sprintf("COALESCE((%s %s %s), %s)", l, cmp, r, fallback), duckdb.TypeBoolean), nil
	}
	boolean := leftType == duckdb.TypeBoolean || rightType == duckdb.TypeBoolean
	text := leftType == duckdb.TypeVarchar || rightType == duckdb.TypeVarchar
	bothInts := duckdb.IsInteger(leftType) && duckdb.IsInteger(rightType)
	var expr string
	switch op {
	case "+":
		if text {
			expr = fmt.Sprintf("(%s || %s)", l, r)
		} else {
			expr = fmt.Sprintf("(%s + %s)", l, r)
		}
	case "-", "*":
		expr = fmt.Sprintf("(%s %s %s)", l, op, r)
	case "/":
		expr = fmt.Sprintf("(CAST(%s AS DOUBLE) / %s)", l, r)
	case "//":
		expr = fmt.Sprintf("floor(CAST(%s AS DOUBLE) / %s)", l, r)
		if bothInts {
			expr = "CAST(" + expr + " AS BIGINT)"
		}
	case "%":
		expr = fmt.Sprintf("(((%s %% %s) + %s) %% %s)", l, r, r, r)
	case "**":
		expr = fmt.Sprintf("pow(%s, %s)", l, r)
		if bothInts {
			expr = "CAST(" + expr + " AS BIGINT)"
		}
	case "&":
		if boolean {
			expr = fmt.Sprintf("(%s AND %s)", l, r)
		} else {
			expr = fmt.Sprintf("(%s & %s)", l, r)
		}
	case "|":
		if boolean {
			expr = fmt.Sprintf("(%s OR %s)", l, r)
		} else {
			expr = fmt.Sprintf("(%s | %s)", l, r)
		}
	case "^":
		if boolean {
			expr = fmt.Sprintf("(%s <> %s)", l, r)
		} else {
			expr = fmt.Sprintf("xor(%s, %s)", l, r)
		}
	default:
		return nil, fmt.Errorf("%w: operator %s on a Series", ErrUnsupported, op)
	}
	return base.derive(expr, ""), nil
}

func (rt *Runtime) seriesUnary(ctx context.Context, op string, s *Series) (Value, error) {
	typ, err := rt.seriesType(ctx, s)
	if err != nil {
		return nil, err
	}
	switch op {
	case "-":
		return s.derive("(-"+s.expr+")", typ), nil
	case "+":
		return s, nil
	case "~", "not":
		if typ == duckdb.TypeBoolean {
			return s.derive("(NOT "+s.expr+")", typ), nil
		}
		if op == "~" && duckdb.IsInteger(typ) {
			return s.derive("(~"+s.expr+")", typ), nil
		}
	}
	return nil, fmt.Errorf("TypeError: bad operand type for unary %s: '%s' Series", op, dtypeName(typ))
}

func (rt *Runtime) seriesIsIn(ctx context.Context, s *Series, values Value) (Value, error) {
	var items []Value
	switch v := values.(type) {
	case *List:
		items = v.Items
	case *Series:
		var err error
		if items, err = rt.seriesValues(ctx, v); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("TypeError: only list-like objects are allowed to be passed to isin(), you passed a [%s]", typeName(values))
	}
	var present []Value
	hasNull := false
	for _, item := range items {
		if item == nil {
			hasNull = true
			continue
		}
		present = append(present, item)
	}
	cond := "false"
	if len(present) > 0 {
		list, err := literalList(present)
		if err != nil {
			return nil, err
		}
		cond = fmt.Sprintf("COALESCE(%s IN (%s), false)", s.expr, list)
	}
	if hasNull {
		cond = fmt.Sprintf("(%s OR %s IS NULL)", cond, s.expr)
	}
	return s.derive(cond, duckdb.TypeBoolean), nil
}

// seriesMissing flags NULL and NaN values, or their absence when present is
// set.
func (rt *Runtime) seriesMissing(ctx context.Context, s *Series, present bool) (*Series, error) {
	typ, err := rt.seriesType(ctx, s)
	if err != nil {
		return nil, err
	}
	cond := s.expr + " IS NULL"
	if typ == duckdb.TypeDouble || typ == "FLOAT" {
		cond = fmt.Sprintf("(%s IS NULL OR isnan(%s))", s.expr, s.expr)
	}
	if present {
		cond = "(NOT " + cond + ")"
	}
	return s.derive("("+cond+")", duckdb.TypeBoolean), nil
}

func (rt *Runtime) fillSeries(ctx context.Context, s *Series, value Value) (*Series, error) {
	typ, err := rt.seriesType(ctx, s)
	if err != nil {
		return nil, err
	}
	text, valueType, err := literal(value)
	if err != nil {
		return nil, err
	}
	expr := s.expr
	if typ == duckdb.TypeDouble {
		expr = fmt.Sprintf("CASE WHEN isnan(%s) THEN NULL ELSE %s END", s.expr, s.expr)
	}
	switch {
	case valueType == duckdb.TypeVarchar && typ != duckdb.TypeVarchar:
		return s.derive(fmt.Sprintf("COALESCE(CAST(%s AS VARCHAR), %s)", expr, text), duckdb.TypeVarchar), nil
	case typ == duckdb.TypeVarchar && valueType != duckdb.TypeVarchar && valueType != "":
		return s.derive(fmt.Sprintf("COALESCE(%s, CAST(%s AS VARCHAR))", expr, text), duckdb.TypeVarchar), nil
	}
	return s.derive(fmt.Sprintf("COALESCE(%s, %s)", expr, text), ""), nil
}

func (rt *Runtime) seriesGetItem(ctx context.Context, s *Series, key Value) (Value, error) {
	switch k := key.(type) {
	case *Series:
		return rt.filterSeries(ctx, s, k)
	case *sliceValue:
		n, err := rt.seriesLen(ctx, s)
		if err != nil {
			return nil, err
		}
		lo, hi, step, err := k.bounds(int(n))
		if err != nil {
			return nil, err
		}
		if step != 1 {
			return nil, fmt.Errorf("%w: slice step", ErrUnsupported)
		}
		return rt.seriesRows(ctx, s, lo, hi)
	}
	if len(s.index) == 0 {
		if i, ok := key.(int64); ok {
			return rt.seriesAt(ctx, s, i)
		}
		r, _ := rt.repr(ctx, key)
		return nil, fmt.Errorf("KeyError: %s", r)
	}
	return rt.seriesLookup(ctx, s, key)
}

func (rt *Runtime) seriesAt(ctx context.Context, s *Series, i int64) (Value, error) {
	n, err := rt.seriesLen(ctx, s)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, errors.New("IndexError: single positional indexer is out-of-bounds")
	}
	value, _, err := rt.engine.QueryValue(ctx, fmt.Sprintf("SELECT v FROM (SELECT %s AS v, row_number() OVER () AS %s FROM %s) WHERE %s = %d",
		s.expr, q(posColumn), q(s.table), q(posColumn), i+1))
	if err != nil {
		return nil, err
	}
	return fromSQL(value), nil
}

func (rt *Runtime) seriesLookup(ctx context.Context, s *Series, key Value) (Value, error) {
	if len(s.index) > 1 {
		return nil, fmt.Errorf("%w: lookup on a multi-level index", ErrUnsupported)
	}
	text, _, err := literal(key)
	if err != nil {
		return nil, err
	}
	rows, err := rt.engine.Query(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s LIMIT 1",
		s.expr, q(s.table), q(indexColumn(s.index[0].Name)), text))
	if err != nil {
		return nil, err
	}
	if len(rows.Values) == 0 {
		r, _ := rt.repr(ctx, key)
		return nil, fmt.Errorf("KeyError: %s", r)
	}
	return fromSQL(rows.Values[0][0]), nil
}

func (rt *Runtime) filterSeries(ctx context.Context, s, mask *Series) (*Series, error) {
	typ, err := rt.seriesType(ctx, mask)
	if err != nil {
		return nil, err
	}
	if typ != duckdb.TypeBoolean {
		return nil, fmt.Errorf("%w: indexing a Series with a %s Series", ErrUnsupported, dtypeName(typ))
	}
	a, b, err := rt.alignSeries(ctx, s, mask)
	if err != nil {
		return nil, err
	}
	return rt.reshapeSeries(ctx, a, "WHERE "+b.expr)
}

// reshapeSeries materializes s with its index, applying a trailing clause.
func (rt *Runtime) reshapeSeries(ctx context.Context, s *Series, clause string) (*Series, error) {
	items := append(quotedList(indexPhysical(s.index)), s.expr+" AS "+q("__value"))
	return rt.reshapeFrom(ctx, s, fmt.Sprintf("SELECT %s FROM %s %s", strings.Join(items, ", "), q(s.table), clause))
}

func (rt *Runtime) reshapeFrom(ctx context.Context, s *Series, statement string) (*Series, error) {
	f, err := rt.materialize(ctx, statement)
	if err != nil {
		return nil, err
	}
	return &Series{table: f.table, index: f.index, expr: q("__value"), name: s.name, typ: s.typ}, nil
}

func (rt *Runtime) seriesRows(ctx context.Context, s *Series, lo, hi int) (*Series, error) {
	if hi < lo {
		hi = lo
	}
	items := append(quotedList(indexPhysical(s.index)), s.expr+" AS "+q("__value"))
	inner := fmt.Sprintf("(SELECT %s, row_number() OVER () AS %s FROM %s)", strings.Join(items, ", "), q(posColumn), q(s.table))
	outer := append(quotedList(indexPhysical(s.index)), q("__value"))
	return rt.reshapeFrom(ctx, s, fmt.Sprintf("SELECT %s FROM %s WHERE %s > %d AND %s <= %d ORDER BY %s",
		strings.Join(outer, ", "), inner, q(posColumn), lo, q(posColumn), hi, q(posColumn)))
}

func (rt *Runtime) sortSeries(ctx context.Context, s *Series, ascending bool) (*Series, error) {
	items := append(quotedList(indexPhysical(s.index)), s.expr+" AS "+q("__value"))
	inner := fmt.Sprintf("(SELECT %s, row_number() OVER () AS %s FROM %s)", strings.Join(items, ", "), q(posColumn), q(s.table))
	outer := append(quotedList(indexPhysical(s.index)), q("__value"))
	return rt.reshapeFrom(ctx, s, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s, %s",
		strings.Join(outer, ", "), inner, orderTerm(q("__value"), ascending), q(posColumn)))
}

func (rt *Runtime) seriesAggregate(ctx context.Context, s *Series, fn string) (Value, error) {
	typ, err := rt.seriesType(ctx, s)
	if err != nil {
		return nil, err
	}
	aggregate, _, err := aggregateSQL(fn, s.expr, typ)
	if err != nil {
		return nil, err
	}
	if fn == "first" || fn == "last" {
		return nil, fmt.Errorf("%w: Series.%s", ErrUnsupported, fn)
	}
	value, _, err := rt.engine.QueryValue(ctx, fmt.Sprintf("SELECT %s FROM %s", aggregate, q(s.table)))
	if err != nil {
		return nil, err
	}
	return fromSQL(value), nil
}

func (rt *Runtime) valueCounts(ctx context.Context, s *Series, args callArgs) (Value, error) {
	if err := args.allow("value_counts", 0, "ascending", "normalize", "dropna", "sort"); err != nil {
		return nil, err
	}
	where := ""
	if args.boolKw("dropna", true) {
		where = " WHERE v IS NOT NULL"
	}
	name := "count"
	measure := "COUNT(*)"
	if args.boolKw("normalize", false) {
		name = "proportion"
		measure = "CAST(COUNT(*) AS DOUBLE) / SUM(COUNT(*)) OVER ()"
	}
	direction := "DESC"
	if args.boolKw("ascending", false) {
		direction = "ASC"
	}
	order := fmt.Sprintf(" ORDER BY %s %s, MIN(%s)", q("__value"), direction, q(posColumn))
	if !args.boolKw("sort", true) {
		order = fmt.Sprintf(" ORDER BY MIN(%s)", q(posColumn))
	}
	label := s.name
	statement := fmt.Sprintf("SELECT v AS %s, %s AS %s FROM (SELECT %s AS v, row_number() OVER () AS %s FROM %s)%s GROUP BY v%s",
		q(indexColumn(label)), measure, q("__value"), s.expr, q(posColumn), q(s.table), where, order)
	f, err := rt.materialize(ctx, statement)
	if err != nil {
		return nil, err
	}
	return &Series{table: f.table, index: f.index, expr: q("__value"), name: name}, nil
}

func (rt *Runtime) unique(ctx context.Context, s *Series) (Value, error) {
	rows, err := rt.engine.Query(ctx, fmt.Sprintf("SELECT v FROM (SELECT %s AS v, row_number() OVER () AS %s FROM %s) GROUP BY v ORDER BY MIN(%s)",
		s.expr, q(posColumn), q(s.table), q(posColumn)))
	if err != nil {
		return nil, err
	}
	out := &List{Items: make([]Value, len(rows.Values))}
	for i, row := range rows.Values {
		out.Items[i] = fromSQL(row[0])
	}
	return out, nil
}

// idx returns the index label of the largest or smallest value.
func (rt *Runtime) idx(ctx context.Context, s *Series, largest bool) (Value, error) {
	label := "row_number() OVER () - 1"
	if len(s.index) == 1 {
		label = q(indexColumn(s.index[0].Name))
	} else if len(s.index) > 1 {
		return nil, fmt.Errorf("%w: idxmax on a multi-level index", ErrUnsupported)
	}
	fn := "arg_min"
	if largest {
		fn = "arg_max"
	}
	value, _, err := rt.engine.QueryValue(ctx, fmt.Sprintf("SELECT %s(l, v) FROM (SELECT %s AS l, %s AS v FROM %s) WHERE v IS NOT NULL",
		fn, label, s.expr, q(s.table)))
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, errors.New("ValueError: attempt to get argmax of an empty sequence")
	}
	return fromSQL(value), nil
}

var seriesMethods = map[string]bool{
	"sum": true, "mean": true, "min": true, "max": true, "count": true, "median": true,
	"std": true, "var": true, "nunique": true, "value_counts": true, "unique": true, "round": true,
	"isin": true, "isna": true, "notna": true, "isnull": true, "notnull": true, "between": true,
	"head": true, "tail": true, "sort_values": true, "nlargest": true, "nsmallest": true,
	"reset_index": true, "to_frame": true, "tolist": true, "to_list": true, "idxmax": true,
	"idxmin": true, "fillna": true, "astype": true, "abs": true, "dropna": true, "map": true,
	"quantile": true, "rename": true, "copy": true, "drop_duplicates": true, "sort_index": true,
}

func (rt *Runtime) seriesAttr(ctx context.Context, s *Series, name string) (Value, error) {
	switch name {
	case "str", "dt":
		return rt.newAccessor(ctx, s, name)
	case "name":
		if s.name == "" {
			return nil, nil
		}
		return s.name, nil
	case "dtype":
		typ, err := rt.seriesType(ctx, s)
		if err != nil {
			return nil, err
		}
		return dtypeName(typ), nil
	case "empty":
		n, err := rt.seriesLen(ctx, s)
		return n == 0, err
	case "size":
		return rt.seriesLen(ctx, s)
	case "shape":
		n, err := rt.seriesLen(ctx, s)
		if err != nil {
			return nil, err
		}
		return &List{Items: []Value{n}, Tuple: true}, nil
	case "values":
		values, err := rt.seriesValues(ctx, s)
		if err != nil {
			return nil, err
		}
		return &List{Items: values}, nil
	case "index":
		labels, err := rt.indexLabels(ctx, s)
		if err != nil {
			return nil, err
		}
		return &List{Items: labels}, nil
	case "iloc", "loc":
		return &indexer{owner: s, positional: name == "iloc"}, nil
	}
	if seriesMethods[name] {
		return &boundMethod{recv: s, name: name}, nil
	}
	return nil, fmt.Errorf("%w: 'Series' object has no attribute '%s'", ErrUnsupported, name)
}

func (rt *Runtime) seriesMethod(ctx context.Context, s *Series, name string, args callArgs) (Value, error) {
	switch name {
	case "sum", "mean", "min", "max", "count", "median", "std", "var", "nunique":
		if err := args.allow(name, 0, "skipna", "numeric_only", "dropna"); err != nil {
			return nil, err
		}
		return rt.seriesAggregate(ctx, s, name)
	case "quantile":
		if err := args.allow(name, 1, "q"); err != nil {
			return nil, err
		}
		p, err := args.floatArg(0, "q", 0.5)
		if err != nil {
			return nil, err
		}
		value, _, err := rt.engine.QueryValue(ctx, fmt.Sprintf("SELECT quantile_cont(CAST(%s AS DOUBLE), %s) FROM %s", s.expr, formatFloat(p), q(s.table)))
		if err != nil {
			return nil, err
		}
		return fromSQL(value), nil
	case "value_counts":
		return rt.valueCounts(ctx, s, args)
	case "unique":
		return rt.unique(ctx, s)
	case "tolist", "to_list":
		values, err := rt.seriesValues(ctx, s)
		if err != nil {
			return nil, err
		}
		return &List{Items: values}, nil
	case "round":
		if err := args.allow(name, 1, "decimals"); err != nil {
			return nil, err
		}
		digits, err := args.intArg(0, "decimals", 0)
		if err != nil {
			return nil, err
		}
		return rt.roundSeries(ctx, s, digits)
	case "abs":
		return s.derive("abs("+s.expr+")", s.typ), nil
	case "isin":
		values, ok := args.get(0, "values")
		if !ok {
			return nil, errors.New("TypeError: isin() missing required argument: 'values'")
		}
		return rt.seriesIsIn(ctx, s, values)
	case "isna", "isnull":
		return rt.seriesMissing(ctx, s, false)
	case "notna", "notnull":
		return rt.seriesMissing(ctx, s, true)
	case "between":
		if err := args.allow(name, 3, "left", "right", "inclusive"); err != nil {
			return nil, err
		}
		return rt.between(ctx, s, args)
	case "head", "tail":
		n, err := args.intArg(0, "n", 5)
		if err != nil {
			return nil, err
		}
		total, err := rt.seriesLen(ctx, s)
		if err != nil {
			return nil, err
		}
		lo, hi := headBounds(name, int(n), int(total))
		return rt.seriesRows(ctx, s, lo, hi)
	case "sort_values":
		if err := args.allow(name, 0, "ascending", "inplace", "na_position"); err != nil {
			return nil, err
		}
		return rt.sortSeries(ctx, s, args.boolKw("ascending", true))
	case "sort_index":
		if len(s.index) == 0 {
			return s, nil
		}
		items := append(quotedList(indexPhysical(s.index)), s.expr+" AS "+q("__value"))
		terms := make([]string, len(s.index))
		for i, column := range s.index {
			terms[i] = orderTerm(q(indexColumn(column.Name)), args.boolKw("ascending", true))
		}
		return rt.reshapeFrom(ctx, s, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(items, ", "), q(s.table), strings.Join(terms, ", ")))
	case "nlargest", "nsmallest":
		n, err := args.intArg(0, "n", 5)
		if err != nil {
			return nil, err
		}
		sorted, err := rt.sortSeries(ctx, s, name == "nsmallest")
		if err != nil {
			return nil, err
		}
		return rt.seriesRows(ctx, sorted, 0, int(max(n, 0)))
	case "reset_index":
		if err := args.allow(name, 0, "drop", "name"); err != nil {
			return nil, err
		}
		if args.boolKw("drop", false) {
			return rt.reshapeFrom(ctx, s, fmt.Sprintf("SELECT %s AS %s FROM %s", s.expr, q("__value"), q(s.table)))
		}
		label, _ := args.kw["name"].(string)
		f, err := rt.seriesToFrame(ctx, s, label)
		if err != nil {
			return nil, err
		}
		return rt.resetFrameIndex(ctx, f, false)
	case "to_frame":
		label, _ := args.get(0, "name")
		text, _ := label.(string)
		return rt.seriesToFrame(ctx, s, text)
	case "idxmax", "idxmin":
		return rt.idx(ctx, s, name == "idxmax")
	case "fillna":
		value, _ := args.get(0, "value")
		return rt.fillSeries(ctx, s, value)
	case "dropna":
		present, err := rt.seriesMissing(ctx, s, true)
		if err != nil {
			return nil, err
		}
		return rt.reshapeSeries(ctx, s, "WHERE "+present.expr)
	case "drop_duplicates":
		items := append(quotedList(indexPhysical(s.index)), s.expr+" AS "+q("__value"))
		inner := fmt.Sprintf("(SELECT %s, row_number() OVER () AS %s FROM %s)", strings.Join(items, ", "), q(posColumn), q(s.table))
		outer := append(quotedList(indexPhysical(s.index)), q("__value"))
		return rt.reshapeFrom(ctx, s, fmt.Sprintf(
			"SELECT %s FROM (SELECT *, row_number() OVER (PARTITION BY %s ORDER BY %s) AS %s FROM %s) WHERE %s = 1 ORDER BY %s",
			strings.Join(outer, ", "), q("__value"), q(posColumn), q("__dup"), inner, q("__dup"), q(posColumn)))
	case "astype":
		target, _ := args.get(0, "dtype")
		text, ok := target.(string)
		if !ok {
			return nil, fmt.Errorf("%w: astype with %s", ErrUnsupported, typeName(target))
		}
		typ, err := castType(text)
		if err != nil {
			return nil, err
		}
		return s.derive(fmt.Sprintf("CAST(%s AS %s)", s.expr, typ), typ), nil
	case "map":
		mapping, ok := args.pos0().(*Dict)
		if !ok {
			return nil, fmt.Errorf("%w: Series.map without a dict", ErrUnsupported)
		}
		return rt.mapSeries(s, mapping)
	case "rename":
		label, _ := args.get(0, "index")
		text, ok := label.(string)
		if !ok {
			return nil, fmt.Errorf("%w: Series.rename with %s", ErrUnsupported, typeName(label))
		}
		out := s.derive(s.expr, s.typ)
		out.name = text
		return out, nil
	case "copy":
		return s.derive(s.expr, s.typ), nil
	}
	return nil, fmt.Errorf("%w: Series.%s", ErrUnsupported, name)
}

func (rt *Runtime) roundSeries(ctx context.Context, s *Series, digits int64) (Value, error) {
	typ, err := rt.seriesType(ctx, s)
	if err != nil {
		return nil, err
	}
	if duckdb.IsInteger(typ) && digits >= 0 {
		return s, nil
	}
	if !duckdb.IsNumeric(typ) {
		return nil, fmt.Errorf("TypeError: cannot round a %s Series", dtypeName(typ))
	}
	return s.derive(fmt.Sprintf("round_even(CAST(%s AS DOUBLE), %d)", s.expr, digits), duckdb.TypeDouble), nil
}

func (rt *Runtime) between(ctx context.Context, s *Series, args callArgs) (Value, error) {
	low, _ := args.get(0, "left")
	high, _ := args.get(1, "right")
	lowSQL, _, err := literal(low)
	if err != nil {
		return nil, err
	}
	highSQL, _, err := literal(high)
	if err != nil {
		return nil, err
	}
	inclusive := "both"
	if v, ok := args.get(2, "inclusive"); ok {
		inclusive, _ = v.(string)
	}
	lowOp, highOp := ">=", "<="
	switch inclusive {
	case "both":
	case "neither":
		lowOp, highOp = ">", "<"
	case "left":
		highOp = "<"
	case "right":
		lowOp = ">"
	default:
		return nil, fmt.Errorf("ValueError: inclusive has to be either string of 'both', 'left', 'right', or 'neither'")
	}
	return s.derive(fmt.Sprintf("COALESCE((%s %s %s AND %s %s %s), false)", s.expr, lowOp, lowSQL, s.expr, highOp, highSQL), duckdb.TypeBoolean), nil
}

func (rt *Runtime) mapSeries(s *Series, mapping *Dict) (Value, error) {
	if mapping.Len() == 0 {
		return s.derive("NULL", ""), nil
	}
	var b strings.Builder
	b.WriteString("CASE " + s.expr)
	for _, key := range mapping.Keys() {
		value, _ := mapping.Get(key)
		keySQL, _, err := literal(key)
		if err != nil {
			return nil, err
		}
		valueSQL, _, err := literal(value)
		if err != nil {
			return nil, err
		}
		b.WriteString(" WHEN " + keySQL + " THEN " + valueSQL)
	}
	b.WriteString(" END")
	return s.derive(b.String(), ""), nil
}

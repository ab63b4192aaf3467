package framescript

import (
	"context"
	"fmt"
	"strings"

	"github.com/nlquery/nlquery/internal/query/duckdb"
)

// accessor is the .str or .dt namespace of a Series.
type accessor struct {
	kind   string
	series *Series
	// ts is the series as a TIMESTAMP expression for dt.
	ts string
}

// excelEpoch is day zero of spreadsheet serial dates.
const excelEpoch = "TIMESTAMP '1899-12-30 00:00:00'"

func (rt *Runtime) newAccessor(ctx context.Context, s *Series, kind string) (Value, error) {
	typ, err := rt.seriesType(ctx, s)
	if err != nil {
		return nil, err
	}
	if kind == "str" {
		if typ != duckdb.TypeVarchar {
			return nil, fmt.Errorf("AttributeError: Can only use .str accessor with string values, not %s", dtypeName(typ))
		}
		return &accessor{kind: kind, series: s}, nil
	}
	ts, err := timestampExpr(s.expr, typ)
	if err != nil {
		return nil, err
	}
	return &accessor{kind: kind, series: s, ts: ts}, nil
}

// timestampExpr reads expr as a timestamp. Numbers are spreadsheet serial
// dates and text is parsed leniently.
func timestampExpr(expr, typ string) (string, error) {
	switch {
	case duckdb.IsTemporal(typ):
		return "CAST(" + expr + " AS TIMESTAMP)", nil
	case typ == duckdb.TypeVarchar:
		return "TRY_CAST(" + expr + " AS TIMESTAMP)", nil
	case duckdb.IsNumeric(typ):
		return fmt.Sprintf("(%s + to_microseconds(CAST(round(CAST(%s AS DOUBLE) * 86400000000) AS BIGINT)))", excelEpoch, expr), nil
	}
	return "", fmt.Errorf("AttributeError: Can only use .dt accessor with datetimelike values, not %s", dtypeName(typ))
}

var datetimeFields = map[string]string{
	"year":      "year(%s)",
	"month":     "month(%s)",
	"day":       "day(%s)",
	"hour":      "hour(%s)",
	"minute":    "minute(%s)",
	"second":    "second(%s)",
	"quarter":   "quarter(%s)",
	"dayofweek": "(isodow(%s) - 1)",
	"weekday":   "(isodow(%s) - 1)",
	"dayofyear": "dayofyear(%s)",
}

var stringMethods = map[string]bool{
	"contains": true, "lower": true, "upper": true, "strip": true, "lstrip": true, "rstrip": true,
	"startswith": true, "endswith": true, "len": true, "replace": true,
}

func (rt *Runtime) accessorAttr(a *accessor, name string) (Value, error) {
	if a.kind == "dt" {
		if pattern, ok := datetimeFields[name]; ok {
			return a.series.derive("CAST("+fmt.Sprintf(pattern, a.ts)+" AS BIGINT)", duckdb.TypeBigint), nil
		}
		switch name {
		case "date":
			return a.series.derive("CAST("+a.ts+" AS DATE)", "DATE"), nil
		case "day_name", "month_name", "strftime":
			return &boundMethod{recv: a, name: name}, nil
		}
	} else if stringMethods[name] {
		return &boundMethod{recv: a, name: name}, nil
	}
	return nil, fmt.Errorf("%w: '.%s' accessor has no attribute '%s'", ErrUnsupported, a.kind, name)
}

func (rt *Runtime) accessorMethod(a *accessor, name string, args callArgs) (Value, error) {
	s := a.series
	if a.kind == "dt" {
		switch name {
		case "day_name":
			return s.derive("dayname("+a.ts+")", duckdb.TypeVarchar), nil
		case "month_name":
			return s.derive("monthname("+a.ts+")", duckdb.TypeVarchar), nil
		case "strftime":
			format, ok := args.pos0().(string)
			if !ok {
				return nil, fmt.Errorf("TypeError: strftime() expects a format string")
			}
			return s.derive(fmt.Sprintf("strftime(%s, %s)", a.ts, duckdb.QuoteString(format)), duckdb.TypeVarchar), nil
		}
		return nil, fmt.Errorf("%w: .dt.%s", ErrUnsupported, name)
	}

	switch name {
	case "lower", "upper":
		return s.derive(name+"("+s.expr+")", duckdb.TypeVarchar), nil
	case "strip", "lstrip", "rstrip":
		fn := map[string]string{"strip": "trim", "lstrip": "ltrim", "rstrip": "rtrim"}[name]
		if chars, ok := args.pos0().(string); ok {
			return s.derive(fmt.Sprintf("%s(%s, %s)", fn, s.expr, duckdb.QuoteString(chars)), duckdb.TypeVarchar), nil
		}
		return s.derive(fn+"("+s.expr+")", duckdb.TypeVarchar), nil
	case "len":
		return s.derive("CAST(length("+s.expr+") AS BIGINT)", duckdb.TypeBigint), nil
	case "startswith", "endswith":
		prefix, ok := args.pos0().(string)
		if !ok {
			return nil, fmt.Errorf("TypeError: expected a string, not %s", typeName(args.pos0()))
		}
		fn := "starts_with"
		if name == "endswith" {
			fn = "ends_with"
		}
		return s.derive(fmt.Sprintf("COALESCE(%s(%s, %s), false)", fn, s.expr, duckdb.QuoteString(prefix)), duckdb.TypeBoolean), nil
	case "contains":
		if err := args.allow(name, 1, "pat", "case", "na", "regex", "flags"); err != nil {
			return nil, err
		}
		pattern, ok := args.pos0().(string)
		if !ok {
			pattern, ok = args.kw["pat"].(string)
		}
		if !ok {
			return nil, fmt.Errorf("TypeError: contains() expects a pattern string")
		}
		caseSensitive := args.boolKw("case", true)
		var cond string
		switch {
		case args.boolKw("regex", true) && caseSensitive:
			cond = fmt.Sprintf("regexp_matches(%s, %s)", s.expr, duckdb.QuoteString(pattern))
		case args.boolKw("regex", true):
			cond = fmt.Sprintf("regexp_matches(%s, %s, 'i')", s.expr, duckdb.QuoteString(pattern))
		case caseSensitive:
			cond = fmt.Sprintf("contains(%s, %s)", s.expr, duckdb.QuoteString(pattern))
		default:
			cond = fmt.Sprintf("contains(lower(%s), %s)", s.expr, duckdb.QuoteString(strings.ToLower(pattern)))
		}
		fallback := "false"
		if na, ok := args.kw["na"].(bool); ok && na {
			fallback = "true"
		}
		return s.derive(fmt.Sprintf("COALESCE(%s, %s)", cond, fallback), duckdb.TypeBoolean), nil
	case "replace":
		if err := args.allow(name, 2, "pat", "repl", "regex", "case"); err != nil {
			return nil, err
		}
		from, ok1 := args.get(0, "pat")
		to, ok2 := args.get(1, "repl")
		fromText, isText1 := from.(string)
		toText, isText2 := to.(string)
		if !ok1 || !ok2 || !isText1 || !isText2 {
			return nil, fmt.Errorf("TypeError: replace() expects pattern and replacement strings")
		}
		if args.boolKw("regex", false) {
			return s.derive(fmt.Sprintf("regexp_replace(%s, %s, %s, 'g')", s.expr, duckdb.QuoteString(fromText), duckdb.QuoteString(toText)), duckdb.TypeVarchar), nil
		}
		return s.derive(fmt.Sprintf("replace(%s, %s, %s)", s.expr, duckdb.QuoteString(fromText), duckdb.QuoteString(toText)), duckdb.TypeVarchar), nil
	}
	return nil, fmt.Errorf("%w: .str.%s", ErrUnsupported, name)
}

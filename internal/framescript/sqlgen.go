package framescript

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/nlquery/nlquery/internal/query/duckdb"
)

const (
	indexPrefix = "__index__"
	posColumn   = "__pos"
)

func q(name string) string {
	return duckdb.QuoteIdent(name)
}

func indexColumn(label string) string {
	return indexPrefix + label
}

// literal renders a script scalar as SQL and reports its DuckDB type.
func literal(v Value) (string, string, error) {
	switch t := v.(type) {
	case nil:
		return "NULL", "", nil
	case bool:
		if t {
			return "TRUE", duckdb.TypeBoolean, nil
		}
		return "FALSE", duckdb.TypeBoolean, nil
	case int64:
		return "CAST(" + strconv.FormatInt(t, 10) + " AS BIGINT)", duckdb.TypeBigint, nil
	case float64:
		switch {
		case math.IsNaN(t):
			return "CAST(NULL AS DOUBLE)", duckdb.TypeDouble, nil
		case math.IsInf(t, 1):
			return "CAST('inf' AS DOUBLE)", duckdb.TypeDouble, nil
		case math.IsInf(t, -1):
			return "CAST('-inf' AS DOUBLE)", duckdb.TypeDouble, nil
		}
		return "CAST(" + strconv.FormatFloat(t, 'g', -1, 64) + " AS DOUBLE)", duckdb.TypeDouble, nil
	case string:
		return duckdb.QuoteString(t), duckdb.TypeVarchar, nil
	case time.Time:
		return "TIMESTAMP " + duckdb.QuoteString(t.Format("2006-01-02 15:04:05.999999")), "TIMESTAMP", nil
	default:
		return "", "", fmt.Errorf("TypeError: cannot use %s as a column value", typeName(v))
	}
}

func literalList(values []Value) (string, error) {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		text, _, err := literal(v)
		if err != nil {
			return "", err
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, ", "), nil
}

// fromSQL converts a value scanned from DuckDB into a script value.
func fromSQL(v any) Value {
	switch t := v.(type) {
	case nil, int64, float64, string, bool, time.Time:
		return t
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		if t <= math.MaxInt64 {
			return int64(t)
		}
		return float64(t)
	case float32:
		return float64(t)
	case *big.Int:
		if t.IsInt64() {
			return t.Int64()
		}
		f, _ := new(big.Float).SetInt(t).Float64()
		return f
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func quotedList(names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = q(name)
	}
	return out
}

func qualified(alias string, names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = alias + "." + q(name)
	}
	return out
}

func orderTerm(expr string, ascending bool) string {
	if ascending {
		return expr + " ASC NULLS LAST"
	}
	return expr + " DESC NULLS LAST"
}

// positioned wraps a table so every row carries its 1-based scan position.
func positioned(table string, columns []string) string {
	return fmt.Sprintf("(SELECT %s, row_number() OVER () AS %s FROM %s)", strings.Join(quotedList(columns), ", "), q(posColumn), q(table))
}

// aggregateSQL builds the aggregate expression for fn over expr of type typ.
func aggregateSQL(fn, expr, typ string) (string, string, error) {
	numeric := duckdb.IsNumeric(typ) || typ == duckdb.TypeBoolean
	switch fn {
	case "sum":
		switch {
		case duckdb.IsInteger(typ) || typ == duckdb.TypeBoolean:
			return fmt.Sprintf("CAST(COALESCE(SUM(CAST(%s AS BIGINT)), 0) AS BIGINT)", expr), duckdb.TypeBigint, nil
		case numeric:
			return fmt.Sprintf("CAST(COALESCE(SUM(%s), 0) AS DOUBLE)", expr), duckdb.TypeDouble, nil
		case typ == duckdb.TypeVarchar:
			return fmt.Sprintf("COALESCE(string_agg(%s, ''), '')", expr), duckdb.TypeVarchar, nil
		}
	case "mean", "average":
		if numeric {
			return fmt.Sprintf("AVG(CAST(%s AS DOUBLE))", expr), duckdb.TypeDouble, nil
		}
	case "median":
		if numeric {
			return fmt.Sprintf("MEDIAN(CAST(%s AS DOUBLE))", expr), duckdb.TypeDouble, nil
		}
	case "std":
		if numeric {
			return fmt.Sprintf("STDDEV_SAMP(CAST(%s AS DOUBLE))", expr), duckdb.TypeDouble, nil
		}
	case "var":
		if numeric {
			return fmt.Sprintf("VAR_SAMP(CAST(%s AS DOUBLE))", expr), duckdb.TypeDouble, nil
		}
	case "min", "max":
		return fmt.Sprintf("%s(%s)", strings.ToUpper(fn), expr), typ, nil
	case "count":
		return fmt.Sprintf("COUNT(%s)", expr), duckdb.TypeBigint, nil
	case "nunique":
		return fmt.Sprintf("COUNT(DISTINCT %s)", expr), duckdb.TypeBigint, nil
	case "size":
		return "COUNT(*)", duckdb.TypeBigint, nil
	case "first":
		return fmt.Sprintf("first(%s ORDER BY %s) FILTER (WHERE %s IS NOT NULL)", expr, q(posColumn), expr), typ, nil
	case "last":
		return fmt.Sprintf("last(%s ORDER BY %s) FILTER (WHERE %s IS NOT NULL)", expr, q(posColumn), expr), typ, nil
	default:
		return "", "", fmt.Errorf("%w: aggregation %q", ErrUnsupported, fn)
	}
	return "", "", fmt.Errorf("TypeError: cannot compute %s of a %s column", fn, dtypeName(typ))
}

// numericOnly reports whether fn skips non-numeric columns when a whole frame
// is aggregated.
func numericOnly(fn string) bool {
	switch fn {
	case "sum", "mean", "average", "median", "std", "var":
		return true
	}
	return false
}

func dtypeName(typ string) string {
	switch {
	case typ == duckdb.TypeBoolean:
		return "bool"
	case duckdb.IsInteger(typ):
		return "int64"
	case duckdb.IsNumeric(typ):
		return "float64"
	case duckdb.IsTemporal(typ):
		return "datetime64[ns]"
	default:
		return "object"
	}
}

// castType maps an astype argument onto a DuckDB type.
func castType(name string) (string, error) {
	switch strings.ToLower(name) {
	case "int", "int64", "int32", "int16", "int8", "integer":
		return duckdb.TypeBigint, nil
	case "float", "float64", "float32", "double":
		return duckdb.TypeDouble, nil
	case "str", "string", "object":
		return duckdb.TypeVarchar, nil
	case "bool", "boolean":
		return duckdb.TypeBoolean, nil
	case "datetime64", "datetime64[ns]", "datetime":
		return "TIMESTAMP", nil
	}
	return "", fmt.Errorf("TypeError: data type %q not understood", name)
}

package framescript

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Value is anything a script variable can hold: nil, int64, float64, string,
// bool, or one of the pointer types in this package.
type Value = any

type List struct {
	Items []Value
	Tuple bool
}

// Dict keeps insertion order like a Python dict.
type Dict struct {
	keys   []Value
	values []Value
}

func NewDict() *Dict {
	return &Dict{}
}

func (d *Dict) Len() int {
	return len(d.keys)
}

func (d *Dict) Get(key Value) (Value, bool) {
	for i, k := range d.keys {
		if equalScalars(k, key) {
			return d.values[i], true
		}
	}
	return nil, false
}

func (d *Dict) Set(key, value Value) {
	for i, k := range d.keys {
		if equalScalars(k, key) {
			d.values[i] = value
			return
		}
	}
	d.keys = append(d.keys, key)
	d.values = append(d.values, value)
}

func (d *Dict) Keys() []Value {
	return append([]Value(nil), d.keys...)
}

type module struct {
	name string
}

type builtinFunc struct {
	name string
}

// boundMethod is an attribute that is called later, as in df.head().
type boundMethod struct {
	recv Value
	name string
}

// Connection stands for the relational handle a combined script reads from.
type Connection struct{}

func typeName(v Value) string {
	switch t := v.(type) {
	case nil:
		return "NoneType"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case bool:
		return "bool"
	case *List:
		if t.Tuple {
			return "tuple"
		}
		return "list"
	case *Dict:
		return "dict"
	case *Frame:
		return "DataFrame"
	case *Series:
		return "Series"
	case *GroupBy:
		if t.single {
			return "SeriesGroupBy"
		}
		return "DataFrameGroupBy"
	case *module:
		return "module"
	case *builtinFunc:
		return "builtin_function"
	case *boundMethod:
		return "method"
	case *Connection:
		return "Connection"
	case *accessor:
		return t.kind + "Accessor"
	case *indexer:
		return "Indexer"
	case *Row:
		return "Series"
	case time.Time:
		return "Timestamp"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// IsScalar reports whether v is a plain number, string or bool.
func IsScalar(v Value) bool {
	switch v.(type) {
	case int64, float64, string, bool:
		return true
	default:
		return false
	}
}

func truthy(v Value) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case int64:
		return t != 0, nil
	case float64:
		return t != 0, nil
	case string:
		return t != "", nil
	case *List:
		return len(t.Items) > 0, nil
	case *Dict:
		return t.Len() > 0, nil
	case *Frame, *Series:
		return false, fmt.Errorf("the truth value of a %s is ambiguous", typeName(v))
	default:
		return true, nil
	}
}

func equalScalars(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	return false
}

func toFloat(v Value) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func toInt(v Value) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case float64:
		if t == math.Trunc(t) {
			return int64(t), true
		}
	}
	return 0, false
}

// formatFloat renders f the way Python's repr does.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// scalarStr is str() for values that need no database access.
func scalarStr(v Value) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "None", true
	case bool:
		if t {
			return "True", true
		}
		return "False", true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return formatFloat(t), true
	case string:
		return t, true
	case *module:
		return "<module '" + t.name + "'>", true
	case *builtinFunc:
		return "<built-in function " + t.name + ">", true
	case *Connection:
		return "<connection>", true
	case time.Time:
		return t.Format("2006-01-02 15:04:05"), true
	}
	return "", false
}

func quotePy(s string) string {
	quote := "'"
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		quote = `"`
	}
	replacer := strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\t", `\t`, "\r", `\r`)
	escaped := replacer.Replace(s)
	if quote == "'" {
		escaped = strings.ReplaceAll(escaped, "'", `\'`)
	}
	return quote + escaped + quote
}

var formatSpecPattern = regexp.MustCompile(`^(?:(.)?([<>^=]))?([+\- ])?(0)?(\d+)?([,_])?(?:\.(\d+))?([bdeEfFgGn%s])?$`)

// applyFormatSpec implements the common subset of Python's format spec
// mini-language: fill, align, sign, zero padding, width, grouping, precision
// and the d, e, f, g, % and s types.
func applyFormatSpec(v Value, spec string) (string, error) {
	if spec == "" {
		s, _ := scalarStr(v)
		return s, nil
	}
	m := formatSpecPattern.FindStringSubmatch(spec)
	if m == nil {
		return "", fmt.Errorf("invalid format specifier %q", spec)
	}
	fill, align, sign, zero, widthText, grouping, precisionText, kind := m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8]
	precision := -1
	if precisionText != "" {
		precision, _ = strconv.Atoi(precisionText)
	}

	var body string
	numeric := false
	switch t := v.(type) {
	case string:
		if kind != "" && kind != "s" {
			return "", fmt.Errorf("unknown format code %q for str", kind)
		}
		body = t
		if precision >= 0 && precision < len([]rune(body)) {
			body = string([]rune(body)[:precision])
		}
	case int64, float64, bool:
		numeric = true
		f, _ := toFloat(t)
		i, isInt := t.(int64)
		if b, ok := t.(bool); ok && kind == "" {
			body, _ = scalarStr(b)
			numeric = false
			break
		}
		negative := f < 0 || (isInt && i < 0)
		if negative {
			f = -f
			i = -i
		}
		switch kind {
		case "d", "n":
			if !isInt {
				if kind == "d" {
					return "", fmt.Errorf("unknown format code 'd' for float")
				}
				i = int64(f)
			}
			body = groupDigits(strconv.FormatInt(i, 10), grouping)
		case "f", "F":
			if precision < 0 {
				precision = 6
			}
			body = groupFixed(strconv.FormatFloat(f, 'f', precision, 64), grouping)
		case "%":
			if precision < 0 {
				precision = 6
			}
			body = groupFixed(strconv.FormatFloat(f*100, 'f', precision, 64), grouping) + "%"
		case "e", "E":
			if precision < 0 {
				precision = 6
			}
			body = strconv.FormatFloat(f, kind[0], precision, 64)
		case "g", "G":
			if precision < 0 {
				precision = 6
			}
			if precision == 0 {
				precision = 1
			}
			body = strconv.FormatFloat(f, kind[0], precision, 64)
		case "":
			switch {
			case isInt:
				body = groupDigits(strconv.FormatInt(i, 10), grouping)
			case precision >= 0:
				body = strconv.FormatFloat(f, 'g', max(precision, 1), 64)
			default:
				body = groupFixed(formatFloat(f), grouping)
			}
		default:
			return "", fmt.Errorf("unknown format code %q", kind)
		}
		switch {
		case negative:
			body = "-" + body
		case sign == "+":
			body = "+" + body
		case sign == " ":
			body = " " + body
		}
	default:
		return "", fmt.Errorf("unsupported format string passed to %s.__format__", typeName(v))
	}

	width, _ := strconv.Atoi(widthText)
	pad := width - len([]rune(body))
	if pad <= 0 {
		return body, nil
	}
	if zero != "" && numeric && align == "" {
		fill, align = "0", "="
	}
	if fill == "" {
		fill = " "
	}
	if align == "" {
		align = "<"
		if numeric {
			align = ">"
		}
	}
	padding := strings.Repeat(fill, pad)
	switch align {
	case ">":
		return padding + body, nil
	case "^":
		left := strings.Repeat(fill, pad/2)
		return left + body + strings.Repeat(fill, pad-pad/2), nil
	case "=":
		if body != "" && (body[0] == '-' || body[0] == '+' || body[0] == ' ') {
			return body[:1] + padding + body[1:], nil
		}
		return padding + body, nil
	default:
		return body + padding, nil
	}
}

func groupFixed(number, sep string) string {
	if sep == "" {
		return number
	}
	intPart, frac, found := strings.Cut(number, ".")
	out := groupDigits(intPart, sep)
	if found {
		out += "." + frac
	}
	return out
}

func groupDigits(digits, sep string) string {
	if sep == "" || len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

package duckdb

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	TypeBigint  = "BIGINT"
	TypeDouble  = "DOUBLE"
	TypeBoolean = "BOOLEAN"
	TypeVarchar = "VARCHAR"
)

// InferType picks the narrowest of BIGINT, DOUBLE, BOOLEAN and VARCHAR that
// every non-empty cell parses as.
func InferType(cells []string) string {
	isInt, isFloat, isBool, seen := true, true, true, false
	for _, cell := range cells {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		seen = true
		if isInt {
			if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, ok := parseFloat(cell); !ok {
				isFloat = false
			}
		}
		if isBool {
			if _, ok := parseBool(cell); !ok {
				isBool = false
			}
		}
		if !isInt && !isFloat && !isBool {
			return TypeVarchar
		}
	}
	switch {
	case !seen:
		return TypeVarchar
	case isInt:
		return TypeBigint
	case isFloat:
		return TypeDouble
	case isBool:
		return TypeBoolean
	default:
		return TypeVarchar
	}
}

func parseFloat(cell string) (float64, bool) {
	value, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, false
	}
	return value, true
}

func parseBool(cell string) (bool, bool) {
	switch cell {
	case "TRUE", "True", "true":
		return true, true
	case "FALSE", "False", "false":
		return false, true
	default:
		return false, false
	}
}

func convertCell(cell, columnType string) any {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return nil
	}
	switch columnType {
	case TypeBigint:
		value, _ := strconv.ParseInt(trimmed, 10, 64)
		return value
	case TypeDouble:
		value, _ := parseFloat(trimmed)
		return value
	case TypeBoolean:
		value, _ := parseBool(trimmed)
		return value
	default:
		return cell
	}
}

func inferValueType(rows [][]any, index int) string {
	result := ""
	for _, row := range rows {
		if index >= len(row) || row[index] == nil {
			continue
		}
		var kind string
		switch typed := row[index].(type) {
		case int, int8, int16, int32, int64, uint8, uint16, uint32:
			kind = TypeBigint
		case float32:
			kind = TypeDouble
		case float64:
			if math.IsNaN(typed) {
				continue
			}
			kind = TypeDouble
		case bool:
			kind = TypeBoolean
		default:
			kind = TypeVarchar
		}
		switch {
		case result == "":
			result = kind
		case result == kind:
		case (result == TypeBigint && kind == TypeDouble) || (result == TypeDouble && kind == TypeBigint):
			result = TypeDouble
		default:
			return TypeVarchar
		}
	}
	if result == "" {
		return TypeVarchar
	}
	return result
}

func convertValue(value any, columnType string) any {
	if value == nil {
		return nil
	}
	switch columnType {
	case TypeBigint:
		return toInt64(value)
	case TypeDouble:
		if f, ok := value.(float64); ok && math.IsNaN(f) {
			return nil
		}
		return toFloat64(value)
	case TypeBoolean:
		return value
	default:
		switch typed := value.(type) {
		case string:
			return typed
		case []byte:
			return string(typed)
		case time.Time:
			return typed.Format("2006-01-02 15:04:05")
		default:
			return fmt.Sprint(typed)
		}
	}
}

func toInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int8:
		return int64(typed)
	case int16:
		return int64(typed)
	case int32:
		return int64(typed)
	case int64:
		return typed
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	default:
		return 0
	}
}

func toFloat64(value any) float64 {
	switch typed := value.(type) {
	case float32:
		return float64(typed)
	case float64:
		return typed
	default:
		return float64(toInt64(value))
	}
}

// IsInteger reports whether a DuckDB type name is an integer type.
func IsInteger(columnType string) bool {
	switch strings.ToUpper(columnType) {
	case "TINYINT", "SMALLINT", "INTEGER", "BIGINT", "HUGEINT", "UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT", "UHUGEINT", "INT", "INT4", "INT8":
		return true
	default:
		return false
	}
}

func IsNumeric(columnType string) bool {
	upper := strings.ToUpper(columnType)
	return IsInteger(upper) || upper == "DOUBLE" || upper == "FLOAT" || upper == "REAL" || strings.HasPrefix(upper, "DECIMAL")
}

func IsTemporal(columnType string) bool {
	upper := strings.ToUpper(columnType)
	return upper == "DATE" || strings.HasPrefix(upper, "TIMESTAMP")
}

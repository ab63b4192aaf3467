package query

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

type float64er interface {
	Float64() float64
}

// NormalizeValue turns a driver value into a display safe scalar. dbType is
// the column's database type name when known; it decides how raw bytes are
// read.
func NormalizeValue(value any, dbType string) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case []byte:
		return normalizeBytes(typed, dbType)
	case string:
		if isDecimalType(dbType) {
			return decimalToFloat(typed)
		}
		return typed
	case time.Time:
		return typed.Format(DateLayout)
	case *time.Time:
		if typed == nil {
			return nil
		}
		return typed.Format(DateLayout)
	case decimal.Decimal:
		return typed.InexactFloat64()
	case *big.Int:
		if typed == nil {
			return nil
		}
		if typed.IsInt64() {
			return typed.Int64()
		}
		return typed.String()
	case float64:
		return finiteOrNil(typed)
	case float32:
		return finiteOrNil(float64(typed))
	case int:
		return int64(typed)
	case int8:
		return int64(typed)
	case int16:
		return int64(typed)
	case int32:
		return int64(typed)
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	case uint64:
		if typed <= math.MaxInt64 {
			return int64(typed)
		}
		return strconv.FormatUint(typed, 10)
	case float64er:
		return finiteOrNil(typed.Float64())
	default:
		return typed
	}
}

func NormalizeRow(values []any, dbTypes []string) []any {
	out := make([]any, len(values))
	for i, value := range values {
		dbType := ""
		if i < len(dbTypes) {
			dbType = dbTypes[i]
		}
		out[i] = NormalizeValue(value, dbType)
	}
	return out
}

func normalizeBytes(raw []byte, dbType string) any {
	text := string(raw)
	kind := strings.ToUpper(strings.TrimSpace(dbType))
	switch {
	case isDecimalType(kind):
		return decimalToFloat(text)
	case isIntegerType(kind):
		if value, err := strconv.ParseInt(text, 10, 64); err == nil {
			return value
		}
		if value, err := strconv.ParseUint(text, 10, 64); err == nil {
			return NormalizeValue(value, "")
		}
		return text
	case kind == "FLOAT" || kind == "DOUBLE" || kind == "REAL":
		if value, err := strconv.ParseFloat(text, 64); err == nil {
			return finiteOrNil(value)
		}
		return text
	case kind == "DATE" || kind == "DATETIME" || kind == "TIMESTAMP":
		if len(text) >= len(DateLayout) {
			return text[:len(DateLayout)]
		}
		return text
	default:
		return text
	}
}

func decimalToFloat(text string) any {
	value, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return text
	}
	return value.InexactFloat64()
}

func isDecimalType(dbType string) bool {
	switch strings.ToUpper(dbType) {
	case "DECIMAL", "NUMERIC", "NEWDECIMAL":
		return true
	}
	return false
}

func isIntegerType(dbType string) bool {
	switch dbType {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR",
		"UNSIGNED TINYINT", "UNSIGNED SMALLINT", "UNSIGNED MEDIUMINT", "UNSIGNED INT", "UNSIGNED BIGINT",
		"INT2", "INT4", "INT8":
		return true
	}
	return false
}

func finiteOrNil(value float64) any {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	return value
}

package query

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNormalizeValueConvertsDriverTypes(t *testing.T) {
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	tests := []struct {
		name   string
		value  any
		dbType string
		want   any
	}{
		{name: "decimal bytes", value: []byte("12.50"), dbType: "DECIMAL", want: 12.5},
		{name: "integer bytes", value: []byte("42"), dbType: "BIGINT", want: int64(42)},
		{name: "float bytes", value: []byte("1.25"), dbType: "DOUBLE", want: 1.25},
		{name: "text bytes", value: []byte("berlin"), dbType: "VARCHAR", want: "berlin"},
		{name: "untyped bytes", value: []byte("007"), dbType: "", want: "007"},
		{name: "date bytes", value: []byte("2024-03-01 10:11:12"), dbType: "DATETIME", want: "2024-03-01"},
		{name: "time", value: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), want: "2024-03-01"},
		{name: "shopspring decimal", value: decimal.RequireFromString("3.75"), want: 3.75},
		{name: "small big int", value: big.NewInt(9), want: int64(9)},
		{name: "huge big int", value: huge, want: "123456789012345678901234567890"},
		{name: "int32", value: int32(7), want: int64(7)},
		{name: "nan", value: math.NaN(), want: nil},
		{name: "nil", value: nil, want: nil},
		{name: "bool", value: true, want: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeValue(tc.value, tc.dbType); got != tc.want {
				t.Fatalf("NormalizeValue(%v, %q) = %#v, want %#v", tc.value, tc.dbType, got, tc.want)
			}
		})
	}
}

func TestFromValuesBuildsRowMaps(t *testing.T) {
	result := FromValues([]string{"city", "revenue"}, [][]any{{"Berlin", 10.0}, {"Paris"}})
	if result.RowCount() != 2 {
		t.Fatalf("RowCount() = %d", result.RowCount())
	}
	if result.Rows[0]["city"] != "Berlin" || result.Rows[0]["revenue"] != 10.0 {
		t.Fatalf("Rows[0] = %#v", result.Rows[0])
	}
	if value, ok := result.Rows[1]["revenue"]; !ok || value != nil {
		t.Fatalf("Rows[1] = %#v", result.Rows[1])
	}
	values := result.Values()
	if values[0][0] != "Berlin" || values[1][1] != nil {
		t.Fatalf("Values() = %#v", values)
	}
}

func TestSpecialResults(t *testing.T) {
	if got := Scalar(int32(3)); got.Rows[0]["result"] != int64(3) || got.Columns[0] != "result" {
		t.Fatalf("Scalar() = %#v", got)
	}
	out := Output([]string{"a", "b"})
	if len(out.Rows) != 2 || out.Rows[1]["output"] != "b" {
		t.Fatalf("Output() = %#v", out)
	}
	if got := Empty(); got.Rows[0]["message"] != NoResultsMessage {
		t.Fatalf("Empty() = %#v", got)
	}
	failed := Failure("boom")
	if !failed.Failed() || failed.Rows == nil {
		t.Fatalf("Failure() = %#v", failed)
	}
}

package duckdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
)

type row struct {
	ID    int64  `parquet:"id"`
	Value string `parquet:"value"`
}

func TestLoadStringsInfersColumnTypes(t *testing.T) {
	engine := openEngine(t)
	columns, err := engine.LoadStrings(context.Background(), "sales", []string{"city", "units", "revenue", "paid"}, [][]string{
		{"Berlin", "3", "10.5", "true"},
		{"Paris", "", "4", "FALSE"},
		{"Berlin", "2", "1e2", ""},
	})
	if err != nil {
		t.Fatalf("LoadStrings() error = %v", err)
	}
	want := []string{TypeVarchar, TypeBigint, TypeDouble, TypeBoolean}
	for i, column := range columns {
		if column.Type != want[i] {
			t.Fatalf("column %s type = %s, want %s", column.Name, column.Type, want[i])
		}
	}

	value, _, err := engine.QueryValue(context.Background(), `SELECT SUM(revenue) FROM sales WHERE city = 'Berlin';`)
	if err != nil {
		t.Fatalf("QueryValue() error = %v", err)
	}
	if value != 110.5 {
		t.Fatalf("sum = %#v", value)
	}
	nulls, _, err := engine.QueryValue(context.Background(), `SELECT COUNT(*) FROM sales WHERE units IS NULL`)
	if err != nil {
		t.Fatalf("QueryValue() error = %v", err)
	}
	if nulls != int64(1) {
		t.Fatalf("null units = %#v", nulls)
	}
}

func TestMaterializeDescribesNewTable(t *testing.T) {
	engine := openEngine(t)
	if _, err := engine.LoadStrings(context.Background(), "t", []string{"a"}, [][]string{{"1"}, {"2"}}); err != nil {
		t.Fatalf("LoadStrings() error = %v", err)
	}
	table, columns, err := engine.Materialize(context.Background(), `SELECT a, a * 2 AS doubled FROM t`)
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if table == "t" || len(columns) != 2 || columns[1].Name != "doubled" {
		t.Fatalf("Materialize() = %q %#v", table, columns)
	}
	rows, err := engine.Query(context.Background(), "SELECT doubled FROM "+QuoteIdent(table))
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(rows.Values) != 2 || rows.Values[1][0] != int64(4) {
		t.Fatalf("rows = %#v", rows.Values)
	}
}

func TestDescribeQueryReportsExpressionTypes(t *testing.T) {
	engine := openEngine(t)
	if _, err := engine.LoadStrings(context.Background(), "t", []string{"a", "b"}, [][]string{{"1", "x"}}); err != nil {
		t.Fatalf("LoadStrings() error = %v", err)
	}
	columns, err := engine.DescribeQuery(context.Background(), `SELECT a / 2 AS half, b || 'y' AS joined FROM t`)
	if err != nil {
		t.Fatalf("DescribeQuery() error = %v", err)
	}
	if len(columns) != 2 || columns[0].Type != TypeDouble || columns[1].Type != TypeVarchar {
		t.Fatalf("DescribeQuery() = %#v", columns)
	}
}

func TestLoadValuesWidensMixedNumbers(t *testing.T) {
	engine := openEngine(t)
	columns, err := engine.LoadValues(context.Background(), "orders", []string{"id", "amount", "note"}, [][]any{
		{int64(1), int64(3), "x"},
		{int64(2), 2.5, nil},
		{int64(3), nil, 7},
	})
	if err != nil {
		t.Fatalf("LoadValues() error = %v", err)
	}
	if columns[0].Type != TypeBigint || columns[1].Type != TypeDouble || columns[2].Type != TypeVarchar {
		t.Fatalf("columns = %#v", columns)
	}
}

func TestLoadStringsWithoutColumns(t *testing.T) {
	engine := openEngine(t)
	if _, err := engine.LoadStrings(context.Background(), "blank", nil, nil); err != nil {
		t.Fatalf("LoadStrings() error = %v", err)
	}
	columns, err := engine.Describe(context.Background(), "blank")
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if len(columns) != 1 || columns[0].Name != EmptyColumn {
		t.Fatalf("columns = %#v", columns)
	}
}

func TestLoadParquetScansInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.parquet")
	writeParquet(t, path, []row{{ID: 1, Value: "a"}, {ID: 2, Value: "b"}})

	engine := openEngine(t)
	columns, err := engine.LoadParquet(context.Background(), "events", path)
	if err != nil {
		t.Fatalf("LoadParquet() error = %v", err)
	}
	if len(columns) != 2 || columns[0].Name != "id" {
		t.Fatalf("columns = %#v", columns)
	}
	count, _, err := engine.QueryValue(context.Background(), "SELECT COUNT(*) AS c FROM events;")
	if err != nil {
		t.Fatalf("QueryValue() error = %v", err)
	}
	if count != int64(2) {
		t.Fatalf("count = %#v", count)
	}
}

func TestInferType(t *testing.T) {
	tests := []struct {
		cells []string
		want  string
	}{
		{cells: []string{"1", "-2", ""}, want: TypeBigint},
		{cells: []string{"1", "2.5"}, want: TypeDouble},
		{cells: []string{"True", "false"}, want: TypeBoolean},
		{cells: []string{"1", "x"}, want: TypeVarchar},
		{cells: []string{"NaN"}, want: TypeVarchar},
		{cells: []string{"", " "}, want: TypeVarchar},
	}
	for _, tc := range tests {
		if got := InferType(tc.cells); got != tc.want {
			t.Fatalf("InferType(%q) = %s, want %s", tc.cells, got, tc.want)
		}
	}
}

func openEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func writeParquet(t *testing.T, path string, rows []row) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	writer := parquet.NewGenericWriter[row](file)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("file.Close() error = %v", err)
	}
}

package framescript

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/nlquery/nlquery/internal/query/duckdb"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	engine, err := duckdb.Open(context.Background())
	if err != nil {
		t.Fatalf("duckdb.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	rt := New(engine)

	sales, err := rt.LoadTable(context.Background(), []string{"city", "units", "revenue"}, [][]string{
		{"Berlin", "3", "10.5"},
		{"Paris", "1", "4"},
		{"Berlin", "2", "100"},
		{"Rome", "", "7.25"},
	})
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}
	cities, err := rt.LoadTable(context.Background(), []string{"city", "country"}, [][]string{
		{"Berlin", "DE"},
		{"Paris", "FR"},
	})
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}
	rt.Bind("df_0", sales)
	rt.Bind("sales", sales)
	rt.Bind("cities", cities)
	rt.Bind("result", nil)
	return rt
}

func runScript(t *testing.T, rt *Runtime, script string) Value {
	t.Helper()
	if err := rt.Exec(context.Background(), script); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	value, _ := rt.Lookup("result")
	return value
}

func records(t *testing.T, rt *Runtime, v Value) ([]string, [][]any) {
	t.Helper()
	frame, ok := v.(*Frame)
	if !ok {
		t.Fatalf("result = %T, want *Frame", v)
	}
	columns, rows, err := rt.Records(context.Background(), frame)
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	return columns, rows
}

func TestGroupBySumResetIndex(t *testing.T) {
	rt := newTestRuntime(t)
	result := runScript(t, rt, "result = df_0.groupby('city')['revenue'].sum().reset_index()")

	columns, rows := records(t, rt, result)
	if strings.Join(columns, ",") != "city,revenue" {
		t.Fatalf("columns = %v", columns)
	}
	want := [][]any{{"Berlin", 110.5}, {"Paris", 4.0}, {"Rome", 7.25}}
	if len(rows) != len(want) {
		t.Fatalf("rows = %#v", rows)
	}
	for i := range want {
		if rows[i][0] != want[i][0] || rows[i][1] != want[i][1] {
			t.Fatalf("row %d = %#v, want %#v", i, rows[i], want[i])
		}
	}
}

func TestGroupByAggNamedColumns(t *testing.T) {
	rt := newTestRuntime(t)
	result := runScript(t, rt, `
result = (
    sales.groupby('city', as_index=False)
    .agg(total=('revenue', 'sum'), orders=('city', 'size'))
    .sort_values('total', ascending=False)
)
`)
	columns, rows := records(t, rt, result)
	if strings.Join(columns, ",") != "city,total,orders" {
		t.Fatalf("columns = %v", columns)
	}
	if rows[0][0] != "Berlin" || rows[0][2] != int64(2) {
		t.Fatalf("first row = %#v", rows[0])
	}
}

func TestPrintCapturesOneLinePerCall(t *testing.T) {
	rt := newTestRuntime(t)
	runScript(t, rt, `
total = sales['revenue'].sum()
print("Total revenue:", total)
print(f"Cities: {sales['city'].nunique()}")
`)
	output := rt.Output()
	if len(output) != 2 {
		t.Fatalf("output = %#v", output)
	}
	if output[0] != "Total revenue: 121.75" || output[1] != "Cities: 3" {
		t.Fatalf("output = %#v", output)
	}
}

func TestBooleanMaskAndQuery(t *testing.T) {
	rt := newTestRuntime(t)
	result := runScript(t, rt, "result = sales[(sales['units'] >= 2) & (sales['city'] == 'Berlin')]")
	_, rows := records(t, rt, result)
	if len(rows) != 2 {
		t.Fatalf("mask rows = %#v", rows)
	}

	result = runScript(t, rt, `limit = 5
result = sales.query("revenue > @limit and city != 'Rome'")`)
	_, rows = records(t, rt, result)
	if len(rows) != 2 || rows[0][2] != 10.5 || rows[1][2] != 100.0 {
		t.Fatalf("query rows = %#v", rows)
	}
}

func TestMergeAddsRightColumns(t *testing.T) {
	rt := newTestRuntime(t)
	result := runScript(t, rt, "result = pd.merge(sales, cities, on='city', how='left')")
	columns, rows := records(t, rt, result)
	if strings.Join(columns, ",") != "city,units,revenue,country" {
		t.Fatalf("columns = %v", columns)
	}
	if len(rows) != 4 || rows[0][3] != "DE" || rows[3][3] != nil {
		t.Fatalf("rows = %#v", rows)
	}
}

func TestScalarResultsAndFormatting(t *testing.T) {
	rt := newTestRuntime(t)
	if got := runScript(t, rt, "result = len(sales)"); got != int64(4) {
		t.Fatalf("len = %#v", got)
	}
	if got := runScript(t, rt, "result = f\"{1234.5:,.2f}\""); got != "1,234.50" {
		t.Fatalf("format = %#v", got)
	}
	if got := runScript(t, rt, "result = round(sales['revenue'].mean(), 2)"); got != 30.44 {
		t.Fatalf("mean = %#v", got)
	}
	if got := runScript(t, rt, "result = sales['units'].isna().sum()"); got != int64(1) {
		t.Fatalf("missing units = %#v", got)
	}
}

func TestValueCountsAndStringAccessor(t *testing.T) {
	rt := newTestRuntime(t)
	runScript(t, rt, `
counts = sales['city'].value_counts()
print(counts.index[0], counts.iloc[0])
print(sales[sales['city'].str.startswith('P')]['city'].tolist())
`)
	output := rt.Output()
	if len(output) != 2 || output[0] != "Berlin 2" || output[1] != "['Paris']" {
		t.Fatalf("output = %#v", output)
	}
}

func TestColumnAssignment(t *testing.T) {
	rt := newTestRuntime(t)
	result := runScript(t, rt, `
df = sales.copy()
df['unit_price'] = df['revenue'] / df['units']
df = df.dropna()
result = df[['city', 'unit_price']].head(1)
`)
	columns, rows := records(t, rt, result)
	if strings.Join(columns, ",") != "city,unit_price" || len(rows) != 1 || rows[0][1] != 3.5 {
		t.Fatalf("result = %v %#v", columns, rows)
	}
}

func TestPrintFrame(t *testing.T) {
	rt := newTestRuntime(t)
	runScript(t, rt, "print(cities)\nprint(cities[cities['city'] == 'Nowhere'])")
	output := rt.Output()
	if !strings.Contains(output[0], "country") || !strings.Contains(output[0], "Berlin") || !strings.Contains(output[0], "FR") {
		t.Fatalf("frame output = %q", output[0])
	}
	if output[1] != "Empty DataFrame\nColumns: [city, country]\nIndex: []" {
		t.Fatalf("empty frame output = %q", output[1])
	}
}

func TestExecRejectsUnsupportedAttributes(t *testing.T) {
	rt := newTestRuntime(t)
	err := rt.Exec(context.Background(), "x = 1\nresult = sales.to_csv('out.csv')")
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Exec() error = %v, want ErrUnsupported", err)
	}
	var located *Error
	if !errors.As(err, &located) || located.Line != 2 {
		t.Fatalf("Exec() error = %v, want line 2", err)
	}
}

func TestReadSQLUsesBoundReader(t *testing.T) {
	rt := newTestRuntime(t)
	var statements []string
	rt.SetReadSQL(func(_ context.Context, statement string) ([]string, [][]any, error) {
		statements = append(statements, statement)
		return []string{"city", "orders"}, [][]any{{"Berlin", int64(7)}, {"Rome", int64(1)}}, nil
	})
	rt.Bind("conn", &Connection{})
	result := runScript(t, rt, `
orders = pd.read_sql("SELECT city, COUNT(*) AS orders FROM orders GROUP BY city", conn)
result = orders.merge(cities, on='city')
`)
	if len(statements) != 1 {
		t.Fatalf("statements = %#v", statements)
	}
	columns, rows := records(t, rt, result)
	if strings.Join(columns, ",") != "city,orders,country" || len(rows) != 1 || rows[0][1] != int64(7) {
		t.Fatalf("result = %v %#v", columns, rows)
	}
}

func TestReadSQLWithoutConnectionFails(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.Exec(context.Background(), `x = pd.read_sql("SELECT 1", None)`); err == nil {
		t.Fatal("Exec() expected error without a relational reader")
	}
}

func TestFromSQLKeepsLargeUnsignedValues(t *testing.T) {
	if got := fromSQL(uint64(42)); got != int64(42) {
		t.Fatalf("fromSQL(42) = %#v", got)
	}
	if got := fromSQL(uint64(math.MaxUint64)); got != float64(math.MaxUint64) {
		t.Fatalf("fromSQL(MaxUint64) = %#v, want %v", got, float64(math.MaxUint64))
	}
}

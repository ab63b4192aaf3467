package executor

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/xuri/excelize/v2"

	"github.com/nlquery/nlquery/internal/connector"
	"github.com/nlquery/nlquery/internal/query"
	"github.com/nlquery/nlquery/internal/source"
)

var shop = source.RelationalConfig{Host: "db", User: "app", Database: "shop"}

const salesCSV = "city,units,revenue\nBerlin,3,10.5\nParis,1,4\nBerlin,2,100\n"

type fakeResolver struct {
	db            *sql.DB
	relationalErr error
	path          string
	tabularErr    error
}

func (f *fakeResolver) Relational(context.Context, source.RelationalConfig) (*sql.DB, error) {
	if f.relationalErr != nil {
		return nil, f.relationalErr
	}
	return f.db, nil
}

func (f *fakeResolver) Tabular(source.TabularConfig) (string, error) {
	if f.tabularErr != nil {
		return "", f.tabularErr
	}
	return f.path, nil
}

func TestExecuteRelationalReturnsFinalStatementRows(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`^SET @limit = 5$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`^SELECT COUNT\(\*\) AS cnt FROM orders$`).WillReturnRows(sqlmock.NewRows([]string{"cnt"}).AddRow(int64(42)))
	mock.ExpectRollback()

	exec := New(&fakeResolver{db: db}, Options{})
	result, err := exec.Execute(context.Background(), source.NewRelational(shop), "SET @limit = 5; SELECT COUNT(*) AS cnt FROM orders;")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := []map[string]any{{"cnt": int64(42)}}
	if !reflect.DeepEqual(result.Rows, want) {
		t.Fatalf("Rows = %#v, want %#v", result.Rows, want)
	}
	assertSQLMock(t, mock)
}

func TestExecuteRelationalNormalizesDecimals(t *testing.T) {
	db, mock := newSQLMock(t)
	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("city").OfType("VARCHAR", ""),
		sqlmock.NewColumn("total").OfType("DECIMAL", []byte("")),
	).AddRow([]byte("Berlin"), []byte("12.50"))
	mock.ExpectBegin()
	mock.ExpectQuery(`^SELECT city, SUM\(amount\) AS total FROM orders GROUP BY city$`).WillReturnRows(rows)
	mock.ExpectRollback()

	exec := New(&fakeResolver{db: db}, Options{})
	result, err := exec.Execute(context.Background(), source.NewRelational(shop), "SELECT city, SUM(amount) AS total FROM orders GROUP BY city")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Rows[0]["city"] != "Berlin" || result.Rows[0]["total"] != 12.5 {
		t.Fatalf("Rows = %#v", result.Rows)
	}
	if strings.Join(result.Columns, ",") != "city,total" {
		t.Fatalf("Columns = %v", result.Columns)
	}
}

func TestExecuteRelationalRefusesWrites(t *testing.T) {
	db, mock := newSQLMock(t)
	exec := New(&fakeResolver{db: db}, Options{})
	result, err := exec.Execute(context.Background(), source.NewRelational(shop), "SELECT 1; DELETE FROM orders")
	if !errors.Is(err, ErrWriteNotAllowed) || !errors.Is(err, ErrExecution) {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Error != "SQL Execution Error: write statements are not allowed: DELETE" {
		t.Fatalf("Error = %q", result.Error)
	}
	assertSQLMock(t, mock)
}

func TestExecuteRelationalAllowsWritesWhenConfigured(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectExec(`^UPDATE orders SET paid = 1$`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery(`^SELECT COUNT\(\*\) FROM orders WHERE paid = 1$`).WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(int64(3)))

	exec := New(&fakeResolver{db: db}, Options{AllowWrites: true})
	result, err := exec.Execute(context.Background(), source.NewRelational(shop), "UPDATE orders SET paid = 1; SELECT COUNT(*) FROM orders WHERE paid = 1")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Rows[0]["COUNT(*)"] != int64(3) {
		t.Fatalf("Rows = %#v", result.Rows)
	}
	assertSQLMock(t, mock)
}

func TestExecuteRelationalConnectionFailure(t *testing.T) {
	exec := New(&fakeResolver{relationalErr: connector.ErrUnreachable}, Options{})
	result, err := exec.Execute(context.Background(), source.NewRelational(shop), "SELECT 1")
	if !errors.Is(err, ErrConnection) || !errors.Is(err, connector.ErrUnreachable) {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Failed() || !strings.HasPrefix(result.Error, "Failed to establish database connection") {
		t.Fatalf("result = %#v", result)
	}
}

func TestExecuteRelationalStatementError(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`^SELECT nope FROM orders$`).WillReturnError(errors.New("Unknown column 'nope'"))
	mock.ExpectRollback()

	exec := New(&fakeResolver{db: db}, Options{})
	result, err := exec.Execute(context.Background(), source.NewRelational(shop), "SELECT nope FROM orders")
	if !errors.Is(err, ErrExecution) {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Error != "SQL Execution Error: Unknown column 'nope'" {
		t.Fatalf("Error = %q", result.Error)
	}
}

func TestSplitStatements(t *testing.T) {
	got := SplitStatements("SELECT ';' AS s; -- trailing; comment\nSELECT 2 /* a; b */ ;;")
	want := []string{"SELECT ';' AS s", "SELECT 2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitStatements() = %#v, want %#v", got, want)
	}
	if Keyword("  (select 1)") != "SELECT" || !IsWrite("insert into t values (1)") || IsWrite("SET @sql = 'DELETE'") {
		t.Fatal("Keyword()/IsWrite() misclassified a statement")
	}
}

func TestSplitStatementsDollarQuotesAndHashComments(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{
			in:   "DO $$ BEGIN DELETE FROM orders; END $$; SELECT 1",
			want: []string{"DO $$ BEGIN DELETE FROM orders; END $$", "SELECT 1"},
		},
		{
			in:   "SELECT $body$ a; b $body$ AS s; SELECT $1",
			want: []string{"SELECT $body$ a; b $body$ AS s", "SELECT $1"},
		},
		{
			in:   "SELECT 1; # skip; this\nSELECT 2",
			want: []string{"SELECT 1", "SELECT 2"},
		},
		{
			in:   "SELECT data #>> '{a,b}' FROM docs",
			want: []string{"SELECT data #>> '{a,b}' FROM docs"},
		},
	}
	for _, tt := range tests {
		if got := SplitStatements(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("SplitStatements(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestRunStatementsRefusesDisguisedWrites(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"WITH d AS (DELETE FROM orders RETURNING *) SELECT * FROM d", "DELETE"},
		{"DO $$ BEGIN DELETE FROM orders; END $$", "DO"},
		{"EXPLAIN ANALYZE DELETE FROM orders", "EXPLAIN ANALYZE"},
		{"COPY orders TO '/tmp/x.csv'", "COPY"},
		{"SET GLOBAL read_only = 0", "SET GLOBAL"},
		{"SET @@session.transaction_read_only = 0; SELECT 1", "SET TRANSACTION_READ_ONLY"},
		{"SET @s = 'DELETE FROM orders'; PREPARE x FROM @s; EXECUTE x", "DELETE"},
		{"PREPARE x FROM 'UPDATE orders SET paid = 1'; EXECUTE x", "UPDATE"},
		{"SELECT * FROM orders INTO OUTFILE '/tmp/orders.csv'", "OUTFILE"},
	}
	for _, tt := range tests {
		db, mock := newSQLMock(t)
		_, _, err := RunStatements(context.Background(), db, tt.sql, false)
		if !errors.Is(err, ErrWriteNotAllowed) {
			t.Fatalf("RunStatements(%q) error = %v", tt.sql, err)
		}
		if !strings.HasSuffix(err.Error(), ": "+tt.want) {
			t.Fatalf("RunStatements(%q) error = %v, want refusal of %s", tt.sql, err, tt.want)
		}
		assertSQLMock(t, mock)
	}
}

func TestRunStatementsAllowsPivotIdiomInReadOnlyTransaction(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`^SET @sql = NULL$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^SELECT GROUP_CONCAT`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^SET @sql = CONCAT`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^PREPARE stmt FROM @sql$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`^EXECUTE stmt$`).WillReturnRows(sqlmock.NewRows([]string{"city", "2024"}).AddRow("Berlin", int64(7)))
	mock.ExpectRollback()

	columns, rows, err := RunStatements(context.Background(), db, `
SET @sql = NULL;
SELECT GROUP_CONCAT(DISTINCT CONCAT('SUM(year = ', year, ') AS `+"`"+`', year, '`+"`"+`')) INTO @sql FROM orders;
SET @sql = CONCAT('SELECT city, ', @sql, ' FROM orders GROUP BY city');
PREPARE stmt FROM @sql;
EXECUTE stmt`, false)
	if err != nil {
		t.Fatalf("RunStatements() error = %v", err)
	}
	if !reflect.DeepEqual(columns, []string{"city", "2024"}) || len(rows) != 1 {
		t.Fatalf("RunStatements() = %v, %v", columns, rows)
	}
	assertSQLMock(t, mock)
}

func TestRunStatementsReadOnlyTransactionStopsDynamicWrites(t *testing.T) {
	db, mock := newSQLMock(t)
	readOnly := errors.New("Error 1792 (25006): Cannot execute statement in a READ ONLY transaction.")
	mock.ExpectBegin()
	mock.ExpectExec(`^SET @t = CONCAT`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^PREPARE x FROM @t$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`^EXECUTE x$`).WillReturnError(readOnly)
	mock.ExpectRollback()

	_, _, err := RunStatements(context.Background(), db, "SET @t = CONCAT('DEL', 'ETE FROM orders'); PREPARE x FROM @t; EXECUTE x", false)
	if !errors.Is(err, readOnly) {
		t.Fatalf("RunStatements() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestRunStatementsSkipsTransactionWhenWritesAllowed(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectExec(`^WITH d AS`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(`^SELECT 1$`).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))

	if _, _, err := RunStatements(context.Background(), db, "WITH d AS (DELETE FROM orders RETURNING *) SELECT * FROM d; SELECT 1", true); err != nil {
		t.Fatalf("RunStatements() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestExecuteTabularGroupBy(t *testing.T) {
	exec := New(&fakeResolver{path: writeCSV(t, salesCSV)}, Options{})
	result, err := exec.Execute(context.Background(), source.NewTabular("sales.csv"),
		"result = df_0.groupby('city')['revenue'].sum().reset_index()")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := query.FromValues([]string{"city", "revenue"}, [][]any{{"Berlin", 110.5}, {"Paris", 4.0}})
	if !reflect.DeepEqual(result.Columns, want.Columns) || !reflect.DeepEqual(result.Rows, want.Rows) {
		t.Fatalf("result = %#v", result)
	}
}

func TestExecuteTabularResultPriority(t *testing.T) {
	exec := New(&fakeResolver{path: writeCSV(t, salesCSV)}, Options{})
	tests := []struct {
		script string
		want   []map[string]any
	}{
		{"result = sales['revenue'].max()\nprint('ignored')", []map[string]any{{"result": 100.0}}},
		{"result = sales['city'].unique()", []map[string]any{{"result": "['Berlin', 'Paris']"}}},
		{"print('first')\nprint('second', 2)", []map[string]any{{"output": "first"}, {"output": "second 2"}}},
		{"x = len(df_0)", []map[string]any{{"message": query.NoResultsMessage}}},
	}
	for _, tt := range tests {
		result, err := exec.Execute(context.Background(), source.NewTabular("sales.csv"), tt.script)
		if err != nil {
			t.Fatalf("Execute(%q) error = %v", tt.script, err)
		}
		if !reflect.DeepEqual(result.Rows, tt.want) {
			t.Fatalf("Execute(%q) rows = %#v, want %#v", tt.script, result.Rows, tt.want)
		}
	}
}

func TestExecuteTabularScriptError(t *testing.T) {
	exec := New(&fakeResolver{path: writeCSV(t, salesCSV)}, Options{})
	result, err := exec.Execute(context.Background(), source.NewTabular("sales.csv"), "import os\nresult = os.listdir('.')")
	if !errors.Is(err, ErrExecution) {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(result.Error, "Excel Query Execution Error: ") || !strings.Contains(result.Error, "os") {
		t.Fatalf("Error = %q", result.Error)
	}
}

func TestExecuteTabularBindsEverySheet(t *testing.T) {
	path := writeXLSX(t, map[string][][]any{
		"Q1 sales": {{"region", "amount"}, {"north", 10}, {"south", 5}},
		"Regions":  {{"region", "manager"}, {"north", "Ada"}, {"south", "Lin"}},
	}, []string{"Q1 sales", "Regions"})
	exec := New(&fakeResolver{path: path}, Options{})
	result, err := exec.Execute(context.Background(), source.NewTabular("book.xlsx"), `
managers = excel_data['Regions']
joined = Q1_sales.merge(df_1, on='region')
result = joined[joined['amount'] > 6][['manager', 'amount']]
`)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := []map[string]any{{"manager": "Ada", "amount": int64(10)}}
	if !reflect.DeepEqual(result.Rows, want) {
		t.Fatalf("Rows = %#v, want %#v", result.Rows, want)
	}
}

func TestExecuteCombinedRequiresBothSources(t *testing.T) {
	cfg := source.NewCombined(shop, "sales.csv")
	exec := New(&fakeResolver{relationalErr: connector.ErrUnreachable, path: writeCSV(t, salesCSV)}, Options{})
	result, err := exec.Execute(context.Background(), cfg, "result = 1")
	if !errors.Is(err, ErrBothSourcesRequired) {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Error != "Both relational and tabular sources are required for combined execution" || len(result.Rows) != 0 {
		t.Fatalf("result = %#v", result)
	}

	db, _ := newSQLMock(t)
	exec = New(&fakeResolver{db: db, tabularErr: connector.ErrPathNotFound}, Options{})
	if _, err := exec.Execute(context.Background(), cfg, "result = 1"); !errors.Is(err, ErrBothSourcesRequired) {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestExecuteCombinedReadsFromBothSources(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`^SELECT city, target FROM targets$`).WillReturnRows(sqlmock.NewRows([]string{"city", "target"}).
		AddRow("Berlin", int64(100)).
		AddRow("Paris", int64(10)))
	mock.ExpectRollback()

	exec := New(&fakeResolver{db: db, path: writeCSV(t, salesCSV)}, Options{})
	result, err := exec.Execute(context.Background(), source.NewCombined(shop, "sales.csv"), `
targets = pd.read_sql("SELECT city, target FROM targets", conn)
actual = df_0.groupby('city', as_index=False)['revenue'].sum()
merged = pd.merge(actual, targets, on='city')
merged['hit'] = merged['revenue'] >= merged['target']
result = merged[['city', 'hit']]
`)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := []map[string]any{{"city": "Berlin", "hit": true}, {"city": "Paris", "hit": false}}
	if !reflect.DeepEqual(result.Rows, want) {
		t.Fatalf("Rows = %#v, want %#v", result.Rows, want)
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sales.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func writeXLSX(t *testing.T, sheets map[string][][]any, order []string) string {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, name := range order {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				t.Fatalf("SetSheetName() error = %v", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			t.Fatalf("NewSheet() error = %v", err)
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatalf("CoordinatesToCellName() error = %v", err)
			}
			values := row
			if err := f.SetSheetRow(name, cell, &values); err != nil {
				t.Fatalf("SetSheetRow() error = %v", err)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "book.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}
	return path
}

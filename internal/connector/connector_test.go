package connector

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nlquery/nlquery/internal/source"
)

var testRelational = source.RelationalConfig{Host: "db", User: "app", Password: "pw", Database: "shop"}

func TestRelationalClassifiesPingFailuresAndCloses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "mysql access denied", err: &mysql.MySQLError{Number: 1045, Message: "Access denied"}, want: ErrAuthentication},
		{name: "mysql unknown database", err: &mysql.MySQLError{Number: 1049, Message: "Unknown database"}, want: ErrDatabaseNotFound},
		{name: "postgres password", err: &pgconn.PgError{Code: "28P01"}, want: ErrAuthentication},
		{name: "postgres database", err: &pgconn.PgError{Code: "3D000"}, want: ErrDatabaseNotFound},
		{name: "deadline", err: context.DeadlineExceeded, want: ErrUnreachable},
		{name: "other", err: errors.New("weird"), want: ErrConnectionFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
			if err != nil {
				t.Fatalf("sqlmock.New() error = %v", err)
			}
			mock.ExpectPing().WillReturnError(tc.err)
			mock.ExpectClose()

			resolver := &Resolver{Open: func(string, string) (*sql.DB, error) { return db, nil }}
			_, err = resolver.Relational(context.Background(), testRelational)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Relational() error = %v, want %v", err, tc.want)
			}
			if !IsConnectivity(err) {
				t.Fatalf("IsConnectivity(%v) = false", err)
			}
			assertSQLMock(t, mock)
		})
	}
}

func TestRelationalReturnsLiveHandle(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	mock.ExpectPing()

	var gotDriver, gotDSN string
	resolver := &Resolver{Open: func(driver, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driver, dsn
		return db, nil
	}}
	handle, err := resolver.Relational(context.Background(), testRelational)
	if err != nil {
		t.Fatalf("Relational() error = %v", err)
	}
	defer func() { _ = handle.Close() }()
	if gotDriver != "mysql" || !strings.Contains(gotDSN, "tcp(db:3306)/shop") {
		t.Fatalf("opened %s %s", gotDriver, gotDSN)
	}
	assertSQLMock(t, mock)
}

func TestRelationalRejectsMalformedInputWithoutOpening(t *testing.T) {
	opened := false
	resolver := &Resolver{Open: func(string, string) (*sql.DB, error) {
		opened = true
		return nil, errors.New("unexpected")
	}}
	_, err := resolver.Relational(context.Background(), source.RelationalConfig{Host: "db", User: "app"})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Relational() error = %v", err)
	}
	if opened {
		t.Fatal("opener called for malformed config")
	}
}

func TestRelationalUnreachableHost(t *testing.T) {
	resolver := New(500 * time.Millisecond)
	cfg := source.RelationalConfig{Host: "127.0.0.1", Port: 1, User: "app", Password: "pw", Database: "shop"}
	_, err := resolver.Relational(context.Background(), cfg)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("Relational() error = %v, want ErrUnreachable", err)
	}
}

func TestTabularValidationOrder(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	csvPath := filepath.Join(dir, "orders.csv")
	for _, path := range []string{txt, csvPath} {
		if err := os.WriteFile(path, []byte("id\n1\n"), 0o600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "folder.xlsx"), 0o700); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}

	tests := []struct {
		name string
		path string
		want error
	}{
		{name: "missing", path: " ", want: ErrMissingPath},
		{name: "not found", path: filepath.Join(dir, "nope.xlsx"), want: ErrPathNotFound},
		{name: "directory", path: filepath.Join(dir, "folder.xlsx"), want: ErrPathIsDirectory},
		{name: "unsupported", path: txt, want: ErrUnsupportedFormat},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			probed := 0
			resolver := &Resolver{Probe: func(string) error { probed++; return nil }}
			_, err := resolver.Tabular(source.TabularConfig{Path: tc.path})
			if !errors.Is(err, tc.want) {
				t.Fatalf("Tabular() error = %v, want %v", err, tc.want)
			}
			if probed != 0 {
				t.Fatalf("content probed %d times before validation failed", probed)
			}
		})
	}

	resolver := &Resolver{Probe: func(string) error { return errors.New("bad zip") }}
	if _, err := resolver.Tabular(source.TabularConfig{Path: csvPath}); !errors.Is(err, ErrUnreadableContent) {
		t.Fatalf("Tabular() error = %v, want ErrUnreadableContent", err)
	}

	got, err := New(0).Tabular(source.TabularConfig{Path: csvPath})
	if err != nil || got != csvPath {
		t.Fatalf("Tabular() = %q, %v", got, err)
	}
}

func TestCheckCombinedStopsAtRelationalFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	mock.ExpectPing().WillReturnError(&mysql.MySQLError{Number: 1045})
	mock.ExpectClose()

	probed := false
	resolver := &Resolver{
		Open:  func(string, string) (*sql.DB, error) { return db, nil },
		Probe: func(string) error { probed = true; return nil },
	}
	err = resolver.Check(context.Background(), source.NewCombined(testRelational, "/tmp/x.xlsx"))
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("Check() error = %v", err)
	}
	if probed {
		t.Fatal("tabular side checked after relational failure")
	}
	assertSQLMock(t, mock)
}

func TestDSN(t *testing.T) {
	driver, dsn := DSN(testRelational, 3*time.Second)
	if driver != "mysql" {
		t.Fatalf("driver = %q", driver)
	}
	for _, part := range []string{"app:pw@tcp(db:3306)/shop", "parseTime=true", "timeout=3s"} {
		if !strings.Contains(dsn, part) {
			t.Fatalf("dsn %q missing %q", dsn, part)
		}
	}

	pg := testRelational
	pg.Driver = "postgres"
	pg.Password = "p@ss"
	driver, dsn = DSN(pg, 3*time.Second)
	if driver != "pgx" {
		t.Fatalf("driver = %q", driver)
	}
	if !strings.HasPrefix(dsn, "postgres://app:p%40ss@db:5432/shop?") || !strings.Contains(dsn, "connect_timeout=3") {
		t.Fatalf("dsn = %q", dsn)
	}
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

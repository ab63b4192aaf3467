package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/nlquery/nlquery/internal/schema"
	"github.com/nlquery/nlquery/internal/source"
)

type Counter interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CheckTabular reports whether the file changed since the last check. The
// first check of a session always reports a change; a missing file never does.
func (s *Session) CheckTabular(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	modTime := info.ModTime()
	if s.freshness.FileModTime.IsZero() || modTime.After(s.freshness.FileModTime) {
		s.freshness.FileModTime = modTime
		return true, nil
	}
	return false, nil
}

// CheckRelational counts rows per table and reports whether any count
// differs from the last one seen. Every table is counted even after a change
// is found so the markers stay complete.
func (s *Session) CheckRelational(ctx context.Context, db Counter, driver string, tables []string) (bool, error) {
	sorted := append([]string(nil), tables...)
	sort.Strings(sorted)
	counts := make(map[string]int64, len(sorted))
	for _, table := range sorted {
		var count int64
		statement := "SELECT COUNT(*) FROM " + quoteTable(driver, table)
		if err := db.QueryRowContext(ctx, statement).Scan(&count); err != nil {
			return false, fmt.Errorf("count rows of %s: %w", table, err)
		}
		counts[table] = count
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.freshness.TableCounts == nil {
		s.freshness.TableCounts = make(map[string]int64, len(counts))
	}
	changed := false
	for table, count := range counts {
		last, seen := s.freshness.TableCounts[table]
		if !seen || last != count {
			s.freshness.TableCounts[table] = count
			changed = true
		}
	}
	return changed, nil
}

func quoteTable(driver, table string) string {
	if driver == source.DriverPostgres {
		return `"` + strings.ReplaceAll(table, `"`, `""`) + `"`
	}
	return schema.QuoteMySQLIdent(table)
}

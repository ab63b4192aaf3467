package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nlquery/nlquery/internal/schema"
	"github.com/nlquery/nlquery/internal/session"
	"github.com/nlquery/nlquery/internal/source"
)

var ErrNoConnector = errors.New("freshness checks need a connector")

type Connector interface {
	Relational(ctx context.Context, cfg source.RelationalConfig) (*sql.DB, error)
	Tabular(cfg source.TabularConfig) (string, error)
}

// FreshnessReport says whether the data behind a session moved since the
// previous check. Nil fields were not checked for this source kind.
type FreshnessReport struct {
	Changed       bool      `json:"changed"`
	FileChanged   *bool     `json:"file_changed,omitempty"`
	TablesChanged *bool     `json:"tables_changed,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

// CheckFreshness compares the spreadsheet modification time and the row
// counts of every known table against the markers stored on the session.
func (a *Assistant) CheckFreshness(ctx context.Context, s *session.Session) (FreshnessReport, error) {
	cfg, err := s.Source()
	if err != nil {
		return FreshnessReport{}, err
	}
	if a.opts.Connector == nil {
		return FreshnessReport{}, ErrNoConnector
	}
	report := FreshnessReport{CheckedAt: time.Now().UTC()}

	if cfg.Tabular != nil {
		path, err := a.opts.Connector.Tabular(*cfg.Tabular)
		if err != nil {
			return FreshnessReport{}, fmt.Errorf("check spreadsheet: %w", err)
		}
		changed, err := s.CheckTabular(path)
		if err != nil {
			return FreshnessReport{}, fmt.Errorf("check spreadsheet: %w", err)
		}
		report.FileChanged = &changed
		report.Changed = report.Changed || changed
	}

	if cfg.Relational != nil {
		changed, err := a.checkTables(ctx, s, cfg)
		if err != nil {
			return FreshnessReport{}, fmt.Errorf("check tables: %w", err)
		}
		report.TablesChanged = &changed
		report.Changed = report.Changed || changed
	}

	if report.Changed {
		a.opts.Logger.InfoContext(ctx, "data source changed",
			slog.String("session_id", s.ID),
			slog.String("source", cfg.DisplayName()),
		)
	}
	return report, nil
}

func (a *Assistant) checkTables(ctx context.Context, s *session.Session, cfg source.Config) (bool, error) {
	value, err := a.Schema(ctx, s, false)
	if err != nil {
		return false, err
	}
	var tables schema.Description
	switch typed := value.(type) {
	case schema.Description:
		tables = typed
	case schema.Combined:
		tables = typed.Relational
	}
	if len(tables) == 0 {
		return false, nil
	}
	db, err := a.opts.Connector.Relational(ctx, *cfg.Relational)
	if err != nil {
		return false, err
	}
	defer db.Close()
	return s.CheckRelational(ctx, db, cfg.Relational.DriverName(), tables.Names())
}

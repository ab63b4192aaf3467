package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nlquery/nlquery/internal/source"
	"github.com/nlquery/nlquery/internal/workbook"
)

var (
	ErrInvalidConfig     = source.ErrInvalidConfig
	ErrAuthentication    = errors.New("authentication failed")
	ErrDatabaseNotFound  = errors.New("database not found")
	ErrUnreachable       = errors.New("host unreachable")
	ErrConnectionFailed  = errors.New("connection failed")
	ErrMissingPath       = errors.New("missing required parameter: path")
	ErrPathNotFound      = errors.New("file not found")
	ErrPathIsDirectory   = errors.New("provided path is a directory, not a file")
	ErrUnsupportedFormat = workbook.ErrUnsupportedFormat
	ErrUnreadableContent = workbook.ErrUnreadable
)

type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// Resolver turns source configs into live handles. It holds no state between
// calls.
type Resolver struct {
	Open           OpenFunc
	ConnectTimeout time.Duration
	Stat           func(string) (os.FileInfo, error)
	Probe          func(string) error
}

func New(connectTimeout time.Duration) *Resolver {
	return &Resolver{ConnectTimeout: connectTimeout}
}

// Relational opens and pings a database. The caller owns the returned handle;
// on any failure nothing is left open.
func (r *Resolver) Relational(ctx context.Context, cfg source.RelationalConfig) (*sql.DB, error) {
	if err := source.NewRelational(cfg).Validate(); err != nil {
		return nil, err
	}
	driverName, dsn := DSN(cfg, r.timeout())

	open := r.Open
	if open == nil {
		open = sql.Open
	}
	db, err := open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrConnectionFailed, cfg.DriverName(), err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, Classify(err)
	}
	return db, nil
}

// Tabular validates a file path in a fixed order and returns it unchanged.
// Content is only read once the extension is known to be supported.
func (r *Resolver) Tabular(cfg source.TabularConfig) (string, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", ErrMissingPath
	}
	stat := r.Stat
	if stat == nil {
		stat = os.Stat
	}
	info, err := stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}
		return "", fmt.Errorf("%w: %w", ErrUnreadableContent, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrPathIsDirectory, path)
	}
	if _, err := workbook.DetectFormat(path); err != nil {
		return "", err
	}
	probe := r.Probe
	if probe == nil {
		probe = workbook.Probe
	}
	if err := probe(path); err != nil {
		if errors.Is(err, ErrUnreadableContent) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrUnreadableContent, err)
	}
	return path, nil
}

// Check resolves every sub-source of cfg and releases what it opened.
func (r *Resolver) Check(ctx context.Context, cfg source.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	switch cfg.Kind {
	case source.KindRelational:
		return r.checkRelational(ctx, *cfg.Relational)
	case source.KindTabular:
		_, err := r.Tabular(*cfg.Tabular)
		return err
	case source.KindCombined:
		if err := r.checkRelational(ctx, *cfg.Relational); err != nil {
			return err
		}
		_, err := r.Tabular(*cfg.Tabular)
		return err
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidConfig, cfg.Kind)
	}
}

func (r *Resolver) checkRelational(ctx context.Context, cfg source.RelationalConfig) error {
	db, err := r.Relational(ctx, cfg)
	if err != nil {
		return err
	}
	return db.Close()
}

func (r *Resolver) timeout() time.Duration {
	if r.ConnectTimeout > 0 {
		return r.ConnectTimeout
	}
	return 10 * time.Second
}

// DSN returns the database/sql driver name and data source name for cfg.
func DSN(cfg source.RelationalConfig, timeout time.Duration) (string, string) {
	addr := net.JoinHostPort(strings.TrimSpace(cfg.Host), strconv.Itoa(cfg.PortOrDefault()))
	switch cfg.DriverName() {
	case source.DriverPostgres:
		query := url.Values{}
		query.Set("sslmode", "prefer")
		if seconds := int(timeout.Seconds()); seconds > 0 {
			query.Set("connect_timeout", strconv.Itoa(seconds))
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     addr,
			Path:     "/" + cfg.Database,
			RawQuery: query.Encode(),
		}
		return "pgx", u.String()
	default:
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = addr
		mc.DBName = cfg.Database
		mc.ParseTime = true
		mc.Timeout = timeout
		return "mysql", mc.FormatDSN()
	}
}

// Classify maps a driver connection error onto the connectivity sentinels.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1044, 1045, 1698:
			return fmt.Errorf("%w: invalid username or password: %w", ErrAuthentication, err)
		case 1049:
			return fmt.Errorf("%w: %w", ErrDatabaseNotFound, err)
		}
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "28P01", "28000":
			return fmt.Errorf("%w: invalid username or password: %w", ErrAuthentication, err)
		case "3D000":
			return fmt.Errorf("%w: %w", ErrDatabaseNotFound, err)
		}
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mysql.ErrInvalidConn) {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
}

// IsConnectivity reports whether err came from establishing a connection.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrDatabaseNotFound) ||
		errors.Is(err, ErrUnreachable) ||
		errors.Is(err, ErrConnectionFailed)
}

package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

// Config selects and tunes the backing database.
type Config struct {
	Driver          string // sqlite, postgres, mysql, mssql
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Store persists API keys, widgets and ratings in a relational database.
// Uniqueness of keys and of active client names is enforced by the database
// itself so that concurrent writers cannot break it.
type Store struct {
	db      *sqlx.DB
	dialect *dialect
	now     func() time.Time
	logger  *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces time.Now as the source of created_at and deactivated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for key lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open connects to the configured database and applies migrations.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnsupportedDriver, driver, strings.Join(Drivers(), ", "))
	}

	dsn, err := normalizeDSN(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
		if cfg.ConnMaxIdleTime > 0 {
			db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
		}
	}

	s := &Store{
		db:      db,
		dialect: d,
		now:     time.Now,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s database: %w", driver, err)
	}
	return s, nil
}

// normalizeDSN fills in driver options the store depends on.
func normalizeDSN(driver, dsn string) (string, error) {
	switch driver {
	case "sqlite":
		if dsn == "" || dsn == ":memory:" {
			return ":memory:?_pragma=foreign_keys(1)&_time_format=sqlite", nil
		}
		if strings.Contains(dsn, "?") {
			return dsn, nil
		}
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", fmt.Errorf("create data dir: %w", err)
			}
		}
		return dsn + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite", nil
	case "mysql":
		// created_at and deactivated_at must scan into time.Time.
		cfg, err := mysqldriver.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		return cfg.FormatDSN(), nil
	default:
		if dsn == "" {
			return "", fmt.Errorf("database.dsn is required for driver %s", driver)
		}
		return dsn, nil
	}
}

// Close closes the underlying database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the configured driver name (sqlite, postgres, ...).
func (s *Store) Driver() string {
	return s.dialect.name
}

// timestamp returns the current time at the precision the schema stores
// (microseconds), so values read back compare equal to values written.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// insert runs an INSERT built by the dialect and returns the generated ID.
func (s *Store) insert(ctx context.Context, ext sqlx.ExtContext, table string, cols []string, args ...interface{}) (int64, error) {
	q := ext.Rebind(s.dialect.insertSQL(table, cols))

	if s.dialect.insertID == idLastInsert {
		result, err := ext.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, err
		}
		return result.LastInsertId()
	}

	var id int64
	if err := ext.QueryRowxContext(ctx, q, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store is the durable state of the platform: tenants, users, connections,
// and audit logs, backed by sqlx over sqlite, postgres, or mysql.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Config selects the backing database. Driver is one of "sqlite",
// "postgres", "mysql". For sqlite an empty DSN means a database file inside
// DataDir; DSN ":memory:" gives an in-memory database for tests.
type Config struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	DataDir string `yaml:"data_dir"`
}

// Open connects to the configured database and runs migrations.
func Open(cfg Config) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}

	var db *sqlx.DB
	var err error

	switch driver {
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" || dsn == ":memory:" {
			if dsn == ":memory:" {
				dsn = ":memory:?_journal_mode=WAL"
			} else {
				if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
					return nil, fmt.Errorf("create data dir: %w", err)
				}
				dsn = filepath.Join(cfg.DataDir, "zapgate.db") + "?_journal_mode=WAL&_busy_timeout=5000"
			}
		}
		db, err = sqlx.Connect("sqlite", dsn)
		if err == nil {
			db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
			_, err = db.Exec("PRAGMA foreign_keys = ON")
		}
	case "postgres":
		db, err = sqlx.Connect("pgx", cfg.DSN)
	case "mysql":
		db, err = sqlx.Connect("mysql", cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind converts ?-style placeholders to the driver's bindvar form.
func (s *Store) rebind(q string) string {
	return s.db.Rebind(q)
}

// namedInsert executes a named INSERT and returns the new row id. Postgres
// has no LastInsertId, so the query is extended with RETURNING there.
func (s *Store) namedInsert(ctx context.Context, query string, arg interface{}) (int64, error) {
	if s.driver == "postgres" {
		rows, err := s.db.NamedQueryContext(ctx, query+" RETURNING id", arg)
		if err != nil {
			return 0, err
		}
		defer rows.Close()
		var id int64
		if rows.Next() {
			if err := rows.Scan(&id); err != nil {
				return 0, err
			}
		}
		return id, rows.Err()
	}

	result, err := s.db.NamedExecContext(ctx, query, arg)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

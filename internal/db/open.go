package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// Options tune how a store connection is opened.
type Options struct {
	// Database overrides the database named in the DSN (postgres only).
	Database string
	// ConnectTimeout bounds the dial and the startup ping.
	ConnectTimeout time.Duration
}

// Open opens the store for driver ("postgres" or "sqlite") and pings it. SQLite stores get their
// schema created in place. Caller must call Close when done.
func Open(ctx context.Context, driver, dsn string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("db: empty DSN")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	switch driver {
	case Postgres.Name:
		return openPostgres(ctx, dsn, opts)
	case SQLite.Name:
		return openSQLite(ctx, dsn, opts)
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", driver)
	}
}

func openPostgres(ctx context.Context, dsn string, opts Options) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("db: parse dsn: %w", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	cfg.ConnectTimeout = opts.ConnectTimeout
	db := stdlib.OpenDB(*cfg)
	if err := ping(ctx, db, opts.ConnectTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func openSQLite(ctx context.Context, dsn string, opts Options) (*sql.DB, error) {
	db, err := sql.Open(SQLite.Name, sqliteDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)
	if err := ping(ctx, db, opts.ConnectTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ApplySQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ping(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("db: ping: %w", err)
	}
	return nil
}

// sqliteDSN turns a bare path into a file: URI with a busy timeout.
func sqliteDSN(dsn string) string {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	return "file:" + dsn + "?_pragma=busy_timeout(10000)"
}

package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/givlyn/backupd/internal/utils"
	"github.com/jmoiron/sqlx"
)

const memoryPath = ":memory:"

// pragmas applied on open. The history journal is small and written once per run.
const defaultPragma = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA synchronous=NORMAL;
PRAGMA temp_store=MEMORY;
`

type options struct {
	path            string
	pragmas         string
	maxOpenConns    int
	connMaxLifetime time.Duration
}

type Option func(*options)

// WithPath sets the database file. The default is an in-memory database.
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// WithPragmas replaces the default pragmas
func WithPragmas(pragmas string) Option {
	return func(o *options) {
		o.pragmas = pragmas
	}
}

func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		o.maxOpenConns = n
	}
}

func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *options) {
		o.connMaxLifetime = d
	}
}

// Open connects to a sqlite database with the build's driver, creating the file's parent dir
func Open(opts ...Option) (*sqlx.DB, error) {
	o := &options{
		path:    memoryPath,
		pragmas: defaultPragma,
		// a single writer avoids SQLITE_BUSY between our own connections
		maxOpenConns: 1,
	}
	for _, opt := range opts {
		opt(o)
	}

	dsn := memoryPath
	if o.path != memoryPath {
		if err := utils.EnsureParent(o.path); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", o.path)
	}

	slog.Debug("db open", "driver", driverID, "path", o.path)
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if o.maxOpenConns > 0 {
		db.SetMaxOpenConns(o.maxOpenConns)
	}
	if o.connMaxLifetime > 0 {
		db.SetConnMaxLifetime(o.connMaxLifetime)
	}

	if o.pragmas != "" {
		if _, err := db.Exec(o.pragmas); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragmas: %w", err)
		}
	}

	return db, nil
}

// Migrate runs schema statements inside one transaction
func Migrate(ctx context.Context, db *sqlx.DB, statements ...string) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return tx.Commit()
}

// Driver names the sqlite driver compiled into this build
func Driver() string {
	return driverID
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/relmap/internal/changelog"
	"github.com/roach88/relmap/internal/dialect"
)

// Store executes compiled statements against a database/sql connection.
// Every logical write runs in one transaction.
type Store struct {
	db     *sql.DB
	d      dialect.Dialect
	logger *slog.Logger
	ids    changelog.IDGenerator
	clock  *changelog.Clock
	limit  int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Statements go to debug level, committed
// writes and insert fallbacks to info, rollbacks to warn.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithIDGenerator sets the change-set id generator. Defaults to UUIDv7.
func WithIDGenerator(g changelog.IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

// WithAuditLimit overrides the dialect's change-entry value limit.
func WithAuditLimit(n int) Option {
	return func(s *Store) { s.limit = n }
}

// Open creates or opens a SQLite database at the given path and prepares
// the audit tables.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open(dialect.SQLite, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s := newStore(db, dialect.NewSQLite(), opts)
	if err := s.InitAudit(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Connect opens a database of the named dialect ("sqlite3", "postgres" or
// "mysql") and prepares the audit tables.
func Connect(ctx context.Context, dialectName, dsn string, opts ...Option) (*Store, error) {
	d, err := dialect.ByName(dialectName)
	if err != nil {
		return nil, err
	}
	if d.Name() == dialect.SQLite {
		return Open(dsn, opts...)
	}
	if d.Name() == dialect.MySQL {
		if dsn, err = foundRowsDSN(dsn); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open(d.Name(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := newStore(db, d, opts)
	if err := s.InitAudit(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// foundRowsDSN makes MySQL report matched rather than changed rows, so an
// update that rewrites identical values still counts as a hit.
func foundRowsDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// OpenDB wraps an open connection. Nothing is executed until the first
// call; InitAudit must run before SaveAudited.
func OpenDB(db *sql.DB, d dialect.Dialect, opts ...Option) *Store {
	return newStore(db, d, opts)
}

func newStore(db *sql.DB, d dialect.Dialect, opts []Option) *Store {
	s := &Store{
		db:     db,
		d:      d,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		ids:    changelog.UUIDv7Generator{},
		clock:  changelog.NewClockAt(0),
		limit:  d.Flags().AuditValueLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the dialect statements are compiled for.
func (s *Store) Dialect() dialect.Dialect {
	return s.d
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

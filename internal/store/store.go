// Package store persists credentials, call logs, jobs, proposals, profiles
// and service listings in a SQL database.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations
var migrationsFS embed.FS

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Options configures how the store connects to its database.
type Options struct {
	Driver       string // sqlite, postgres or mysql
	DSN          string // for sqlite, a file path or ":memory:"
	MaxOpenConns int
	MaxRetries   uint64        // retries for transient write failures
	RetryBase    time.Duration // first backoff interval
}

// Store is the marketplace's persistence layer. All methods are safe for
// concurrent use.
type Store struct {
	db         *sqlx.DB
	driver     string
	maxRetries uint64
	retryBase  time.Duration
}

// NewStore opens a SQLite store under dataDir. Pass empty string for an
// in-memory database.
func NewStore(dataDir string) (*Store, error) {
	dsn := ":memory:"
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "clawjobs.db")
	}
	return Open(context.Background(), Options{Driver: DriverSQLite, DSN: dsn})
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, opts Options) (*Store, error) {
	var (
		sqlDriver string
		dsn       = opts.DSN
	)
	switch opts.Driver {
	case DriverSQLite, "":
		opts.Driver = DriverSQLite
		sqlDriver = "sqlite"
		if dsn == "" {
			dsn = ":memory:"
		}
		if dsn != ":memory:" && !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	case DriverPostgres:
		sqlDriver = "pgx"
	case DriverMySQL:
		sqlDriver = "mysql"
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true // timestamps scan into time.Time
		dsn = cfg.FormatDSN()
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := sqlx.ConnectContext(ctx, sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", opts.Driver, err)
	}

	if opts.Driver == DriverSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	} else if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	s := newStore(db, opts)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// NewWithDB wraps an already-open connection without running migrations.
// driver selects the placeholder style and error classification.
func NewWithDB(db *sql.DB, driver string) *Store {
	sqlDriver := driver
	if driver == DriverPostgres {
		sqlDriver = "pgx"
	}
	return newStore(sqlx.NewDb(db, sqlDriver), Options{Driver: driver})
}

func newStore(db *sqlx.DB, opts Options) *Store {
	s := &Store{
		db:         db,
		driver:     opts.Driver,
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBase,
	}
	if s.maxRetries == 0 {
		s.maxRetries = 3
	}
	if s.retryBase <= 0 {
		s.retryBase = 20 * time.Millisecond
	}
	return s
}

// Migrate applies all pending schema migrations for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	var dialect goose.Dialect
	switch s.driver {
	case DriverSQLite:
		dialect = goose.DialectSQLite3
	case DriverPostgres:
		dialect = goose.DialectPostgres
	case DriverMySQL:
		dialect = goose.DialectMySQL
	default:
		return fmt.Errorf("no migrations for driver %q", s.driver)
	}

	fsys, err := fs.Sub(migrationsFS, "migrations/"+s.driver)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	provider, err := goose.NewProvider(dialect, s.db.DB, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Driver returns the configured database driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func now() time.Time {
	return time.Now().UTC()
}

// withRetry runs fn, retrying with exponential backoff while it fails with a
// transient database error.
func (s *Store) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.retryBase))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// inTx runs fn inside a single transaction, retrying the whole transaction on
// transient failures. fn must only use tx: SQLite stores hold one connection.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

// isTransient reports whether err is a serialization failure, deadlock or
// busy database that is worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errCASMiss) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		// ER_LOCK_DEADLOCK, ER_LOCK_WAIT_TIMEOUT
		return myErr.Number == 1213 || myErr.Number == 1205
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

// notFound converts sql.ErrNoRows to ErrNotFound and wraps everything else.
func notFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

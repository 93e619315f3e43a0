// Package sqlstore implements storage.Storage on top of database/sql.
//
// The SQL used here is the common subset understood by SQLite and the MySQL
// protocol servers (MySQL, Dolt). Everything backend-specific, from the schema
// to the way a write transaction is started, comes from a Dialect supplied by
// the sqlite and mysql packages.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"

	"github.com/revledger/revledger/internal/storage"
)

// Dialect describes the backend-specific parts of the store.
type Dialect interface {
	// DriverName is the database/sql driver name, used by sqlx for bind types.
	DriverName() string
	// Schema returns the DDL statements, executed one at a time on open.
	Schema() []string
	// BeginStatement starts a write transaction on a dedicated connection.
	BeginStatement() string
	// LockLineageQuery returns a statement that locks every row of a lineage,
	// or "" when BeginStatement already serializes writers.
	LockLineageQuery() string
	// UpsertStatement builds an insert that overwrites the non-key columns on
	// a key collision.
	UpsertStatement(table string, columns, keys []string) string
	// IsConstraintError reports unique, check and trigger violations.
	IsConstraintError(err error) bool
	// IsRetryable reports transient errors (busy database, dropped connection).
	IsRetryable(err error) bool
	// BeforeClose runs just before the pool is closed.
	BeforeClose(db *sql.DB)
}

// Store implements storage.Storage for any Dialect.
type Store struct {
	db          *sqlx.DB
	dialect     Dialect
	lockTimeout time.Duration
	closed      atomic.Bool // Tracks whether Close() has been called
}

// Verify Store implements storage.Storage at compile time
var _ storage.Storage = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds how long a transaction keeps retrying to begin while
// the database is busy.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// Open wraps an already opened pool, verifies the connection and applies the
// dialect's schema.
func Open(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*Store, error) {
	s := &Store{
		db:          sqlx.NewDb(db, dialect.DriverName()),
		dialect:     dialect,
		lockTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.withRetry(ctx, func() error { return db.PingContext(ctx) }); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range dialect.Schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return s, nil
}

// DB exposes the underlying pool for tests and maintenance commands.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.dialect.BeforeClose(s.db.DB)
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return nil
}

func (s *Store) newBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = s.lockTimeout
	return bo
}

// withRetry executes an operation with retry for transient errors.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && s.dialect.IsRetryable(err) {
			return err // Retryable - backoff will retry
		}
		if err != nil {
			return backoff.Permanent(err) // Non-retryable - stop immediately
		}
		return nil
	}, backoff.WithContext(s.newBackoff(), ctx))
}

// queryer is the subset of *sqlx.DB and *sqlx.Conn used by the query helpers,
// so the same code serves reads outside and inside a transaction.
type queryer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

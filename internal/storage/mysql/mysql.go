// Package mysql opens the server backend: any MySQL-protocol server, such as
// a Dolt sql-server or MySQL 8.
package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/revledger/revledger/internal/storage/sqlstore"
)

// MySQL server error numbers the store reacts to.
const (
	errDupEntry         = 1062
	errLockWaitTimeout  = 1205
	errLockDeadlock     = 1213
	errSignalException  = 1644
	errCheckConstraint  = 3819
	errNoReferencedRow2 = 1452
)

// New connects to the server described by dsn (go-sql-driver format,
// e.g. "user:pass@tcp(127.0.0.1:3306)/revledger") and applies the schema.
func New(ctx context.Context, dsn string, opts ...sqlstore.Option) (*sqlstore.Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	// Report matched rows, not changed rows, so a no-op UPDATE is not
	// mistaken for a missing row.
	cfg.ClientFoundRows = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := sqlstore.Open(ctx, db, Dialect{}, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Dialect is the sqlstore.Dialect for MySQL-protocol servers.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) DriverName() string { return "mysql" }

func (Dialect) Schema() []string { return schema }

func (Dialect) BeginStatement() string { return "START TRANSACTION" }

// LockLineageQuery takes row locks on every revision of a lineage so two
// writers on different connections queue behind each other.
func (Dialect) LockLineageQuery() string {
	return "SELECT id FROM documents WHERE lineage_id = ? FOR UPDATE"
}

func (Dialect) UpsertStatement(table string, columns, keys []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	var sets []string
	for _, c := range columns {
		if !isKey[c] {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		table, strings.Join(columns, ", "), placeholders, strings.Join(sets, ", "))
}

func (Dialect) IsConstraintError(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	switch me.Number {
	case errDupEntry, errSignalException, errCheckConstraint, errNoReferencedRow2:
		return true
	}
	return false
}

func (Dialect) IsRetryable(err error) bool {
	return isRetryableError(err)
}

func (Dialect) BeforeClose(*sql.DB) {}

// isRetryableError returns true if the error is a transient connection or
// lock error that should be retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == errLockDeadlock || me.Number == errLockWaitTimeout
	}
	errStr := strings.ToLower(err.Error())
	for _, transient := range []string{
		"broken pipe",
		"connection reset",
		"connection refused",
		"gone away",
		"i/o timeout",
	} {
		if strings.Contains(errStr, transient) {
			return true
		}
	}
	return false
}

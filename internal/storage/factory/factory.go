// Package factory provides functions for creating storage backends based on configuration.
package factory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/revledger/revledger/internal/storage"
	"github.com/revledger/revledger/internal/storage/mysql"
	"github.com/revledger/revledger/internal/storage/sqlite"
	"github.com/revledger/revledger/internal/storage/sqlstore"
)

// Backend names accepted by New.
const (
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
)

// BackendFactory is a function that creates a storage backend
type BackendFactory func(ctx context.Context, opts Options) (storage.Storage, error)

// backendRegistry holds registered backend factories
var backendRegistry = map[string]BackendFactory{
	BackendSQLite: func(ctx context.Context, opts Options) (storage.Storage, error) {
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		return sqlite.New(ctx, opts.Path, sqlstore.WithLockTimeout(opts.LockTimeout))
	},
	BackendMySQL: func(ctx context.Context, opts Options) (storage.Storage, error) {
		if opts.DSN == "" {
			return nil, fmt.Errorf("mysql backend requires mysql.dsn")
		}
		return mysql.New(ctx, opts.DSN, sqlstore.WithLockTimeout(opts.LockTimeout))
	},
}

// RegisterBackend registers a storage backend factory
func RegisterBackend(name string, factory BackendFactory) {
	backendRegistry[name] = factory
}

// Options configures how the storage backend is opened
type Options struct {
	Path        string        // SQLite database file
	DSN         string        // MySQL / Dolt sql-server DSN
	LockTimeout time.Duration // How long to retry a busy database
}

// New creates a storage backend based on the backend type. An empty backend
// means sqlite.
func New(ctx context.Context, backend string, opts Options) (storage.Storage, error) {
	if backend == "" {
		backend = BackendSQLite
	}
	factory, ok := backendRegistry[backend]
	if !ok {
		return nil, fmt.Errorf("unknown storage backend: %s (supported: %s)", backend, strings.Join(Backends(), ", "))
	}
	return factory(ctx, opts)
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	names := make([]string, 0, len(backendRegistry))
	for name := range backendRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/revledger/revledger/internal/storage"
	"github.com/revledger/revledger/internal/types"
)

// Verify txStorage implements storage.Transaction at compile time
var _ storage.Transaction = (*txStorage)(nil)

// txStorage implements the storage.Transaction interface.
// It wraps a dedicated database connection with an active transaction.
type txStorage struct {
	conn *sqlx.Conn // Dedicated connection for the transaction
	exec executor
	lock string
}

// RunInTransaction executes a function within a database transaction.
//
// The transaction is started with the dialect's begin statement on a
// dedicated connection, so SQLite takes its write lock up front (BEGIN
// IMMEDIATE) and MySQL-protocol servers get an explicit START TRANSACTION.
//
// Transaction lifecycle:
//  1. Acquire dedicated connection from pool
//  2. Begin transaction with retry while the database is busy
//  3. Execute user function with Transaction interface
//  4. On success: COMMIT
//  5. On error or panic: ROLLBACK
//
// Panic safety: If the callback panics, the transaction is rolled back
// and the panic is re-raised to the caller.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	// Acquire a dedicated connection for the transaction.
	// This ensures all operations in the transaction use the same connection.
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for transaction: %w", err)
	}
	defer func() { _ = conn.Close() }()

	begin := s.dialect.BeginStatement()
	if err := s.withRetry(ctx, func() error {
		_, err := conn.ExecContext(ctx, begin)
		return err
	}); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Track commit state for cleanup
	committed := false
	defer func() {
		if !committed {
			// Use background context to ensure rollback completes even if ctx is cancelled
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	// Handle panics: rollback and re-raise
	defer func() {
		if r := recover(); r != nil {
			// Rollback will happen via the committed=false check above
			panic(r)
		}
	}()

	tx := &txStorage{
		conn: conn,
		exec: executor{q: conn, dialect: s.dialect},
		lock: s.dialect.LockLineageQuery(),
	}

	if err := fn(tx); err != nil {
		return err // Rollback happens in defer
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return tx.exec.wrapWriteError("commit transaction", err)
	}
	committed = true
	return nil
}

// LockLineage locks the rows of a lineage for the rest of the transaction.
func (t *txStorage) LockLineage(ctx context.Context, lineageID string) error {
	if t.lock == "" {
		return nil
	}
	var ids []string
	if err := t.conn.SelectContext(ctx, &ids, t.lock, lineageID); err != nil {
		return wrapDBError(fmt.Sprintf("lock lineage %s", lineageID), err)
	}
	return nil
}

func (t *txStorage) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	return t.exec.getDocument(ctx, id)
}

func (t *txStorage) ListLineage(ctx context.Context, lineageID string) ([]*types.Document, error) {
	return t.exec.listLineage(ctx, lineageID)
}

func (t *txStorage) ListModuleInstances(ctx context.Context, documentID string) ([]*types.ModuleInstance, error) {
	return t.exec.listModuleInstances(ctx, documentID)
}

func (t *txStorage) GetAction(ctx context.Context, id string) (*types.Action, error) {
	return t.exec.getAction(ctx, id)
}

func (t *txStorage) ListActions(ctx context.Context, documentID string) ([]*types.Action, error) {
	return t.exec.listActions(ctx, documentID)
}

func (t *txStorage) GetOrganizationSettings(ctx context.Context, organizationID string) (*types.OrganizationSettings, error) {
	return t.exec.getOrganizationSettings(ctx, organizationID)
}

// CreateDocument inserts a new document revision within the transaction.
func (t *txStorage) CreateDocument(ctx context.Context, doc *types.Document) error {
	return t.exec.createDocument(ctx, doc)
}

// UpdateDocument applies whitelisted column updates within the transaction.
func (t *txStorage) UpdateDocument(ctx context.Context, id string, updates map[string]interface{}) error {
	return t.exec.updateDocument(ctx, id, updates)
}

func (t *txStorage) UpsertModuleInstance(ctx context.Context, m *types.ModuleInstance) error {
	return t.exec.upsertModuleInstance(ctx, m)
}

func (t *txStorage) DeleteModuleInstance(ctx context.Context, documentID, moduleKey string) error {
	return t.exec.deleteModuleInstance(ctx, documentID, moduleKey)
}

func (t *txStorage) CreateAction(ctx context.Context, action *types.Action) error {
	return t.exec.createAction(ctx, action)
}

func (t *txStorage) UpdateAction(ctx context.Context, id string, updates map[string]interface{}) error {
	return t.exec.updateAction(ctx, id, updates)
}

func (t *txStorage) SetOrganizationSettings(ctx context.Context, settings *types.OrganizationSettings) error {
	return t.exec.setOrganizationSettings(ctx, settings)
}

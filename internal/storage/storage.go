// Package storage provides shared types for document storage.
//
// Concrete implementations live in the sqlstore sub-package and are opened
// through the sqlite (embedded) and mysql (server) backends. This package
// holds the interfaces that the lifecycle engine and its consumers depend on.
package storage

import (
	"context"
	"errors"

	"github.com/revledger/revledger/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist in the database.
// It is the same value as types.ErrNotFound so callers can match either.
var ErrNotFound = types.ErrNotFound

// ErrConflict is returned when a write violates a unique constraint, such as a
// second issued or draft revision in one lineage.
var ErrConflict = errors.New("conflict")

// ErrClosed is returned when the store is used after Close.
var ErrClosed = errors.New("storage closed")

// Reader is the read surface shared by Storage and Transaction. Components
// that only inspect state (the issuance validator, the chain manager) accept
// a Reader so they can run both inside and outside a transaction.
type Reader interface {
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	// ListLineage returns every revision of a lineage ordered by version_number.
	ListLineage(ctx context.Context, lineageID string) ([]*types.Document, error)
	ListModuleInstances(ctx context.Context, documentID string) ([]*types.ModuleInstance, error)
	GetAction(ctx context.Context, id string) (*types.Action, error)
	ListActions(ctx context.Context, documentID string) ([]*types.Action, error)
	// GetOrganizationSettings returns defaults (approval not required) for an
	// organization without a settings row.
	GetOrganizationSettings(ctx context.Context, organizationID string) (*types.OrganizationSettings, error)
}

// Storage is the interface satisfied by *sqlstore.Store.
// Consumers depend on this interface rather than on the concrete type so that
// alternative implementations (instrumented wrappers, fakes) can be substituted.
type Storage interface {
	Reader

	// ListLineageIDs returns the lineage ids of an organization, or of every
	// organization when organizationID is empty.
	ListLineageIDs(ctx context.Context, organizationID string) ([]string, error)

	// Audit trail. There is deliberately no update or delete counterpart.
	AppendAuditEvent(ctx context.Context, event *types.AuditEvent) error
	ListAuditEvents(ctx context.Context, filter types.AuditFilter) ([]*types.AuditEvent, error)

	// Transactions
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Lifecycle
	Close() error
}

// Transaction exposes the mutating storage methods that execute within a
// single database transaction. Every lifecycle mutation runs inside one so
// that validation, chain updates and carry-forward either all land or none do.
//
// # Transaction Semantics
//
//   - All operations within the transaction share the same database connection
//   - Changes are not visible to other connections until commit
//   - If any operation returns an error, the transaction is rolled back
//   - If the callback function panics, the transaction is rolled back
//   - On successful return from the callback, the transaction is committed
//
// # Example Usage
//
//	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
//	    if err := tx.LockLineage(ctx, doc.LineageID); err != nil {
//	        return err
//	    }
//	    if err := tx.UpdateDocument(ctx, prev.ID, map[string]interface{}{
//	        "issue_status":     types.IssueSuperseded,
//	        "superseded_by_id": doc.ID,
//	        "superseded_at":    now,
//	    }); err != nil {
//	        return err // Triggers rollback
//	    }
//	    return nil // Triggers commit
//	})
type Transaction interface {
	Reader

	// LockLineage takes the row locks needed to serialize chain changes in a
	// lineage. Backends that lock the whole database on begin treat it as a no-op.
	LockLineage(ctx context.Context, lineageID string) error

	CreateDocument(ctx context.Context, doc *types.Document) error
	// UpdateDocument applies a whitelisted set of column updates.
	UpdateDocument(ctx context.Context, id string, updates map[string]interface{}) error

	UpsertModuleInstance(ctx context.Context, m *types.ModuleInstance) error
	DeleteModuleInstance(ctx context.Context, documentID, moduleKey string) error

	CreateAction(ctx context.Context, action *types.Action) error
	UpdateAction(ctx context.Context, id string, updates map[string]interface{}) error

	SetOrganizationSettings(ctx context.Context, settings *types.OrganizationSettings) error
}

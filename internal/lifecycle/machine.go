// Package lifecycle is the lifecycle state machine: the only component that
// mutates lifecycle-critical document and action fields. Each mutating
// operation runs as one transaction (validate, then mutate) under a
// per-lineage lock, and writes its audit event after the commit.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/revledger/revledger/internal/approval"
	"github.com/revledger/revledger/internal/audit"
	"github.com/revledger/revledger/internal/carryforward"
	"github.com/revledger/revledger/internal/chain"
	"github.com/revledger/revledger/internal/identity"
	"github.com/revledger/revledger/internal/issuance"
	"github.com/revledger/revledger/internal/modules"
	"github.com/revledger/revledger/internal/storage"
	"github.com/revledger/revledger/internal/types"
)

// Operation names, shared with the transports and metrics.
const (
	OpCreateDocument      = "create_document"
	OpEdit                = "edit"
	OpSetModule           = "set_module"
	OpRemoveModule        = "remove_module"
	OpIssue               = "issue"
	OpCreateRevision      = "create_revision"
	OpAddAction           = "add_action"
	OpCloseAction         = "close_action"
	OpReopenAction        = "reopen_action"
	OpSetActionStatus     = "set_action_status"
	OpRequestApproval     = "request_approval"
	OpApprove             = "approve"
	OpReject              = "reject"
	OpResetApproval       = "reset_approval"
	OpSetApprovalRequired = "set_approval_required"
	OpRecordArtifact      = "record_artifact"
	OpLifecycleHealth     = "get_lifecycle_health"
)

// Metrics receives operation outcomes. internal/telemetry provides the
// OpenTelemetry implementation.
type Metrics interface {
	OperationCompleted(ctx context.Context, op, code string, elapsed time.Duration)
	InvariantViolation(ctx context.Context, lineageID string)
}

type noopMetrics struct{}

func (noopMetrics) OperationCompleted(context.Context, string, string, time.Duration) {}
func (noopMetrics) InvariantViolation(context.Context, string)                        {}

// Machine runs lifecycle operations.
type Machine struct {
	store     storage.Storage
	directory identity.Directory
	catalog   *modules.Catalog
	gate      *approval.Gate
	validator *issuance.Validator
	chain     *chain.Manager
	carry     *carryforward.Engine
	audit     *audit.Log
	metrics   Metrics
	log       *slog.Logger
	now       func() time.Time
	newID     func(prefix string) string
	locks     *lineageLocks
}

// Option configures a Machine.
type Option func(*Machine)

// WithCatalog sets the module catalog used for key and completeness checks.
func WithCatalog(c *modules.Catalog) Option {
	return func(m *Machine) { m.catalog = c }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithIDGenerator overrides uuid-based ids. fn receives the id prefix
// ("doc" or "act").
func WithIDGenerator(fn func(prefix string) string) Option {
	return func(m *Machine) { m.newID = fn }
}

// WithAudit replaces the default audit log, which writes to the store.
func WithAudit(a *audit.Log) Option {
	return func(m *Machine) { m.audit = a }
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt Metrics) Option {
	return func(m *Machine) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// New creates a Machine over store, resolving actors through dir.
func New(store storage.Storage, dir identity.Directory, opts ...Option) *Machine {
	m := &Machine{
		store:     store,
		directory: dir,
		gate:      approval.New(),
		metrics:   noopMetrics{},
		log:       slog.Default(),
		now:       time.Now,
		newID:     func(prefix string) string { return prefix + "-" + uuid.NewString() },
		locks:     newLineageLocks(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.audit == nil {
		m.audit = audit.New(store, audit.WithLogger(m.log), audit.WithClock(m.now))
	}
	m.validator = issuance.New(m.catalog, m.gate)
	m.chain = chain.New(m.now)
	m.carry = carryforward.New(
		carryforward.WithClock(m.now),
		carryforward.WithIDGenerator(func() string { return m.newID("act") }),
	)
	return m
}

// Validator exposes the issuance validator so callers can register extra
// checks or run a dry-run preflight.
func (m *Machine) Validator() *issuance.Validator {
	return m.validator
}

// Store returns the underlying storage.
func (m *Machine) Store() storage.Storage {
	return m.store
}

// actor resolves actorID. Unknown actors are denied.
func (m *Machine) actor(ctx context.Context, op, actorID string) (*types.Actor, error) {
	a, err := m.directory.LookupActor(ctx, actorID)
	if errors.Is(err, types.ErrNotFound) {
		return nil, &types.PermissionDeniedError{ActorID: actorID, Operation: op, Resource: "anything", Detail: "unknown actor"}
	}
	if err != nil {
		return nil, fmt.Errorf("lookup actor %s: %w", actorID, err)
	}
	return a, nil
}

// inLineage runs fn in one transaction while holding both the in-process
// lineage lock and the storage-level lineage lock.
func (m *Machine) inLineage(ctx context.Context, lineageID string, fn func(tx storage.Transaction) error) error {
	unlock := m.locks.lock(lineageID)
	defer unlock()
	return m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.LockLineage(ctx, lineageID); err != nil {
			return fmt.Errorf("lock lineage %s: %w", lineageID, err)
		}
		return fn(tx)
	})
}

// observe records the outcome of op. Invariant violations are logged at
// error level and counted: they indicate a logic or concurrency bug.
func (m *Machine) observe(ctx context.Context, op string, start time.Time, err error) {
	code := types.ErrorCode(err)
	m.metrics.OperationCompleted(ctx, op, code, m.now().Sub(start))

	var iv *types.InvariantViolationError
	if errors.As(err, &iv) {
		m.metrics.InvariantViolation(ctx, iv.LineageID)
		m.log.Error("invariant violation", "op", op, "lineage_id", iv.LineageID, "error", err)
		return
	}
	if code == types.CodeInternal {
		m.log.Error("lifecycle operation failed", "op", op, "error", err)
	}
}

// getDocument loads id, wrapping storage.ErrNotFound with context.
func getDocument(ctx context.Context, r storage.Reader, id string) (*types.Document, error) {
	doc, err := r.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	return doc, nil
}

// conflictAsInvariant turns a storage conflict into an InvariantViolation:
// the storage layer refused a write that would break the chain.
func conflictAsInvariant(lineageID, detail string, err error) error {
	if errors.Is(err, storage.ErrConflict) {
		return &types.InvariantViolationError{LineageID: lineageID, Detail: detail, Err: err}
	}
	return err
}

func denied(actor *types.Actor, actorID, op, resource string) error {
	if actor != nil {
		actorID = actor.ID
	}
	return &types.PermissionDeniedError{ActorID: actorID, Operation: op, Resource: resource}
}

func invalid(op, format string, args ...any) error {
	return types.NewValidationFailed(op, types.ReasonInvalidInput, format, args...)
}

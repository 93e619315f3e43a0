// Package revledger provides the public API for embedding the document
// lifecycle engine.
//
// Most callers use Open, which wires storage, the actor directory, the module
// catalog and the audit log from one Options value, and then drive the
// returned Runtime's Engine. NewEngine is available for callers that bring
// their own storage and identity collaborators.
package revledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/revledger/revledger/internal/audit"
	"github.com/revledger/revledger/internal/identity"
	"github.com/revledger/revledger/internal/lifecycle"
	"github.com/revledger/revledger/internal/modules"
	"github.com/revledger/revledger/internal/storage"
	"github.com/revledger/revledger/internal/storage/factory"
	"github.com/revledger/revledger/internal/storage/sqlite"
	"github.com/revledger/revledger/internal/telemetry"
	"github.com/revledger/revledger/internal/types"
)

// Core types
type (
	Document         = types.Document
	ModuleInstance   = types.ModuleInstance
	Action           = types.Action
	Actor            = types.Actor
	AuditEvent       = types.AuditEvent
	Reason           = types.Reason
	LineageHealth    = types.LineageHealth
	IssueStatus      = types.IssueStatus
	ApprovalStatus   = types.ApprovalStatus
	ActionStatus     = types.ActionStatus
	Engine           = lifecycle.Machine
	Directory        = identity.Directory
	Storage          = storage.Storage
	EngineOption     = lifecycle.Option
	ValidationFailed = types.ValidationFailedError
)

// Status constants
const (
	IssueDraft      = types.IssueDraft
	IssueIssued     = types.IssueIssued
	IssueSuperseded = types.IssueSuperseded

	ApprovalNotRequired = types.ApprovalNotRequired
	ApprovalPending     = types.ApprovalPending
	ApprovalApproved    = types.ApprovalApproved
	ApprovalRejected    = types.ApprovalRejected

	ActionOpen       = types.ActionOpen
	ActionInProgress = types.ActionInProgress
	ActionClosed     = types.ActionClosed
	ActionDeferred   = types.ActionDeferred
)

// ErrorCode classifies an engine error (validation_failed, edit_locked, ...).
func ErrorCode(err error) string {
	return types.ErrorCode(err)
}

// ReasonsOf returns every reason carried by an engine error.
func ReasonsOf(err error) []Reason {
	return types.ReasonsOf(err)
}

// OpenSQLite opens (creating if needed) an embedded database.
func OpenSQLite(ctx context.Context, path string) (Storage, error) {
	return sqlite.New(ctx, path)
}

// NewEngine creates an engine over caller-supplied collaborators.
func NewEngine(store Storage, dir Directory, opts ...EngineOption) *Engine {
	return lifecycle.New(store, dir, opts...)
}

// Options configures Open.
type Options struct {
	Backend        string // "sqlite" (default) or "mysql"
	DBPath         string
	MySQLDSN       string
	LockTimeout    time.Duration
	IdentityFile   string
	ModulesCatalog string
	AuditMirror    string // optional JSONL copy of the audit trail
	Logger         *slog.Logger
}

// Runtime is an opened engine with the collaborators it owns.
type Runtime struct {
	Engine    *Engine
	Store     Storage
	Directory *identity.FileDirectory
	Catalog   *modules.Catalog
	Log       *slog.Logger
}

// Open wires a Runtime from opts. Storage is instrumented when telemetry
// has been initialised.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	dir, err := identity.LoadFile(opts.IdentityFile)
	if err != nil {
		return nil, fmt.Errorf("load actors: %w", err)
	}
	catalog, err := modules.LoadCatalog(opts.ModulesCatalog)
	if err != nil {
		return nil, err
	}

	store, err := factory.New(ctx, opts.Backend, factory.Options{
		Path:        opts.DBPath,
		DSN:         opts.MySQLDSN,
		LockTimeout: opts.LockTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", opts.Backend, err)
	}
	store = telemetry.WrapStorage(store)

	metrics := telemetry.NewLifecycleMetrics(nil)
	auditOpts := []audit.Option{audit.WithLogger(log), audit.WithFailureHook(metrics.AuditWriteFailed)}
	if opts.AuditMirror != "" {
		auditOpts = append(auditOpts, audit.WithMirror(audit.NewMirror(opts.AuditMirror)))
	}

	engine := lifecycle.New(store, dir,
		lifecycle.WithCatalog(catalog),
		lifecycle.WithLogger(log),
		lifecycle.WithMetrics(metrics),
		lifecycle.WithAudit(audit.New(store, auditOpts...)),
	)
	return &Runtime{Engine: engine, Store: store, Directory: dir, Catalog: catalog, Log: log}, nil
}

// Close releases the storage.
func (r *Runtime) Close() error {
	return r.Store.Close()
}

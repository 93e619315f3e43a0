// Package audit records lifecycle events in the append-only audit trail.
//
// Writes are best-effort: they happen after the business transaction has
// committed, and a failed write is reported to the operational log and to
// registered failure hooks instead of failing the operation that caused it.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/revledger/revledger/internal/types"
)

// Writer persists audit events. *sqlstore.Store satisfies it.
type Writer interface {
	AppendAuditEvent(ctx context.Context, event *types.AuditEvent) error
}

// Reader lists audit events.
type Reader interface {
	ListAuditEvents(ctx context.Context, filter types.AuditFilter) ([]*types.AuditEvent, error)
}

// FailureHook is called when an event could not be written. Hooks are the
// alerting path; they must not block.
type FailureHook func(ctx context.Context, event *types.AuditEvent, err error)

// Log is the audit sink.
type Log struct {
	w         Writer
	mirror    *Mirror
	log       *slog.Logger
	onFailure []FailureHook
	now       func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Log) {
		if l != nil {
			a.log = l
		}
	}
}

// WithMirror additionally appends every event to a JSONL file.
func WithMirror(m *Mirror) Option {
	return func(a *Log) { a.mirror = m }
}

// WithFailureHook registers a hook run on every failed write.
func WithFailureHook(h FailureHook) Option {
	return func(a *Log) { a.onFailure = append(a.onFailure, h) }
}

// WithClock overrides time.Now for occurred_at.
func WithClock(now func() time.Time) Option {
	return func(a *Log) { a.now = now }
}

// New creates a Log writing to w.
func New(w Writer, opts ...Option) *Log {
	l := &Log{w: w, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends event. It never returns an error. Cancellation of ctx does
// not abort the write: the business change it describes has already committed.
func (l *Log) Record(ctx context.Context, event *types.AuditEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = l.now().UTC()
	}
	ctx = context.WithoutCancel(ctx)

	if err := l.w.AppendAuditEvent(ctx, event); err != nil {
		l.log.Error("audit write failed",
			"event_type", event.EventType,
			"document_id", event.DocumentID,
			"revision", event.RevisionNumber,
			"actor", event.ActorID,
			"error", err,
		)
		for _, h := range l.onFailure {
			h(ctx, event, err)
		}
	}

	if l.mirror != nil {
		if err := l.mirror.Append(event); err != nil {
			l.log.Warn("audit mirror write failed", "path", l.mirror.Path(), "error", err)
		}
	}
}

// History returns events matching filter when the writer can also read.
func (l *Log) History(ctx context.Context, filter types.AuditFilter) ([]*types.AuditEvent, error) {
	r, ok := l.w.(Reader)
	if !ok {
		return nil, nil
	}
	return r.ListAuditEvents(ctx, filter)
}

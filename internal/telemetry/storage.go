package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/revledger/revledger/internal/storage"
	"github.com/revledger/revledger/internal/types"
)

const storageScopeName = "github.com/revledger/revledger/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in rl.storage.* metrics.
// Use WrapStorage to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStorage struct {
	inner  storage.Storage
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

var _ storage.Storage = (*InstrumentedStorage)(nil)

// WrapStorage returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	return NewInstrumentedStorage(s, Tracer(storageScopeName), Meter(storageScopeName))
}

// NewInstrumentedStorage wraps s using explicit providers.
func NewInstrumentedStorage(s storage.Storage, tracer trace.Tracer, m metric.Meter) *InstrumentedStorage {
	ops, _ := m.Int64Counter("rl.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("rl.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("rl.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStorage{inner: s, tracer: tracer, ops: ops, dur: dur, errs: errs}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// ── Documents ───────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	attrs := []attribute.KeyValue{attribute.String("rl.document.id", id)}
	ctx, span, t := s.op(ctx, "GetDocument", attrs...)
	v, err := s.inner.GetDocument(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListLineage(ctx context.Context, lineageID string) ([]*types.Document, error) {
	attrs := []attribute.KeyValue{attribute.String("rl.lineage.id", lineageID)}
	ctx, span, t := s.op(ctx, "ListLineage", attrs...)
	v, err := s.inner.ListLineage(ctx, lineageID)
	if err == nil {
		span.SetAttributes(attribute.Int("rl.result.count", len(v)))
	}
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListLineageIDs(ctx context.Context, organizationID string) ([]string, error) {
	attrs := []attribute.KeyValue{attribute.String("rl.organization.id", organizationID)}
	ctx, span, t := s.op(ctx, "ListLineageIDs", attrs...)
	v, err := s.inner.ListLineageIDs(ctx, organizationID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListModuleInstances(ctx context.Context, documentID string) ([]*types.ModuleInstance, error) {
	attrs := []attribute.KeyValue{attribute.String("rl.document.id", documentID)}
	ctx, span, t := s.op(ctx, "ListModuleInstances", attrs...)
	v, err := s.inner.ListModuleInstances(ctx, documentID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Actions ─────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetAction(ctx context.Context, id string) (*types.Action, error) {
	attrs := []attribute.KeyValue{attribute.String("rl.action.id", id)}
	ctx, span, t := s.op(ctx, "GetAction", attrs...)
	v, err := s.inner.GetAction(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListActions(ctx context.Context, documentID string) ([]*types.Action, error) {
	attrs := []attribute.KeyValue{attribute.String("rl.document.id", documentID)}
	ctx, span, t := s.op(ctx, "ListActions", attrs...)
	v, err := s.inner.ListActions(ctx, documentID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Settings ────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetOrganizationSettings(ctx context.Context, organizationID string) (*types.OrganizationSettings, error) {
	attrs := []attribute.KeyValue{attribute.String("rl.organization.id", organizationID)}
	ctx, span, t := s.op(ctx, "GetOrganizationSettings", attrs...)
	v, err := s.inner.GetOrganizationSettings(ctx, organizationID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Audit ───────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) AppendAuditEvent(ctx context.Context, event *types.AuditEvent) error {
	attrs := []attribute.KeyValue{
		attribute.String("rl.document.id", event.DocumentID),
		attribute.String("rl.audit.event_type", string(event.EventType)),
	}
	ctx, span, t := s.op(ctx, "AppendAuditEvent", attrs...)
	err := s.inner.AppendAuditEvent(ctx, event)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) ListAuditEvents(ctx context.Context, filter types.AuditFilter) ([]*types.AuditEvent, error) {
	ctx, span, t := s.op(ctx, "ListAuditEvents")
	v, err := s.inner.ListAuditEvents(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("rl.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

// ── Transactions ────────────────────────────────────────────────────────────

// RunInTransaction traces the whole transaction as one span; statements
// inside it are not traced individually.
func (s *InstrumentedStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	ctx, span, t := s.op(ctx, "RunInTransaction")
	err := s.inner.RunInTransaction(ctx, fn)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/revledger/revledger/internal/types"
)

const lifecycleScopeName = "github.com/revledger/revledger/lifecycle"

// LifecycleMetrics counts lifecycle outcomes. It satisfies
// lifecycle.Metrics, and AuditWriteFailed is an audit.FailureHook.
type LifecycleMetrics struct {
	ops        metric.Int64Counter
	dur        metric.Float64Histogram
	violations metric.Int64Counter
	auditFails metric.Int64Counter
}

// NewLifecycleMetrics creates the instruments on m, or on the global meter
// when m is nil.
func NewLifecycleMetrics(m metric.Meter) *LifecycleMetrics {
	if m == nil {
		m = Meter(lifecycleScopeName)
	}
	ops, _ := m.Int64Counter("rl.lifecycle.operations",
		metric.WithDescription("Lifecycle operations by name and result code"),
	)
	dur, _ := m.Float64Histogram("rl.lifecycle.operation.duration",
		metric.WithDescription("Lifecycle operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	violations, _ := m.Int64Counter("rl.lifecycle.invariant_violations",
		metric.WithDescription("Revision chain invariant violations detected"),
	)
	auditFails, _ := m.Int64Counter("rl.audit.write_failures",
		metric.WithDescription("Audit events that could not be written"),
	)
	return &LifecycleMetrics{ops: ops, dur: dur, violations: violations, auditFails: auditFails}
}

// OperationCompleted records one operation. code is empty on success.
func (l *LifecycleMetrics) OperationCompleted(ctx context.Context, op, code string, elapsed time.Duration) {
	if code == "" {
		code = "ok"
	}
	attrs := metric.WithAttributes(attribute.String("rl.op", op), attribute.String("rl.result", code))
	l.ops.Add(ctx, 1, attrs)
	l.dur.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}

// InvariantViolation counts a chain invariant breach.
func (l *LifecycleMetrics) InvariantViolation(ctx context.Context, lineageID string) {
	l.violations.Add(ctx, 1, metric.WithAttributes(attribute.String("rl.lineage.id", lineageID)))
}

// AuditWriteFailed counts a lost audit event.
func (l *LifecycleMetrics) AuditWriteFailed(ctx context.Context, event *types.AuditEvent, _ error) {
	l.auditFails.Add(ctx, 1, metric.WithAttributes(attribute.String("rl.audit.event_type", string(event.EventType))))
}

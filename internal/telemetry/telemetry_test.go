package telemetry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/revledger/revledger/internal/storage"
	"github.com/revledger/revledger/internal/storage/sqlite"
	"github.com/revledger/revledger/internal/types"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	return sums
}

func TestInitDisabledIsNoop(t *testing.T) {
	if err := Init(context.Background(), Config{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Enabled() {
		t.Fatal("Enabled() = true after disabled Init")
	}
	s := &InstrumentedStorage{}
	if got := WrapStorage(s); got != storage.Storage(s) {
		t.Error("WrapStorage must return the store unchanged when disabled")
	}
}

func TestLifecycleMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	lm := NewLifecycleMetrics(mp.Meter("test"))
	ctx := context.Background()

	lm.OperationCompleted(ctx, "issue", "", 5*time.Millisecond)
	lm.OperationCompleted(ctx, "issue", types.CodeValidationFailed, time.Millisecond)
	lm.InvariantViolation(ctx, "doc-1")
	lm.AuditWriteFailed(ctx, &types.AuditEvent{EventType: types.EventIssued}, errors.New("boom"))

	sums := collect(t, reader)
	if sums["rl.lifecycle.operations"] != 2 {
		t.Errorf("operations = %d, want 2", sums["rl.lifecycle.operations"])
	}
	if sums["rl.lifecycle.invariant_violations"] != 1 {
		t.Errorf("violations = %d, want 1", sums["rl.lifecycle.invariant_violations"])
	}
	if sums["rl.audit.write_failures"] != 1 {
		t.Errorf("audit failures = %d, want 1", sums["rl.audit.write_failures"])
	}
}

func TestInstrumentedStoragePassesThrough(t *testing.T) {
	ctx := context.Background()
	inner, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "rl.db"))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	s := NewInstrumentedStorage(inner, tracenoop.NewTracerProvider().Tracer("test"), mp.Meter("test"))
	defer s.Close()

	err = s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.CreateDocument(ctx, &types.Document{
			ID: "doc-1", LineageID: "doc-1", VersionNumber: 1, OrganizationID: "org",
			Title: "Survey", IssueStatus: types.IssueDraft, ApprovalStatus: types.ApprovalNotRequired,
		})
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if _, err := s.GetDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if _, err := s.GetDocument(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetDocument(missing) = %v", err)
	}

	sums := collect(t, reader)
	if sums["rl.storage.operations"] != 3 {
		t.Errorf("storage operations = %d, want 3", sums["rl.storage.operations"])
	}
	if sums["rl.storage.errors"] != 1 {
		t.Errorf("storage errors = %d, want 1", sums["rl.storage.errors"])
	}
}

func TestInitEnabledThenShutdown(t *testing.T) {
	ctx := context.Background()
	if err := Init(ctx, Config{Enabled: true, ServiceName: "rl-test", Version: "test"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !Enabled() {
		t.Fatal("Enabled() = false after enabled Init")
	}
	if err := Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if Enabled() {
		t.Fatal("Enabled() = true after Shutdown")
	}
	if err := Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

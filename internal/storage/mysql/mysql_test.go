package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/dolt"

	"github.com/revledger/revledger/internal/storage"
	"github.com/revledger/revledger/internal/types"
)

func TestUpsertStatement(t *testing.T) {
	got := Dialect{}.UpsertStatement("organization_settings",
		[]string{"organization_id", "approval_required", "updated_at"}, []string{"organization_id"})
	want := "INSERT INTO organization_settings (organization_id, approval_required, updated_at) VALUES (?, ?, ?) " +
		"ON DUPLICATE KEY UPDATE approval_required = VALUES(approval_required), updated_at = VALUES(updated_at)"
	if got != want {
		t.Fatalf("UpsertStatement() =\n%s\nwant\n%s", got, want)
	}
}

func TestIsConstraintError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&mysql.MySQLError{Number: errDupEntry, Message: "Duplicate entry"}, true},
		{fmt.Errorf("wrapped: %w", &mysql.MySQLError{Number: errSignalException}), true},
		{&mysql.MySQLError{Number: errCheckConstraint}, true},
		{&mysql.MySQLError{Number: errLockDeadlock}, false},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		if got := (Dialect{}).IsConstraintError(tt.err); got != tt.want {
			t.Errorf("IsConstraintError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{driver.ErrBadConn, true},
		{&mysql.MySQLError{Number: errLockDeadlock}, true},
		{&mysql.MySQLError{Number: errDupEntry}, false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("MySQL server has gone away"), true},
		{errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		if got := isRetryableError(tt.err); got != tt.want {
			t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

// TestDoltServerIntegration runs the chain constraints against a real Dolt
// sql-server. Set RL_TEST_CONTAINERS=1 to enable; it needs a Docker daemon.
func TestDoltServerIntegration(t *testing.T) {
	if testing.Short() || os.Getenv("RL_TEST_CONTAINERS") == "" {
		t.Skip("set RL_TEST_CONTAINERS=1 to run container tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ctr, err := dolt.Run(ctx, "dolthub/dolt-sql-server:1.43.0",
		dolt.WithDatabase("revledger"),
		dolt.WithUsername("revledger"),
		dolt.WithPassword("revledger"),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start dolt container: %v", err)
	}
	dsn, err := ctr.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	store, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	mk := func(id string, version int) *types.Document {
		return &types.Document{
			ID: id, LineageID: "lin-1", VersionNumber: version, OrganizationID: "org-a",
			Title: "Survey", IssueStatus: types.IssueDraft, ApprovalStatus: types.ApprovalNotRequired,
		}
	}

	if err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.CreateDocument(ctx, mk("lin-1", 1))
	}); err != nil {
		t.Fatalf("create first draft: %v", err)
	}

	err = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.CreateDocument(ctx, mk("doc-2", 2))
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("second draft error = %v, want ErrConflict", err)
	}

	if err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.LockLineage(ctx, "lin-1"); err != nil {
			return err
		}
		return tx.UpdateDocument(ctx, "lin-1", map[string]interface{}{
			"issue_status": types.IssueIssued,
			"issued_by":    "alice",
			"issued_at":    time.Now(),
		})
	}); err != nil {
		t.Fatalf("issue: %v", err)
	}

	err = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.UpdateDocument(ctx, "lin-1", map[string]interface{}{"title": "Changed"})
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("edit issued error = %v, want ErrConflict", err)
	}

	evt := &types.AuditEvent{DocumentID: "lin-1", LineageID: "lin-1", RevisionNumber: 1, ActorID: "alice", EventType: types.EventIssued}
	if err := store.AppendAuditEvent(ctx, evt); err != nil {
		t.Fatalf("append audit: %v", err)
	}
	if _, err := store.DB().ExecContext(ctx, "DELETE FROM audit_events"); err == nil {
		t.Fatal("audit delete succeeded, want trigger failure")
	}
}

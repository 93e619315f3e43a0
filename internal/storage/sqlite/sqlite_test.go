package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/revledger/revledger/internal/storage"
	"github.com/revledger/revledger/internal/types"
)

func TestUpsertStatement(t *testing.T) {
	got := Dialect{}.UpsertStatement("module_instances",
		[]string{"document_id", "module_key", "payload"}, []string{"document_id", "module_key"})
	want := "INSERT INTO module_instances (document_id, module_key, payload) VALUES (?, ?, ?) " +
		"ON CONFLICT(document_id, module_key) DO UPDATE SET payload = excluded.payload"
	if got != want {
		t.Fatalf("UpsertStatement() =\n%s\nwant\n%s", got, want)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		err        error
		constraint bool
		busy       bool
	}{
		{errors.New("UNIQUE constraint failed: documents.lineage_id"), true, false},
		{errors.New("revledger: audit events are append-only"), true, false},
		{errors.New("sqlite3: database is locked"), false, true},
		{errors.New("no such table: foo"), false, false},
		{nil, false, false},
	}
	for _, tt := range tests {
		if got := IsConstraintError(tt.err); got != tt.constraint {
			t.Errorf("IsConstraintError(%v) = %v, want %v", tt.err, got, tt.constraint)
		}
		if got := IsBusyError(tt.err); got != tt.busy {
			t.Errorf("IsBusyError(%v) = %v, want %v", tt.err, got, tt.busy)
		}
	}
}

func TestNewCreatesDirectoryAndReopens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dir", "rl.db")

	store, err := New(ctx, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.CreateDocument(ctx, &types.Document{
			ID: "doc-1", LineageID: "doc-1", VersionNumber: 1, OrganizationID: "org",
			Title: "Survey", IssueStatus: types.IssueDraft, ApprovalStatus: types.ApprovalNotRequired,
		})
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Schema application must be idempotent across opens.
	store, err = New(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	if _, err := store.GetDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("GetDocument after reopen: %v", err)
	}
}

// TestConcurrentWritersSerialize drives many goroutines through
// BEGIN IMMEDIATE on a file database; none may fail with a busy error.
func TestConcurrentWritersSerialize(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, filepath.Join(t.TempDir(), "rl.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer store.Close()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.RunInTransaction(ctx, func(tx storage.Transaction) error {
				return tx.SetOrganizationSettings(ctx, &types.OrganizationSettings{
					OrganizationID:   "org",
					ApprovalRequired: i%2 == 0,
				})
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent transaction failed: %v", err)
		}
	}
}

package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/revledger/revledger/internal/storage"
	"github.com/revledger/revledger/internal/types"
)

type memLineage struct {
	docs map[string]*types.Document
	fail error
}

func newMem(docs ...*types.Document) *memLineage {
	m := &memLineage{docs: map[string]*types.Document{}}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return m
}

func (m *memLineage) GetDocument(_ context.Context, id string) (*types.Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, storage.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (m *memLineage) UpdateDocument(_ context.Context, id string, updates map[string]interface{}) error {
	if m.fail != nil {
		return m.fail
	}
	d := m.docs[id]
	if v, ok := updates["issue_status"]; ok {
		d.IssueStatus = v.(types.IssueStatus)
	}
	if v, ok := updates["superseded_by_id"]; ok {
		d.SupersededByID = v.(string)
	}
	if v, ok := updates["superseded_at"]; ok {
		t := v.(time.Time)
		d.SupersededAt = &t
	}
	return nil
}

func (m *memLineage) ListLineage(_ context.Context, lineageID string) ([]*types.Document, error) {
	var out []*types.Document
	for v := 1; v <= len(m.docs)+1; v++ {
		for _, d := range m.docs {
			if d.LineageID == lineageID && d.VersionNumber == v {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

func doc(id string, v int, status types.IssueStatus) *types.Document {
	return &types.Document{ID: id, LineageID: "D1", VersionNumber: v, OrganizationID: "org", IssueStatus: status}
}

func TestInspectHealthyChain(t *testing.T) {
	d1 := doc("D1", 1, types.IssueSuperseded)
	d1.SupersededByID = "D2"
	d2 := doc("D2", 2, types.IssueIssued)
	d3 := doc("D3", 3, types.IssueDraft)

	h := Inspect("D1", []*types.Document{d1, d2, d3})
	if !h.Healthy {
		t.Fatalf("expected healthy chain, violations: %v", h.Violations)
	}
	if h.CurrentIssuedID != "D2" || h.CurrentDraftID != "D3" || h.LatestVersion != 3 {
		t.Fatalf("unexpected summary: %+v", h)
	}
	if h.IssuedCount != 1 || h.DraftCount != 1 || h.SupersededCount != 1 {
		t.Fatalf("unexpected counts: %+v", h)
	}
}

func TestInspectViolations(t *testing.T) {
	tests := []struct {
		name string
		docs func() []*types.Document
		want string
	}{
		{"two issued", func() []*types.Document {
			return []*types.Document{doc("D1", 1, types.IssueIssued), doc("D2", 2, types.IssueIssued)}
		}, "2 issued"},
		{"two drafts", func() []*types.Document {
			return []*types.Document{doc("D1", 1, types.IssueDraft), doc("D2", 2, types.IssueDraft)}
		}, "2 draft"},
		{"dangling superseded_by", func() []*types.Document {
			d := doc("D1", 1, types.IssueSuperseded)
			d.SupersededByID = "ghost"
			return []*types.Document{d}
		}, "not in the lineage"},
		{"superseded without pointer", func() []*types.Document {
			return []*types.Document{doc("D1", 1, types.IssueSuperseded)}
		}, "no superseded_by_id"},
		{"version gap", func() []*types.Document {
			return []*types.Document{doc("D1", 1, types.IssueIssued), doc("D3", 3, types.IssueDraft)}
		}, "not contiguous"},
		{"superseded by draft", func() []*types.Document {
			d := doc("D1", 1, types.IssueSuperseded)
			d.SupersededByID = "D2"
			return []*types.Document{d, doc("D2", 2, types.IssueDraft)}
		}, "superseded by draft"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Inspect("D1", tt.docs())
			if h.Healthy {
				t.Fatal("expected violations")
			}
			if !strings.Contains(strings.Join(h.Violations, "|"), tt.want) {
				t.Fatalf("violations %v missing %q", h.Violations, tt.want)
			}
		})
	}
}

func TestAssertChainInvariant(t *testing.T) {
	m := New(nil)
	ok := newMem(doc("D1", 1, types.IssueIssued), doc("D2", 2, types.IssueDraft))
	if err := m.AssertChainInvariant(context.Background(), ok, "D1"); err != nil {
		t.Fatalf("AssertChainInvariant() = %v", err)
	}

	bad := newMem(doc("D1", 1, types.IssueIssued), doc("D2", 2, types.IssueIssued))
	err := m.AssertChainInvariant(context.Background(), bad, "D1")
	var iv *types.InvariantViolationError
	if !errors.As(err, &iv) {
		t.Fatalf("AssertChainInvariant() = %v, want InvariantViolationError", err)
	}
}

func TestSupersede(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	m := New(func() time.Time { return fixed })
	mem := newMem(doc("D1", 1, types.IssueIssued), doc("D2", 2, types.IssueDraft))

	if err := m.Supersede(context.Background(), mem, "D1", "D2"); err != nil {
		t.Fatalf("Supersede() = %v", err)
	}
	d1 := mem.docs["D1"]
	if d1.IssueStatus != types.IssueSuperseded || d1.SupersededByID != "D2" {
		t.Fatalf("D1 after supersede = %+v", d1)
	}
	if d1.SupersededAt == nil || !d1.SupersededAt.Equal(fixed) {
		t.Fatalf("superseded_at = %v", d1.SupersededAt)
	}
}

func TestSupersedeRejectsBadInputs(t *testing.T) {
	m := New(nil)
	ctx := context.Background()
	var iv *types.InvariantViolationError

	notIssued := newMem(doc("D1", 1, types.IssueDraft), doc("D2", 2, types.IssueDraft))
	if err := m.Supersede(ctx, notIssued, "D1", "D2"); !errors.As(err, &iv) {
		t.Fatalf("supersede draft = %v", err)
	}

	older := newMem(doc("D1", 2, types.IssueIssued), doc("D2", 1, types.IssueDraft))
	if err := m.Supersede(ctx, older, "D1", "D2"); !errors.As(err, &iv) {
		t.Fatalf("supersede with older = %v", err)
	}

	conflict := newMem(doc("D1", 1, types.IssueIssued), doc("D2", 2, types.IssueDraft))
	conflict.fail = fmt.Errorf("update: %w", storage.ErrConflict)
	if err := m.Supersede(ctx, conflict, "D1", "D2"); !errors.As(err, &iv) {
		t.Fatalf("storage conflict = %v, want InvariantViolationError", err)
	}
}

func TestHealthMissingLineage(t *testing.T) {
	_, err := New(nil).Health(context.Background(), newMem(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Health(missing) = %v, want ErrNotFound", err)
	}
}

func TestNextVersionAndCurrent(t *testing.T) {
	docs := []*types.Document{doc("D1", 1, types.IssueSuperseded), doc("D2", 2, types.IssueIssued), doc("D3", 3, types.IssueDraft)}
	if got := NextVersion(docs); got != 4 {
		t.Fatalf("NextVersion = %d, want 4", got)
	}
	if NextVersion(nil) != 1 {
		t.Fatal("NextVersion(nil) != 1")
	}
	if CurrentIssued(docs).ID != "D2" || CurrentDraft(docs).ID != "D3" {
		t.Fatal("CurrentIssued/CurrentDraft mismatch")
	}
}

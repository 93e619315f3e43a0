// Package chain maintains revision chains: the ordered revisions sharing a
// lineage id, of which at most one is issued and at most one is a draft.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/revledger/revledger/internal/storage"
	"github.com/revledger/revledger/internal/types"
)

// Writer is the transaction surface used by Supersede.
type Writer interface {
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	UpdateDocument(ctx context.Context, id string, updates map[string]interface{}) error
}

// LineageReader lists the members of a lineage.
type LineageReader interface {
	ListLineage(ctx context.Context, lineageID string) ([]*types.Document, error)
}

// Manager enforces chain invariants.
type Manager struct {
	now func() time.Time
}

// New creates a Manager. now defaults to time.Now when nil.
func New(now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{now: now}
}

// Inspect evaluates the chain invariants over the members of one lineage.
// It never fails; problems are reported as violations.
func Inspect(lineageID string, docs []*types.Document) *types.LineageHealth {
	h := &types.LineageHealth{LineageID: lineageID, Members: len(docs)}
	byID := make(map[string]*types.Document, len(docs))
	versions := make(map[int]string, len(docs))
	var nums []int

	for _, d := range docs {
		byID[d.ID] = d
		if h.OrganizationID == "" {
			h.OrganizationID = d.OrganizationID
		} else if d.OrganizationID != h.OrganizationID {
			h.Violations = append(h.Violations,
				fmt.Sprintf("%s belongs to organization %s, lineage belongs to %s", d.ID, d.OrganizationID, h.OrganizationID))
		}
		if other, dup := versions[d.VersionNumber]; dup {
			h.Violations = append(h.Violations, fmt.Sprintf("version %d used by both %s and %s", d.VersionNumber, other, d.ID))
		}
		versions[d.VersionNumber] = d.ID
		nums = append(nums, d.VersionNumber)
		if d.VersionNumber > h.LatestVersion {
			h.LatestVersion = d.VersionNumber
		}

		switch d.IssueStatus {
		case types.IssueDraft:
			h.DraftCount++
			h.CurrentDraftID = d.ID
		case types.IssueIssued:
			h.IssuedCount++
			h.CurrentIssuedID = d.ID
		case types.IssueSuperseded:
			h.SupersededCount++
		}
	}

	if h.IssuedCount > 1 {
		h.Violations = append(h.Violations, fmt.Sprintf("%d issued revisions", h.IssuedCount))
	}
	if h.DraftCount > 1 {
		h.Violations = append(h.Violations, fmt.Sprintf("%d draft revisions", h.DraftCount))
	}
	if len(docs) > 0 {
		if root, ok := byID[lineageID]; !ok || root.VersionNumber != 1 {
			h.Violations = append(h.Violations, fmt.Sprintf("lineage root %s is not version 1 of the lineage", lineageID))
		}
	}

	for _, d := range docs {
		if d.IssueStatus != types.IssueSuperseded {
			if d.SupersededByID != "" {
				h.Violations = append(h.Violations, fmt.Sprintf("%s is %s but has superseded_by_id %s", d.ID, d.IssueStatus, d.SupersededByID))
			}
			continue
		}
		next, ok := byID[d.SupersededByID]
		switch {
		case d.SupersededByID == "":
			h.Violations = append(h.Violations, fmt.Sprintf("superseded %s has no superseded_by_id", d.ID))
		case !ok:
			h.Violations = append(h.Violations, fmt.Sprintf("%s superseded by %s, which is not in the lineage", d.ID, d.SupersededByID))
		case next.IssueStatus == types.IssueDraft:
			h.Violations = append(h.Violations, fmt.Sprintf("%s superseded by draft %s", d.ID, next.ID))
		case next.VersionNumber <= d.VersionNumber:
			h.Violations = append(h.Violations, fmt.Sprintf("%s (v%d) superseded by older %s (v%d)", d.ID, d.VersionNumber, next.ID, next.VersionNumber))
		}
	}

	sort.Ints(nums)
	for i, n := range nums {
		if n != i+1 {
			h.Violations = append(h.Violations, fmt.Sprintf("version numbers are not contiguous (expected %d, found %d)", i+1, n))
			break
		}
	}

	h.Healthy = len(h.Violations) == 0
	return h
}

// Health reports the chain state of a lineage.
func (m *Manager) Health(ctx context.Context, r LineageReader, lineageID string) (*types.LineageHealth, error) {
	docs, err := r.ListLineage(ctx, lineageID)
	if err != nil {
		return nil, fmt.Errorf("lineage health %s: %w", lineageID, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("lineage %s: %w", lineageID, storage.ErrNotFound)
	}
	h := Inspect(lineageID, docs)
	h.CheckedAt = m.now().UTC()
	return h, nil
}

// AssertChainInvariant fails with an InvariantViolationError when the
// lineage breaks any chain invariant.
func (m *Manager) AssertChainInvariant(ctx context.Context, r LineageReader, lineageID string) error {
	docs, err := r.ListLineage(ctx, lineageID)
	if err != nil {
		return fmt.Errorf("assert chain %s: %w", lineageID, err)
	}
	h := Inspect(lineageID, docs)
	if !h.Healthy {
		return &types.InvariantViolationError{LineageID: lineageID, Detail: h.Violations[0]}
	}
	return nil
}

// Supersede marks previousIssuedID as superseded by newIssuedID. It must run
// in the same transaction that issues newIssuedID, before the new revision
// takes the issued slot.
func (m *Manager) Supersede(ctx context.Context, tx Writer, previousIssuedID, newIssuedID string) error {
	prev, err := tx.GetDocument(ctx, previousIssuedID)
	if err != nil {
		return fmt.Errorf("supersede %s: %w", previousIssuedID, err)
	}
	next, err := tx.GetDocument(ctx, newIssuedID)
	if err != nil {
		return fmt.Errorf("supersede %s: %w", previousIssuedID, err)
	}
	if prev.LineageID != next.LineageID {
		return &types.InvariantViolationError{
			LineageID: prev.LineageID,
			Detail:    fmt.Sprintf("cannot supersede %s with %s from lineage %s", prev.ID, next.ID, next.LineageID),
		}
	}
	if prev.IssueStatus != types.IssueIssued {
		return &types.InvariantViolationError{
			LineageID: prev.LineageID,
			Detail:    fmt.Sprintf("cannot supersede %s: status is %s", prev.ID, prev.IssueStatus),
		}
	}
	if next.VersionNumber <= prev.VersionNumber {
		return &types.InvariantViolationError{
			LineageID: prev.LineageID,
			Detail:    fmt.Sprintf("cannot supersede v%d with older v%d", prev.VersionNumber, next.VersionNumber),
		}
	}

	err = tx.UpdateDocument(ctx, prev.ID, map[string]interface{}{
		"issue_status":     types.IssueSuperseded,
		"superseded_by_id": next.ID,
		"superseded_at":    m.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return &types.InvariantViolationError{LineageID: prev.LineageID, Detail: "supersede rejected by storage", Err: err}
		}
		return fmt.Errorf("supersede %s: %w", prev.ID, err)
	}
	return nil
}

// CurrentIssued returns the issued member of docs, or nil.
func CurrentIssued(docs []*types.Document) *types.Document {
	for _, d := range docs {
		if d.IssueStatus == types.IssueIssued {
			return d
		}
	}
	return nil
}

// CurrentDraft returns the draft member of docs, or nil.
func CurrentDraft(docs []*types.Document) *types.Document {
	for _, d := range docs {
		if d.IssueStatus == types.IssueDraft {
			return d
		}
	}
	return nil
}

// NextVersion returns max(version_number)+1 over docs.
func NextVersion(docs []*types.Document) int {
	max := 0
	for _, d := range docs {
		if d.VersionNumber > max {
			max = d.VersionNumber
		}
	}
	return max + 1
}

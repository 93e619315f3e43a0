package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/revledger/revledger/internal/approval"
	"github.com/revledger/revledger/internal/permission"
	"github.com/revledger/revledger/internal/storage"
	"github.com/revledger/revledger/internal/types"
)

// RequestApproval submits a document for internal sign-off.
func (m *Machine) RequestApproval(ctx context.Context, documentID, actorID string) (*types.Document, error) {
	return m.approvalOp(ctx, OpRequestApproval, approval.OpRequest, documentID, actorID, "")
}

// Approve signs off a pending document.
func (m *Machine) Approve(ctx context.Context, documentID, actorID string) (*types.Document, error) {
	return m.approvalOp(ctx, OpApprove, approval.OpApprove, documentID, actorID, "")
}

// Reject refuses a pending document. reason is mandatory and is reported
// back by every later issue attempt.
func (m *Machine) Reject(ctx context.Context, documentID, actorID, reason string) (*types.Document, error) {
	return m.approvalOp(ctx, OpReject, approval.OpReject, documentID, actorID, reason)
}

// ResetApproval returns a document to not_required from any approval state.
func (m *Machine) ResetApproval(ctx context.Context, documentID, actorID string) (*types.Document, error) {
	return m.approvalOp(ctx, OpResetApproval, approval.OpReset, documentID, actorID, "")
}

func (m *Machine) approvalOp(ctx context.Context, name string, op approval.Op, documentID, actorID, reason string) (doc *types.Document, err error) {
	defer func(start time.Time) { m.observe(ctx, name, start, err) }(m.now())

	actor, err := m.actor(ctx, name, actorID)
	if err != nil {
		return nil, err
	}
	doc, err = getDocument(ctx, m.store, documentID)
	if err != nil {
		return nil, err
	}
	allowed := permission.CanDecideApproval(actor, doc)
	if op == approval.OpRequest {
		allowed = permission.CanRequestApproval(actor, doc)
	}
	if !allowed {
		return nil, denied(actor, actorID, name, "document "+documentID)
	}

	err = m.inLineage(ctx, doc.LineageID, func(tx storage.Transaction) error {
		current, err := getDocument(ctx, tx, documentID)
		if err != nil {
			return err
		}
		next, err := m.gate.Transition(current.ApprovalStatus, op, reason)
		if err != nil {
			return err
		}
		return tx.UpdateDocument(ctx, documentID, map[string]interface{}{
			"approval_status":     next,
			"approval_reason":     strings.TrimSpace(reason),
			"approval_updated_by": actor.ID,
			"approval_updated_at": m.now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}
	doc, err = getDocument(ctx, m.store, documentID)
	if err != nil {
		return nil, err
	}
	m.log.Info("approval updated", "document_id", documentID, "approval_status", doc.ApprovalStatus, "actor", actor.ID)
	return doc, nil
}

// SetApprovalRequired changes whether an organization must approve documents
// before they can be issued.
func (m *Machine) SetApprovalRequired(ctx context.Context, organizationID, actorID string, required bool) (settings *types.OrganizationSettings, err error) {
	defer func(start time.Time) { m.observe(ctx, OpSetApprovalRequired, start, err) }(m.now())

	actor, err := m.actor(ctx, OpSetApprovalRequired, actorID)
	if err != nil {
		return nil, err
	}
	if !permission.CanManageSettings(actor, organizationID) {
		return nil, denied(actor, actorID, "change settings of", "organization "+organizationID)
	}
	settings = &types.OrganizationSettings{
		OrganizationID:   organizationID,
		ApprovalRequired: required,
		UpdatedBy:        actor.ID,
		UpdatedAt:        m.now().UTC(),
	}
	err = m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.SetOrganizationSettings(ctx, settings)
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("organization settings updated", "organization_id", organizationID, "approval_required", required, "actor", actor.ID)
	return settings, nil
}

// Settings returns the settings of the actor's organization.
func (m *Machine) Settings(ctx context.Context, organizationID, actorID string) (*types.OrganizationSettings, error) {
	actor, err := m.actor(ctx, "read", actorID)
	if err != nil {
		return nil, err
	}
	if !permission.CanInspect(actor, organizationID) {
		return nil, denied(actor, actorID, "read settings of", "organization "+organizationID)
	}
	return m.store.GetOrganizationSettings(ctx, organizationID)
}

package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/revledger/revledger/internal/permission"
	"github.com/revledger/revledger/internal/storage"
	"github.com/revledger/revledger/internal/types"
)

// NewAction is the input to AddAction.
type NewAction struct {
	DocumentID  string `json:"document_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority"`
	OwnerID     string `json:"owner_id,omitempty"`
	ModuleKey   string `json:"module_key,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// AddAction raises a corrective action on a draft.
func (m *Machine) AddAction(ctx context.Context, actorID string, in NewAction) (action *types.Action, err error) {
	defer func(start time.Time) { m.observe(ctx, OpAddAction, start, err) }(m.now())

	actor, err := m.actor(ctx, OpAddAction, actorID)
	if err != nil {
		return nil, err
	}
	doc, err := m.editable(ctx, m.store, OpAddAction, actor, in.DocumentID)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	action = &types.Action{
		ID:          m.newID("act"),
		DocumentID:  doc.ID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Priority:    in.Priority,
		OwnerID:     in.OwnerID,
		ModuleKey:   in.ModuleKey,
		Notes:       strings.TrimSpace(in.Notes),
		Status:      types.ActionOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if verr := action.Validate(); verr != nil {
		return nil, invalid(OpAddAction, "%v", verr)
	}
	if action.ModuleKey != "" && !m.catalog.Known(action.ModuleKey) {
		return nil, invalid(OpAddAction, "module %q is not in the catalog", action.ModuleKey)
	}

	err = m.inLineage(ctx, doc.LineageID, func(tx storage.Transaction) error {
		if _, err := m.editable(ctx, tx, OpAddAction, actor, doc.ID); err != nil {
			return err
		}
		return tx.CreateAction(ctx, action)
	})
	if err != nil {
		return nil, err
	}
	return action, nil
}

// actionContext loads an action with its parent document.
func actionContext(ctx context.Context, r storage.Reader, actionID string) (*types.Action, *types.Document, error) {
	action, err := r.GetAction(ctx, actionID)
	if err != nil {
		return nil, nil, fmt.Errorf("action %s: %w", actionID, err)
	}
	doc, err := getDocument(ctx, r, action.DocumentID)
	if err != nil {
		return nil, nil, err
	}
	return action, doc, nil
}

// appendHistory adds a stamped transition note to an action's history.
func appendHistory(history, actorID, note string, at time.Time) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return history
	}
	line := fmt.Sprintf("[%s %s] %s", at.Format(time.RFC3339), actorID, note)
	if history == "" {
		return line
	}
	return history + "\n" + line
}

// CloseAction closes an action. Closing an already closed action succeeds
// without a second audit event.
func (m *Machine) CloseAction(ctx context.Context, actionID, actorID, note string) (action *types.Action, err error) {
	defer func(start time.Time) { m.observe(ctx, OpCloseAction, start, err) }(m.now())

	actor, err := m.actor(ctx, OpCloseAction, actorID)
	if err != nil {
		return nil, err
	}
	action, doc, err := actionContext(ctx, m.store, actionID)
	if err != nil {
		return nil, err
	}
	if !permission.CanCloseAction(actor, action, doc) {
		return nil, denied(actor, actorID, "close", "action "+actionID)
	}

	var previous types.ActionStatus
	now := m.now().UTC()
	err = m.inLineage(ctx, doc.LineageID, func(tx storage.Transaction) error {
		current, err := tx.GetAction(ctx, actionID)
		if err != nil {
			return fmt.Errorf("action %s: %w", actionID, err)
		}
		previous = current.Status
		if current.Status == types.ActionClosed {
			return nil
		}
		return tx.UpdateAction(ctx, actionID, map[string]interface{}{
			"status":    types.ActionClosed,
			"closed_at": now,
			"closed_by": actor.ID,
			"history":   appendHistory(current.History, actor.ID, note, now),
		})
	})
	if err != nil {
		return nil, err
	}
	if action, err = m.store.GetAction(ctx, actionID); err != nil {
		return nil, fmt.Errorf("action %s: %w", actionID, err)
	}
	if previous == types.ActionClosed {
		return action, nil
	}

	m.audit.Record(ctx, &types.AuditEvent{
		DocumentID:     doc.ID,
		LineageID:      doc.LineageID,
		RevisionNumber: doc.VersionNumber,
		ActorID:        actor.ID,
		EventType:      types.EventActionClosed,
		OccurredAt:     now,
		Details: map[string]any{
			"action_id":       actionID,
			"previous_status": string(previous),
			"note":            strings.TrimSpace(note),
		},
	})
	return action, nil
}

// ReopenAction returns a closed action to open. Closed actions are terminal
// for everyone but organization admins; their reopen is recorded as an
// override together with the closure it undid. Reopening an action that is
// not closed is a no-op.
func (m *Machine) ReopenAction(ctx context.Context, actionID, actorID, note string) (*types.Action, error) {
	return m.moveAction(ctx, OpReopenAction, actionID, actorID, types.ActionOpen, note)
}

// SetActionStatus moves an action between open, in_progress and deferred.
// Closing goes through CloseAction. Leaving closed needs the admin override
// and is audited like a reopen.
func (m *Machine) SetActionStatus(ctx context.Context, actionID, actorID string, status types.ActionStatus, note string) (*types.Action, error) {
	if status == types.ActionClosed {
		return m.CloseAction(ctx, actionID, actorID, note)
	}
	if !status.IsValid() {
		return nil, invalid(OpSetActionStatus, "invalid action status %q", status)
	}
	return m.moveAction(ctx, OpSetActionStatus, actionID, actorID, status, note)
}

func (m *Machine) moveAction(ctx context.Context, op, actionID, actorID string, to types.ActionStatus, note string) (action *types.Action, err error) {
	defer func(start time.Time) { m.observe(ctx, op, start, err) }(m.now())

	actor, err := m.actor(ctx, op, actorID)
	if err != nil {
		return nil, err
	}
	action, doc, err := actionContext(ctx, m.store, actionID)
	if err != nil {
		return nil, err
	}
	if !permission.CanCloseAction(actor, action, doc) {
		return nil, denied(actor, actorID, "update", "action "+actionID)
	}

	var before types.Action
	now := m.now().UTC()
	err = m.inLineage(ctx, doc.LineageID, func(tx storage.Transaction) error {
		current, err := tx.GetAction(ctx, actionID)
		if err != nil {
			return fmt.Errorf("action %s: %w", actionID, err)
		}
		before = *current

		switch {
		case current.Status == to:
			return nil
		case op == OpReopenAction && current.Status != types.ActionClosed:
			return nil
		case current.Status == types.ActionClosed:
			if !permission.CanOverrideClosed(actor, doc) {
				return &types.ActionTerminalError{ActionID: actionID}
			}
			return tx.UpdateAction(ctx, actionID, map[string]interface{}{
				"status":      to,
				"closed_at":   nil,
				"closed_by":   "",
				"reopened_at": now,
				"reopened_by": actor.ID,
				"history":     appendHistory(current.History, actor.ID, note, now),
			})
		default:
			return tx.UpdateAction(ctx, actionID, map[string]interface{}{
				"status":  to,
				"history": appendHistory(current.History, actor.ID, note, now),
			})
		}
	})
	if err != nil {
		return nil, err
	}
	if action, err = m.store.GetAction(ctx, actionID); err != nil {
		return nil, fmt.Errorf("action %s: %w", actionID, err)
	}
	if before.Status != types.ActionClosed || action.Status == types.ActionClosed {
		return action, nil
	}

	details := map[string]any{
		"action_id":          actionID,
		"override":           true,
		"new_status":         string(action.Status),
		"note":               strings.TrimSpace(note),
		"previous_closed_by": before.ClosedBy,
	}
	if before.ClosedAt != nil {
		details["previous_closed_at"] = before.ClosedAt.UTC().Format(time.RFC3339Nano)
	}
	m.audit.Record(ctx, &types.AuditEvent{
		DocumentID:     doc.ID,
		LineageID:      doc.LineageID,
		RevisionNumber: doc.VersionNumber,
		ActorID:        actor.ID,
		EventType:      types.EventActionReopened,
		OccurredAt:     now,
		Details:        details,
	})
	m.log.Warn("closed action reopened by override", "action_id", actionID, "document_id", doc.ID, "actor", actor.ID)
	return action, nil
}

// ListActions returns the actions of a document.
func (m *Machine) ListActions(ctx context.Context, actorID, documentID string) ([]*types.Action, error) {
	if _, err := m.GetDocument(ctx, actorID, documentID); err != nil {
		return nil, err
	}
	return m.store.ListActions(ctx, documentID)
}

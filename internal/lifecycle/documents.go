package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/revledger/revledger/internal/modules"
	"github.com/revledger/revledger/internal/permission"
	"github.com/revledger/revledger/internal/storage"
	"github.com/revledger/revledger/internal/types"
)

// NewDocument is the input to CreateDocument.
type NewDocument struct {
	OrganizationID string `json:"organization_id"`
	Title          string `json:"title"`
	Scope          string `json:"scope,omitempty"`
}

// CreateDocument starts a new lineage with a version 1 draft.
func (m *Machine) CreateDocument(ctx context.Context, actorID string, in NewDocument) (doc *types.Document, err error) {
	defer func(start time.Time) { m.observe(ctx, OpCreateDocument, start, err) }(m.now())

	actor, err := m.actor(ctx, OpCreateDocument, actorID)
	if err != nil {
		return nil, err
	}
	if !permission.CanAuthor(actor, in.OrganizationID) {
		return nil, denied(actor, actorID, "create documents in", "organization "+in.OrganizationID)
	}

	id := m.newID("doc")
	now := m.now().UTC()
	doc = &types.Document{
		ID:             id,
		LineageID:      id,
		VersionNumber:  1,
		OrganizationID: in.OrganizationID,
		Title:          strings.TrimSpace(in.Title),
		Scope:          in.Scope,
		IssueStatus:    types.IssueDraft,
		ApprovalStatus: types.ApprovalNotRequired,
		CreatedBy:      actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if verr := doc.Validate(); verr != nil {
		return nil, invalid(OpCreateDocument, "%v", verr)
	}

	err = m.inLineage(ctx, id, func(tx storage.Transaction) error {
		return tx.CreateDocument(ctx, doc)
	})
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	m.log.Info("document created", "document_id", id, "organization_id", doc.OrganizationID, "actor", actor.ID)
	return doc, nil
}

// editable loads a document for a content change and applies the edit-path
// checks: the edit lock first, then the actor's permission.
func (m *Machine) editable(ctx context.Context, r storage.Reader, op string, actor *types.Actor, documentID string) (*types.Document, error) {
	doc, err := getDocument(ctx, r, documentID)
	if err != nil {
		return nil, err
	}
	if !permission.CanEditDocument(doc) {
		return nil, &types.EditLockedError{DocumentID: doc.ID, IssueStatus: doc.IssueStatus}
	}
	if !permission.CanAuthor(actor, doc.OrganizationID) {
		return nil, denied(actor, "", op, "document "+doc.ID)
	}
	return doc, nil
}

// lockedOnConflict maps a storage conflict raised by the content-lock
// triggers to EditLocked. It only fires when the document changed state
// between the check and the write.
func lockedOnConflict(ctx context.Context, r storage.Reader, documentID string, err error) error {
	if !errors.Is(err, storage.ErrConflict) {
		return err
	}
	status := types.IssueStatus("")
	if doc, gerr := r.GetDocument(ctx, documentID); gerr == nil {
		status = doc.IssueStatus
	}
	return &types.EditLockedError{DocumentID: documentID, IssueStatus: status}
}

// Edit patches the content fields of a draft. Non-draft documents fail with
// EditLocked and are not touched.
func (m *Machine) Edit(ctx context.Context, documentID, actorID string, patch types.DocumentPatch) (doc *types.Document, err error) {
	defer func(start time.Time) { m.observe(ctx, OpEdit, start, err) }(m.now())

	actor, err := m.actor(ctx, OpEdit, actorID)
	if err != nil {
		return nil, err
	}
	current, err := m.editable(ctx, m.store, OpEdit, actor, documentID)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, invalid(OpEdit, "nothing to change")
	}
	updates := map[string]interface{}{}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, invalid(OpEdit, "title is required")
		}
		if len(title) > types.MaxTitleLength {
			return nil, invalid(OpEdit, "title must be %d characters or less (got %d)", types.MaxTitleLength, len(title))
		}
		updates["title"] = title
	}
	if patch.Scope != nil {
		updates["scope"] = *patch.Scope
	}

	err = m.inLineage(ctx, current.LineageID, func(tx storage.Transaction) error {
		if _, err := m.editable(ctx, tx, OpEdit, actor, documentID); err != nil {
			return err
		}
		if err := tx.UpdateDocument(ctx, documentID, updates); err != nil {
			return lockedOnConflict(ctx, tx, documentID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return getDocument(ctx, m.store, documentID)
}

// SetModule creates or replaces the payload of one module on a draft.
func (m *Machine) SetModule(ctx context.Context, documentID, actorID, moduleKey string, payload json.RawMessage) (mod *types.ModuleInstance, err error) {
	defer func(start time.Time) { m.observe(ctx, OpSetModule, start, err) }(m.now())

	actor, err := m.actor(ctx, OpSetModule, actorID)
	if err != nil {
		return nil, err
	}
	current, err := m.editable(ctx, m.store, OpSetModule, actor, documentID)
	if err != nil {
		return nil, err
	}
	moduleKey = strings.TrimSpace(moduleKey)
	if moduleKey == "" {
		return nil, invalid(OpSetModule, "module key is required")
	}
	if !m.catalog.Known(moduleKey) {
		return nil, invalid(OpSetModule, "module %q is not in the catalog", moduleKey)
	}
	if !json.Valid(payload) {
		return nil, invalid(OpSetModule, "module %q payload is not valid JSON", moduleKey)
	}

	mod = &types.ModuleInstance{
		DocumentID: documentID,
		ModuleKey:  moduleKey,
		Payload:    payload,
		UpdatedBy:  actor.ID,
		UpdatedAt:  m.now().UTC(),
	}
	err = m.inLineage(ctx, current.LineageID, func(tx storage.Transaction) error {
		if _, err := m.editable(ctx, tx, OpSetModule, actor, documentID); err != nil {
			return err
		}
		if err := tx.UpsertModuleInstance(ctx, mod); err != nil {
			return lockedOnConflict(ctx, tx, documentID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if modules.IsEmpty(payload) {
		m.log.Debug("empty module payload saved; issue will be blocked", "document_id", documentID, "module", moduleKey)
	}
	return mod, nil
}

// RemoveModule detaches a module from a draft.
func (m *Machine) RemoveModule(ctx context.Context, documentID, actorID, moduleKey string) (err error) {
	defer func(start time.Time) { m.observe(ctx, OpRemoveModule, start, err) }(m.now())

	actor, err := m.actor(ctx, OpRemoveModule, actorID)
	if err != nil {
		return err
	}
	current, err := m.editable(ctx, m.store, OpRemoveModule, actor, documentID)
	if err != nil {
		return err
	}
	return m.inLineage(ctx, current.LineageID, func(tx storage.Transaction) error {
		if _, err := m.editable(ctx, tx, OpRemoveModule, actor, documentID); err != nil {
			return err
		}
		if err := tx.DeleteModuleInstance(ctx, documentID, moduleKey); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("module %q on %s: %w", moduleKey, documentID, err)
			}
			return lockedOnConflict(ctx, tx, documentID, err)
		}
		return nil
	})
}

// GetDocument returns the internal view of a document, approval included.
func (m *Machine) GetDocument(ctx context.Context, actorID, documentID string) (*types.Document, error) {
	actor, err := m.actor(ctx, "read", actorID)
	if err != nil {
		return nil, err
	}
	doc, err := getDocument(ctx, m.store, documentID)
	if err != nil {
		return nil, err
	}
	if !permission.CanRead(actor, doc) {
		return nil, denied(actor, actorID, "read", "document "+doc.ID)
	}
	return doc, nil
}

// ListLineage returns every revision of a lineage, oldest first.
func (m *Machine) ListLineage(ctx context.Context, actorID, lineageID string) ([]*types.Document, error) {
	actor, err := m.actor(ctx, "read", actorID)
	if err != nil {
		return nil, err
	}
	docs, err := m.store.ListLineage(ctx, lineageID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("lineage %s: %w", lineageID, storage.ErrNotFound)
	}
	if !permission.CanRead(actor, docs[0]) {
		return nil, denied(actor, actorID, "read", "lineage "+lineageID)
	}
	return docs, nil
}

// ListModules returns the module instances of a document.
func (m *Machine) ListModules(ctx context.Context, actorID, documentID string) ([]*types.ModuleInstance, error) {
	if _, err := m.GetDocument(ctx, actorID, documentID); err != nil {
		return nil, err
	}
	return m.store.ListModuleInstances(ctx, documentID)
}

// PublishedDocument returns the external view of an issued or superseded
// document. Drafts have no published view.
func (m *Machine) PublishedDocument(ctx context.Context, documentID string) (*types.PublishedDocument, error) {
	doc, err := getDocument(ctx, m.store, documentID)
	if err != nil {
		return nil, err
	}
	if doc.IsDraft() {
		return nil, fmt.Errorf("document %s has not been issued: %w", documentID, storage.ErrNotFound)
	}
	return doc.Published(), nil
}

// ListDocuments returns the newest revision of every lineage of an
// organization, ordered by lineage id. An empty organizationID means the
// actor's own organization.
func (m *Machine) ListDocuments(ctx context.Context, actorID, organizationID string) ([]*types.Document, error) {
	actor, err := m.actor(ctx, "read", actorID)
	if err != nil {
		return nil, err
	}
	if organizationID == "" {
		organizationID = actor.OrganizationID
	}
	if !permission.CanInspect(actor, organizationID) {
		return nil, denied(actor, actorID, "list documents of", "organization "+organizationID)
	}
	ids, err := m.store.ListLineageIDs(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list lineages: %w", err)
	}
	out := make([]*types.Document, 0, len(ids))
	for _, id := range ids {
		docs, err := m.store.ListLineage(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			out = append(out, docs[len(docs)-1])
		}
	}
	return out, nil
}

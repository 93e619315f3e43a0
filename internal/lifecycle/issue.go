package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/revledger/revledger/internal/chain"
	"github.com/revledger/revledger/internal/issuance"
	"github.com/revledger/revledger/internal/permission"
	"github.com/revledger/revledger/internal/storage"
	"github.com/revledger/revledger/internal/types"
)

// IssueResult describes a completed issue.
type IssueResult struct {
	Document    *types.Document `json:"document"`
	Superseded  *types.Document `json:"superseded,omitempty"`
	ContentHash string          `json:"content_hash"`
}

// RevisionResult describes a completed create_revision.
type RevisionResult struct {
	Document       *types.Document `json:"document"`
	SourceID       string          `json:"source_id"`
	CarriedActions []*types.Action `json:"carried_actions"`
}

// Preflight runs the issuance checklist without mutating anything and
// returns every blocking reason. An empty result means issue would pass.
func (m *Machine) Preflight(ctx context.Context, documentID, actorID string) ([]types.Reason, error) {
	actor, err := m.lookupForIssue(ctx, actorID)
	if err != nil {
		return nil, err
	}
	in, err := issuance.Load(ctx, m.store, actor, documentID)
	if err != nil {
		return nil, err
	}
	return m.validator.Evaluate(in), nil
}

// lookupForIssue resolves the actor for issuance. An unknown actor is not an
// error here: the permission check of the validator reports it alongside
// every other reason.
func (m *Machine) lookupForIssue(ctx context.Context, actorID string) (*types.Actor, error) {
	actor, err := m.directory.LookupActor(ctx, actorID)
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup actor %s: %w", actorID, err)
	}
	return actor, nil
}

// Issue moves a draft to issued. If the lineage already has an issued
// revision it is superseded in the same transaction. Either every check
// passes and both changes commit, or a ValidationFailedError listing every
// failed check is returned and nothing changes.
func (m *Machine) Issue(ctx context.Context, documentID, actorID, changeNote string) (res *IssueResult, err error) {
	defer func(start time.Time) { m.observe(ctx, OpIssue, start, err) }(m.now())

	actor, err := m.lookupForIssue(ctx, actorID)
	if err != nil {
		return nil, err
	}
	doc, err := m.store.GetDocument(ctx, documentID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, types.NewValidationFailed(OpIssue, types.ReasonDocumentNotFound, "document %s does not exist", documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("issue %s: %w", documentID, err)
	}

	var (
		previous *types.Document
		hash     string
		issuedAt = m.now().UTC()
	)
	err = m.inLineage(ctx, doc.LineageID, func(tx storage.Transaction) error {
		in, err := m.validator.Validate(ctx, tx, actor, documentID)
		if err != nil {
			return err
		}
		hash = in.Document.ContentHash(in.Modules)

		for _, sibling := range in.Lineage {
			if sibling.ID != documentID && sibling.IssueStatus == types.IssueIssued {
				previous = sibling
			}
		}
		if previous != nil {
			if err := m.chain.Supersede(ctx, tx, previous.ID, documentID); err != nil {
				return err
			}
		}

		note := strings.TrimSpace(changeNote)
		if note == "" {
			note = in.Document.ChangeNote
		}
		err = tx.UpdateDocument(ctx, documentID, map[string]interface{}{
			"issue_status": types.IssueIssued,
			"issued_by":    actor.ID,
			"issued_at":    issuedAt,
			"change_note":  note,
		})
		if err != nil {
			return conflictAsInvariant(doc.LineageID, "second issued revision rejected by storage", err)
		}
		return m.chain.AssertChainInvariant(ctx, tx, doc.LineageID)
	})
	if err != nil {
		return nil, err
	}

	res = &IssueResult{ContentHash: hash}
	if res.Document, err = getDocument(ctx, m.store, documentID); err != nil {
		return nil, err
	}
	details := map[string]any{
		"content_hash": hash,
		"change_note":  res.Document.ChangeNote,
	}
	if previous != nil {
		details["superseded_id"] = previous.ID
		details["superseded_version"] = previous.VersionNumber
		if res.Superseded, err = getDocument(ctx, m.store, previous.ID); err != nil {
			return nil, err
		}
	}
	m.audit.Record(ctx, &types.AuditEvent{
		DocumentID:     documentID,
		LineageID:      res.Document.LineageID,
		RevisionNumber: res.Document.VersionNumber,
		ActorID:        actor.ID,
		EventType:      types.EventIssued,
		OccurredAt:     issuedAt,
		Details:        details,
	})
	m.log.Info("document issued", "document_id", documentID, "version", res.Document.VersionNumber,
		"lineage_id", res.Document.LineageID, "actor", actor.ID)
	return res, nil
}

// CreateRevision opens a new draft in a lineage whose current issued
// revision is copied forward: content fields, module payloads and every open
// action. The lineage must not already have a draft.
func (m *Machine) CreateRevision(ctx context.Context, lineageID, actorID, note string) (res *RevisionResult, err error) {
	defer func(start time.Time) { m.observe(ctx, OpCreateRevision, start, err) }(m.now())

	actor, err := m.actor(ctx, OpCreateRevision, actorID)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	draft := &types.Document{
		ID:             m.newID("doc"),
		LineageID:      lineageID,
		IssueStatus:    types.IssueDraft,
		ApprovalStatus: types.ApprovalNotRequired,
		ChangeNote:     strings.TrimSpace(note),
		CreatedBy:      actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	res = &RevisionResult{Document: draft}

	err = m.inLineage(ctx, lineageID, func(tx storage.Transaction) error {
		members, err := tx.ListLineage(ctx, lineageID)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return fmt.Errorf("lineage %s: %w", lineageID, storage.ErrNotFound)
		}
		if !permission.CanAuthor(actor, members[0].OrganizationID) {
			return denied(actor, actorID, "revise", "lineage "+lineageID)
		}

		var reasons []types.Reason
		if existing := chain.CurrentDraft(members); existing != nil {
			reasons = append(reasons, types.Reason{
				Code:    types.ReasonDraftExists,
				Message: fmt.Sprintf("lineage already has draft %s (v%d)", existing.ID, existing.VersionNumber),
			})
		}
		source := chain.CurrentIssued(members)
		if source == nil {
			reasons = append(reasons, types.Reason{
				Code:    types.ReasonNoIssuedRevision,
				Message: "lineage has no issued revision to revise",
			})
		}
		if len(reasons) > 0 {
			return &types.ValidationFailedError{Operation: OpCreateRevision, Reasons: reasons}
		}

		draft.VersionNumber = chain.NextVersion(members)
		draft.OrganizationID = source.OrganizationID
		draft.Title = source.Title
		draft.Scope = source.Scope
		if err := tx.CreateDocument(ctx, draft); err != nil {
			return conflictAsInvariant(lineageID, "second draft rejected by storage", err)
		}

		mods, err := tx.ListModuleInstances(ctx, source.ID)
		if err != nil {
			return err
		}
		for _, mod := range mods {
			cp := *mod
			cp.DocumentID = draft.ID
			cp.UpdatedBy = actor.ID
			cp.UpdatedAt = now
			if err := tx.UpsertModuleInstance(ctx, &cp); err != nil {
				return fmt.Errorf("copy module %s: %w", mod.ModuleKey, err)
			}
		}

		carried, err := m.carry.CarryForward(ctx, tx, source.ID, draft.ID)
		if err != nil {
			return err
		}
		res.SourceID = source.ID
		res.CarriedActions = carried
		return m.chain.AssertChainInvariant(ctx, tx, lineageID)
	})
	if err != nil {
		return nil, err
	}

	m.audit.Record(ctx, &types.AuditEvent{
		DocumentID:     draft.ID,
		LineageID:      lineageID,
		RevisionNumber: draft.VersionNumber,
		ActorID:        actor.ID,
		EventType:      types.EventRevisionCreated,
		OccurredAt:     now,
		Details: map[string]any{
			"source_id":       res.SourceID,
			"carried_actions": len(res.CarriedActions),
			"note":            draft.ChangeNote,
		},
	})
	m.log.Info("revision created", "document_id", draft.ID, "version", draft.VersionNumber,
		"lineage_id", lineageID, "carried", len(res.CarriedActions), "actor", actor.ID)
	return res, nil
}

// RecordArtifact attaches the finalized output reference to an issued
// document. It can be set once; repeating the same reference is a no-op.
func (m *Machine) RecordArtifact(ctx context.Context, documentID, actorID, ref string) (doc *types.Document, err error) {
	defer func(start time.Time) { m.observe(ctx, OpRecordArtifact, start, err) }(m.now())

	actor, err := m.actor(ctx, OpRecordArtifact, actorID)
	if err != nil {
		return nil, err
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, invalid(OpRecordArtifact, "artifact reference is required")
	}
	doc, err = getDocument(ctx, m.store, documentID)
	if err != nil {
		return nil, err
	}
	if !permission.CanIssue(actor, doc) {
		return nil, denied(actor, actorID, "record artifacts on", "document "+documentID)
	}

	err = m.inLineage(ctx, doc.LineageID, func(tx storage.Transaction) error {
		current, err := getDocument(ctx, tx, documentID)
		if err != nil {
			return err
		}
		if current.IssueStatus != types.IssueIssued {
			return types.NewValidationFailed(OpRecordArtifact, types.ReasonArtifactNotAllowed,
				"document %s is %s; artifacts are recorded on the issued revision", documentID, current.IssueStatus)
		}
		switch current.ArtifactRef {
		case ref:
			return nil
		case "":
			return tx.UpdateDocument(ctx, documentID, map[string]interface{}{"artifact_ref": ref})
		default:
			return types.NewValidationFailed(OpRecordArtifact, types.ReasonAlreadyFinalized,
				"document %s already has artifact %s", documentID, current.ArtifactRef)
		}
	})
	if err != nil {
		return nil, err
	}
	return getDocument(ctx, m.store, documentID)
}

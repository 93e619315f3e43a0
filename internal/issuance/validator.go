// Package issuance runs the pre-flight checklist that a draft must pass
// before it can be issued. Every check runs; failures are collected so the
// caller sees all blocking reasons at once.
package issuance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/revledger/revledger/internal/approval"
	"github.com/revledger/revledger/internal/modules"
	"github.com/revledger/revledger/internal/permission"
	"github.com/revledger/revledger/internal/storage"
	"github.com/revledger/revledger/internal/types"
)

// Check IDs of the built-in checks, in evaluation order.
const (
	CheckDraftState = "draft-state"
	CheckPermission = "can-issue"
	CheckContent    = "content-complete"
	CheckApproval   = "approval"
	CheckArtifact   = "no-artifact"
	CheckChainOrder = "chain-order"
)

// Validator evaluates the registered checks.
type Validator struct {
	registry *Registry
	catalog  *modules.Catalog
	gate     *approval.Gate
}

// New creates a Validator with the built-in checks. A nil catalog requires
// no module fields; a nil gate uses the default approval rules.
func New(catalog *modules.Catalog, gate *approval.Gate) *Validator {
	if gate == nil {
		gate = approval.New()
	}
	v := &Validator{registry: NewRegistry(), catalog: catalog, gate: gate}
	for _, c := range v.builtinChecks() {
		if err := v.registry.Register(c); err != nil {
			panic(err) // built-in IDs are unique
		}
	}
	return v
}

// Registry exposes the check registry so deployments can add checks.
func (v *Validator) Registry() *Registry {
	return v.registry
}

func (v *Validator) builtinChecks() []*Check {
	return []*Check{
		{
			ID:          CheckDraftState,
			Description: "document exists and is a draft",
			Run: func(in *Input) []types.Reason {
				if in.Document.IssueStatus != types.IssueDraft {
					return []types.Reason{{Code: types.ReasonNotDraft,
						Message: fmt.Sprintf("document %s is %s, only drafts can be issued", in.Document.ID, in.Document.IssueStatus)}}
				}
				return nil
			},
		},
		{
			ID:          CheckPermission,
			Description: "actor may issue documents of this organization",
			Run: func(in *Input) []types.Reason {
				if !permission.CanIssue(in.Actor, in.Document) {
					id := "<unknown>"
					if in.Actor != nil {
						id = in.Actor.ID
					}
					return []types.Reason{{Code: types.ReasonPermissionDenied,
						Message: fmt.Sprintf("actor %s may not issue documents of %s", id, in.Document.OrganizationID)}}
				}
				return nil
			},
		},
		{
			ID:          CheckContent,
			Description: "at least one module and no empty modules",
			Run:         v.checkContent,
		},
		{
			ID:          CheckApproval,
			Description: "approval satisfied and not rejected",
			Run: func(in *Input) []types.Reason {
				return v.gate.Check(in.Settings, in.Document)
			},
		},
		{
			ID:          CheckArtifact,
			Description: "no finalized output already attached",
			Run: func(in *Input) []types.Reason {
				if in.Document.ArtifactRef != "" {
					return []types.Reason{{Code: types.ReasonAlreadyFinalized,
						Message: fmt.Sprintf("finalized output %s is already attached", in.Document.ArtifactRef)}}
				}
				return nil
			},
		},
		{
			ID:          CheckChainOrder,
			Description: "draft is the newest revision of its lineage",
			Run: func(in *Input) []types.Reason {
				for _, d := range in.Lineage {
					if d.ID != in.Document.ID && d.VersionNumber >= in.Document.VersionNumber {
						return []types.Reason{{Code: types.ReasonStaleRevision,
							Message: fmt.Sprintf("revision v%d is not newer than %s (v%d)", in.Document.VersionNumber, d.ID, d.VersionNumber)}}
					}
				}
				return nil
			},
		},
	}
}

func (v *Validator) checkContent(in *Input) []types.Reason {
	if len(in.Modules) == 0 {
		return []types.Reason{{Code: types.ReasonNoModules, Message: "document has no module instances"}}
	}
	var reasons []types.Reason
	for _, m := range in.Modules {
		if modules.IsEmpty(m.Payload) {
			reasons = append(reasons, types.Reason{Code: types.ReasonEmptyModule,
				Message: fmt.Sprintf("module %s is empty", m.ModuleKey)})
			continue
		}
		if missing := v.catalog.MissingFields(m.ModuleKey, m.Payload); len(missing) > 0 {
			reasons = append(reasons, types.Reason{Code: types.ReasonModuleIncomplete,
				Message: fmt.Sprintf("module %s is missing required fields: %s", m.ModuleKey, strings.Join(missing, ", "))})
		}
	}
	return reasons
}

// Evaluate runs every check against in and returns all reasons. A missing
// document short-circuits because no other check can be evaluated.
func (v *Validator) Evaluate(in *Input) []types.Reason {
	if in.Document == nil {
		return []types.Reason{{Code: types.ReasonDocumentNotFound, Message: "document does not exist"}}
	}
	var reasons []types.Reason
	for _, c := range v.registry.Checks() {
		reasons = append(reasons, c.Run(in)...)
	}
	return reasons
}

// Load gathers the Input for documentID from r. A missing document yields an
// Input with a nil Document rather than an error.
func Load(ctx context.Context, r storage.Reader, actor *types.Actor, documentID string) (*Input, error) {
	in := &Input{Actor: actor}
	doc, err := r.GetDocument(ctx, documentID)
	if errors.Is(err, storage.ErrNotFound) {
		return in, nil
	}
	if err != nil {
		return nil, err
	}
	in.Document = doc

	if in.Modules, err = r.ListModuleInstances(ctx, doc.ID); err != nil {
		return nil, err
	}
	if in.Settings, err = r.GetOrganizationSettings(ctx, doc.OrganizationID); err != nil {
		return nil, err
	}
	if in.Lineage, err = r.ListLineage(ctx, doc.LineageID); err != nil {
		return nil, err
	}
	return in, nil
}

// Validate loads the document and returns a *types.ValidationFailedError
// carrying every failed check, or the loaded Input when issuance may proceed.
func (v *Validator) Validate(ctx context.Context, r storage.Reader, actor *types.Actor, documentID string) (*Input, error) {
	in, err := Load(ctx, r, actor, documentID)
	if err != nil {
		return nil, fmt.Errorf("load issuance input for %s: %w", documentID, err)
	}
	if reasons := v.Evaluate(in); len(reasons) > 0 {
		return in, &types.ValidationFailedError{Operation: "issue", Reasons: reasons}
	}
	return in, nil
}

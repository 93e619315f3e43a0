// Package permission holds the stateless authorization predicates consulted
// before every lifecycle mutation. Nothing here touches storage.
package permission

import (
	"github.com/revledger/revledger/internal/types"
)

// sameOrganization is the precondition shared by every predicate.
func sameOrganization(actor *types.Actor, organizationID string) bool {
	return actor != nil && actor.OrganizationID != "" && actor.OrganizationID == organizationID
}

// CanIssue reports whether actor may issue doc: same organization and an
// edit-capable role.
func CanIssue(actor *types.Actor, doc *types.Document) bool {
	return doc != nil && sameOrganization(actor, doc.OrganizationID) && actor.CanEdit()
}

// CanAuthor reports whether actor may create documents and revisions, edit
// draft content and raise actions in organizationID.
func CanAuthor(actor *types.Actor, organizationID string) bool {
	return sameOrganization(actor, organizationID) && actor.CanEdit()
}

// CanCloseAction reports whether actor may close, reopen or otherwise move
// action. doc is the action's parent and supplies the organization. Owners
// may work their own actions without the edit role.
func CanCloseAction(actor *types.Actor, action *types.Action, doc *types.Document) bool {
	if action == nil || doc == nil || !sameOrganization(actor, doc.OrganizationID) {
		return false
	}
	return actor.CanEdit() || (action.OwnerID != "" && action.OwnerID == actor.ID)
}

// CanOverrideClosed reports whether actor may pull an action out of the
// terminal closed state. Only organization admins can.
func CanOverrideClosed(actor *types.Actor, doc *types.Document) bool {
	return doc != nil && sameOrganization(actor, doc.OrganizationID) && actor.IsAdmin()
}

// CanEditDocument is purely state based: content is mutable only while draft.
func CanEditDocument(doc *types.Document) bool {
	return doc != nil && doc.IsDraft()
}

// CanRequestApproval reports whether actor may submit doc for approval.
func CanRequestApproval(actor *types.Actor, doc *types.Document) bool {
	return doc != nil && CanAuthor(actor, doc.OrganizationID)
}

// CanDecideApproval reports whether actor may approve, reject or reset the
// approval of doc.
func CanDecideApproval(actor *types.Actor, doc *types.Document) bool {
	return doc != nil && sameOrganization(actor, doc.OrganizationID) && actor.IsAdmin()
}

// CanManageSettings reports whether actor may change organization policy.
func CanManageSettings(actor *types.Actor, organizationID string) bool {
	return sameOrganization(actor, organizationID) && actor.IsAdmin()
}

// CanRead reports whether actor may see internal state of doc, including its
// approval status.
func CanRead(actor *types.Actor, doc *types.Document) bool {
	return doc != nil && sameOrganization(actor, doc.OrganizationID)
}

// CanInspect reports whether actor may run chain health checks and read
// audit history across organizationID.
func CanInspect(actor *types.Actor, organizationID string) bool {
	return sameOrganization(actor, organizationID)
}

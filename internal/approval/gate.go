// Package approval implements the internal approval gate: a sign-off axis on
// each document that is independent of its issue status and never shown to
// consumers of the published document.
package approval

import (
	"fmt"
	"strings"

	"github.com/revledger/revledger/internal/types"
)

// Op is an operation on the approval axis.
type Op string

// Approval operations
const (
	OpRequest Op = "request"
	OpApprove Op = "approve"
	OpReject  Op = "reject"
	OpReset   Op = "reset"
)

// Rule defines an allowed approval transition. An empty From matches every
// state.
type Rule struct {
	Op   Op
	From []types.ApprovalStatus
	To   types.ApprovalStatus
}

// DefaultRules is the approval state machine:
// not_required -> pending -> approved | rejected, and any -> not_required.
var DefaultRules = []Rule{
	{Op: OpRequest, From: []types.ApprovalStatus{types.ApprovalNotRequired}, To: types.ApprovalPending},
	{Op: OpApprove, From: []types.ApprovalStatus{types.ApprovalPending}, To: types.ApprovalApproved},
	{Op: OpReject, From: []types.ApprovalStatus{types.ApprovalPending}, To: types.ApprovalRejected},
	{Op: OpReset, To: types.ApprovalNotRequired},
}

// Gate validates approval transitions.
type Gate struct {
	rules []Rule
}

// New creates a gate with the default rules.
func New() *Gate {
	return &Gate{rules: DefaultRules}
}

// Transition returns the state reached by applying op to from. Rejection
// requires a non-blank reason.
func (g *Gate) Transition(from types.ApprovalStatus, op Op, reason string) (types.ApprovalStatus, error) {
	if op == OpReject && strings.TrimSpace(reason) == "" {
		return from, types.NewValidationFailed("reject", types.ReasonRejectionReason,
			"a rejection must state a reason")
	}
	for _, r := range g.rules {
		if r.Op != op {
			continue
		}
		if len(r.From) == 0 {
			return r.To, nil
		}
		for _, f := range r.From {
			if f == from {
				return r.To, nil
			}
		}
		return from, &types.TransitionError{Entity: "approval", From: string(from), To: string(r.To)}
	}
	return from, fmt.Errorf("unknown approval operation %q", op)
}

// Check reports the approval-related reasons that block issuance of doc.
// A rejected document is blocked even when the organization does not
// require approval.
func (g *Gate) Check(settings *types.OrganizationSettings, doc *types.Document) []types.Reason {
	if doc == nil {
		return nil
	}
	if doc.ApprovalStatus == types.ApprovalRejected {
		msg := "document approval was rejected"
		if doc.ApprovalReason != "" {
			msg += ": " + doc.ApprovalReason
		}
		return []types.Reason{{Code: types.ReasonApprovalRejected, Message: msg}}
	}
	if settings != nil && settings.ApprovalRequired && doc.ApprovalStatus != types.ApprovalApproved {
		return []types.Reason{{
			Code:    types.ReasonApprovalRequired,
			Message: fmt.Sprintf("organization requires approval before issue (current status: %s)", doc.ApprovalStatus),
		}}
	}
	return nil
}

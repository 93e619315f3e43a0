package types

import (
	"errors"
	"fmt"
	"strings"
)

// ReasonCode identifies a single failed precondition.
type ReasonCode string

// Reason codes reported by validation failures
const (
	ReasonDocumentNotFound   ReasonCode = "document_not_found"
	ReasonNotDraft           ReasonCode = "not_draft"
	ReasonPermissionDenied   ReasonCode = "permission_denied"
	ReasonNoModules          ReasonCode = "no_modules"
	ReasonEmptyModule        ReasonCode = "empty_module"
	ReasonModuleIncomplete   ReasonCode = "module_incomplete"
	ReasonApprovalRequired   ReasonCode = "approval_required"
	ReasonApprovalRejected   ReasonCode = "approval_rejected"
	ReasonAlreadyFinalized   ReasonCode = "already_finalized"
	ReasonStaleRevision      ReasonCode = "stale_revision"
	ReasonDraftExists        ReasonCode = "draft_exists"
	ReasonNoIssuedRevision   ReasonCode = "no_issued_revision"
	ReasonRejectionReason    ReasonCode = "rejection_reason_required"
	ReasonInvalidInput       ReasonCode = "invalid_input"
	ReasonArtifactNotAllowed ReasonCode = "artifact_not_allowed"
)

// Reason is one entry of a ValidationFailedError.
type Reason struct {
	Code    ReasonCode `json:"code"`
	Message string     `json:"message"`
}

func (r Reason) String() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// Error codes used by transports to classify failures.
const (
	CodeValidationFailed   = "validation_failed"
	CodeEditLocked         = "edit_locked"
	CodePermissionDenied   = "permission_denied"
	CodeInvariantViolation = "invariant_violation"
	CodeActionTerminal     = "action_terminal"
	CodeInvalidTransition  = "invalid_transition"
	CodeNotFound           = "not_found"
	CodeInternal           = "internal"
)

// ErrNotFound is matched by errors.Is for missing documents, actions and actors.
var ErrNotFound = errors.New("not found")

// ValidationFailedError reports every precondition that failed, not just the first.
type ValidationFailedError struct {
	Operation string
	Reasons   []Reason
}

func (e *ValidationFailedError) Error() string {
	parts := make([]string, 0, len(e.Reasons))
	for _, r := range e.Reasons {
		parts = append(parts, r.String())
	}
	return fmt.Sprintf("%s failed validation: %s", e.Operation, strings.Join(parts, "; "))
}

// HasReason reports whether the failure includes the given code.
func (e *ValidationFailedError) HasReason(code ReasonCode) bool {
	for _, r := range e.Reasons {
		if r.Code == code {
			return true
		}
	}
	return false
}

// NewValidationFailed builds a ValidationFailedError with a single reason.
func NewValidationFailed(op string, code ReasonCode, format string, args ...any) *ValidationFailedError {
	return &ValidationFailedError{
		Operation: op,
		Reasons:   []Reason{{Code: code, Message: fmt.Sprintf(format, args...)}},
	}
}

// EditLockedError is returned when content of a non-draft document is modified.
type EditLockedError struct {
	DocumentID  string
	IssueStatus IssueStatus
}

func (e *EditLockedError) Error() string {
	return fmt.Sprintf("document %s is %s and can no longer be edited; create a revision instead", e.DocumentID, e.IssueStatus)
}

// PermissionDeniedError is returned when the actor may not perform an operation.
type PermissionDeniedError struct {
	ActorID   string
	Operation string
	Resource  string
	Detail    string
}

func (e *PermissionDeniedError) Error() string {
	msg := fmt.Sprintf("actor %q may not %s %s", e.ActorID, e.Operation, e.Resource)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// InvariantViolationError signals a broken revision-chain or storage invariant.
// It must never be swallowed.
type InvariantViolationError struct {
	LineageID string
	Detail    string
	Err       error
}

func (e *InvariantViolationError) Error() string {
	msg := fmt.Sprintf("invariant violation in lineage %s: %s", e.LineageID, e.Detail)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvariantViolationError) Unwrap() error {
	return e.Err
}

// ActionTerminalError is returned when a closed action is touched by an actor
// without the admin override.
type ActionTerminalError struct {
	ActionID string
}

func (e *ActionTerminalError) Error() string {
	return fmt.Sprintf("action %s is closed; only an organization admin can reopen it", e.ActionID)
}

// TransitionError reports an illegal state change on one of the status axes.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition from %q to %q", e.Entity, e.From, e.To)
}

// ErrorCode classifies err into one of the Code* constants.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var (
		vf *ValidationFailedError
		el *EditLockedError
		pd *PermissionDeniedError
		iv *InvariantViolationError
		at *ActionTerminalError
		te *TransitionError
	)
	switch {
	case errors.As(err, &iv):
		return CodeInvariantViolation
	case errors.As(err, &vf):
		return CodeValidationFailed
	case errors.As(err, &el):
		return CodeEditLocked
	case errors.As(err, &pd):
		return CodePermissionDenied
	case errors.As(err, &at):
		return CodeActionTerminal
	case errors.As(err, &te):
		return CodeInvalidTransition
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	}
	return CodeInternal
}

// ReasonsOf returns the reasons carried by err. Non-validation errors yield a
// single reason built from the error code so callers always get a list.
func ReasonsOf(err error) []Reason {
	if err == nil {
		return nil
	}
	var vf *ValidationFailedError
	if errors.As(err, &vf) {
		return vf.Reasons
	}
	return []Reason{{Code: ReasonCode(ErrorCode(err)), Message: err.Error()}}
}

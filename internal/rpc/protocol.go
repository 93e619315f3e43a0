package rpc

import (
	"encoding/json"
	"time"

	"github.com/revledger/revledger/internal/lifecycle"
	"github.com/revledger/revledger/internal/types"
)

// Operation constants. Mutating operations share their names with the
// lifecycle machine so metrics and logs line up across transports.
const (
	OpCreateDocument      = lifecycle.OpCreateDocument
	OpEdit                = lifecycle.OpEdit
	OpSetModule           = lifecycle.OpSetModule
	OpRemoveModule        = lifecycle.OpRemoveModule
	OpIssue               = lifecycle.OpIssue
	OpCreateRevision      = lifecycle.OpCreateRevision
	OpAddAction           = lifecycle.OpAddAction
	OpCloseAction         = lifecycle.OpCloseAction
	OpReopenAction        = lifecycle.OpReopenAction
	OpSetActionStatus     = lifecycle.OpSetActionStatus
	OpRequestApproval     = lifecycle.OpRequestApproval
	OpApprove             = lifecycle.OpApprove
	OpReject              = lifecycle.OpReject
	OpResetApproval       = lifecycle.OpResetApproval
	OpSetApprovalRequired = lifecycle.OpSetApprovalRequired
	OpRecordArtifact      = lifecycle.OpRecordArtifact
	OpLifecycleHealth     = lifecycle.OpLifecycleHealth

	// Read-only operations
	OpShow         = "show"
	OpLineage      = "lineage"
	OpList         = "list"
	OpModules      = "modules"
	OpListActions  = "list_actions"
	OpPreflight    = "preflight"
	OpPublished    = "published"
	OpSettings     = "settings"
	OpHealthSweep  = "health_sweep"
	OpAuditHistory = "audit_history"
	OpPing         = "ping"
	OpMetrics      = "metrics"
)

// Request represents an RPC request.
type Request struct {
	Operation string          `json:"operation"`
	Args      json.RawMessage `json:"args"`
	Actor     string          `json:"actor,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// Response represents an RPC response. On failure Code is one of the
// types.Code* values and Reasons lists every failed precondition.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
	Reasons []types.Reason  `json:"reasons,omitempty"`
}

// DocumentArgs addresses a single document.
type DocumentArgs struct {
	DocumentID string `json:"document_id"`
}

// LineageArgs addresses a lineage.
type LineageArgs struct {
	LineageID string `json:"lineage_id"`
}

// CreateDocumentArgs represents arguments for the create_document operation
type CreateDocumentArgs struct {
	OrganizationID string `json:"organization_id"`
	Title          string `json:"title"`
	Scope          string `json:"scope,omitempty"`
}

// EditArgs represents arguments for the edit operation. Nil fields are unchanged.
type EditArgs struct {
	DocumentID string  `json:"document_id"`
	Title      *string `json:"title,omitempty"`
	Scope      *string `json:"scope,omitempty"`
}

// SetModuleArgs represents arguments for the set_module operation
type SetModuleArgs struct {
	DocumentID string          `json:"document_id"`
	ModuleKey  string          `json:"module_key"`
	Payload    json.RawMessage `json:"payload"`
}

// RemoveModuleArgs represents arguments for the remove_module operation
type RemoveModuleArgs struct {
	DocumentID string `json:"document_id"`
	ModuleKey  string `json:"module_key"`
}

// IssueArgs represents arguments for the issue operation
type IssueArgs struct {
	DocumentID string `json:"document_id"`
	ChangeNote string `json:"change_note,omitempty"`
}

// CreateRevisionArgs represents arguments for the create_revision operation
type CreateRevisionArgs struct {
	LineageID string `json:"lineage_id"`
	Note      string `json:"note,omitempty"`
}

// AddActionArgs represents arguments for the add_action operation
type AddActionArgs struct {
	DocumentID  string `json:"document_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority"`
	OwnerID     string `json:"owner_id,omitempty"`
	ModuleKey   string `json:"module_key,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// ActionArgs represents arguments for close_action and reopen_action
type ActionArgs struct {
	ActionID string `json:"action_id"`
	Note     string `json:"note,omitempty"`
}

// SetActionStatusArgs represents arguments for the set_action_status operation
type SetActionStatusArgs struct {
	ActionID string             `json:"action_id"`
	Status   types.ActionStatus `json:"status"`
	Note     string             `json:"note,omitempty"`
}

// RejectArgs represents arguments for the reject operation
type RejectArgs struct {
	DocumentID string `json:"document_id"`
	Reason     string `json:"reason"`
}

// OrganizationArgs addresses an organization.
type OrganizationArgs struct {
	OrganizationID string `json:"organization_id"`
}

// SetApprovalRequiredArgs represents arguments for the set_approval_required operation
type SetApprovalRequiredArgs struct {
	OrganizationID string `json:"organization_id"`
	Required       bool   `json:"required"`
}

// RecordArtifactArgs represents arguments for the record_artifact operation
type RecordArtifactArgs struct {
	DocumentID  string `json:"document_id"`
	ArtifactRef string `json:"artifact_ref"`
}

// AuditHistoryArgs represents arguments for the audit_history operation
type AuditHistoryArgs struct {
	DocumentID string          `json:"document_id,omitempty"`
	LineageID  string          `json:"lineage_id,omitempty"`
	ActorID    string          `json:"actor_id,omitempty"`
	EventType  types.EventType `json:"event_type,omitempty"`
	Since      *time.Time      `json:"since,omitempty"`
	Limit      int             `json:"limit,omitempty"`
}

// PreflightResponse lists the reasons a draft cannot be issued yet.
type PreflightResponse struct {
	DocumentID string         `json:"document_id"`
	Ready      bool           `json:"ready"`
	Reasons    []types.Reason `json:"reasons,omitempty"`
}

// PingResponse is returned by the ping operation
type PingResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

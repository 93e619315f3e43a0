// Package types defines core data structures for the revledger document engine.
package types

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// MaxTitleLength bounds document and action titles.
const MaxTitleLength = 500

// Document is one revision of a compliance document. Every revision in a
// lineage is its own row; the lineage is identified by the id of version 1.
type Document struct {
	ID             string `json:"id"`
	LineageID      string `json:"lineage_id"`
	VersionNumber  int    `json:"version_number"`
	OrganizationID string `json:"organization_id"`

	// Content fields. Mutable only while IssueStatus is draft.
	Title string `json:"title"`
	Scope string `json:"scope,omitempty"`

	IssueStatus    IssueStatus `json:"issue_status"`
	ChangeNote     string      `json:"change_note,omitempty"`
	IssuedBy       string      `json:"issued_by,omitempty"`
	IssuedAt       *time.Time  `json:"issued_at,omitempty"`
	SupersededByID string      `json:"superseded_by_id,omitempty"`
	SupersededAt   *time.Time  `json:"superseded_at,omitempty"`
	ArtifactRef    string      `json:"artifact_ref,omitempty"` // finalized output attached after issue

	// Internal approval axis. Never part of the published view.
	ApprovalStatus    ApprovalStatus `json:"approval_status"`
	ApprovalReason    string         `json:"approval_reason,omitempty"`
	ApprovalUpdatedBy string         `json:"approval_updated_by,omitempty"`
	ApprovalUpdatedAt *time.Time     `json:"approval_updated_at,omitempty"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the document has valid field values
func (d *Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("id is required")
	}
	if d.LineageID == "" {
		return fmt.Errorf("lineage_id is required")
	}
	if d.VersionNumber < 1 {
		return fmt.Errorf("version_number must be at least 1 (got %d)", d.VersionNumber)
	}
	if d.OrganizationID == "" {
		return fmt.Errorf("organization_id is required")
	}
	if len(d.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(d.Title) > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, len(d.Title))
	}
	if !d.IssueStatus.IsValid() {
		return fmt.Errorf("invalid issue_status: %s", d.IssueStatus)
	}
	if !d.ApprovalStatus.IsValid() {
		return fmt.Errorf("invalid approval_status: %s", d.ApprovalStatus)
	}
	if d.IssueStatus == IssueSuperseded && d.SupersededByID == "" {
		return fmt.Errorf("superseded document must reference its replacement")
	}
	if d.IssueStatus != IssueSuperseded && d.SupersededByID != "" {
		return fmt.Errorf("superseded_by_id set on %s document", d.IssueStatus)
	}
	return nil
}

// IsDraft reports whether the document content can still change.
func (d *Document) IsDraft() bool {
	return d.IssueStatus == IssueDraft
}

// ContentHash creates a deterministic hash of the document's content fields
// and module payloads, recorded when the document is issued.
func (d *Document) ContentHash(modules []*ModuleInstance) string {
	h := sha256.New()

	h.Write([]byte(d.Title))
	h.Write([]byte{0})
	h.Write([]byte(d.Scope))
	h.Write([]byte{0})

	sorted := make([]*ModuleInstance, len(modules))
	copy(sorted, modules)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ModuleKey < sorted[j].ModuleKey })
	for _, m := range sorted {
		h.Write([]byte(m.ModuleKey))
		h.Write([]byte{0})
		h.Write(m.Payload)
		h.Write([]byte{0})
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}

// PublishedDocument is the view of a document handed to external consumers
// such as the report renderer. Approval state is deliberately absent.
type PublishedDocument struct {
	ID             string      `json:"id"`
	LineageID      string      `json:"lineage_id"`
	VersionNumber  int         `json:"version_number"`
	OrganizationID string      `json:"organization_id"`
	Title          string      `json:"title"`
	Scope          string      `json:"scope,omitempty"`
	IssueStatus    IssueStatus `json:"issue_status"`
	ChangeNote     string      `json:"change_note,omitempty"`
	IssuedBy       string      `json:"issued_by,omitempty"`
	IssuedAt       *time.Time  `json:"issued_at,omitempty"`
	SupersededByID string      `json:"superseded_by_id,omitempty"`
	SupersededAt   *time.Time  `json:"superseded_at,omitempty"`
	ArtifactRef    string      `json:"artifact_ref,omitempty"`
}

// Published returns the external view of d.
func (d *Document) Published() *PublishedDocument {
	return &PublishedDocument{
		ID:             d.ID,
		LineageID:      d.LineageID,
		VersionNumber:  d.VersionNumber,
		OrganizationID: d.OrganizationID,
		Title:          d.Title,
		Scope:          d.Scope,
		IssueStatus:    d.IssueStatus,
		ChangeNote:     d.ChangeNote,
		IssuedBy:       d.IssuedBy,
		IssuedAt:       d.IssuedAt,
		SupersededByID: d.SupersededByID,
		SupersededAt:   d.SupersededAt,
		ArtifactRef:    d.ArtifactRef,
	}
}

// IssueStatus is the publication state of a document revision
type IssueStatus string

// Issue status constants
const (
	IssueDraft      IssueStatus = "draft"
	IssueIssued     IssueStatus = "issued"
	IssueSuperseded IssueStatus = "superseded" // terminal, retained forever
)

// IsValid checks if the issue status value is valid
func (s IssueStatus) IsValid() bool {
	switch s {
	case IssueDraft, IssueIssued, IssueSuperseded:
		return true
	}
	return false
}

// ApprovalStatus is the internal sign-off state of a document. It is
// independent of IssueStatus.
type ApprovalStatus string

// Approval status constants
const (
	ApprovalNotRequired ApprovalStatus = "not_required"
	ApprovalPending     ApprovalStatus = "pending"
	ApprovalApproved    ApprovalStatus = "approved"
	ApprovalRejected    ApprovalStatus = "rejected"
)

// IsValid checks if the approval status value is valid
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalNotRequired, ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

// ModuleInstance is the filled-in payload of one form module on a document.
type ModuleInstance struct {
	DocumentID string          `json:"document_id"`
	ModuleKey  string          `json:"module_key"`
	Payload    json.RawMessage `json:"payload"`
	UpdatedBy  string          `json:"updated_by,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Action is a corrective action raised against a document.
type Action struct {
	ID             string       `json:"id"`
	DocumentID     string       `json:"document_id"`
	OriginActionID string       `json:"origin_action_id,omitempty"` // set when carried forward
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	Priority       int          `json:"priority"` // No omitempty: 0 is valid (P0/critical)
	OwnerID        string       `json:"owner_id,omitempty"`
	ModuleKey      string       `json:"module_key,omitempty"`
	Status         ActionStatus `json:"status"`
	Notes          string       `json:"notes,omitempty"`
	History        string       `json:"history,omitempty"` // close/reopen log; never carried forward
	ClosedAt       *time.Time   `json:"closed_at,omitempty"`
	ClosedBy       string       `json:"closed_by,omitempty"`
	ReopenedAt     *time.Time   `json:"reopened_at,omitempty"`
	ReopenedBy     string       `json:"reopened_by,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Validate checks if the action has valid field values
func (a *Action) Validate() error {
	if a.DocumentID == "" {
		return fmt.Errorf("document_id is required")
	}
	if len(a.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(a.Title) > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, len(a.Title))
	}
	if a.Priority < 0 || a.Priority > 4 {
		return fmt.Errorf("priority must be between 0 and 4 (got %d)", a.Priority)
	}
	if !a.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", a.Status)
	}
	// Enforce closed_at invariant: closed_at should be set if and only if status is closed
	if a.Status == ActionClosed && a.ClosedAt == nil {
		return fmt.Errorf("closed actions must have closed_at timestamp")
	}
	if a.Status != ActionClosed && a.ClosedAt != nil {
		return fmt.Errorf("non-closed actions cannot have closed_at timestamp")
	}
	return nil
}

// ActionStatus represents the state of a corrective action
type ActionStatus string

// Action status constants
const (
	ActionOpen       ActionStatus = "open"
	ActionInProgress ActionStatus = "in_progress"
	ActionClosed     ActionStatus = "closed"
	ActionDeferred   ActionStatus = "deferred"
)

// IsValid checks if the action status value is valid
func (s ActionStatus) IsValid() bool {
	switch s {
	case ActionOpen, ActionInProgress, ActionClosed, ActionDeferred:
		return true
	}
	return false
}

// AuditEvent is one immutable entry in the lifecycle audit trail.
type AuditEvent struct {
	ID             int64          `json:"id"`
	DocumentID     string         `json:"document_id"`
	LineageID      string         `json:"lineage_id"`
	RevisionNumber int            `json:"revision_number"`
	ActorID        string         `json:"actor_id"`
	EventType      EventType      `json:"event_type"`
	OccurredAt     time.Time      `json:"occurred_at"`
	Details        map[string]any `json:"details,omitempty"`
}

// EventType categorizes audit trail events
type EventType string

// Event type constants for audit trail
const (
	EventIssued          EventType = "issued"
	EventRevisionCreated EventType = "revision_created"
	EventActionClosed    EventType = "action_closed"
	EventActionReopened  EventType = "action_reopened"
)

// IsValid checks if the event type value is valid
func (e EventType) IsValid() bool {
	switch e {
	case EventIssued, EventRevisionCreated, EventActionClosed, EventActionReopened:
		return true
	}
	return false
}

// AuditFilter narrows audit trail queries. Zero values match everything.
type AuditFilter struct {
	DocumentID string
	LineageID  string
	ActorID    string
	EventType  EventType
	Since      *time.Time
	Limit      int
}

// OrganizationSettings holds per-organization lifecycle policy.
type OrganizationSettings struct {
	OrganizationID   string    `json:"organization_id"`
	ApprovalRequired bool      `json:"approval_required"`
	UpdatedBy        string    `json:"updated_by,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Role is an actor's organization role.
type Role string

// Role constants
const (
	RoleMember Role = "member"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// IsValid checks if the role value is valid
func (r Role) IsValid() bool {
	switch r {
	case RoleMember, RoleEditor, RoleAdmin:
		return true
	}
	return false
}

// Actor is a user as seen by the identity subsystem.
type Actor struct {
	ID             string `json:"id" yaml:"id"`
	Name           string `json:"name,omitempty" yaml:"name,omitempty"`
	OrganizationID string `json:"organization_id" yaml:"organization_id"`
	Role           Role   `json:"role" yaml:"role"`
	EditPermission bool   `json:"edit_permission" yaml:"edit_permission"`
}

// IsAdmin reports whether the actor holds the organization admin role.
func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// CanEdit reports whether the actor's role grants edit rights. Admins and
// editors always can; members only with the explicit edit permission flag.
func (a *Actor) CanEdit() bool {
	if a == nil {
		return false
	}
	return a.Role == RoleAdmin || a.Role == RoleEditor || a.EditPermission
}

// DocumentPatch carries a partial content update for a draft document.
// Nil fields are left unchanged.
type DocumentPatch struct {
	Title *string `json:"title,omitempty"`
	Scope *string `json:"scope,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p DocumentPatch) IsEmpty() bool {
	return p.Title == nil && p.Scope == nil
}

// LineageHealth summarizes the revision chain state of a lineage.
type LineageHealth struct {
	LineageID       string    `json:"lineage_id"`
	OrganizationID  string    `json:"organization_id"`
	Members         int       `json:"members"`
	DraftCount      int       `json:"draft_count"`
	IssuedCount     int       `json:"issued_count"`
	SupersededCount int       `json:"superseded_count"`
	LatestVersion   int       `json:"latest_version"`
	CurrentIssuedID string    `json:"current_issued_id,omitempty"`
	CurrentDraftID  string    `json:"current_draft_id,omitempty"`
	Healthy         bool      `json:"healthy"`
	Violations      []string  `json:"violations,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
}

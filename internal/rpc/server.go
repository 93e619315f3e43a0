// Package rpc exposes the lifecycle machine over a Connect-style JSON
// transport. Server dispatches operations; HTTPServer serves them over HTTP.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/revledger/revledger/internal/lifecycle"
	"github.com/revledger/revledger/internal/types"
)

type handlerFunc func(ctx context.Context, actor string, args json.RawMessage) (any, error)

// Server dispatches RPC requests to the lifecycle machine.
type Server struct {
	machine  *lifecycle.Machine
	log      *slog.Logger
	metrics  *Metrics
	version  string
	handlers map[string]handlerFunc
}

// NewServer creates a Server over machine.
func NewServer(machine *lifecycle.Machine, version string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		machine: machine,
		log:     log,
		metrics: NewMetrics(),
		version: version,
	}
	s.metrics.OnSlowRequest(func(op string, latency time.Duration, _ time.Time) {
		s.log.Warn("slow request", "operation", op, "latency", latency)
	})
	s.handlers = s.handlerTable()
	return s
}

// Metrics returns the in-process request metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Operations returns the names of every registered operation.
func (s *Server) Operations() []string {
	ops := make([]string, 0, len(s.handlers))
	for op := range s.handlers {
		ops = append(ops, op)
	}
	return ops
}

// Handle executes req and never returns nil.
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	start := time.Now()
	h, ok := s.handlers[req.Operation]
	if !ok {
		return &Response{Error: fmt.Sprintf("unknown operation: %s", req.Operation), Code: codeUnknownOperation}
	}

	data, err := h(ctx, req.Actor, req.Args)
	resp := s.respond(req.Operation, data, err)
	s.metrics.Record(req.Operation, resp.Code, time.Since(start))
	if resp.Code == types.CodeInternal {
		s.log.Error("rpc request failed", "operation", req.Operation, "actor", req.Actor, "request_id", req.RequestID, "error", err)
	}
	return resp
}

const codeUnknownOperation = "unknown_operation"

func (s *Server) respond(op string, data any, err error) *Response {
	if err != nil {
		return &Response{
			Error:   err.Error(),
			Code:    types.ErrorCode(err),
			Reasons: types.ReasonsOf(err),
		}
	}
	if data == nil {
		return &Response{Success: true}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return &Response{Error: fmt.Sprintf("marshal %s result: %v", op, err), Code: types.CodeInternal}
	}
	return &Response{Success: true, Data: raw}
}

// decode unmarshals args into a T, reporting malformed input as a
// validation failure.
func decode[T any](op string, raw json.RawMessage) (T, error) {
	var args T
	if len(raw) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, types.NewValidationFailed(op, types.ReasonInvalidInput, "malformed arguments: %v", err)
	}
	return args, nil
}

// handle adapts a typed handler to the handler table.
func handle[T any](op string, fn func(ctx context.Context, actor string, args T) (any, error)) handlerFunc {
	return func(ctx context.Context, actor string, raw json.RawMessage) (any, error) {
		args, err := decode[T](op, raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, actor, args)
	}
}

func (s *Server) handlerTable() map[string]handlerFunc {
	m := s.machine
	return map[string]handlerFunc{
		OpPing: func(context.Context, string, json.RawMessage) (any, error) {
			return PingResponse{Message: "pong", Version: s.version}, nil
		},
		OpMetrics: func(context.Context, string, json.RawMessage) (any, error) {
			return s.metrics.Snapshot(), nil
		},

		// Documents
		OpCreateDocument: handle(OpCreateDocument, func(ctx context.Context, actor string, a CreateDocumentArgs) (any, error) {
			return m.CreateDocument(ctx, actor, lifecycle.NewDocument{OrganizationID: a.OrganizationID, Title: a.Title, Scope: a.Scope})
		}),
		OpEdit: handle(OpEdit, func(ctx context.Context, actor string, a EditArgs) (any, error) {
			return m.Edit(ctx, a.DocumentID, actor, types.DocumentPatch{Title: a.Title, Scope: a.Scope})
		}),
		OpSetModule: handle(OpSetModule, func(ctx context.Context, actor string, a SetModuleArgs) (any, error) {
			return m.SetModule(ctx, a.DocumentID, actor, a.ModuleKey, a.Payload)
		}),
		OpRemoveModule: handle(OpRemoveModule, func(ctx context.Context, actor string, a RemoveModuleArgs) (any, error) {
			return nil, m.RemoveModule(ctx, a.DocumentID, actor, a.ModuleKey)
		}),
		OpShow: handle(OpShow, func(ctx context.Context, actor string, a DocumentArgs) (any, error) {
			return m.GetDocument(ctx, actor, a.DocumentID)
		}),
		OpLineage: handle(OpLineage, func(ctx context.Context, actor string, a LineageArgs) (any, error) {
			return m.ListLineage(ctx, actor, a.LineageID)
		}),
		OpList: handle(OpList, func(ctx context.Context, actor string, a OrganizationArgs) (any, error) {
			return m.ListDocuments(ctx, actor, a.OrganizationID)
		}),
		OpModules: handle(OpModules, func(ctx context.Context, actor string, a DocumentArgs) (any, error) {
			return m.ListModules(ctx, actor, a.DocumentID)
		}),
		OpPublished: handle(OpPublished, func(ctx context.Context, _ string, a DocumentArgs) (any, error) {
			return m.PublishedDocument(ctx, a.DocumentID)
		}),

		// Issuance and revisions
		OpPreflight: handle(OpPreflight, func(ctx context.Context, actor string, a DocumentArgs) (any, error) {
			reasons, err := m.Preflight(ctx, a.DocumentID, actor)
			if err != nil {
				return nil, err
			}
			return PreflightResponse{DocumentID: a.DocumentID, Ready: len(reasons) == 0, Reasons: reasons}, nil
		}),
		OpIssue: handle(OpIssue, func(ctx context.Context, actor string, a IssueArgs) (any, error) {
			return m.Issue(ctx, a.DocumentID, actor, a.ChangeNote)
		}),
		OpCreateRevision: handle(OpCreateRevision, func(ctx context.Context, actor string, a CreateRevisionArgs) (any, error) {
			return m.CreateRevision(ctx, a.LineageID, actor, a.Note)
		}),
		OpRecordArtifact: handle(OpRecordArtifact, func(ctx context.Context, actor string, a RecordArtifactArgs) (any, error) {
			return m.RecordArtifact(ctx, a.DocumentID, actor, a.ArtifactRef)
		}),

		// Actions
		OpAddAction: handle(OpAddAction, func(ctx context.Context, actor string, a AddActionArgs) (any, error) {
			return m.AddAction(ctx, actor, lifecycle.NewAction{
				DocumentID:  a.DocumentID,
				Title:       a.Title,
				Description: a.Description,
				Priority:    a.Priority,
				OwnerID:     a.OwnerID,
				ModuleKey:   a.ModuleKey,
				Notes:       a.Notes,
			})
		}),
		OpCloseAction: handle(OpCloseAction, func(ctx context.Context, actor string, a ActionArgs) (any, error) {
			return m.CloseAction(ctx, a.ActionID, actor, a.Note)
		}),
		OpReopenAction: handle(OpReopenAction, func(ctx context.Context, actor string, a ActionArgs) (any, error) {
			return m.ReopenAction(ctx, a.ActionID, actor, a.Note)
		}),
		OpSetActionStatus: handle(OpSetActionStatus, func(ctx context.Context, actor string, a SetActionStatusArgs) (any, error) {
			return m.SetActionStatus(ctx, a.ActionID, actor, a.Status, a.Note)
		}),
		OpListActions: handle(OpListActions, func(ctx context.Context, actor string, a DocumentArgs) (any, error) {
			return m.ListActions(ctx, actor, a.DocumentID)
		}),

		// Approval
		OpRequestApproval: handle(OpRequestApproval, func(ctx context.Context, actor string, a DocumentArgs) (any, error) {
			return m.RequestApproval(ctx, a.DocumentID, actor)
		}),
		OpApprove: handle(OpApprove, func(ctx context.Context, actor string, a DocumentArgs) (any, error) {
			return m.Approve(ctx, a.DocumentID, actor)
		}),
		OpReject: handle(OpReject, func(ctx context.Context, actor string, a RejectArgs) (any, error) {
			return m.Reject(ctx, a.DocumentID, actor, a.Reason)
		}),
		OpResetApproval: handle(OpResetApproval, func(ctx context.Context, actor string, a DocumentArgs) (any, error) {
			return m.ResetApproval(ctx, a.DocumentID, actor)
		}),
		OpSetApprovalRequired: handle(OpSetApprovalRequired, func(ctx context.Context, actor string, a SetApprovalRequiredArgs) (any, error) {
			return m.SetApprovalRequired(ctx, a.OrganizationID, actor, a.Required)
		}),
		OpSettings: handle(OpSettings, func(ctx context.Context, actor string, a OrganizationArgs) (any, error) {
			return m.Settings(ctx, a.OrganizationID, actor)
		}),

		// Integrity
		OpLifecycleHealth: handle(OpLifecycleHealth, func(ctx context.Context, actor string, a LineageArgs) (any, error) {
			return m.LifecycleHealth(ctx, a.LineageID, actor)
		}),
		OpHealthSweep: handle(OpHealthSweep, func(ctx context.Context, actor string, a OrganizationArgs) (any, error) {
			return m.HealthSweep(ctx, a.OrganizationID, actor)
		}),
		OpAuditHistory: handle(OpAuditHistory, func(ctx context.Context, actor string, a AuditHistoryArgs) (any, error) {
			return m.AuditHistory(ctx, actor, types.AuditFilter{
				DocumentID: a.DocumentID,
				LineageID:  a.LineageID,
				ActorID:    a.ActorID,
				EventType:  a.EventType,
				Since:      a.Since,
				Limit:      a.Limit,
			})
		}),
	}
}

package approval

import (
	"errors"
	"strings"
	"testing"

	"github.com/revledger/revledger/internal/types"
)

func TestTransitions(t *testing.T) {
	g := New()
	tests := []struct {
		from    types.ApprovalStatus
		op      Op
		reason  string
		want    types.ApprovalStatus
		wantErr bool
	}{
		{types.ApprovalNotRequired, OpRequest, "", types.ApprovalPending, false},
		{types.ApprovalPending, OpApprove, "", types.ApprovalApproved, false},
		{types.ApprovalPending, OpReject, "photos missing", types.ApprovalRejected, false},
		{types.ApprovalApproved, OpReset, "", types.ApprovalNotRequired, false},
		{types.ApprovalRejected, OpReset, "", types.ApprovalNotRequired, false},
		{types.ApprovalPending, OpReset, "", types.ApprovalNotRequired, false},
		{types.ApprovalNotRequired, OpApprove, "", types.ApprovalNotRequired, true},
		{types.ApprovalApproved, OpReject, "late", types.ApprovalApproved, true},
		{types.ApprovalRejected, OpRequest, "", types.ApprovalRejected, true},
		{types.ApprovalPending, OpRequest, "", types.ApprovalPending, true},
	}
	for _, tt := range tests {
		got, err := g.Transition(tt.from, tt.op, tt.reason)
		if (err != nil) != tt.wantErr {
			t.Errorf("Transition(%s, %s) error = %v, wantErr %v", tt.from, tt.op, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Transition(%s, %s) = %s, want %s", tt.from, tt.op, got, tt.want)
		}
	}
}

func TestRejectRequiresReason(t *testing.T) {
	_, err := New().Transition(types.ApprovalPending, OpReject, "   ")
	var vf *types.ValidationFailedError
	if !errors.As(err, &vf) || !vf.HasReason(types.ReasonRejectionReason) {
		t.Fatalf("reject without reason error = %v", err)
	}
}

func TestInvalidTransitionIsTyped(t *testing.T) {
	_, err := New().Transition(types.ApprovalNotRequired, OpApprove, "")
	var te *types.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("error = %T, want *types.TransitionError", err)
	}
	if te.From != "not_required" || te.To != "approved" {
		t.Fatalf("TransitionError = %+v", te)
	}
}

func TestCheck(t *testing.T) {
	g := New()
	required := &types.OrganizationSettings{ApprovalRequired: true}
	optional := &types.OrganizationSettings{}

	tests := []struct {
		name     string
		settings *types.OrganizationSettings
		status   types.ApprovalStatus
		want     types.ReasonCode
	}{
		{"not required and untouched", optional, types.ApprovalNotRequired, ""},
		{"not required but pending", optional, types.ApprovalPending, ""},
		{"required and approved", required, types.ApprovalApproved, ""},
		{"required and pending", required, types.ApprovalPending, types.ReasonApprovalRequired},
		{"required and never requested", required, types.ApprovalNotRequired, types.ReasonApprovalRequired},
		{"rejected when optional", optional, types.ApprovalRejected, types.ReasonApprovalRejected},
		{"rejected when required", required, types.ApprovalRejected, types.ReasonApprovalRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &types.Document{ApprovalStatus: tt.status, ApprovalReason: "fire doors not photographed"}
			reasons := g.Check(tt.settings, doc)
			if tt.want == "" {
				if len(reasons) != 0 {
					t.Fatalf("Check() = %v, want none", reasons)
				}
				return
			}
			if len(reasons) != 1 || reasons[0].Code != tt.want {
				t.Fatalf("Check() = %v, want %s", reasons, tt.want)
			}
			if tt.want == types.ReasonApprovalRejected && !strings.Contains(reasons[0].Message, "fire doors") {
				t.Fatalf("rejection reason not surfaced: %q", reasons[0].Message)
			}
		})
	}
}

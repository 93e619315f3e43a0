package ui

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/revledger/revledger/internal/types"
)

func TestShouldUseColor(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		unset []string
		want  bool
	}{
		{"NO_COLOR disables color", map[string]string{"NO_COLOR": "1", "CLICOLOR_FORCE": "1"}, nil, false},
		{"CLICOLOR_FORCE enables color when piped", map[string]string{"CLICOLOR_FORCE": "1"}, []string{"NO_COLOR"}, true},
		{"CLICOLOR=0 disables color", map[string]string{"CLICOLOR": "0", "CLICOLOR_FORCE": ""}, []string{"NO_COLOR"}, false},
		{"tests are not a terminal", map[string]string{"CLICOLOR_FORCE": ""}, []string{"NO_COLOR"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			for _, k := range tt.unset {
				t.Setenv(k, "")
				_ = os.Unsetenv(k)
			}
			if got := ShouldUseColor(); got != tt.want {
				t.Errorf("ShouldUseColor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderMarkdownPlainWithoutColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	in := "# Title\n\nbody"
	if got := RenderMarkdown(in); got != in {
		t.Errorf("RenderMarkdown() = %q, want input unchanged", got)
	}
}

func TestDocumentMarkdown(t *testing.T) {
	issued := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	doc := &types.Document{
		ID: "doc-2", VersionNumber: 2, Title: "Fire risk assessment", Scope: "Block A",
		IssueStatus: types.IssueIssued, ApprovalStatus: types.ApprovalApproved,
		IssuedAt: &issued, IssuedBy: "ed", ChangeNote: "annual review",
	}
	mods := []*types.ModuleInstance{{ModuleKey: "escape", Payload: json.RawMessage(`{"exits":3}`)}}
	acts := []*types.Action{{ID: "act-1", Priority: 1, Status: types.ActionOpen, OwnerID: "ola", Title: "Fix | door"}}

	out := DocumentMarkdown(doc, mods, acts)
	for _, want := range []string{
		"# Fire risk assessment",
		"v2 · **issued** · approval approved",
		"Issued 2026-03-01 09:30 by ed: annual review",
		"## Scope\n\nBlock A",
		"### escape",
		`"exits": 3`,
		`| act-1 | P1 | open | ola | Fix \| door |`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("DocumentMarkdown() missing %q in:\n%s", want, out)
		}
	}
}

func TestStatusRenderersKeepText(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if got := RenderIssueStatus(types.IssueSuperseded); !strings.Contains(got, "superseded") {
		t.Errorf("RenderIssueStatus() = %q", got)
	}
	if got := RenderApprovalStatus(types.ApprovalRejected); !strings.Contains(got, "rejected") {
		t.Errorf("RenderApprovalStatus() = %q", got)
	}
	if got := RenderActionStatus(types.ActionInProgress); !strings.Contains(got, "in_progress") {
		t.Errorf("RenderActionStatus() = %q", got)
	}
}

package ui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/revledger/revledger/internal/types"
)

// RenderMarkdown renders markdown with glamour, word wrapped to the terminal
// (capped at 100 columns). It returns the input unchanged when color is off
// or rendering fails.
func RenderMarkdown(markdown string) string {
	if !ShouldUseColor() {
		return markdown
	}
	const maxReadableWidth = 100
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(min(TerminalWidth(80), maxReadableWidth)),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}

// DocumentMarkdown lays out a document revision with its modules and actions.
func DocumentMarkdown(doc *types.Document, modules []*types.ModuleInstance, actions []*types.Action) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	fmt.Fprintf(&b, "`%s` · v%d · **%s**", doc.ID, doc.VersionNumber, doc.IssueStatus)
	if doc.ApprovalStatus != types.ApprovalNotRequired {
		fmt.Fprintf(&b, " · approval %s", doc.ApprovalStatus)
	}
	b.WriteString("\n\n")
	if doc.IssuedAt != nil {
		fmt.Fprintf(&b, "Issued %s by %s", doc.IssuedAt.Format("2006-01-02 15:04"), doc.IssuedBy)
		if doc.ChangeNote != "" {
			fmt.Fprintf(&b, ": %s", doc.ChangeNote)
		}
		b.WriteString("\n\n")
	}
	if doc.SupersededByID != "" {
		fmt.Fprintf(&b, "> Superseded by `%s`\n\n", doc.SupersededByID)
	}
	if doc.Scope != "" {
		fmt.Fprintf(&b, "## Scope\n\n%s\n\n", doc.Scope)
	}

	if len(modules) > 0 {
		b.WriteString("## Modules\n\n")
		for _, m := range modules {
			fmt.Fprintf(&b, "### %s\n\n```json\n%s\n```\n\n", m.ModuleKey, indentPayload(m.Payload))
		}
	}

	if len(actions) > 0 {
		b.WriteString("## Actions\n\n| ID | P | Status | Owner | Title |\n|---|---|---|---|---|\n")
		for _, a := range actions {
			fmt.Fprintf(&b, "| %s | P%d | %s | %s | %s |\n", a.ID, a.Priority, a.Status, a.OwnerID, strings.ReplaceAll(a.Title, "|", `\|`))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func indentPayload(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}

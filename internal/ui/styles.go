// Package ui provides terminal styling for rl CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/revledger/revledger/internal/types"
)

// Ayu theme color palette
var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

var (
	PassStyle     = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle     = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle     = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle   = lipgloss.NewStyle().Foreground(ColorAccent)
	CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// Status icons
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
)

const SeparatorLight = "──────────────────────────────────────────"

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderCategory renders a category header in uppercase with accent color
func RenderCategory(s string) string {
	return CategoryStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders the light separator line in muted color
func RenderSeparator() string {
	return MutedStyle.Render(SeparatorLight)
}

func RenderPassIcon() string { return PassStyle.Render(IconPass) }
func RenderWarnIcon() string { return WarnStyle.Render(IconWarn) }
func RenderFailIcon() string { return FailStyle.Render(IconFail) }

// RenderIssueStatus colors a document's issue status: drafts are pending
// work, issued is the live revision, superseded is history.
func RenderIssueStatus(s types.IssueStatus) string {
	switch s {
	case types.IssueDraft:
		return WarnStyle.Render(string(s))
	case types.IssueIssued:
		return PassStyle.Render(string(s))
	}
	return MutedStyle.Render(string(s))
}

// RenderApprovalStatus colors an approval status.
func RenderApprovalStatus(s types.ApprovalStatus) string {
	switch s {
	case types.ApprovalApproved:
		return PassStyle.Render(string(s))
	case types.ApprovalPending:
		return WarnStyle.Render(string(s))
	case types.ApprovalRejected:
		return FailStyle.Render(string(s))
	}
	return MutedStyle.Render(string(s))
}

// RenderActionStatus colors an action status.
func RenderActionStatus(s types.ActionStatus) string {
	switch s {
	case types.ActionClosed:
		return PassStyle.Render(string(s))
	case types.ActionInProgress:
		return AccentStyle.Render(string(s))
	case types.ActionDeferred:
		return MutedStyle.Render(string(s))
	}
	return WarnStyle.Render(string(s))
}

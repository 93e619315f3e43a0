package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revledger/revledger"
	"github.com/revledger/revledger/internal/config"
	"github.com/revledger/revledger/internal/types"
)

// resetCommandState clears flag values left over from a previous run of the
// shared command tree.
func resetCommandState(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetCommandState(sub)
	}
}

// runCLI executes rl with args against the current directory and returns
// stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetCommandState(rootCmd)
	config.ResetForTesting()
	require.NoError(t, config.Initialize())

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	closeRuntime()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	require.NoError(t, err, "rl %s", strings.Join(args, " "))
	return out
}

const testActors = `actors:
  - id: ann
    organization_id: acme
    role: admin
  - id: ed
    organization_id: acme
    role: editor
  - id: mo
    organization_id: acme
    role: member
`

// newProject initializes a project in a fresh directory.
func newProject(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("NO_COLOR", "1")
	t.Setenv("RL_ACTOR", "")
	t.Cleanup(config.ResetForTesting)

	mustRun(t, "init", "--actor", "ann", "--org", "acme")
	require.NoError(t, os.WriteFile(filepath.Join(config.Dir, "actors.yaml"), []byte(testActors), 0o600))
}

func TestInitCreatesProject(t *testing.T) {
	newProject(t)
	for _, name := range []string{"config.yaml", "actors.yaml", "modules.toml", "revledger.db"} {
		_, err := os.Stat(filepath.Join(config.Dir, name))
		assert.NoError(t, err, name)
	}

	out := mustRun(t, "--actor", "ann", "module", "catalog")
	assert.Contains(t, out, "any module key is accepted")
}

func TestInitRequiresActor(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("USER", "")
	t.Setenv("RL_ACTOR", "")
	t.Cleanup(config.ResetForTesting)

	// user.Current may still resolve a name; only assert when it cannot.
	if resolveActor("") != "" {
		t.Skip("an OS user is available")
	}
	_, err := runCLI(t, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no actor")
}

func TestDocumentLifecycleThroughCLI(t *testing.T) {
	newProject(t)

	var doc types.Document
	out := mustRun(t, "--actor", "ed", "--json", "doc", "create", "Fire risk assessment", "--scope", "Block A")
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "acme", doc.OrganizationID)
	assert.Equal(t, types.IssueDraft, doc.IssueStatus)

	_, err := runCLI(t, "--actor", "ed", "issue", doc.ID)
	require.Error(t, err)
	assert.Equal(t, types.CodeValidationFailed, revledger.ErrorCode(err))
	assert.Contains(t, reasonCodes(err), types.ReasonNoModules)

	out = mustRun(t, "--actor", "ed", "preflight", doc.ID)
	assert.Contains(t, out, "cannot be issued yet")
	assert.Contains(t, out, string(types.ReasonNoModules))

	mustRun(t, "--actor", "ed", "module", "set", doc.ID, "means_of_escape", `{"exits": 2}`)
	out = mustRun(t, "--actor", "ed", "preflight", doc.ID)
	assert.Contains(t, out, "ready to issue")

	out = mustRun(t, "--actor", "ed", "issue", doc.ID, "-m", "initial assessment")
	assert.Contains(t, out, "Issued "+doc.ID)

	_, err = runCLI(t, "--actor", "ed", "edit", doc.ID, "--title", "Changed")
	assert.Equal(t, types.CodeEditLocked, revledger.ErrorCode(err))

	var action types.Action
	out = mustRun(t, "--actor", "ed", "--json", "action", "add", doc.ID, "Replace exit signage", "--owner", "mo", "-p", "1")
	require.NoError(t, json.Unmarshal([]byte(out), &action))
	assert.Equal(t, types.ActionOpen, action.Status)

	_, err = runCLI(t, "--actor", "mo", "revise", doc.LineageID)
	assert.Equal(t, types.CodePermissionDenied, revledger.ErrorCode(err))

	out = mustRun(t, "--actor", "ed", "revise", doc.LineageID, "-m", "annual review")
	assert.Contains(t, out, "Carried forward 1 open action(s)")

	out = mustRun(t, "--actor", "mo", "doc", "lineage", doc.LineageID)
	assert.Contains(t, out, "issued")
	assert.Contains(t, out, "draft")

	out = mustRun(t, "--actor", "mo", "doc", "list")
	assert.Contains(t, out, "Fire risk assessment")

	out = mustRun(t, "--actor", "mo", "health", doc.LineageID)
	assert.Contains(t, out, "issued=1 draft=1 superseded=0")

	out = mustRun(t, "--actor", "ann", "health", "--all")
	assert.Contains(t, out, doc.LineageID)

	var events []types.AuditEvent
	out = mustRun(t, "--actor", "mo", "--json", "audit", "--lineage", doc.LineageID, "--since", "1h")
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 2)
	assert.Equal(t, types.EventIssued, events[0].EventType)
	assert.Equal(t, types.EventRevisionCreated, events[1].EventType)

	var pub types.PublishedDocument
	out = mustRun(t, "--json", "doc", "show", "--published", doc.ID)
	require.NoError(t, json.Unmarshal([]byte(out), &pub))
	assert.Equal(t, types.IssueIssued, pub.IssueStatus)
}

func TestApprovalCommands(t *testing.T) {
	newProject(t)

	out := mustRun(t, "--actor", "ann", "approval", "required", "true")
	assert.Contains(t, out, "required")

	var doc types.Document
	out = mustRun(t, "--actor", "ed", "--json", "doc", "create", "Lift inspection")
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	mustRun(t, "--actor", "ed", "module", "set", doc.ID, "cars", `{"count": 1}`)

	_, err := runCLI(t, "--actor", "ed", "issue", doc.ID)
	assert.Contains(t, reasonCodes(err), types.ReasonApprovalRequired)

	mustRun(t, "--actor", "ed", "approval", "request", doc.ID)
	_, err = runCLI(t, "--actor", "ann", "approval", "reject", doc.ID)
	assert.Equal(t, types.CodeValidationFailed, revledger.ErrorCode(err), "reject needs a reason")
	out = mustRun(t, "--actor", "ann", "approval", "reject", doc.ID, "--reason", "missing lift cars")
	assert.Contains(t, out, "rejected")

	mustRun(t, "--actor", "ann", "approval", "reset", doc.ID)
	mustRun(t, "--actor", "ed", "approval", "request", doc.ID)
	mustRun(t, "--actor", "ann", "approval", "approve", doc.ID)
	out = mustRun(t, "--actor", "ed", "issue", doc.ID)
	assert.Contains(t, out, "Issued")
}

func TestActionCommands(t *testing.T) {
	newProject(t)

	var doc types.Document
	out := mustRun(t, "--actor", "ed", "--json", "doc", "create", "Boiler check")
	require.NoError(t, json.Unmarshal([]byte(out), &doc))

	var action types.Action
	out = mustRun(t, "--actor", "ed", "--json", "action", "add", doc.ID, "Bleed radiators")
	require.NoError(t, json.Unmarshal([]byte(out), &action))

	out = mustRun(t, "--actor", "ed", "action", "status", action.ID, "in_progress")
	assert.Contains(t, out, "in_progress")
	mustRun(t, "--actor", "ed", "action", "close", action.ID, "--note", "done")

	_, err := runCLI(t, "--actor", "ed", "action", "reopen", action.ID)
	assert.Equal(t, types.CodeActionTerminal, revledger.ErrorCode(err))

	out = mustRun(t, "--actor", "ann", "action", "reopen", action.ID, "--note", "signed off too early")
	assert.Contains(t, out, "Reopened")

	out = mustRun(t, "--actor", "mo", "action", "list", doc.ID)
	assert.Contains(t, out, "Bleed radiators")
}

func TestConfigCommands(t *testing.T) {
	newProject(t)

	mustRun(t, "config", "set", "log.level", "error")
	out := mustRun(t, "config", "get", "log.level")
	assert.Equal(t, "error\n", out)

	_, err := runCLI(t, "config", "set", "no.such.key", "x")
	assert.Error(t, err)

	out = mustRun(t, "config", "list")
	assert.Contains(t, out, "serve.addr")
}

func TestVersionRunsWithoutProject(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Cleanup(config.ResetForTesting)
	out := mustRun(t, "version")
	assert.Contains(t, out, "rl version "+Version)
}

func TestPrintError(t *testing.T) {
	err := types.NewValidationFailed("issue", types.ReasonNoModules, "document has no modules")

	var buf bytes.Buffer
	printError(&buf, err)
	assert.Contains(t, buf.String(), "Error: issue failed validation")
	assert.Contains(t, buf.String(), "no_modules")

	jsonOutput = true
	t.Cleanup(func() { jsonOutput = false })
	buf.Reset()
	printError(&buf, err)
	var got errorOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, types.CodeValidationFailed, got.Code)
	require.Len(t, got.Reasons, 1)
	assert.Equal(t, types.ReasonNoModules, got.Reasons[0].Code)

	buf.Reset()
	printError(&buf, errors.New("boom"))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "boom", got.Error)
}

func TestReadPayload(t *testing.T) {
	p, err := readPayload(strings.NewReader(`{"a":1}`), "-")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(p))

	path := filepath.Join(t.TempDir(), "m.json")
	require.NoError(t, os.WriteFile(path, []byte(" {\"b\":2}\n"), 0o600))
	p, err = readPayload(nil, "@"+path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2}`, string(p))

	p, err = readPayload(nil, `[1]`)
	require.NoError(t, err)
	assert.Equal(t, "[1]", string(p))
}

func reasonCodes(err error) []types.ReasonCode {
	var codes []types.ReasonCode
	for _, r := range revledger.ReasonsOf(err) {
		codes = append(codes, r.Code)
	}
	return codes
}

package revledger_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revledger/revledger"
	"github.com/revledger/revledger/internal/audit"
	"github.com/revledger/revledger/internal/identity"
	"github.com/revledger/revledger/internal/lifecycle"
	"github.com/revledger/revledger/internal/types"
)

const actorsYAML = `actors:
  - id: alice
    organization_id: acme
    role: admin
  - id: bob
    organization_id: acme
    role: member
`

const catalogTOML = `[modules.escape]
title = "Means of escape"
required = ["exits"]
`

func TestOpenWiresRuntime(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	actors := filepath.Join(dir, "actors.yaml")
	catalog := filepath.Join(dir, "modules.toml")
	mirror := filepath.Join(dir, "audit.jsonl")
	require.NoError(t, os.WriteFile(actors, []byte(actorsYAML), 0o600))
	require.NoError(t, os.WriteFile(catalog, []byte(catalogTOML), 0o600))

	rt, err := revledger.Open(ctx, revledger.Options{
		DBPath:         filepath.Join(dir, "rl.db"),
		IdentityFile:   actors,
		ModulesCatalog: catalog,
		AuditMirror:    mirror,
	})
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, 1, rt.Catalog.Len())

	eng := rt.Engine
	doc, err := eng.CreateDocument(ctx, "alice", lifecycle.NewDocument{OrganizationID: "acme", Title: "FRA"})
	require.NoError(t, err)

	_, err = eng.SetModule(ctx, doc.ID, "alice", "unknown", json.RawMessage(`{"x":1}`))
	assert.Equal(t, types.CodeValidationFailed, revledger.ErrorCode(err), "catalog rejects unknown module keys")

	_, err = eng.SetModule(ctx, doc.ID, "alice", "escape", json.RawMessage(`{"notes":"tbd"}`))
	require.NoError(t, err)
	_, err = eng.Issue(ctx, doc.ID, "alice", "")
	require.Error(t, err)
	reasons := revledger.ReasonsOf(err)
	require.Len(t, reasons, 1)
	assert.Equal(t, types.ReasonModuleIncomplete, reasons[0].Code)

	_, err = eng.SetModule(ctx, doc.ID, "alice", "escape", json.RawMessage(`{"exits":2}`))
	require.NoError(t, err)
	_, err = eng.Issue(ctx, doc.ID, "alice", "first")
	require.NoError(t, err)

	mirrored, err := audit.ReadMirror(mirror)
	require.NoError(t, err)
	require.Len(t, mirrored, 1)
	assert.Equal(t, types.EventIssued, mirrored[0].EventType)

	_, err = eng.CreateRevision(ctx, doc.LineageID, "bob", "")
	assert.Equal(t, types.CodePermissionDenied, revledger.ErrorCode(err))
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := revledger.Open(context.Background(), revledger.Options{Backend: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage backend")
}

func TestNewEngineOverOpenSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := revledger.OpenSQLite(ctx, filepath.Join(t.TempDir(), "rl.db"))
	require.NoError(t, err)
	defer store.Close()

	eng := revledger.NewEngine(store, identity.NewStaticDirectory(
		&revledger.Actor{ID: "ed", OrganizationID: "acme", Role: types.RoleEditor},
	))
	doc, err := eng.CreateDocument(ctx, "ed", lifecycle.NewDocument{OrganizationID: "acme", Title: "FRA"})
	require.NoError(t, err)
	assert.Equal(t, revledger.IssueDraft, doc.IssueStatus)
	assert.Equal(t, 1, doc.VersionNumber)
	assert.Equal(t, doc.ID, doc.LineageID)
}

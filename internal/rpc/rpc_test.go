package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revledger/revledger/internal/identity"
	"github.com/revledger/revledger/internal/lifecycle"
	"github.com/revledger/revledger/internal/storage/sqlite"
	"github.com/revledger/revledger/internal/types"
)

const testToken = "s3cret"

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "rl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var seq atomic.Int64
	dir := identity.NewStaticDirectory(
		&types.Actor{ID: "ann", OrganizationID: "org-a", Role: types.RoleAdmin},
		&types.Actor{ID: "ed", OrganizationID: "org-a", Role: types.RoleEditor},
		&types.Actor{ID: "mo", OrganizationID: "org-a", Role: types.RoleMember},
	)
	m := lifecycle.New(store, dir, lifecycle.WithIDGenerator(func(prefix string) string {
		return fmt.Sprintf("%s-%d", prefix, seq.Add(1))
	}))
	srv := NewServer(m, "test", nil)
	ts := httptest.NewServer(NewHTTPServer(srv, "127.0.0.1:0", testToken).Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestServerHandleUnknownOperation(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := srv.Handle(context.Background(), &Request{Operation: "nope"})
	assert.False(t, resp.Success)
	assert.Equal(t, codeUnknownOperation, resp.Code)
}

func TestServerHandleMalformedArgs(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := srv.Handle(context.Background(), &Request{Operation: OpIssue, Actor: "ed", Args: json.RawMessage(`{"document_id": 5}`)})
	require.False(t, resp.Success)
	assert.Equal(t, types.CodeValidationFailed, resp.Code)
	require.Len(t, resp.Reasons, 1)
	assert.Equal(t, types.ReasonInvalidInput, resp.Reasons[0].Code)
}

func TestMethodTableCoversOperations(t *testing.T) {
	srv, _ := newTestServer(t)
	mapped := map[string]bool{}
	for _, op := range methodMap {
		mapped[op] = true
	}
	for _, op := range srv.Operations() {
		assert.True(t, mapped[op], "operation %s has no HTTP method", op)
	}
}

func TestHTTPAuth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health needs no token")

	for _, header := range []string{"", "Basic abc", "Bearer wrong"} {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+ServicePath+"Ping", strings.NewReader("{}"))
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "header %q", header)
	}

	c := NewHTTPClient(ts.URL, testToken, "ann")
	var ping PingResponse
	require.NoError(t, c.Call(context.Background(), "Ping", struct{}{}, &ping))
	assert.Equal(t, "test", ping.Version)

	err = c.Call(context.Background(), "Frobnicate", struct{}{}, nil)
	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusNotFound, re.Status)
}

func TestHTTPLifecycleRoundTrip(t *testing.T) {
	_, ts := newTestServer(t)
	ctx := context.Background()
	ed := NewHTTPClient(ts.URL, testToken, "ed")

	var doc types.Document
	require.NoError(t, ed.Call(ctx, "CreateDocument", CreateDocumentArgs{OrganizationID: "org-a", Title: "FRA"}, &doc))
	assert.Equal(t, types.IssueDraft, doc.IssueStatus)

	// Empty draft: every blocking reason comes back.
	err := ed.Call(ctx, "Issue", IssueArgs{DocumentID: doc.ID}, nil)
	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusUnprocessableEntity, re.Status)
	assert.Equal(t, types.CodeValidationFailed, re.Code)
	require.NotEmpty(t, re.Reasons)
	assert.Equal(t, types.ReasonNoModules, re.Reasons[0].Code)

	require.NoError(t, ed.Call(ctx, "SetModule", SetModuleArgs{
		DocumentID: doc.ID, ModuleKey: "escape", Payload: json.RawMessage(`{"exits": 2}`),
	}, nil))

	var pre PreflightResponse
	require.NoError(t, ed.Call(ctx, "Preflight", DocumentArgs{DocumentID: doc.ID}, &pre))
	assert.True(t, pre.Ready)

	var issued lifecycle.IssueResult
	require.NoError(t, ed.Call(ctx, "Issue", IssueArgs{DocumentID: doc.ID, ChangeNote: "v1"}, &issued))
	assert.Equal(t, types.IssueIssued, issued.Document.IssueStatus)

	title := "changed"
	err = ed.Call(ctx, "Edit", EditArgs{DocumentID: doc.ID, Title: &title}, nil)
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusConflict, re.Status)
	assert.Equal(t, types.CodeEditLocked, re.Code)

	mo := NewHTTPClient(ts.URL, testToken, "mo")
	err = mo.Call(ctx, "CreateRevision", CreateRevisionArgs{LineageID: doc.LineageID}, nil)
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusForbidden, re.Status)

	err = ed.Call(ctx, "Show", DocumentArgs{DocumentID: "doc-missing"}, nil)
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusNotFound, re.Status)

	var health types.LineageHealth
	require.NoError(t, ed.Call(ctx, "GetLifecycleHealth", LineageArgs{LineageID: doc.LineageID}, &health))
	assert.True(t, health.Healthy)

	var events []*types.AuditEvent
	require.NoError(t, ed.Call(ctx, "AuditHistory", AuditHistoryArgs{LineageID: doc.LineageID}, &events))
	require.Len(t, events, 1)
	assert.Equal(t, types.EventIssued, events[0].EventType)
}

func TestMetricsRecordsCodes(t *testing.T) {
	m := NewMetrics()
	m.SetSlowThreshold(0)
	m.Record(OpIssue, "", 0)
	m.Record(OpIssue, types.CodeValidationFailed, 0)
	m.Record(OpEdit, types.CodeEditLocked, 0)

	snap := m.Snapshot()
	require.Len(t, snap.Operations, 2)
	issue := snap.Operations[0]
	assert.Equal(t, OpIssue, issue.Operation)
	assert.EqualValues(t, 2, issue.TotalCount)
	assert.EqualValues(t, 1, issue.SuccessCount)
	assert.EqualValues(t, 1, issue.ErrorsByCode[types.CodeValidationFailed])
	assert.GreaterOrEqual(t, snap.UptimeSeconds, float64(1))
}

func TestMetricsSlowRequests(t *testing.T) {
	m := NewMetrics()
	m.SetSlowThreshold(1)
	var seen []string
	m.OnSlowRequest(func(op string, _ time.Duration, _ time.Time) { seen = append(seen, op) })
	m.Record(OpShow, "", 5)
	assert.Equal(t, []string{OpShow}, seen)
	assert.Len(t, m.Snapshot().RecentSlow, 1)
}

func TestStatusForCode(t *testing.T) {
	tests := map[string]int{
		types.CodeValidationFailed:   http.StatusUnprocessableEntity,
		types.CodeEditLocked:         http.StatusConflict,
		types.CodeActionTerminal:     http.StatusConflict,
		types.CodeInvalidTransition:  http.StatusConflict,
		types.CodePermissionDenied:   http.StatusForbidden,
		types.CodeNotFound:           http.StatusNotFound,
		types.CodeInvariantViolation: http.StatusInternalServerError,
		types.CodeInternal:           http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusForCode(code), code)
	}
}

package carryforward

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revledger/revledger/internal/types"
)

type fakeStore struct {
	actions map[string][]*types.Action
}

func (f *fakeStore) ListActions(_ context.Context, documentID string) ([]*types.Action, error) {
	return f.actions[documentID], nil
}

func (f *fakeStore) CreateAction(_ context.Context, a *types.Action) error {
	f.actions[a.DocumentID] = append(f.actions[a.DocumentID], a)
	return nil
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("new-%d", n)
	}
}

func TestCarryForwardOnlyOpen(t *testing.T) {
	closedAt := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	reopenedAt := closedAt.Add(time.Hour)
	source := []*types.Action{
		{ID: "O1", DocumentID: "D1", Title: "Fit smoke alarm", Priority: 1, OwnerID: "mo", Status: types.ActionOpen,
			Notes: "hall smoke head", History: "[2026-01-02T00:00:00Z ann] reopened: still chirping",
			ReopenedAt: &reopenedAt, ReopenedBy: "ann"},
		{ID: "O2", DocumentID: "D1", Title: "Clear exit", Priority: 0, Status: types.ActionOpen},
		{ID: "C1", DocumentID: "D1", Title: "Service extinguisher", Status: types.ActionClosed, ClosedAt: &closedAt, ClosedBy: "ed"},
		{ID: "P1", DocumentID: "D1", Title: "Repaint signage", Status: types.ActionInProgress},
		{ID: "F1", DocumentID: "D1", Title: "Replace door", Status: types.ActionDeferred},
	}
	store := &fakeStore{actions: map[string][]*types.Action{"D1": source}}
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e := New(WithIDGenerator(sequentialIDs()), WithClock(func() time.Time { return fixed }))

	created, err := e.CarryForward(context.Background(), store, "D1", "D2")
	require.NoError(t, err)
	require.Len(t, created, 2)

	byOrigin := map[string]*types.Action{}
	for _, a := range created {
		byOrigin[a.OriginActionID] = a
	}
	require.Contains(t, byOrigin, "O1")
	require.Contains(t, byOrigin, "O2")

	o1 := byOrigin["O1"]
	assert.NotEqual(t, "O1", o1.ID)
	assert.Equal(t, "D2", o1.DocumentID)
	assert.Equal(t, types.ActionOpen, o1.Status)
	assert.Equal(t, "Fit smoke alarm", o1.Title)
	assert.Equal(t, 1, o1.Priority)
	assert.Equal(t, "mo", o1.OwnerID)
	assert.Nil(t, o1.ClosedAt)
	assert.Nil(t, o1.ReopenedAt)
	assert.Empty(t, o1.ReopenedBy)
	assert.Equal(t, "hall smoke head", o1.Notes)
	assert.Empty(t, o1.History)
	assert.Equal(t, fixed, o1.CreatedAt)

	// Source actions are untouched.
	assert.Len(t, store.actions["D1"], 5)
	assert.Equal(t, "D1", source[0].DocumentID)
	assert.Equal(t, types.ActionClosed, source[2].Status)
	assert.Len(t, store.actions["D2"], 2)
}

func TestCarryForwardNothingOpen(t *testing.T) {
	store := &fakeStore{actions: map[string][]*types.Action{}}
	created, err := New().CarryForward(context.Background(), store, "D1", "D2")
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestCarryForwardSameDocument(t *testing.T) {
	_, err := New().CarryForward(context.Background(), &fakeStore{}, "D1", "D1")
	require.Error(t, err)
}

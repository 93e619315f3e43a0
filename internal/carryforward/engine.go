// Package carryforward copies unresolved corrective actions from one revision
// of a document into its successor draft.
package carryforward

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/revledger/revledger/internal/types"
)

// Store is the transaction surface the engine needs.
type Store interface {
	ListActions(ctx context.Context, documentID string) ([]*types.Action, error)
	CreateAction(ctx context.Context, action *types.Action) error
}

// Engine performs carry-forward.
type Engine struct {
	newID func() string
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator overrides uuid-based ids, mainly for tests.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithClock overrides time.Now.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) { e.now = fn }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		newID: func() string { return "act-" + uuid.NewString() },
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan returns the actions that carrying source forward into targetID would
// create. Only open actions are copied. Copies get fresh ids and timestamps,
// point back at their source through OriginActionID and carry no closure or
// reopen history. source is not modified.
func (e *Engine) Plan(source []*types.Action, targetID string) []*types.Action {
	now := e.now().UTC()
	var out []*types.Action
	for _, a := range source {
		if a.Status != types.ActionOpen {
			continue
		}
		out = append(out, &types.Action{
			ID:             e.newID(),
			DocumentID:     targetID,
			OriginActionID: a.ID,
			Title:          a.Title,
			Description:    a.Description,
			Priority:       a.Priority,
			OwnerID:        a.OwnerID,
			ModuleKey:      a.ModuleKey,
			Status:         types.ActionOpen,
			Notes:          a.Notes,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return out
}

// CarryForward copies the open actions of sourceID into targetID within the
// caller's transaction and returns the created actions.
func (e *Engine) CarryForward(ctx context.Context, tx Store, sourceID, targetID string) ([]*types.Action, error) {
	if sourceID == targetID {
		return nil, fmt.Errorf("carry forward: source and target are the same document %s", sourceID)
	}
	source, err := tx.ListActions(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("carry forward: list actions of %s: %w", sourceID, err)
	}
	planned := e.Plan(source, targetID)
	for _, a := range planned {
		if err := tx.CreateAction(ctx, a); err != nil {
			return nil, fmt.Errorf("carry forward action %s: %w", a.OriginActionID, err)
		}
	}
	return planned, nil
}

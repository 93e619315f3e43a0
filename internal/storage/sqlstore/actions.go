package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/revledger/revledger/internal/types"
)

const actionColumns = `id, document_id, origin_action_id, title, description, priority, owner_id,
	module_key, status, notes, history, closed_at, closed_by, reopened_at, reopened_by, created_at, updated_at`

type actionRow struct {
	ID             string         `db:"id"`
	DocumentID     string         `db:"document_id"`
	OriginActionID sql.NullString `db:"origin_action_id"`
	Title          string         `db:"title"`
	Description    string         `db:"description"`
	Priority       int            `db:"priority"`
	OwnerID        string         `db:"owner_id"`
	ModuleKey      string         `db:"module_key"`
	Status         string         `db:"status"`
	Notes          string         `db:"notes"`
	History        string         `db:"history"`
	ClosedAt       sql.NullTime   `db:"closed_at"`
	ClosedBy       string         `db:"closed_by"`
	ReopenedAt     sql.NullTime   `db:"reopened_at"`
	ReopenedBy     string         `db:"reopened_by"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r *actionRow) toAction() *types.Action {
	return &types.Action{
		ID:             r.ID,
		DocumentID:     r.DocumentID,
		OriginActionID: r.OriginActionID.String,
		Title:          r.Title,
		Description:    r.Description,
		Priority:       r.Priority,
		OwnerID:        r.OwnerID,
		ModuleKey:      r.ModuleKey,
		Status:         types.ActionStatus(r.Status),
		Notes:          r.Notes,
		History:        r.History,
		ClosedAt:       timePtr(r.ClosedAt),
		ClosedBy:       r.ClosedBy,
		ReopenedAt:     timePtr(r.ReopenedAt),
		ReopenedBy:     r.ReopenedBy,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func (e executor) getAction(ctx context.Context, id string) (*types.Action, error) {
	var row actionRow
	if err := e.q.GetContext(ctx, &row, `SELECT `+actionColumns+` FROM actions WHERE id = ?`, id); err != nil {
		return nil, wrapDBError(fmt.Sprintf("get action %s", id), err)
	}
	return row.toAction(), nil
}

func (e executor) listActions(ctx context.Context, documentID string) ([]*types.Action, error) {
	var rows []actionRow
	err := e.q.SelectContext(ctx, &rows,
		`SELECT `+actionColumns+` FROM actions WHERE document_id = ? ORDER BY priority, created_at, id`, documentID)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("list actions of %s", documentID), err)
	}
	out := make([]*types.Action, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toAction())
	}
	return out, nil
}

func (e executor) createAction(ctx context.Context, a *types.Action) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = a.CreatedAt

	_, err := e.q.ExecContext(ctx, `
		INSERT INTO actions (`+actionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DocumentID, nullString(a.OriginActionID), a.Title, a.Description, a.Priority, a.OwnerID,
		a.ModuleKey, string(a.Status), a.Notes, a.History, nullTime(a.ClosedAt), a.ClosedBy,
		nullTime(a.ReopenedAt), a.ReopenedBy, a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	return e.wrapWriteError(fmt.Sprintf("create action %s", a.ID), err)
}

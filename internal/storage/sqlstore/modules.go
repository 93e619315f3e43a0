package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/revledger/revledger/internal/storage"
	"github.com/revledger/revledger/internal/types"
)

type moduleRow struct {
	DocumentID string    `db:"document_id"`
	ModuleKey  string    `db:"module_key"`
	Payload    string    `db:"payload"`
	UpdatedBy  string    `db:"updated_by"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (e executor) listModuleInstances(ctx context.Context, documentID string) ([]*types.ModuleInstance, error) {
	var rows []moduleRow
	err := e.q.SelectContext(ctx, &rows, `
		SELECT document_id, module_key, payload, updated_by, updated_at
		FROM module_instances WHERE document_id = ? ORDER BY module_key`, documentID)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("list modules of %s", documentID), err)
	}
	out := make([]*types.ModuleInstance, 0, len(rows))
	for _, r := range rows {
		out = append(out, &types.ModuleInstance{
			DocumentID: r.DocumentID,
			ModuleKey:  r.ModuleKey,
			Payload:    json.RawMessage(r.Payload),
			UpdatedBy:  r.UpdatedBy,
			UpdatedAt:  r.UpdatedAt.UTC(),
		})
	}
	return out, nil
}

func (e executor) upsertModuleInstance(ctx context.Context, m *types.ModuleInstance) error {
	if m.DocumentID == "" || m.ModuleKey == "" {
		return fmt.Errorf("module instance requires document_id and module_key")
	}
	payload := m.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("module %s payload is not valid JSON", m.ModuleKey)
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}
	query := e.dialect.UpsertStatement("module_instances",
		[]string{"document_id", "module_key", "payload", "updated_by", "updated_at"},
		[]string{"document_id", "module_key"})
	_, err := e.q.ExecContext(ctx, query, m.DocumentID, m.ModuleKey, string(payload), m.UpdatedBy, m.UpdatedAt.UTC())
	return e.wrapWriteError(fmt.Sprintf("upsert module %s on %s", m.ModuleKey, m.DocumentID), err)
}

func (e executor) deleteModuleInstance(ctx context.Context, documentID, moduleKey string) error {
	res, err := e.q.ExecContext(ctx,
		`DELETE FROM module_instances WHERE document_id = ? AND module_key = ?`, documentID, moduleKey)
	if err != nil {
		return e.wrapWriteError(fmt.Sprintf("delete module %s on %s", moduleKey, documentID), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete module %s on %s: %w", moduleKey, documentID, storage.ErrNotFound)
	}
	return nil
}

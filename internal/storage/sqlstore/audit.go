package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/revledger/revledger/internal/types"
)

type auditRow struct {
	ID             int64     `db:"id"`
	DocumentID     string    `db:"document_id"`
	LineageID      string    `db:"lineage_id"`
	RevisionNumber int       `db:"revision_number"`
	ActorID        string    `db:"actor_id"`
	EventType      string    `db:"event_type"`
	OccurredAt     time.Time `db:"occurred_at"`
	Details        string    `db:"details"`
}

// AppendAuditEvent inserts one audit event. Events are written outside the
// business transaction, after it commits.
func (s *Store) AppendAuditEvent(ctx context.Context, event *types.AuditEvent) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if !event.EventType.IsValid() {
		return fmt.Errorf("append audit event: invalid event type %q", event.EventType)
	}
	if event.DocumentID == "" || event.ActorID == "" {
		return fmt.Errorf("append audit event: document_id and actor_id are required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	details := []byte("{}")
	if len(event.Details) > 0 {
		var err error
		if details, err = json.Marshal(event.Details); err != nil {
			return fmt.Errorf("append audit event: marshal details: %w", err)
		}
	}

	var id int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO audit_events (document_id, lineage_id, revision_number, actor_id, event_type, occurred_at, details)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			event.DocumentID, event.LineageID, event.RevisionNumber, event.ActorID,
			string(event.EventType), event.OccurredAt.UTC(), string(details))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return wrapDBError("append audit event", err)
	}
	event.ID = id
	return nil
}

// ListAuditEvents returns events matching filter in insertion order.
func (s *Store) ListAuditEvents(ctx context.Context, filter types.AuditFilter) ([]*types.AuditEvent, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var where []string
	var args []interface{}
	if filter.DocumentID != "" {
		where = append(where, "document_id = ?")
		args = append(args, filter.DocumentID)
	}
	if filter.LineageID != "" {
		where = append(where, "lineage_id = ?")
		args = append(args, filter.LineageID)
	}
	if filter.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, string(filter.EventType))
	}
	if filter.Since != nil {
		where = append(where, "occurred_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := `SELECT id, document_id, lineage_id, revision_number, actor_id, event_type, occurred_at, details FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapDBError("list audit events", err)
	}
	events := make([]*types.AuditEvent, 0, len(rows))
	for _, r := range rows {
		evt := &types.AuditEvent{
			ID:             r.ID,
			DocumentID:     r.DocumentID,
			LineageID:      r.LineageID,
			RevisionNumber: r.RevisionNumber,
			ActorID:        r.ActorID,
			EventType:      types.EventType(r.EventType),
			OccurredAt:     r.OccurredAt.UTC(),
		}
		if r.Details != "" && r.Details != "{}" {
			if err := json.Unmarshal([]byte(r.Details), &evt.Details); err != nil {
				return nil, fmt.Errorf("decode details of audit event %d: %w", r.ID, err)
			}
		}
		events = append(events, evt)
	}
	return events, nil
}

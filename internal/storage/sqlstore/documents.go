package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/revledger/revledger/internal/storage"
	"github.com/revledger/revledger/internal/types"
)

// executor runs the shared queries against either the pool or a transaction
// connection.
type executor struct {
	q       queryer
	dialect Dialect
}

const documentColumns = `id, lineage_id, version_number, organization_id, title, scope,
	issue_status, change_note, issued_by, issued_at, superseded_by_id, superseded_at,
	artifact_ref, approval_status, approval_reason, approval_updated_by, approval_updated_at,
	created_by, created_at, updated_at`

type documentRow struct {
	ID                string         `db:"id"`
	LineageID         string         `db:"lineage_id"`
	VersionNumber     int            `db:"version_number"`
	OrganizationID    string         `db:"organization_id"`
	Title             string         `db:"title"`
	Scope             string         `db:"scope"`
	IssueStatus       string         `db:"issue_status"`
	ChangeNote        string         `db:"change_note"`
	IssuedBy          string         `db:"issued_by"`
	IssuedAt          sql.NullTime   `db:"issued_at"`
	SupersededByID    sql.NullString `db:"superseded_by_id"`
	SupersededAt      sql.NullTime   `db:"superseded_at"`
	ArtifactRef       string         `db:"artifact_ref"`
	ApprovalStatus    string         `db:"approval_status"`
	ApprovalReason    string         `db:"approval_reason"`
	ApprovalUpdatedBy string         `db:"approval_updated_by"`
	ApprovalUpdatedAt sql.NullTime   `db:"approval_updated_at"`
	CreatedBy         string         `db:"created_by"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (r *documentRow) toDocument() *types.Document {
	return &types.Document{
		ID:                r.ID,
		LineageID:         r.LineageID,
		VersionNumber:     r.VersionNumber,
		OrganizationID:    r.OrganizationID,
		Title:             r.Title,
		Scope:             r.Scope,
		IssueStatus:       types.IssueStatus(r.IssueStatus),
		ChangeNote:        r.ChangeNote,
		IssuedBy:          r.IssuedBy,
		IssuedAt:          timePtr(r.IssuedAt),
		SupersededByID:    r.SupersededByID.String,
		SupersededAt:      timePtr(r.SupersededAt),
		ArtifactRef:       r.ArtifactRef,
		ApprovalStatus:    types.ApprovalStatus(r.ApprovalStatus),
		ApprovalReason:    r.ApprovalReason,
		ApprovalUpdatedBy: r.ApprovalUpdatedBy,
		ApprovalUpdatedAt: timePtr(r.ApprovalUpdatedAt),
		CreatedBy:         r.CreatedBy,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func (e executor) getDocument(ctx context.Context, id string) (*types.Document, error) {
	var row documentRow
	err := e.q.GetContext(ctx, &row, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get document %s", id), err)
	}
	return row.toDocument(), nil
}

func (e executor) listLineage(ctx context.Context, lineageID string) ([]*types.Document, error) {
	var rows []documentRow
	err := e.q.SelectContext(ctx, &rows,
		`SELECT `+documentColumns+` FROM documents WHERE lineage_id = ? ORDER BY version_number`, lineageID)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("list lineage %s", lineageID), err)
	}
	docs := make([]*types.Document, 0, len(rows))
	for i := range rows {
		docs = append(docs, rows[i].toDocument())
	}
	return docs, nil
}

func (e executor) listLineageIDs(ctx context.Context, organizationID string) ([]string, error) {
	var ids []string
	var err error
	if organizationID == "" {
		err = e.q.SelectContext(ctx, &ids, `SELECT DISTINCT lineage_id FROM documents ORDER BY lineage_id`)
	} else {
		err = e.q.SelectContext(ctx, &ids,
			`SELECT DISTINCT lineage_id FROM documents WHERE organization_id = ? ORDER BY lineage_id`, organizationID)
	}
	if err != nil {
		return nil, wrapDBError("list lineage ids", err)
	}
	return ids, nil
}

func (e executor) createDocument(ctx context.Context, doc *types.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = doc.CreatedAt

	_, err := e.q.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.LineageID, doc.VersionNumber, doc.OrganizationID, doc.Title, doc.Scope,
		string(doc.IssueStatus), doc.ChangeNote, doc.IssuedBy, nullTime(doc.IssuedAt),
		nullString(doc.SupersededByID), nullTime(doc.SupersededAt), doc.ArtifactRef,
		string(doc.ApprovalStatus), doc.ApprovalReason, doc.ApprovalUpdatedBy, nullTime(doc.ApprovalUpdatedAt),
		doc.CreatedBy, doc.CreatedAt.UTC(), doc.UpdatedAt.UTC(),
	)
	return e.wrapWriteError(fmt.Sprintf("create document %s", doc.ID), err)
}

// documentUpdateColumns is the whitelist accepted by UpdateDocument.
var documentUpdateColumns = map[string]bool{
	"title":               true,
	"scope":               true,
	"issue_status":        true,
	"change_note":         true,
	"issued_by":           true,
	"issued_at":           true,
	"superseded_by_id":    true,
	"superseded_at":       true,
	"artifact_ref":        true,
	"approval_status":     true,
	"approval_reason":     true,
	"approval_updated_by": true,
	"approval_updated_at": true,
}

var actionUpdateColumns = map[string]bool{
	"title":       true,
	"description": true,
	"priority":    true,
	"owner_id":    true,
	"status":      true,
	"notes":       true,
	"history":     true,
	"closed_at":   true,
	"closed_by":   true,
	"reopened_at": true,
	"reopened_by": true,
}

func (e executor) updateDocument(ctx context.Context, id string, updates map[string]interface{}) error {
	return e.update(ctx, "documents", documentUpdateColumns, id, updates)
}

func (e executor) updateAction(ctx context.Context, id string, updates map[string]interface{}) error {
	return e.update(ctx, "actions", actionUpdateColumns, id, updates)
}

// update builds a single UPDATE from a whitelisted column map. Keys are
// sorted so the generated SQL is stable.
func (e executor) update(ctx context.Context, table string, allowed map[string]bool, id string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	keys := make([]string, 0, len(updates))
	for k := range updates {
		if !allowed[k] {
			return fmt.Errorf("update %s %s: column %q cannot be updated", table, id, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys)+1)
	args := make([]interface{}, 0, len(keys)+2)
	for _, k := range keys {
		sets = append(sets, k+" = ?")
		args = append(args, sqlValue(updates[k]))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", "))
	res, err := e.q.ExecContext(ctx, query, args...)
	if err != nil {
		return e.wrapWriteError(fmt.Sprintf("update %s %s", table, id), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError(fmt.Sprintf("update %s %s", table, id), err)
	}
	if n == 0 {
		return fmt.Errorf("update %s %s: %w", table, id, storage.ErrNotFound)
	}
	return nil
}

// sqlValue normalizes domain values for the driver: typed strings become
// plain strings, times are stored in UTC and empty foreign keys become NULL.
func sqlValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case types.IssueStatus:
		return string(x)
	case types.ApprovalStatus:
		return string(x)
	case types.ActionStatus:
		return string(x)
	case time.Time:
		return x.UTC()
	case *time.Time:
		return nullTime(x)
	default:
		return v
	}
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

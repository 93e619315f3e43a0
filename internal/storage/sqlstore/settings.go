package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/revledger/revledger/internal/storage"
	"github.com/revledger/revledger/internal/types"
)

type settingsRow struct {
	OrganizationID   string    `db:"organization_id"`
	ApprovalRequired bool      `db:"approval_required"`
	UpdatedBy        string    `db:"updated_by"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (e executor) getOrganizationSettings(ctx context.Context, organizationID string) (*types.OrganizationSettings, error) {
	var row settingsRow
	err := e.q.GetContext(ctx, &row, `
		SELECT organization_id, approval_required, updated_by, updated_at
		FROM organization_settings WHERE organization_id = ?`, organizationID)
	if err != nil {
		err = wrapDBError(fmt.Sprintf("get settings for %s", organizationID), err)
		if errors.Is(err, storage.ErrNotFound) {
			return &types.OrganizationSettings{OrganizationID: organizationID}, nil
		}
		return nil, err
	}
	return &types.OrganizationSettings{
		OrganizationID:   row.OrganizationID,
		ApprovalRequired: row.ApprovalRequired,
		UpdatedBy:        row.UpdatedBy,
		UpdatedAt:        row.UpdatedAt.UTC(),
	}, nil
}

func (e executor) setOrganizationSettings(ctx context.Context, settings *types.OrganizationSettings) error {
	if settings.OrganizationID == "" {
		return fmt.Errorf("organization_id is required")
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	query := e.dialect.UpsertStatement("organization_settings",
		[]string{"organization_id", "approval_required", "updated_by", "updated_at"},
		[]string{"organization_id"})
	_, err := e.q.ExecContext(ctx, query,
		settings.OrganizationID, settings.ApprovalRequired, settings.UpdatedBy, settings.UpdatedAt.UTC())
	return e.wrapWriteError(fmt.Sprintf("set settings for %s", settings.OrganizationID), err)
}

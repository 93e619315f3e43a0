package sqlstore

import (
	"context"

	"github.com/revledger/revledger/internal/types"
)

func (s *Store) reader() executor {
	return executor{q: s.db, dialect: s.dialect}
}

// GetDocument retrieves a document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.reader().getDocument(ctx, id)
}

// ListLineage returns every revision of a lineage ordered by version.
func (s *Store) ListLineage(ctx context.Context, lineageID string) ([]*types.Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.reader().listLineage(ctx, lineageID)
}

// ListLineageIDs returns the lineages of an organization.
func (s *Store) ListLineageIDs(ctx context.Context, organizationID string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.reader().listLineageIDs(ctx, organizationID)
}

// ListModuleInstances returns the module payloads of a document.
func (s *Store) ListModuleInstances(ctx context.Context, documentID string) ([]*types.ModuleInstance, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.reader().listModuleInstances(ctx, documentID)
}

// GetAction retrieves an action by id.
func (s *Store) GetAction(ctx context.Context, id string) (*types.Action, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.reader().getAction(ctx, id)
}

// ListActions returns the actions raised on a document.
func (s *Store) ListActions(ctx context.Context, documentID string) ([]*types.Action, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.reader().listActions(ctx, documentID)
}

// GetOrganizationSettings returns the settings of an organization.
func (s *Store) GetOrganizationSettings(ctx context.Context, organizationID string) (*types.OrganizationSettings, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.reader().getOrganizationSettings(ctx, organizationID)
}

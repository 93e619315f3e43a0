package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/revledger/revledger/internal/permission"
	"github.com/revledger/revledger/internal/types"
)

// sweepConcurrency bounds the lineages inspected at once by HealthSweep.
const sweepConcurrency = 8

// LifecycleHealth reports the chain state of one lineage. An unhealthy
// lineage is not an error for the caller but is logged and counted as an
// invariant violation.
func (m *Machine) LifecycleHealth(ctx context.Context, lineageID, actorID string) (h *types.LineageHealth, err error) {
	defer func(start time.Time) { m.observe(ctx, OpLifecycleHealth, start, err) }(m.now())

	actor, err := m.actor(ctx, OpLifecycleHealth, actorID)
	if err != nil {
		return nil, err
	}
	h, err = m.chain.Health(ctx, m.store, lineageID)
	if err != nil {
		return nil, err
	}
	if !permission.CanInspect(actor, h.OrganizationID) {
		return nil, denied(actor, actorID, "inspect", "lineage "+lineageID)
	}
	m.reportHealth(ctx, h)
	return h, nil
}

func (m *Machine) reportHealth(ctx context.Context, h *types.LineageHealth) {
	if h.Healthy {
		return
	}
	m.metrics.InvariantViolation(ctx, h.LineageID)
	m.log.Error("lineage violates chain invariants", "lineage_id", h.LineageID, "violations", h.Violations)
}

// HealthSweep inspects every lineage of an organization concurrently and
// returns the reports ordered by lineage id. An empty organizationID means
// the actor's own organization.
func (m *Machine) HealthSweep(ctx context.Context, organizationID, actorID string) ([]*types.LineageHealth, error) {
	actor, err := m.actor(ctx, OpLifecycleHealth, actorID)
	if err != nil {
		return nil, err
	}
	if organizationID == "" {
		organizationID = actor.OrganizationID
	}
	if !permission.CanInspect(actor, organizationID) {
		return nil, denied(actor, actorID, "inspect", "organization "+organizationID)
	}
	ids, err := m.store.ListLineageIDs(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list lineages: %w", err)
	}

	reports := make([]*types.LineageHealth, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			h, err := m.chain.Health(gctx, m.store, id)
			if err != nil {
				return err
			}
			m.reportHealth(gctx, h)
			reports[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].LineageID < reports[j].LineageID })
	return reports, nil
}

// AuditHistory returns the audit events of a document or lineage, oldest
// first. The filter must name one of them.
func (m *Machine) AuditHistory(ctx context.Context, actorID string, filter types.AuditFilter) ([]*types.AuditEvent, error) {
	actor, err := m.actor(ctx, "read", actorID)
	if err != nil {
		return nil, err
	}
	var doc *types.Document
	switch {
	case filter.DocumentID != "":
		doc, err = getDocument(ctx, m.store, filter.DocumentID)
	case filter.LineageID != "":
		doc, err = getDocument(ctx, m.store, filter.LineageID)
	default:
		return nil, invalid("audit", "a document or lineage is required")
	}
	if err != nil {
		return nil, err
	}
	if !permission.CanInspect(actor, doc.OrganizationID) {
		return nil, denied(actor, actorID, "read audit of", "document "+doc.ID)
	}
	return m.audit.History(ctx, filter)
}

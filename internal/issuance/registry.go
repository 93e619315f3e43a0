package issuance

import (
	"fmt"
	"sync"

	"github.com/revledger/revledger/internal/types"
)

// Input is everything a check may look at. It is loaded once per validation
// so checks stay pure.
type Input struct {
	Actor    *types.Actor
	Document *types.Document
	Modules  []*types.ModuleInstance
	Settings *types.OrganizationSettings
	Lineage  []*types.Document
}

// Check is one pre-flight condition. Run returns nil when satisfied.
type Check struct {
	ID          string
	Description string
	Run         func(in *Input) []types.Reason
}

// Registry holds the registered checks in evaluation order.
type Registry struct {
	mu     sync.RWMutex
	checks []*Check
	byID   map[string]*Check
}

// NewRegistry creates an empty check registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Check)}
}

// Register appends a check. Returns an error if a check with the same ID is
// already registered.
func (r *Registry) Register(c *Check) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[c.ID]; exists {
		return fmt.Errorf("check %q already registered", c.ID)
	}
	r.checks = append(r.checks, c)
	r.byID[c.ID] = c
	return nil
}

// Get returns a check by ID, or nil if not found.
func (r *Registry) Get(id string) *Check {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// Checks returns the registered checks in evaluation order.
func (r *Registry) Checks() []*Check {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Check, len(r.checks))
	copy(result, r.checks)
	return result
}

// Count returns the number of registered checks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.checks)
}

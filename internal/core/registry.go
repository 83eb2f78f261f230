package core

import (
	"fmt"
	"sort"
	"sync"
)

// DatasetDefinition describes a dataset the service knows how to sync.
type DatasetDefinition struct {
	Name           string `yaml:"name" json:"name"`
	Group          string `yaml:"group" json:"group,omitempty"`
	KeyColumn      string `yaml:"keyColumn" json:"keyColumn,omitempty"`
	MetadataColumn string `yaml:"metadataColumn" json:"metadataColumn,omitempty"`
}

// Config returns the sync settings declared by the definition.
func (d DatasetDefinition) Config() SyncConfig {
	return SyncConfig{KeyColumn: d.KeyColumn, MetadataColumn: d.MetadataColumn}
}

// DashboardTabs is the default set of datasets: the tabs of the exported
// dashboard.
var DashboardTabs = []string{
	"Today's allocated",
	"Not started",
	"Draft",
	"Rejected / Insufficient",
	"Submitted",
	"Work in progress",
	"BGV closed",
}

// Registry holds dataset definitions keyed by name. Order of registration is
// preserved so multi-dataset runs are deterministic.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]DatasetDefinition
	order []string
}

// NewRegistry creates a registry holding defs.
func NewRegistry(defs ...DatasetDefinition) (*Registry, error) {
	r := &Registry{defs: make(map[string]DatasetDefinition)}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry returns a registry of DashboardTabs in group "dashboard".
func DefaultRegistry() *Registry {
	r := &Registry{defs: make(map[string]DatasetDefinition)}
	for _, name := range DashboardTabs {
		_ = r.Register(DatasetDefinition{Name: name, Group: "dashboard"})
	}
	return r
}

// Register adds a definition. Names must be non-empty and unique.
func (r *Registry) Register(def DatasetDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("dataset name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("dataset already registered: %s", def.Name)
	}
	r.defs[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// Get returns a definition by name.
func (r *Registry) Get(name string) (DatasetDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	return def, ok
}

// Lookup is Get returning ErrUnknownDataset for unregistered names.
func (r *Registry) Lookup(name string) (DatasetDefinition, error) {
	def, ok := r.Get(name)
	if !ok {
		return DatasetDefinition{}, fmt.Errorf("%w: %s", ErrUnknownDataset, name)
	}
	return def, nil
}

// All returns every definition in registration order.
func (r *Registry) All() []DatasetDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]DatasetDefinition, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.defs[name])
	}
	return result
}

// ByGroup returns the definitions of one group in registration order.
func (r *Registry) ByGroup(group string) []DatasetDefinition {
	var result []DatasetDefinition
	for _, def := range r.All() {
		if def.Group == group {
			result = append(result, def)
		}
	}
	return result
}

// Groups returns all unique group names, sorted alphabetically.
func (r *Registry) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for _, def := range r.defs {
		seen[def.Group] = true
	}

	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// Len returns the number of registered datasets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

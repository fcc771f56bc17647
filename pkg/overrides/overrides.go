// Package overrides maintains the user's manual species lists and per-species
// configuration. Two ordered, duplicate-free lists (manual include and manual
// exclude) steer candidate admission, while a map from species identifier to
// configuration carries per-species thresholds, intervals, and actions.
//
// Duplicate rejection on add is exact-match; membership testing used for
// filtering and pipeline cross-referencing is case-insensitive. Rename
// collision checks are case-insensitive as well, so "great tit" can never
// shadow "Great Tit" with a second configuration.
package overrides

import (
	"sort"
	"strings"
	"sync"

	"github.com/aviarylabs/rangesync/pkg/errors"
)

// Action describes a command to execute when a configured species is
// detected. Parameters are passed in order; ExecuteDefaults controls whether
// the station's default actions also run.
type Action struct {
	Type            string   `json:"type"`
	Command         string   `json:"command"`
	Parameters      []string `json:"parameters"`
	ExecuteDefaults bool     `json:"executeDefaults"`
}

// ActionTypeExecuteCommand is the only action type currently supported.
const ActionTypeExecuteCommand = "ExecuteCommand"

// SpeciesConfig is the per-species override configuration. A zero Interval
// is meaningful (no rate limiting) and must survive persistence.
type SpeciesConfig struct {
	Threshold float64  `json:"threshold"`
	Interval  int      `json:"interval"`
	Actions   []Action `json:"actions"`
}

// Manager owns the include/exclude lists and the species configuration map.
// All mutations are serialized through a single mutex; reads return copies
// so callers can never alias internal state.
type Manager struct {
	mu      sync.Mutex
	include []string
	exclude []string
	configs map[string]SpeciesConfig
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		configs: make(map[string]SpeciesConfig),
	}
}

// Load replaces all lists and configurations, dropping duplicates and blank
// entries from the incoming lists. Used to seed the manager from the initial
// server fetch.
func (m *Manager) Load(include, exclude []string, configs map[string]SpeciesConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.include = dedupe(include)
	m.exclude = dedupe(exclude)
	m.configs = make(map[string]SpeciesConfig, len(configs))
	for id, cfg := range configs {
		if strings.TrimSpace(id) == "" {
			continue
		}
		m.configs[id] = copyConfig(cfg)
	}
}

// AddInclude appends id to the manual include list. It reports false without
// mutating when id is blank or already present (exact match).
func (m *Manager) AddInclude(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return addToList(&m.include, id)
}

// AddExclude appends id to the manual exclude list. It reports false without
// mutating when id is blank or already present (exact match).
func (m *Manager) AddExclude(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return addToList(&m.exclude, id)
}

// RemoveInclude removes the exact id from the include list.
func (m *Manager) RemoveInclude(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return removeFromList(&m.include, id)
}

// RemoveExclude removes the exact id from the exclude list.
func (m *Manager) RemoveExclude(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return removeFromList(&m.exclude, id)
}

// Include returns a copy of the include list in insertion order.
func (m *Manager) Include() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.include...)
}

// Exclude returns a copy of the exclude list in insertion order.
func (m *Manager) Exclude() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.exclude...)
}

// FilterInclude returns the include entries whose identifier contains query,
// compared case-insensitively. An empty query matches everything.
func (m *Manager) FilterInclude(query string) []string {
	return filterList(m.Include(), query)
}

// FilterExclude returns the exclude entries whose identifier contains query,
// compared case-insensitively.
func (m *Manager) FilterExclude(query string) []string {
	return filterList(m.Exclude(), query)
}

// UpsertConfig inserts or replaces the configuration for id. Blank
// identifiers and thresholds outside [0,1] are rejected before any mutation.
func (m *Manager) UpsertConfig(id string, cfg SpeciesConfig) error {
	if strings.TrimSpace(id) == "" {
		return errors.NewValidationError("id", id, "species identifier must not be blank")
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return errors.NewValidationError("threshold", cfg.Threshold, "threshold must be within [0, 1]")
	}
	if cfg.Interval < 0 {
		return errors.NewValidationError("interval", cfg.Interval, "interval must be non-negative")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[id] = copyConfig(cfg)
	return nil
}

// Rename atomically moves the configuration from oldID to newID. The rename
// is rejected, leaving the map untouched, when newID already carries a
// configuration (case-insensitive collision check) or when oldID has none.
func (m *Manager) Rename(oldID, newID string) error {
	if strings.TrimSpace(newID) == "" {
		return errors.NewValidationError("newID", newID, "species identifier must not be blank")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, ok := m.configs[oldID]
	if !ok {
		return errors.ErrNotFound
	}
	if oldID == newID {
		return nil
	}

	folded := strings.ToLower(newID)
	for existing := range m.configs {
		if existing != oldID && strings.ToLower(existing) == folded {
			return &errors.RenameError{OldID: oldID, NewID: newID}
		}
	}

	delete(m.configs, oldID)
	m.configs[newID] = cfg
	return nil
}

// RemoveConfig deletes the configuration for id, reporting whether it existed.
func (m *Manager) RemoveConfig(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.configs[id]; !ok {
		return false
	}
	delete(m.configs, id)
	return true
}

// Config returns the configuration for id, if present.
func (m *Manager) Config(id string) (SpeciesConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, ok := m.configs[id]
	if !ok {
		return SpeciesConfig{}, false
	}
	return copyConfig(cfg), true
}

// Configs returns a copy of the full configuration map.
func (m *Manager) Configs() map[string]SpeciesConfig {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]SpeciesConfig, len(m.configs))
	for id, cfg := range m.configs {
		out[id] = copyConfig(cfg)
	}
	return out
}

// ConfigIDs returns the configured identifiers, sorted for stable output.
func (m *Manager) ConfigIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.configs))
	for id := range m.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CrossRef is an immutable, case-folded view of the manager used by a
// reconciliation run. It is captured before the catalog call so membership
// tests inside the run are unaffected by concurrent edits.
type CrossRef struct {
	includeSet map[string]struct{}
	configSet  map[string]struct{}
}

// CrossRef captures the current include list and configuration key set.
func (m *Manager) CrossRef() CrossRef {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref := CrossRef{
		includeSet: make(map[string]struct{}, len(m.include)),
		configSet:  make(map[string]struct{}, len(m.configs)),
	}
	for _, id := range m.include {
		ref.includeSet[strings.ToLower(id)] = struct{}{}
	}
	for id := range m.configs {
		ref.configSet[strings.ToLower(id)] = struct{}{}
	}
	return ref
}

// Included reports case-insensitive membership in the captured include list.
func (r CrossRef) Included(id string) bool {
	_, ok := r.includeSet[strings.ToLower(id)]
	return ok
}

// Configured reports case-insensitive membership in the captured config keys.
func (r CrossRef) Configured(id string) bool {
	_, ok := r.configSet[strings.ToLower(id)]
	return ok
}

func addToList(list *[]string, id string) bool {
	if strings.TrimSpace(id) == "" {
		return false
	}
	for _, existing := range *list {
		if existing == id {
			return false
		}
	}
	*list = append(*list, id)
	return true
}

func removeFromList(list *[]string, id string) bool {
	for i, existing := range *list {
		if existing == id {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

func filterList(list []string, query string) []string {
	if query == "" {
		return list
	}
	folded := strings.ToLower(query)
	out := make([]string, 0, len(list))
	for _, id := range list {
		if strings.Contains(strings.ToLower(id), folded) {
			out = append(out, id)
		}
	}
	return out
}

func dedupe(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, id := range list {
		if strings.TrimSpace(id) == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func copyConfig(cfg SpeciesConfig) SpeciesConfig {
	out := cfg
	out.Actions = append([]Action(nil), cfg.Actions...)
	for i := range out.Actions {
		out.Actions[i].Parameters = append([]string(nil), cfg.Actions[i].Parameters...)
	}
	return out
}

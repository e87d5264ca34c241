package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned for unknown or unusable connector keys.
var ErrNotFound = errors.New("connector not found")

type entry struct {
	def    Definition
	plugin Plugin
}

// ConnectorRegistry is the central registry for all connectors.
// It is populated once at startup and only read afterwards.
type ConnectorRegistry struct {
	entries map[string]entry
	order   []string
}

// NewRegistry creates a new connector registry.
func NewRegistry() *ConnectorRegistry {
	return &ConnectorRegistry{
		entries: make(map[string]entry),
		order:   make([]string, 0),
	}
}

// Register adds a connector definition and its plugin to the registry.
// A nil plugin lists the connector in the catalogue without making it usable.
func (r *ConnectorRegistry) Register(def Definition, plugin Plugin) error {
	key := NormalizeKey(def.Key)
	if key == "" {
		return fmt.Errorf("connector key cannot be empty")
	}
	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("connector key %q already registered", key)
	}
	def = def.clone()
	def.Key = key
	if plugin == nil {
		def.Configured = false
	}
	r.entries[key] = entry{def: def, plugin: plugin}
	r.order = append(r.order, key)
	sort.Strings(r.order)
	return nil
}

// Get returns the definition and plugin for a usable connector.
func (r *ConnectorRegistry) Get(key string) (Definition, Plugin, error) {
	e, ok := r.entries[NormalizeKey(key)]
	if !ok || e.plugin == nil || !e.def.Usable() {
		return Definition{}, nil, ErrNotFound
	}
	return e.def.clone(), e.plugin, nil
}

// Lookup returns a definition whether or not it is usable.
func (r *ConnectorRegistry) Lookup(key string) (Definition, bool) {
	e, ok := r.entries[NormalizeKey(key)]
	if !ok {
		return Definition{}, false
	}
	return e.def.clone(), true
}

// List returns all registered definitions ordered by key.
func (r *ConnectorRegistry) List() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, key := range r.order {
		defs = append(defs, r.entries[key].def.clone())
	}
	return defs
}

// Availability reports the catalogue state of every registered connector.
func (r *ConnectorRegistry) Availability() []Availability {
	out := make([]Availability, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, newAvailability(r.entries[key].def))
	}
	return out
}

// NormalizeKey lowercases and trims a connector key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

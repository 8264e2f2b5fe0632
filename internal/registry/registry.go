// Package registry maps logical agent names to network endpoints.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/agentfleet/agentfleet/internal/agentdef"
	"github.com/agentfleet/agentfleet/internal/observability"
)

// ErrNotFound is returned by Resolve for unknown agent names.
var ErrNotFound = errors.New("agent not found")

// Entry is a registered agent.
type Entry struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	Metadata any    `json:"metadata,omitempty"`
}

// Registry is an in-memory directory of agents, safe for concurrent
// registration and lookup. Registering an existing name replaces it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds or replaces the entry for name.
func (r *Registry) Register(name, endpoint string, metadata any) {
	r.mu.Lock()
	r.entries[name] = Entry{Name: name, Endpoint: endpoint, Metadata: metadata}
	r.mu.Unlock()

	if logger := observability.Logger(); logger != nil {
		logger.Debug("Registered agent",
			zap.String("agent", name),
			zap.String("endpoint", endpoint))
	}
}

// Resolve returns the endpoint for name, or ErrNotFound.
func (r *Registry) Resolve(name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return entry.Endpoint, nil
}

// Lookup returns the full entry for name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	return entry, ok
}

// List returns every entry sorted by name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	entries := r.List()
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name
	}
	return names
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Endpoint builds the base URL an agent listens on.
func Endpoint(host string, port int) string {
	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// FromDefinitions registers each definition in order at http://host:port.
// The definition itself is kept as the entry metadata.
func FromDefinitions(defs []*agentdef.Definition, host string) *Registry {
	r := New()
	for _, def := range defs {
		if def == nil {
			continue
		}
		r.Register(def.Metadata.Name, Endpoint(host, def.A2A.Port), def)
	}
	return r
}

// FromJSON builds a registry from a JSON object of name to URL, the format of
// the AGENTFLEET_AGENT_REGISTRY environment variable. Blank input yields an
// empty registry.
func FromJSON(raw string) (*Registry, error) {
	r := New()
	if strings.TrimSpace(raw) == "" {
		return r, nil
	}

	var urls map[string]string
	if err := json.Unmarshal([]byte(raw), &urls); err != nil {
		return nil, fmt.Errorf("parse agent registry: %w", err)
	}

	names := make([]string, 0, len(urls))
	for name := range urls {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.Register(name, strings.TrimRight(urls[name], "/"), nil)
	}
	return r, nil
}

// Merge registers every entry of other into r, replacing duplicates.
func (r *Registry) Merge(other *Registry) {
	if other == nil {
		return
	}
	for _, entry := range other.List() {
		r.Register(entry.Name, entry.Endpoint, entry.Metadata)
	}
}

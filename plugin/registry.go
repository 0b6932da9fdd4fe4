package plugin

import (
	"sync"

	"github.com/soyeahso/scaffold/logging"
)

// Entry pairs a plugin with its registered identifier.
type Entry struct {
	ID     string
	Plugin Plugin
}

// Registry holds the active plugins of one system, keyed by identifier.
// Only the orchestrator mutates it: at registration, when the disabled
// list is applied, and when a removable hook asks for a detach.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	order   []string // registration order, load-bearing for merges and rosters
	log     *logging.Logger
}

// NewRegistry creates an empty plugin registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		log:     log.Sub("plugins"),
	}
}

// Register resolves src and stores the plugin under id. Re-registering
// an identifier is last-write-wins: the new instance replaces the old
// one and keeps the original position in registration order.
func (r *Registry) Register(id string, src Source, core Core) Plugin {
	p := src.resolve(core)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[id]; exists {
		r.log.Debug().Str("id", id).Msg("plugin re-registered, replacing previous instance")
	} else {
		r.order = append(r.order, id)
	}
	r.plugins[id] = p

	r.log.Info().Str("id", id).Bool("managed", isManaged(p)).Msg("plugin registered")
	return p
}

// Remove drops a plugin by identifier, reporting whether anything was
// removed. Absent identifiers are not an error.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.plugins[id]; !ok {
		return false
	}
	delete(r.plugins, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a plugin by identifier.
func (r *Registry) Get(id string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	return p, ok
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Entries returns all plugins in registration order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, Entry{ID: id, Plugin: r.plugins[id]})
	}
	return out
}

// WithHook returns the plugins implementing hook h, in registration
// order, reflecting the registry's state at call time.
func (r *Registry) WithHook(h Hook) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry
	for _, id := range r.order {
		p := r.plugins[id]
		if Implements(p, h) {
			out = append(out, Entry{ID: id, Plugin: p})
		}
	}
	return out
}

// RosterEntry describes one plugin for diagnostic output.
type RosterEntry struct {
	ID      string `json:"id"`
	Managed bool   `json:"managed"`
}

// Roster returns the plugins in registration order, marking which are
// managed (built on Base) versus self-managed.
func (r *Registry) Roster() []RosterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RosterEntry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, RosterEntry{ID: id, Managed: isManaged(r.plugins[id])})
	}
	return out
}

func isManaged(p Plugin) bool {
	_, ok := p.(Managed)
	return ok
}

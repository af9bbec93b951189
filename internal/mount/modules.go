// ABOUTME: Runtime-discoverable table of compiled-in agent server modules
// ABOUTME: Factories are keyed by the manifest's server_entry reference

package mount

import (
	"net/http"
	"sync"
)

// RouteRegistrar is the entire contract an agent server module must satisfy
// to be mountable: accept the shared mux and register zero or more routes.
// The mount manager has no other expectations of module internals.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux) error
}

// Factory constructs one instance of an agent server module. The returned
// value is validated against RouteRegistrar before use; nothing else about
// its structure is trusted.
type Factory func() any

// ModuleTable maps server-entry references to module factories. It is
// populated at startup by whichever binary links the agent modules in, then
// treated as read-mostly by the mount manager.
type ModuleTable struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewModuleTable creates an empty module table.
func NewModuleTable() *ModuleTable {
	return &ModuleTable{factories: make(map[string]Factory)}
}

// Register adds a factory under the given server-entry reference,
// overwriting any previous registration for the same reference.
func (t *ModuleTable) Register(ref string, factory Factory) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.factories[ref] = factory
}

// Resolve returns the factory for a server-entry reference.
func (t *ModuleTable) Resolve(ref string) (Factory, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.factories[ref]
	return f, ok
}

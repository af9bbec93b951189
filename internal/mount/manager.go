// ABOUTME: Mounts agent server modules onto the shared mux exactly once
// ABOUTME: Idempotent across repeated and concurrent calls for the same slug

package mount

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"sync"

	"github.com/hearthside/agenthub/internal/catalog"
)

// Mount errors
var (
	ErrUnknownAgent   = errors.New("unknown agent")
	ErrModuleNotFound = errors.New("agent server module not found")
	ErrNotMountable   = errors.New("module does not register routes")
)

// Manager loads agent server modules on first use and attaches their routes
// to the shared server. A module mounts exactly once per process; all later
// calls for the same slug are no-ops.
type Manager struct {
	catalog *catalog.Catalog
	modules *ModuleTable
	mux     *http.ServeMux
	logger  *slog.Logger

	// mu serializes mounts so concurrent callers for the same slug cannot
	// double-register routes. The mounted set is the presence check.
	mu      sync.Mutex
	mounted map[string]RouteRegistrar
}

// NewManager creates a mount Manager over the shared mux.
func NewManager(cat *catalog.Catalog, modules *ModuleTable, mux *http.ServeMux, logger *slog.Logger) *Manager {
	return &Manager{
		catalog: cat,
		modules: modules,
		mux:     mux,
		logger:  logger.With("component", "mount"),
		mounted: make(map[string]RouteRegistrar),
	}
}

// Mount resolves the agent's server-entry module, validates it, and registers
// its routes on the shared mux. A failure leaves the agent unmounted and
// unusable but never takes down the host process; the caller gets the error.
func (m *Manager) Mount(slug string) error {
	entry, ok := m.catalog.Get(slug)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAgent, slug)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, done := m.mounted[slug]; done {
		return nil
	}

	ref := moduleRef(entry.Descriptor.Slug, entry.Descriptor.ServerEntry)
	factory, ok := m.modules.Resolve(ref)
	if !ok {
		return fmt.Errorf("%w: %q", ErrModuleNotFound, ref)
	}

	loaded := factory()
	registrar, ok := loaded.(RouteRegistrar)
	if !ok {
		return fmt.Errorf("%w: module %q is %T", ErrNotMountable, ref, loaded)
	}

	if err := registrar.RegisterRoutes(m.mux); err != nil {
		return fmt.Errorf("registering routes for %q: %w", slug, err)
	}

	m.mounted[slug] = registrar
	entry.SetHandler(registrar)

	m.logger.Info("=== AGENT MOUNTED ===",
		"slug", slug,
		"module", ref,
		"total_mounted", len(m.mounted),
	)
	return nil
}

// IsMounted reports whether the agent's module has been mounted.
func (m *Manager) IsMounted(slug string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.mounted[slug]
	return ok
}

// MountedCount returns the number of mounted agents (for tests/monitoring).
func (m *Manager) MountedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mounted)
}

// moduleRef builds the module table key from the agent slug and its
// server-entry path. The entry path is resolved relative to the agent
// directory, so two agents shipping a module at the same relative path
// never collide.
func moduleRef(slug, serverEntry string) string {
	return path.Join(slug, path.Clean(serverEntry))
}

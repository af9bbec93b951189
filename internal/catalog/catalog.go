// ABOUTME: Thread-safe in-process catalog of loaded agent descriptors
// ABOUTME: Syncs descriptors to the durable agents table and tracks mounted handlers

package catalog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearthside/agenthub/internal/manifest"
	"github.com/hearthside/agenthub/internal/store"
)

// ErrAgentNotFound indicates the requested agent is not in the catalog.
var ErrAgentNotFound = errors.New("agent not found in catalog")

// ErrAlreadyRegistered indicates a descriptor with the same slug was
// registered before. Slugs are immutable once loaded.
var ErrAlreadyRegistered = errors.New("agent already registered")

// Entry is one catalog entry: the descriptor, its durable row ID, and the
// handler reference recorded once the agent's server module is mounted.
type Entry struct {
	Descriptor *manifest.Descriptor
	RecordID   int64

	mu      sync.Mutex
	handler any // set by the mount manager, nil until mounted
}

// SetHandler records the loaded handler reference for this entry.
func (e *Entry) SetHandler(h any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// Handler returns the mounted handler reference, nil if not yet mounted.
func (e *Entry) Handler() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handler
}

// Mounted reports whether the agent's server module has been mounted.
func (e *Entry) Mounted() bool {
	return e.Handler() != nil
}

// SyncStore is the slice of the store the catalog needs for persistence.
type SyncStore interface {
	UpsertAgent(ctx context.Context, rec *store.AgentRecord) (int64, error)
	ListOrganizations(ctx context.Context) ([]*store.Organization, error)
	RecordInstall(ctx context.Context, install *store.AgentInstall) error
}

// Catalog is the process-wide registry mapping agent slugs to descriptors.
// It exclusively owns the descriptor instances; other components read them
// through Get and List.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	store   SyncStore
	logger  *slog.Logger

	// autoInstallFree enables the optional pass that installs free-tier
	// agents for every existing organization at registration time.
	autoInstallFree bool
}

// Config contains construction options for the Catalog.
type Config struct {
	Store           SyncStore
	Logger          *slog.Logger
	AutoInstallFree bool
}

// New creates an empty Catalog.
func New(cfg Config) *Catalog {
	return &Catalog{
		entries:         make(map[string]*Entry),
		store:           cfg.Store,
		logger:          cfg.Logger.With("component", "catalog"),
		autoInstallFree: cfg.AutoInstallFree,
	}
}

// Register adds a loaded descriptor to the catalog and upserts it into the
// durable agents table. Descriptors registered through this path are always
// published; unpublishing is a separate administrative action.
// Returns ErrAlreadyRegistered if the slug is already present.
func (c *Catalog) Register(ctx context.Context, desc *manifest.Descriptor) error {
	c.mu.Lock()
	if _, exists := c.entries[desc.Slug]; exists {
		c.mu.Unlock()
		return ErrAlreadyRegistered
	}
	entry := &Entry{Descriptor: desc}
	c.entries[desc.Slug] = entry
	c.mu.Unlock()

	id, err := c.store.UpsertAgent(ctx, recordFromDescriptor(desc))
	if err != nil {
		// Roll the in-memory registration back so a retry can succeed.
		c.mu.Lock()
		delete(c.entries, desc.Slug)
		c.mu.Unlock()
		return err
	}
	entry.RecordID = id

	c.logger.Info("=== AGENT REGISTERED ===",
		"slug", desc.Slug,
		"version", desc.Version,
		"min_plan", desc.MinPlan,
		"total_agents", c.Count(),
	)

	if c.autoInstallFree && desc.MinPlan == manifest.PlanFree {
		if err := c.installForAllOrgs(ctx, desc.Slug); err != nil {
			c.logger.Warn("auto-install pass failed", "slug", desc.Slug, "error", err)
		}
	}

	return nil
}

// installForAllOrgs records an active install of the agent for every existing
// organization. Administrative convenience for free-tier agents.
func (c *Catalog) installForAllOrgs(ctx context.Context, slug string) error {
	orgs, err := c.store.ListOrganizations(ctx)
	if err != nil {
		return err
	}
	for _, org := range orgs {
		install := &store.AgentInstall{
			ID:          uuid.New().String(),
			OrgID:       org.ID,
			AgentSlug:   slug,
			InstalledBy: "system",
			Active:      true,
			InstalledAt: time.Now(),
		}
		if err := c.store.RecordInstall(ctx, install); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a catalog entry by slug.
func (c *Catalog) Get(slug string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[slug]
	return entry, ok
}

// List returns all catalog entries.
func (c *Catalog) List() []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]*Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	return entries
}

// Count returns the number of registered agents.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// recordFromDescriptor converts a manifest descriptor into its durable row.
func recordFromDescriptor(d *manifest.Descriptor) *store.AgentRecord {
	return &store.AgentRecord{
		Slug:         d.Slug,
		Name:         d.Name,
		Description:  d.Description,
		Category:     d.Category,
		Provider:     d.Provider,
		ClientEntry:  d.ClientEntry,
		ServerEntry:  d.ServerEntry,
		Capabilities: d.Capabilities,
		Icon:         d.Icon,
		MinPlan:      d.MinPlan,
		Visibility:   d.Visibility,
		PricingModel: d.Pricing.Model,
		AmountCents:  d.Pricing.AmountCents,
		Currency:     d.Pricing.Currency,
		Version:      d.Version,
		Tags:         d.Tags,
		ConfigJSON:   encodeConfig(d.Config),
		Published:    true,
	}
}

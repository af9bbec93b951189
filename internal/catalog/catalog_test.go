// ABOUTME: Tests for the in-memory catalog and its durable sync
// ABOUTME: Covers registration, duplicates, rollback, and the auto-install pass

package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/hearthside/agenthub/internal/manifest"
	"github.com/hearthside/agenthub/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDescriptor(slug string) *manifest.Descriptor {
	return &manifest.Descriptor{
		Slug:         slug,
		Name:         "Agent " + slug,
		Description:  "test agent",
		Category:     "test",
		Provider:     "Hearthside",
		ClientEntry:  "client",
		ServerEntry:  slug + "/server",
		Capabilities: []string{"chat"},
		MinPlan:      manifest.PlanFree,
		Visibility:   manifest.VisibilityAdmin,
		Pricing:      manifest.Pricing{Model: "free"},
		Version:      "0.1.0",
	}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegisterAndGet(t *testing.T) {
	c := New(Config{Store: newTestStore(t), Logger: testLogger()})

	if err := c.Register(context.Background(), testDescriptor("echo")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	entry, ok := c.Get("echo")
	if !ok {
		t.Fatal("Get returned false for registered agent")
	}
	if entry.Descriptor.Slug != "echo" {
		t.Errorf("Slug = %q, want echo", entry.Descriptor.Slug)
	}
	if entry.RecordID == 0 {
		t.Error("RecordID not set from store upsert")
	}
	if entry.Mounted() {
		t.Error("freshly registered entry reports mounted")
	}
	if c.Count() != 1 {
		t.Errorf("Count = %d, want 1", c.Count())
	}
}

func TestRegister_Duplicate(t *testing.T) {
	c := New(Config{Store: newTestStore(t), Logger: testLogger()})

	if err := c.Register(context.Background(), testDescriptor("echo")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	err := c.Register(context.Background(), testDescriptor("echo"))
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("error = %v, want ErrAlreadyRegistered", err)
	}
	if c.Count() != 1 {
		t.Errorf("Count = %d, want 1 after duplicate", c.Count())
	}
}

// failingStore rejects every upsert so registration rollback can be observed.
type failingStore struct{}

func (failingStore) UpsertAgent(ctx context.Context, rec *store.AgentRecord) (int64, error) {
	return 0, errors.New("disk full")
}
func (failingStore) ListOrganizations(ctx context.Context) ([]*store.Organization, error) {
	return nil, nil
}
func (failingStore) RecordInstall(ctx context.Context, install *store.AgentInstall) error {
	return nil
}

func TestRegister_StoreFailureRollsBack(t *testing.T) {
	c := New(Config{Store: failingStore{}, Logger: testLogger()})

	err := c.Register(context.Background(), testDescriptor("echo"))
	if err == nil {
		t.Fatal("Register succeeded despite store failure")
	}

	// The in-memory entry must be gone so a retry can succeed.
	if _, ok := c.Get("echo"); ok {
		t.Error("entry still present after failed registration")
	}
	if c.Count() != 0 {
		t.Errorf("Count = %d, want 0", c.Count())
	}
}

func TestRegister_AutoInstallFree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"org-1", "org-2"} {
		org := &store.Organization{ID: id, Name: id, Plan: "free", CreatedAt: time.Now().UTC()}
		if err := s.CreateOrganization(ctx, org); err != nil {
			t.Fatalf("CreateOrganization failed: %v", err)
		}
	}

	c := New(Config{Store: s, Logger: testLogger(), AutoInstallFree: true})

	if err := c.Register(ctx, testDescriptor("echo")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	for _, orgID := range []string{"org-1", "org-2"} {
		install, err := s.GetInstall(ctx, orgID, "echo")
		if err != nil {
			t.Fatalf("GetInstall(%s) failed: %v", orgID, err)
		}
		if !install.Active {
			t.Errorf("install for %s not active", orgID)
		}
		if install.InstalledBy != "system" {
			t.Errorf("InstalledBy = %q, want system", install.InstalledBy)
		}
	}
}

func TestRegister_AutoInstallSkipsPaidAgents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	org := &store.Organization{ID: "org-1", Name: "org-1", Plan: "free", CreatedAt: time.Now().UTC()}
	if err := s.CreateOrganization(ctx, org); err != nil {
		t.Fatalf("CreateOrganization failed: %v", err)
	}

	c := New(Config{Store: s, Logger: testLogger(), AutoInstallFree: true})

	desc := testDescriptor("pro-bot")
	desc.MinPlan = manifest.PlanProfessional
	if err := c.Register(ctx, desc); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, err := s.GetInstall(ctx, "org-1", "pro-bot"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound (paid agent must not auto-install)", err)
	}
}

func TestRegister_AutoInstallOffByDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	org := &store.Organization{ID: "org-1", Name: "org-1", Plan: "free", CreatedAt: time.Now().UTC()}
	if err := s.CreateOrganization(ctx, org); err != nil {
		t.Fatalf("CreateOrganization failed: %v", err)
	}

	c := New(Config{Store: s, Logger: testLogger()})

	if err := c.Register(ctx, testDescriptor("echo")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, err := s.GetInstall(ctx, "org-1", "echo"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound when auto-install is off", err)
	}
}

func TestSetHandler(t *testing.T) {
	c := New(Config{Store: newTestStore(t), Logger: testLogger()})

	if err := c.Register(context.Background(), testDescriptor("echo")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	entry, _ := c.Get("echo")
	handler := struct{ name string }{"echo-module"}
	entry.SetHandler(handler)

	if !entry.Mounted() {
		t.Error("Mounted = false after SetHandler")
	}
	if got := entry.Handler(); got != any(handler) {
		t.Errorf("Handler = %v, want the stored module", got)
	}
}

func TestList(t *testing.T) {
	c := New(Config{Store: newTestStore(t), Logger: testLogger()})

	for _, slug := range []string{"a", "b", "c"} {
		if err := c.Register(context.Background(), testDescriptor(slug)); err != nil {
			t.Fatalf("Register(%s) failed: %v", slug, err)
		}
	}

	if got := len(c.List()); got != 3 {
		t.Errorf("List returned %d entries, want 3", got)
	}
}

// ABOUTME: Tests for the mount manager's load-once semantics
// ABOUTME: Covers idempotency, concurrency, and each validation failure mode

package mount

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hearthside/agenthub/internal/catalog"
	"github.com/hearthside/agenthub/internal/manifest"
	"github.com/hearthside/agenthub/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingModule records how many times its routes were registered.
type countingModule struct {
	registrations atomic.Int64
	failRegister  bool
}

func (m *countingModule) RegisterRoutes(mux *http.ServeMux) error {
	if m.failRegister {
		return errors.New("route conflict")
	}
	m.registrations.Add(1)
	return nil
}

type testEnv struct {
	catalog *catalog.Catalog
	modules *ModuleTable
	manager *Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cat := catalog.New(catalog.Config{Store: s, Logger: testLogger()})
	modules := NewModuleTable()
	return &testEnv{
		catalog: cat,
		modules: modules,
		manager: NewManager(cat, modules, http.NewServeMux(), testLogger()),
	}
}

func (e *testEnv) addAgent(t *testing.T, slug string) {
	t.Helper()
	desc := &manifest.Descriptor{
		Slug:         slug,
		Name:         "Agent " + slug,
		Description:  "test",
		Category:     "test",
		Provider:     "Hearthside",
		ClientEntry:  "client",
		ServerEntry:  "server",
		Capabilities: []string{"chat"},
		MinPlan:      manifest.PlanFree,
		Visibility:   manifest.VisibilityAdmin,
		Pricing:      manifest.Pricing{Model: "free"},
	}
	if err := e.catalog.Register(context.Background(), desc); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
}

func TestMount(t *testing.T) {
	env := newTestEnv(t)
	env.addAgent(t, "echo")

	mod := &countingModule{}
	env.modules.Register("echo/server", func() any { return mod })

	if err := env.manager.Mount("echo"); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	if !env.manager.IsMounted("echo") {
		t.Error("IsMounted = false after mount")
	}
	if mod.registrations.Load() != 1 {
		t.Errorf("registrations = %d, want 1", mod.registrations.Load())
	}

	entry, _ := env.catalog.Get("echo")
	if !entry.Mounted() {
		t.Error("catalog entry not marked mounted")
	}
}

func TestMount_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	env.addAgent(t, "echo")

	mod := &countingModule{}
	env.modules.Register("echo/server", func() any { return mod })

	for i := 0; i < 5; i++ {
		if err := env.manager.Mount("echo"); err != nil {
			t.Fatalf("Mount %d failed: %v", i, err)
		}
	}

	if mod.registrations.Load() != 1 {
		t.Errorf("registrations = %d after 5 mounts, want 1", mod.registrations.Load())
	}
	if env.manager.MountedCount() != 1 {
		t.Errorf("MountedCount = %d, want 1", env.manager.MountedCount())
	}
}

func TestMount_Concurrent(t *testing.T) {
	env := newTestEnv(t)
	env.addAgent(t, "echo")

	mod := &countingModule{}
	env.modules.Register("echo/server", func() any { return mod })

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := env.manager.Mount("echo"); err != nil {
				t.Errorf("concurrent Mount failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if mod.registrations.Load() != 1 {
		t.Errorf("registrations = %d after concurrent mounts, want 1", mod.registrations.Load())
	}
}

func TestMount_UnknownAgent(t *testing.T) {
	env := newTestEnv(t)

	err := env.manager.Mount("ghost")
	if !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("error = %v, want ErrUnknownAgent", err)
	}
}

func TestMount_ModuleNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.addAgent(t, "echo")

	err := env.manager.Mount("echo")
	if !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("error = %v, want ErrModuleNotFound", err)
	}
	if env.manager.IsMounted("echo") {
		t.Error("agent marked mounted after failure")
	}
}

func TestMount_NotMountable(t *testing.T) {
	env := newTestEnv(t)
	env.addAgent(t, "echo")

	// Factory returns something without RegisterRoutes.
	env.modules.Register("echo/server", func() any { return struct{}{} })

	err := env.manager.Mount("echo")
	if !errors.Is(err, ErrNotMountable) {
		t.Errorf("error = %v, want ErrNotMountable", err)
	}
}

func TestMount_RegisterRoutesFailure(t *testing.T) {
	env := newTestEnv(t)
	env.addAgent(t, "echo")

	env.modules.Register("echo/server", func() any { return &countingModule{failRegister: true} })

	if err := env.manager.Mount("echo"); err == nil {
		t.Fatal("Mount succeeded despite route registration failure")
	}
	if env.manager.IsMounted("echo") {
		t.Error("agent marked mounted after route registration failure")
	}

	entry, _ := env.catalog.Get("echo")
	if entry.Mounted() {
		t.Error("catalog entry marked mounted after failure")
	}
}

func TestModuleRef(t *testing.T) {
	tests := []struct {
		slug  string
		entry string
		want  string
	}{
		{"echo", "server", "echo/server"},
		{"billing-bot", "./server", "billing-bot/server"},
		{"echo", "cmd/server", "echo/cmd/server"},
	}
	for _, tt := range tests {
		if got := moduleRef(tt.slug, tt.entry); got != tt.want {
			t.Errorf("moduleRef(%q, %q) = %q, want %q", tt.slug, tt.entry, got, tt.want)
		}
	}
}

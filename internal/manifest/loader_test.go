// ABOUTME: Tests for the agents directory scanner
// ABOUTME: Verifies broken manifests are isolated and never abort the scan

package manifest

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func agentManifest(slug string) string {
	return `
slug = "` + slug + `"
name = "Agent ` + slug + `"
description = "test agent"
category = "test"
provider = "Hearthside"
client_entry = "client"
server_entry = "` + slug + `/server"
capabilities = ["chat"]
version = "0.1.0"
`
}

func writeAgentDir(t *testing.T, root, dirName, manifest string) {
	t.Helper()
	dir := filepath.Join(root, dirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating agent dir: %v", err)
	}
	if manifest != "" {
		path := filepath.Join(dir, ManifestFileName)
		if err := os.WriteFile(path, []byte(manifest), 0644); err != nil {
			t.Fatalf("writing manifest: %v", err)
		}
	}
}

func TestLoadAll(t *testing.T) {
	root := t.TempDir()
	writeAgentDir(t, root, "echo", agentManifest("echo"))
	writeAgentDir(t, root, "billing-bot", agentManifest("billing-bot"))

	loader := NewLoader(root, testLogger())
	descriptors, loadErrs, err := loader.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	if len(loadErrs) != 0 {
		t.Errorf("loadErrs = %v, want none", loadErrs)
	}
	if len(descriptors) != 2 {
		t.Fatalf("loaded %d descriptors, want 2", len(descriptors))
	}

	for _, d := range descriptors {
		if d.Dir == "" {
			t.Errorf("descriptor %q has empty Dir", d.Slug)
		}
		if !filepath.IsAbs(d.Dir) {
			t.Errorf("descriptor %q Dir is not absolute: %q", d.Slug, d.Dir)
		}
	}
}

func TestLoadAll_BrokenManifestIsolated(t *testing.T) {
	root := t.TempDir()
	writeAgentDir(t, root, "echo", agentManifest("echo"))
	writeAgentDir(t, root, "broken", `slug = "broken`)
	writeAgentDir(t, root, "other", agentManifest("other"))

	loader := NewLoader(root, testLogger())
	descriptors, loadErrs, err := loader.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	if len(descriptors) != 2 {
		t.Errorf("loaded %d descriptors, want 2 (broken excluded)", len(descriptors))
	}
	if len(loadErrs) != 1 {
		t.Fatalf("loadErrs = %d, want 1", len(loadErrs))
	}
	if loadErrs[0].Dir != "broken" {
		t.Errorf("loadErrs[0].Dir = %q, want %q", loadErrs[0].Dir, "broken")
	}
	if !errors.Is(loadErrs[0], ErrManifestParse) {
		t.Errorf("loadErrs[0] = %v, want ErrManifestParse", loadErrs[0])
	}
}

func TestLoadAll_SlugMismatch(t *testing.T) {
	root := t.TempDir()
	// Directory is billing-bot, manifest declares billingbot.
	writeAgentDir(t, root, "billing-bot", agentManifest("billingbot"))

	loader := NewLoader(root, testLogger())
	descriptors, loadErrs, err := loader.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	if len(descriptors) != 0 {
		t.Errorf("loaded %d descriptors, want 0", len(descriptors))
	}
	if len(loadErrs) != 1 || !errors.Is(loadErrs[0], ErrSlugMismatch) {
		t.Errorf("loadErrs = %v, want one ErrSlugMismatch", loadErrs)
	}
}

func TestLoadAll_SkipsNonAgentEntries(t *testing.T) {
	root := t.TempDir()
	writeAgentDir(t, root, "echo", agentManifest("echo"))
	writeAgentDir(t, root, "_wip", agentManifest("_wip"))
	writeAgentDir(t, root, ".hidden", agentManifest(".hidden"))
	writeAgentDir(t, root, "no-manifest-yet", "")
	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("docs"), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	loader := NewLoader(root, testLogger())
	descriptors, loadErrs, err := loader.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	if len(descriptors) != 1 || descriptors[0].Slug != "echo" {
		t.Errorf("descriptors = %v, want only echo", descriptors)
	}
	if len(loadErrs) != 0 {
		t.Errorf("loadErrs = %v, want none", loadErrs)
	}
}

func TestLoadAll_MissingRoot(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope"), testLogger())
	_, _, err := loader.LoadAll()
	if err == nil {
		t.Error("expected error for missing root directory")
	}
}

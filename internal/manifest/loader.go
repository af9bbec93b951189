// ABOUTME: Scans an agents directory tree and loads one descriptor per agent
// ABOUTME: Per-agent failures are collected, one broken manifest never aborts the load

package manifest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// IgnorePrefix marks agent directories excluded from loading (work in
// progress, disabled, editor droppings).
const IgnorePrefix = "_"

// LoadError records a single agent directory that failed to load.
type LoadError struct {
	Dir string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading agent %q: %v", e.Dir, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader reads agent manifests from a root directory.
type Loader struct {
	root   string
	logger *slog.Logger
}

// NewLoader creates a Loader rooted at the given agents directory.
func NewLoader(root string, logger *slog.Logger) *Loader {
	return &Loader{
		root:   root,
		logger: logger.With("component", "manifest"),
	}
}

// LoadAll scans every subdirectory of the root for an agent manifest.
//
// A directory without a manifest file is skipped silently: it may be a
// work-in-progress agent. A directory whose manifest fails to parse, fails
// validation, or declares a slug different from the directory name produces
// a LoadError and is excluded, without aborting the rest of the scan.
func (l *Loader) LoadAll() ([]*Descriptor, []*LoadError, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, nil, fmt.Errorf("reading agents directory: %w", err)
	}

	var (
		descriptors []*Descriptor
		loadErrs    []*LoadError
	)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, IgnorePrefix) || strings.HasPrefix(name, ".") {
			continue
		}

		dir := filepath.Join(l.root, name)
		desc, err := l.loadOne(dir, name)
		if err != nil {
			if os.IsNotExist(err) {
				// No manifest: not an agent directory yet.
				l.logger.Debug("skipping directory without manifest", "dir", name)
				continue
			}
			loadErrs = append(loadErrs, &LoadError{Dir: name, Err: err})
			l.logger.Error("agent failed to load",
				"dir", name,
				"error", err,
			)
			continue
		}

		descriptors = append(descriptors, desc)
		l.logger.Info("agent manifest loaded",
			"slug", desc.Slug,
			"version", desc.Version,
			"min_plan", desc.MinPlan,
		)
	}

	l.logger.Info("manifest scan complete",
		"root", l.root,
		"loaded", len(descriptors),
		"failed", len(loadErrs),
	)

	return descriptors, loadErrs, nil
}

// loadOne parses and validates the manifest inside a single agent directory.
// Returns an error satisfying os.IsNotExist when the manifest file is absent.
func (l *Loader) loadOne(dir, dirName string) (*Descriptor, error) {
	path := filepath.Join(dir, ManifestFileName)
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	desc, err := Parse(path)
	if err != nil {
		return nil, err
	}

	if desc.Slug != dirName {
		return nil, fmt.Errorf("%w: manifest declares %q, directory is %q",
			ErrSlugMismatch, desc.Slug, dirName)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	desc.Dir = abs

	return desc, nil
}

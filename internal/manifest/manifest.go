// ABOUTME: Agent descriptor types and TOML manifest parsing
// ABOUTME: One agent.toml per agent directory describes a mountable agent module

package manifest

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ManifestFileName is the descriptor file expected inside each agent directory.
const ManifestFileName = "agent.toml"

// Manifest validation errors
var (
	ErrMissingField  = errors.New("missing required manifest field")
	ErrSlugMismatch  = errors.New("manifest slug does not match directory name")
	ErrInvalidPlan   = errors.New("invalid minimum plan")
	ErrInvalidScope  = errors.New("invalid visibility scope")
	ErrManifestParse = errors.New("manifest parse failure")
)

// Visibility scopes for a loaded agent.
const (
	VisibilityAdmin = "admin" // visible to org admins only until entitled
	VisibilityOrg   = "org"   // visible to every member of an entitled org
	VisibilityAll   = "all"   // visible platform-wide
)

// Plan tier names, ordered free < starter < professional < enterprise.
const (
	PlanFree         = "free"
	PlanStarter      = "starter"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)

// Pricing describes how an agent is billed. The platform's billing engine
// interprets these fields; the registry only stores them.
type Pricing struct {
	Model       string `toml:"model"` // "free", "flat", "metered"
	AmountCents int64  `toml:"amount_cents"`
	Currency    string `toml:"currency"`
}

// Descriptor is the in-memory form of one agent manifest.
// Slug is immutable once loaded and must equal the agent's directory name.
type Descriptor struct {
	Slug         string            `toml:"slug"`
	Name         string            `toml:"name"`
	Description  string            `toml:"description"` // markdown, rendered on the agent card
	Category     string            `toml:"category"`
	Provider     string            `toml:"provider"`
	ClientEntry  string            `toml:"client_entry"`
	ServerEntry  string            `toml:"server_entry"`
	Capabilities []string          `toml:"capabilities"`
	Icon         string            `toml:"icon"`
	MinPlan      string            `toml:"min_plan"`
	Visibility   string            `toml:"visibility"`
	Pricing      Pricing           `toml:"pricing"`
	Version      string            `toml:"version"`
	Tags         []string          `toml:"tags"`
	Config       map[string]any    `toml:"config"`

	// Dir is the absolute path of the agent directory the manifest was read
	// from. Set by the loader, not by the manifest file.
	Dir string `toml:"-"`
}

// validPlans is the ordered set of recognized plan tiers.
var validPlans = map[string]bool{
	PlanFree:         true,
	PlanStarter:      true,
	PlanProfessional: true,
	PlanEnterprise:   true,
}

var validVisibility = map[string]bool{
	VisibilityAdmin: true,
	VisibilityOrg:   true,
	VisibilityAll:   true,
}

// Parse reads a manifest file and returns the descriptor with defaults applied.
// It does not check the slug against the directory name; the loader does that.
func Parse(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var d Descriptor
	if err := toml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestParse, err)
	}

	d.applyDefaults()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// applyDefaults fills optional fields the manifest omitted.
func (d *Descriptor) applyDefaults() {
	if d.MinPlan == "" {
		d.MinPlan = PlanFree
	}
	if d.Visibility == "" {
		d.Visibility = VisibilityAdmin
	}
	if d.Pricing.Model == "" {
		d.Pricing.Model = "free"
	}
}

// Validate checks that all required fields are present and enum fields hold
// recognized values.
func (d *Descriptor) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"slug", d.Slug},
		{"name", d.Name},
		{"description", d.Description},
		{"category", d.Category},
		{"provider", d.Provider},
		{"client_entry", d.ClientEntry},
		{"server_entry", d.ServerEntry},
	}
	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}
	if len(d.Capabilities) == 0 {
		return fmt.Errorf("%w: capabilities", ErrMissingField)
	}
	if !validPlans[d.MinPlan] {
		return fmt.Errorf("%w: %q", ErrInvalidPlan, d.MinPlan)
	}
	if !validVisibility[d.Visibility] {
		return fmt.Errorf("%w: %q", ErrInvalidScope, d.Visibility)
	}
	return nil
}

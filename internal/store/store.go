// ABOUTME: Store interface and data types for agenthub persistence
// ABOUTME: Defines agent catalog rows, entitlements, grants, installs, orgs and users

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrUsernameExists is returned when creating a user with a taken username
var ErrUsernameExists = errors.New("username already exists")

// Role names for users.
const (
	RolePlatformAdmin = "platform_admin"
	RoleOrgAdmin      = "org_admin"
	RoleMember        = "member"
)

// Entitlement statuses.
const (
	EntitlementEnabled  = "enabled"
	EntitlementDisabled = "disabled"
)

// Grant levels.
const (
	GrantUse    = "use"
	GrantManage = "manage"
)

// AgentRecord is the durable catalog row for one agent descriptor.
// Slug is the natural key; ID is the generated durable key referenced by
// install and entitlement records.
type AgentRecord struct {
	ID           int64
	Slug         string
	Name         string
	Description  string
	Category     string
	Provider     string
	ClientEntry  string
	ServerEntry  string
	Capabilities []string
	Icon         string
	MinPlan      string
	Visibility   string
	PricingModel string
	AmountCents  int64
	Currency     string
	Version      string
	Tags         []string
	ConfigJSON   string
	Published    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OrgEntitlement is the per-organization on/off switch for an agent.
// At most one row exists per (org, agent) pair.
type OrgEntitlement struct {
	OrgID      string
	AgentSlug  string
	Status     string // "enabled" | "disabled"
	EnabledBy  string
	EnabledAt  time.Time
	DisabledAt *time.Time
}

// UserGrant is a per-user access record scoped to one org and one agent.
// A nil RevokedAt means the grant is currently active; revocation is logical.
type UserGrant struct {
	ID        string
	UserID    string
	AgentSlug string
	OrgID     string
	Level     string // "use" | "manage"
	GrantedBy string
	GrantedAt time.Time
	RevokedAt *time.Time
}

// AgentInstall records that an organization opted into an agent. Distinct
// from the entitlement toggle: installs track who pulled the agent in and
// whether the installation is still active.
type AgentInstall struct {
	ID          string
	OrgID       string
	AgentSlug   string
	InstalledBy string
	Active      bool
	InstalledAt time.Time
}

// Organization is a tenant with a subscription plan.
type Organization struct {
	ID        string
	Name      string
	Plan      string // tier name, see manifest plan constants
	CreatedAt time.Time
}

// User is an account that can authenticate and open agent sessions.
// OrgID is nil for platform-level users operating outside any tenant.
type User struct {
	ID           string
	Username     string
	PasswordHash string // bcrypt
	OrgID        *string
	Role         string // "platform_admin" | "org_admin" | "member"
	CreatedAt    time.Time
}

// Store defines the persistence interface for the agent registry.
type Store interface {
	// Agent catalog
	UpsertAgent(ctx context.Context, rec *AgentRecord) (int64, error)
	GetAgent(ctx context.Context, slug string) (*AgentRecord, error)
	ListAgents(ctx context.Context) ([]*AgentRecord, error)
	SetAgentPublished(ctx context.Context, slug string, published bool) error

	// Organization entitlements
	SetEntitlement(ctx context.Context, orgID, agentSlug, status, actor string) error
	GetEntitlement(ctx context.Context, orgID, agentSlug string) (*OrgEntitlement, error)
	ListEntitlements(ctx context.Context, orgID string) ([]*OrgEntitlement, error)

	// User grants
	GrantAccess(ctx context.Context, grant *UserGrant) error
	RevokeAccess(ctx context.Context, userID, agentSlug, orgID string) error
	GetActiveGrant(ctx context.Context, userID, agentSlug, orgID string) (*UserGrant, error)
	ListGrants(ctx context.Context, userID, orgID string) ([]*UserGrant, error)

	// Installs
	RecordInstall(ctx context.Context, install *AgentInstall) error
	GetInstall(ctx context.Context, orgID, agentSlug string) (*AgentInstall, error)

	// Organizations
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	ListOrganizations(ctx context.Context) ([]*Organization, error)

	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// Close releases any resources held by the store
	Close() error
}

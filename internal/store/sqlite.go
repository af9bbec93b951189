// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides catalog/entitlement/grant persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			slug              TEXT NOT NULL UNIQUE,
			name              TEXT NOT NULL,
			description       TEXT NOT NULL,
			category          TEXT NOT NULL,
			provider          TEXT NOT NULL,
			client_entry      TEXT NOT NULL,
			server_entry      TEXT NOT NULL,
			capabilities_json TEXT NOT NULL,
			icon              TEXT,
			min_plan          TEXT NOT NULL DEFAULT 'free',
			visibility        TEXT NOT NULL DEFAULT 'admin',
			pricing_model     TEXT NOT NULL DEFAULT 'free',
			amount_cents      INTEGER NOT NULL DEFAULT 0,
			currency          TEXT,
			version           TEXT,
			tags_json         TEXT,
			config_json       TEXT,
			published         INTEGER NOT NULL DEFAULT 1,
			created_at        TEXT NOT NULL,
			updated_at        TEXT NOT NULL,

			CHECK (min_plan IN ('free', 'starter', 'professional', 'enterprise')),
			CHECK (visibility IN ('admin', 'org', 'all'))
		);

		CREATE INDEX IF NOT EXISTS idx_agents_category ON agents(category);
		CREATE INDEX IF NOT EXISTS idx_agents_published ON agents(published);

		CREATE TABLE IF NOT EXISTS org_entitlements (
			org_id      TEXT NOT NULL,
			agent_slug  TEXT NOT NULL,
			status      TEXT NOT NULL,
			enabled_by  TEXT NOT NULL,
			enabled_at  TEXT NOT NULL,
			disabled_at TEXT,

			PRIMARY KEY (org_id, agent_slug),
			CHECK (status IN ('enabled', 'disabled'))
		);

		CREATE INDEX IF NOT EXISTS idx_entitlements_org ON org_entitlements(org_id);

		CREATE TABLE IF NOT EXISTS user_grants (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			agent_slug TEXT NOT NULL,
			org_id     TEXT NOT NULL,
			level      TEXT NOT NULL,
			granted_by TEXT NOT NULL,
			granted_at TEXT NOT NULL,
			revoked_at TEXT,

			UNIQUE (user_id, agent_slug, org_id),
			CHECK (level IN ('use', 'manage'))
		);

		CREATE INDEX IF NOT EXISTS idx_grants_user ON user_grants(user_id, org_id);

		CREATE TABLE IF NOT EXISTS agent_installs (
			id           TEXT PRIMARY KEY,
			org_id       TEXT NOT NULL,
			agent_slug   TEXT NOT NULL,
			installed_by TEXT NOT NULL,
			active       INTEGER NOT NULL DEFAULT 1,
			installed_at TEXT NOT NULL,

			UNIQUE (org_id, agent_slug)
		);

		CREATE TABLE IF NOT EXISTS organizations (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			plan       TEXT NOT NULL DEFAULT 'free',
			created_at TEXT NOT NULL,

			CHECK (plan IN ('free', 'starter', 'professional', 'enterprise'))
		);

		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			org_id        TEXT REFERENCES organizations(id),
			role          TEXT NOT NULL,
			created_at    TEXT NOT NULL,

			CHECK (role IN ('platform_admin', 'org_admin', 'member'))
		);

		CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
		CREATE INDEX IF NOT EXISTS idx_users_org ON users(org_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings, otherwise the string itself
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// encodeStrings marshals a string slice as a JSON array, "[]" when empty.
func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// decodeStrings unmarshals a JSON array column into a string slice.
func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

// UpsertAgent inserts the agent row or updates the mutable fields of an
// existing row keyed by slug, bumping updated_at. Returns the durable
// generated ID in both cases. The upsert is a single statement so concurrent
// loads of the same slug cannot produce duplicate rows.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, rec *AgentRecord) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		INSERT INTO agents (
			slug, name, description, category, provider,
			client_entry, server_entry, capabilities_json, icon,
			min_plan, visibility, pricing_model, amount_cents, currency,
			version, tags_json, config_json, published, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			provider = excluded.provider,
			client_entry = excluded.client_entry,
			server_entry = excluded.server_entry,
			capabilities_json = excluded.capabilities_json,
			icon = excluded.icon,
			min_plan = excluded.min_plan,
			visibility = excluded.visibility,
			pricing_model = excluded.pricing_model,
			amount_cents = excluded.amount_cents,
			currency = excluded.currency,
			version = excluded.version,
			tags_json = excluded.tags_json,
			config_json = excluded.config_json,
			published = excluded.published,
			updated_at = excluded.updated_at
	`

	published := 0
	if rec.Published {
		published = 1
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.Slug,
		rec.Name,
		rec.Description,
		rec.Category,
		rec.Provider,
		rec.ClientEntry,
		rec.ServerEntry,
		encodeStrings(rec.Capabilities),
		nullString(rec.Icon),
		rec.MinPlan,
		rec.Visibility,
		rec.PricingModel,
		rec.AmountCents,
		nullString(rec.Currency),
		nullString(rec.Version),
		encodeStrings(rec.Tags),
		nullString(rec.ConfigJSON),
		published,
		now,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("upserting agent: %w", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM agents WHERE slug = ?`, rec.Slug).Scan(&id); err != nil {
		return 0, fmt.Errorf("reading agent id: %w", err)
	}

	s.logger.Debug("upserted agent", "slug", rec.Slug, "id", id)
	return id, nil
}

const agentColumns = `
	id, slug, name, description, category, provider,
	client_entry, server_entry, capabilities_json, icon,
	min_plan, visibility, pricing_model, amount_cents, currency,
	version, tags_json, config_json, published, created_at, updated_at
`

// scanAgent scans one agent row from a *sql.Row or *sql.Rows.
func scanAgent(scan func(dest ...any) error) (*AgentRecord, error) {
	var (
		rec                     AgentRecord
		capsJSON                string
		icon, currency, version sql.NullString
		tagsJSON, configJSON    sql.NullString
		published               int
		createdAt, updatedAt    string
	)

	err := scan(
		&rec.ID, &rec.Slug, &rec.Name, &rec.Description, &rec.Category, &rec.Provider,
		&rec.ClientEntry, &rec.ServerEntry, &capsJSON, &icon,
		&rec.MinPlan, &rec.Visibility, &rec.PricingModel, &rec.AmountCents, &currency,
		&version, &tagsJSON, &configJSON, &published, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Capabilities = decodeStrings(capsJSON)
	rec.Icon = icon.String
	rec.Currency = currency.String
	rec.Version = version.String
	rec.Tags = decodeStrings(tagsJSON.String)
	rec.ConfigJSON = configJSON.String
	rec.Published = published != 0
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &rec, nil
}

// GetAgent retrieves an agent row by slug.
// Returns ErrNotFound if no agent with that slug exists.
func (s *SQLiteStore) GetAgent(ctx context.Context, slug string) (*AgentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE slug = ?`, slug)

	rec, err := scanAgent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}
	return rec, nil
}

// ListAgents returns all agent rows ordered by slug.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*AgentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*AgentRecord
	for rows.Next() {
		rec, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		agents = append(agents, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}
	return agents, nil
}

// SetAgentPublished flips the published flag for an agent.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) SetAgentPublished(ctx context.Context, slug string, published bool) error {
	val := 0
	if published {
		val = 1
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE agents SET published = ?, updated_at = ? WHERE slug = ?
	`, val, time.Now().UTC().Format(time.RFC3339), slug)
	if err != nil {
		return fmt.Errorf("updating published flag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Info("agent publication changed", "slug", slug, "published", published)
	return nil
}

// SetEntitlement enables or disables an agent for an organization. A single
// upsert keyed by (org_id, agent_slug) guarantees at most one row per pair
// even under concurrent callers.
func (s *SQLiteStore) SetEntitlement(ctx context.Context, orgID, agentSlug, status, actor string) error {
	if status != EntitlementEnabled && status != EntitlementDisabled {
		return fmt.Errorf("invalid entitlement status %q", status)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var disabledAt any
	if status == EntitlementDisabled {
		disabledAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO org_entitlements (org_id, agent_slug, status, enabled_by, enabled_at, disabled_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id, agent_slug) DO UPDATE SET
			status = excluded.status,
			enabled_by = excluded.enabled_by,
			disabled_at = excluded.disabled_at
	`, orgID, agentSlug, status, actor, now, disabledAt)
	if err != nil {
		return fmt.Errorf("setting entitlement: %w", err)
	}

	s.logger.Info("entitlement set",
		"org_id", orgID,
		"agent", agentSlug,
		"status", status,
		"actor", actor,
	)
	return nil
}

// GetEntitlement retrieves the entitlement row for (org, agent).
// Returns ErrNotFound if the organization was never entitled.
func (s *SQLiteStore) GetEntitlement(ctx context.Context, orgID, agentSlug string) (*OrgEntitlement, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT org_id, agent_slug, status, enabled_by, enabled_at, disabled_at
		FROM org_entitlements
		WHERE org_id = ? AND agent_slug = ?
	`, orgID, agentSlug)

	ent, err := scanEntitlement(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying entitlement: %w", err)
	}
	return ent, nil
}

// ListEntitlements returns all entitlement rows for an organization.
func (s *SQLiteStore) ListEntitlements(ctx context.Context, orgID string) ([]*OrgEntitlement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT org_id, agent_slug, status, enabled_by, enabled_at, disabled_at
		FROM org_entitlements
		WHERE org_id = ?
		ORDER BY agent_slug
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("querying entitlements: %w", err)
	}
	defer rows.Close()

	var ents []*OrgEntitlement
	for rows.Next() {
		ent, err := scanEntitlement(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning entitlement row: %w", err)
		}
		ents = append(ents, ent)
	}
	return ents, rows.Err()
}

func scanEntitlement(scan func(dest ...any) error) (*OrgEntitlement, error) {
	var (
		ent        OrgEntitlement
		enabledAt  string
		disabledAt sql.NullString
	)

	if err := scan(&ent.OrgID, &ent.AgentSlug, &ent.Status, &ent.EnabledBy, &enabledAt, &disabledAt); err != nil {
		return nil, err
	}

	ent.EnabledAt, _ = time.Parse(time.RFC3339, enabledAt)
	if disabledAt.Valid {
		t, _ := time.Parse(time.RFC3339, disabledAt.String)
		ent.DisabledAt = &t
	}
	return &ent, nil
}

// GrantAccess creates a user grant, or re-activates an existing one for the
// same (user, agent, org) triple. Re-granting supersedes the prior row rather
// than duplicating it: the revocation timestamp is cleared and the level,
// actor, and grant time are replaced.
func (s *SQLiteStore) GrantAccess(ctx context.Context, grant *UserGrant) error {
	level := grant.Level
	if level == "" {
		level = GrantUse
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_grants (id, user_id, agent_slug, org_id, level, granted_by, granted_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(user_id, agent_slug, org_id) DO UPDATE SET
			level = excluded.level,
			granted_by = excluded.granted_by,
			granted_at = excluded.granted_at,
			revoked_at = NULL
	`,
		grant.ID,
		grant.UserID,
		grant.AgentSlug,
		grant.OrgID,
		level,
		grant.GrantedBy,
		grant.GrantedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("granting access: %w", err)
	}

	s.logger.Info("access granted",
		"user_id", grant.UserID,
		"agent", grant.AgentSlug,
		"org_id", grant.OrgID,
		"level", level,
	)
	return nil
}

// RevokeAccess sets the revocation timestamp on an active grant. Revocation
// is logical: the row survives so a later re-grant supersedes it.
// Returns ErrNotFound if no active grant exists.
func (s *SQLiteStore) RevokeAccess(ctx context.Context, userID, agentSlug, orgID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE user_grants
		SET revoked_at = ?
		WHERE user_id = ? AND agent_slug = ? AND org_id = ? AND revoked_at IS NULL
	`, time.Now().UTC().Format(time.RFC3339), userID, agentSlug, orgID)
	if err != nil {
		return fmt.Errorf("revoking access: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Info("access revoked", "user_id", userID, "agent", agentSlug, "org_id", orgID)
	return nil
}

// GetActiveGrant retrieves the active (non-revoked) grant for the triple.
// Returns ErrNotFound if the user has no active grant.
func (s *SQLiteStore) GetActiveGrant(ctx context.Context, userID, agentSlug, orgID string) (*UserGrant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, agent_slug, org_id, level, granted_by, granted_at, revoked_at
		FROM user_grants
		WHERE user_id = ? AND agent_slug = ? AND org_id = ? AND revoked_at IS NULL
	`, userID, agentSlug, orgID)

	grant, err := scanGrant(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying grant: %w", err)
	}
	return grant, nil
}

// ListGrants returns all grants (active and revoked) for a user in an org.
func (s *SQLiteStore) ListGrants(ctx context.Context, userID, orgID string) ([]*UserGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, agent_slug, org_id, level, granted_by, granted_at, revoked_at
		FROM user_grants
		WHERE user_id = ? AND org_id = ?
		ORDER BY agent_slug
	`, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("querying grants: %w", err)
	}
	defer rows.Close()

	var grants []*UserGrant
	for rows.Next() {
		grant, err := scanGrant(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning grant row: %w", err)
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

func scanGrant(scan func(dest ...any) error) (*UserGrant, error) {
	var (
		grant     UserGrant
		grantedAt string
		revokedAt sql.NullString
	)

	if err := scan(&grant.ID, &grant.UserID, &grant.AgentSlug, &grant.OrgID,
		&grant.Level, &grant.GrantedBy, &grantedAt, &revokedAt); err != nil {
		return nil, err
	}

	grant.GrantedAt, _ = time.Parse(time.RFC3339, grantedAt)
	if revokedAt.Valid {
		t, _ := time.Parse(time.RFC3339, revokedAt.String)
		grant.RevokedAt = &t
	}
	return &grant, nil
}

// RecordInstall records an organization opting into an agent. Re-installing
// the same agent re-activates the existing row.
func (s *SQLiteStore) RecordInstall(ctx context.Context, install *AgentInstall) error {
	active := 0
	if install.Active {
		active = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_installs (id, org_id, agent_slug, installed_by, active, installed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id, agent_slug) DO UPDATE SET
			installed_by = excluded.installed_by,
			active = excluded.active,
			installed_at = excluded.installed_at
	`,
		install.ID,
		install.OrgID,
		install.AgentSlug,
		install.InstalledBy,
		active,
		install.InstalledAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording install: %w", err)
	}

	s.logger.Debug("install recorded", "org_id", install.OrgID, "agent", install.AgentSlug)
	return nil
}

// GetInstall retrieves the install record for (org, agent).
// Returns ErrNotFound if the organization never installed the agent.
func (s *SQLiteStore) GetInstall(ctx context.Context, orgID, agentSlug string) (*AgentInstall, error) {
	var (
		install     AgentInstall
		active      int
		installedAt string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, agent_slug, installed_by, active, installed_at
		FROM agent_installs
		WHERE org_id = ? AND agent_slug = ?
	`, orgID, agentSlug).Scan(
		&install.ID, &install.OrgID, &install.AgentSlug,
		&install.InstalledBy, &active, &installedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying install: %w", err)
	}

	install.Active = active != 0
	install.InstalledAt, _ = time.Parse(time.RFC3339, installedAt)
	return &install, nil
}

// CreateOrganization inserts a new organization row.
func (s *SQLiteStore) CreateOrganization(ctx context.Context, org *Organization) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, plan, created_at)
		VALUES (?, ?, ?, ?)
	`, org.ID, org.Name, org.Plan, org.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting organization: %w", err)
	}

	s.logger.Info("organization created", "org_id", org.ID, "plan", org.Plan)
	return nil
}

// GetOrganization retrieves an organization by ID.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	var (
		org       Organization
		createdAt string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, plan, created_at FROM organizations WHERE id = ?
	`, id).Scan(&org.ID, &org.Name, &org.Plan, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying organization: %w", err)
	}

	org.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &org, nil
}

// ListOrganizations returns all organizations ordered by name.
func (s *SQLiteStore) ListOrganizations(ctx context.Context) ([]*Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, plan, created_at FROM organizations ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*Organization
	for rows.Next() {
		var (
			org       Organization
			createdAt string
		)
		if err := rows.Scan(&org.ID, &org.Name, &org.Plan, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning organization row: %w", err)
		}
		org.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		orgs = append(orgs, &org)
	}
	return orgs, rows.Err()
}

// CreateUser inserts a new user row.
// Returns ErrUsernameExists if the username is taken.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	var orgID any
	if user.OrgID != nil {
		orgID = *user.OrgID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, org_id, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, user.ID, user.Username, user.PasswordHash, orgID, user.Role,
		user.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Info("user created", "user_id", user.ID, "role", user.Role)
	return nil
}

// GetUser retrieves a user by ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, `id = ?`, id)
}

// GetUserByUsername retrieves a user by username.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, `username = ?`, username)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*User, error) {
	var (
		user      User
		orgID     sql.NullString
		createdAt string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, org_id, role, created_at
		FROM users WHERE `+where,
		arg,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &orgID, &user.Role, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	if orgID.Valid {
		user.OrgID = &orgID.String
	}
	user.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &user, nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)

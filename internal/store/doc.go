// Package store provides persistent storage for the agent registry using SQLite.
//
// # Data Models
//
//   - AgentRecord: durable catalog row for a loaded agent descriptor, keyed
//     by slug with a generated integer ID for downstream references
//   - OrgEntitlement: per-organization enable/disable switch for an agent
//   - UserGrant: per-user access record scoped to one org and one agent;
//     revocation is logical (timestamp set), never deletion
//   - AgentInstall: records an organization opting into an agent
//   - Organization, User: tenants and accounts with roles and plans
//
// # Concurrency
//
// All mutations on keyed rows (agent by slug, entitlement by (org, agent),
// grant by (user, agent, org)) are single-statement upserts backed by UNIQUE
// constraints, so concurrent callers cannot produce duplicate rows.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Use NewSQLiteStore(":memory:") in tests for a throwaway database.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrUsernameExists: username collision on user creation
//
// All methods accept context.Context for cancellation support.
package store

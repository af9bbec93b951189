// Package catalog holds the process-wide registry of loaded agents.
//
// The catalog is constructed once at startup and injected into every
// component that needs it; there is no package-level singleton. It owns the
// descriptor instances, mirrors each one into the durable agents table on
// registration, and records the loaded handler reference once the mount
// manager has attached an agent's routes.
package catalog

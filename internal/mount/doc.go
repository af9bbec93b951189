// Package mount attaches agent server modules to the shared HTTP server.
//
// Agent modules are compiled into the binary and announced through a
// ModuleTable keyed by the manifest's server_entry reference. On first use
// the Manager resolves the factory, checks the loaded value against the
// single-method RouteRegistrar contract, registers its routes, and records
// the handler on the catalog entry. Repeated or concurrent mounts of the
// same agent are no-ops.
package mount

// Package manifest loads declarative agent descriptors from disk.
//
// Each agent lives in its own directory under the configured agents root and
// carries an agent.toml manifest. The directory name is the agent's slug and
// must match the slug declared inside the manifest.
//
// # Load semantics
//
//   - Directory without agent.toml: skipped silently (work in progress).
//   - Directory prefixed with "_" or ".": ignored.
//   - Manifest that fails to parse or validate, or whose slug mismatches the
//     directory name: recorded as a LoadError, the rest of the scan continues.
//
// One broken agent must never prevent the others from loading.
//
// # Manifest format
//
// Required fields: slug, name, description, category, provider, client_entry,
// server_entry, capabilities. Optional fields with defaults: min_plan (free),
// visibility (admin), pricing.model (free). Version, tags, icon, and the
// free-form [config] table are passed through untouched.
package manifest

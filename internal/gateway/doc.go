// ABOUTME: Package documentation for the gateway package
// ABOUTME: Describes the server assembly and connection handshake

// Package gateway assembles the agenthub server: it owns the store, the
// agent catalog, the access evaluator, the mount manager, and the session
// orchestrator, and exposes them over a shared HTTP mux.
//
// Two surfaces hang off the mux: a JSON API (login, discovery, agent cards,
// admin actions) and the single real-time upgrade endpoint. The real-time
// handshake authenticates via a signed session cookie, validates the agentId
// and sessionId query parameters, runs the access lattice, mounts the agent
// module on first use, and hands the socket to the session orchestrator.
//
// The listener is either plain TCP or a tsnet node when Tailscale is
// enabled in configuration.
package gateway

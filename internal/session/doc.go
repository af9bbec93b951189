// Package session manages live real-time connections between clients and agents.
//
// The Orchestrator owns the process-wide session map keyed by (agent slug,
// session ID) and is the only component that closes or routes through a
// socket. Inbound frames on one session are processed in arrival order;
// sessions are independent of each other.
//
// # Lifecycle
//
// A session is registered after the Connection Gateway's handshake completes
// and deregistered exactly once when its read loop returns, whether closure
// was client-initiated, server-initiated, or an error. Reconnecting with the
// same session ID supersedes the previous socket rather than erroring.
//
// # Liveness
//
// A fixed-interval sweep marks every session stale and pings it; a session
// that never answered the previous ping is forcibly terminated. This
// reclaims half-open sockets (a client that slept or dropped off the
// network without a clean close) within two sweep intervals.
package session

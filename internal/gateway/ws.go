// ABOUTME: Real-time connection handshake for agent sessions
// ABOUTME: Path check, cookie auth, param validation, then handoff to the orchestrator

package gateway

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/hearthside/agenthub/internal/auth"
	"github.com/hearthside/agenthub/internal/session"
)

// RealtimePath is the single upgrade endpoint for live agent sessions.
const RealtimePath = "/ws"

// handshakeState tracks where an inbound upgrade is in its lifecycle.
// Transitions only ever move one step forward; rejection is terminal and
// reachable from any state. No message is processed before stateHandedOff.
type handshakeState int

const (
	stateReceived handshakeState = iota
	statePathChecked
	stateAuthenticated
	stateUpgraded
	stateParamsValidated
	stateAccessChecked
	stateHandedOff
	stateRejected
)

var handshakeStateNames = map[handshakeState]string{
	stateReceived:        "received",
	statePathChecked:     "path_checked",
	stateAuthenticated:   "authenticated",
	stateUpgraded:        "upgraded",
	stateParamsValidated: "params_validated",
	stateAccessChecked:   "access_checked",
	stateHandedOff:       "handed_off",
	stateRejected:        "rejected",
}

func (s handshakeState) String() string { return handshakeStateNames[s] }

// handshake enforces the forward-only lifecycle. advance panics on a skipped
// or backward transition: that is a programming error in the handshake code,
// not a client-triggerable condition.
type handshake struct {
	state handshakeState
}

func (h *handshake) advance(next handshakeState) {
	if h.state == stateRejected || next != h.state+1 {
		panic(fmt.Sprintf("handshake: invalid transition %s -> %s", h.state, next))
	}
	h.state = next
}

func (h *handshake) reject() { h.state = stateRejected }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Cookie auth protects the handshake; browser clients connect from the
	// agent UIs the gateway itself serves.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleUpgrade runs the connection handshake: path check, cookie
// authentication, protocol upgrade, parameter validation, access check,
// mount, and finally handoff to the session orchestrator. Each failure mode
// has a distinct rejection so clients can tell them apart.
func (g *Gateway) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	hs := &handshake{state: stateReceived}

	target, err := absoluteURL(r)
	if err != nil || target.Path != RealtimePath {
		// Pre-upgrade path failures get no HTTP response at all.
		hs.reject()
		g.destroySocket(w)
		return
	}
	hs.advance(statePathChecked)

	claims, err := auth.FromRequest(r, g.verifier)
	if err != nil {
		g.logger.Debug("realtime auth rejected", "remote", r.RemoteAddr, "state", hs.state, "error", err)
		hs.reject()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	hs.advance(stateAuthenticated)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade writes its own error response.
		g.logger.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		hs.reject()
		return
	}
	hs.advance(stateUpgraded)

	query := target.Query()
	agentSlug := query.Get("agentId")
	sessionID := query.Get("sessionId")
	if agentSlug == "" || sessionID == "" {
		hs.reject()
		g.closeConn(conn, session.CloseMissingParams, "agentId and sessionId query parameters are required")
		return
	}
	hs.advance(stateParamsValidated)

	allowed, err := g.evaluator.CanAccess(r.Context(), claims.UserID, agentSlug, claims.OrgID, claims.Role)
	if err != nil {
		g.logger.Error("access evaluation failed", "user_id", claims.UserID, "agent", agentSlug, "error", err)
		hs.reject()
		g.closeConn(conn, websocket.CloseInternalServerErr, "access evaluation failed")
		return
	}
	if !allowed {
		hs.reject()
		g.closeConn(conn, websocket.ClosePolicyViolation, "access denied")
		return
	}
	hs.advance(stateAccessChecked)

	if err := g.mounts.Mount(agentSlug); err != nil {
		g.logger.Error("mount failed during handshake", "agent", agentSlug, "error", err)
		hs.reject()
		g.closeConn(conn, session.CloseDispatchFailure, "agent unavailable")
		return
	}
	hs.advance(stateHandedOff)

	g.logger.Info("session connected",
		"agent", agentSlug,
		"session_id", sessionID,
		"user_id", claims.UserID,
	)

	// Blocks for the life of the connection.
	if err := g.orchestrator.HandleConnection(conn, agentSlug, sessionID, claims.UserID, claims.OrgID); err != nil {
		g.logger.Debug("session rejected", "agent", agentSlug, "session_id", sessionID, "error", err)
	}
}

// absoluteURL reconstructs an absolute URL from the request. The transport
// does not guarantee an absolute request target, so a relative path is
// combined with the Host header.
func absoluteURL(r *http.Request) (*url.URL, error) {
	if r.URL.IsAbs() {
		return r.URL, nil
	}
	u := *r.URL
	u.Scheme = "http"
	if r.TLS != nil {
		u.Scheme = "https"
	}
	u.Host = r.Host
	return &u, nil
}

// destroySocket tears down the underlying TCP connection without writing an
// HTTP response. Used for pre-upgrade path failures.
func (g *Gateway) destroySocket(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		// Not hijackable (e.g. HTTP/2); fall back to a bare status.
		w.WriteHeader(http.StatusNotFound)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}

// closeConn sends an explicit close frame and drops the socket. Used for
// post-upgrade handshake failures.
func (g *Gateway) closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	conn.Close()
}

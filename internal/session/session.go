// ABOUTME: Represents a single live client connection bound to one agent
// ABOUTME: Serializes socket writes and tracks heartbeat liveness state

package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds how long a single socket write may block.
const writeWait = 10 * time.Second

// Session is one live, authenticated connection between a client and an
// agent, keyed by (agent slug, session ID). Sessions are owned exclusively
// by the Orchestrator; no other component closes or writes the socket.
type Session struct {
	AgentSlug string
	SessionID string
	UserID    string
	OrgID     *string

	conn *websocket.Conn

	// writeMu serializes writes: the read loop, the dispatch stream, and
	// the heartbeat sweep all write to the same socket.
	writeMu sync.Mutex

	mu     sync.Mutex
	alive  bool
	closed bool
}

// newSession wraps an upgraded socket in a Session. The session starts alive;
// the first sweep marks it stale and pings it.
func newSession(conn *websocket.Conn, agentSlug, sessionID, userID string, orgID *string) *Session {
	return &Session{
		AgentSlug: agentSlug,
		SessionID: sessionID,
		UserID:    userID,
		OrgID:     orgID,
		conn:      conn,
		alive:     true,
	}
}

// key returns the orchestrator map key for this session.
// Uses | as delimiter since it's not valid in slugs or session IDs.
func (s *Session) key() string {
	return s.AgentSlug + "|" + s.SessionID
}

// markAlive flags the session as having answered the last ping.
func (s *Session) markAlive() {
	s.mu.Lock()
	s.alive = true
	s.mu.Unlock()
}

// sweep returns whether the session answered the previous ping and marks it
// stale for the next cycle.
func (s *Session) sweep() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasAlive := s.alive
	s.alive = false
	return wasAlive
}

// send writes a JSON frame to the client.
func (s *Session) send(frame *ServerFrame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(frame)
}

// ping sends a protocol-level ping control frame.
func (s *Session) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// closeWithCode writes a close frame with the given code and tears the
// socket down. Safe to call multiple times; only the first has effect.
func (s *Session) closeWithCode(code int, reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	s.writeMu.Lock()
	s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	s.writeMu.Unlock()
	s.conn.Close()
}

// terminate closes the raw socket without a close handshake. Used by the
// heartbeat sweep to reclaim half-open connections that stopped answering.
func (s *Session) terminate() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.conn.Close()
}

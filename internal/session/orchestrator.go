// ABOUTME: Owns the live-session map, routes inbound frames, and guarantees cleanup
// ABOUTME: A periodic ping/pong sweep reclaims half-open sockets

package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultSweepInterval is the liveness window when none is configured.
const DefaultSweepInterval = 30 * time.Second

// ErrOrchestratorClosed indicates the orchestrator is shutting down.
var ErrOrchestratorClosed = errors.New("orchestrator closed")

// Dispatcher hands an inbound frame to the agent execution layer and returns
// a stream of response frames. The stream must be closed after the final
// frame. Dispatch errors during a session's first frame are connection-fatal;
// later ones become per-message error frames.
type Dispatcher interface {
	Dispatch(ctx context.Context, sess *Session, frame *ClientFrame) (<-chan *ServerFrame, error)
}

// Orchestrator owns every live session in the process. It is the only
// component permitted to close or route through a session's socket.
type Orchestrator struct {
	dispatcher    Dispatcher
	sweepInterval time.Duration
	logger        *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Config contains construction options for the Orchestrator.
type Config struct {
	Dispatcher    Dispatcher
	SweepInterval time.Duration
	Logger        *slog.Logger
}

// NewOrchestrator creates an Orchestrator and starts its heartbeat sweep.
func NewOrchestrator(cfg Config) *Orchestrator {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		dispatcher:    cfg.Dispatcher,
		sweepInterval: interval,
		logger:        cfg.Logger.With("component", "session"),
		sessions:      make(map[string]*Session),
		cancel:        cancel,
		done:          make(chan struct{}),
	}

	go o.sweepLoop(ctx)
	return o
}

// HandleConnection registers a session for an upgraded, authenticated socket
// and runs its read loop until the connection closes. It blocks for the life
// of the connection and always deregisters exactly once on the way out.
//
// A second connection with the same (agent, session) key supersedes the
// first: clients reconnect with the same session ID after a network blip,
// and the newest socket wins.
func (o *Orchestrator) HandleConnection(conn *websocket.Conn, agentSlug, sessionID, userID string, orgID *string) error {
	sess := newSession(conn, agentSlug, sessionID, userID, orgID)

	if err := o.register(sess); err != nil {
		sess.closeWithCode(websocket.CloseGoingAway, "server shutting down")
		return err
	}
	defer o.deregister(sess)

	conn.SetPongHandler(func(string) error {
		sess.markAlive()
		return nil
	})

	o.readLoop(sess)
	return nil
}

// register inserts the session, closing and replacing any previous session
// under the same key (last connection wins).
func (o *Orchestrator) register(sess *Session) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOrchestratorClosed
	}
	prev := o.sessions[sess.key()]
	o.sessions[sess.key()] = sess
	total := len(o.sessions)
	o.mu.Unlock()

	if prev != nil {
		prev.closeWithCode(websocket.CloseNormalClosure, "superseded by new connection")
		o.logger.Info("session superseded",
			"agent", sess.AgentSlug,
			"session_id", sess.SessionID,
		)
	}

	o.logger.Info("=== SESSION CONNECTED ===",
		"agent", sess.AgentSlug,
		"session_id", sess.SessionID,
		"user_id", sess.UserID,
		"total_sessions", total,
	)
	return nil
}

// deregister removes the session from the map if the map still points at it.
// A superseded session must not remove its replacement.
func (o *Orchestrator) deregister(sess *Session) {
	sess.terminate()

	o.mu.Lock()
	current, ok := o.sessions[sess.key()]
	if ok && current == sess {
		delete(o.sessions, sess.key())
	}
	total := len(o.sessions)
	o.mu.Unlock()

	if ok && current == sess {
		o.logger.Info("=== SESSION CLOSED ===",
			"agent", sess.AgentSlug,
			"session_id", sess.SessionID,
			"total_sessions", total,
		)
	}
}

// readLoop processes inbound frames in arrival order. Malformed frames get a
// structured error frame back; dispatch errors after the first frame become
// error frames too, so a transient failure never costs the connection.
func (o *Orchestrator) readLoop(sess *Session) {
	first := true
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			// Client went away or the sweep reclaimed the socket.
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			o.sendError(sess, "malformed message: "+err.Error())
			continue
		}
		if frame.Text == "" {
			o.sendError(sess, "missing text field")
			continue
		}

		if err := o.handleFrame(sess, &frame, first); err != nil {
			// Initial hookup failed: reject the connection outright.
			sess.closeWithCode(CloseDispatchFailure, err.Error())
			return
		}
		first = false
	}
}

// handleFrame dispatches one inbound frame and streams the responses back.
// Returns a non-nil error only for a connection-fatal first-frame failure.
func (o *Orchestrator) handleFrame(sess *Session, frame *ClientFrame, first bool) error {
	stream, err := o.dispatcher.Dispatch(context.Background(), sess, frame)
	if err != nil {
		o.logger.Warn("dispatch failed",
			"agent", sess.AgentSlug,
			"session_id", sess.SessionID,
			"error", err,
		)
		if first {
			return err
		}
		o.sendError(sess, err.Error())
		return nil
	}

	for resp := range stream {
		if err := sess.send(resp); err != nil {
			// Drain the stream so the dispatcher isn't left blocked.
			for range stream {
			}
			return nil
		}
	}
	return nil
}

// sendError writes a structured error frame, ignoring write failures (the
// read loop will notice a dead socket on its next read).
func (o *Orchestrator) sendError(sess *Session, msg string) {
	if err := sess.send(ErrorFrame(msg)); err != nil {
		o.logger.Debug("error frame write failed",
			"agent", sess.AgentSlug,
			"session_id", sess.SessionID,
			"error", err,
		)
	}
}

// sweepLoop runs the heartbeat cycle: every interval, each session that
// answered the previous ping is marked stale and pinged again; each session
// that did not answer is terminated. Termination makes the session's read
// loop return, which deregisters it.
func (o *Orchestrator) sweepLoop(ctx context.Context) {
	defer close(o.done)

	ticker := time.NewTicker(o.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sweep()
		}
	}
}

// sweep executes one liveness cycle over a snapshot of the session map.
func (o *Orchestrator) sweep() {
	o.mu.RLock()
	snapshot := make([]*Session, 0, len(o.sessions))
	for _, sess := range o.sessions {
		snapshot = append(snapshot, sess)
	}
	o.mu.RUnlock()

	var reclaimed int
	for _, sess := range snapshot {
		if !sess.sweep() {
			sess.terminate()
			reclaimed++
			continue
		}
		if err := sess.ping(); err != nil {
			sess.terminate()
			reclaimed++
		}
	}

	if reclaimed > 0 {
		o.logger.Info("heartbeat sweep reclaimed sessions", "count", reclaimed)
	}
}

// Get retrieves a live session by (agent, session) key.
func (o *Orchestrator) Get(agentSlug, sessionID string) (*Session, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	sess, ok := o.sessions[agentSlug+"|"+sessionID]
	return sess, ok
}

// Count returns the number of live sessions.
func (o *Orchestrator) Count() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.sessions)
}

// Close terminates every live session and stops the sweep loop.
// This should be called during graceful shutdown.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	snapshot := make([]*Session, 0, len(o.sessions))
	for _, sess := range o.sessions {
		snapshot = append(snapshot, sess)
	}
	o.mu.Unlock()

	for _, sess := range snapshot {
		sess.closeWithCode(websocket.CloseGoingAway, "server shutting down")
	}

	o.cancel()
	<-o.done

	o.logger.Info("orchestrator closed", "sessions_closed", len(snapshot))
}

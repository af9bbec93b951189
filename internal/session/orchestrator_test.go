// ABOUTME: Tests for the session orchestrator over real websocket connections
// ABOUTME: Covers frame routing, malformed input, supersede semantics, and the heartbeat sweep

package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wordDispatcher streams each word of the inbound text as a chunk, then done.
type wordDispatcher struct {
	calls atomic.Int64
}

func (d *wordDispatcher) Dispatch(ctx context.Context, sess *Session, frame *ClientFrame) (<-chan *ServerFrame, error) {
	d.calls.Add(1)
	out := make(chan *ServerFrame)
	go func() {
		defer close(out)
		for _, word := range strings.Fields(frame.Text) {
			out <- &ServerFrame{Type: FrameChunk, Content: word}
		}
		out <- &ServerFrame{Type: FrameDone}
	}()
	return out, nil
}

// failingDispatcher fails every dispatch call numbered at or below failUntil.
type failingDispatcher struct {
	failUntil atomic.Int64
	calls     atomic.Int64
	inner     wordDispatcher
}

func (d *failingDispatcher) Dispatch(ctx context.Context, sess *Session, frame *ClientFrame) (<-chan *ServerFrame, error) {
	n := d.calls.Add(1)
	if n <= d.failUntil.Load() {
		return nil, errors.New("agent unavailable")
	}
	return d.inner.Dispatch(ctx, sess, frame)
}

var testUpgrader = websocket.Upgrader{}

// newTestServer runs an orchestrator behind a websocket endpoint. The agent
// and session identifiers come from query parameters, mirroring the gateway.
func newTestServer(t *testing.T, dispatcher Dispatcher, sweepInterval time.Duration) (*Orchestrator, *httptest.Server) {
	t.Helper()

	o := NewOrchestrator(Config{
		Dispatcher:    dispatcher,
		SweepInterval: sweepInterval,
		Logger:        testLogger(),
	})
	t.Cleanup(o.Close)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = o.HandleConnection(conn, r.URL.Query().Get("agentId"), r.URL.Query().Get("sessionId"), "user-1", nil)
	}))
	t.Cleanup(srv.Close)

	return o, srv
}

func dial(t *testing.T, srv *httptest.Server, agentSlug, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?agentId=" + agentSlug + "&sessionId=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) *ServerFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame ServerFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	return &frame
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRoundtrip(t *testing.T) {
	o, srv := newTestServer(t, &wordDispatcher{}, time.Minute)
	conn := dial(t, srv, "echo", "sess-1")

	waitFor(t, "session registration", func() bool { return o.Count() == 1 })

	if err := conn.WriteJSON(&ClientFrame{Text: "hello there"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var chunks []string
	for {
		frame := readFrame(t, conn)
		if frame.Type == FrameDone {
			break
		}
		if frame.Type != FrameChunk {
			t.Fatalf("frame type = %q, want chunk", frame.Type)
		}
		chunks = append(chunks, frame.Content)
	}

	if got := strings.Join(chunks, " "); got != "hello there" {
		t.Errorf("streamed content = %q, want %q", got, "hello there")
	}
}

func TestFramesProcessedInOrder(t *testing.T) {
	_, srv := newTestServer(t, &wordDispatcher{}, time.Minute)
	conn := dial(t, srv, "echo", "sess-1")

	for _, text := range []string{"one", "two", "three"} {
		if err := conn.WriteJSON(&ClientFrame{Text: text}); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	var got []string
	for len(got) < 3 {
		frame := readFrame(t, conn)
		if frame.Type == FrameChunk {
			got = append(got, frame.Content)
		}
	}

	for i, want := range []string{"one", "two", "three"} {
		if got[i] != want {
			t.Errorf("chunk %d = %q, want %q (ordering violated)", i, got[i], want)
		}
	}
}

func TestMalformedFrame(t *testing.T) {
	_, srv := newTestServer(t, &wordDispatcher{}, time.Minute)
	conn := dial(t, srv, "echo", "sess-1")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	frame := readFrame(t, conn)
	if frame.Type != FrameError {
		t.Fatalf("frame type = %q, want error", frame.Type)
	}

	// The connection survives; a valid frame still round-trips.
	if err := conn.WriteJSON(&ClientFrame{Text: "still alive"}); err != nil {
		t.Fatalf("write after error failed: %v", err)
	}
	frame = readFrame(t, conn)
	if frame.Type != FrameChunk {
		t.Errorf("frame type = %q, want chunk after recovery", frame.Type)
	}
}

func TestMissingText(t *testing.T) {
	_, srv := newTestServer(t, &wordDispatcher{}, time.Minute)
	conn := dial(t, srv, "echo", "sess-1")

	if err := conn.WriteJSON(map[string]string{"model": "fast"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	frame := readFrame(t, conn)
	if frame.Type != FrameError {
		t.Errorf("frame type = %q, want error for missing text", frame.Type)
	}
}

func TestFirstFrameDispatchFailureClosesConnection(t *testing.T) {
	d := &failingDispatcher{}
	d.failUntil.Store(1)
	_, srv := newTestServer(t, d, time.Minute)
	conn := dial(t, srv, "echo", "sess-1")

	if err := conn.WriteJSON(&ClientFrame{Text: "hello"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, CloseDispatchFailure) {
		t.Errorf("read error = %v, want close code %d", err, CloseDispatchFailure)
	}
}

func TestLaterDispatchFailureBecomesErrorFrame(t *testing.T) {
	d := &failingDispatcher{}
	_, srv := newTestServer(t, d, time.Minute)
	conn := dial(t, srv, "echo", "sess-1")

	// First frame succeeds.
	if err := conn.WriteJSON(&ClientFrame{Text: "ok"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	for {
		if readFrame(t, conn).Type == FrameDone {
			break
		}
	}

	// Make the next dispatch fail.
	d.failUntil.Store(d.calls.Load() + 1)

	if err := conn.WriteJSON(&ClientFrame{Text: "will fail"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	frame := readFrame(t, conn)
	if frame.Type != FrameError {
		t.Fatalf("frame type = %q, want error", frame.Type)
	}

	// Connection stays usable afterwards.
	if err := conn.WriteJSON(&ClientFrame{Text: "recovered"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if frame := readFrame(t, conn); frame.Type != FrameChunk {
		t.Errorf("frame type = %q, want chunk after transient failure", frame.Type)
	}
}

func TestSupersede(t *testing.T) {
	o, srv := newTestServer(t, &wordDispatcher{}, time.Minute)

	first := dial(t, srv, "echo", "sess-1")
	waitFor(t, "first registration", func() bool { return o.Count() == 1 })

	firstSess, ok := o.Get("echo", "sess-1")
	if !ok {
		t.Fatal("first session not registered")
	}

	second := dial(t, srv, "echo", "sess-1")
	waitFor(t, "supersede", func() bool {
		sess, ok := o.Get("echo", "sess-1")
		return ok && sess != firstSess
	})

	// Exactly one live entry under the key.
	if o.Count() != 1 {
		t.Errorf("Count = %d, want 1 after supersede", o.Count())
	}

	// The first socket receives a close frame and is no longer routable.
	first.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := first.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("first socket read = %v, want normal close", err)
	}

	// The second connection works.
	if err := second.WriteJSON(&ClientFrame{Text: "ping"}); err != nil {
		t.Fatalf("write on second failed: %v", err)
	}
	if frame := readFrame(t, second); frame.Type != FrameChunk {
		t.Errorf("frame type = %q, want chunk on superseding connection", frame.Type)
	}
}

func TestDistinctSessionsIndependent(t *testing.T) {
	o, srv := newTestServer(t, &wordDispatcher{}, time.Minute)

	dial(t, srv, "echo", "sess-1")
	dial(t, srv, "echo", "sess-2")
	dial(t, srv, "billing-bot", "sess-1")

	waitFor(t, "three registrations", func() bool { return o.Count() == 3 })
}

func TestSweepReclaimsUnresponsiveSession(t *testing.T) {
	o, srv := newTestServer(t, &wordDispatcher{}, 50*time.Millisecond)

	conn := dial(t, srv, "echo", "sess-1")
	waitFor(t, "registration", func() bool { return o.Count() == 1 })

	// Never read from the client side: pings go unanswered, so the second
	// sweep terminates the socket and the read loop deregisters it.
	waitFor(t, "reclamation", func() bool { return o.Count() == 0 })

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("read succeeded on a reclaimed socket")
	}
}

func TestSweepKeepsResponsiveSession(t *testing.T) {
	o, srv := newTestServer(t, &wordDispatcher{}, 50*time.Millisecond)

	conn := dial(t, srv, "echo", "sess-1")
	waitFor(t, "registration", func() bool { return o.Count() == 1 })

	// Keep reading so the client's default ping handler answers with pongs.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Survive well past several sweep cycles.
	time.Sleep(300 * time.Millisecond)
	if o.Count() != 1 {
		t.Errorf("Count = %d, want 1 (responsive session reclaimed)", o.Count())
	}

	conn.Close()
	<-done
}

func TestClose(t *testing.T) {
	o := NewOrchestrator(Config{
		Dispatcher:    &wordDispatcher{},
		SweepInterval: time.Minute,
		Logger:        testLogger(),
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = o.HandleConnection(conn, "echo", r.URL.Query().Get("sessionId"), "user-1", nil)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?sessionId=sess-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	waitFor(t, "registration", func() bool { return o.Count() == 1 })

	o.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read error = %v, want going-away close", err)
	}

	// New connections are refused once closed.
	conn2, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn2.Close()

	conn2.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn2.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read error = %v, want going-away close for post-shutdown connection", err)
	}
}

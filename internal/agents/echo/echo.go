// ABOUTME: Built-in echo agent used for smoke-testing the mount and session path
// ABOUTME: Registers a status route and streams back whatever text it receives

package echo

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/hearthside/agenthub/internal/session"
)

// Slug is the catalog identifier the built-in manifest must use.
const Slug = "echo"

// ServerEntry is the module reference the manifest's server_entry resolves to.
const ServerEntry = "echo/server"

// Agent is a minimal mountable module. It echoes each message back one word
// at a time so clients can exercise streaming end to end.
type Agent struct {
	handled atomic.Int64
}

// New constructs an echo Agent. Used as the module factory.
func New() *Agent {
	return &Agent{}
}

// RegisterRoutes mounts the agent's HTTP surface on the shared mux.
func (a *Agent) RegisterRoutes(mux *http.ServeMux) error {
	mux.HandleFunc("GET /agents/echo/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"agent":   Slug,
			"handled": a.handled.Load(),
		})
	})
	return nil
}

// HandleMessage streams the incoming text back word by word, then a done
// frame. The channel closes when the stream is complete or the context ends.
func (a *Agent) HandleMessage(ctx context.Context, userID, sessionID string, frame *session.ClientFrame) (<-chan *session.ServerFrame, error) {
	a.handled.Add(1)

	out := make(chan *session.ServerFrame)
	go func() {
		defer close(out)
		for _, word := range strings.Fields(frame.Text) {
			select {
			case out <- &session.ServerFrame{Type: session.FrameChunk, Content: word + " "}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- &session.ServerFrame{Type: session.FrameDone}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

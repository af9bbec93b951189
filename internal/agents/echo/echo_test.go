// ABOUTME: Tests for the built-in echo agent module
// ABOUTME: Verifies the mount contract and word-by-word streaming

package echo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hearthside/agenthub/internal/session"
)

func TestRegisterRoutes(t *testing.T) {
	a := New()
	mux := http.NewServeMux()
	if err := a.RegisterRoutes(mux); err != nil {
		t.Fatalf("RegisterRoutes failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/agents/echo/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"agent":"echo"`) {
		t.Errorf("body = %q, want agent field", rec.Body.String())
	}
}

func TestHandleMessage(t *testing.T) {
	a := New()

	stream, err := a.HandleMessage(context.Background(), "user-1", "sess-1", &session.ClientFrame{Text: "one two three"})
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	var chunks []string
	var done bool
	for frame := range stream {
		switch frame.Type {
		case session.FrameChunk:
			chunks = append(chunks, frame.Content)
		case session.FrameDone:
			done = true
		default:
			t.Errorf("unexpected frame type %q", frame.Type)
		}
	}

	if got := strings.Join(chunks, ""); got != "one two three " {
		t.Errorf("streamed %q, want %q", got, "one two three ")
	}
	if !done {
		t.Error("stream ended without a done frame")
	}
}

func TestHandleMessage_ContextCancelled(t *testing.T) {
	a := New()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := a.HandleMessage(ctx, "user-1", "sess-1", &session.ClientFrame{Text: "a b c d e"})
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	cancel()

	// The stream must close rather than block forever.
	for range stream {
	}
}

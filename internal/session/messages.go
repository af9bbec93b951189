// ABOUTME: Wire frame types exchanged over a live agent session
// ABOUTME: Client frames carry text plus an optional routing hint; server frames stream chunks

package session

// Close codes used after the protocol upgrade has completed. The 4xxx range
// is reserved for application use by the WebSocket protocol.
const (
	// CloseMissingParams is sent when the connection request lacks the
	// required agentId or sessionId query parameter.
	CloseMissingParams = 4400

	// CloseDispatchFailure is sent when hooking the connection up to its
	// agent execution context fails.
	CloseDispatchFailure = 4500
)

// ClientFrame is one inbound message from a browser client.
type ClientFrame struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"` // optional routing hint
}

// Server frame types.
const (
	FrameChunk = "chunk"
	FrameDone  = "done"
	FrameError = "error"
)

// ServerFrame is one outbound message to a browser client: a content chunk,
// a completion signal, or a structured error.
type ServerFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorFrame builds a structured error frame.
func ErrorFrame(msg string) *ServerFrame {
	return &ServerFrame{Type: FrameError, Error: msg}
}

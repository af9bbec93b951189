// ABOUTME: Optional message-handling contract a mounted module may expose
// ABOUTME: Modules without it serve HTTP routes only and refuse live sessions

package mount

import (
	"context"

	"github.com/hearthside/agenthub/internal/session"
)

// MessageHandler is implemented by mounted modules that accept live session
// traffic. The returned stream must be closed after the final frame.
type MessageHandler interface {
	HandleMessage(ctx context.Context, userID, sessionID string, frame *session.ClientFrame) (<-chan *session.ServerFrame, error)
}

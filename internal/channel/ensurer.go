package channel

import (
	"context"
	"sync"

	"github.com/aegisvoice/voicebridge/internal/domain"
)

// Ensurer provides the same idempotent connect operation as the WebRTC
// negotiator for the WebSocket transport. The mutex is held for the duration
// of an attempt, so concurrent callers serialize rather than racing to dial.
type Ensurer struct {
	sessions  domain.SessionFetcher
	apiBase   string
	onMessage func([]byte)

	mu sync.Mutex
	ws *WebSocket
}

// NewEnsurer creates an Ensurer dialing apiBase with credentials from
// sessions.
func NewEnsurer(sessions domain.SessionFetcher, apiBase string, onMessage func([]byte)) *Ensurer {
	return &Ensurer{
		sessions:  sessions,
		apiBase:   apiBase,
		onMessage: onMessage,
	}
}

// EnsureConnected returns the live channel, dialing a new one if none is
// open.
func (e *Ensurer) EnsureConnected(ctx context.Context) (domain.Channel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ws != nil {
		select {
		case <-e.ws.Closed():
			e.ws = nil
		default:
			return e.ws, nil
		}
	}

	sess, err := e.sessions.FetchSession(ctx)
	if err != nil {
		return nil, err
	}

	ws, err := DialWebSocket(ctx, e.apiBase, sess, e.onMessage)
	if err != nil {
		return nil, err
	}
	e.ws = ws
	return ws, nil
}

// Close shuts down the live channel, if any.
func (e *Ensurer) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ws != nil {
		e.ws.Close()
		e.ws = nil
	}
}

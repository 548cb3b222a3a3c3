// Package channel provides the WebSocket realization of the event channel,
// used when the WebRTC transport is unavailable.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/aegisvoice/voicebridge/internal/domain"
)

// WebSocket is a domain.Channel over a realtime WebSocket connection.
type WebSocket struct {
	conn *websocket.Conn

	mu        sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

// DialWebSocket connects to the realtime endpoint with the session's bearer
// token and starts the read loop. Inbound text frames are delivered to
// onMessage.
func DialWebSocket(ctx context.Context, apiBase string, sess *domain.Session, onMessage func([]byte)) (*WebSocket, error) {
	u, err := url.Parse(apiBase)
	if err != nil {
		return nil, fmt.Errorf("parse api base: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = "/v1/realtime"
	q := u.Query()
	q.Set("model", sess.Model)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+sess.Token)
	header.Set("OpenAI-Beta", "realtime=v1")

	log.Printf("[channel] dialing %s", u.String())

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		reason := fmt.Sprintf("websocket dial: %v", err)
		if resp != nil {
			reason = fmt.Sprintf("websocket dial: %v (status %d)", err, resp.StatusCode)
		}
		return nil, &domain.ChannelError{Reason: reason}
	}

	ws := &WebSocket{
		conn:   conn,
		closed: make(chan struct{}),
	}
	go ws.readLoop(onMessage)

	return ws, nil
}

// Send JSON-encodes v and writes it as one text frame.
func (ws *WebSocket) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal channel message: %w", err)
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if err := ws.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write channel message: %w", err)
	}
	return nil
}

// Close shuts down the connection.
func (ws *WebSocket) Close() error {
	ws.closeOnce.Do(func() { close(ws.closed) })
	return ws.conn.Close()
}

// Closed is closed once the connection is gone.
func (ws *WebSocket) Closed() <-chan struct{} { return ws.closed }

func (ws *WebSocket) readLoop(onMessage func([]byte)) {
	defer ws.Close()

	for {
		_, data, err := ws.conn.ReadMessage()
		if err != nil {
			select {
			case <-ws.closed:
			default:
				log.Printf("[channel] read error: %v", err)
			}
			return
		}
		if onMessage != nil {
			onMessage(data)
		}
	}
}

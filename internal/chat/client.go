// Package chat streams text-mode replies from the proxy's chat relay.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aegisvoice/voicebridge/internal/domain"
	"github.com/aegisvoice/voicebridge/internal/events"
)

const maxErrorBody = 512

// Client posts message history to the proxy and decodes the streamed reply.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a chat Client against the given proxy base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		// No overall timeout: the stream lives as long as the reply. The
		// caller's context bounds it instead.
		httpc: &http.Client{Timeout: 0},
	}
}

type chatRequest struct {
	Messages []domain.Turn `json:"messages"`
}

// Stream posts the history and invokes fn for every decoded stream event
// until the body ends, fn returns an error, or ctx is canceled.
func (c *Client) Stream(ctx context.Context, history []domain.Turn, fn func(events.StreamEvent) error) error {
	body, err := json.Marshal(chatRequest{Messages: history})
	if err != nil {
		return fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.StreamError{Status: resp.StatusCode, Message: string(msg)}
	}

	return events.DecodeSSE(resp.Body, fn)
}

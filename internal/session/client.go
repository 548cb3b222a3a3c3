// Package session fetches short-lived realtime credentials from the
// voicebridge proxy's session endpoint.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aegisvoice/voicebridge/internal/domain"
)

// sessionResponse is the wire shape of the session endpoint. A response with
// ok=false or a missing token is a failure regardless of HTTP status.
type sessionResponse struct {
	OK        bool   `json:"ok"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	Model     string `json:"model"`
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// Client calls the session endpoint to mint realtime credentials.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a session client for the proxy at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchSession mints a new session. It implements domain.SessionFetcher.
func (c *Client) FetchSession(ctx context.Context) (*domain.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/session", nil)
	if err != nil {
		return nil, &domain.SessionError{Reason: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &domain.SessionError{Reason: "http request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.SessionError{Reason: "read response", Err: err}
	}

	var sr sessionResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, &domain.SessionError{
			Reason: fmt.Sprintf("malformed response (status %d)", resp.StatusCode),
			Err:    err,
		}
	}

	if !sr.OK || sr.Token == "" {
		reason := sr.Error
		if reason == "" {
			reason = fmt.Sprintf("no usable token (status %d)", resp.StatusCode)
		}
		return nil, &domain.SessionError{Reason: reason}
	}

	return &domain.Session{
		Token:     sr.Token,
		Model:     sr.Model,
		ExpiresAt: sr.ExpiresAt,
		SessionID: sr.SessionID,
	}, nil
}

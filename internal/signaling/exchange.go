// Package signaling performs the SDP offer/answer exchange with the remote
// realtime endpoint over HTTP.
package signaling

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aegisvoice/voicebridge/internal/domain"
)

const (
	realtimePath = "/v1/realtime"
	betaHeader   = "realtime=v1"

	// maxErrorBody bounds how much of a failed response is echoed into the
	// returned error.
	maxErrorBody = 512
)

// Exchanger posts local session descriptions and returns the remote answer.
// It is stateless; the caller decides whether to retry.
type Exchanger struct {
	baseURL string
	httpc   *http.Client
}

// NewExchanger creates an Exchanger against the given API base URL.
func NewExchanger(baseURL string) *Exchanger {
	return &Exchanger{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Exchange posts offerSDP with the session's bearer token and model and
// returns the remote description text. A non-success response fails with a
// SignalingError carrying the remote status and truncated body.
func (e *Exchanger) Exchange(ctx context.Context, offerSDP string, sess *domain.Session) (string, error) {
	u := e.baseURL + realtimePath + "?model=" + url.QueryEscape(sess.Model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(offerSDP))
	if err != nil {
		return "", fmt.Errorf("create sdp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	req.Header.Set("OpenAI-Beta", betaHeader)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("sdp exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read sdp answer: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.SignalingError{Status: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
	}

	return string(body), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

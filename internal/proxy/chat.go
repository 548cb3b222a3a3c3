package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/aegisvoice/voicebridge/internal/domain"
)

type chatRequest struct {
	Messages []domain.Turn `json:"messages"`
}

// handleChat relays the message history to the upstream streaming endpoint
// and pipes the event stream straight through, flushing per chunk so deltas
// reach the client as they arrive.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "messages array required"})
		return
	}
	if len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "messages array required"})
		return
	}

	payload, err := json.Marshal(map[string]any{
		"model":  s.cfg.ChatModel,
		"input":  req.Messages,
		"stream": true,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	up, err := http.NewRequestWithContext(r.Context(), http.MethodPost, s.cfg.APIBase+"/v1/responses", bytes.NewReader(payload))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	up.Header.Set("Content-Type", "application/json")
	up.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	up.Header.Set("Accept", "text/event-stream")

	resp, err := s.httpc.Do(up)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "upstream: " + err.Error()})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		writeJSON(w, resp.StatusCode, map[string]any{"error": string(msg)})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				s.logger.Debug("chat relay client gone", "error", werr)
				return
			}
			s.metrics.RecordStreamBytes(n)
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				s.logger.Warn("chat relay upstream read", "error", rerr)
			}
			return
		}
	}
}

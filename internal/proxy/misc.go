package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// handleModels relays the upstream model list verbatim.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()

	up, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.APIBase+"/v1/models", nil)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	up.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.httpc.Do(up)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "upstream: " + err.Error()})
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// handleHealth probes the upstream streaming endpoint with a tiny request
// and reports the status it saw.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.probe(w, r, "/v1/responses", map[string]any{
		"model":             s.cfg.ChatModel,
		"input":             "ping",
		"max_output_tokens": 16,
	})
}

// handleHealthChat probes the chat completions endpoint the same way.
func (s *Server) handleHealthChat(w http.ResponseWriter, r *http.Request) {
	s.probe(w, r, "/v1/chat/completions", map[string]any{
		"model":      s.cfg.ChatModel,
		"messages":   []map[string]string{{"role": "user", "content": "ping"}},
		"max_tokens": 5,
	})
}

func (s *Server) probe(w http.ResponseWriter, r *http.Request, path string, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()

	up, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIBase+path, bytes.NewReader(body))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	up.Header.Set("Content-Type", "application/json")
	up.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.httpc.Do(up)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "upstream: " + err.Error()})
		return
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		parsed = string(raw)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": resp.StatusCode, "body": parsed})
}

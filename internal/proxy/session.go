package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// overridesSchema constrains what a client may tune on the minted session.
// Anything outside this surface is rejected before it reaches the upstream.
const overridesSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "modalities": {
      "type": "array",
      "items": {"type": "string", "enum": ["audio", "text"]},
      "minItems": 1
    },
    "instructions": {"type": "string", "maxLength": 8192},
    "voice": {"type": "string", "minLength": 1, "maxLength": 64},
    "temperature": {"type": "number", "minimum": 0, "maximum": 2},
    "max_response_output_tokens": {"type": "integer", "minimum": 1, "maximum": 4096},
    "turn_detection": {"type": ["object", "null"]},
    "input_audio_format": {"type": "string", "enum": ["pcm16", "g711_ulaw", "g711_alaw"]},
    "output_audio_format": {"type": "string", "enum": ["pcm16", "g711_ulaw", "g711_alaw"]},
    "input_audio_transcription": {
      "type": "object",
      "additionalProperties": false,
      "properties": {"model": {"type": "string"}}
    }
  }
}`

var compiledOverrides = jsonschema.MustCompileString("session_overrides.json", overridesSchema)

type sessionReply struct {
	OK        bool   `json:"ok"`
	Token     string `json:"token,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	Model     string `json:"model,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Status    int    `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleSession mints an ephemeral realtime session upstream and normalizes
// the result to a stable shape the client can rely on. POST bodies may carry
// session overrides; they are schema-validated first.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var overrides map[string]any

	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, sessionReply{OK: false, Error: "read body: " + err.Error()})
			return
		}
		if len(bytes.TrimSpace(body)) > 0 {
			var payload any
			if err := json.Unmarshal(body, &payload); err != nil {
				writeJSON(w, http.StatusBadRequest, sessionReply{OK: false, Error: "overrides must be a JSON object"})
				return
			}
			if err := compiledOverrides.Validate(payload); err != nil {
				writeJSON(w, http.StatusBadRequest, sessionReply{OK: false, Error: fmt.Sprintf("invalid overrides: %v", err)})
				return
			}
			if err := json.Unmarshal(body, &overrides); err != nil {
				writeJSON(w, http.StatusBadRequest, sessionReply{OK: false, Error: "overrides must be a JSON object"})
				return
			}
		}
	default:
		writeJSON(w, http.StatusMethodNotAllowed, sessionReply{OK: false, Error: "method not allowed"})
		return
	}

	payload := map[string]any{
		"model":                      s.cfg.RealtimeModel,
		"modalities":                 []string{"audio", "text"},
		"instructions":               "You are a friendly assistant.",
		"voice":                      "alloy",
		"input_audio_format":         "pcm16",
		"output_audio_format":        "pcm16",
		"input_audio_transcription":  map[string]any{"model": "whisper-1"},
		"turn_detection":             nil,
		"temperature":                0.7,
		"max_response_output_tokens": 200,
	}
	for k, v := range overrides {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.metrics.RecordSessionMint("error")
		writeJSON(w, http.StatusInternalServerError, sessionReply{OK: false, Error: err.Error()})
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, s.cfg.APIBase+"/v1/realtime/sessions", bytes.NewReader(body))
	if err != nil {
		s.metrics.RecordSessionMint("error")
		writeJSON(w, http.StatusInternalServerError, sessionReply{OK: false, Error: err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("OpenAI-Beta", "realtime=v1")

	resp, err := s.httpc.Do(req)
	if err != nil {
		s.metrics.RecordSessionMint("error")
		writeJSON(w, http.StatusBadGateway, sessionReply{OK: false, Error: "upstream: " + err.Error()})
		return
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		s.metrics.RecordSessionMint("error")
		writeJSON(w, http.StatusBadGateway, sessionReply{OK: false, Error: "read upstream: " + err.Error()})
		return
	}

	var mint struct {
		ID           string `json:"id"`
		Model        string `json:"model"`
		ClientSecret struct {
			Value     string `json:"value"`
			ExpiresAt int64  `json:"expires_at"`
		} `json:"client_secret"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &mint); err != nil {
		s.metrics.RecordSessionMint("error")
		writeJSON(w, http.StatusBadGateway, sessionReply{
			OK:     false,
			Status: resp.StatusCode,
			Error:  truncate(string(raw), 500),
		})
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || mint.ClientSecret.Value == "" {
		msg := mint.Error.Message
		if msg == "" {
			msg = fmt.Sprintf("upstream status %d", resp.StatusCode)
		}
		s.metrics.RecordSessionMint("error")
		s.logger.Warn("session mint failed", "status", resp.StatusCode, "error", msg)
		writeJSON(w, resp.StatusCode, sessionReply{OK: false, Status: resp.StatusCode, Error: msg})
		return
	}

	model := mint.Model
	if model == "" {
		model = s.cfg.RealtimeModel
	}
	s.metrics.RecordSessionMint("ok")
	writeJSON(w, http.StatusOK, sessionReply{
		OK:        true,
		Token:     mint.ClientSecret.Value,
		ExpiresAt: mint.ClientSecret.ExpiresAt,
		Model:     model,
		SessionID: mint.ID,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

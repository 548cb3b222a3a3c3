package proxy

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
)

const maxUploadBytes = 25 << 20

// handleTranscribe accepts a multipart upload under the "audio" field and
// relays it to the upstream transcription endpoint.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "no audio file"})
		return
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("file", header.Filename)
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = form.WriteField("model", "whisper-1")
		}
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	up, err := http.NewRequestWithContext(r.Context(), http.MethodPost, s.cfg.APIBase+"/v1/audio/transcriptions", pr)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	up.Header.Set("Content-Type", form.FormDataContentType())
	up.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

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

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "decode upstream: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"text": out.Text})
}

type ttsRequest struct {
	Text string `json:"text"`
}

// handleTTS synthesizes reply text to audio. The synthesizer chain handles
// provider fallback internally.
func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "text required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()

	audio, err := s.synth.Synthesize(ctx, req.Text)
	if err != nil {
		s.logger.Warn("synthesis failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio.Data); err != nil {
		s.logger.Debug("tts client gone", "error", err)
	}
}

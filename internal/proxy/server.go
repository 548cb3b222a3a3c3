// Package proxy is the HTTP server the client talks to. It holds the API
// key, mints ephemeral realtime sessions, relays streaming chat, and fronts
// transcription and speech synthesis.
package proxy

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/aegisvoice/voicebridge/internal/config"
	"github.com/aegisvoice/voicebridge/internal/tts"
)

// Server carries the proxy's routes and shared dependencies.
type Server struct {
	cfg     config.Server
	logger  *slog.Logger
	metrics *Metrics
	synth   tts.Synthesizer
	httpc   *http.Client
}

// NewServer creates a Server. synth may be nil, in which case the default
// OpenAI-with-Polly-fallback chain is built from cfg.
func NewServer(cfg config.Server, logger *slog.Logger, synth tts.Synthesizer) *Server {
	metrics := NewMetrics("voicebridge")

	if synth == nil {
		primary := tts.NewOpenAI(cfg.APIBase, cfg.APIKey, cfg.TTSModel, cfg.TTSVoice)
		secondary := tts.NewPolly(cfg.PollyRegion, cfg.PollyVoice, cfg.PollyEngine)
		synth = tts.NewFallback(primary, secondary, metrics.RecordTTSFallback)
	}

	return &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		synth:   synth,
		// No overall timeout: streaming chat relays outlive any fixed bound.
		httpc: &http.Client{Timeout: 0},
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", s.observe("session", s.handleSession))
	mux.HandleFunc("/api/chat", s.observe("chat", s.handleChat))
	mux.HandleFunc("/api/transcribe", s.observe("transcribe", s.handleTranscribe))
	mux.HandleFunc("/api/tts", s.observe("tts", s.handleTTS))
	mux.HandleFunc("/api/models", s.observe("models", s.handleModels))
	mux.HandleFunc("/api/health", s.observe("health", s.handleHealth))
	mux.HandleFunc("/api/health/chat", s.observe("health_chat", s.handleHealthChat))
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("encode response", "error", err)
	}
}

const upstreamTimeout = 30 * time.Second

package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Client holds configuration for the terminal client.
type Client struct {
	// ServerURL is the base URL of the voicebridge proxy.
	ServerURL string
	// APIBase is the base URL of the remote conversational endpoint, used
	// directly for the realtime SDP exchange and WebSocket transport.
	APIBase string
	// SystemPrompt seeds the conversation in text mode.
	SystemPrompt string
}

// Server holds configuration for the proxy server.
type Server struct {
	Addr          string
	APIBase       string
	APIKey        string
	RealtimeModel string
	ChatModel     string
	TTSModel      string
	TTSVoice      string
	PollyRegion   string
	PollyVoice    string
	PollyEngine   string
	LogJSON       bool
}

// LoadClient reads client configuration from a .env file (if present) and
// environment variables. Environment variables take precedence over .env
// values.
func LoadClient() (*Client, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	return &Client{
		ServerURL:    envDefault("VOICEBRIDGE_SERVER", "http://localhost:8787"),
		APIBase:      envDefault("OPENAI_API_BASE", "https://api.openai.com"),
		SystemPrompt: os.Getenv("VOICEBRIDGE_SYSTEM_PROMPT"),
	}, nil
}

// LoadServer reads proxy configuration. The upstream API key is required.
func LoadServer() (*Server, error) {
	_ = godotenv.Load()

	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required")
	}

	logJSON, _ := strconv.ParseBool(os.Getenv("VOICEBRIDGE_LOG_JSON"))

	return &Server{
		Addr:          envDefault("VOICEBRIDGE_ADDR", ":8787"),
		APIBase:       envDefault("OPENAI_API_BASE", "https://api.openai.com"),
		APIKey:        key,
		RealtimeModel: envDefault("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview"),
		ChatModel:     envDefault("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		TTSModel:      envDefault("OPENAI_TTS_MODEL", "gpt-4o-mini-tts"),
		TTSVoice:      envDefault("OPENAI_TTS_VOICE", "alloy"),
		PollyRegion:   envDefault("VOICEBRIDGE_POLLY_REGION", envDefault("AWS_REGION", "us-east-1")),
		PollyVoice:    envDefault("VOICEBRIDGE_POLLY_VOICE", "Joanna"),
		PollyEngine:   envDefault("VOICEBRIDGE_POLLY_ENGINE", "neural"),
		LogJSON:       logJSON,
	}, nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
